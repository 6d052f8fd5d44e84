package feed

// mergeDescending merges two post id sequences, each already sorted
// descending, into one descending sequence truncated to limit. Duplicate
// ids across the two sources collapse to a single entry; both describe
// the same post, the push-path copy wins.
func mergeDescending(push []int64, pull []int64, limit int) []int64 {
	if limit <= 0 {
		return nil
	}

	merged := make([]int64, 0, min(limit, len(push)+len(pull)))
	i, j := 0, 0

	for len(merged) < limit && (i < len(push) || j < len(pull)) {
		switch {
		case j >= len(pull):
			merged = append(merged, push[i])
			i++
		case i >= len(push):
			merged = append(merged, pull[j])
			j++
		case push[i] > pull[j]:
			merged = append(merged, push[i])
			i++
		case push[i] < pull[j]:
			merged = append(merged, pull[j])
			j++
		default:
			merged = append(merged, push[i])
			i++
			j++
		}
	}

	return merged
}

// reverse flips an ascending range into the descending order the merge
// expects.
func reverse(ids []int64) []int64 {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}
