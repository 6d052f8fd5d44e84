// Package ids generates post identifiers. The id doubles as the feed
// ordering key and the timeline cache score, so it must be monotonic and
// collision free: a millisecond timestamp in the high bits keeps ids
// roughly time ordered across shards, the shard id separates generator
// instances, and a per-millisecond sequence separates ids within one
// instance.
package ids

import (
	"fmt"
	"sync"
	"time"
)

const (
	// Custom epoch: 2024-01-01T00:00:00Z, keeps 41 bits of timestamp
	// useful for ~69 years
	epochMs = 1704067200000

	shardBits    = 10
	sequenceBits = 12

	maxShard    = (1 << shardBits) - 1
	maxSequence = (1 << sequenceBits) - 1
)

type Generator struct {
	mu       sync.Mutex
	shard    int64
	lastMs   int64
	sequence int64
}

func NewGenerator(shard int64) (*Generator, error) {
	if shard < 0 || shard > maxShard {
		return nil, fmt.Errorf("shard id %d out of range [0, %d]", shard, maxShard)
	}
	return &Generator{shard: shard}, nil
}

// Next returns a new id, strictly greater than any id previously returned
// by this generator. If the per-millisecond sequence overflows, Next spins
// until the next millisecond.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli() - epochMs
	if now < g.lastMs {
		// Clock went backwards; stay on the last observed millisecond
		now = g.lastMs
	}

	if now == g.lastMs {
		g.sequence++
		if g.sequence > maxSequence {
			for now <= g.lastMs {
				now = time.Now().UnixMilli() - epochMs
			}
			g.sequence = 0
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = now

	return now<<(shardBits+sequenceBits) | g.shard<<sequenceBits | g.sequence
}
