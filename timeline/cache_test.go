package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "feed:1", key(1))
	assert.Equal(t, "feed:1234567890123", key(1234567890123))
}

func TestParseMembers(t *testing.T) {
	ids, err := parseMembers([]string{"300", "200", "100"})
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200, 100}, ids)

	ids, err = parseMembers(nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parseMembers([]string{"300", "not-a-number"})
	assert.Error(t, err)
}
