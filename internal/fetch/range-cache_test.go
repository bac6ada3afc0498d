package fetch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRangeCache(t *testing.T) {
	t.Run("exact and superset hits", func(t *testing.T) {
		full := []byte("hello world")
		rc := newMemoryRangeCache(int64(len(full)), "test", 0)

		require.NoError(t, rc.Set(0, []byte("hello")))
		require.NoError(t, rc.Set(1, []byte("e")))

		got, ok := rc.Get(1, 3)
		require.True(t, ok)
		require.Equal(t, []byte("ell"), got)

		// Extend the cached range and confirm the superset read still works.
		require.NoError(t, rc.Set(5, []byte(" world")))
		got, ok = rc.Get(1, 7)
		require.True(t, ok)
		require.Equal(t, []byte("ello wo"), got)
	})

	t.Run("miss", func(t *testing.T) {
		rc := newMemoryRangeCache(100, "test", 0)
		_, ok := rc.Get(50, 10)
		require.False(t, ok)
	})

	t.Run("LRU eviction bounds memory", func(t *testing.T) {
		rc := newMemoryRangeCache(1000, "test", 10)
		require.NoError(t, rc.Set(0, []byte("0123456789"))) // fills the budget
		require.NoError(t, rc.Set(100, []byte("abcde")))    // evicts the first entry

		_, ok := rc.Get(0, 10)
		require.False(t, ok)
		got, ok := rc.Get(100, 5)
		require.True(t, ok)
		require.Equal(t, []byte("abcde"), got)
	})

	t.Run("invalid range rejected", func(t *testing.T) {
		rc := newMemoryRangeCache(5, "test", 0)
		err := rc.Set(3, []byte("abc")) // end=6 exceeds size=5
		require.Error(t, err)
	})
}
