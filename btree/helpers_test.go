package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/node"
)

func TestMedianIndexSplitsInHalf(t *testing.T) {
	require.Equal(t, 4, MedianIndex(8))
	require.Equal(t, 3, MedianIndex(7))
	require.Equal(t, 0, MedianIndex(0))
}

func TestSumWeights(t *testing.T) {
	entries := []node.IndexEntry{
		{WeightAlive: 3, WeightTotal: 5},
		{WeightAlive: 2, WeightTotal: 2},
	}
	alive, total := SumWeights(entries)
	require.Equal(t, uint32(5), alive)
	require.Equal(t, uint32(7), total)
}

func TestCountAliveOnlyCountsEntriesLiveAtVersion(t *testing.T) {
	entries := []node.LeafEntry{
		{Lifespan: node.Lifespan{Begin: 1, End: 5}},
		{Lifespan: node.Lifespan{Begin: 1, End: node.NoEnd}},
		{Lifespan: node.Lifespan{Begin: 10, End: node.NoEnd}},
	}
	require.Equal(t, 2, CountAlive(entries, 3))
	require.Equal(t, 1, CountAlive(entries, 6))
	require.Equal(t, 2, CountAlive(entries, 10))
}
