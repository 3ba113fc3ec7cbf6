package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{BlockSize: 512, PayloadSize: 16, D: 0.25, E: 0.5}
}

func TestSerializationLeafNode(t *testing.T) {
	cfg := testConfig()

	n := &Node{
		Level: 0,
		Leaves: []LeafEntry{
			{Lifespan: Lifespan{Begin: 1, End: NoEnd}, IsAlive: true, Data: []byte("a golden value..")},
			{Lifespan: Lifespan{Begin: 2, End: 5}, IsAlive: false, Data: []byte("second value....")},
		},
		LeftLink:  IndexEntry{Child: 7, Sep: MVSeparator{Lifespan: Lifespan{Begin: 0, End: NoEnd}, Key: 3}},
		RightLink: IndexEntry{Child: 9, Sep: MVSeparator{Lifespan: Lifespan{Begin: 0, End: 4}, Key: 11}},
	}

	raw, err := n.MarshalBinary(cfg)
	require.NoError(t, err)
	require.Len(t, raw, cfg.BlockSize)

	var decoded Node
	require.NoError(t, decoded.UnmarshalBinary(raw, cfg))

	require.Equal(t, n.Level, decoded.Level)
	require.Equal(t, n.LeftLink.Child, decoded.LeftLink.Child)
	require.Equal(t, n.LeftLink.Sep, decoded.LeftLink.Sep)
	require.Equal(t, n.RightLink, decoded.RightLink)
	require.Len(t, decoded.Leaves, 2)
	for i := range n.Leaves {
		require.Equal(t, n.Leaves[i].Lifespan, decoded.Leaves[i].Lifespan)
		require.Equal(t, n.Leaves[i].IsAlive, decoded.Leaves[i].IsAlive)
		require.Equal(t, n.Leaves[i].Data[:cfg.PayloadSize], decoded.Leaves[i].Data)
	}
}

func TestSerializationIndexNode(t *testing.T) {
	cfg := testConfig()

	n := &Node{
		Level: 1,
		Indexes: []IndexEntry{
			{Child: 101, Sep: MVSeparator{Lifespan: Lifespan{Begin: 0, End: NoEnd}, Key: 5}, WeightAlive: 3, WeightTotal: 4},
			{Child: 102, Sep: MVSeparator{Lifespan: Lifespan{Begin: 0, End: NoEnd}, Key: 9}, WeightAlive: 2, WeightTotal: 2},
		},
	}

	raw, err := n.MarshalBinary(cfg)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, decoded.UnmarshalBinary(raw, cfg))

	require.Equal(t, n.Level, decoded.Level)
	require.Equal(t, n.Indexes, decoded.Indexes)
}

func TestLifespanOpenEndRoundTrips(t *testing.T) {
	cfg := testConfig()
	n := &Node{
		Level: 0,
		Leaves: []LeafEntry{
			{Lifespan: Lifespan{Begin: 42, End: NoEnd}, IsAlive: true, Data: make([]byte, cfg.PayloadSize)},
		},
	}
	raw, err := n.MarshalBinary(cfg)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, decoded.UnmarshalBinary(raw, cfg))
	require.True(t, decoded.Leaves[0].Lifespan.Open())
	require.True(t, decoded.Leaves[0].Lifespan.IsAlive(1_000_000))
}

func TestThresholds(t *testing.T) {
	cfg := Config{BlockSize: 4096, PayloadSize: 8, D: 0.25, E: 0.5}
	b := cfg.LeafCapacity()
	require.Greater(t, b, 0)

	th := cfg.ComputeThresholds(8)
	// B=8, D=0.25, E=0.5 => eps=0.125
	// WeakMin = ceil(0.5*8) = 4
	// StrongMergeMin = ceil(0.375*8) = 3
	// StrongSplitMax = floor(0.875*8) = 7
	require.Equal(t, 4, th.WeakMin)
	require.Equal(t, 3, th.StrongMergeMin)
	require.Equal(t, 7, th.StrongSplitMax)
}
