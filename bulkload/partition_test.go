package bulkload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/mvbt"
)

func testChildren() []mvbt.ChildRef {
	return []mvbt.ChildRef{
		{ID: container.BlockId(1), LowKey: 0},
		{ID: container.BlockId(2), LowKey: 10},
		{ID: container.BlockId(3), LowKey: 20},
	}
}

func TestChildForPicksRightmostChildWithLowKeyAtOrBelow(t *testing.T) {
	children := testChildren()
	require.Equal(t, container.BlockId(1), childFor(children, 5))
	require.Equal(t, container.BlockId(2), childFor(children, 10))
	require.Equal(t, container.BlockId(2), childFor(children, 15))
	require.Equal(t, container.BlockId(3), childFor(children, 999))
}

func TestChildForFallsBackToLeftmostWhenKeyBelowAllLowKeys(t *testing.T) {
	children := testChildren()
	require.Equal(t, container.BlockId(1), childFor(children, -5))
}

func TestPartitionGroupsPreservingFIFOOrderWithinEachChild(t *testing.T) {
	children := testChildren()
	batch := Batch{
		{Key: 12, Op: OpInsert},
		{Key: 3, Op: OpInsert},
		{Key: 22, Op: OpInsert},
		{Key: 13, Op: OpDelete},
	}
	groups := partition(batch, children)
	require.Len(t, groups, 3)

	byChild := make(map[container.BlockId]group)
	for _, g := range groups {
		byChild[g.child] = g
	}
	require.Equal(t, []Element{{Key: 3, Op: OpInsert}}, byChild[container.BlockId(1)].elements)
	require.Equal(t, []Element{
		{Key: 12, Op: OpInsert},
		{Key: 13, Op: OpDelete},
	}, byChild[container.BlockId(2)].elements)
	require.Equal(t, []Element{{Key: 22, Op: OpInsert}}, byChild[container.BlockId(3)].elements)
}

func TestPartitionOnNoChildrenReturnsNil(t *testing.T) {
	require.Nil(t, partition(Batch{{Key: 1}}, nil))
}

func TestConfigCapacityFloorsAtOne(t *testing.T) {
	cfg := Config{Fanout: 8, MemoryBudget: 1}
	require.Equal(t, 1, cfg.capacity())

	cfg2 := Config{Fanout: 2, MemoryBudget: 100}
	require.Equal(t, 50, cfg2.capacity())
}
