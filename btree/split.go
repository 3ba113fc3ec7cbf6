package btree

import (
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/buffered"
	"github.com/mvbtdb/mvbt/node"
)

// SplitLeaves allocates two fresh leaf nodes from entries, split at
// MedianIndex(len(entries)). This is the physical-overflow response
// shared by the MVBT core (C6) and the Roots Tree (C5): a node over
// physical capacity always key-splits by median, whether or not the
// caller also has a version axis to worry about. What differs between
// the two callers — which entries are eligible to carry forward
// (live-only vs. all of them), whether a merge candidate is considered
// first, and whether the old block is kept for history or freed — stays
// in each package, since those choices follow from invariants (§3's
// version condition, §4.4's history-free Roots Tree) that this
// allocation step itself has no opinion on.
func SplitLeaves(nodes *buffered.Container[*node.Node], level uint16, entries []node.LeafEntry) (leftID, rightID container.BlockId, left, right []node.LeafEntry, err error) {
	mid := MedianIndex(len(entries))
	left = append([]node.LeafEntry{}, entries[:mid]...)
	right = append([]node.LeafEntry{}, entries[mid:]...)
	if leftID, err = allocateLeaf(nodes, level, left); err != nil {
		return 0, 0, nil, nil, err
	}
	if rightID, err = allocateLeaf(nodes, level, right); err != nil {
		return 0, 0, nil, nil, err
	}
	return leftID, rightID, left, right, nil
}

func allocateLeaf(nodes *buffered.Container[*node.Node], level uint16, entries []node.LeafEntry) (container.BlockId, error) {
	id, h, err := nodes.Allocate(&node.Node{Level: level, Leaves: entries})
	if err != nil {
		return 0, err
	}
	h.Release()
	return id, nil
}

// SplitIndexes mirrors SplitLeaves one level up, for index-node entries.
func SplitIndexes(nodes *buffered.Container[*node.Node], level uint16, entries []node.IndexEntry) (leftID, rightID container.BlockId, left, right []node.IndexEntry, err error) {
	mid := MedianIndex(len(entries))
	left = append([]node.IndexEntry{}, entries[:mid]...)
	right = append([]node.IndexEntry{}, entries[mid:]...)
	if leftID, err = allocateIndex(nodes, level, left); err != nil {
		return 0, 0, nil, nil, err
	}
	if rightID, err = allocateIndex(nodes, level, right); err != nil {
		return 0, 0, nil, nil, err
	}
	return leftID, rightID, left, right, nil
}

func allocateIndex(nodes *buffered.Container[*node.Node], level uint16, entries []node.IndexEntry) (container.BlockId, error) {
	id, h, err := nodes.Allocate(&node.Node{Level: level, Indexes: entries})
	if err != nil {
		return 0, err
	}
	h.Release()
	return id, nil
}
