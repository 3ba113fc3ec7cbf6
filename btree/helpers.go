package btree

import "github.com/mvbtdb/mvbt/node"

// MedianIndex returns the split point for a key split of a node
// holding n entries: the first half (indices [0,MedianIndex)) stays
// in/left, the second half moves right.
func MedianIndex(n int) int { return n / 2 }

// SumWeights aggregates the weight-alive/weight-total of a set of
// index entries, used by a parent to recompute its own weights after
// a child split/merge (§4.3: "weight_alive(parent) = sum of
// weight_alive(children_with_open_lifespan)").
func SumWeights(entries []node.IndexEntry) (alive, total uint32) {
	for _, e := range entries {
		alive += e.WeightAlive
		total += e.WeightTotal
	}
	return
}

// CountAlive counts leaf entries alive at v.
func CountAlive(entries []node.LeafEntry, v node.Version) int {
	n := 0
	for _, e := range entries {
		if e.Lifespan.IsAlive(v) {
			n++
		}
	}
	return n
}
