package mvbt

import "github.com/mvbtdb/mvbt/container"

// RecomputeWeights walks the live tree bottom-up and rewrites every
// index entry's WeightAlive/WeightTotal to the exact live/total
// leaf counts of its subtree (§4.3 invariant 2: "sum of weight_alive
// over live children of any index node equals the live-leaf count of
// its subtree at v_current").
//
// Online mutation only maintains these weights as a best-effort sum
// (see split.go); the bulk loader calls this once after a load
// completes so the invariant holds exactly for the tree it produced,
// per §4.6.2 step 3's requirement that bulk load, unlike online
// mutation, keep weights exact.
func (t *Tree) RecomputeWeights() error {
	root, err := t.rootTree.CurrentRoot()
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	_, _, err = t.recomputeNode(root.Child)
	return err
}

func (t *Tree) recomputeNode(id container.BlockId) (alive, total uint32, err error) {
	h, err := t.nodes.Get(id)
	if err != nil {
		return 0, 0, err
	}
	n := h.Value()
	if n.IsLeaf() {
		total = uint32(len(n.Leaves))
		alive = uint32(countOpenLeaves(n.Leaves))
		h.Release()
		return alive, total, nil
	}

	dirty := false
	for i := range n.Indexes {
		if !n.Indexes[i].Sep.Lifespan.Open() {
			continue
		}
		a, tot, err := t.recomputeNode(n.Indexes[i].Child)
		if err != nil {
			h.Release()
			return 0, 0, err
		}
		if n.Indexes[i].WeightAlive != a || n.Indexes[i].WeightTotal != tot {
			n.Indexes[i].WeightAlive = a
			n.Indexes[i].WeightTotal = tot
			dirty = true
		}
		alive += a
		total += tot
	}
	if dirty {
		h.Set(n)
	}
	h.Release()
	return alive, total, nil
}
