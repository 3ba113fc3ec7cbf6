package mvbt

import (
	"slices"

	"github.com/mvbtdb/mvbt/btree"
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/node"
)

type splitAction int

const (
	actionNone splitAction = iota
	actionKeySplit
	actionMerge
)

// decideAction applies the §4.5.5 numeric policy to a node that just
// underwent a version split with k live entries surviving into the
// fresh copy: too many and it must also key-split, too few and it
// must also merge with a live sibling.
func decideAction(k int, th node.Thresholds) splitAction {
	if k > th.StrongSplitMax {
		return actionKeySplit
	}
	if k < th.StrongMergeMin {
		return actionMerge
	}
	return actionNone
}

// resolveOverflow is the single upward-propagation loop both the
// leaf-insertion (§4.5.3) and leaf-deletion (§4.5.4) protocols funnel
// into, and the one that continues cascading into ancestor index
// nodes per §4.5.3 step 4 ("replace/close entries in the parent;
// version-split the parent under the same rules"). forced bypasses
// the physical-capacity gate for the one case §4.5.4 requires it: a
// delete whose resulting live count trips the weak version condition
// even though the node's physical entry count did not grow.
func (t *Tree) resolveOverflow(path []frame, idx int, v node.Version, forced bool, oldRoot node.IndexEntry) error {
	f := path[idx]
	if !forced && f.n.Count() <= t.capacityFor(f.n) {
		f.h.Set(f.n)
		releasePath(path[:idx+1])
		return nil
	}

	level := f.n.Level
	var newEntries []node.IndexEntry
	var closedSlots []int
	var err error
	if f.n.IsLeaf() {
		newEntries, closedSlots, err = t.splitLeafFrame(path, idx, v)
	} else {
		newEntries, closedSlots, err = t.splitIndexFrame(path, idx, v)
	}
	if err == nil {
		// The superseded block keeps only entries that began before v;
		// those added at v live on in the fresh copy alone, and keeping
		// them here would leave the block over its physical capacity.
		f.n.Leaves = slices.DeleteFunc(f.n.Leaves, func(e node.LeafEntry) bool { return e.Lifespan.Begin >= v })
		f.n.Indexes = slices.DeleteFunc(f.n.Indexes, func(e node.IndexEntry) bool { return e.Sep.Lifespan.Begin >= v })
		f.h.Set(f.n)
	}
	f.h.Release()
	if err != nil {
		releasePath(path[:idx])
		return err
	}
	t.strat.OnVersionSplit(int(level))
	if len(newEntries) == 2 {
		t.strat.OnSplit(int(level))
	}

	if idx == 0 {
		return t.installNewRoot(newEntries, level, v, oldRoot)
	}

	parent := &path[idx-1]
	for _, slot := range closedSlots {
		parent.n.Indexes[slot].Sep.Lifespan.End = v
	}
	parent.n.Indexes = append(parent.n.Indexes, newEntries...)
	parent.n.SortIndexes()
	return t.resolveOverflow(path, idx-1, v, false, oldRoot)
}

// installNewRoot handles the top of the cascade: a simple version
// split at the root replaces it in place (one new entry becomes the
// new root directly, since the root is referenced indirectly through
// the Roots Tree rather than through a parent's Indexes slice); a key
// split at the root grows the tree one level taller by wrapping both
// halves in a fresh index node. Either way the new root's LeftLink and
// the superseded root's RightLink are wired to each other (§3), so
// TimeRangeQuery can walk every historical root era even once the
// Roots Tree's own live structure no longer reaches it directly.
func (t *Tree) installNewRoot(newEntries []node.IndexEntry, oldRootLevel uint16, v node.Version, oldRoot node.IndexEntry) error {
	t.strat.OnRootChange()
	closedOldRoot := oldRoot
	closedOldRoot.Sep.Lifespan.End = v

	if len(newEntries) == 1 {
		if err := t.linkRootEras(closedOldRoot, newEntries[0]); err != nil {
			return err
		}
		return t.rootTree.InstallNewRoot(v, newEntries[0])
	}
	wrap := &node.Node{Level: oldRootLevel + 1, Indexes: newEntries}
	id, h, err := t.nodes.Allocate(wrap)
	if err != nil {
		return err
	}
	h.Release()
	alive, total := btree.SumWeights(newEntries)
	rootEntry := node.IndexEntry{
		Child:       id,
		Sep:         node.MVSeparator{Lifespan: node.Lifespan{Begin: v, End: node.NoEnd}, Key: newEntries[0].Sep.Key},
		WeightAlive: alive,
		WeightTotal: total,
	}
	if err := t.linkRootEras(closedOldRoot, rootEntry); err != nil {
		return err
	}
	return t.rootTree.InstallNewRoot(v, rootEntry)
}

// linkRootEras cross-wires the node just superseded from being the
// live root (old) and the node taking over (new): old.RightLink points
// forward to new, new.LeftLink points back to old. old.Child is zero
// only when there was no previous root (never reached through this
// cascade, since the very first root is installed via createFirstLeaf
// instead), guarded here anyway for safety.
func (t *Tree) linkRootEras(old, replacement node.IndexEntry) error {
	if old.Child != 0 {
		if err := t.setNodeLink(old.Child, func(n *node.Node) { n.RightLink = replacement }); err != nil {
			return err
		}
	}
	return t.setNodeLink(replacement.Child, func(n *node.Node) { n.LeftLink = old })
}

func (t *Tree) setNodeLink(id container.BlockId, mutate func(*node.Node)) error {
	h, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	n := h.Value()
	mutate(n)
	h.Set(n)
	h.Release()
	return nil
}

// liveNeighborSlots returns the slot index in indexes of the nearest
// open entry on either side of slot (by array position), or -1 for a
// side that has none.
func liveNeighborSlots(indexes []node.IndexEntry, slot int) (right, left int) {
	right, left = -1, -1
	for i := slot + 1; i < len(indexes); i++ {
		if indexes[i].Sep.Lifespan.Open() {
			right = i
			break
		}
	}
	for i := slot - 1; i >= 0; i-- {
		if indexes[i].Sep.Lifespan.Open() {
			left = i
			break
		}
	}
	return
}

// chooseLeafMergeSibling implements §4.5.3 step 3's merge case: "find
// the live sibling S with smallest combined count." Both neighbors are
// fetched when open and the one yielding the smaller combined live
// count (ties favor the right neighbor) is returned, rather than
// always taking whichever side happens to be open first.
func (t *Tree) chooseLeafMergeSibling(indexes []node.IndexEntry, slot int) (siblingSlot int, siblingLive []node.LeafEntry, err error) {
	right, left := liveNeighborSlots(indexes, slot)
	rightLive, err := t.openLeafEntries(indexes, right)
	if err != nil {
		return -1, nil, err
	}
	leftLive, err := t.openLeafEntries(indexes, left)
	if err != nil {
		return -1, nil, err
	}
	switch {
	case right < 0 && left < 0:
		return -1, nil, nil
	case right < 0:
		return left, leftLive, nil
	case left < 0:
		return right, rightLive, nil
	case len(leftLive) < len(rightLive):
		return left, leftLive, nil
	default:
		return right, rightLive, nil
	}
}

func (t *Tree) openLeafEntries(indexes []node.IndexEntry, slot int) ([]node.LeafEntry, error) {
	if slot < 0 {
		return nil, nil
	}
	h, err := t.nodes.Get(indexes[slot].Child)
	if err != nil {
		return nil, err
	}
	var live []node.LeafEntry
	for _, e := range h.Value().Leaves {
		if e.Lifespan.Open() {
			live = append(live, e)
		}
	}
	h.Release()
	return live, nil
}

// chooseIndexMergeSibling mirrors chooseLeafMergeSibling one level up
// the tree, comparing both neighbors' combined live index-entry counts.
func (t *Tree) chooseIndexMergeSibling(indexes []node.IndexEntry, slot int) (siblingSlot int, siblingLive []node.IndexEntry, err error) {
	right, left := liveNeighborSlots(indexes, slot)
	rightLive, err := t.openIndexEntries(indexes, right)
	if err != nil {
		return -1, nil, err
	}
	leftLive, err := t.openIndexEntries(indexes, left)
	if err != nil {
		return -1, nil, err
	}
	switch {
	case right < 0 && left < 0:
		return -1, nil, nil
	case right < 0:
		return left, leftLive, nil
	case left < 0:
		return right, rightLive, nil
	case len(leftLive) < len(rightLive):
		return left, leftLive, nil
	default:
		return right, rightLive, nil
	}
}

func (t *Tree) openIndexEntries(indexes []node.IndexEntry, slot int) ([]node.IndexEntry, error) {
	if slot < 0 {
		return nil, nil
	}
	h, err := t.nodes.Get(indexes[slot].Child)
	if err != nil {
		return nil, err
	}
	var live []node.IndexEntry
	for _, e := range h.Value().Indexes {
		if e.Sep.Lifespan.Open() {
			live = append(live, e)
		}
	}
	h.Release()
	return live, nil
}

func (t *Tree) allocateLeaf(entries []node.LeafEntry) (container.BlockId, error) {
	id, h, err := t.nodes.Allocate(&node.Node{Level: 0, Leaves: entries})
	if err != nil {
		return 0, err
	}
	h.Release()
	return id, nil
}

func (t *Tree) buildLeafEntry(id container.BlockId, entries []node.LeafEntry, v node.Version) node.IndexEntry {
	return node.IndexEntry{
		Child:       id,
		Sep:         node.MVSeparator{Lifespan: node.Lifespan{Begin: v, End: node.NoEnd}, Key: t.keyOf(entries[0].Data)},
		WeightAlive: uint32(len(entries)),
		WeightTotal: uint32(len(entries)),
	}
}

// splitLeafFrame implements §4.5.3's version-split procedure at the
// leaf level: the overflowing leaf is frozen (resolveOverflow then
// trims it back to the entries that began before v; it remains
// reachable at historical versions through whatever parent entry
// still points to it); a fresh leaf carrying only its live entries is
// built and, per the numeric policy, optionally key-split or merged
// with a live sibling leaf.
func (t *Tree) splitLeafFrame(path []frame, idx int, v node.Version) ([]node.IndexEntry, []int, error) {
	f := path[idx]
	f.h.Set(f.n) // freeze: this block now only serves versions before v

	var live []node.LeafEntry
	for _, e := range f.n.Leaves {
		if e.Lifespan.Open() {
			live = append(live, e)
		}
	}
	k := len(live)
	action := decideAction(k, t.leafTh)

	canMerge := action == actionMerge && idx > 0
	siblingSlot := -1
	var siblingLive []node.LeafEntry
	if canMerge {
		parent := path[idx-1]
		var err error
		siblingSlot, siblingLive, err = t.chooseLeafMergeSibling(parent.n.Indexes, f.slotIdx)
		if err != nil {
			return nil, nil, err
		}
	}
	if action == actionMerge && siblingSlot < 0 {
		action = actionNone // no sibling available: the node just shrinks (§4.5.4's "root shrinks" case, which also applies to any childless-sibling position)
	}

	switch action {
	case actionKeySplit:
		leftID, rightID, leftEntries, rightEntries, err := btree.SplitLeaves(t.nodes, 0, live)
		if err != nil {
			return nil, nil, err
		}
		return []node.IndexEntry{
			t.buildLeafEntry(leftID, leftEntries, v),
			t.buildLeafEntry(rightID, rightEntries, v),
		}, []int{f.slotIdx}, nil

	case actionMerge:
		t.strat.OnMerge(0)
		combined := append(append([]node.LeafEntry{}, live...), siblingLive...)
		combined = sortLeavesBy(combined, t.keyOf)
		closed := []int{f.slotIdx, siblingSlot}
		if len(combined) <= t.leafTh.StrongSplitMax {
			id, err := t.allocateLeaf(combined)
			if err != nil {
				return nil, nil, err
			}
			return []node.IndexEntry{t.buildLeafEntry(id, combined, v)}, closed, nil
		}
		leftID, rightID, leftEntries, rightEntries, err := btree.SplitLeaves(t.nodes, 0, combined)
		if err != nil {
			return nil, nil, err
		}
		return []node.IndexEntry{
			t.buildLeafEntry(leftID, leftEntries, v),
			t.buildLeafEntry(rightID, rightEntries, v),
		}, closed, nil

	default: // actionNone
		id, err := t.allocateLeaf(live)
		if err != nil {
			return nil, nil, err
		}
		return []node.IndexEntry{t.buildLeafEntry(id, live, v)}, []int{f.slotIdx}, nil
	}
}

func sortLeavesBy(entries []node.LeafEntry, keyOf func([]byte) node.Key) []node.LeafEntry {
	n := &node.Node{Level: 0, Leaves: entries}
	n.SortLeaves(keyOf)
	return n.Leaves
}

func (t *Tree) allocateIndex(level uint16, entries []node.IndexEntry) (container.BlockId, error) {
	id, h, err := t.nodes.Allocate(&node.Node{Level: level, Indexes: entries})
	if err != nil {
		return 0, err
	}
	h.Release()
	return id, nil
}

func buildIndexEntry(id container.BlockId, entries []node.IndexEntry, v node.Version) node.IndexEntry {
	alive, total := btree.SumWeights(entries)
	return node.IndexEntry{
		Child:       id,
		Sep:         node.MVSeparator{Lifespan: node.Lifespan{Begin: v, End: node.NoEnd}, Key: entries[0].Sep.Key},
		WeightAlive: alive,
		WeightTotal: total,
	}
}

// splitIndexFrame mirrors splitLeafFrame one level up the tree,
// operating on IndexEntry children instead of leaf records (§4.5.3
// step 4, "version-split the parent under the same rules"). Online
// mutation does not re-derive exact weight-balance totals (that
// invariant is maintained by the bulk loader only, per §4.3); weights
// here are a best-effort sum over the entries carried forward.
func (t *Tree) splitIndexFrame(path []frame, idx int, v node.Version) ([]node.IndexEntry, []int, error) {
	f := path[idx]
	f.h.Set(f.n)

	var live []node.IndexEntry
	for _, e := range f.n.Indexes {
		if e.Sep.Lifespan.Open() {
			live = append(live, e)
		}
	}
	k := len(live)
	action := decideAction(k, t.indexTh)

	canMerge := action == actionMerge && idx > 0
	siblingSlot := -1
	var siblingLive []node.IndexEntry
	if canMerge {
		parent := path[idx-1]
		var err error
		siblingSlot, siblingLive, err = t.chooseIndexMergeSibling(parent.n.Indexes, f.slotIdx)
		if err != nil {
			return nil, nil, err
		}
	}
	if action == actionMerge && siblingSlot < 0 {
		action = actionNone
	}

	level := f.n.Level
	switch action {
	case actionKeySplit:
		leftID, rightID, leftEntries, rightEntries, err := btree.SplitIndexes(t.nodes, level, live)
		if err != nil {
			return nil, nil, err
		}
		return []node.IndexEntry{
			buildIndexEntry(leftID, leftEntries, v),
			buildIndexEntry(rightID, rightEntries, v),
		}, []int{f.slotIdx}, nil

	case actionMerge:
		t.strat.OnMerge(int(level))
		combined := append(append([]node.IndexEntry{}, live...), siblingLive...)
		sortIndexesBy(combined)
		closed := []int{f.slotIdx, siblingSlot}
		if len(combined) <= t.indexTh.StrongSplitMax {
			id, err := t.allocateIndex(level, combined)
			if err != nil {
				return nil, nil, err
			}
			return []node.IndexEntry{buildIndexEntry(id, combined, v)}, closed, nil
		}
		leftID, rightID, leftEntries, rightEntries, err := btree.SplitIndexes(t.nodes, level, combined)
		if err != nil {
			return nil, nil, err
		}
		return []node.IndexEntry{
			buildIndexEntry(leftID, leftEntries, v),
			buildIndexEntry(rightID, rightEntries, v),
		}, closed, nil

	default:
		id, err := t.allocateIndex(level, live)
		if err != nil {
			return nil, nil, err
		}
		return []node.IndexEntry{buildIndexEntry(id, live, v)}, []int{f.slotIdx}, nil
	}
}

func sortIndexesBy(entries []node.IndexEntry) {
	n := &node.Node{Level: 1, Indexes: entries}
	n.SortIndexes()
}
