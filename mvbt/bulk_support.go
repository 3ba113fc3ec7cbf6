package mvbt

import (
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/node"
)

// ChildRef is one live child pointer of a node, exposed by Snapshot so
// package bulkload can partition a batch of buffered operations by
// subtree without duplicating the tree's own descent logic (§4.6.2
// step 2b).
type ChildRef struct {
	ID     container.BlockId
	LowKey node.Key
}

// NodeSnapshot is a read-only, current-version view of one node's
// shape: whether it is a leaf, and (if not) its live children in
// ascending key order.
type NodeSnapshot struct {
	IsLeaf   bool
	Children []ChildRef
}

// RootID returns the tree's current live root block, bootstrapping an
// empty first leaf if the tree holds nothing yet. The bulk loader
// always starts from an empty tree (§4.6) but still needs a concrete
// node to target its first batch at.
func (t *Tree) RootID() (container.BlockId, error) {
	root, err := t.rootTree.CurrentRoot()
	if err != nil {
		if !isNotFound(err) {
			return 0, err
		}
		// The bootstrap leaf carries no record, so it does not itself
		// count as a mutation: v_current stays at nilVer until the
		// first real operation flushes into it.
		id, err := t.createEmptyLeaf(t.nilVer)
		if err != nil {
			return 0, err
		}
		return id, nil
	}
	return root.Child, nil
}

// createEmptyLeaf installs a genuinely empty leaf as the tree's root,
// unlike createFirstLeaf which seeds the root with one record. Used
// only by the bulk loader, which needs a concrete node to target its
// very first batch at before any record has actually been applied.
func (t *Tree) createEmptyLeaf(v node.Version) (container.BlockId, error) {
	leaf := &node.Node{Level: 0}
	id, h, err := t.nodes.Allocate(leaf)
	if err != nil {
		return 0, err
	}
	h.Release()
	entry := node.IndexEntry{
		Child: id,
		Sep:   node.MVSeparator{Lifespan: node.Lifespan{Begin: v, End: node.NoEnd}},
	}
	t.strat.OnRootChange()
	if err := t.rootTree.InstallNewRoot(v, entry); err != nil {
		return 0, err
	}
	return id, nil
}

// BulkInsert, BulkDelete and BulkUpdate apply one buffered operation
// using the exact same §4.5 leaf/index rules as Insert/Delete/Update,
// but without the strict "v > v_current" gate those entry points
// enforce. The bulk loader only guarantees relative order per key
// (§4.6.2), not a single global version order across the whole
// stream — a later queue flush may apply a smaller version than an
// earlier one did, for a different key's subtree — so v_current is
// tracked here as a high-water mark instead.
func (t *Tree) BulkInsert(v node.Version, key node.Key, value []byte) error {
	prev := t.vCurrent
	if err := t.insertAt(v, key, value); err != nil {
		return err
	}
	t.bumpVCurrent(prev, v)
	return nil
}

func (t *Tree) BulkDelete(v node.Version, key node.Key) error {
	prev := t.vCurrent
	if err := t.deleteAt(v, key); err != nil {
		return err
	}
	t.bumpVCurrent(prev, v)
	return nil
}

func (t *Tree) BulkUpdate(v node.Version, key node.Key, value []byte) error {
	prev := t.vCurrent
	if err := t.updateAt(v, key, value); err != nil {
		return err
	}
	t.bumpVCurrent(prev, v)
	return nil
}

func (t *Tree) bumpVCurrent(prev, applied node.Version) {
	if prev > applied {
		t.vCurrent = prev
		return
	}
	t.vCurrent = applied
}

// Snapshot reads node id and reports its current shape, for the bulk
// loader's queue-flush partitioning step. It does not pin past its own
// call; the returned view is a point-in-time copy.
func (t *Tree) Snapshot(id container.BlockId) (NodeSnapshot, error) {
	h, err := t.nodes.Get(id)
	if err != nil {
		return NodeSnapshot{}, err
	}
	n := h.Value()
	if n.IsLeaf() {
		h.Release()
		return NodeSnapshot{IsLeaf: true}, nil
	}
	children := make([]ChildRef, 0, len(n.Indexes))
	for _, e := range n.Indexes {
		if e.Sep.Lifespan.Open() {
			children = append(children, ChildRef{ID: e.Child, LowKey: e.Sep.Key})
		}
	}
	h.Release()
	return NodeSnapshot{Children: children}, nil
}
