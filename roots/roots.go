// Package roots implements the Roots Tree (C5): an ordinary,
// non-multiversion B+-tree over the MVBT's own historical root
// pointers, keyed by the lifespan each root was live for. It answers
// locate_root(v) (§4.4) and is updated in lockstep with every MVBT
// root change via InstallNewRoot.
//
// Per §9's design note, the Roots Tree is a second, independent user
// of the shared btree helpers rather than a subclass of the
// multiversion engine: it has no version axis of its own (a stored
// root's lifespan is data, not structure), so it only ever grows by
// key split on overflow and never merges — nothing is ever deleted
// from it.
package roots

import (
	"encoding/binary"

	"github.com/mvbtdb/mvbt/btree"
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/buffered"
	"github.com/mvbtdb/mvbt/internal/logging"
	"github.com/mvbtdb/mvbt/merrors"
	"github.com/mvbtdb/mvbt/node"
)

var log = logging.GetLogger("roots")

// PayloadSize is the fixed leaf-entry payload width this package
// uses: an 8-byte sort key (mirroring the entry's own Lifespan.Begin,
// needed because Node.SortLeaves only sees raw payload bytes) plus a
// 40-byte encoded IndexEntry (the historical MVBT root pointer).
const PayloadSize = 8 + 40

// Tree is the Roots Tree. Its own root pointer (RootID) is owned by
// the embedding mvbt.Tree and persisted via the metadata layer (C8);
// a freshly constructed Tree with RootID == 0 is empty.
type Tree struct {
	cfg    node.Config
	cap    int
	nodes  *buffered.Container[*node.Node]
	rootID container.BlockId
	strat  btree.Strategy
}

// New builds a Roots Tree over nodes, using blockSize to size its own
// node capacity. D/E are irrelevant here (no version splits) but
// node.Config carries them for symmetry with the MVBT's Config.
func New(nodes *buffered.Container[*node.Node], blockSize int, strat btree.Strategy) *Tree {
	if strat == nil {
		strat = btree.NopStrategy{}
	}
	cfg := node.Config{BlockSize: blockSize, PayloadSize: PayloadSize, D: 0.25, E: 0.5}
	return &Tree{
		cfg:   cfg,
		cap:   cfg.LeafCapacity(),
		nodes: nodes,
		strat: strat,
	}
}

// Bootstrap points the tree at an already-populated root block,
// loaded from the metadata file on reopen.
func (t *Tree) Bootstrap(rootID container.BlockId) { t.rootID = rootID }

// RootBlockID returns the tree's own root pointer, for the metadata
// layer to persist across a close/reopen cycle.
func (t *Tree) RootBlockID() container.BlockId { return t.rootID }

// Flush writes back the Roots Tree's dirty buffered pages.
func (t *Tree) Flush() error { return t.nodes.Flush() }

// Close flushes and releases the Roots Tree's buffered container.
func (t *Tree) Close() error { return t.nodes.Close() }

type entry struct {
	begin node.Version
	idx   node.IndexEntry
}

func encodeEntry(e entry, buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.begin))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.idx.Child))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.idx.Sep.Lifespan.Begin))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(e.idx.Sep.Lifespan.End))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.idx.Sep.Key))
	binary.LittleEndian.PutUint32(buf[40:44], e.idx.WeightAlive)
	binary.LittleEndian.PutUint32(buf[44:48], e.idx.WeightTotal)
}

func decodeEntry(buf []byte) entry {
	return entry{
		begin: node.Version(binary.LittleEndian.Uint64(buf[0:8])),
		idx: node.IndexEntry{
			Child: container.BlockId(binary.LittleEndian.Uint64(buf[8:16])),
			Sep: node.MVSeparator{
				Lifespan: node.Lifespan{
					Begin: node.Version(binary.LittleEndian.Uint64(buf[16:24])),
					End:   node.Version(binary.LittleEndian.Uint64(buf[24:32])),
				},
				Key: node.Key(binary.LittleEndian.Uint64(buf[32:40])),
			},
			WeightAlive: binary.LittleEndian.Uint32(buf[40:44]),
			WeightTotal: binary.LittleEndian.Uint32(buf[44:48]),
		},
	}
}

func keyOf(data []byte) node.Key {
	return node.Key(int64(binary.LittleEndian.Uint64(data[0:8])))
}

type frame struct {
	id      container.BlockId
	n       *node.Node
	h       *buffered.Handle[*node.Node]
	slotIdx int
}

func releaseAll(path []frame) {
	for _, f := range path {
		f.h.Release()
	}
}

// descendRightmost walks from the root to the rightmost leaf, the
// only leaf a currently-live root entry can ever be in (it always
// carries the largest Begin seen so far).
func (t *Tree) descendRightmost() ([]frame, error) {
	var path []frame
	curID := t.rootID
	slot := -1
	for {
		h, err := t.nodes.Get(curID)
		if err != nil {
			releaseAll(path)
			return nil, err
		}
		n := h.Value()
		path = append(path, frame{id: curID, n: n, h: h, slotIdx: slot})
		if n.IsLeaf() {
			return path, nil
		}
		slot = len(n.Indexes) - 1
		curID = n.Indexes[slot].Child
	}
}

// descendFor walks to the leaf that would contain key k (predecessor
// descent: always follow the rightmost child whose Sep.Key <= k, or
// the leftmost child if k precedes everything).
func (t *Tree) descendFor(k node.Key) ([]frame, error) {
	var path []frame
	curID := t.rootID
	slot := -1
	for {
		h, err := t.nodes.Get(curID)
		if err != nil {
			releaseAll(path)
			return nil, err
		}
		n := h.Value()
		path = append(path, frame{id: curID, n: n, h: h, slotIdx: slot})
		if n.IsLeaf() {
			return path, nil
		}
		chosen := 0
		for i, e := range n.Indexes {
			if e.Sep.Key <= k {
				chosen = i
			}
		}
		slot = chosen
		curID = n.Indexes[chosen].Child
	}
}

// CurrentRoot returns the presently live historical root, or
// ErrNotFound if the tree (and therefore the owning MVBT) is empty.
func (t *Tree) CurrentRoot() (node.IndexEntry, error) {
	if t.rootID == 0 {
		return node.IndexEntry{}, merrors.NotFound("roots.CurrentRoot")
	}
	path, err := t.descendRightmost()
	if err != nil {
		return node.IndexEntry{}, err
	}
	defer releaseAll(path)
	leaf := path[len(path)-1]
	for i := len(leaf.n.Leaves) - 1; i >= 0; i-- {
		e := leaf.n.Leaves[i]
		if e.Lifespan.Open() {
			return decodeEntry(e.Data).idx, nil
		}
	}
	return node.IndexEntry{}, merrors.NotFound("roots.CurrentRoot")
}

// LocateRoot returns the root that was live at version v (§4.4).
func (t *Tree) LocateRoot(v node.Version) (node.IndexEntry, error) {
	if t.rootID == 0 {
		return node.IndexEntry{}, merrors.NotFound("roots.LocateRoot", v)
	}
	path, err := t.descendFor(node.Key(v))
	if err != nil {
		return node.IndexEntry{}, err
	}
	defer releaseAll(path)
	leaf := path[len(path)-1]
	for i := len(leaf.n.Leaves) - 1; i >= 0; i-- {
		e := leaf.n.Leaves[i]
		if e.Lifespan.Begin <= v {
			if e.Lifespan.IsAlive(v) {
				return decodeEntry(e.Data).idx, nil
			}
			break
		}
	}
	return node.IndexEntry{}, merrors.NotFound("roots.LocateRoot", v)
}

// CloseCurrentRoot closes the live root's lifespan at v without
// installing a replacement, used when the last live entry of the
// whole MVBT is deleted (boundary behavior: "a subsequent insert
// allocates a fresh root").
func (t *Tree) CloseCurrentRoot(v node.Version) error {
	if t.rootID == 0 {
		return merrors.NotFound("roots.CloseCurrentRoot")
	}
	path, err := t.descendRightmost()
	if err != nil {
		return err
	}
	defer releaseAll(path)
	leaf := path[len(path)-1]
	for i := len(leaf.n.Leaves) - 1; i >= 0; i-- {
		if leaf.n.Leaves[i].Lifespan.Open() {
			leaf.n.Leaves[i].Lifespan.End = v
			leaf.n.Leaves[i].IsAlive = false
			leaf.h.Set(leaf.n)
			return nil
		}
	}
	return merrors.NotFound("roots.CloseCurrentRoot")
}

// InstallNewRoot closes the currently live root at v (if any) and
// installs newRoot as the fresh live root, cascading a key split
// upward through the Roots Tree itself if this overflows its current
// rightmost leaf (§4.4: "install_new_root... atomic with respect to
// readers, flushed together with the MVBT's own root-pointer switch").
func (t *Tree) InstallNewRoot(v node.Version, newRoot node.IndexEntry) error {
	if t.rootID == 0 {
		return t.bootstrapFirstRoot(v, newRoot)
	}

	path, err := t.descendRightmost()
	if err != nil {
		return err
	}
	leaf := &path[len(path)-1]
	for i := len(leaf.n.Leaves) - 1; i >= 0; i-- {
		if leaf.n.Leaves[i].Lifespan.Open() {
			leaf.n.Leaves[i].Lifespan.End = v
			leaf.n.Leaves[i].IsAlive = false
			break
		}
	}

	payload := make([]byte, PayloadSize)
	encodeEntry(entry{begin: v, idx: newRoot}, payload)
	leaf.n.Leaves = append(leaf.n.Leaves, node.LeafEntry{
		Lifespan: node.Lifespan{Begin: v, End: node.NoEnd},
		IsAlive:  true,
		Data:     payload,
	})
	leaf.n.SortLeaves(keyOf)
	leaf.h.Set(leaf.n)

	return t.resolveOverflow(path, len(path)-1, v)
}

func (t *Tree) bootstrapFirstRoot(v node.Version, newRoot node.IndexEntry) error {
	payload := make([]byte, PayloadSize)
	encodeEntry(entry{begin: v, idx: newRoot}, payload)
	leaf := &node.Node{Level: 0, Leaves: []node.LeafEntry{{
		Lifespan: node.Lifespan{Begin: v, End: node.NoEnd},
		IsAlive:  true,
		Data:     payload,
	}}}
	id, h, err := t.nodes.Allocate(leaf)
	if err != nil {
		return err
	}
	h.Release()
	t.rootID = id
	log.Debug("bootstrapped first root", "begin", v, "block", id)
	return nil
}

func (t *Tree) capacityFor(n *node.Node) int {
	if n.IsLeaf() {
		return t.cfg.LeafCapacity()
	}
	return t.cfg.IndexCapacity()
}

func (t *Tree) resolveOverflow(path []frame, idx int, v node.Version) error {
	f := path[idx]
	if f.n.Count() <= t.capacityFor(f.n) {
		f.h.Set(f.n)
		releaseAll(path[:idx+1])
		return nil
	}

	// The same median-split allocation the MVBT core uses for its own
	// physical key splits (§9): both trees key-split an overflowing
	// node by median position regardless of whether they also carry a
	// version axis, so the allocate-two-halves step is shared even
	// though this tree's own overflow response stops there (no version
	// condition, no merge candidate to consider).
	var leftKey, rightKey node.Key
	var leftEntry, rightEntry node.IndexEntry
	if f.n.IsLeaf() {
		leftID, rightID, left, right, err := btree.SplitLeaves(t.nodes, 0, f.n.Leaves)
		if err != nil {
			releaseAll(path[:idx+1])
			return err
		}
		leftKey, rightKey = keyOf(left[0].Data), keyOf(right[0].Data)
		leftEntry = node.IndexEntry{Child: leftID, Sep: node.MVSeparator{Key: leftKey, Lifespan: node.Lifespan{End: node.NoEnd}}}
		rightEntry = node.IndexEntry{Child: rightID, Sep: node.MVSeparator{Key: rightKey, Lifespan: node.Lifespan{End: node.NoEnd}}}
	} else {
		leftID, rightID, left, right, err := btree.SplitIndexes(t.nodes, f.n.Level, f.n.Indexes)
		if err != nil {
			releaseAll(path[:idx+1])
			return err
		}
		leftKey, rightKey = left[0].Sep.Key, right[0].Sep.Key
		leftEntry = node.IndexEntry{Child: leftID, Sep: node.MVSeparator{Key: leftKey, Lifespan: node.Lifespan{End: node.NoEnd}}}
		rightEntry = node.IndexEntry{Child: rightID, Sep: node.MVSeparator{Key: rightKey, Lifespan: node.Lifespan{End: node.NoEnd}}}
	}

	t.strat.OnSplit(int(f.n.Level))

	// The old node is fully superseded; unlike the MVBT proper the
	// Roots Tree keeps no history of its own structural nodes, so its
	// block is freed rather than kept around.
	f.h.Release()
	if err := t.nodes.Remove(f.id); err != nil {
		releaseAll(path[:idx])
		return err
	}

	if idx == 0 {
		wrap := &node.Node{Level: f.n.Level + 1, Indexes: []node.IndexEntry{leftEntry, rightEntry}}
		id, h, err := t.nodes.Allocate(wrap)
		if err != nil {
			return err
		}
		h.Release()
		t.rootID = id
		return nil
	}

	parent := &path[idx-1]
	// The old slot pointed at f.id, now superseded by the left/right
	// pair; replace it in place rather than appending.
	parent.n.Indexes[f.slotIdx] = leftEntry
	parent.n.Indexes = append(parent.n.Indexes, rightEntry)
	parent.n.SortIndexes()
	return t.resolveOverflow(path, idx-1, v)
}
