package mvbt

import (
	multierror "github.com/hashicorp/go-multierror"

	"github.com/mvbtdb/mvbt/btree"
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/buffered"
	"github.com/mvbtdb/mvbt/container/converter"
	"github.com/mvbtdb/mvbt/internal/logging"
	"github.com/mvbtdb/mvbt/internal/metrics"
	"github.com/mvbtdb/mvbt/merrors"
	"github.com/mvbtdb/mvbt/node"
	"github.com/mvbtdb/mvbt/roots"
)

var log = logging.GetLogger("mvbt")

// Config bundles the construction-time parameters of a Tree: the
// physical block size, the fixed payload width records are encoded
// to, the D/E occupancy ratios, and the number of buffered pages the
// node and Roots Tree containers are allowed to hold resident.
type Config struct {
	BlockSize    int
	PayloadSize  int
	D, E         float64
	BufferPages  int
	RootsBuffer  int
	NilVersion   node.Version
}

// Tree is the MVBT Core (C6): the single engine that, per §9's design
// note, replaces the BPlusTree -> MVBTree -> MVBT -> MVBTPlus
// inheritance chain. Behavioral differences that chain once expressed
// via subclassing are expressed here as plain Go methods operating on
// the cached Thresholds derived from Config.
type Tree struct {
	cfg      node.Config
	leafCap  int
	indexCap int
	leafTh   node.Thresholds
	indexTh  node.Thresholds

	nodes    *buffered.Container[*node.Node]
	rootTree *roots.Tree

	vCurrent node.Version
	nilVer   node.Version

	strat btree.Strategy
}

// New constructs a Tree over store, sharing one BlockStore between
// the MVBT's own nodes and the Roots Tree's nodes via a one-byte tag
// prefix (§5: "container sharing via TagCodec"). strat may be nil.
func New(store container.BlockStore, cfg Config, strat btree.Strategy) (*Tree, error) {
	if strat == nil {
		strat = MetricsStrategy{}
	}
	nodeCfg := node.Config{BlockSize: store.BlockSize() - 1, PayloadSize: cfg.PayloadSize, D: cfg.D, E: cfg.E}
	mvbtCodec := converter.TagCodec[*node.Node]{Tag: 0, Inner: node.Codec{Cfg: nodeCfg}}
	rootsCodec := converter.TagCodec[*node.Node]{Tag: 1, Inner: node.Codec{Cfg: node.Config{BlockSize: store.BlockSize() - 1, PayloadSize: roots.PayloadSize, D: cfg.D, E: cfg.E}}}

	mvbtConv := converter.New[*node.Node](store, mvbtCodec)
	rootsConv := converter.New[*node.Node](store, rootsCodec)

	bufPages := cfg.BufferPages
	if bufPages < 1 {
		bufPages = 64
	}
	rootsBufPages := cfg.RootsBuffer
	if rootsBufPages < 1 {
		rootsBufPages = 16
	}

	nodes := buffered.New[*node.Node](mvbtConv, bufPages)
	rootNodes := buffered.New[*node.Node](rootsConv, rootsBufPages)
	rootTree := roots.New(rootNodes, store.BlockSize()-1, strat)

	t := &Tree{
		cfg:      nodeCfg,
		leafCap:  nodeCfg.LeafCapacity(),
		indexCap: nodeCfg.IndexCapacity(),
		leafTh:   nodeCfg.ComputeThresholds(nodeCfg.LeafCapacity()),
		indexTh:  nodeCfg.ComputeThresholds(nodeCfg.IndexCapacity()),
		nodes:    nodes,
		rootTree: rootTree,
		vCurrent: cfg.NilVersion,
		nilVer:   cfg.NilVersion,
		strat:    strat,
	}
	metrics.Register()
	log.Info("opened tree", "leaf_capacity", t.leafCap, "index_capacity", t.indexCap,
		"weak_min", t.leafTh.WeakMin, "strong_merge_min", t.leafTh.StrongMergeMin, "strong_split_max", t.leafTh.StrongSplitMax)
	return t, nil
}

// Bootstrap points the Roots Tree at an already-populated root block
// and restores the last-known current version, used when reopening an
// existing store (values loaded by the metadata layer, C8).
func (t *Tree) Bootstrap(rootsRootID container.BlockId, vCurrent node.Version) {
	t.rootTree.Bootstrap(rootsRootID)
	t.vCurrent = vCurrent
}

// RootsRootID exposes the Roots Tree's own root pointer so the
// metadata layer can persist it.
func (t *Tree) RootsRootID() container.BlockId { return t.rootTree.RootBlockID() }

// CurrentVersion returns v_current, the version of the most recent
// committed mutation.
func (t *Tree) CurrentVersion() node.Version { return t.vCurrent }

func (t *Tree) keyOf(data []byte) node.Key {
	k, _ := DecodeRecord(data)
	return k
}

func (t *Tree) capacityFor(n *node.Node) int {
	if n.IsLeaf() {
		return t.leafCap
	}
	return t.indexCap
}

func (t *Tree) thresholdsFor(n *node.Node) node.Thresholds {
	if n.IsLeaf() {
		return t.leafTh
	}
	return t.indexTh
}

type frame struct {
	id      container.BlockId
	n       *node.Node
	h       *buffered.Handle[*node.Node]
	slotIdx int // position of this node within its parent's Indexes; -1 at the root
}

func releasePath(path []frame) {
	for _, f := range path {
		f.h.Release()
	}
}

// chooseChild picks the child slot to descend into for (key, at),
// filtering candidates by liveOnly (writes, which only ever see the
// currently open entries) or IsAlive(at) (reads at a historical
// version). Ties are broken left per §4.5.5's left-bias rule: among
// candidates, the search picks the rightmost whose Sep.Key <= key, or
// the leftmost candidate if key precedes every separator.
func chooseChild(entries []node.IndexEntry, key node.Key, at node.Version, liveOnly bool) (int, bool) {
	chosen := -1
	first := -1
	for i, e := range entries {
		var ok bool
		if liveOnly {
			ok = e.Sep.Lifespan.Open()
		} else {
			ok = e.Sep.Lifespan.IsAlive(at)
		}
		if !ok {
			continue
		}
		if first == -1 {
			first = i
		}
		if e.Sep.Key <= key {
			chosen = i
		}
	}
	if chosen != -1 {
		return chosen, true
	}
	if first != -1 {
		return first, true
	}
	return 0, false
}

// descend walks from rootID to the leaf that should contain key at
// version at, filtering index entries by liveOnly/at as chooseChild
// describes. Every frame in the returned path is pinned; callers must
// releasePath on every exit path.
func (t *Tree) descend(rootID container.BlockId, key node.Key, at node.Version, liveOnly bool) ([]frame, error) {
	var path []frame
	curID := rootID
	slot := -1
	for {
		h, err := t.nodes.Get(curID)
		if err != nil {
			releasePath(path)
			return nil, err
		}
		n := h.Value()
		path = append(path, frame{id: curID, n: n, h: h, slotIdx: slot})
		if n.IsLeaf() {
			return path, nil
		}
		chosen, ok := chooseChild(n.Indexes, key, at, liveOnly)
		if !ok {
			releasePath(path)
			return nil, merrors.NotFound("mvbt.descend", key)
		}
		slot = chosen
		curID = n.Indexes[chosen].Child
	}
}

func countOpenLeaves(entries []node.LeafEntry) int {
	n := 0
	for _, e := range entries {
		if e.Lifespan.Open() {
			n++
		}
	}
	return n
}

// Insert adds a new live record at version v (§4.5.3). v must be
// strictly greater than v_current once the tree holds any history;
// fails with ErrDuplicate if key is already live at v.
func (t *Tree) Insert(v node.Version, key node.Key, value []byte) error {
	if err := t.checkVersionOrder(v); err != nil {
		return err
	}
	return t.insertAt(v, key, value)
}

func (t *Tree) insertAt(v node.Version, key node.Key, value []byte) error {
	payload, err := EncodeRecord(key, value, t.cfg.PayloadSize)
	if err != nil {
		return err
	}

	root, err := t.rootTree.CurrentRoot()
	if err != nil {
		if isNotFound(err) {
			if err := t.createFirstLeaf(v, payload); err != nil {
				return err
			}
			t.vCurrent = v
			return nil
		}
		return err
	}

	path, err := t.descend(root.Child, key, v, true)
	if err != nil {
		return err
	}
	leaf := &path[len(path)-1]
	for _, e := range leaf.n.Leaves {
		if e.Lifespan.Open() && t.keyOf(e.Data) == key {
			releasePath(path)
			return merrors.Duplicate("mvbt.Insert", key)
		}
	}

	leaf.n.Leaves = append(leaf.n.Leaves, node.LeafEntry{
		Lifespan: node.Lifespan{Begin: v, End: node.NoEnd},
		IsAlive:  true,
		Data:     payload,
	})
	leaf.n.SortLeaves(t.keyOf)
	leaf.h.Set(leaf.n)
	t.strat.OnInsertLeaf(0)

	if err := t.resolveOverflow(path, len(path)-1, v, false, root); err != nil {
		return err
	}
	t.vCurrent = v
	return nil
}

// Delete closes key's live entry's lifespan at v (§4.5.4). Fails with
// ErrNotFound if key has no live entry.
func (t *Tree) Delete(v node.Version, key node.Key) error {
	if err := t.checkVersionOrder(v); err != nil {
		return err
	}
	return t.deleteAt(v, key)
}

func (t *Tree) deleteAt(v node.Version, key node.Key) error {
	root, err := t.rootTree.CurrentRoot()
	if err != nil {
		if isNotFound(err) {
			return merrors.NotFound("mvbt.Delete", key)
		}
		return err
	}

	path, err := t.descend(root.Child, key, v, true)
	if err != nil {
		return err
	}
	leaf := &path[len(path)-1]
	found := false
	for i := range leaf.n.Leaves {
		e := &leaf.n.Leaves[i]
		if e.Lifespan.Open() && t.keyOf(e.Data) == key {
			e.Lifespan.End = v
			e.IsAlive = false
			found = true
			break
		}
	}
	if !found {
		releasePath(path)
		return merrors.NotFound("mvbt.Delete", key)
	}
	leaf.h.Set(leaf.n)

	idx := len(path) - 1
	live := countOpenLeaves(leaf.n.Leaves)
	if idx == 0 && live == 0 {
		releasePath(path)
		if err := t.rootTree.CloseCurrentRoot(v); err != nil {
			return err
		}
		t.vCurrent = v
		return nil
	}
	if live < t.leafTh.WeakMin {
		if err := t.resolveOverflow(path, idx, v, true, root); err != nil {
			return err
		}
		t.vCurrent = v
		return nil
	}
	releasePath(path)
	t.vCurrent = v
	return nil
}

// Update atomically replaces key's live value with a new one at
// version v: semantically a delete immediately followed by an insert
// of the same key, executed as a single leaf mutation (§4.5.1).
func (t *Tree) Update(v node.Version, key node.Key, value []byte) error {
	if err := t.checkVersionOrder(v); err != nil {
		return err
	}
	return t.updateAt(v, key, value)
}

func (t *Tree) updateAt(v node.Version, key node.Key, value []byte) error {
	payload, err := EncodeRecord(key, value, t.cfg.PayloadSize)
	if err != nil {
		return err
	}
	root, err := t.rootTree.CurrentRoot()
	if err != nil {
		if isNotFound(err) {
			return merrors.NotFound("mvbt.Update", key)
		}
		return err
	}

	path, err := t.descend(root.Child, key, v, true)
	if err != nil {
		return err
	}
	leaf := &path[len(path)-1]
	found := false
	for i := range leaf.n.Leaves {
		e := &leaf.n.Leaves[i]
		if e.Lifespan.Open() && t.keyOf(e.Data) == key {
			e.Lifespan.End = v
			e.IsAlive = false
			found = true
			break
		}
	}
	if !found {
		releasePath(path)
		return merrors.NotFound("mvbt.Update", key)
	}
	leaf.n.Leaves = append(leaf.n.Leaves, node.LeafEntry{
		Lifespan: node.Lifespan{Begin: v, End: node.NoEnd},
		IsAlive:  true,
		Data:     payload,
	})
	leaf.n.SortLeaves(t.keyOf)
	leaf.h.Set(leaf.n)

	idx := len(path) - 1
	checkWeak := idx > 0
	needSplit := leaf.n.Count() > t.leafCap
	if !needSplit && checkWeak {
		if countOpenLeaves(leaf.n.Leaves) < t.leafTh.WeakMin {
			needSplit = true
		}
	}
	if needSplit {
		if err := t.resolveOverflow(path, idx, v, true, root); err != nil {
			return err
		}
	} else {
		leaf.h.Set(leaf.n)
		releasePath(path)
	}
	t.vCurrent = v
	return nil
}

// PointQuery returns the value live for key at version v, or
// (nil, false, nil) if no such entry exists.
func (t *Tree) PointQuery(v node.Version, key node.Key) ([]byte, bool, error) {
	root, err := t.rootTree.LocateRoot(v)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	path, err := t.descend(root.Child, key, v, false)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer releasePath(path)
	leaf := path[len(path)-1]
	for _, e := range leaf.n.Leaves {
		if e.Lifespan.IsAlive(v) && t.keyOf(e.Data) == key {
			_, value := DecodeRecord(e.Data)
			return value, true, nil
		}
	}
	return nil, false, nil
}

func (t *Tree) checkVersionOrder(v node.Version) error {
	if v <= t.nilVer {
		return merrors.VersionOrder("mvbt", v, t.vCurrent)
	}
	if t.vCurrent != t.nilVer && v <= t.vCurrent {
		return merrors.VersionOrder("mvbt", v, t.vCurrent)
	}
	return nil
}

func (t *Tree) createFirstLeaf(v node.Version, payload []byte) error {
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
	key := t.keyOf(payload)
	entry := node.IndexEntry{
		Child: id,
		Sep:   node.MVSeparator{Lifespan: node.Lifespan{Begin: v, End: node.NoEnd}, Key: key},
		WeightAlive: 1, WeightTotal: 1,
	}
	if t.vCurrent != t.nilVer {
		// A root closed by deleting the tree's last live entry has no
		// successor yet; chain this fresh root onto that era.
		prev, err := t.rootTree.LocateRoot(t.vCurrent - 1)
		if err == nil {
			prev.Sep.Lifespan.End = t.vCurrent
			err = t.linkRootEras(prev, entry)
		}
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	t.strat.OnRootChange()
	return t.rootTree.InstallNewRoot(v, entry)
}

// Flush writes every dirty buffered page (both the MVBT's own nodes
// and the Roots Tree's) through to the backing container (§4.2). This
// is the commit boundary callers should cross after a batch of
// mutations; nothing here is made durable automatically.
func (t *Tree) Flush() error {
	if err := t.nodes.Flush(); err != nil {
		return err
	}
	return t.rootTree.Flush()
}

// Close flushes and releases both containers. Idempotent; safe to
// call even if Flush already ran.
func (t *Tree) Close() error {
	var errs error
	if err := t.nodes.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := t.rootTree.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

func isNotFound(err error) bool {
	return merrors.IsNotFound(err)
}
