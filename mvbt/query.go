package mvbt

import (
	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/cursor"
	"github.com/mvbtdb/mvbt/node"
)

// RangeQuery returns every record live at version v whose key falls
// in [lo, hi], ascending by key. Per §9's design note this returns a
// lazy-sequence Cursor; the implementation materializes the result
// set eagerly via a single treewalk and hands it back wrapped in a
// cursor.Slice, trading a fully pull-driven walk for a much simpler
// (and, for the result sizes this engine targets, cheap enough)
// implementation.
func (t *Tree) RangeQuery(v node.Version, lo, hi node.Key) (cursor.Cursor[Pair], error) {
	root, err := t.rootTree.LocateRoot(v)
	if err != nil {
		if isNotFound(err) {
			return cursor.NewSlice[Pair](nil), nil
		}
		return nil, err
	}
	var out []Pair
	if err := t.collectRange(root.Child, v, lo, hi, &out); err != nil {
		return nil, err
	}
	return cursor.NewSlice(out), nil
}

func (t *Tree) collectRange(id container.BlockId, v node.Version, lo, hi node.Key, out *[]Pair) error {
	h, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	n := h.Value()
	if n.IsLeaf() {
		for _, e := range n.Leaves {
			if !e.Lifespan.IsAlive(v) {
				continue
			}
			k := t.keyOf(e.Data)
			if k < lo || k > hi {
				continue
			}
			_, value := DecodeRecord(e.Data)
			*out = append(*out, Pair{Key: k, Value: value, Lifespan: e.Lifespan})
		}
		h.Release()
		return nil
	}

	var alive []int
	for i, e := range n.Indexes {
		if e.Sep.Lifespan.IsAlive(v) {
			alive = append(alive, i)
		}
	}
	children := make([]container.BlockId, 0, len(alive))
	for pos, i := range alive {
		low := n.Indexes[i].Sep.Key
		if low > hi {
			break
		}
		high := node.Key(1<<63 - 1)
		if pos+1 < len(alive) {
			high = n.Indexes[alive[pos+1]].Sep.Key
		}
		if high < lo {
			continue
		}
		children = append(children, n.Indexes[i].Child)
	}
	h.Release()

	for _, c := range children {
		if err := t.collectRange(c, v, lo, hi, out); err != nil {
			return err
		}
	}
	return nil
}

// TimeRangeQuery returns every record whose key falls in [lo, hi] and
// whose lifespan overlaps [vlo, vhi) (§4.5's time-range query). Unlike
// RangeQuery, a single key may appear multiple times in the result:
// once per historical version of that record whose lifespan overlaps
// the requested window.
//
// A root that was replaced by a later version or key split is no
// longer reachable from the live root's Indexes, even though its
// subtree is still fully intact on disk, so this does not stop at
// CurrentRoot(): it walks every historical root era backward via the
// LeftLink chain installNewRoot wires on every root change (§3),
// visiting each era whose own lifespan overlaps the window.
//
// Version/key splits copy an entry's own lifespan forward unchanged
// (only a delete ever closes one), so an entry that is still live
// today is reachable both through the current era and through every
// older, now-superseded era in which it was already live. Walking
// every overlapping era would otherwise report it once per era; seen
// dedupes by (key, lifespan) so each historical fact is reported once.
func (t *Tree) TimeRangeQuery(lo, hi node.Key, vlo, vhi node.Version) (cursor.Cursor[Pair], error) {
	root, err := t.rootTree.CurrentRoot()
	if err != nil && isNotFound(err) && t.vCurrent != t.nilVer {
		// Deleting the tree's last live entry closes its root without a
		// successor; that era still holds the history up to v_current.
		root, err = t.rootTree.LocateRoot(t.vCurrent - 1)
	}
	if err != nil {
		if isNotFound(err) {
			return cursor.NewSlice[Pair](nil), nil
		}
		return nil, err
	}
	window := node.Lifespan{Begin: vlo, End: vhi}
	var out []Pair
	seen := make(map[trKey]bool)
	era := root
	for {
		if era.Sep.Lifespan.Overlaps(window) {
			if err := t.collectTimeRange(era.Child, window, lo, hi, seen, &out); err != nil {
				return nil, err
			}
		}
		// Eras are contiguous and strictly non-increasing in time walking
		// backward, so once one ends at or before vlo nothing further
		// back can overlap either.
		if !era.Sep.Lifespan.Open() && era.Sep.Lifespan.End <= vlo {
			break
		}
		h, err := t.nodes.Get(era.Child)
		if err != nil {
			return nil, err
		}
		prev := h.Value().LeftLink
		h.Release()
		if prev.IsZero() {
			break
		}
		era = prev
	}
	return cursor.NewSlice(out), nil
}

// trKey identifies one historical fact (a key's lifespan) regardless
// of how many physical node copies still carry it forward.
type trKey struct {
	Key        node.Key
	Begin, End node.Version
}

func (t *Tree) collectTimeRange(id container.BlockId, window node.Lifespan, lo, hi node.Key, seen map[trKey]bool, out *[]Pair) error {
	h, err := t.nodes.Get(id)
	if err != nil {
		return err
	}
	n := h.Value()
	if n.IsLeaf() {
		for _, e := range n.Leaves {
			if !e.Lifespan.Overlaps(window) {
				continue
			}
			k := t.keyOf(e.Data)
			if k < lo || k > hi {
				continue
			}
			dk := trKey{Key: k, Begin: e.Lifespan.Begin, End: e.Lifespan.End}
			if seen[dk] {
				continue
			}
			seen[dk] = true
			_, value := DecodeRecord(e.Data)
			*out = append(*out, Pair{Key: k, Value: value, Lifespan: e.Lifespan})
		}
		h.Release()
		return nil
	}

	var children []container.BlockId
	for i, e := range n.Indexes {
		if !e.Sep.Lifespan.Overlaps(window) {
			continue
		}
		low := e.Sep.Key
		high, ok := nextDistinctKey(n.Indexes, i)
		if low > hi {
			continue
		}
		if ok && high <= lo {
			continue
		}
		children = append(children, e.Child)
	}
	h.Release()

	for _, c := range children {
		if err := t.collectTimeRange(c, window, lo, hi, seen, out); err != nil {
			return err
		}
	}
	return nil
}

// nextDistinctKey scans forward from i for the next entry with a
// different key, approximating the subtree's key upper bound across a
// span of time in which the same key slot may have been re-split
// several times (entries cluster by key even though they are not
// lifespan-sorted).
func nextDistinctKey(entries []node.IndexEntry, i int) (node.Key, bool) {
	for j := i + 1; j < len(entries); j++ {
		if entries[j].Sep.Key != entries[i].Sep.Key {
			return entries[j].Sep.Key, true
		}
	}
	return 0, false
}
