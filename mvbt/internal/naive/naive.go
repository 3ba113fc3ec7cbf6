// Package naive implements a trivial, unbounded reference tree used
// only by tests as the oracle for bulk-load agreement (test
// properties S4/S8): an in-memory map keyed by key, holding every
// historical value with its lifespan, checked by straight linear
// insert/delete instead of any of the MVBT's own split/merge machinery.
// Mirrors the pattern of computing an expected result via a second,
// simpler code path rather than re-checking the engine against itself.
package naive

import "github.com/mvbtdb/mvbt/node"

type record struct {
	value    []byte
	lifespan node.Lifespan
}

// Tree is the naive oracle.
type Tree struct {
	byKey map[node.Key][]record
}

// New returns an empty oracle.
func New() *Tree {
	return &Tree{byKey: make(map[node.Key][]record)}
}

// Insert appends a new live record for k, open-ended from v.
func (t *Tree) Insert(v node.Version, k node.Key, value []byte) {
	t.byKey[k] = append(t.byKey[k], record{
		value:    append([]byte(nil), value...),
		lifespan: node.Lifespan{Begin: v, End: node.NoEnd},
	})
}

// Delete closes k's currently live record's lifespan at v, if any.
func (t *Tree) Delete(v node.Version, k node.Key) {
	recs := t.byKey[k]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].lifespan.Open() {
			recs[i].lifespan.End = v
			return
		}
	}
}

// Update closes k's live record at v and inserts a new one, same as
// the engine's atomic close-then-append semantics.
func (t *Tree) Update(v node.Version, k node.Key, value []byte) {
	t.Delete(v, k)
	t.Insert(v, k, value)
}

// PointQuery returns the value live for k at version v.
func (t *Tree) PointQuery(v node.Version, k node.Key) ([]byte, bool) {
	recs := t.byKey[k]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].lifespan.IsAlive(v) {
			return recs[i].value, true
		}
	}
	return nil, false
}

// Keys returns every key ever inserted, for tests that want to sweep
// point_query across the whole keyspace.
func (t *Tree) Keys() []node.Key {
	keys := make([]node.Key, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	return keys
}
