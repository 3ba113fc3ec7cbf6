// Package node implements the MVBT's on-disk node types: versions,
// lifespans, key ranges, MV-separators/regions, leaf/index entries,
// and the Leaf/Index node container itself, with the binary wire
// format mandated by §6.
package node

import "math"

// Version is a totally ordered timestamp (§3).
type Version int64

// NilVersion marks "before any operation" (-infinity).
const NilVersion Version = math.MinInt64

// noEnd is the wire sentinel for an open (⊥) lifespan end.
const noEnd uint64 = math.MaxUint64

// Key is the totally ordered key type used by the running example
// (§3: "here a 64-bit integer... the design is parametric").
type Key int64

// KeyRange is a closed interval [Min, Max] of keys, used as a
// separator in the Roots Tree.
type KeyRange struct {
	Min Key
	Max Key
}

// Contains reports whether k falls within [Min, Max].
func (r KeyRange) Contains(k Key) bool {
	return k >= r.Min && k <= r.Max
}

// Overlaps reports whether r and o share any key.
func (r KeyRange) Overlaps(o KeyRange) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

// Lifespan is a half-open interval [Begin, End) of versions. End ==
// NoEnd means "still live" (open to +infinity). Invariant:
// Begin < End whenever End != NoEnd.
type Lifespan struct {
	Begin Version
	End   Version // NoEnd if open
}

// NoEnd is the logical (in-memory) value denoting an open lifespan
// end; it is distinct from the wire sentinel to keep the in-memory
// representation independent of the encoding.
const NoEnd Version = math.MaxInt64

// IsAlive reports whether the lifespan contains v, i.e. Begin <= v <
// End (or End is open).
func (l Lifespan) IsAlive(v Version) bool {
	if v < l.Begin {
		return false
	}
	return l.End == NoEnd || v < l.End
}

// Open reports whether the lifespan's end is still open.
func (l Lifespan) Open() bool { return l.End == NoEnd }

// Close returns a copy of l with its end set to v.
func (l Lifespan) Close(v Version) Lifespan {
	l.End = v
	return l
}

// Overlaps reports whether l and o overlap on the version axis.
func (l Lifespan) Overlaps(o Lifespan) bool {
	lEnd, oEnd := l.End, o.End
	if lEnd == NoEnd {
		lEnd = math.MaxInt64
	}
	if oEnd == NoEnd {
		oEnd = math.MaxInt64
	}
	return l.Begin < oEnd && o.Begin < lEnd
}

// MVRegion is Lifespan x KeyRange: the footprint of a historical root
// (§3).
type MVRegion struct {
	Lifespan Lifespan
	Keys     KeyRange
}

// MVSeparator is Lifespan x Key, used inside index entries to decide
// which child a (key, version) pair descends into (§3).
type MVSeparator struct {
	Lifespan Lifespan
	Key      Key
}
