package node

import (
	"encoding/binary"
	"sort"

	"github.com/mvbtdb/mvbt/merrors"
)

// headerSize is level(u16) + count(u16) + leftLink + rightLink,
// per §4.3/§6.
const headerSize = 2 + 2 + indexEntrySize*2

// Config fixes the physical layout parameters shared by every node
// of a tree: the block size nodes are serialized into, the fixed
// width of a leaf entry's payload, and the D/E occupancy ratios from
// §3. Per-node-class capacities (LeafCapacity/IndexCapacity) and the
// cached threshold counts are derived once here and never recomputed,
// per §4.5.5.
type Config struct {
	BlockSize   int
	PayloadSize int
	D, E        float64
}

// Epsilon is ε = (E-D)/2 per §9's resolution of the unspecified
// strong-version-condition constant.
func (c Config) Epsilon() float64 { return (c.E - c.D) / 2 }

// LeafCapacity is the physical capacity B for leaf nodes, derived
// from (B_bytes - header_size) / entry_size at init (§4.3).
func (c Config) LeafCapacity() int {
	return (c.BlockSize - headerSize) / leafEntrySize(c.PayloadSize)
}

// IndexCapacity is the physical capacity B for index nodes.
func (c Config) IndexCapacity() int {
	return (c.BlockSize - headerSize) / indexEntrySize
}

// Thresholds are the cached, rounded occupancy counts for a node
// class's capacity B, computed once at init per §4.5.5.
type Thresholds struct {
	B int
	// WeakMin = ceil(E*B): below this a live leaf/index node (non-root)
	// must undergo a version split.
	WeakMin int
	// StrongMergeMin = ceil((D+eps)*B): a version split yielding fewer
	// live entries than this must also merge with a sibling.
	StrongMergeMin int
	// StrongSplitMax = floor((1-eps)*B): a version split yielding more
	// live entries than this must also key-split.
	StrongSplitMax int
}

func ceilRatio(ratio float64, b int) int {
	v := ratio * float64(b)
	iv := int(v)
	if float64(iv) < v {
		iv++
	}
	return iv
}

func floorRatio(ratio float64, b int) int {
	return int(ratio * float64(b))
}

// ComputeThresholds caches the §4.5.5 rounded counts for a capacity B.
func (c Config) ComputeThresholds(b int) Thresholds {
	eps := c.Epsilon()
	return Thresholds{
		B:              b,
		WeakMin:        ceilRatio(c.E, b),
		StrongMergeMin: ceilRatio(c.D+eps, b),
		StrongSplitMax: floorRatio(1-eps, b),
	}
}

// Node is either a Leaf (Level == 0) or an Index node (Level > 0).
// Entries are kept sorted by (key, lifespan.begin); leaf and index
// slices are mutually exclusive depending on Level.
type Node struct {
	Level uint16
	// LeftLink and RightLink are the back-pointer pair from §3, but
	// only ever populated on a node that has served as a tree root: when
	// a root is replaced, the new root's LeftLink is set to the
	// superseded root's IndexEntry (lifespan closed at the switch
	// version) and the superseded root's RightLink is set to the new
	// one, forming a doubly-linked chain of historical root eras that
	// TimeRangeQuery walks independently of the Roots Tree's own
	// point lookup. Zero on every non-root node.
	LeftLink  IndexEntry
	RightLink IndexEntry

	Leaves  []LeafEntry // populated iff Level == 0
	Indexes []IndexEntry
}

func (n *Node) IsLeaf() bool { return n.Level == 0 }

// Count is the number of entries (leaf or index) currently stored.
func (n *Node) Count() int {
	if n.IsLeaf() {
		return len(n.Leaves)
	}
	return len(n.Indexes)
}

// SortLeaves restores the (key, lifespan.begin) ordering invariant
// after a mutation. keyOf extracts the key from a leaf entry's
// payload (the core owns the key extractor; node stays payload-agnostic).
func (n *Node) SortLeaves(keyOf func(data []byte) Key) {
	sort.SliceStable(n.Leaves, func(i, j int) bool {
		ki, kj := keyOf(n.Leaves[i].Data), keyOf(n.Leaves[j].Data)
		if ki != kj {
			return ki < kj
		}
		return n.Leaves[i].Lifespan.Begin < n.Leaves[j].Lifespan.Begin
	})
}

// SortIndexes restores key ordering among index entries.
func (n *Node) SortIndexes() {
	sort.SliceStable(n.Indexes, func(i, j int) bool {
		return n.Indexes[i].Sep.Key < n.Indexes[j].Sep.Key
	})
}

// MarshalBinary encodes n into exactly cfg.BlockSize bytes per the
// §6 wire format: [level|count|left_link|right_link|entries...].
func (n *Node) MarshalBinary(cfg Config) ([]byte, error) {
	buf := make([]byte, cfg.BlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], n.Level)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(n.Count()))
	encodeIndexEntry(buf[4:4+indexEntrySize], n.LeftLink)
	encodeIndexEntry(buf[4+indexEntrySize:4+2*indexEntrySize], n.RightLink)

	off := headerSize
	if n.IsLeaf() {
		size := leafEntrySize(cfg.PayloadSize)
		if off+len(n.Leaves)*size > cfg.BlockSize {
			return nil, merrors.Invariant("node.MarshalBinary", "leaf node exceeds block capacity")
		}
		for _, e := range n.Leaves {
			encodeLeafEntry(buf[off:off+size], e, cfg.PayloadSize)
			off += size
		}
	} else {
		if off+len(n.Indexes)*indexEntrySize > cfg.BlockSize {
			return nil, merrors.Invariant("node.MarshalBinary", "index node exceeds block capacity")
		}
		for _, e := range n.Indexes {
			encodeIndexEntry(buf[off:off+indexEntrySize], e)
			off += indexEntrySize
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes raw (exactly cfg.BlockSize bytes) into n.
func (n *Node) UnmarshalBinary(raw []byte, cfg Config) error {
	if len(raw) != cfg.BlockSize {
		return merrors.Invariant("node.UnmarshalBinary", "block size mismatch")
	}
	n.Level = binary.LittleEndian.Uint16(raw[0:2])
	count := int(binary.LittleEndian.Uint16(raw[2:4]))
	n.LeftLink = decodeIndexEntry(raw[4 : 4+indexEntrySize])
	n.RightLink = decodeIndexEntry(raw[4+indexEntrySize : 4+2*indexEntrySize])

	off := headerSize
	if n.IsLeaf() {
		size := leafEntrySize(cfg.PayloadSize)
		n.Leaves = make([]LeafEntry, count)
		n.Indexes = nil
		for i := 0; i < count; i++ {
			n.Leaves[i] = decodeLeafEntry(raw[off:off+size], cfg.PayloadSize)
			off += size
		}
	} else {
		n.Indexes = make([]IndexEntry, count)
		n.Leaves = nil
		for i := 0; i < count; i++ {
			n.Indexes[i] = decodeIndexEntry(raw[off : off+indexEntrySize])
			off += indexEntrySize
		}
	}
	return nil
}
