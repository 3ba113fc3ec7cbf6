package node

import (
	"encoding/binary"

	"github.com/mvbtdb/mvbt/container"
)

// LeafEntry is (data, lifespan, isAlive) per §3. Data carries an
// extractable key (see EncodeRecord in package mvbt); IsAlive is derivable
// from End == NoEnd but is stored explicitly for compactness, as the
// spec calls for.
type LeafEntry struct {
	Lifespan Lifespan
	IsAlive  bool
	Data     []byte
}

// IndexEntry points to a child node, carrying the MV-separator that
// decides descent and the weights used by the bulk loader and
// weight-balance invariants (§4.3).
type IndexEntry struct {
	Child       container.BlockId
	Sep         MVSeparator
	WeightAlive uint32
	WeightTotal uint32
}

// IsZero reports whether e is the zero-value index entry, used for
// link-entry slots that have never been set.
func (e IndexEntry) IsZero() bool {
	return e.Child == 0 && e.WeightAlive == 0 && e.WeightTotal == 0
}

const indexEntrySize = 8 /*child*/ + 8 /*begin*/ + 8 /*end*/ + 8 /*key*/ + 4 /*weightAlive*/ + 4 /*weightTotal*/

func encodeIndexEntry(buf []byte, e IndexEntry) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Child))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Sep.Lifespan.Begin))
	putVersionEnd(buf[16:24], e.Sep.Lifespan.End)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(e.Sep.Key))
	binary.LittleEndian.PutUint32(buf[32:36], e.WeightAlive)
	binary.LittleEndian.PutUint32(buf[36:40], e.WeightTotal)
}

func decodeIndexEntry(buf []byte) IndexEntry {
	return IndexEntry{
		Child: container.BlockId(binary.LittleEndian.Uint64(buf[0:8])),
		Sep: MVSeparator{
			Lifespan: Lifespan{
				Begin: Version(binary.LittleEndian.Uint64(buf[8:16])),
				End:   getVersionEnd(buf[16:24]),
			},
			Key: Key(binary.LittleEndian.Uint64(buf[24:32])),
		},
		WeightAlive: binary.LittleEndian.Uint32(buf[32:36]),
		WeightTotal: binary.LittleEndian.Uint32(buf[36:40]),
	}
}

func leafEntrySize(payloadSize int) int {
	return 8 /*begin*/ + 8 /*end*/ + 1 /*isAlive*/ + payloadSize
}

func encodeLeafEntry(buf []byte, e LeafEntry, payloadSize int) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Lifespan.Begin))
	putVersionEnd(buf[8:16], e.Lifespan.End)
	if e.IsAlive {
		buf[16] = 1
	} else {
		buf[16] = 0
	}
	copy(buf[17:17+payloadSize], e.Data)
}

func decodeLeafEntry(buf []byte, payloadSize int) LeafEntry {
	data := make([]byte, payloadSize)
	copy(data, buf[17:17+payloadSize])
	return LeafEntry{
		Lifespan: Lifespan{
			Begin: Version(binary.LittleEndian.Uint64(buf[0:8])),
			End:   getVersionEnd(buf[8:16]),
		},
		IsAlive: buf[16] != 0,
		Data:    data,
	}
}

func putVersionEnd(buf []byte, v Version) {
	if v == NoEnd {
		binary.LittleEndian.PutUint64(buf, noEnd)
		return
	}
	binary.LittleEndian.PutUint64(buf, uint64(v))
}

func getVersionEnd(buf []byte) Version {
	raw := binary.LittleEndian.Uint64(buf)
	if raw == noEnd {
		return NoEnd
	}
	return Version(raw)
}
