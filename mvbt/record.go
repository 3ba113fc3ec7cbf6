// Package mvbt implements the MVBT Core (C6): version-aware
// insert/delete/update, the leaf/index split-merge-version-split
// rules of §4.5, and the point/range/time-range query protocols.
package mvbt

import (
	"encoding/binary"

	"github.com/mvbtdb/mvbt/merrors"
	"github.com/mvbtdb/mvbt/node"
)

// EncodeRecord packs (key, value) into a fixed-width payload of
// payloadSize bytes: [key:8 LE][valueLen:2 LE][value...zero-padded].
// This is the concrete, fixed-width realization of §1's "opaque
// byte-serializable records with an extractable key" used by this
// repository's running example.
func EncodeRecord(key node.Key, value []byte, payloadSize int) ([]byte, error) {
	const header = 10
	if header+len(value) > payloadSize {
		return nil, merrors.Invariant("mvbt.EncodeRecord", "value too large for configured payload size")
	}
	buf := make([]byte, payloadSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(key))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(value)))
	copy(buf[header:], value)
	return buf, nil
}

// DecodeRecord extracts (key, value) from a payload built by
// EncodeRecord.
func DecodeRecord(payload []byte) (node.Key, []byte) {
	key := node.Key(binary.LittleEndian.Uint64(payload[0:8]))
	n := binary.LittleEndian.Uint16(payload[8:10])
	value := make([]byte, n)
	copy(value, payload[10:10+int(n)])
	return key, value
}

// Pair is a materialized (key, value, lifespan) result row returned
// by range and time-range queries.
type Pair struct {
	Key      node.Key
	Value    []byte
	Lifespan node.Lifespan
}
