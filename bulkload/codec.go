package bulkload

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/mvbtdb/mvbt/merrors"
)

// batchCodec CBOR-encodes a Batch into a fixed-width block, the way
// the oasis-core storage worker CBOR-encodes its own write-ahead log
// entries before spooling them to disk. Unused tail bytes are zero
// padded; Decode trims them back off by reading only a valid CBOR
// prefix.
type batchCodec struct{}

func (batchCodec) Encode(v Batch, blockSize int) ([]byte, error) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return nil, merrors.Invariant("bulkload.batchCodec.Encode", err.Error())
	}
	if len(raw) > blockSize {
		return nil, merrors.Invariant("bulkload.batchCodec.Encode", "batch exceeds queue block size")
	}
	buf := make([]byte, blockSize)
	copy(buf, raw)
	return buf, nil
}

func (batchCodec) Decode(raw []byte, blockSize int) (Batch, error) {
	var v Batch
	// raw is zero-padded out to blockSize; UnmarshalFirst stops after
	// the single well-formed CBOR item instead of rejecting the
	// trailing padding as extra data.
	if _, err := cbor.UnmarshalFirst(raw, &v); err != nil {
		return nil, merrors.Invariant("bulkload.batchCodec.Decode", err.Error())
	}
	return v, nil
}
