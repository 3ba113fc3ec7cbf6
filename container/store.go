// Package container defines the Block Container contract (§4.1): a
// mapping from opaque BlockId values to fixed-size byte blocks. Two
// realizations live in the memstore and blockfile subpackages; a
// third, production-grade realization lives in badgerstore.
package container

import "github.com/mvbtdb/mvbt/merrors"

// BlockId is the opaque identifier returned by Allocate and resolved
// by Get/Update/Remove. The zero value is never allocated.
type BlockId uint64

// BlockStore is the Block Container contract from §4.1. All methods
// are safe to call only from the single cooperative thread described
// in §5; callers must not rely on any internal synchronization.
type BlockStore interface {
	// BlockSize returns the fixed block size B_bytes this store was
	// configured with.
	BlockSize() int

	// Allocate returns a previously-unused BlockId, possibly reusing
	// one freed by Remove.
	Allocate() (BlockId, error)

	// Get returns exactly BlockSize() bytes for id, or a NotFound
	// error if id is unknown.
	Get(id BlockId) ([]byte, error)

	// Update overwrites the block at id. len(data) must equal
	// BlockSize().
	Update(id BlockId, data []byte) error

	// Remove marks id free for reuse; a subsequent Get(id) fails with
	// NotFound.
	Remove(id BlockId) error

	// Flush makes all buffered updates durable.
	Flush() error

	// Close implies Flush and is idempotent.
	Close() error
}

// CheckSize validates that data is exactly blockSize bytes, the
// precondition every realization's Update must enforce per §4.1.
func CheckSize(data []byte, blockSize int) error {
	if len(data) != blockSize {
		return merrors.Invariant("container.CheckSize", "block size mismatch")
	}
	return nil
}
