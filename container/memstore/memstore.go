// Package memstore implements the volatile, in-memory Block Container
// realization (§4.1(a)): used by tests and as bulk-load scratch
// space. Blocks are kept in a cznic/b ordered tree, keyed by BlockId,
// rather than a plain Go map, so iteration order is deterministic.
// Removed ids go on a free list that Allocate reuses
// most-recently-freed first.
package memstore

import (
	"sync"

	"github.com/cznic/b"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/merrors"
)

func cmpBlockId(a, b2 interface{}) int {
	x, y := a.(container.BlockId), b2.(container.BlockId)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// Store is an in-memory BlockStore.
type Store struct {
	mu        sync.Mutex
	blockSize int
	blocks    *b.Tree
	free      []container.BlockId
	nextID    container.BlockId
	closed    bool
}

// New creates an empty in-memory store with the given fixed block
// size.
func New(blockSize int) *Store {
	return &Store{
		blockSize: blockSize,
		blocks:    b.TreeNew(cmpBlockId),
		nextID:    1,
	}
}

func (s *Store) BlockSize() int { return s.blockSize }

func (s *Store) Allocate() (container.BlockId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id container.BlockId
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		id = s.nextID
		s.nextID++
	}
	s.blocks.Set(id, make([]byte, s.blockSize))
	return id, nil
}

func (s *Store) Get(id container.BlockId) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.blocks.Get(id)
	if !ok {
		return nil, merrors.NotFound("memstore.Get", id)
	}
	out := make([]byte, s.blockSize)
	copy(out, v.([]byte))
	return out, nil
}

func (s *Store) Update(id container.BlockId, data []byte) error {
	if err := container.CheckSize(data, s.blockSize); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks.Get(id); !ok {
		return merrors.NotFound("memstore.Update", id)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks.Set(id, cp)
	return nil
}

func (s *Store) Remove(id container.BlockId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.blocks.Delete(id) {
		return merrors.NotFound("memstore.Remove", id)
	}
	s.free = append(s.free, id)
	return nil
}

// Flush is a no-op: every write is already durable in process memory.
func (s *Store) Flush() error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of live (non-removed) blocks, for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks.Len()
}
