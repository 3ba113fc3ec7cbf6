// Package badgerstore is a production-grade Block Container
// realization backed by github.com/dgraph-io/badger/v2, the way the
// teacher backs its node database with Badger. Each BlockId maps to
// a 9-byte key (a 0x01 prefix byte plus the big-endian id); values
// are exactly B_bytes. A background
// GC worker periodically reclaims space from removed blocks, mirroring
// the teacher's cmnBadger.GCWorker.
package badgerstore

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v2"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/internal/logging"
	"github.com/mvbtdb/mvbt/merrors"
)

var log = logging.GetLogger("container/badgerstore")

const nextIDKey = "\x00mvbt:next-id"

// Store is a Badger-backed BlockStore.
type Store struct {
	db        *badger.DB
	blockSize int
	nextID    uint64

	gcStop chan struct{}
	gcDone chan struct{}
	closed int32
}

// Options configures Open.
type Options struct {
	BlockSize int
	// Dir is the Badger data directory. Empty means in-memory.
	Dir string
	// GCInterval controls how often value-log GC runs; zero disables it.
	GCInterval time.Duration
}

// Open opens (or creates) a Badger-backed block store.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, merrors.IO("badgerstore.Open", err)
	}

	s := &Store{db: db, blockSize: opts.BlockSize, nextID: 1}
	if err := s.loadNextID(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.GCInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(opts.GCInterval)
	}

	return s, nil
}

func (s *Store) loadNextID() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(nextIDKey))
		switch err {
		case nil:
			return item.Value(func(val []byte) error {
				s.nextID = binary.BigEndian.Uint64(val)
				return nil
			})
		case badger.ErrKeyNotFound:
			return nil
		default:
			return merrors.IO("badgerstore.loadNextID", err)
		}
	})
}

func (s *Store) saveNextID(txn *badger.Txn) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, s.nextID)
	return txn.Set([]byte(nextIDKey), buf)
}

func keyFor(id container.BlockId) []byte {
	buf := make([]byte, 9)
	buf[0] = 0x01
	binary.BigEndian.PutUint64(buf[1:], uint64(id))
	return buf
}

func (s *Store) BlockSize() int { return s.blockSize }

func (s *Store) Allocate() (container.BlockId, error) {
	var id container.BlockId
	err := s.db.Update(func(txn *badger.Txn) error {
		id = container.BlockId(s.nextID)
		s.nextID++
		if err := s.saveNextID(txn); err != nil {
			return err
		}
		return txn.Set(keyFor(id), make([]byte, s.blockSize))
	})
	if err != nil {
		return 0, merrors.IO("badgerstore.Allocate", err)
	}
	return id, nil
}

func (s *Store) Get(id container.BlockId) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFor(id))
		if err == badger.ErrKeyNotFound {
			return merrors.NotFound("badgerstore.Get", id)
		}
		if err != nil {
			return merrors.IO("badgerstore.Get", err)
		}
		return item.Value(func(val []byte) error {
			out = make([]byte, len(val))
			copy(out, val)
			return nil
		})
	})
	return out, err
}

func (s *Store) Update(id container.BlockId, data []byte) error {
	if err := container.CheckSize(data, s.blockSize); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFor(id)); err == badger.ErrKeyNotFound {
			return merrors.NotFound("badgerstore.Update", id)
		} else if err != nil {
			return merrors.IO("badgerstore.Update", err)
		}
		return txn.Set(keyFor(id), data)
	})
	return err
}

func (s *Store) Remove(id container.BlockId) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFor(id)); err == badger.ErrKeyNotFound {
			return merrors.NotFound("badgerstore.Remove", id)
		} else if err != nil {
			return merrors.IO("badgerstore.Remove", err)
		}
		return txn.Delete(keyFor(id))
	})
	return err
}

func (s *Store) Flush() error {
	if err := s.db.Sync(); err != nil {
		return merrors.IO("badgerstore.Flush", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	if err := s.db.Close(); err != nil {
		return merrors.IO("badgerstore.Close", err)
	}
	return nil
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
		again:
			err := s.db.RunValueLogGC(0.5)
			if err == nil {
				goto again
			}
			if err != badger.ErrNoRewrite {
				log.Warn("value log GC failed", "err", err)
			}
		}
	}
}
