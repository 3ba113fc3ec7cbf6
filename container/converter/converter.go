// Package converter implements the Converter Container (C2): it wraps
// a raw Block Container and attaches exactly one serializer at
// construction time, so callers read and write typed values instead
// of opaque blocks. Distinct Container[T] instances are used for MVBT
// nodes and for Roots-Tree nodes, per §4.2; when both share one
// underlying BlockStore, TagCodec distinguishes the variants with a
// one-byte prefix, per §5.
package converter

import (
	"github.com/mvbtdb/mvbt/container"
)

// Codec encodes/decodes a typed value to/from exactly blockSize
// bytes. Encoding must be deterministic and position-preserving:
// Decode(Encode(v)) == v.
type Codec[T any] interface {
	Encode(v T, blockSize int) ([]byte, error)
	Decode(raw []byte, blockSize int) (T, error)
}

// Container is the Converter Container: a typed view over a
// container.BlockStore.
type Container[T any] struct {
	store container.BlockStore
	codec Codec[T]
}

// New builds a Converter Container over store using codec.
func New[T any](store container.BlockStore, codec Codec[T]) *Container[T] {
	return &Container[T]{store: store, codec: codec}
}

// Allocate reserves a new block id without writing a value to it yet.
func (c *Container[T]) Allocate() (container.BlockId, error) {
	return c.store.Allocate()
}

// Get decodes the value stored at id.
func (c *Container[T]) Get(id container.BlockId) (T, error) {
	var zero T
	raw, err := c.store.Get(id)
	if err != nil {
		return zero, err
	}
	return c.codec.Decode(raw, c.store.BlockSize())
}

// Update encodes v and writes it at id.
func (c *Container[T]) Update(id container.BlockId, v T) error {
	raw, err := c.codec.Encode(v, c.store.BlockSize())
	if err != nil {
		return err
	}
	return c.store.Update(id, raw)
}

// Put allocates a fresh id and writes v to it.
func (c *Container[T]) Put(v T) (container.BlockId, error) {
	id, err := c.Allocate()
	if err != nil {
		return 0, err
	}
	if err := c.Update(id, v); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Container[T]) Remove(id container.BlockId) error { return c.store.Remove(id) }
func (c *Container[T]) Flush() error                       { return c.store.Flush() }
func (c *Container[T]) Close() error                        { return c.store.Close() }
func (c *Container[T]) BlockSize() int                      { return c.store.BlockSize() }

// TagCodec wraps an inner codec that operates on (blockSize-1) bytes,
// prefixing/validating a one-byte tag so multiple node varieties can
// share the same BlockStore (§5).
type TagCodec[T any] struct {
	Tag   byte
	Inner Codec[T]
}

func (t TagCodec[T]) Encode(v T, blockSize int) ([]byte, error) {
	inner, err := t.Inner.Encode(v, blockSize-1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, blockSize)
	out[0] = t.Tag
	copy(out[1:], inner)
	return out, nil
}

func (t TagCodec[T]) Decode(raw []byte, blockSize int) (T, error) {
	var zero T
	if raw[0] != t.Tag {
		return zero, errWrongTag
	}
	return t.Inner.Decode(raw[1:], blockSize-1)
}

var errWrongTag = &tagMismatchError{}

type tagMismatchError struct{}

func (*tagMismatchError) Error() string { return "converter: block tag does not match codec" }
