package buffered

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/converter"
	"github.com/mvbtdb/mvbt/container/memstore"
)

type intCodec struct{}

func (intCodec) Encode(v int, blockSize int) ([]byte, error) {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(buf[:8], uint64(v))
	return buf, nil
}

func (intCodec) Decode(raw []byte, blockSize int) (int, error) {
	return int(binary.LittleEndian.Uint64(raw[:8])), nil
}

func newBuffered(t *testing.T, capacity int) *Container[int] {
	t.Helper()
	store := memstore.New(16)
	conv := converter.New[int](store, intCodec{})
	return New[int](conv, capacity)
}

func TestAllocateGetReleaseRoundTrip(t *testing.T) {
	c := newBuffered(t, 4)
	id, h, err := c.Allocate(42)
	require.NoError(t, err)
	require.Equal(t, 42, h.Value())
	h.Release()

	h2, err := c.Get(id)
	require.NoError(t, err)
	require.Equal(t, 42, h2.Value())
	h2.Release()
	require.NoError(t, c.CheckAllReleased())
}

func TestSetMarksPageDirtyAndPersistsOnFlush(t *testing.T) {
	c := newBuffered(t, 4)
	id, h, err := c.Allocate(1)
	require.NoError(t, err)
	h.Set(2)
	h.Release()

	require.NoError(t, c.Flush())

	h2, err := c.Get(id)
	require.NoError(t, err)
	require.Equal(t, 2, h2.Value())
	h2.Release()
}

func TestEvictionWritesBackDirtyUnpinnedPages(t *testing.T) {
	c := newBuffered(t, 2)
	var ids []container.BlockId
	for i := 0; i < 5; i++ {
		id, h, err := c.Allocate(i)
		require.NoError(t, err)
		h.Release()
		ids = append(ids, id)
	}
	// All pages were released immediately, so eviction should have kept
	// the buffer within capacity without losing any value.
	for i, id := range ids {
		h, err := c.Get(id)
		require.NoError(t, err)
		require.Equal(t, i, h.Value())
		h.Release()
	}
}

func TestPinnedPageSurvivesEvictionPressure(t *testing.T) {
	c := newBuffered(t, 1)
	_, h1, err := c.Allocate(100)
	require.NoError(t, err)
	// h1 stays pinned; allocating more pages must not evict it.
	_, h2, err := c.Allocate(200)
	require.NoError(t, err)
	require.Equal(t, 100, h1.Value())
	h1.Release()
	h2.Release()
}

func TestCloseIsIdempotentAndFlushesDirtyPages(t *testing.T) {
	store := memstore.New(16)
	c := New[int](converter.New[int](store, intCodec{}), 4)
	id, h, err := c.Allocate(7)
	require.NoError(t, err)
	h.Release()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	raw, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(7), binary.LittleEndian.Uint64(raw[:8]))
}
