package converter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container/memstore"
)

// stringCodec is a minimal fixed-width Codec[string] used only to
// exercise Container[T] without pulling in the node package's binary
// layout.
type stringCodec struct{}

func (stringCodec) Encode(v string, blockSize int) ([]byte, error) {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint16(buf[:2], uint16(len(v)))
	copy(buf[2:], v)
	return buf, nil
}

func (stringCodec) Decode(raw []byte, blockSize int) (string, error) {
	n := binary.LittleEndian.Uint16(raw[:2])
	return string(raw[2 : 2+int(n)]), nil
}

func TestPutGetRoundTrip(t *testing.T) {
	store := memstore.New(32)
	c := New[string](store, stringCodec{})

	id, err := c.Put("hello")
	require.NoError(t, err)

	got, err := c.Get(id)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestUpdateOverwritesValue(t *testing.T) {
	store := memstore.New(32)
	c := New[string](store, stringCodec{})

	id, err := c.Put("v1")
	require.NoError(t, err)
	require.NoError(t, c.Update(id, "v2"))

	got, err := c.Get(id)
	require.NoError(t, err)
	require.Equal(t, "v2", got)
}

func TestTagCodecRejectsWrongTag(t *testing.T) {
	store := memstore.New(33)
	a := New[string](store, TagCodec[string]{Tag: 0, Inner: stringCodec{}})
	b := New[string](store, TagCodec[string]{Tag: 1, Inner: stringCodec{}})

	id, err := a.Put("tagged as 0")
	require.NoError(t, err)

	_, err = b.Get(id)
	require.Error(t, err, "reading a tag-0 block through a tag-1 view must fail")
}

func TestTagCodecSharesOneStoreAcrossTags(t *testing.T) {
	store := memstore.New(33)
	a := New[string](store, TagCodec[string]{Tag: 0, Inner: stringCodec{}})
	b := New[string](store, TagCodec[string]{Tag: 1, Inner: stringCodec{}})

	idA, err := a.Put("from a")
	require.NoError(t, err)
	idB, err := b.Put("from b")
	require.NoError(t, err)

	gotA, err := a.Get(idA)
	require.NoError(t, err)
	require.Equal(t, "from a", gotA)

	gotB, err := b.Get(idB)
	require.NoError(t, err)
	require.Equal(t, "from b", gotB)
}
