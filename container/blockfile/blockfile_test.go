package blockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateGetUpdateRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Allocate()
	require.NoError(t, err)

	data := make([]byte, 64)
	copy(data, "hello block")
	require.NoError(t, s.Update(id, data))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCompressedRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 256, Compress: true})
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Allocate()
	require.NoError(t, err)

	data := make([]byte, 256)
	for i := range data[:100] {
		data[i] = 'a'
	}
	require.NoError(t, s.Update(id, data))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRemoveThenGetIsNotFound(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Remove(id))

	_, err = s.Get(id)
	require.Error(t, err)
}

func TestRemovedBlockIsReusedOnNextAllocate(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Remove(id1))

	id2, err := s.Allocate()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestReopenPersistsBlocksAndFreeList(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)

	id, err := s.Allocate()
	require.NoError(t, err)
	data := make([]byte, 64)
	copy(data, "persisted")
	require.NoError(t, s.Update(id, data))
	require.NoError(t, s.Close())

	reopened, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestStatsReportsAllocatedInUse(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.Allocate()
	require.NoError(t, err)
	_, err = s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Remove(id1))

	st := s.Stats()
	require.Equal(t, uint64(2), st.NumBlocks)
	require.Equal(t, uint64(1), st.AllocatedInUse)
}

func TestCloseIsIdempotent(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tree")
	s, err := Open(base, Options{BlockSize: 64})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
