package badgerstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container"
)

func TestAllocateGetUpdateRoundTrip(t *testing.T) {
	s, err := Open(Options{BlockSize: 32})
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Allocate()
	require.NoError(t, err)

	data := make([]byte, 32)
	copy(data, "badger value")
	require.NoError(t, s.Update(id, data))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestGetUnknownIdIsNotFound(t *testing.T) {
	s, err := Open(Options{BlockSize: 32})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(container.BlockId(999))
	require.Error(t, err)
}

func TestUpdateUnknownIdIsNotFound(t *testing.T) {
	s, err := Open(Options{BlockSize: 32})
	require.NoError(t, err)
	defer s.Close()

	err = s.Update(container.BlockId(999), make([]byte, 32))
	require.Error(t, err)
}

func TestRemoveThenGetIsNotFound(t *testing.T) {
	s, err := Open(Options{BlockSize: 32})
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Remove(id))

	_, err = s.Get(id)
	require.Error(t, err)
}

func TestAllocateAssignsDistinctIncreasingIds(t *testing.T) {
	s, err := Open(Options{BlockSize: 32})
	require.NoError(t, err)
	defer s.Close()

	id1, err := s.Allocate()
	require.NoError(t, err)
	id2, err := s.Allocate()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
	require.Greater(t, id2, id1)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Open(Options{BlockSize: 32})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestGCWorkerStopsOnClose(t *testing.T) {
	s, err := Open(Options{BlockSize: 32, GCInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, s.Close())
}
