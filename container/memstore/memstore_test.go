package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container"
)

func TestAllocateGetUpdateRoundTrip(t *testing.T) {
	s := New(16)
	id, err := s.Allocate()
	require.NoError(t, err)

	data := make([]byte, 16)
	copy(data, "hello world")
	require.NoError(t, s.Update(id, data))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestGetUnknownIdIsNotFound(t *testing.T) {
	s := New(16)
	_, err := s.Get(999)
	require.Error(t, err)
}

func TestUpdateWrongSizeIsRejected(t *testing.T) {
	s := New(16)
	id, err := s.Allocate()
	require.NoError(t, err)
	err = s.Update(id, make([]byte, 8))
	require.Error(t, err)
}

func TestRemoveThenGetIsNotFound(t *testing.T) {
	s := New(16)
	id, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Remove(id))

	_, err = s.Get(id)
	require.Error(t, err)
}

func TestRemovedIdIsReusedByNextAllocate(t *testing.T) {
	s := New(16)
	id1, err := s.Allocate()
	require.NoError(t, err)
	require.NoError(t, s.Remove(id1))

	id2, err := s.Allocate()
	require.NoError(t, err)
	require.Equal(t, id1, id2, "freed block ids should be reused before growing")
}

func TestLenTracksLiveBlocks(t *testing.T) {
	s := New(16)
	require.Equal(t, 0, s.Len())
	id, err := s.Allocate()
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	require.NoError(t, s.Remove(id))
	require.Equal(t, 0, s.Len())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(16)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

var _ container.BlockStore = (*Store)(nil)
