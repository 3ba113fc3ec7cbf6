package roots

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/buffered"
	"github.com/mvbtdb/mvbt/container/converter"
	"github.com/mvbtdb/mvbt/container/memstore"
	"github.com/mvbtdb/mvbt/node"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	store := memstore.New(256)
	cfg := node.Config{BlockSize: 256, PayloadSize: PayloadSize, D: 0.25, E: 0.5}
	conv := converter.New[*node.Node](store, node.Codec{Cfg: cfg})
	nodes := buffered.New[*node.Node](conv, 32)
	return New(nodes, 256, nil)
}

func TestEmptyTreeCurrentRootIsNotFound(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.CurrentRoot()
	require.Error(t, err)
}

func TestInstallNewRootThenCurrentRootRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	entry := node.IndexEntry{Child: container.BlockId(7), Sep: node.MVSeparator{Key: 3}}
	require.NoError(t, tree.InstallNewRoot(1, entry))

	got, err := tree.CurrentRoot()
	require.NoError(t, err)
	require.Equal(t, container.BlockId(7), got.Child)
}

func TestInstallNewRootClosesPreviousRoot(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.InstallNewRoot(1, node.IndexEntry{Child: 1}))
	require.NoError(t, tree.InstallNewRoot(2, node.IndexEntry{Child: 2}))

	current, err := tree.CurrentRoot()
	require.NoError(t, err)
	require.Equal(t, container.BlockId(2), current.Child)

	historical, err := tree.LocateRoot(1)
	require.NoError(t, err)
	require.Equal(t, container.BlockId(1), historical.Child)
}

func TestLocateRootBeforeFirstRootIsNotFound(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.InstallNewRoot(5, node.IndexEntry{Child: 1}))

	_, err := tree.LocateRoot(4)
	require.Error(t, err)
}

func TestCloseCurrentRootThenCurrentRootIsNotFound(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.InstallNewRoot(1, node.IndexEntry{Child: 1}))
	require.NoError(t, tree.CloseCurrentRoot(2))

	_, err := tree.CurrentRoot()
	require.Error(t, err)
}

func TestManyRootsForceKeySplitAndAllStayLocatable(t *testing.T) {
	tree := newTestTree(t)
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, tree.InstallNewRoot(node.Version(i+1), node.IndexEntry{Child: container.BlockId(i + 1)}))
	}
	for i := 0; i < n; i++ {
		got, err := tree.LocateRoot(node.Version(i + 1))
		require.NoError(t, err)
		require.Equal(t, container.BlockId(i+1), got.Child, "root installed at version %d", i+1)
	}
}

func TestBootstrapResumesAtPersistedRoot(t *testing.T) {
	store := memstore.New(256)
	cfg := node.Config{BlockSize: 256, PayloadSize: PayloadSize, D: 0.25, E: 0.5}
	conv := converter.New[*node.Node](store, node.Codec{Cfg: cfg})
	nodes := buffered.New[*node.Node](conv, 32)
	tree := New(nodes, 256, nil)

	require.NoError(t, tree.InstallNewRoot(1, node.IndexEntry{Child: 9}))
	rootID := tree.RootBlockID()
	require.NoError(t, tree.Flush())

	reopened := New(nodes, 256, nil)
	reopened.Bootstrap(rootID)

	got, err := reopened.CurrentRoot()
	require.NoError(t, err)
	require.Equal(t, container.BlockId(9), got.Child)
}
