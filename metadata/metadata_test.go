package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container/memstore"
	"github.com/mvbtdb/mvbt/merrors"
	"github.com/mvbtdb/mvbt/mvbt"
	"github.com/mvbtdb/mvbt/node"
)

func sampleDescriptor() Descriptor {
	return Descriptor{
		IndexType:    IndexTypeMVBT,
		TableName:    "events",
		ContentType:  ContentTuple,
		BlockSize:    256,
		KeyIndices:   []int{0},
		TableColumns: []string{"id", "payload"},
		Columns: []ColumnProperty{
			{Name: "id", Type: "int64", Indexed: true},
			{Name: "payload", Type: "bytes"},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.meta")
	want := sampleDescriptor()
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want.IndexType, got.IndexType)
	require.Equal(t, want.TableColumns, got.TableColumns)
	require.Equal(t, want.Columns, got.Columns)
}

func TestLoadMissingPropertyIsCorruptMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.meta")
	require.NoError(t, os.WriteFile(path, []byte(`{"Index Type":"MVBT"}`), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, merrors.ErrCorruptMetadata)
}

func TestLoadTupleWithoutColumnsIsCorruptMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.meta")
	d := sampleDescriptor()
	d.Columns = nil
	require.NoError(t, Save(path, d))

	_, err := Load(path)
	require.ErrorIs(t, err, merrors.ErrCorruptMetadata)
}

func TestLoadMissingFileIsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.meta"))
	require.Error(t, err)
}

func newTree(t *testing.T) *mvbt.Tree {
	t.Helper()
	store := memstore.New(256)
	tree, err := mvbt.New(store, mvbt.Config{
		BlockSize:   256,
		PayloadSize: 24,
		D:           0.25,
		E:           0.5,
		NilVersion:  node.NilVersion,
	}, nil)
	require.NoError(t, err)
	return tree
}

// TestTreeSaveReopenContinuesFromSameState mirrors §8 S5: after
// operations, flush, save, "reopen" (a fresh Tree bootstrapped from the
// saved descriptor over the same backing store) and continue
// mutating; the reopened tree must see everything the original
// tree wrote and accept the next operation in sequence.
func TestTreeSaveReopenContinuesFromSameState(t *testing.T) {
	store := memstore.New(256)
	cfg := mvbt.Config{BlockSize: 256, PayloadSize: 24, D: 0.25, E: 0.5, NilVersion: node.NilVersion}

	tree, err := mvbt.New(store, cfg, nil)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, tree.Insert(node.Version(i+1), node.Key(i), []byte{byte(i)}))
	}

	path := filepath.Join(t.TempDir(), "tree.meta")
	d := sampleDescriptor()
	require.NoError(t, tree.Flush())
	require.NoError(t, SaveTree(path, d, tree))

	reopened, err := mvbt.New(store, cfg, nil)
	require.NoError(t, err)
	_, err = OpenTree(path, reopened)
	require.NoError(t, err)

	value, ok, err := reopened.PointQuery(50, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{10}, value)

	require.NoError(t, reopened.Insert(51, 999, []byte("new")))
	value, ok, err = reopened.PointQuery(51, 999)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), value)
}
