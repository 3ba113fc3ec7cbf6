package mvbt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvbtdb/mvbt/container/memstore"
	"github.com/mvbtdb/mvbt/node"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	store := memstore.New(256)
	tree, err := New(store, Config{
		BlockSize:   256,
		PayloadSize: 24,
		D:           0.25,
		E:           0.5,
		NilVersion:  node.NilVersion,
	}, nil)
	require.NoError(t, err)
	return tree
}

func TestInsertThenPointQueryRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 42, []byte("hello")))

	value, ok, err := tree.PointQuery(1, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), value)
}

func TestInsertDeletePointQuerySequence(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 7, []byte("v1")))
	require.NoError(t, tree.Delete(2, 7))

	value, ok, err := tree.PointQuery(1, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), value)

	_, ok, err = tree.PointQuery(2, 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 3, []byte("a")))
	err := tree.Insert(2, 3, []byte("b"))
	require.Error(t, err)
}

func TestVersionOrderEnforced(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(5, 1, []byte("a")))
	err := tree.Insert(4, 2, []byte("b"))
	require.Error(t, err)
	err = tree.Insert(5, 2, []byte("b"))
	require.Error(t, err)
}

func TestEmptyTreeBootstrapsExactlyOneRoot(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 1, []byte("a")))
	root, err := tree.rootTree.CurrentRoot()
	require.NoError(t, err)
	require.NotZero(t, root.Child)
}

func TestDeleteLastEntryClosesRootThenNewInsertBootstraps(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 1, []byte("a")))
	require.NoError(t, tree.Delete(2, 1))

	_, err := tree.rootTree.CurrentRoot()
	require.Error(t, err, "root should be closed once the last live entry is deleted")

	require.NoError(t, tree.Insert(3, 9, []byte("b")))
	value, ok, err := tree.PointQuery(3, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("b"), value)
}

func TestManyInsertsForceSplitsAndAllKeysStayQueryable(t *testing.T) {
	tree := newTestTree(t)
	const n = 200
	for i := 0; i < n; i++ {
		key := node.Key(i)
		require.NoError(t, tree.Insert(node.Version(i+1), key, []byte{byte(i)}))
	}
	for i := 0; i < n; i++ {
		value, ok, err := tree.PointQuery(node.Version(n), node.Key(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d should be live", i)
		require.Equal(t, []byte{byte(i)}, value)
	}
}

func TestRangeQueryReturnsOnlyLiveEntriesInWindow(t *testing.T) {
	tree := newTestTree(t)
	for i := 0; i < 20; i++ {
		require.NoError(t, tree.Insert(node.Version(i+1), node.Key(i), []byte{byte(i)}))
	}
	require.NoError(t, tree.Delete(21, 5))

	cur, err := tree.RangeQuery(21, 0, 9)
	require.NoError(t, err)
	var keys []node.Key
	for cur.HasNext() {
		keys = append(keys, cur.Next().Key)
	}
	require.NotContains(t, keys, node.Key(5))
	require.Contains(t, keys, node.Key(4))
	require.Contains(t, keys, node.Key(6))
}

func TestTimeRangeQuerySeesHistoricalVersions(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 100, []byte("v1")))
	require.NoError(t, tree.Update(2, 100, []byte("v2")))
	require.NoError(t, tree.Delete(3, 100))

	cur, err := tree.TimeRangeQuery(100, 100, 0, 10)
	require.NoError(t, err)
	var got []Pair
	for cur.HasNext() {
		got = append(got, cur.Next())
	}
	require.Len(t, got, 2, "should see both the v1 and v2 historical records")
}

func TestRootReplacementWiresBackPointerChain(t *testing.T) {
	tree := newTestTree(t)

	// Leaf capacity is 4 entries at this block/payload size, so a fifth
	// ascending key overflows the sole leaf; since nothing has been
	// deleted all 5 entries survive the version split, which exceeds
	// StrongSplitMax and forces a key split, replacing the root.
	require.NoError(t, tree.Insert(1, 0, []byte{0}))
	firstRoot, err := tree.rootTree.CurrentRoot()
	require.NoError(t, err)
	firstRootID := firstRoot.Child

	for i := 1; i < 5; i++ {
		require.NoError(t, tree.Insert(node.Version(i+1), node.Key(i), []byte{byte(i)}))
	}

	newRoot, err := tree.rootTree.CurrentRoot()
	require.NoError(t, err)
	require.NotEqual(t, firstRootID, newRoot.Child, "root should have been replaced by the key split")

	newRootHandle, err := tree.nodes.Get(newRoot.Child)
	require.NoError(t, err)
	leftLink := newRootHandle.Value().LeftLink
	newRootHandle.Release()

	require.Equal(t, firstRootID, leftLink.Child, "new root's LeftLink should point back at the superseded root")
	require.False(t, leftLink.Sep.Lifespan.Open(), "the superseded root's lifespan should be closed at the switch version")

	oldRootHandle, err := tree.nodes.Get(firstRootID)
	require.NoError(t, err)
	rightLink := oldRootHandle.Value().RightLink
	oldRootHandle.Release()

	require.Equal(t, newRoot.Child, rightLink.Child, "superseded root's RightLink should point forward at the new root")
	require.Equal(t, leftLink.Sep.Lifespan.End, rightLink.Sep.Lifespan.Begin, "the two eras should be contiguous in version space")
}

func TestTimeRangeQueryAcrossManyRootReplacementsHasNoDuplicates(t *testing.T) {
	tree := newTestTree(t)
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Insert(node.Version(i+1), node.Key(i), []byte{byte(i)}))
	}

	// Ascending-key growth alone forces the root to be replaced many
	// times over; every live key is still reachable through the
	// current root's own structure, so without deduping by (key,
	// lifespan) walking every historical era back through LeftLink
	// would report each one again for every superseded era it was
	// already live in.
	cur, err := tree.TimeRangeQuery(0, n-1, 1, node.Version(n+1))
	require.NoError(t, err)
	seen := make(map[node.Key]int)
	for cur.HasNext() {
		p := cur.Next()
		seen[p.Key]++
		require.Equal(t, node.Version(p.Key)+1, p.Lifespan.Begin)
		require.True(t, p.Lifespan.Open())
	}
	require.Len(t, seen, n)
	for k, count := range seen {
		require.Equal(t, 1, count, "key %d should be reported exactly once", k)
	}
}

func TestUpdateReplacesValue(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Insert(1, 1, []byte("old")))
	require.NoError(t, tree.Update(2, 1, []byte("new")))

	value, ok, err := tree.PointQuery(2, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), value)

	value, ok, err = tree.PointQuery(1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("old"), value)
}
