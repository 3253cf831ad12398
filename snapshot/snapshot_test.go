package snapshot

import (
	"context"
	"testing"

	"github.com/J-Pabon/ouisync/object"
	"github.com/J-Pabon/ouisync/refcount"
	"github.com/J-Pabon/ouisync/storage"
	"github.com/J-Pabon/ouisync/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	objects   *store.Store
	refs      *refcount.Table
	snapshots storage.Storage
}

func newFixture(t *testing.T) *fixture {
	objects := store.New(storage.NewMemory())
	return &fixture{
		objects:   objects,
		refs:      refcount.NewTable(objects, nil),
		snapshots: storage.NewMemory(),
	}
}

func (f *fixture) create(ctx context.Context, t *testing.T, root object.ID) *Snapshot {
	commit := object.Commit{RootID: root, Stamp: object.NewVersionVector()}
	snap, err := Create(ctx, commit, f.objects, f.refs, f.snapshots, nil)
	require.NoError(t, err)
	return snap
}

func mustID(t *testing.T, value any) object.ID {
	t.Helper()
	id, err := store.CalculateID(value)
	require.NoError(t, err)
	return id
}

func TestCreateSeedsMissingRoot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := object.Sum([]byte("root"))

	snap := f.create(ctx, t, root)

	node := snap.Node(root)
	require.NotNil(t, node)
	assert.Equal(t, Missing, node.Type)
	assert.Empty(t, node.Parents)

	// the snapshot file exists under the hex name tag
	ok, err := f.snapshots.Has(ctx, snap.Path())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertObjectIgnoresUnanticipatedIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := object.Sum([]byte("root"))

	snap := f.create(ctx, t, root)

	stray := object.Sum([]byte("stray"))
	require.NoError(t, snap.InsertObject(ctx, stray, nil))
	assert.Nil(t, snap.Node(stray))
	assert.Equal(t, 1, snap.Len())
}

func TestInsertBlobCompletesRoot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blob := object.Blob("b")
	root, err := f.objects.Put(ctx, blob)
	require.NoError(t, err)

	snap := f.create(ctx, t, root)
	require.NoError(t, snap.InsertObject(ctx, root, nil))

	assert.Equal(t, Complete, snap.Node(root).Type)

	counts, err := f.refs.Get(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 1}, counts)
}

func TestInsertTreePropagatesCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blobA := object.Blob("a")
	blobB := object.Blob("b")
	idA := mustID(t, blobA)
	idB := mustID(t, blobB)

	tree := object.NewTree()
	tree.Entries["a"] = idA
	tree.Entries["b"] = idB
	idT, err := f.objects.Put(ctx, tree)
	require.NoError(t, err)

	snap := f.create(ctx, t, idT)
	require.NoError(t, snap.InsertObject(ctx, idT, tree.Children()))

	node := snap.Node(idT)
	assert.Equal(t, Incomplete, node.Type)
	assert.Len(t, node.Children.Missing, 2)

	counts, err := f.refs.Get(ctx, idT)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Direct: 1}, counts)

	// back edges exist even before the children arrive
	require.NotNil(t, snap.Node(idA))
	assert.Contains(t, snap.Node(idA).Parents, idT)

	_, err = f.objects.Put(ctx, blobA)
	require.NoError(t, err)
	require.NoError(t, snap.InsertObject(ctx, idA, nil))

	assert.Equal(t, Incomplete, snap.Node(idT).Type)
	assert.Contains(t, snap.Node(idT).Children.Complete, idA)

	_, err = f.objects.Put(ctx, blobB)
	require.NoError(t, err)
	require.NoError(t, snap.InsertObject(ctx, idB, nil))

	// the root promoted and swapped its pin
	assert.Equal(t, Complete, snap.Node(idT).Type)
	counts, err = f.refs.Get(ctx, idT)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 1}, counts)

	// the completed children folded out of the node map
	assert.Nil(t, snap.Node(idA))
	assert.Nil(t, snap.Node(idB))
}

func TestCloneDoublesPins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blob := object.Blob("x")
	root, err := f.objects.Put(ctx, blob)
	require.NoError(t, err)

	snap := f.create(ctx, t, root)
	require.NoError(t, snap.InsertObject(ctx, root, nil))

	clone, err := snap.Clone(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, snap.Path(), clone.Path())

	counts, err := f.refs.Get(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 2}, counts)

	clone.Forget(ctx)

	counts, err = f.refs.Get(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 1}, counts)

	snap.Forget(ctx)

	counts, err = f.refs.Get(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{}, counts)
}

func TestForgetReleasesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blobA := object.Blob("a")
	blobB := object.Blob("b")
	idA := mustID(t, blobA)
	idB := mustID(t, blobB)

	tree := object.NewTree()
	tree.Entries["a"] = idA
	tree.Entries["b"] = idB
	idT, err := f.objects.Put(ctx, tree)
	require.NoError(t, err)

	snap := f.create(ctx, t, idT)
	require.NoError(t, snap.InsertObject(ctx, idT, tree.Children()))

	_, err = f.objects.Put(ctx, blobA)
	require.NoError(t, err)
	require.NoError(t, snap.InsertObject(ctx, idA, nil))

	snap.Forget(ctx)

	for _, id := range []object.ID{idT, idA, idB} {
		counts, err := f.refs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, refcount.Counts{}, counts, "id %s", id)
	}

	ok, err := f.snapshots.Has(ctx, snap.Path())
	require.NoError(t, err)
	assert.False(t, ok)

	// forgetting twice is a no-op
	snap.Forget(ctx)
}

func TestPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blobA := object.Blob("a")
	idA := mustID(t, blobA)

	tree := object.NewTree()
	tree.Entries["a"] = idA
	idT, err := f.objects.Put(ctx, tree)
	require.NoError(t, err)

	snap := f.create(ctx, t, idT)
	require.NoError(t, snap.InsertObject(ctx, idT, tree.Children()))

	loaded, err := Load(ctx, snap.NameTag(), f.objects, f.refs, f.snapshots, nil)
	require.NoError(t, err)

	assert.True(t, snap.Commit().Equal(loaded.Commit()))
	assert.Equal(t, snap.CalculateID(), loaded.CalculateID())
	assert.Equal(t, snap.Len(), loaded.Len())
	assert.Equal(t, Incomplete, loaded.Node(idT).Type)
	assert.Contains(t, loaded.Node(idA).Parents, idT)
}

func TestCalculateIDChangesWithNodeTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	blob := object.Blob("x")
	root, err := f.objects.Put(ctx, blob)
	require.NoError(t, err)

	snap := f.create(ctx, t, root)
	before := snap.CalculateID()

	require.NoError(t, snap.InsertObject(ctx, root, nil))
	after := snap.CalculateID()

	assert.NotEqual(t, before, after)
}

func TestCaptureObjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := object.Sum([]byte("root"))

	snap := f.create(ctx, t, root)

	flat := object.Sum([]byte("flat"))
	full := object.Sum([]byte("full"))
	require.NoError(t, snap.CaptureFlatObject(ctx, flat))
	require.NoError(t, snap.CaptureFullObject(ctx, full))

	counts, err := f.refs.Get(ctx, flat)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Direct: 1}, counts)

	counts, err = f.refs.Get(ctx, full)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 1}, counts)

	snap.Forget(ctx)

	counts, err = f.refs.Get(ctx, flat)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{}, counts)

	counts, err = f.refs.Get(ctx, full)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{}, counts)
}

func TestInsertChildAlreadyClassifiedComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A is present and pinned recursively by another holder, so the
	// tree's insertion classifies it complete while still recording
	// the back edge on a lazily created Missing node.
	blobA := object.Blob("a")
	idA, err := f.objects.Put(ctx, blobA)
	require.NoError(t, err)
	require.NoError(t, f.refs.IncrementRecursive(ctx, idA))

	idB := mustID(t, object.Blob("b"))

	tree := object.NewTree()
	tree.Entries["a"] = idA
	tree.Entries["b"] = idB
	idT, err := f.objects.Put(ctx, tree)
	require.NoError(t, err)

	snap := f.create(ctx, t, idT)
	require.NoError(t, snap.InsertObject(ctx, idT, tree.Children()))

	assert.Contains(t, snap.Node(idT).Children.Complete, idA)
	assert.Equal(t, Missing, snap.Node(idA).Type)
	assert.Contains(t, snap.Node(idA).Parents, idT)

	// A arriving through the sync anyway must not trip the
	// propagation assertion or change the parent's accounting.
	require.NoError(t, snap.InsertObject(ctx, idA, nil))
	assert.Equal(t, Incomplete, snap.Node(idT).Type)

	counts, err := f.refs.Get(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 2}, counts)

	// B completes the tree; promotion folds A's node as well, so its
	// pin is released exactly once through T's cascade.
	_, err = f.objects.Put(ctx, object.Blob("b"))
	require.NoError(t, err)
	require.NoError(t, snap.InsertObject(ctx, idB, nil))

	assert.Equal(t, Complete, snap.Node(idT).Type)
	assert.Nil(t, snap.Node(idA))
	assert.Nil(t, snap.Node(idB))

	snap.Forget(ctx)

	// the external holder's pin survives the snapshot's release
	counts, err = f.refs.Get(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{Recursive: 1}, counts)

	counts, err = f.refs.Get(ctx, idT)
	require.NoError(t, err)
	assert.Equal(t, refcount.Counts{}, counts)
}

func TestGroupIDDependsOnMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rootA := object.Sum([]byte("a"))
	rootB := object.Sum([]byte("b"))
	userA := object.NewUserID()
	userB := object.NewUserID()

	snapA := f.create(ctx, t, rootA)
	snapB := f.create(ctx, t, rootB)

	group := NewGroup(map[object.UserID]*Snapshot{
		userA: snapA,
		userB: snapB,
	})
	assert.Equal(t, 2, group.Len())
	assert.Same(t, snapA, group.Snapshot(userA))

	single := NewGroup(map[object.UserID]*Snapshot{userA: snapA})
	assert.NotEqual(t, group.CalculateID(), single.CalculateID())

	group.Forget(ctx)
	assert.Equal(t, 0, group.Len())
}
