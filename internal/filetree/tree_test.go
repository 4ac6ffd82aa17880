package filetree_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"filetree-server/internal/database/memory"
	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNode_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, filetree.WithLimits(filetree.Limits{MaxInlineContentBytes: 8}))
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	docs := f.folder(t, owner, nil, "Docs")

	testCases := []struct {
		name   string
		caller filetree.Caller
		params filetree.CreateParams
		err    error
	}{
		{"empty name", owner, filetree.CreateParams{Kind: models.KindFolder, Name: "  "}, filetree.ErrInvalidArgument},
		{"slash in name", owner, filetree.CreateParams{Kind: models.KindFolder, Name: "a/b"}, filetree.ErrInvalidArgument},
		{"reserved name", owner, filetree.CreateParams{Kind: models.KindFolder, Name: models.RecycleBinName}, filetree.ErrInvalidArgument},
		{"unknown kind", owner, filetree.CreateParams{Kind: "link", Name: "x"}, filetree.ErrInvalidArgument},
		{"folder with content", owner, filetree.CreateParams{Kind: models.KindFolder, Name: "x", Content: ptr("c")}, filetree.ErrInvalidArgument},
		{"folder with tags", owner, filetree.CreateParams{Kind: models.KindFolder, Name: "x", Tags: []string{"t"}}, filetree.ErrInvalidArgument},
		{"six tags", owner, filetree.CreateParams{Kind: models.KindFile, Name: "x", Tags: []string{"a", "b", "c", "d", "e", "f"}}, filetree.ErrInvalidArgument},
		{"content too large", owner, filetree.CreateParams{Kind: models.KindFile, Name: "x", Content: ptr("123456789")}, filetree.ErrInvalidArgument},
		{"missing parent", owner, filetree.CreateParams{Kind: models.KindFolder, Name: "x", ParentID: ptr("missing")}, filetree.ErrNotFound},
		{"foreign parent", bob, filetree.CreateParams{Kind: models.KindFolder, Name: "x", ParentID: &docs.ID}, filetree.ErrForbidden},
		{"anonymous", filetree.Anonymous(), filetree.CreateParams{Kind: models.KindFolder, Name: "x"}, filetree.ErrForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateNode(ctx, tc.caller, tc.params)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateNode_TagsNormalized(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "alice")

	n, err := f.svc.CreateNode(context.Background(), owner, filetree.CreateParams{
		Kind: models.KindFile,
		Name: "  report.txt ",
		Tags: []string{" Work", "work", "", "Q1", "q1", "a", "b", "c"},
	})
	require.NoError(t, err)
	require.Equal(t, "report.txt", n.Name)
	require.Equal(t, []string{"work", "q1", "a", "b", "c"}, n.Tags)
	require.Equal(t, "", *n.Content)
}

func TestCreateNode_SharedFolderStaysOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	docs := f.folder(t, owner, nil, "Docs")

	_, err := f.svc.GrantPermission(ctx, owner, docs.ID, "bob", models.AccessEdit)
	require.NoError(t, err)

	content := "hi"
	_, err = f.svc.CreateNode(ctx, bob, filetree.CreateParams{ParentID: &docs.ID, Kind: models.KindFile, Name: "from-bob.txt", Content: &content})
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.UploadFile(ctx, bob, filetree.UploadParams{ParentID: &docs.ID, Name: "from-bob.bin", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, filetree.ErrForbidden)
	require.Zero(t, f.blobs.count())

	children, err := f.svc.ListChildren(ctx, owner, &docs.ID, filetree.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestListChildren_FlatGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")

	docs := f.folder(t, owner, nil, "Docs")
	visible := f.file(t, owner, &docs.ID, "visible.txt", "v")
	f.file(t, owner, &docs.ID, "hidden.txt", "h")

	_, err := f.svc.ListChildren(ctx, bob, &docs.ID, filetree.ListOptions{})
	require.ErrorIs(t, err, filetree.ErrForbidden)

	_, err = f.svc.GrantPermission(ctx, owner, docs.ID, "bob", models.AccessView)
	require.NoError(t, err)
	children, err := f.svc.ListChildren(ctx, bob, &docs.ID, filetree.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, children, "a grant on the folder does not extend to its children")

	_, err = f.svc.GrantPermission(ctx, owner, visible.ID, "bob", models.AccessView)
	require.NoError(t, err)
	children, err = f.svc.ListChildren(ctx, bob, &docs.ID, filetree.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"visible.txt"}, names(children))

	roots, err := f.svc.ListChildren(ctx, bob, nil, filetree.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, roots)

	_, err = f.svc.ListChildren(ctx, owner, &visible.ID, filetree.ListOptions{})
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
}

func TestListChildren_SortAndPaginate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")

	f.file(t, owner, nil, "b.txt", "12345")
	f.clock.Advance(time.Second)
	f.file(t, owner, nil, "A.txt", "1")
	f.clock.Advance(time.Second)
	f.folder(t, owner, nil, "zeta")

	byName, err := f.svc.ListChildren(ctx, owner, nil, filetree.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "A.txt", "b.txt"}, names(byName))

	bySize, err := f.svc.ListChildren(ctx, owner, nil, filetree.ListOptions{Sort: filetree.SortBySize, Order: filetree.OrderDesc})
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "b.txt", "A.txt"}, names(bySize))

	byCreated, err := f.svc.ListChildren(ctx, owner, nil, filetree.ListOptions{Sort: filetree.SortByCreatedAt, Order: filetree.OrderDesc})
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "A.txt", "b.txt"}, names(byCreated))

	page, err := f.svc.ListChildren(ctx, owner, nil, filetree.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"A.txt"}, names(page))

	_, err = f.svc.ListChildren(ctx, owner, nil, filetree.ListOptions{Sort: "color"})
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
}

func TestUpdateNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")
	docs := f.folder(t, owner, nil, "Docs")
	a := f.file(t, owner, &docs.ID, "a.txt", "hello")

	f.clock.Advance(time.Minute)
	renamed, err := f.svc.RenameNode(ctx, owner, a.ID, "b.txt", "")
	require.NoError(t, err)
	require.Equal(t, "b.txt", renamed.Name)
	require.Equal(t, f.clock.Now(), renamed.ModifiedAt)

	retagged, err := f.svc.RetagNode(ctx, owner, a.ID, []string{"Urgent"}, "")
	require.NoError(t, err)
	require.Equal(t, []string{"urgent"}, retagged.Tags)

	f.clock.Advance(time.Minute)
	before := retagged.ModifiedAt
	withMime, err := f.svc.UpdateMetadata(ctx, owner, a.ID, "text/markdown")
	require.NoError(t, err)
	require.Equal(t, "text/markdown", *withMime.MimeType)
	require.Equal(t, before, withMime.ModifiedAt, "mime type changes do not stamp modifiedAt")

	_, err = f.svc.RenameNode(ctx, owner, docs.ID, "Papers", "")
	require.NoError(t, err)
	_, err = f.svc.RetagNode(ctx, owner, docs.ID, []string{"x"}, "")
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
	_, err = f.svc.EditContent(ctx, owner, docs.ID, "x", "")
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)

	_, err = f.svc.RenameNode(ctx, owner, a.ID, models.RecycleBinName, "")
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
	_, err = f.svc.UpdateNode(ctx, owner, a.ID, "", filetree.NodeEdit{})
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
	_, err = f.svc.RenameNode(ctx, owner, "missing", "x", "")
	require.ErrorIs(t, err, filetree.ErrNotFound)

	bin, err := f.svc.EnsureRecycleBin(ctx, owner.UserID)
	require.NoError(t, err)
	_, err = f.svc.RenameNode(ctx, owner, bin.ID, "Trash", "")
	require.ErrorIs(t, err, filetree.ErrForbidden)
}

func TestUpdateNode_LockedFieldsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.user(t, "alice")
	a := f.file(t, alice, nil, "a.txt", "hello")

	_, err := f.svc.AcquireLock(ctx, alice, a.ID, "tabA")
	require.NoError(t, err)

	_, err = f.svc.RenameNode(ctx, alice, a.ID, "b.txt", "tabB")
	require.ErrorIs(t, err, filetree.ErrLocked, "another tab of the same user is another session")

	_, err = f.svc.RenameNode(ctx, alice, a.ID, "b.txt", "tabA")
	require.NoError(t, err)

	_, err = f.svc.UpdateMetadata(ctx, alice, a.ID, "text/plain")
	require.NoError(t, err, "mime type is not lock protected")
}

func TestMoveNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")

	a := f.folder(t, owner, nil, "A")
	b := f.folder(t, owner, &a.ID, "B")
	c := f.folder(t, owner, &b.ID, "C")
	file := f.file(t, owner, nil, "f.txt", "x")
	foreign := f.folder(t, bob, nil, "Bob's")

	_, err := f.svc.MoveNode(ctx, owner, a.ID, &c.ID)
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
	_, err = f.svc.MoveNode(ctx, owner, a.ID, &a.ID)
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
	_, err = f.svc.MoveNode(ctx, owner, a.ID, &file.ID)
	require.ErrorIs(t, err, filetree.ErrInvalidArgument)
	_, err = f.svc.MoveNode(ctx, owner, a.ID, &foreign.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.MoveNode(ctx, bob, a.ID, nil)
	require.ErrorIs(t, err, filetree.ErrForbidden)

	bin, err := f.svc.EnsureRecycleBin(ctx, owner.UserID)
	require.NoError(t, err)
	_, err = f.svc.MoveNode(ctx, owner, file.ID, &bin.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden)

	moved, err := f.svc.MoveNode(ctx, owner, c.ID, nil)
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)

	moved, err = f.svc.MoveNode(ctx, owner, a.ID, &c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, *moved.ParentID)

	assertNoCycles(t, f, owner)
}

// assertNoCycles walks every node reachable from the owner's root and checks each parent
// chain terminates.
func assertNoCycles(t *testing.T, f *fixture, owner filetree.Caller) {
	t.Helper()
	ctx := context.Background()

	var walk func(parentID *string, depth int)
	walk = func(parentID *string, depth int) {
		require.Less(t, depth, 64)
		children, err := f.store.ListChildren(ctx, filetree.ChildQuery{ParentID: parentID, OwnerID: owner.UserID})
		require.NoError(t, err)
		for _, child := range children {
			steps := 0
			for p := child.ParentID; p != nil; steps++ {
				require.Less(t, steps, 64, "parent chain of %s does not terminate", child.ID)
				parent, err := f.store.Get(ctx, *p)
				require.NoError(t, err)
				p = parent.ParentID
			}
			walk(&child.ID, depth+1)
		}
	}
	walk(nil, 0)
}

func TestTrashRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")

	docs := f.folder(t, owner, nil, "Docs")
	inner := f.folder(t, owner, &docs.ID, "Inner")
	f.file(t, owner, &inner.ID, "deep.txt", "x")

	_, err := f.svc.MoveToTrash(ctx, owner, inner.ID)
	require.NoError(t, err)

	trash, err := f.svc.ListTrash(ctx, owner, filetree.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Inner"}, names(trash))

	children, err := f.svc.ListChildren(ctx, owner, &inner.ID, filetree.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"deep.txt"}, names(children), "children travel with their trashed parent")

	restored, err := f.svc.Restore(ctx, owner, inner.ID)
	require.NoError(t, err)
	require.Nil(t, restored.ParentID)

	roots, err := f.svc.ListChildren(ctx, owner, nil, filetree.ListOptions{})
	require.NoError(t, err)
	require.Contains(t, names(roots), "Inner")

	require.Equal(t, []string{"node_created", "node_created", "node_created", "node_trashed", "node_restored"}, f.eventTypes(t, owner.UserID))
}

func TestTrashPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	a := f.file(t, owner, nil, "a.txt", "x")
	_, err := f.svc.GrantPermission(ctx, owner, a.ID, "bob", models.AccessEdit)
	require.NoError(t, err)
	_, err = f.svc.GrantPermission(ctx, owner, a.ID, "carol", models.AccessView)
	require.NoError(t, err)

	_, err = f.svc.MoveToTrash(ctx, carol, a.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden)

	purged, err := f.svc.MoveToTrash(ctx, bob, a.ID)
	require.NoError(t, err)
	require.False(t, purged)

	bin, err := f.store.FindRecycleBin(ctx, owner.UserID)
	require.NoError(t, err, "an editor's delete lands in the owner's Recycle Bin")
	_, err = f.store.FindRecycleBin(ctx, bob.UserID)
	require.ErrorIs(t, err, filetree.ErrNotFound)

	_, err = f.svc.MoveToTrash(ctx, bob, a.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden, "only the owner purges from the Recycle Bin")
	_, err = f.svc.Restore(ctx, bob, a.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden)
	require.ErrorIs(t, f.svc.HardDelete(ctx, bob, a.ID), filetree.ErrForbidden)

	_, err = f.svc.MoveToTrash(ctx, owner, bin.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden)
	require.ErrorIs(t, f.svc.HardDelete(ctx, owner, bin.ID), filetree.ErrForbidden)
	_, err = f.svc.Restore(ctx, owner, bin.ID)
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.GrantPermission(ctx, owner, bin.ID, "bob", models.AccessView)
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.SetPublic(ctx, owner, bin.ID, true)
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.RevokePermission(ctx, owner, bin.ID, "bob")
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.AcquireLock(ctx, owner, bin.ID, "tab")
	require.ErrorIs(t, err, filetree.ErrForbidden)
	_, err = f.svc.CreateNode(ctx, owner, filetree.CreateParams{ParentID: &bin.ID, Kind: models.KindFolder, Name: "x"})
	require.ErrorIs(t, err, filetree.ErrForbidden)
}

func TestHardDeleteIsRecursive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")

	docs := f.folder(t, owner, nil, "Docs")
	inner := f.folder(t, owner, &docs.ID, "Inner")
	deep := f.file(t, owner, &inner.ID, "deep.txt", "x")
	uploaded, err := f.svc.UploadFile(ctx, owner, filetree.UploadParams{ParentID: &inner.ID, Name: "blob.bin", Body: strings.NewReader("bytes")})
	require.NoError(t, err)
	require.Equal(t, 1, f.blobs.count())

	require.NoError(t, f.svc.HardDelete(ctx, owner, docs.ID))

	for _, id := range []string{docs.ID, inner.ID, deep.ID, uploaded.ID} {
		exists, err := f.store.Exists(ctx, id)
		require.NoError(t, err)
		require.False(t, exists, id)
	}
	require.Zero(t, f.blobs.count())
}

func TestPurgeTrash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")

	count, err := f.svc.PurgeTrash(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, count)

	docs := f.folder(t, owner, nil, "Docs")
	f.file(t, owner, &docs.ID, "a.txt", "x")
	loose := f.file(t, owner, nil, "b.txt", "y")
	keep := f.file(t, owner, nil, "keep.txt", "z")

	for _, id := range []string{docs.ID, loose.ID} {
		_, err := f.svc.MoveToTrash(ctx, owner, id)
		require.NoError(t, err)
	}

	count, err = f.svc.PurgeTrash(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	trash, err := f.svc.ListTrash(ctx, owner, filetree.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, trash)

	_, err = f.svc.GetNode(ctx, owner, keep.ID)
	require.NoError(t, err)
}

func TestEnsureRecycleBin_ConcurrentFirstDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")

	const workers = 16
	ids := make([]string, workers)
	for i := range ids {
		ids[i] = f.file(t, owner, nil, "f"+strings.Repeat("x", i)+".txt", "x").ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.MoveToTrash(ctx, owner, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	roots, err := f.store.ListChildren(ctx, filetree.ChildQuery{OwnerID: owner.UserID})
	require.NoError(t, err)
	bins := 0
	for _, n := range roots {
		if n.IsRecycleBin() {
			bins++
		}
	}
	require.Equal(t, 1, bins)

	trash, err := f.svc.ListTrash(ctx, owner, filetree.ListOptions{})
	require.NoError(t, err)
	require.Len(t, trash, workers)
}

func TestExclusiveContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")

	uploaded, err := f.svc.UploadFile(ctx, owner, filetree.UploadParams{Name: "data.bin", Body: strings.NewReader("binary")})
	require.NoError(t, err)
	require.Nil(t, uploaded.Content)
	require.NotNil(t, uploaded.StorageKey)

	edited, err := f.svc.EditContent(ctx, owner, uploaded.ID, "text now", "")
	require.NoError(t, err)
	require.NotNil(t, edited.Content)
	require.Nil(t, edited.StorageKey)
	require.Zero(t, f.blobs.count(), "the replaced blob is removed")

	folder := f.folder(t, owner, nil, "Docs")
	require.Nil(t, folder.Content)
	require.Nil(t, folder.StorageKey)
}

// racingStore inserts a child under the purge root right before the first Delete, the
// way a concurrent create would.
type racingStore struct {
	*memory.Store
	once  sync.Once
	child *models.Node
}

func (r *racingStore) Delete(ctx context.Context, ids ...string) error {
	r.once.Do(func() {
		_, _ = r.Store.Create(ctx, r.child)
	})
	return r.Store.Delete(ctx, ids...)
}

func TestHardDelete_ChildCreatedDuringPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "alice")
	docs := f.folder(t, owner, nil, "Docs")

	late := &models.Node{
		ID:          "late-child",
		OwnerID:     owner.UserID,
		ParentID:    &docs.ID,
		Name:        "late.txt",
		Kind:        models.KindFile,
		Content:     ptr(""),
		Tags:        []string{},
		Permissions: map[string]models.AccessLevel{},
	}
	store := &racingStore{Store: f.store, child: late}
	svc, err := filetree.NewService(store, f.users, f.blobs, filetree.WithClock(f.clock))
	require.NoError(t, err)

	require.NoError(t, svc.HardDelete(ctx, owner, docs.ID))

	for _, id := range []string{docs.ID, late.ID} {
		exists, err := f.store.Exists(ctx, id)
		require.NoError(t, err)
		require.False(t, exists, id)
	}
}
