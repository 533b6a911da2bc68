package drive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
	"github.com/marmos91/dittodrive/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails every write while fail is set.
type flakyStore struct {
	*memory.Store
	fail atomic.Bool
}

func (f *flakyStore) Save(ctx context.Context, snap *namespace.Snapshot) error {
	if f.fail.Load() {
		return errDiskFull
	}
	return f.Store.Save(ctx, snap)
}

func (f *flakyStore) Apply(ctx context.Context, change *store.Change) error {
	if f.fail.Load() {
		return errDiskFull
	}
	return f.Store.Apply(ctx, change)
}

func testOptions() Options {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Options{
		IDs:     &namespace.SequentialIDs{Prefix: "F"},
		Backend: "memory",
		Clock:   func() time.Time { return fixed },
	}
}

func openService(t *testing.T, st store.Store, opts Options) *Service {
	t.Helper()
	svc, err := Open(context.Background(), st, opts)
	require.NoError(t, err)
	return svc
}

func newFolder(t *testing.T, svc *Service, parent namespace.Path, name string) namespace.Path {
	t.Helper()
	p, err := svc.NewFolder(context.Background(), parent, name)
	require.NoError(t, err)
	return p
}

// ============================================================================
// Open
// ============================================================================

func TestOpen_BootstrapsEmptyDrive(t *testing.T) {
	st := memory.New()
	svc := openService(t, st, testOptions())

	dir, err := svc.GetDirectory(context.Background(), namespace.RootPath)
	require.NoError(t, err)
	assert.True(t, dir.Folder.IsRoot())
	assert.Empty(t, dir.Contents)

	assert.Equal(t, 1, st.Saves(), "the fresh root is written immediately")
	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, namespace.RootID, snap.Nodes[0].ID)
}

func TestOpen_CorruptStateIsPersistenceError(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.Save(context.Background(), &namespace.Snapshot{
		Version: namespace.SnapshotVersion,
		RootID:  namespace.RootID,
		Nodes: []namespace.NodeRecord{
			{ID: namespace.RootID, Kind: namespace.KindFolder, Name: namespace.RootName},
			{ID: "orphan", Kind: namespace.KindFolder, Name: "Lost", ParentID: "missing"},
		},
	}))

	_, err := Open(context.Background(), st, testOptions())
	require.Error(t, err)
	assert.True(t, namespace.IsCode(err, namespace.ErrPersistence))
	assert.ErrorIs(t, err, namespace.ErrCorruptSnapshot)

	var pe *store.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "load", pe.Op)
}

func TestOpen_RestoresAfterRestart(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	svc := openService(t, st, testOptions())
	inbox := newFolder(t, svc, namespace.RootPath, "Inbox")
	receipts := newFolder(t, svc, inbox, "Receipts")
	_, err := svc.NewFile(ctx, receipts, "march.pdf", 42, 1024, 0)
	require.NoError(t, err)
	_, err = svc.NewFastImportFile(ctx, inbox, "talk.mp4", 7, 4096, 120, "-100123")
	require.NoError(t, err)
	_, err = svc.SetCurrentFolder(ctx, receipts)
	require.NoError(t, err)
	removed := newFolder(t, svc, namespace.RootPath, "Scratch")
	_, err = svc.Delete(ctx, removed)
	require.NoError(t, err)

	reopened := openService(t, st, Options{IDs: &namespace.SequentialIDs{Prefix: "F"}, Backend: "memory"})

	dir, err := reopened.GetDirectory(ctx, receipts)
	require.NoError(t, err)
	require.Len(t, dir.Files(), 1)
	file := dir.Files()[0]
	assert.Equal(t, "march.pdf", file.Name)
	assert.Equal(t, int64(42), file.Blob.MessageID)
	assert.Equal(t, int64(1024), file.Size)
	assert.False(t, file.Blob.External())

	dir, err = reopened.GetDirectory(ctx, inbox)
	require.NoError(t, err)
	require.Len(t, dir.Files(), 1)
	assert.Equal(t, "-100123", dir.Files()[0].Blob.SourceChannel)

	cur, ok := reopened.CurrentFolder(ctx)
	require.True(t, ok)
	assert.Equal(t, receipts, cur.Path)
	assert.Equal(t, "Receipts", cur.Name)

	// The sequential generator restarts at F1; every id it hands out that is
	// live or tombstoned must be skipped.
	next := newFolder(t, reopened, namespace.RootPath, "Later")
	assert.NotContains(t, []string{"F1", "F2", "F3", "F4", "F5"}, next.Last())
}

// ============================================================================
// Creation
// ============================================================================

func TestService_InboxReceiptsScenario(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	inbox := newFolder(t, svc, namespace.RootPath, "Inbox")
	assert.Equal(t, "/F1", inbox.String())

	receipts, err := svc.NewFolder(ctx, inbox, "Receipts")
	require.NoError(t, err)
	assert.Equal(t, "/F1/F2", receipts.String())

	dir, err := svc.GetDirectory(ctx, inbox)
	require.NoError(t, err)
	require.Len(t, dir.Contents, 1)
	assert.Equal(t, "Receipts", dir.Contents[0].Info().Name)
	assert.Equal(t, namespace.KindFolder, dir.Contents[0].Kind())

	_, err = svc.NewFolder(ctx, inbox, "receipts")
	require.Error(t, err)
	assert.True(t, namespace.IsCode(err, namespace.ErrDuplicateName))

	dir, err = svc.GetDirectory(ctx, inbox)
	require.NoError(t, err)
	assert.Len(t, dir.Contents, 1)
}

func TestService_NewFolderErrors(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	_, err := svc.NewFolder(ctx, namespace.MustParsePath("/nope"), "Docs")
	assert.True(t, namespace.IsCode(err, namespace.ErrNotFound))

	_, err = svc.NewFolder(ctx, namespace.RootPath, "")
	assert.True(t, namespace.IsCode(err, namespace.ErrInvalidName))

	_, err = svc.NewFolder(ctx, namespace.RootPath, "bad\x00name")
	assert.True(t, namespace.IsCode(err, namespace.ErrInvalidName))
}

func TestService_NewFileIntoFileFails(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	f, err := svc.NewFile(ctx, namespace.RootPath, "a.txt", 1, 10, 0)
	require.NoError(t, err)

	_, err = svc.NewFile(ctx, namespace.RootPath.Child(f.ID), "b.txt", 2, 10, 0)
	assert.True(t, namespace.IsCode(err, namespace.ErrNotFound))
}

func TestService_NewFastImportFile(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	f, err := svc.NewFastImportFile(ctx, namespace.RootPath, "clip.mp4", 99, 2048, 30, "-100777")
	require.NoError(t, err)
	assert.True(t, f.Blob.External())
	assert.Equal(t, int64(30), f.Duration)

	_, err = svc.NewFastImportFile(ctx, namespace.RootPath, "clip.mp4", 99, 2048, 30, "")
	assert.True(t, namespace.IsCode(err, namespace.ErrInvalidArgument))

	stats := svc.Stats(ctx)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.External)
	assert.Equal(t, int64(2048), stats.TotalBytes)
}

func TestService_ConcurrentNewFile(t *testing.T) {
	const n = 50
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())
	parent := newFolder(t, svc, namespace.RootPath, "Uploads")

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.NewFile(ctx, parent, fmt.Sprintf("photo-%02d.jpg", i), int64(i+1), 100, 0)
			return err
		})
	}
	require.NoError(t, g.Wait())

	dir, err := svc.GetDirectory(ctx, parent)
	require.NoError(t, err)
	require.Len(t, dir.Contents, n)

	seen := make(map[string]bool, n)
	for _, c := range dir.Contents {
		assert.False(t, seen[c.Info().ID], "duplicate id %s", c.Info().ID)
		seen[c.Info().ID] = true
	}
}

func TestService_ReadsDuringWrites(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())
	parent := newFolder(t, svc, namespace.RootPath, "Uploads")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			dir, err := svc.GetDirectory(ctx, parent)
			if !assert.NoError(t, err) {
				return
			}
			for _, c := range dir.Contents {
				assert.Equal(t, parent.Last(), c.Info().ParentID)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		_, err := svc.NewFile(ctx, parent, "f", int64(i), 1, 0)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

// ============================================================================
// Persistence failures
// ============================================================================

func TestService_SaveFailureIsReported(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memory.New()}
	svc := openService(t, st, testOptions())

	st.fail.Store(true)
	p, err := svc.NewFolder(ctx, namespace.RootPath, "Inbox")
	require.Error(t, err)
	assert.True(t, namespace.IsCode(err, namespace.ErrPersistence))
	assert.ErrorIs(t, err, errDiskFull)

	// The change stays in memory and the tree remains usable.
	dir, err := svc.GetDirectory(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Inbox", dir.Folder.Name)

	st.fail.Store(false)
	saves := st.Saves()
	_, err = svc.NewFolder(ctx, p, "Receipts")
	require.NoError(t, err)
	assert.Equal(t, saves+1, st.Saves(), "a failed write forces a full snapshot")

	reopened := openService(t, st.Store, testOptions())
	dir, err = reopened.GetDirectory(ctx, p)
	require.NoError(t, err)
	assert.Len(t, dir.Folders(), 1)
}

func TestService_UsesJournalWhenHealthy(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := openService(t, st, testOptions())

	for i := 0; i < 5; i++ {
		newFolder(t, svc, namespace.RootPath, fmt.Sprintf("Folder %d", i))
	}
	assert.Equal(t, 1, st.Saves())

	snap, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 6)
}

// ============================================================================
// Search
// ============================================================================

func TestService_SearchFileFolder(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	inbox := newFolder(t, svc, namespace.RootPath, "Inbox")
	newFolder(t, svc, namespace.RootPath, "Archive")
	_, err := svc.NewFile(ctx, inbox, "INBOX", 1, 1, 0)
	require.NoError(t, err)

	got := svc.SearchFileFolder(ctx, "inbox")
	assert.Len(t, got, 2)
	assert.Contains(t, got, inbox.Last())

	assert.Empty(t, svc.SearchFileFolder(ctx, "nothing"))
	assert.Empty(t, svc.SearchFileFolder(ctx, "inb"), "default mode is exact")

	require.NoError(t, svc.Trash(ctx, inbox))
	assert.Empty(t, svc.SearchFileFolder(ctx, "inbox"))
}

func TestService_SearchSubstring(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.SearchMode = namespace.MatchSubstring
	svc := openService(t, memory.New(), opts)

	docs := newFolder(t, svc, namespace.RootPath, "Documents")
	_, err := svc.NewFile(ctx, docs, "tax-documents.pdf", 1, 1, 0)
	require.NoError(t, err)

	assert.Len(t, svc.SearchFileFolder(ctx, "DOCUMENT"), 2)

	results := svc.Search(ctx, "tax", namespace.MatchSubstring)
	require.Len(t, results, 1)
	assert.Equal(t, docs, results[0].Path.Parent())

	folders := svc.FindFolders(ctx, "documents")
	require.Len(t, folders, 1)
	assert.Equal(t, docs, folders[0].Path)
}

// ============================================================================
// Management
// ============================================================================

func TestService_MoveCopyRename(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	a := newFolder(t, svc, namespace.RootPath, "A")
	b := newFolder(t, svc, namespace.RootPath, "B")
	f, err := svc.NewFile(ctx, a, "doc.txt", 5, 10, 0)
	require.NoError(t, err)

	moved, err := svc.Move(ctx, a.Child(f.ID), b)
	require.NoError(t, err)
	assert.Equal(t, b.Child(f.ID), moved)

	_, err = svc.Move(ctx, a, a)
	assert.True(t, namespace.IsCode(err, namespace.ErrInvalidArgument))

	copied, err := svc.Copy(ctx, b, a)
	require.NoError(t, err)
	dir, err := svc.GetDirectory(ctx, copied)
	require.NoError(t, err)
	require.Len(t, dir.Files(), 1)
	assert.NotEqual(t, f.ID, dir.Files()[0].ID)
	assert.Equal(t, f.Blob, dir.Files()[0].Blob)

	n, err := svc.Rename(ctx, b, "Bee")
	require.NoError(t, err)
	assert.Equal(t, "Bee", n.Info().Name)

	_, err = svc.Rename(ctx, copied, "bee")
	require.NoError(t, err, "the copy lives under A, not next to Bee")
}

func TestService_TrashRestoreDelete(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	docs := newFolder(t, svc, namespace.RootPath, "Docs")
	sub := newFolder(t, svc, docs, "Sub")
	_, err := svc.NewFile(ctx, sub, "x.bin", 1, 1, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Trash(ctx, docs))

	root, err := svc.GetDirectory(ctx, namespace.RootPath)
	require.NoError(t, err)
	assert.Empty(t, root.Contents, "trashed children are hidden")

	trashedDir, err := svc.GetDirectory(ctx, docs)
	require.NoError(t, err)
	assert.Len(t, trashedDir.Contents, 1, "a trashed folder still shows its contents")

	_, err = svc.NewFolder(ctx, docs, "New")
	assert.True(t, namespace.IsCode(err, namespace.ErrNotFound))

	trash := svc.ListTrash(ctx)
	require.Len(t, trash, 1)
	assert.Equal(t, docs, trash[0].Path)

	assert.True(t, namespace.IsCode(svc.Restore(ctx, sub), namespace.ErrInvalidArgument))
	require.NoError(t, svc.Restore(ctx, docs))
	assert.Empty(t, svc.ListTrash(ctx))

	removed, err := svc.Delete(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = svc.GetDirectory(ctx, docs)
	assert.True(t, namespace.IsCode(err, namespace.ErrNotFound))
	assert.Equal(t, namespace.Stats{}, svc.Stats(ctx))
}

// ============================================================================
// Current folder
// ============================================================================

func TestService_CurrentFolder(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := openService(t, st, testOptions())

	_, ok := svc.CurrentFolder(ctx)
	assert.False(t, ok)

	cur, err := svc.EnsureCurrentFolder(ctx, "Uploads")
	require.NoError(t, err)
	assert.Equal(t, "Uploads", cur.Name)

	again, err := svc.EnsureCurrentFolder(ctx, "Uploads")
	require.NoError(t, err)
	assert.Equal(t, cur, again)

	outer := newFolder(t, svc, namespace.RootPath, "Outer")
	moved, err := svc.Move(ctx, cur.Path, outer)
	require.NoError(t, err)
	_, err = svc.Rename(ctx, moved, "Inbox")
	require.NoError(t, err)

	got, ok := svc.CurrentFolder(ctx)
	require.True(t, ok)
	assert.Equal(t, moved, got.Path)
	assert.Equal(t, "Inbox", got.Name)

	reopened := openService(t, st, testOptions())
	got, ok = reopened.CurrentFolder(ctx)
	require.True(t, ok)
	assert.Equal(t, moved, got.Path)

	_, err = reopened.Delete(ctx, outer)
	require.NoError(t, err)
	_, ok = reopened.CurrentFolder(ctx)
	assert.False(t, ok)
}

func TestService_EnsureCurrentFolderPrefersShallowest(t *testing.T) {
	ctx := context.Background()
	svc := openService(t, memory.New(), testOptions())

	outer := newFolder(t, svc, namespace.RootPath, "Outer")
	newFolder(t, svc, outer, "Uploads")
	top := newFolder(t, svc, namespace.RootPath, "uploads")

	cur, err := svc.EnsureCurrentFolder(ctx, "Uploads")
	require.NoError(t, err)
	assert.Equal(t, top, cur.Path)
	assert.Equal(t, "uploads", cur.Name)
}

func TestService_EnsureCurrentFolderRestoresTrashedDefault(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := openService(t, st, testOptions())

	cur, err := svc.EnsureCurrentFolder(ctx, "Uploads")
	require.NoError(t, err)
	_, err = svc.NewFile(ctx, cur.Path, "clip.mp4", 7, 10, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Trash(ctx, cur.Path))

	_, ok := svc.CurrentFolder(ctx)
	assert.False(t, ok)

	again, err := svc.EnsureCurrentFolder(ctx, "Uploads")
	require.NoError(t, err)
	assert.Equal(t, cur.Path, again.Path)
	assert.Empty(t, svc.ListTrash(ctx))

	dir, err := svc.GetDirectory(ctx, again.Path)
	require.NoError(t, err)
	assert.Len(t, dir.Files(), 1)

	reopened := openService(t, st, testOptions())
	got, ok := reopened.CurrentFolder(ctx)
	require.True(t, ok)
	assert.Equal(t, cur.Path, got.Path)
}
