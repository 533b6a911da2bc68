// Package testing provides a reusable conformance suite for store.Store
// implementations.
package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the Store contract, not implementation details,
// making it reusable across backends (memory, file, badger, postgres).
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) store.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Load", suite.RunLoadTests)
	t.Run("Save", suite.RunSaveTests)
	t.Run("Journal", suite.RunJournalTests)
	t.Run("Healthcheck", suite.TestHealthcheck)
}

// ============================================================================
// Fixtures
// ============================================================================

var fixedTime = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

// sampleTree builds a small namespace with nested folders, a normal file, a
// fast-imported file, a trashed folder and one tombstone.
func sampleTree(t *testing.T) *namespace.Tree {
	t.Helper()
	tree := namespace.NewTree(
		namespace.WithIDGenerator(&namespace.SequentialIDs{Prefix: "n"}),
		namespace.WithClock(func() time.Time { return fixedTime }),
	)

	docs, err := tree.InsertFolder(namespace.RootPath, "Docs")
	require.NoError(t, err)
	docsPath := namespace.RootPath.Child(docs.ID)

	_, err = tree.InsertFile(docsPath, "report.pdf", namespace.BlobRef{MessageID: 101}, 2048, 0)
	require.NoError(t, err)
	_, err = tree.InsertFile(docsPath, "lecture.mp4", namespace.BlobRef{MessageID: 7, SourceChannel: "-1001234"}, 1 << 30, 3600)
	require.NoError(t, err)

	old, err := tree.InsertFolder(docsPath, "Old")
	require.NoError(t, err)
	_, err = tree.SetTrashed(docsPath.Child(old.ID), true)
	require.NoError(t, err)

	tmp, err := tree.InsertFolder(namespace.RootPath, "tmp")
	require.NoError(t, err)
	_, err = tree.Remove(namespace.RootPath.Child(tmp.ID))
	require.NoError(t, err)

	tree.Drain()
	return tree
}

func sampleSnapshot(t *testing.T) *namespace.Snapshot {
	t.Helper()
	snap := sampleTree(t).Snapshot()
	snap.Current = &namespace.CurrentFolder{Path: namespace.MustParsePath("/n1"), Name: "Docs"}
	return snap
}

// normalize makes snapshots from different backends comparable.
func normalize(s *namespace.Snapshot) *namespace.Snapshot {
	c := s.Clone()
	sort.Slice(c.Nodes, func(i, j int) bool { return c.Nodes[i].ID < c.Nodes[j].ID })
	for i := range c.Nodes {
		c.Nodes[i].CreatedAt = c.Nodes[i].CreatedAt.UTC()
	}
	sort.Strings(c.Tombstones)
	if len(c.Nodes) == 0 {
		c.Nodes = nil
	}
	if len(c.Tombstones) == 0 {
		c.Tombstones = nil
	}
	return c
}

func closeStore(t *testing.T, s store.Store) {
	t.Cleanup(func() { _ = s.Close() })
}

// ============================================================================
// Load
// ============================================================================

func (suite *StoreTestSuite) RunLoadTests(t *testing.T) {
	t.Run("Empty", suite.TestLoad_Empty)
	t.Run("RebuildsTree", suite.TestLoad_RebuildsTree)
}

// TestLoad_Empty verifies a never-saved store reports ErrNoState.
func (suite *StoreTestSuite) TestLoad_Empty(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)

	snap, err := s.Load(context.Background())
	assert.Nil(t, snap)
	assert.True(t, errors.Is(err, store.ErrNoState), "got %v", err)
}

// TestLoad_RebuildsTree verifies a loaded snapshot rebuilds an identical tree.
func (suite *StoreTestSuite) TestLoad_RebuildsTree(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)
	ctx := context.Background()

	original := sampleTree(t)
	require.NoError(t, s.Save(ctx, original.Snapshot()))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)

	tree, err := namespace.FromSnapshot(loaded)
	require.NoError(t, err)
	assert.Equal(t, normalize(original.Snapshot()), normalize(tree.Snapshot()))
	assert.Equal(t, original.Stats(), tree.Stats())

	docs := tree.FindFolders("docs")
	require.Len(t, docs, 1)
	list, err := tree.List(namespace.MustParsePath("/" + docs[0].ID))
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

// ============================================================================
// Save
// ============================================================================

func (suite *StoreTestSuite) RunSaveTests(t *testing.T) {
	t.Run("RoundTrip", suite.TestSave_RoundTrip)
	t.Run("Replaces", suite.TestSave_Replaces)
	t.Run("ClearsCurrent", suite.TestSave_ClearsCurrent)
	t.Run("LargeTree", suite.TestSave_LargeTree)
}

// TestSave_RoundTrip verifies Save followed by Load returns the same snapshot.
func (suite *StoreTestSuite) TestSave_RoundTrip(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)
	ctx := context.Background()

	snap := sampleSnapshot(t)
	require.NoError(t, s.Save(ctx, snap))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, normalize(snap), normalize(loaded))
}

// TestSave_Replaces verifies a second Save fully replaces the first.
func (suite *StoreTestSuite) TestSave_Replaces(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleSnapshot(t)))

	fresh := namespace.NewTree(namespace.WithClock(func() time.Time { return fixedTime })).Snapshot()
	require.NoError(t, s.Save(ctx, fresh))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, normalize(fresh), normalize(loaded))
	assert.Len(t, loaded.Nodes, 1)
	assert.Nil(t, loaded.Current)
	assert.Empty(t, loaded.Tombstones)
}

// TestSave_ClearsCurrent verifies a nil current pointer is persisted as absent.
func (suite *StoreTestSuite) TestSave_ClearsCurrent(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)
	ctx := context.Background()

	snap := sampleSnapshot(t)
	require.NoError(t, s.Save(ctx, snap))
	snap.Current = nil
	require.NoError(t, s.Save(ctx, snap))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.Current)
}

// TestSave_LargeTree verifies a tree of a hundred thousand nodes can be saved
// repeatedly and still accepts incremental changes afterwards.
func (suite *StoreTestSuite) TestSave_LargeTree(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large tree in short mode")
	}
	s := suite.NewStore(t)
	closeStore(t, s)
	ctx := context.Background()

	const folders, filesPerFolder = 100, 1000
	tree := namespace.NewTree(
		namespace.WithIDGenerator(&namespace.SequentialIDs{Prefix: "n"}),
		namespace.WithClock(func() time.Time { return fixedTime }),
	)
	for i := 0; i < folders; i++ {
		folder, err := tree.InsertFolder(namespace.RootPath, fmt.Sprintf("Folder %03d", i))
		require.NoError(t, err)
		p := namespace.RootPath.Child(folder.ID)
		for j := 0; j < filesPerFolder; j++ {
			_, err := tree.InsertFile(p, fmt.Sprintf("clip-%04d.mp4", j), namespace.BlobRef{MessageID: int64(i*filesPerFolder + j + 1)}, 1024, 30)
			require.NoError(t, err)
		}
	}
	tree.Drain()
	want := 1 + folders + folders*filesPerFolder

	require.NoError(t, s.Save(ctx, tree.Snapshot()))
	require.NoError(t, s.Save(ctx, tree.Snapshot()), "re-saving a large tree")

	if journal, ok := s.(store.Journal); ok {
		_, err := tree.InsertFolder(namespace.RootPath, "Late")
		require.NoError(t, err)
		upserts, deletes := tree.Drain()
		require.NoError(t, journal.Apply(ctx, &store.Change{Upserts: upserts, Deletes: deletes}))
		want++
	}

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes, want)

	restored, err := namespace.FromSnapshot(loaded)
	require.NoError(t, err)
	assert.Equal(t, folders*filesPerFolder, restored.Stats().Files)
}

// ============================================================================
// Journal
// ============================================================================

func (suite *StoreTestSuite) RunJournalTests(t *testing.T) {
	t.Run("Apply", suite.TestJournal_Apply)
	t.Run("ApplyWithoutState", suite.TestJournal_ApplyWithoutState)
}

// TestJournal_Apply verifies incremental changes land exactly like a full Save.
func (suite *StoreTestSuite) TestJournal_Apply(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)
	journal, ok := s.(store.Journal)
	if !ok {
		t.Skip("store does not implement Journal")
	}
	ctx := context.Background()

	tree := sampleTree(t)
	require.NoError(t, s.Save(ctx, tree.Snapshot()))

	docs := tree.FindFolders("Docs")[0]
	docsPath := namespace.RootPath.Child(docs.ID)
	_, err := tree.InsertFile(docsPath, "notes.txt", namespace.BlobRef{MessageID: 300}, 12, 0)
	require.NoError(t, err)
	_, err = tree.Rename(docsPath, "Documents")
	require.NoError(t, err)
	old := tree.Trashed()[0]
	_, err = tree.Remove(old.Path)
	require.NoError(t, err)

	upserts, deletes := tree.Drain()
	cur := &namespace.CurrentFolder{Path: docsPath, Name: "Documents"}
	require.NoError(t, journal.Apply(ctx, &store.Change{
		Upserts:        upserts,
		Deletes:        deletes,
		CurrentChanged: true,
		Current:        cur,
	}))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)

	want := tree.Snapshot()
	want.Current = cur
	assert.Equal(t, normalize(want), normalize(loaded))

	// Clearing the pointer through the journal
	require.NoError(t, journal.Apply(ctx, &store.Change{CurrentChanged: true}))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.Current)
}

// TestJournal_ApplyWithoutState verifies Apply refuses to run before any Save.
func (suite *StoreTestSuite) TestJournal_ApplyWithoutState(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)
	journal, ok := s.(store.Journal)
	if !ok {
		t.Skip("store does not implement Journal")
	}

	err := journal.Apply(context.Background(), &store.Change{
		Upserts: []namespace.NodeRecord{{ID: "x", Kind: namespace.KindFolder, Name: "x", ParentID: namespace.RootID}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNoState), "got %v", err)
	assert.True(t, namespace.IsCode(err, namespace.ErrPersistence))
}

// ============================================================================
// Healthcheck
// ============================================================================

// TestHealthcheck verifies that a healthy store passes health checks.
func (suite *StoreTestSuite) TestHealthcheck(t *testing.T) {
	s := suite.NewStore(t)
	closeStore(t, s)

	require.NoError(t, s.Healthcheck(context.Background()), "Healthy store should pass health check")
}
