package namespace

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	tree := newTestTree(t)
	a := mustFolder(t, tree, RootPath, "a")
	b := mustFolder(t, tree, a, "b")
	_, err := tree.InsertFile(b, "clip.mp4", BlobRef{MessageID: 5, SourceChannel: "-1001"}, 100, 30)
	require.NoError(t, err)
	gone := mustFolder(t, tree, RootPath, "gone")
	_, err = tree.Remove(gone)
	require.NoError(t, err)
	_, err = tree.SetTrashed(b, true)
	require.NoError(t, err)

	snap := tree.Snapshot()
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, []string{"F4"}, snap.Tombstones)

	restored, err := FromSnapshot(snap.Clone(), WithIDGenerator(&SequentialIDs{Prefix: "F"}))
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Snapshot())
	assert.Len(t, restored.Search("a", MatchExact), 1)
	assert.Empty(t, restored.Search("clip.mp4", MatchExact), "trashed stays trashed")

	// tombstoned F4 is skipped, as are live F1..F3
	c := mustFolder(t, restored, RootPath, "c")
	assert.Equal(t, "/F5", c.String())
}

func TestFromSnapshot_Corrupt(t *testing.T) {
	now := time.Now().UTC()
	root := NodeRecord{ID: RootID, Kind: KindFolder, Name: RootName, CreatedAt: now}

	tests := []struct {
		name string
		snap *Snapshot
	}{
		{name: "nil", snap: nil},
		{name: "bad version", snap: &Snapshot{Version: 99, RootID: RootID, Nodes: []NodeRecord{root}}},
		{name: "missing root", snap: &Snapshot{Version: 1, RootID: RootID}},
		{name: "duplicate id", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "a", Kind: KindFolder, Name: "a", ParentID: RootID},
			{ID: "a", Kind: KindFile, Name: "b", ParentID: RootID},
		}}},
		{name: "orphan", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "a", Kind: KindFolder, Name: "a", ParentID: "ghost"},
		}}},
		{name: "file as parent", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "f", Kind: KindFile, Name: "f", ParentID: RootID},
			{ID: "a", Kind: KindFolder, Name: "a", ParentID: "f"},
		}}},
		{name: "cycle", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "a", Kind: KindFolder, Name: "a", ParentID: "b"},
			{ID: "b", Kind: KindFolder, Name: "b", ParentID: "a"},
		}}},
		{name: "duplicate folder names", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "a", Kind: KindFolder, Name: "Docs", ParentID: RootID},
			{ID: "b", Kind: KindFolder, Name: "docs", ParentID: RootID},
		}}},
		{name: "negative size", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "f", Kind: KindFile, Name: "f", ParentID: RootID, Size: -4},
		}}},
		{name: "unknown kind", snap: &Snapshot{Version: 1, RootID: RootID, Nodes: []NodeRecord{
			root,
			{ID: "x", Kind: "symlink", Name: "x", ParentID: RootID},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSnapshot(tt.snap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptSnapshot), "got %v", err)
		})
	}
}
