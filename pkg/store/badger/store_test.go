package badger

import (
	"context"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
	storetesting "github.com/marmos91/dittodrive/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBadgerStore runs the complete Store test suite against BadgerDB.
func TestBadgerStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			s, err := New(context.Background(), Config{InMemory: true})
			require.NoError(t, err)
			return s
		},
	}

	suite.Run(t)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "drive.db")

	tree := namespace.NewTree()
	_, err := tree.InsertFolder(namespace.RootPath, "Inbox")
	require.NoError(t, err)
	want := tree.Snapshot()

	s, err := New(ctx, Config{DBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Close())

	s, err = New(ctx, Config{DBPath: dbPath})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	restored, err := namespace.FromSnapshot(got)
	require.NoError(t, err)
	assert.Len(t, restored.FindFolders("inbox"), 1)
}

func TestBadgerStore_SaveDropsStaleGenerations(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	tree := namespace.NewTree()
	_, err = tree.InsertFolder(namespace.RootPath, "Inbox")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, tree.Snapshot()))

	// A half-written generation from an interrupted Save.
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(7, "ghost"), []byte(`{"id":"ghost"}`))
	}))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes, 2, "only the live generation is read")

	require.NoError(t, s.Save(ctx, tree.Snapshot()))

	var gens []uint64
	require.NoError(t, s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixGeneration, func(key, _ []byte) error {
			gen, ok := parseGen(key)
			require.True(t, ok)
			if len(gens) == 0 || gens[len(gens)-1] != gen {
				gens = append(gens, gen)
			}
			return nil
		})
	}))
	assert.Equal(t, []uint64{1}, gens)

	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes, 2)
}
