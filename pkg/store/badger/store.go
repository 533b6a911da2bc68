// Package badger implements a namespace store on top of BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
)

const backendName = "badger"

// Config configures the BadgerDB store.
type Config struct {
	// DBPath is the directory holding the database files
	DBPath string `mapstructure:"db_path" validate:"required"`

	// BlockCacheSizeMB sizes the block cache (default: 64MB)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// InMemory runs Badger without touching disk (tests only)
	InMemory bool `mapstructure:"in_memory"`
}

// Store persists the namespace in BadgerDB.
//
// Storage Model:
// One key per node plus a few metadata keys (see keys.go). Save streams the
// snapshot into a fresh key generation through a WriteBatch, which Badger
// splits into as many transactions as needed, so snapshot size is bounded by
// disk rather than by Badger's per-transaction limit. The switch to the new
// generation is a single small transaction. Apply writes only the changed
// keys of the live generation inside one transaction; a change too large for
// one transaction returns badger.ErrTxnTooBig and callers fall back to Save.
type Store struct {
	db *badger.DB
}

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger store: db_path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}

	// Node records are small JSON documents.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &Store{db: db}, nil
}

// Load reads every node record and metadata key in one read transaction.
func (s *Store) Load(ctx context.Context) (*namespace.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snap *namespace.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyVersion))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNoState
		}
		if err != nil {
			return err
		}

		snap = &namespace.Snapshot{}
		if err := item.Value(func(val []byte) error {
			version, convErr := strconv.Atoi(string(val))
			snap.Version = version
			return convErr
		}); err != nil {
			return fmt.Errorf("decode version: %w", err)
		}

		gen, err := readGeneration(txn)
		if err != nil {
			return err
		}

		item, err = txn.Get([]byte(keyRoot))
		if err != nil {
			return fmt.Errorf("read root pointer: %w", err)
		}
		rootID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		snap.RootID = string(rootID)

		item, err = txn.Get([]byte(keyCurrent))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			snap.Current = &namespace.CurrentFolder{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, snap.Current)
			}); err != nil {
				return fmt.Errorf("decode current folder: %w", err)
			}
		}

		if err := scanPrefix(txn, nodePrefix(gen), func(key, val []byte) error {
			var rec namespace.NodeRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode node %s: %w", key, err)
			}
			snap.Nodes = append(snap.Nodes, rec)
			return nil
		}); err != nil {
			return err
		}

		prefix := tombstonePrefix(gen)
		return scanPrefix(txn, prefix, func(key, _ []byte) error {
			snap.Tombstones = append(snap.Tombstones, string(key[len(prefix):]))
			return nil
		})
	})

	if errors.Is(err, store.ErrNoState) {
		return nil, store.ErrNoState
	}
	if err != nil {
		return nil, store.Wrap(backendName, "load", err)
	}
	return snap, nil
}

// Save replaces all persisted state with snap.
//
// The nodes are written under a new generation first; the generation pointer
// and metadata keys then switch in one transaction. Until that commit, Load
// keeps returning the previous snapshot.
func (s *Store) Save(ctx context.Context, snap *namespace.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.Wrap(backendName, "save", s.save(snap))
}

func (s *Store) save(snap *namespace.Snapshot) error {
	var live uint64
	var initialized bool
	if err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyVersion)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		initialized = true
		var err error
		live, err = readGeneration(txn)
		return err
	}); err != nil {
		return err
	}

	next := live + 1
	if !initialized {
		next = 0
	}

	// Leftovers of an interrupted Save, or of an older generation whose
	// cleanup failed, would otherwise mix into the new one.
	if err := s.dropGenerations(func(gen uint64) bool { return initialized && gen == live }); err != nil {
		return fmt.Errorf("clear stale generations: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, rec := range snap.Nodes {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", rec.ID, err)
		}
		if err := wb.Set(nodeKey(next, rec.ID), data); err != nil {
			return err
		}
	}
	for _, id := range snap.Tombstones {
		if err := wb.Set(tombstoneKey(next, id), nil); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write generation %d: %w", next, err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyVersion), []byte(strconv.Itoa(snap.Version))); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyGeneration), []byte(strconv.FormatUint(next, 10))); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyRoot), []byte(snap.RootID)); err != nil {
			return err
		}
		return putCurrent(txn, snap.Current)
	}); err != nil {
		return err
	}

	if err := s.dropGenerations(func(gen uint64) bool { return gen == next }); err != nil {
		logger.Warn("Badger store: failed to drop superseded generation: %v", err)
	}
	return nil
}

// dropGenerations deletes every generation for which keep returns false.
func (s *Store) dropGenerations(keep func(gen uint64) bool) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixGeneration)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); {
			gen, ok := parseGen(it.Item().Key())
			if !ok {
				it.Next()
				continue
			}
			if keep(gen) {
				it.Seek([]byte(genPrefix(gen + 1)))
				continue
			}
			if err := wb.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
			it.Next()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return wb.Flush()
}

// Apply writes an incremental change to the live generation in one
// transaction.
func (s *Store) Apply(ctx context.Context, change *store.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyVersion)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return store.ErrNoState
			}
			return err
		}
		gen, err := readGeneration(txn)
		if err != nil {
			return err
		}

		for _, rec := range change.Upserts {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode node %s: %w", rec.ID, err)
			}
			if err := txn.Set(nodeKey(gen, rec.ID), data); err != nil {
				return err
			}
		}
		for _, id := range change.Deletes {
			if err := txn.Delete(nodeKey(gen, id)); err != nil {
				return err
			}
			if err := txn.Set(tombstoneKey(gen, id), nil); err != nil {
				return err
			}
		}
		if change.CurrentChanged {
			return putCurrent(txn, change.Current)
		}
		return nil
	})

	return store.Wrap(backendName, "apply", err)
}

// readGeneration returns the live generation, 0 for a database that was
// never saved.
func readGeneration(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keyGeneration))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var gen uint64
	err = item.Value(func(val []byte) error {
		var convErr error
		gen, convErr = strconv.ParseUint(string(val), 10, 64)
		return convErr
	})
	if err != nil {
		return 0, fmt.Errorf("decode generation: %w", err)
	}
	return gen, nil
}

func putCurrent(txn *badger.Txn, cur *namespace.CurrentFolder) error {
	if cur == nil {
		err := txn.Delete([]byte(keyCurrent))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("encode current folder: %w", err)
	}
	return txn.Set([]byte(keyCurrent), data)
}

// scanPrefix calls fn for every key with the given prefix.
// The key and value slices are only valid during the callback.
func scanPrefix(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.Key()
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// BadgerDB returns an error here if it is closed or corrupted
	err := s.db.View(func(txn *badger.Txn) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
