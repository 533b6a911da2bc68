// Package store defines durable persistence for the drive namespace.
//
// A Store saves and restores complete namespace snapshots. Backends that can
// apply small changes transactionally also implement Journal, which lets the
// drive service avoid rewriting the whole snapshot on every mutation.
//
// Available backends:
//   - memory: in-process, for tests and throwaway runs
//   - file: JSON snapshot on local disk, replaced atomically
//   - badger: embedded BadgerDB key-value store
//   - postgres: PostgreSQL via pgx
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittodrive/pkg/namespace"
)

// ErrNoState is returned by Load when nothing has ever been saved.
//
// It is not a failure: the caller bootstraps a fresh tree holding only the
// root. State that exists but cannot be read is reported as a
// *PersistenceError instead.
var ErrNoState = errors.New("no persisted namespace state")

// Store persists namespace snapshots.
//
// Implementations must be safe for concurrent use, although the drive
// service only ever calls them from inside its exclusive mutation section.
type Store interface {
	// Load returns the last saved snapshot.
	//
	// Returns ErrNoState if nothing was saved yet, or a *PersistenceError if
	// state is present but unreadable.
	Load(ctx context.Context) (*namespace.Snapshot, error)

	// Save replaces the durable state with snap.
	//
	// Save is atomic with respect to crashes: after a crash the durable state
	// is either the previous snapshot or snap, never a mix.
	Save(ctx context.Context, snap *namespace.Snapshot) error

	// Healthcheck verifies the backend is reachable and writable.
	Healthcheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Change is an incremental update to persisted state.
type Change struct {
	// Upserts are node records to create or overwrite
	Upserts []namespace.NodeRecord

	// Deletes are ids of removed nodes. They are also recorded as tombstones.
	Deletes []string

	// CurrentChanged marks Current as meaningful; a nil Current clears the pointer
	CurrentChanged bool
	Current        *namespace.CurrentFolder
}

// Empty reports whether the change carries nothing to write.
func (c *Change) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0 && !c.CurrentChanged
}

// Journal is implemented by backends that can apply a Change atomically.
type Journal interface {
	// Apply writes the change in a single transaction.
	//
	// Apply requires that a snapshot was saved before; the first write of a
	// fresh namespace always goes through Save.
	Apply(ctx context.Context, change *Change) error
}

// PersistenceError reports a durable read or write failure.
//
// After a failed write the in-memory namespace may already contain the
// change; callers should treat the outcome as uncertain.
type PersistenceError struct {
	// Op is the failed operation ("load", "save", "apply")
	Op string

	// Backend names the store type
	Backend string

	// Err is the underlying cause
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s store: %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code reports namespace.ErrPersistence so callers can use namespace.IsCode.
func (e *PersistenceError) Code() namespace.ErrorCode { return namespace.ErrPersistence }

// Wrap returns err as a *PersistenceError, keeping existing ones untouched.
// A nil err yields nil.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Backend: backend, Err: err}
}

// ApplyTo folds change into snap. Backends that keep a whole snapshot use it
// to implement Journal.
func ApplyTo(snap *namespace.Snapshot, change *Change) {
	pos := make(map[string]int, len(snap.Nodes))
	for i, rec := range snap.Nodes {
		pos[rec.ID] = i
	}

	for _, rec := range change.Upserts {
		if i, ok := pos[rec.ID]; ok {
			snap.Nodes[i] = rec
			continue
		}
		pos[rec.ID] = len(snap.Nodes)
		snap.Nodes = append(snap.Nodes, rec)
	}

	if len(change.Deletes) > 0 {
		gone := make(map[string]struct{}, len(change.Deletes))
		for _, id := range change.Deletes {
			gone[id] = struct{}{}
		}
		kept := snap.Nodes[:0]
		for _, rec := range snap.Nodes {
			if _, ok := gone[rec.ID]; !ok {
				kept = append(kept, rec)
			}
		}
		snap.Nodes = kept
		snap.Tombstones = append(snap.Tombstones, change.Deletes...)
	}

	if change.CurrentChanged {
		if change.Current == nil {
			snap.Current = nil
		} else {
			cur := *change.Current
			snap.Current = &cur
		}
	}
}
