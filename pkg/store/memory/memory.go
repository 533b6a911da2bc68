// Package memory provides an in-process namespace store.
//
// State lives only as long as the process. It is intended for tests and for
// running the drive without durable storage.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
)

const backendName = "memory"

var errClosed = errors.New("store is closed")

// Store keeps a deep copy of the last saved snapshot.
type Store struct {
	mu     sync.RWMutex
	snap   *namespace.Snapshot
	saves  int
	closed bool
}

// New returns an empty store. Load reports store.ErrNoState until the first Save.
func New() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) (*namespace.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.Wrap(backendName, "load", errClosed)
	}
	if s.snap == nil {
		return nil, store.ErrNoState
	}
	return s.snap.Clone(), nil
}

func (s *Store) Save(ctx context.Context, snap *namespace.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.Wrap(backendName, "save", errClosed)
	}
	s.snap = snap.Clone()
	s.saves++
	return nil
}

// Apply folds change into the stored snapshot.
func (s *Store) Apply(ctx context.Context, change *store.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.Wrap(backendName, "apply", errClosed)
	}
	if s.snap == nil {
		return store.Wrap(backendName, "apply", store.ErrNoState)
	}
	store.ApplyTo(s.snap, change)
	return nil
}

// Saves returns how many full snapshots were written.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *Store) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
