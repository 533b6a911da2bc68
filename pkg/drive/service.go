// Package drive is the public facade over the drive namespace.
//
// A Service owns one namespace.Tree and the store that keeps it durable.
// Every structural mutation runs inside a single exclusive section and is
// persisted before the call returns; reads run concurrently under a shared
// lock and only ever see fully linked trees.
//
// Construct one Service at process start and pass it to every collaborator
// (bot handlers, import workers) that needs the namespace.
package drive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittodrive/internal/logger"
	"github.com/marmos91/dittodrive/pkg/metrics"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
)

// Options configures a Service.
type Options struct {
	// IDs generates node ids. Defaults to 21-character nanoids.
	IDs namespace.IDGenerator

	// NameRules validates folder and file names. Defaults to
	// namespace.DefaultNameRules().
	NameRules *namespace.NameRules

	// SearchMode is used by SearchFileFolder. Defaults to MatchExact.
	SearchMode namespace.MatchMode

	// Backend names the store in logs and errors (e.g., "badger").
	Backend string

	// Metrics is optional.
	Metrics metrics.NamespaceMetrics

	// Clock overrides the creation timestamp source, mainly for tests.
	Clock func() time.Time
}

// Service is the namespace facade.
//
// Thread Safety:
// All methods are safe for concurrent use. Mutations are serialized with
// each other (including their persistence); reads proceed in parallel and
// return detached copies.
type Service struct {
	mu sync.RWMutex

	tree    *namespace.Tree
	current *namespace.CurrentFolder

	store   store.Store
	journal store.Journal
	backend string

	// resync forces the next commit to write a full snapshot. Set after any
	// failed write, since the drained change set is gone by then.
	resync bool

	searchMode namespace.MatchMode
	metrics    metrics.NamespaceMetrics
	trackStats bool
}

// Open loads the namespace from st, bootstrapping and saving an empty tree
// holding only the root when nothing was persisted yet.
//
// Returns a *store.PersistenceError if the state exists but cannot be read
// or fails structural validation.
func Open(ctx context.Context, st store.Store, opts Options) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("drive: store is required")
	}

	s := &Service{
		store:      st,
		backend:    opts.Backend,
		searchMode: opts.SearchMode,
		metrics:    opts.Metrics,
	}
	if s.backend == "" {
		s.backend = "unknown"
	}
	if j, ok := st.(store.Journal); ok {
		s.journal = j
	}
	if s.metrics == nil {
		s.metrics = metrics.NoopNamespaceMetrics{}
	}
	_, noop := s.metrics.(metrics.NoopNamespaceMetrics)
	s.trackStats = !noop

	var treeOpts []namespace.Option
	if opts.IDs != nil {
		treeOpts = append(treeOpts, namespace.WithIDGenerator(opts.IDs))
	}
	if opts.NameRules != nil {
		treeOpts = append(treeOpts, namespace.WithNameRules(opts.NameRules))
	}
	if opts.Clock != nil {
		treeOpts = append(treeOpts, namespace.WithClock(opts.Clock))
	}

	snap, err := st.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoState):
		logger.Info("No namespace found in %s store, creating an empty drive", s.backend)
		s.tree = namespace.NewTree(treeOpts...)
		if err := s.save(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, store.Wrap(s.backend, "load", err)
	default:
		tree, err := namespace.FromSnapshot(snap, treeOpts...)
		if err != nil {
			return nil, store.Wrap(s.backend, "load", err)
		}
		s.tree = tree
		s.tree.Drain()
		s.current = snap.Current
		logger.Info("Loaded namespace from %s store: %d nodes, %d tombstones",
			s.backend, tree.Len(), tree.Tombstones())
	}

	s.publishStats()
	return s, nil
}

// Close releases the underlying store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}

// Healthcheck verifies the store is reachable.
func (s *Service) Healthcheck(ctx context.Context) error {
	return s.store.Healthcheck(ctx)
}

// ============================================================================
// Persistence
// ============================================================================

// commit makes the pending tree changes durable. Callers hold the write
// lock. currentChanged marks the current-folder pointer as modified.
//
// The journal is used when the backend has one; a failed incremental write
// is retried immediately as a full snapshot save.
func (s *Service) commit(ctx context.Context, currentChanged bool) error {
	defer s.publishStats()

	if s.journal == nil || s.resync {
		return s.save(ctx)
	}

	upserts, deletes := s.tree.Drain()
	change := &store.Change{
		Upserts:        upserts,
		Deletes:        deletes,
		CurrentChanged: currentChanged,
		Current:        s.current,
	}
	if change.Empty() {
		return nil
	}

	start := time.Now()
	err := s.journal.Apply(ctx, change)
	s.metrics.RecordPersist("apply", time.Since(start), err)
	if err == nil {
		return nil
	}

	logger.Warn("Incremental write to %s store failed, saving full snapshot: %v", s.backend, err)
	return s.save(ctx)
}

// save writes the full snapshot. Callers hold the write lock (or own the
// service exclusively during Open).
func (s *Service) save(ctx context.Context) error {
	s.tree.Drain()

	snap := s.tree.Snapshot()
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}

	start := time.Now()
	err := s.store.Save(ctx, snap)
	s.metrics.RecordPersist("save", time.Since(start), err)
	if err != nil {
		s.resync = true
		logger.Error("Failed to persist namespace to %s store: %v", s.backend, err)
		return store.Wrap(s.backend, "save", err)
	}

	s.resync = false
	return nil
}

func (s *Service) publishStats() {
	if s.trackStats {
		s.metrics.SetTreeStats(s.tree.Stats())
	}
}

// observe records an operation's outcome. Use with defer and a named error.
func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.RecordOperation(op, time.Since(start), *err)
	if *err != nil {
		if code, ok := namespace.CodeOf(*err); ok && code != namespace.ErrPersistence {
			logger.Debug("%s rejected: %v", op, *err)
		}
	}
}
