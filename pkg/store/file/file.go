// Package file stores the namespace as a single JSON document on local disk.
//
// Writes go to a temporary file in the same directory, are fsynced and then
// renamed over the previous document, so a crash mid-save leaves either the
// old or the new document in place. The directory is fsynced after the
// rename to make the new name durable.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
)

const backendName = "file"

// Config configures the JSON file store.
type Config struct {
	// Path is the location of the JSON document
	Path string `mapstructure:"path" validate:"required"`

	// Indent pretty-prints the document (larger files, easier debugging)
	Indent bool `mapstructure:"indent"`
}

// Store is a namespace store backed by one JSON file.
type Store struct {
	mu     sync.Mutex
	path   string
	indent bool
}

// New creates the parent directory if needed and returns the store.
// The document itself is created on the first Save.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: failed to create directory: %w", err)
	}
	return &Store{path: cfg.Path, indent: cfg.Indent}, nil
}

func (s *Store) Load(ctx context.Context) (*namespace.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

func (s *Store) read() (*namespace.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNoState
	}
	if err != nil {
		return nil, store.Wrap(backendName, "load", err)
	}

	var snap namespace.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, store.Wrap(backendName, "load", fmt.Errorf("decode %s: %w", s.path, err))
	}
	return &snap, nil
}

func (s *Store) Save(ctx context.Context, snap *namespace.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return store.Wrap(backendName, "save", s.write(snap))
}

// Apply rewrites the document with change folded in.
func (s *Store) Apply(ctx context.Context, change *store.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read()
	if err != nil {
		return store.Wrap(backendName, "apply", err)
	}
	store.ApplyTo(snap, change)
	return store.Wrap(backendName, "apply", s.write(snap))
}

func (s *Store) write(snap *namespace.Snapshot) error {
	var (
		data []byte
		err  error
	)
	if s.indent {
		data, err = json.MarshalIndent(snap, "", "  ")
	} else {
		data, err = json.Marshal(snap)
	}
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	committed = true

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}

func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	probe, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("file store: directory not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

func (s *Store) Close() error { return nil }
