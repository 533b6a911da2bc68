package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittodrive/pkg/drive"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
)

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{name: "memory", cfg: StoreConfig{Type: "memory"}},
		{name: "file", cfg: StoreConfig{Type: "file", File: map[string]any{"path": filepath.Join(tmpDir, "drive.json")}}},
		{name: "badger in memory", cfg: StoreConfig{Type: "badger", Badger: map[string]any{"in_memory": true}}},
		{name: "file without path", cfg: StoreConfig{Type: "file", File: map[string]any{}}, wantErr: true},
		{name: "unknown", cfg: StoreConfig{Type: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := CreateStore(ctx, &tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateStore failed: %v", err)
			}
			defer func() { _ = st.Close() }()

			if _, err := st.Load(ctx); !errors.Is(err, store.ErrNoState) {
				t.Errorf("Expected ErrNoState from a fresh store, got %v", err)
			}
		})
	}
}

func TestCreateBlob_Memory(t *testing.T) {
	cfg := GetDefaultConfig()

	b, err := CreateBlob(context.Background(), &cfg.Blob, nil)
	if err != nil {
		t.Fatalf("CreateBlob failed: %v", err)
	}
	if err := b.CheckAccess(context.Background(), cfg.Blob.StorageChannel); err != nil {
		t.Errorf("Expected storage channel to exist, got %v", err)
	}
}

func TestCreateBlob_Unknown(t *testing.T) {
	if _, err := CreateBlob(context.Background(), &BlobConfig{Type: "ftp"}, nil); err == nil {
		t.Fatal("Expected error for unknown blob type")
	}
}

func TestDriveOptions(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = "memory"
	cfg.Namespace.SearchMode = "substring"

	opts, err := DriveOptions(cfg, InitializeMetrics(cfg, nil))
	if err != nil {
		t.Fatalf("DriveOptions failed: %v", err)
	}
	if opts.SearchMode != namespace.MatchSubstring {
		t.Errorf("Expected substring search, got %v", opts.SearchMode)
	}

	ctx := context.Background()
	st, err := CreateStore(ctx, &cfg.Store)
	if err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	svc, err := drive.Open(ctx, st, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = svc.Close() }()

	p, err := svc.NewFolder(ctx, namespace.RootPath, "Inbox")
	if err != nil {
		t.Fatalf("NewFolder failed: %v", err)
	}
	if len(p.Last()) != 21 {
		t.Errorf("Expected a 21-character nanoid, got %q", p.Last())
	}
}

func TestImporterOptions(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Importer.Rate = 10
	cfg.Importer.Burst = 3

	opts := ImporterOptions(cfg, nil)
	if opts.MaxItems != 5000 {
		t.Errorf("Expected max items 5000, got %d", opts.MaxItems)
	}
	if opts.Limiter == nil || opts.Limiter.Unlimited() {
		t.Error("Expected a limited rate limiter")
	}
}
