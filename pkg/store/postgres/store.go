// Package postgres implements a namespace store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marmos91/dittodrive/pkg/namespace"
	"github.com/marmos91/dittodrive/pkg/store"
)

const backendName = "postgres"

//go:embed schema.sql
var schema string

var nodeColumns = []string{
	"id", "kind", "name", "parent_id", "message_id", "source_channel",
	"size_bytes", "duration_secs", "created_at", "trashed",
}

const upsertNodeSQL = `
INSERT INTO drive_nodes (id, kind, name, parent_id, message_id, source_channel, size_bytes, duration_secs, created_at, trashed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    kind = EXCLUDED.kind,
    name = EXCLUDED.name,
    parent_id = EXCLUDED.parent_id,
    message_id = EXCLUDED.message_id,
    source_channel = EXCLUDED.source_channel,
    size_bytes = EXCLUDED.size_bytes,
    duration_secs = EXCLUDED.duration_secs,
    created_at = EXCLUDED.created_at,
    trashed = EXCLUDED.trashed`

const upsertMetaSQL = `
INSERT INTO drive_meta (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

// Config configures the PostgreSQL store.
type Config struct {
	// DSN is the pgx connection string
	DSN string `mapstructure:"dsn" validate:"required"`

	// MaxConns caps the pool size (0 keeps the pgx default)
	MaxConns int32 `mapstructure:"max_conns"`

	// ConnectTimeout bounds the initial connection and schema setup
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Store persists the namespace in three tables: drive_nodes,
// drive_tombstones and drive_meta (version, root and current folder).
type Store struct {
	pool *pgxpool.Pool
	own  bool
}

// New connects to PostgreSQL and creates the schema if missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: invalid dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}

	s, err := NewWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.own = true
	return s, nil
}

// NewWithPool uses an existing pool. The pool is not closed by Close.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("postgres store: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Load(ctx context.Context) (*namespace.Snapshot, error) {
	snap, err := s.load(ctx)
	if errors.Is(err, store.ErrNoState) {
		return nil, store.ErrNoState
	}
	if err != nil {
		return nil, store.Wrap(backendName, "load", err)
	}
	return snap, nil
}

func (s *Store) load(ctx context.Context) (*namespace.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	meta, err := readMeta(ctx, tx)
	if err != nil {
		return nil, err
	}
	rawVersion, ok := meta["version"]
	if !ok {
		return nil, store.ErrNoState
	}

	snap := &namespace.Snapshot{RootID: meta["root"]}
	if snap.Version, err = strconv.Atoi(rawVersion); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	if raw, ok := meta["current"]; ok {
		snap.Current = &namespace.CurrentFolder{}
		if err := json.Unmarshal([]byte(raw), snap.Current); err != nil {
			return nil, fmt.Errorf("decode current folder: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `SELECT id, kind, name, parent_id, message_id, source_channel,
		size_bytes, duration_secs, created_at, trashed FROM drive_nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	snap.Nodes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (namespace.NodeRecord, error) {
		var (
			rec    namespace.NodeRecord
			kind   string
			parent *string
		)
		err := row.Scan(&rec.ID, &kind, &rec.Name, &parent, &rec.MessageID, &rec.SourceChannel,
			&rec.Size, &rec.Duration, &rec.CreatedAt, &rec.Trashed)
		rec.Kind = namespace.Kind(kind)
		if parent != nil {
			rec.ParentID = *parent
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}

	rows, err = tx.Query(ctx, `SELECT id FROM drive_tombstones ORDER BY id`)
	if err != nil {
		return nil, err
	}
	snap.Tombstones, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read tombstones: %w", err)
	}
	if len(snap.Tombstones) == 0 {
		snap.Tombstones = nil
	}

	return snap, nil
}

func readMeta(ctx context.Context, tx pgx.Tx) (map[string]string, error) {
	rows, err := tx.Query(ctx, `SELECT key, value FROM drive_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save replaces all rows in one transaction, bulk loading nodes with COPY.
func (s *Store) Save(ctx context.Context, snap *namespace.Snapshot) error {
	err := s.execTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE drive_nodes, drive_tombstones, drive_meta`); err != nil {
			return err
		}

		_, err := tx.CopyFrom(ctx, pgx.Identifier{"drive_nodes"}, nodeColumns,
			pgx.CopyFromSlice(len(snap.Nodes), func(i int) ([]any, error) {
				return nodeValues(snap.Nodes[i]), nil
			}))
		if err != nil {
			return fmt.Errorf("copy nodes: %w", err)
		}

		_, err = tx.CopyFrom(ctx, pgx.Identifier{"drive_tombstones"}, []string{"id"},
			pgx.CopyFromSlice(len(snap.Tombstones), func(i int) ([]any, error) {
				return []any{snap.Tombstones[i]}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy tombstones: %w", err)
		}

		batch := &pgx.Batch{}
		batch.Queue(upsertMetaSQL, "version", strconv.Itoa(snap.Version))
		batch.Queue(upsertMetaSQL, "root", snap.RootID)
		if err := queueCurrent(batch, snap.Current); err != nil {
			return err
		}
		return tx.SendBatch(ctx, batch).Close()
	})

	return store.Wrap(backendName, "save", err)
}

// Apply writes an incremental change in one transaction.
func (s *Store) Apply(ctx context.Context, change *store.Change) error {
	err := s.execTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drive_meta WHERE key = 'version')`).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNoState
		}

		batch := &pgx.Batch{}
		for _, rec := range change.Upserts {
			batch.Queue(upsertNodeSQL, nodeValues(rec)...)
		}
		if len(change.Deletes) > 0 {
			batch.Queue(`DELETE FROM drive_nodes WHERE id = ANY($1)`, change.Deletes)
			batch.Queue(`INSERT INTO drive_tombstones (id) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`, change.Deletes)
		}
		if change.CurrentChanged {
			if err := queueCurrent(batch, change.Current); err != nil {
				return err
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})

	return store.Wrap(backendName, "apply", err)
}

func queueCurrent(batch *pgx.Batch, cur *namespace.CurrentFolder) error {
	if cur == nil {
		batch.Queue(`DELETE FROM drive_meta WHERE key = 'current'`)
		return nil
	}
	data, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("encode current folder: %w", err)
	}
	batch.Queue(upsertMetaSQL, "current", string(data))
	return nil
}

func nodeValues(rec namespace.NodeRecord) []any {
	var parent any
	if rec.ParentID != "" {
		parent = rec.ParentID
	}
	return []any{
		rec.ID, string(rec.Kind), rec.Name, parent, rec.MessageID, rec.SourceChannel,
		rec.Size, rec.Duration, rec.CreatedAt, rec.Trashed,
	}
}

func (s *Store) execTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.own {
		s.pool.Close()
	}
	return nil
}
