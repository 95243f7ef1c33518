package frame

import (
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"context"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is a Store backed by a Postgres table, content-addressed
// on frame_id: database/sql over the pgx driver, schema managed by
// golang-migrate against an embedded migration set.
type PostgresStore struct {
	db *stdsql.DB
}

// OpenPostgresStore opens a connection pool against dsn and applies
// pending migrations.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("frame: opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("frame: pinging database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already-open *sql.DB (useful for
// tests that share a connection pool across stores).
func NewPostgresStoreFromDB(db *stdsql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func migrateUp(db *stdsql.DB) error {
	// A dedicated migrations table keeps this package's schema version
	// independent of other stores sharing the same database.
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "frame_schema_migrations"})
	if err != nil {
		return fmt.Errorf("frame: creating migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("frame: reading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("frame: initializing migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("frame: applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

const (
	basisKindNode  = 1
	basisKindFrame = 2
	basisKindBoth  = 3
)

func basisToColumns(b ids.Basis) (kind int, node, fr []byte) {
	switch b.Kind {
	case ids.BasisFrame:
		return basisKindFrame, nil, b.Frame[:]
	case ids.BasisBoth:
		return basisKindBoth, b.Node[:], b.Frame[:]
	default:
		return basisKindNode, b.Node[:], nil
	}
}

func columnsToBasis(kind int, node, fr []byte) (ids.Basis, error) {
	switch kind {
	case basisKindFrame:
		f, err := ids.FromBytes(fr)
		if err != nil {
			return ids.Basis{}, err
		}
		return ids.FrameBasis(f), nil
	case basisKindBoth:
		n, err := ids.FromBytes(node)
		if err != nil {
			return ids.Basis{}, err
		}
		f, err := ids.FromBytes(fr)
		if err != nil {
			return ids.Basis{}, err
		}
		return ids.BothBasis(n, f), nil
	default:
		n, err := ids.FromBytes(node)
		if err != nil {
			return ids.Basis{}, err
		}
		return ids.NodeBasis(n), nil
	}
}

// Store implements Store. Idempotent via ON CONFLICT DO NOTHING, which
// makes a second store of identical content addressed at the same
// frame_id a true no-op at the database level.
func (s *PostgresStore) Store(ctx context.Context, f *Frame) error {
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("frame: marshaling metadata: %w", err)
	}
	kind, node, fr := basisToColumns(f.Basis)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO frames (frame_id, basis_kind, basis_node, basis_frame, content, frame_type, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (frame_id) DO NOTHING`,
		f.FrameID[:], kind, node, fr, f.Content, f.FrameType, f.Timestamp.UTC(), meta)
	if err != nil {
		return fmt.Errorf("frame: storing %s: %w", f.FrameID, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id ids.FrameID) (*Frame, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT basis_kind, basis_node, basis_frame, content, frame_type, created_at, metadata
		FROM frames WHERE frame_id = $1`, id[:])

	var (
		kind              int
		node, fr, content []byte
		frameType         string
		ts                time.Time
		metaRaw           []byte
	)
	if err := row.Scan(&kind, &node, &fr, &content, &frameType, &ts, &metaRaw); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("frame: fetching %s: %w", id, err)
	}

	basis, err := columnsToBasis(kind, node, fr)
	if err != nil {
		return nil, fmt.Errorf("frame: decoding basis for %s: %w", id, err)
	}
	var meta map[string]string
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("frame: decoding metadata for %s: %w", id, err)
		}
	}

	return &Frame{
		FrameID:   id,
		Basis:     basis,
		Content:   content,
		FrameType: frameType,
		Timestamp: ts,
		Metadata:  meta,
	}, nil
}

// Exists implements Store.
func (s *PostgresStore) Exists(ctx context.Context, id ids.FrameID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM frames WHERE frame_id = $1)`, id[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("frame: checking existence of %s: %w", id, err)
	}
	return exists, nil
}

// Purge implements Store. Synchronous delete. A purge racing a store
// of the same frame_id lets the store re-create the row; compact never
// purges a frame still referenced by a live head, so the race is
// benign.
func (s *PostgresStore) Purge(ctx context.Context, id ids.FrameID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM frames WHERE frame_id = $1`, id[:])
	if err != nil {
		return fmt.Errorf("frame: purging %s: %w", id, err)
	}
	return nil
}
