package node

import (
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"context"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/lib/pq"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is a Store backed by two Postgres tables: node_records
// (keyed by node_id) and node_paths (keyed by path). Keeping the path
// index in its own table means a scan over records can never collide
// with or mistake a path entry, and the path mapping stays
// independently queryable.
type PostgresStore struct {
	db  *stdsql.DB
	log *slog.Logger
}

// OpenPostgresStore opens a connection pool against dsn and applies
// pending migrations.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("node: opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("node: pinging database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, log: slog.Default()}, nil
}

// NewPostgresStoreFromDB wraps an already-open *sql.DB.
func NewPostgresStoreFromDB(db *stdsql.DB) *PostgresStore {
	return &PostgresStore{db: db, log: slog.Default()}
}

func migrateUp(db *stdsql.DB) error {
	// A dedicated migrations table keeps this package's schema version
	// independent of other stores sharing the same database.
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "node_schema_migrations"})
	if err != nil {
		return fmt.Errorf("node: creating migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("node: reading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("node: initializing migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("node: applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func childrenToBytea(children []ids.NodeID) [][]byte {
	out := make([][]byte, len(children))
	for i, c := range children {
		out[i] = append([]byte(nil), c[:]...)
	}
	return out
}

func byteaToChildren(raw [][]byte) ([]ids.NodeID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]ids.NodeID, len(raw))
	for i, b := range raw {
		id, err := ids.FromBytes(b)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Put implements Store. Writes node_records and node_paths inside one
// transaction, upserting node_paths because a node's path may change
// (rename) across Puts of the same node_id.
func (s *PostgresStore) Put(ctx context.Context, r *Record) error {
	return s.putBatchTx(ctx, []*Record{r})
}

func (s *PostgresStore) PutBatch(ctx context.Context, records []*Record) error {
	return s.putBatchTx(ctx, records)
}

func (s *PostgresStore) putBatchTx(ctx context.Context, records []*Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("node: beginning batch put: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("node: marshaling metadata for %s: %w", r.NodeID, err)
		}
		var parent, contentHash, frameSetRoot []byte
		if r.Parent != nil {
			parent = (*r.Parent)[:]
		}
		if r.NodeType == TypeFile {
			contentHash = r.ContentHash[:]
		}
		if r.FrameSetRoot != nil {
			frameSetRoot = (*r.FrameSetRoot)[:]
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO node_records (node_id, path, node_type, size, content_hash, children, parent, frame_set_root, metadata, tombstoned_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (node_id) DO UPDATE SET
				path = EXCLUDED.path,
				node_type = EXCLUDED.node_type,
				size = EXCLUDED.size,
				content_hash = EXCLUDED.content_hash,
				children = EXCLUDED.children,
				parent = EXCLUDED.parent,
				frame_set_root = EXCLUDED.frame_set_root,
				metadata = EXCLUDED.metadata,
				tombstoned_at = EXCLUDED.tombstoned_at`,
			r.NodeID[:], r.Path, int(r.NodeType), r.Size, contentHash,
			pq.Array(childrenToBytea(r.Children)), parent, frameSetRoot, meta, r.TombstonedAt)
		if err != nil {
			return fmt.Errorf("node: upserting %s: %w", r.NodeID, err)
		}

		// A rename leaves the old path row behind; drop it before
		// indexing the new one.
		_, err = tx.ExecContext(ctx, `DELETE FROM node_paths WHERE node_id = $1 AND path <> $2`,
			r.NodeID[:], r.Path)
		if err != nil {
			return fmt.Errorf("node: dropping stale path for %s: %w", r.NodeID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO node_paths (path, node_id)
			VALUES ($1, $2)
			ON CONFLICT (path) DO UPDATE SET node_id = EXCLUDED.node_id`,
			r.Path, r.NodeID[:])
		if err != nil {
			return fmt.Errorf("node: indexing path for %s: %w", r.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("node: committing batch put: %w", err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var (
		nodeIDRaw, contentHash, parent, frameSetRoot []byte
		path                                         string
		nodeType                                     int
		size                                         int64
		childrenRaw                                  [][]byte
		metaRaw                                      []byte
		tombstonedAt                                 *int64
	)
	if err := scan(&nodeIDRaw, &path, &nodeType, &size, &contentHash, pq.Array(&childrenRaw), &parent, &frameSetRoot, &metaRaw, &tombstonedAt); err != nil {
		return nil, err
	}

	nodeID, err := ids.FromBytes(nodeIDRaw)
	if err != nil {
		return nil, fmt.Errorf("decoding node_id: %w", err)
	}
	children, err := byteaToChildren(childrenRaw)
	if err != nil {
		return nil, fmt.Errorf("decoding children: %w", err)
	}
	var meta map[string]string
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	r := &Record{
		NodeID:       nodeID,
		Path:         path,
		NodeType:     Type(nodeType),
		Size:         size,
		Children:     children,
		Metadata:     meta,
		TombstonedAt: tombstonedAt,
	}
	if len(contentHash) > 0 {
		h, err := ids.FromBytes(contentHash)
		if err != nil {
			return nil, fmt.Errorf("decoding content_hash: %w", err)
		}
		r.ContentHash = h
	}
	if len(parent) > 0 {
		p, err := ids.FromBytes(parent)
		if err != nil {
			return nil, fmt.Errorf("decoding parent: %w", err)
		}
		r.Parent = &p
	}
	if len(frameSetRoot) > 0 {
		fsr, err := ids.FromBytes(frameSetRoot)
		if err != nil {
			return nil, fmt.Errorf("decoding frame_set_root: %w", err)
		}
		r.FrameSetRoot = &fsr
	}
	return r, nil
}

const selectRecordColumns = `node_id, path, node_type, size, content_hash, children, parent, frame_set_root, metadata, tombstoned_at`

func (s *PostgresStore) Get(ctx context.Context, id ids.NodeID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectRecordColumns+` FROM node_records WHERE node_id = $1`, id[:])
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("node: fetching %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) GetByPath(ctx context.Context, path string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectRecordColumns+` FROM node_records
		WHERE node_id = (SELECT node_id FROM node_paths WHERE path = $1)`, path)
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("node: fetching path %q: %w", path, err)
	}
	return r, nil
}

func (s *PostgresStore) FindByPath(ctx context.Context, path string) (*Record, error) {
	r, err := s.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if r.IsTombstoned() {
		return nil, ErrNotFound
	}
	return r, nil
}

// listQuery runs a query over node_records and decodes every row,
// skipping and logging rows that fail to decode rather than aborting
// the whole scan — one corrupt record must not halt an iteration.
func (s *PostgresStore) listQuery(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("node: querying records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			s.log.Error("node: skipping corrupt row during scan", "error", err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("node: iterating records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*Record, error) {
	return s.listQuery(ctx, `SELECT `+selectRecordColumns+` FROM node_records`)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Record, error) {
	return s.listQuery(ctx, `SELECT `+selectRecordColumns+` FROM node_records WHERE tombstoned_at IS NULL`)
}

func (s *PostgresStore) ListTombstoned(ctx context.Context, olderThan *int64) ([]*Record, error) {
	if olderThan == nil {
		return s.listQuery(ctx, `SELECT `+selectRecordColumns+` FROM node_records WHERE tombstoned_at IS NOT NULL`)
	}
	return s.listQuery(ctx, `SELECT `+selectRecordColumns+` FROM node_records WHERE tombstoned_at IS NOT NULL AND tombstoned_at <= $1`, *olderThan)
}

func (s *PostgresStore) Tombstone(ctx context.Context, id ids.NodeID, nowUnix int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE node_records SET tombstoned_at = $2 WHERE node_id = $1`, id[:], nowUnix)
	if err != nil {
		return fmt.Errorf("node: tombstoning %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("node: checking tombstone result for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Restore(ctx context.Context, id ids.NodeID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE node_records SET tombstoned_at = NULL WHERE node_id = $1`, id[:])
	if err != nil {
		return fmt.Errorf("node: restoring %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("node: checking restore result for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge implements Store. Deletes node_records (node_paths cascades)
// only when the record is tombstoned at or before cutoff.
func (s *PostgresStore) Purge(ctx context.Context, id ids.NodeID, cutoff int64) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !r.IsTombstoned() {
		return ErrNotTombstoned
	}
	if *r.TombstonedAt > cutoff {
		return ErrCutoffNotReached
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM node_records WHERE node_id = $1`, id[:]); err != nil {
		return fmt.Errorf("node: purging %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Flush(context.Context) error { return nil }
