//go:build integration

package node

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("ctxengine_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = testcontainers.TerminateContainer(container)
		})

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	store, err := OpenPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	r := newTestFileRecord(1, "a/b.go")

	require.NoError(t, store.Put(ctx, r))

	got, err := store.Get(ctx, r.NodeID)
	require.NoError(t, err)
	require.Equal(t, r.Path, got.Path)
	require.Equal(t, r.ContentHash, got.ContentHash)

	byPath, err := store.FindByPath(ctx, "a/b.go")
	require.NoError(t, err)
	require.Equal(t, r.NodeID, byPath.NodeID)
}

func TestPostgresStorePathRenameUpdatesIndex(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	r := newTestFileRecord(2, "old/path.go")
	require.NoError(t, store.Put(ctx, r))

	r.Path = "new/path.go"
	require.NoError(t, store.Put(ctx, r))

	_, err := store.GetByPath(ctx, "old/path.go")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetByPath(ctx, "new/path.go")
	require.NoError(t, err)
	require.Equal(t, r.NodeID, got.NodeID)
}

func TestPostgresStoreTombstoneRestorePurge(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	r := newTestFileRecord(3, "a/c.go")
	require.NoError(t, store.Put(ctx, r))

	require.NoError(t, store.Tombstone(ctx, r.NodeID, 500))

	_, err := store.FindByPath(ctx, "a/c.go")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store.Purge(ctx, r.NodeID, 100), ErrCutoffNotReached)
	require.NoError(t, store.Purge(ctx, r.NodeID, 500))

	_, err = store.Get(ctx, r.NodeID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreDirectoryWithChildren(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	child := ids.ID{4}
	dir := &Record{
		NodeID:   ids.ID{5},
		Path:     "a",
		NodeType: TypeDirectory,
		Children: []ids.NodeID{child},
		Metadata: map[string]string{},
	}
	require.NoError(t, store.Put(ctx, dir))

	got, err := store.Get(ctx, dir.NodeID)
	require.NoError(t, err)
	require.Equal(t, []ids.NodeID{child}, got.Children)
}

func TestPostgresStorePutBatchAndListActive(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	records := []*Record{
		newTestFileRecord(10, "x"),
		newTestFileRecord(11, "y"),
	}
	require.NoError(t, store.PutBatch(ctx, records))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(active), 2)
}
