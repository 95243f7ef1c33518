package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

func newTestFileRecord(id byte, path string) *Record {
	nodeID := ids.ID{id}
	return &Record{
		NodeID:      nodeID,
		Path:        path,
		NodeType:    TypeFile,
		Size:        11,
		ContentHash: ids.ID{id, 0xFF},
		Metadata:    map[string]string{"lang": "go"},
	}
}

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	r := newTestFileRecord(1, "a/b.go")

	require.NoError(t, s.Put(ctx, r))

	got, err := s.Get(ctx, r.NodeID)
	require.NoError(t, err)
	assert.Equal(t, r.Path, got.Path)
	assert.Equal(t, r.ContentHash, got.ContentHash)
	assert.False(t, got.IsTombstoned())

	byPath, err := s.FindByPath(ctx, "a/b.go")
	require.NoError(t, err)
	assert.Equal(t, r.NodeID, byPath.NodeID)
}

func TestMemStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, err := s.Get(ctx, ids.ID{9})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByPath(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStorePathRenameUpdatesIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	r := newTestFileRecord(7, "old/path.go")
	require.NoError(t, s.Put(ctx, r))

	r.Path = "new/path.go"
	require.NoError(t, s.Put(ctx, r))

	_, err := s.GetByPath(ctx, "old/path.go")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetByPath(ctx, "new/path.go")
	require.NoError(t, err)
	assert.Equal(t, r.NodeID, got.NodeID)
}

func TestMemStoreTombstoneHidesFromFindByPathNotGetByPath(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	r := newTestFileRecord(2, "a/c.go")
	require.NoError(t, s.Put(ctx, r))
	require.NoError(t, s.Tombstone(ctx, r.NodeID, 100))

	_, err := s.FindByPath(ctx, "a/c.go")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetByPath(ctx, "a/c.go")
	require.NoError(t, err)
	assert.True(t, got.IsTombstoned())

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	tombstoned, err := s.ListTombstoned(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tombstoned, 1)
	assert.Equal(t, r.NodeID, tombstoned[0].NodeID)
}

func TestMemStoreRestore(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	r := newTestFileRecord(3, "a/d.go")
	require.NoError(t, s.Put(ctx, r))
	require.NoError(t, s.Tombstone(ctx, r.NodeID, 100))
	require.NoError(t, s.Restore(ctx, r.NodeID))

	got, err := s.FindByPath(ctx, "a/d.go")
	require.NoError(t, err)
	assert.False(t, got.IsTombstoned())
}

func TestMemStorePurgeRequiresTombstoneAndCutoff(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	r := newTestFileRecord(4, "a/e.go")
	require.NoError(t, s.Put(ctx, r))

	err := s.Purge(ctx, r.NodeID, 1000)
	assert.ErrorIs(t, err, ErrNotTombstoned)

	require.NoError(t, s.Tombstone(ctx, r.NodeID, 500))

	err = s.Purge(ctx, r.NodeID, 100)
	assert.ErrorIs(t, err, ErrCutoffNotReached)

	require.NoError(t, s.Purge(ctx, r.NodeID, 500))

	_, err = s.Get(ctx, r.NodeID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Purge of a never-stored id is a benign no-op.
	assert.NoError(t, s.Purge(ctx, ids.ID{200}, 0))
}

func TestMemStorePutBatchAndListAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	records := []*Record{
		newTestFileRecord(10, "x"),
		newTestFileRecord(11, "y"),
	}
	require.NoError(t, s.PutBatch(ctx, records))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecordCloneDoesNotAliasStoreState(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	r := newTestFileRecord(5, "a/f.go")
	r.Children = []ids.NodeID{ids.ID{6}}
	require.NoError(t, s.Put(ctx, r))

	got, err := s.Get(ctx, r.NodeID)
	require.NoError(t, err)
	got.Children[0] = ids.ID{99}
	got.Metadata["lang"] = "tampered"

	got2, err := s.Get(ctx, r.NodeID)
	require.NoError(t, err)
	assert.Equal(t, ids.ID{6}, got2.Children[0])
	assert.Equal(t, "go", got2.Metadata["lang"])
}
