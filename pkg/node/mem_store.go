package node

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// MemStore is an in-memory Store, used by unit tests and by callers that
// don't need cross-process durability.
type MemStore struct {
	mu     sync.RWMutex
	byID   map[ids.NodeID]*Record
	byPath map[string]ids.NodeID
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:   make(map[ids.NodeID]*Record),
		byPath: make(map[string]ids.NodeID),
	}
}

func (s *MemStore) Get(_ context.Context, id ids.NodeID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemStore) GetByPath(_ context.Context, path string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPath[path]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemStore) FindByPath(ctx context.Context, path string) (*Record, error) {
	r, err := s.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if r.IsTombstoned() {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemStore) Put(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(r)
	return nil
}

func (s *MemStore) putLocked(r *Record) {
	if old, ok := s.byID[r.NodeID]; ok && old.Path != r.Path {
		// Rename: drop the stale path index entry.
		delete(s.byPath, old.Path)
	}
	clone := r.Clone()
	s.byID[r.NodeID] = clone
	s.byPath[r.Path] = r.NodeID
}

func (s *MemStore) PutBatch(_ context.Context, records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.putLocked(r)
	}
	return nil
}

func (s *MemStore) ListAll(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *MemStore) ListActive(ctx context.Context) ([]*Record, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if !r.IsTombstoned() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemStore) Tombstone(_ context.Context, id ids.NodeID, nowUnix int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	ts := nowUnix
	r.TombstonedAt = &ts
	return nil
}

func (s *MemStore) Restore(_ context.Context, id ids.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.TombstonedAt = nil
	return nil
}

func (s *MemStore) ListTombstoned(_ context.Context, olderThan *int64) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.byID {
		if !r.IsTombstoned() {
			continue
		}
		if olderThan != nil && *r.TombstonedAt > *olderThan {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *MemStore) Purge(_ context.Context, id ids.NodeID, cutoff int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil // purge of a never-stored id is a benign no-op
	}
	if !r.IsTombstoned() {
		return ErrNotTombstoned
	}
	if *r.TombstonedAt > cutoff {
		return ErrCutoffNotReached
	}
	delete(s.byID, id)
	delete(s.byPath, r.Path)
	return nil
}

func (s *MemStore) Flush(_ context.Context) error { return nil }
