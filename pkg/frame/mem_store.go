package frame

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// MemStore is an in-memory Store, used by tests and by callers that
// don't need cross-process durability. It implements the same
// idempotent-store / synchronous-purge contract as the Postgres-backed
// implementation.
type MemStore struct {
	mu     sync.RWMutex
	frames map[ids.FrameID]*Frame
}

// NewMemStore creates an empty in-memory frame store.
func NewMemStore() *MemStore {
	return &MemStore{frames: make(map[ids.FrameID]*Frame)}
}

// Store implements Store.
func (s *MemStore) Store(_ context.Context, f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.frames[f.FrameID]; exists {
		return nil // content-addressed: re-storing identical content is a no-op
	}
	s.frames[f.FrameID] = f.Clone()
	return nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id ids.FrameID) (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f.Clone(), nil
}

// Exists implements Store.
func (s *MemStore) Exists(_ context.Context, id ids.FrameID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.frames[id]
	return ok, nil
}

// Purge implements Store.
func (s *MemStore) Purge(_ context.Context, id ids.FrameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, id)
	return nil
}
