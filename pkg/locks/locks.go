// Package locks implements the per-node lock manager (C5): a sharded
// map from NodeID to a reader/writer lock, created on demand.
package locks

import (
	"sync"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

const shardCount = 32

// Manager hands out a stable *sync.RWMutex per NodeID. The PutFrame
// critical section is: acquire the node's write lock, store the frame
// blob, update the head index, best-effort persist the head index,
// release. Reads never acquire these locks; they rely on the head
// index being point-in-time consistent.
type Manager struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.Mutex
	locks map[ids.NodeID]*sync.RWMutex
}

// New returns an empty Manager.
func New() *Manager {
	m := &Manager{}
	for i := range m.shards {
		m.shards[i].locks = make(map[ids.NodeID]*sync.RWMutex)
	}
	return m
}

func shardIndex(id ids.NodeID) int {
	return int(id[0]) % shardCount
}

// Lock returns the RWMutex for id, creating it on first use.
func (m *Manager) Lock(id ids.NodeID) *sync.RWMutex {
	s := &m.shards[shardIndex(id)]
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[id] = l
	}
	return l
}

// WithWriteLock runs fn while holding id's write lock.
func (m *Manager) WithWriteLock(id ids.NodeID, fn func() error) error {
	l := m.Lock(id)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// WithReadLock runs fn while holding id's read lock. Ordinary reads
// don't take node locks, but callers like compaction that need a
// consistency fence against a concurrent PutFrame can.
func (m *Manager) WithReadLock(id ids.NodeID, fn func() error) error {
	l := m.Lock(id)
	l.RLock()
	defer l.RUnlock()
	return fn()
}
