// Package heads implements the head index (C4): an in-memory map from
// (NodeID, frame_type) to the latest FrameID, persisted atomically to a
// single file per workspace.
package heads

import (
	"sync"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

type key struct {
	node      ids.NodeID
	frameType string
}

// Index is the head index. Safe for concurrent use; all mutation goes
// through a single reader/writer lock — the state is small (bounded by
// active nodes times active frame types) and writes are rare relative
// to reads.
type Index struct {
	mu    sync.RWMutex
	heads map[key]ids.FrameID
	// tombstoned records node IDs whose heads are tombstoned (kept in
	// the index rather than deleted, so TombstoneHeadsForNode/
	// RestoreHeadsForNode/PurgeTombstoned can round-trip) along with
	// the unix-seconds timestamp they were tombstoned at.
	tombstoned map[ids.NodeID]int64
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		heads:      make(map[key]ids.FrameID),
		tombstoned: make(map[ids.NodeID]int64),
	}
}

// GetHead returns the latest FrameID for (nodeID, frameType), or false
// if no head exists.
func (idx *Index) GetHead(nodeID ids.NodeID, frameType string) (ids.FrameID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.heads[key{nodeID, frameType}]
	return id, ok
}

// GetAllHeadsForNode returns a copy of every (frame_type -> FrameID)
// head currently recorded for nodeID.
func (idx *Index) GetAllHeadsForNode(nodeID ids.NodeID) map[string]ids.FrameID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]ids.FrameID)
	for k, v := range idx.heads {
		if k.node == nodeID {
			out[k.frameType] = v
		}
	}
	return out
}

// GetAllNodeIDs returns the distinct set of node IDs that have at
// least one head entry.
func (idx *Index) GetAllNodeIDs() []ids.NodeID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[ids.NodeID]struct{})
	for k := range idx.heads {
		seen[k.node] = struct{}{}
	}
	out := make([]ids.NodeID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// CountNodesForFrameType returns the number of distinct nodes that
// have a head entry for frameType.
func (idx *Index) CountNodesForFrameType(frameType string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	count := 0
	for k := range idx.heads {
		if k.frameType == frameType {
			count++
		}
	}
	return count
}

// UpdateHead unconditionally overwrites the head for (nodeID,
// frameType) — the newest successful append always wins.
func (idx *Index) UpdateHead(nodeID ids.NodeID, frameType string, frameID ids.FrameID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.heads[key{nodeID, frameType}] = frameID
}

// TombstoneHeadsForNode marks nodeID's heads tombstoned as of
// nowUnix. The head entries themselves are kept (not deleted) so
// PurgeTombstoned can later reap them by cutoff.
func (idx *Index) TombstoneHeadsForNode(nodeID ids.NodeID, nowUnix int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tombstoned[nodeID] = nowUnix
}

// RestoreHeadsForNode clears any tombstone recorded for nodeID.
func (idx *Index) RestoreHeadsForNode(nodeID ids.NodeID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.tombstoned, nodeID)
}

// PurgeTombstoned removes head entries (and the tombstone marker
// itself) for every node tombstoned at or before cutoff. Returns the
// number of nodes purged.
func (idx *Index) PurgeTombstoned(cutoff int64) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	purged := 0
	for nodeID, ts := range idx.tombstoned {
		if ts > cutoff {
			continue
		}
		for k := range idx.heads {
			if k.node == nodeID {
				delete(idx.heads, k)
			}
		}
		delete(idx.tombstoned, nodeID)
		purged++
	}
	return purged
}
