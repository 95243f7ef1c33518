// Package frame implements the content-addressed frame blob store:
// Frame is the atomic, immutable unit of agent-produced context, and
// Store persists frames keyed by FrameID.
package frame

import (
	"context"
	"time"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// ReservedMetadataAgentID and ReservedMetadataDeleted are the two
// reserved metadata keys: agent_id is load-bearing (every
// frame's metadata must carry it) but must never be used as a general
// side channel, and "deleted" is reserved outright. Both are stripped
// from the frames the HTTP API returns (see pkg/api's FrameResponse);
// pkg/ctxapi and pkg/view hand back frames with their stored metadata.
const (
	ReservedMetadataAgentID = "agent_id"
	ReservedMetadataDeleted = "deleted"
)

// Frame is the atomic unit of agent-produced context. Immutable once
// stored; FrameID is a pure function of basis, content, type, and agent.
type Frame struct {
	FrameID   ids.FrameID
	Basis     ids.Basis
	Content   []byte
	FrameType string
	Timestamp time.Time
	Metadata  map[string]string
}

// AgentID returns the required agent_id metadata value, or "" if absent
// (callers that need to enforce its presence should do so explicitly;
// the store itself does not validate frame shape — that is PutFrame's
// job in pkg/ctxapi).
func (f *Frame) AgentID() string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[ReservedMetadataAgentID]
}

// Clone returns a deep copy of f so callers can mutate the result
// without aliasing store-internal state.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := *f
	if f.Content != nil {
		out.Content = append([]byte(nil), f.Content...)
	}
	if f.Metadata != nil {
		out.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Store is the content-addressed blob store interface. Store is
// idempotent: storing the same FrameID twice is a no-op and must not
// create a duplicate row.
type Store interface {
	// Store persists f. Idempotent on FrameID.
	Store(ctx context.Context, f *Frame) error
	// Get retrieves the frame with the given id, or ErrNotFound.
	Get(ctx context.Context, id ids.FrameID) (*Frame, error)
	// Exists reports whether id is present without fetching content.
	Exists(ctx context.Context, id ids.FrameID) (bool, error)
	// Purge permanently deletes the frame with the given id. Used only
	// by compact. Synchronous; a purge racing a store of the same
	// FrameID simply lets the store re-create the row, which is benign
	// because compact never purges a frame still referenced by a live
	// head.
	Purge(ctx context.Context, id ids.FrameID) error
}

// ErrNotFound is returned by Get when no frame exists for the given id.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "frame: not found" }
