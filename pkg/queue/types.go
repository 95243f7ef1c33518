// Package queue implements the generation queue: a single max-priority
// queue of GenerationRequests, a worker pool, per-agent rate limiting,
// in-flight dedupe, and retry classification. Requests live only in
// memory — a restart drops the queue, and callers re-enqueue.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// Priority is the request's scheduling priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Identity is the dedupe key: a second enqueue sharing this identity
// never creates a second in-flight request.
type Identity struct {
	NodeID    ids.NodeID
	AgentID   string
	FrameType string
}

// Options carries the per-request force/plan-membership flags.
type Options struct {
	// Force skips the head-reuse short-circuit even if a head already
	// exists for Identity.
	Force bool
	// PlanID, when non-empty, marks this request as plan-bound; plan-
	// bound requests rank above ad-hoc requests regardless of Priority.
	PlanID string
}

// Request is an ephemeral generation request. Never persisted.
type Request struct {
	RequestID    string
	NodeID       ids.NodeID
	AgentID      string
	ProviderName string
	FrameType    string
	Priority     Priority
	RetryCount   int
	CreatedAt    time.Time
	Options      Options
}

// Identity returns the request's dedupe identity.
func (r *Request) Identity() Identity {
	return Identity{NodeID: r.NodeID, AgentID: r.AgentID, FrameType: r.FrameType}
}

// NewRequest builds a Request with a fresh RequestID and CreatedAt set
// to time.Now().
func NewRequest(nodeID ids.NodeID, agentID, providerName, frameType string, priority Priority, opts Options) *Request {
	return &Request{
		RequestID:    uuid.NewString(),
		NodeID:       nodeID,
		AgentID:      agentID,
		ProviderName: providerName,
		FrameType:    frameType,
		Priority:     priority,
		CreatedAt:    time.Now(),
		Options:      opts,
	}
}

// Outcome is the settled result delivered to every waiter sharing an
// Identity. The same value is sent once on each waiter channel.
type Outcome struct {
	FrameID ids.FrameID
	Err     error
}

// Stats is a point-in-time snapshot of queue state for observers.
type Stats struct {
	Pending    int64
	Processing int64
	Succeeded  int64
	Failed     int64
	Retried    int64
}
