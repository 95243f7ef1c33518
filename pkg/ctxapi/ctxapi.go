// Package ctxapi implements the Context API facade (C8): the single
// entry point callers use to read and write context, backed by the
// node, frame, head, lock, and agent components underneath.
package ctxapi

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/ctxengine/pkg/agentreg"
	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/frametype"
	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
	"github.com/codeready-toolchain/ctxengine/pkg/locks"
	"github.com/codeready-toolchain/ctxengine/pkg/node"
	"github.com/codeready-toolchain/ctxengine/pkg/view"
)

// Service is the Context API facade. One Service is shared by every
// caller in a workspace.
type Service struct {
	Nodes  node.Store
	Frames frame.Store
	Heads  *heads.Index
	Locks  *locks.Manager
	Agents *agentreg.Registry

	// HeadsPath is where the head index is persisted after PutFrame.
	// Empty disables persistence (useful for tests).
	HeadsPath string

	Log *slog.Logger
}

// NodeContext is the result of GetNode: the node record, the frames
// selected by the view policy, and the pre-filter frame count.
type NodeContext struct {
	Record         *node.Record
	Frames         []*frame.Frame
	PreFilterCount int
}

func (s *Service) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

type nodeResolverAdapter struct {
	store node.Store
}

func (a nodeResolverAdapter) Parent(id ids.NodeID) (ids.NodeID, bool) {
	r, err := a.store.Get(context.Background(), id)
	if err != nil || r.Parent == nil {
		return ids.NodeID{}, false
	}
	return *r.Parent, true
}

func (a nodeResolverAdapter) Children(id ids.NodeID) []ids.NodeID {
	r, err := a.store.Get(context.Background(), id)
	if err != nil {
		return nil
	}
	return r.Children
}

// GetNode resolves the node's heads, materializes frames, and applies
// the view policy. Read-only.
func (s *Service) GetNode(ctx context.Context, nodeID ids.NodeID, policy view.Policy) (*NodeContext, error) {
	rec, err := s.Nodes.Get(ctx, nodeID)
	if err != nil || rec.IsTombstoned() {
		return nil, ctxerr.NodeNotFound(nodeID)
	}

	preFilter := s.Heads.GetAllHeadsForNode(nodeID)
	resolver := nodeResolverAdapter{store: s.Nodes}
	frames := view.Collect(ctx, nodeID, policy, s.Heads, s.Frames, resolver)

	return &NodeContext{
		Record:         rec,
		Frames:         frames,
		PreFilterCount: len(preFilter),
	}, nil
}

// PutFrame is the writer path: authorize the agent, validate the
// frame, then store the blob and advance the head under the node's
// write lock. The newest successful append always wins the head.
func (s *Service) PutFrame(ctx context.Context, nodeID ids.NodeID, fr *frame.Frame, agentID string) (ids.FrameID, error) {
	agent, err := s.Agents.Get(agentID)
	if err != nil {
		return ids.FrameID{}, ctxerr.Unauthorized("agent " + agentID + " is not registered")
	}
	if agent.Role != agentreg.RoleWriter {
		return ids.FrameID{}, ctxerr.Unauthorized("agent " + agentID + " is not a writer")
	}

	rec, err := s.Nodes.Get(ctx, nodeID)
	if err != nil || rec.IsTombstoned() {
		return ids.FrameID{}, ctxerr.NodeNotFound(nodeID)
	}

	if err := validateFrame(fr, nodeID, agentID); err != nil {
		return ids.FrameID{}, err
	}

	var newFrameID ids.FrameID
	err = s.Locks.WithWriteLock(nodeID, func() error {
		if err := s.Frames.Store(ctx, fr); err != nil {
			return ctxerr.Wrap(ctxerr.KindStorageError, err, "storing frame")
		}
		s.Heads.UpdateHead(nodeID, fr.FrameType, fr.FrameID)
		newFrameID = fr.FrameID
		if s.HeadsPath != "" {
			if err := heads.Save(s.Heads, s.HeadsPath); err != nil {
				// Best-effort: the on-disk head is reconstructible from
				// the frame store on recovery.
				s.logger().Error("ctxapi: persisting head index failed", "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return ids.FrameID{}, err
	}

	return newFrameID, nil
}

func validateFrame(fr *frame.Frame, nodeID ids.NodeID, agentID string) error {
	if err := frametype.Validate(fr.FrameType); err != nil {
		return err
	}
	switch fr.Basis.Kind {
	case ids.BasisNode, ids.BasisBoth:
		if fr.Basis.Node != nodeID {
			return ctxerr.New(ctxerr.KindInvalidFrame, "frame basis node %s does not match target node %s", fr.Basis.Node, nodeID)
		}
	}
	if fr.AgentID() != agentID {
		return ctxerr.New(ctxerr.KindInvalidFrame, "frame metadata.agent_id %q does not match caller agent_id %q", fr.AgentID(), agentID)
	}
	for k := range fr.Metadata {
		if k == frame.ReservedMetadataDeleted {
			return ctxerr.New(ctxerr.KindFrameMetadataPolicyViolation, "metadata key %q is reserved", k)
		}
	}
	return nil
}

// Compose delegates to the view engine.
func (s *Service) Compose(ctx context.Context, nodeID ids.NodeID, policy view.Policy) ([]*frame.Frame, error) {
	rec, err := s.Nodes.Get(ctx, nodeID)
	if err != nil || rec.IsTombstoned() {
		return nil, ctxerr.NodeNotFound(nodeID)
	}
	resolver := nodeResolverAdapter{store: s.Nodes}
	return view.Collect(ctx, nodeID, policy, s.Heads, s.Frames, resolver), nil
}

// TombstoneNode collects the subtree via BFS over record.children,
// marks each node tombstoned in the node store, and tombstones all
// head entries for each node. Idempotent.
func (s *Service) TombstoneNode(ctx context.Context, nodeID ids.NodeID, nowUnix int64) (int, error) {
	rec, err := s.Nodes.Get(ctx, nodeID)
	if err != nil {
		return 0, ctxerr.NodeNotFound(nodeID)
	}
	if rec.IsTombstoned() {
		return 0, nil
	}

	subtree := bfsSubtree(ctx, s.Nodes, nodeID)
	count := 0
	for _, id := range subtree {
		if err := s.Nodes.Tombstone(ctx, id, nowUnix); err != nil {
			continue
		}
		s.Heads.TombstoneHeadsForNode(id, nowUnix)
		count++
	}
	return count, nil
}

// RestoreNode is the inverse of TombstoneNode: it collects the same
// BFS subtree, clears each node's tombstone, and restores its head
// entries. Only acts when the root is tombstoned.
func (s *Service) RestoreNode(ctx context.Context, nodeID ids.NodeID) error {
	rec, err := s.Nodes.Get(ctx, nodeID)
	if err != nil {
		return ctxerr.NodeNotFound(nodeID)
	}
	if !rec.IsTombstoned() {
		return nil
	}
	for _, id := range bfsSubtree(ctx, s.Nodes, nodeID) {
		if err := s.Nodes.Restore(ctx, id); err != nil {
			if id == nodeID {
				return err
			}
			continue
		}
		s.Heads.RestoreHeadsForNode(id)
	}
	return nil
}

func bfsSubtree(ctx context.Context, store node.Store, root ids.NodeID) []ids.NodeID {
	var out []ids.NodeID
	queue := []ids.NodeID{root}
	seen := map[ids.NodeID]struct{}{root: {}}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		rec, err := store.Get(ctx, id)
		if err != nil {
			continue
		}
		for _, child := range rec.Children {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return out
}

// CompactReport summarizes a Compact run.
type CompactReport struct {
	NodesPurged  int
	FramesPurged int
	HeadsPurged  int
}

// Compact reaps tombstoned nodes older than ttlSeconds. purgeFrames
// additionally purges each reaped node's head-indexed frames before
// purging the node record.
func (s *Service) Compact(ctx context.Context, ttlSeconds int64, purgeFrames bool, nowUnix int64) (CompactReport, error) {
	cutoff := nowUnix - ttlSeconds
	var report CompactReport

	tombstoned, err := s.Nodes.ListTombstoned(ctx, &cutoff)
	if err != nil {
		return report, ctxerr.Wrap(ctxerr.KindStorageError, err, "listing tombstoned nodes")
	}

	for _, rec := range tombstoned {
		if purgeFrames {
			for _, frameID := range s.Heads.GetAllHeadsForNode(rec.NodeID) {
				if err := s.Frames.Purge(ctx, frameID); err == nil {
					report.FramesPurged++
				}
			}
		}
		if err := s.Nodes.Purge(ctx, rec.NodeID, cutoff); err == nil {
			report.NodesPurged++
		}
	}

	report.HeadsPurged = s.Heads.PurgeTombstoned(cutoff)
	return report, nil
}

// --- Convenience methods (thin wrappers; introduce no new invariants) ---

// LatestContext returns the single most recent frame for nodeID
// across all frame types.
func (s *Service) LatestContext(ctx context.Context, nodeID ids.NodeID) (*frame.Frame, error) {
	frames := view.Collect(ctx, nodeID, view.Policy{MaxFrames: 1, Ordering: view.OrderingRecency}, s.Heads, s.Frames, nodeResolverAdapter{s.Nodes})
	if len(frames) == 0 {
		return nil, nil
	}
	return frames[0], nil
}

// ContextByType returns all frames for nodeID of the given frame_type.
func (s *Service) ContextByType(ctx context.Context, nodeID ids.NodeID, frameType string) ([]*frame.Frame, error) {
	return s.Compose(ctx, nodeID, view.Policy{Filters: []view.Filter{{ByType: frameType}}})
}

// ContextByAgent returns all frames for nodeID written by agentID.
func (s *Service) ContextByAgent(ctx context.Context, nodeID ids.NodeID, agentID string) ([]*frame.Frame, error) {
	return s.Compose(ctx, nodeID, view.Policy{Filters: []view.Filter{{ByAgent: agentID}}})
}

// CombinedContextText concatenates the content of every frame
// returned by policy, in selection order.
func (s *Service) CombinedContextText(ctx context.Context, nodeID ids.NodeID, policy view.Policy) (string, error) {
	frames, err := s.Compose(ctx, nodeID, policy)
	if err != nil {
		return "", err
	}
	var out []byte
	for i, fr := range frames {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, fr.Content...)
	}
	return string(out), nil
}

// HasAgentFrame reports whether nodeID has a head for (frameType,
// agentID's latest contribution) — in practice: whether the current
// head for frameType was written by agentID.
func (s *Service) HasAgentFrame(ctx context.Context, nodeID ids.NodeID, frameType, agentID string) (bool, error) {
	frameID, ok := s.Heads.GetHead(nodeID, frameType)
	if !ok {
		return false, nil
	}
	fr, err := s.Frames.Get(ctx, frameID)
	if err != nil {
		return false, nil
	}
	return fr.AgentID() == agentID, nil
}

// EnsureAgentFrame returns the existing head for (nodeID, frameType)
// if already written by agentID; otherwise stores newFrame via
// PutFrame.
func (s *Service) EnsureAgentFrame(ctx context.Context, nodeID ids.NodeID, frameType, agentID string, newFrame *frame.Frame) (ids.FrameID, error) {
	has, err := s.HasAgentFrame(ctx, nodeID, frameType, agentID)
	if err != nil {
		return ids.FrameID{}, err
	}
	if has {
		id, _ := s.Heads.GetHead(nodeID, frameType)
		return id, nil
	}
	return s.PutFrame(ctx, nodeID, newFrame, agentID)
}

// GetHead returns the current head for (nodeID, frameType).
func (s *Service) GetHead(nodeID ids.NodeID, frameType string) (ids.FrameID, bool) {
	return s.Heads.GetHead(nodeID, frameType)
}

// GetAllHeads returns every head currently recorded for nodeID.
func (s *Service) GetAllHeads(nodeID ids.NodeID) map[string]ids.FrameID {
	return s.Heads.GetAllHeadsForNode(nodeID)
}
