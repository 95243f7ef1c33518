// Package view implements the view and composition engine (C9):
// collect frames from one or more source nodes, filter, order
// deterministically, and truncate.
package view

import (
	"context"
	"sort"

	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

// Ordering selects the sort key applied before truncation.
type Ordering int

const (
	OrderingRecency Ordering = iota
	OrderingType
	OrderingAgent
)

// SourceKind selects which nodes contribute frames to a composition.
type SourceKind int

const (
	SourceCurrentNode SourceKind = iota
	SourceParentDirectory
	SourceSiblings
	SourceRelatedNodes
)

// Source is one composition source; RelatedNodes carries the explicit
// list this source resolves to.
type Source struct {
	Kind         SourceKind
	RelatedNodes []ids.NodeID
}

// Filter narrows the collected frame set. Exactly one of ByType /
// ByAgent is populated.
type Filter struct {
	ByType  string
	ByAgent string
}

func (f Filter) matches(fr *frame.Frame) bool {
	if f.ByType != "" && fr.FrameType != f.ByType {
		return false
	}
	if f.ByAgent != "" && fr.AgentID() != f.ByAgent {
		return false
	}
	return true
}

// Policy is a view policy (single source, implicitly CurrentNode) or
// a composition policy (explicit multi-source list). Views and
// compositions share one selection pipeline, so one type covers both.
type Policy struct {
	MaxFrames int
	Ordering  Ordering
	Filters   []Filter
	Sources   []Source // empty means [SourceCurrentNode]
}

// NodeResolver answers the structural queries needed to resolve
// ParentDirectory/Siblings sources without pkg/view depending on
// pkg/node directly (keeps the dependency direction one-way).
type NodeResolver interface {
	Parent(nodeID ids.NodeID) (ids.NodeID, bool)
	Children(nodeID ids.NodeID) []ids.NodeID
}

// Collect resolves targetNode's composition policy into a
// deterministically ordered, truncated frame slice: collect from every
// source node, dedupe by FrameID, filter, order, truncate. Frames
// referenced by stale heads that no longer exist in frameStore are
// skipped silently, never treated as an error — this is what lets
// head-index persistence stay best-effort.
func Collect(ctx context.Context, targetNode ids.NodeID, policy Policy, index *heads.Index, frameStore frame.Store, resolver NodeResolver) []*frame.Frame {
	sourceNodes := resolveSources(targetNode, policy.Sources, resolver)

	seen := make(map[ids.FrameID]struct{})
	var collected []*frame.Frame
	for _, nodeID := range sourceNodes {
		for _, frameID := range index.GetAllHeadsForNode(nodeID) {
			if _, dup := seen[frameID]; dup {
				continue
			}
			seen[frameID] = struct{}{}
			fr, err := frameStore.Get(ctx, frameID)
			if err != nil {
				continue
			}
			collected = append(collected, fr)
		}
	}

	collected = applyFilters(collected, policy.Filters)
	order(collected, policy.Ordering)

	if policy.MaxFrames > 0 && len(collected) > policy.MaxFrames {
		collected = collected[:policy.MaxFrames]
	}
	return collected
}

func resolveSources(targetNode ids.NodeID, sources []Source, resolver NodeResolver) []ids.NodeID {
	if len(sources) == 0 {
		return []ids.NodeID{targetNode}
	}
	var out []ids.NodeID
	for _, s := range sources {
		switch s.Kind {
		case SourceCurrentNode:
			out = append(out, targetNode)
		case SourceParentDirectory:
			if parent, ok := resolver.Parent(targetNode); ok {
				out = append(out, parent)
			}
		case SourceSiblings:
			if parent, ok := resolver.Parent(targetNode); ok {
				for _, sibling := range resolver.Children(parent) {
					if sibling != targetNode {
						out = append(out, sibling)
					}
				}
			}
		case SourceRelatedNodes:
			out = append(out, s.RelatedNodes...)
		}
	}
	return out
}

func applyFilters(frames []*frame.Frame, filters []Filter) []*frame.Frame {
	if len(filters) == 0 {
		return frames
	}
	out := frames[:0]
	for _, fr := range frames {
		keep := true
		for _, f := range filters {
			if !f.matches(fr) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, fr)
		}
	}
	return out
}

func order(frames []*frame.Frame, ordering Ordering) {
	sort.SliceStable(frames, func(i, j int) bool {
		a, b := frames[i], frames[j]
		switch ordering {
		case OrderingType:
			if a.FrameType != b.FrameType {
				return a.FrameType < b.FrameType
			}
		case OrderingAgent:
			if a.AgentID() != b.AgentID() {
				return a.AgentID() < b.AgentID()
			}
		default: // OrderingRecency
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.After(b.Timestamp)
			}
		}
		return lessFrameID(a.FrameID, b.FrameID)
	})
}

func lessFrameID(a, b ids.FrameID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
