// Package plan builds a level-ordered generation plan for a subtree
// and drives the generation queue level-by-level, bottom-up.
package plan

import (
	"context"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
	"github.com/codeready-toolchain/ctxengine/pkg/ignore"
	"github.com/codeready-toolchain/ctxengine/pkg/node"
)

// Item is one entry in a plan level.
type Item struct {
	NodeID       ids.NodeID
	Path         string
	NodeType     node.Type
	AgentID      string
	ProviderName string
	FrameType    string
	Force        bool
}

// Level is a batch of items that may run concurrently; all items in a
// level are independent of each other.
type Level []Item

// Plan is an ordered list of levels, executed bottom-up for
// directories so that a directory's frame can read its children's
// frames.
type Plan struct {
	Levels []Level
}

// TotalNodes returns the number of items across every level.
func (p *Plan) TotalNodes() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, l := range p.Levels {
		n += len(l)
	}
	return n
}

// Build constructs a generation plan for the subtree rooted at
// targetNodeID. matcher may be nil, meaning no path is ignored;
// otherwise a node whose path matches matcher is pruned from the plan
// and its subtree is never traversed.
func Build(ctx context.Context, store node.Store, index *heads.Index, targetNodeID ids.NodeID, recursive, force bool, agentID, providerName, frameType string, matcher *ignore.Matcher) (*Plan, error) {
	rec, err := store.Get(ctx, targetNodeID)
	if err != nil || rec.IsTombstoned() {
		return nil, ctxerr.NodeNotFound(targetNodeID)
	}

	if !recursive {
		return buildSingleLevel(ctx, store, index, rec, force, agentID, providerName, frameType, matcher)
	}
	return buildRecursive(ctx, store, index, targetNodeID, force, agentID, providerName, frameType, matcher)
}

func ignored(matcher *ignore.Matcher, rec *node.Record) bool {
	return matcher.Match(rec.Path, rec.NodeType == node.TypeDirectory)
}

func buildSingleLevel(ctx context.Context, store node.Store, index *heads.Index, rec *node.Record, force bool, agentID, providerName, frameType string, matcher *ignore.Matcher) (*Plan, error) {
	if rec.NodeType == node.TypeDirectory && !force {
		missing := missingDescendants(ctx, store, index, rec, frameType, matcher)
		if len(missing) > 0 {
			return nil, ctxerr.New(ctxerr.KindGenerationFailed,
				"node %s: %d descendant(s) missing %q heads; generate children before the parent", rec.NodeID, len(missing), frameType)
		}
	}

	if !force {
		if _, ok := index.GetHead(rec.NodeID, frameType); ok {
			return &Plan{}, nil // total_nodes == 0: early-exit, head already current
		}
	}

	item := Item{
		NodeID: rec.NodeID, Path: rec.Path, NodeType: rec.NodeType,
		AgentID: agentID, ProviderName: providerName, FrameType: frameType, Force: force,
	}
	return &Plan{Levels: []Level{{item}}}, nil
}

// missingDescendants pre-scans every descendant of rec (excluding rec
// itself) for a missing frameType head, guarding against generating a
// parent frame against stale children. Ignored descendants are pruned
// from the scan entirely: an ignored file can never block its parent's
// generation.
func missingDescendants(ctx context.Context, store node.Store, index *heads.Index, rec *node.Record, frameType string, matcher *ignore.Matcher) []ids.NodeID {
	var missing []ids.NodeID
	seen := map[ids.NodeID]struct{}{rec.NodeID: {}}
	queue := append([]ids.NodeID(nil), rec.Children...)
	for _, c := range rec.Children {
		seen[c] = struct{}{}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		child, err := store.Get(ctx, id)
		if err != nil {
			continue
		}
		if ignored(matcher, child) {
			continue
		}
		if _, ok := index.GetHead(id, frameType); !ok {
			missing = append(missing, id)
		}
		for _, grandchild := range child.Children {
			if _, ok := seen[grandchild]; ok {
				continue
			}
			seen[grandchild] = struct{}{}
			queue = append(queue, grandchild)
		}
	}
	return missing
}

// buildRecursive is the recursive branch: BFS from target recording
// depth, group by depth, emit levels sorted by descending depth so
// deepest files execute first and parents last.
func buildRecursive(ctx context.Context, store node.Store, index *heads.Index, targetNodeID ids.NodeID, force bool, agentID, providerName, frameType string, matcher *ignore.Matcher) (*Plan, error) {
	type depthEntry struct {
		id    ids.NodeID
		depth int
	}

	byDepth := make(map[int][]ids.NodeID)
	seen := map[ids.NodeID]struct{}{targetNodeID: {}}
	queue := []depthEntry{{targetNodeID, 0}}
	maxDepth := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		byDepth[cur.depth] = append(byDepth[cur.depth], cur.id)
		if cur.depth > maxDepth {
			maxDepth = cur.depth
		}

		rec, err := store.Get(ctx, cur.id)
		if err != nil {
			continue
		}
		for _, child := range rec.Children {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			childRec, err := store.Get(ctx, child)
			if err == nil && ignored(matcher, childRec) {
				continue // pruned: never traversed, never planned
			}
			queue = append(queue, depthEntry{child, cur.depth + 1})
		}
	}

	var levels []Level
	for depth := maxDepth; depth >= 0; depth-- {
		nodeIDs := byDepth[depth]
		if len(nodeIDs) == 0 {
			continue
		}
		var level Level
		for _, id := range nodeIDs {
			rec, err := store.Get(ctx, id)
			if err != nil {
				continue
			}
			if !force {
				if _, ok := index.GetHead(id, frameType); ok {
					continue // already has a current head; skip unless forced
				}
			}
			level = append(level, Item{
				NodeID: id, Path: rec.Path, NodeType: rec.NodeType,
				AgentID: agentID, ProviderName: providerName, FrameType: frameType, Force: force,
			})
		}
		if len(level) > 0 {
			levels = append(levels, level)
		}
	}

	return &Plan{Levels: levels}, nil
}
