package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
)

type fakeResolver struct {
	parents  map[ids.NodeID]ids.NodeID
	children map[ids.NodeID][]ids.NodeID
}

func (f fakeResolver) Parent(id ids.NodeID) (ids.NodeID, bool) {
	p, ok := f.parents[id]
	return p, ok
}

func (f fakeResolver) Children(id ids.NodeID) []ids.NodeID {
	return f.children[id]
}

func storeFrame(t *testing.T, s frame.Store, node ids.NodeID, frameType, agentID, content string, ts time.Time) *frame.Frame {
	t.Helper()
	basis := ids.NodeBasis(node)
	fr := &frame.Frame{
		FrameID:   ids.ComputeFrameID(basis, []byte(content), frameType, agentID),
		Basis:     basis,
		Content:   []byte(content),
		FrameType: frameType,
		Timestamp: ts,
		Metadata:  map[string]string{frame.ReservedMetadataAgentID: agentID},
	}
	require.NoError(t, s.Store(context.Background(), fr))
	return fr
}

func TestCollectDefaultSourceIsCurrentNode(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	idx := heads.New()
	store := frame.NewMemStore()

	fr := storeFrame(t, store, node, "ctx", "w1", "hello", time.Now())
	idx.UpdateHead(node, "ctx", fr.FrameID)

	got := Collect(ctx, node, Policy{}, idx, store, fakeResolver{})
	require.Len(t, got, 1)
	assert.Equal(t, fr.FrameID, got[0].FrameID)
}

func TestCollectSkipsMissingFrameSilently(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	idx := heads.New()
	store := frame.NewMemStore()
	idx.UpdateHead(node, "ctx", ids.ID{99}) // stale head, never stored

	got := Collect(ctx, node, Policy{}, idx, store, fakeResolver{})
	assert.Empty(t, got)
}

func TestCollectDedupesAcrossSources(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	parent := ids.ID{2}
	idx := heads.New()
	store := frame.NewMemStore()
	resolver := fakeResolver{parents: map[ids.NodeID]ids.NodeID{node: parent}}

	fr := storeFrame(t, store, node, "ctx", "w1", "hello", time.Now())
	idx.UpdateHead(node, "ctx", fr.FrameID)
	idx.UpdateHead(parent, "ctx", fr.FrameID) // same frame id reachable via two sources

	policy := Policy{Sources: []Source{{Kind: SourceCurrentNode}, {Kind: SourceParentDirectory}}}
	got := Collect(ctx, node, policy, idx, store, resolver)
	assert.Len(t, got, 1)
}

func TestCollectFilterByType(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	idx := heads.New()
	store := frame.NewMemStore()

	ctxFrame := storeFrame(t, store, node, "ctx", "w1", "a", time.Now())
	sumFrame := storeFrame(t, store, node, "summary", "w1", "b", time.Now())
	idx.UpdateHead(node, "ctx", ctxFrame.FrameID)
	idx.UpdateHead(node, "summary", sumFrame.FrameID)

	got := Collect(ctx, node, Policy{Filters: []Filter{{ByType: "summary"}}}, idx, store, fakeResolver{})
	require.Len(t, got, 1)
	assert.Equal(t, "summary", got[0].FrameType)
}

func TestCollectOrderingRecencyThenFrameIDTieBreak(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	idx := heads.New()
	store := frame.NewMemStore()
	ts := time.Now()

	f1 := storeFrame(t, store, node, "a", "w1", "a", ts)
	f2 := storeFrame(t, store, node, "b", "w1", "b", ts) // same timestamp -> tie-break by FrameID
	idx.UpdateHead(node, "a", f1.FrameID)
	idx.UpdateHead(node, "b", f2.FrameID)

	got := Collect(ctx, node, Policy{Ordering: OrderingRecency}, idx, store, fakeResolver{})
	require.Len(t, got, 2)
	if lessFrameID(f1.FrameID, f2.FrameID) {
		assert.Equal(t, f1.FrameID, got[0].FrameID)
	} else {
		assert.Equal(t, f2.FrameID, got[0].FrameID)
	}
}

func TestCollectOrderingType(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	idx := heads.New()
	store := frame.NewMemStore()

	f1 := storeFrame(t, store, node, "zzz", "w1", "a", time.Now())
	f2 := storeFrame(t, store, node, "aaa", "w1", "b", time.Now())
	idx.UpdateHead(node, "zzz", f1.FrameID)
	idx.UpdateHead(node, "aaa", f2.FrameID)

	got := Collect(ctx, node, Policy{Ordering: OrderingType}, idx, store, fakeResolver{})
	require.Len(t, got, 2)
	assert.Equal(t, "aaa", got[0].FrameType)
	assert.Equal(t, "zzz", got[1].FrameType)
}

func TestCollectTruncatesToMaxFrames(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	idx := heads.New()
	store := frame.NewMemStore()

	for i, ft := range []string{"a", "b", "c"} {
		fr := storeFrame(t, store, node, ft, "w1", ft, time.Now().Add(time.Duration(i)*time.Second))
		idx.UpdateHead(node, ft, fr.FrameID)
	}

	got := Collect(ctx, node, Policy{MaxFrames: 2}, idx, store, fakeResolver{})
	assert.Len(t, got, 2)
}

func TestCollectSiblingsExcludesSelf(t *testing.T) {
	ctx := context.Background()
	node := ids.ID{1}
	sibling := ids.ID{2}
	parent := ids.ID{3}
	idx := heads.New()
	store := frame.NewMemStore()
	resolver := fakeResolver{
		parents:  map[ids.NodeID]ids.NodeID{node: parent},
		children: map[ids.NodeID][]ids.NodeID{parent: {node, sibling}},
	}

	fr := storeFrame(t, store, sibling, "ctx", "w1", "s", time.Now())
	idx.UpdateHead(sibling, "ctx", fr.FrameID)

	got := Collect(ctx, node, Policy{Sources: []Source{{Kind: SourceSiblings}}}, idx, store, resolver)
	require.Len(t, got, 1)
	assert.Equal(t, fr.FrameID, got[0].FrameID)
}
