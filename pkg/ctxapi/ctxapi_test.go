package ctxapi

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ctxengine/pkg/agentreg"
	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
	"github.com/codeready-toolchain/ctxengine/pkg/locks"
	"github.com/codeready-toolchain/ctxengine/pkg/node"
	"github.com/codeready-toolchain/ctxengine/pkg/view"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	nodes := node.NewMemStore()
	ctx := context.Background()

	fileNode := ids.ID{1}
	require.NoError(t, nodes.Put(ctx, &node.Record{NodeID: fileNode, Path: "a.go", NodeType: node.TypeFile}))

	agents := agentreg.NewRegistry(map[string]*agentreg.Agent{
		"writer1": {AgentID: "writer1", Role: agentreg.RoleWriter, Metadata: map[string]string{
			agentreg.MetaSystemPrompt:        "be terse",
			agentreg.MetaUserPromptFile:      "Summarize {path}",
			agentreg.MetaUserPromptDirectory: "Summarize dir {path}",
		}},
		"reader1": {AgentID: "reader1", Role: agentreg.RoleReader},
	})

	return &Service{
		Nodes:     nodes,
		Frames:    frame.NewMemStore(),
		Heads:     heads.New(),
		Locks:     locks.New(),
		Agents:    agents,
		HeadsPath: filepath.Join(t.TempDir(), "heads.bin"),
	}
}

func newFrameFor(nodeID ids.NodeID, agentID, frameType, content string) *frame.Frame {
	basis := ids.NodeBasis(nodeID)
	return &frame.Frame{
		FrameID:   ids.ComputeFrameID(basis, []byte(content), frameType, agentID),
		Basis:     basis,
		Content:   []byte(content),
		FrameType: frameType,
		Metadata:  map[string]string{frame.ReservedMetadataAgentID: agentID},
	}
}

func TestPutFrameThenGetNode(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}

	fr := newFrameFor(nodeID, "writer1", "ctx", "hello")
	frameID, err := s.PutFrame(ctx, nodeID, fr, "writer1")
	require.NoError(t, err)
	assert.Equal(t, fr.FrameID, frameID)

	got, err := s.GetNode(ctx, nodeID, view.Policy{})
	require.NoError(t, err)
	require.Len(t, got.Frames, 1)
	assert.Equal(t, "hello", string(got.Frames[0].Content))
	assert.Equal(t, 1, got.PreFilterCount)
}

func TestPutFrameRejectsUnknownAgent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}
	fr := newFrameFor(nodeID, "ghost", "ctx", "x")

	_, err := s.PutFrame(ctx, nodeID, fr, "ghost")
	assert.True(t, ctxerr.Is(err, ctxerr.KindUnauthorized))
}

func TestPutFrameRejectsReaderAgent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}
	fr := newFrameFor(nodeID, "reader1", "ctx", "x")

	_, err := s.PutFrame(ctx, nodeID, fr, "reader1")
	assert.True(t, ctxerr.Is(err, ctxerr.KindUnauthorized))
}

func TestPutFrameRejectsMismatchedBasis(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}
	other := ids.ID{2}
	fr := newFrameFor(other, "writer1", "ctx", "x")

	_, err := s.PutFrame(ctx, nodeID, fr, "writer1")
	assert.True(t, ctxerr.Is(err, ctxerr.KindInvalidFrame))
}

func TestPutFrameRejectsAgentIDMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}
	fr := newFrameFor(nodeID, "writer1", "ctx", "x")
	fr.Metadata[frame.ReservedMetadataAgentID] = "someone-else"

	_, err := s.PutFrame(ctx, nodeID, fr, "writer1")
	assert.True(t, ctxerr.Is(err, ctxerr.KindInvalidFrame))
}

func TestPutFrameRejectsReservedMetadataKey(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}
	fr := newFrameFor(nodeID, "writer1", "ctx", "x")
	fr.Metadata[frame.ReservedMetadataDeleted] = "true"

	_, err := s.PutFrame(ctx, nodeID, fr, "writer1")
	assert.True(t, ctxerr.Is(err, ctxerr.KindFrameMetadataPolicyViolation))
}

func TestPutFrameUnconditionallyOverwritesHead(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}

	first := newFrameFor(nodeID, "writer1", "ctx", "first")
	_, err := s.PutFrame(ctx, nodeID, first, "writer1")
	require.NoError(t, err)

	second := newFrameFor(nodeID, "writer1", "ctx", "second")
	_, err = s.PutFrame(ctx, nodeID, second, "writer1")
	require.NoError(t, err)

	head, ok := s.GetHead(nodeID, "ctx")
	require.True(t, ok)
	assert.Equal(t, second.FrameID, head)
}

func TestGetNodeMissingReturnsNodeNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.GetNode(ctx, ids.ID{99}, view.Policy{})
	assert.True(t, ctxerr.Is(err, ctxerr.KindNodeNotFound))
}

func TestTombstoneNodeBFSAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	root := ids.ID{10}
	child := ids.ID{11}
	require.NoError(t, s.Nodes.Put(ctx, &node.Record{NodeID: root, Path: "dir", NodeType: node.TypeDirectory, Children: []ids.NodeID{child}}))
	require.NoError(t, s.Nodes.Put(ctx, &node.Record{NodeID: child, Path: "dir/f.go", NodeType: node.TypeFile}))

	count, err := s.TombstoneNode(ctx, root, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Idempotent: already-tombstoned roots return zero.
	count, err = s.TombstoneNode(ctx, root, 500)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = s.GetNode(ctx, child, view.Policy{})
	assert.True(t, ctxerr.Is(err, ctxerr.KindNodeNotFound))
}

func TestRestoreNodeInverse(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}

	_, err := s.TombstoneNode(ctx, nodeID, 500)
	require.NoError(t, err)

	require.NoError(t, s.RestoreNode(ctx, nodeID))

	_, err = s.GetNode(ctx, nodeID, view.Policy{})
	assert.NoError(t, err)
}

func TestCompactPurgesOldTombstonesOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}

	fr := newFrameFor(nodeID, "writer1", "ctx", "hello")
	_, err := s.PutFrame(ctx, nodeID, fr, "writer1")
	require.NoError(t, err)

	_, err = s.TombstoneNode(ctx, nodeID, 100)
	require.NoError(t, err)

	report, err := s.Compact(ctx, 1000, true, 200) // cutoff = 200-1000 = -800, tombstoned_at(100) > cutoff, not reaped
	require.NoError(t, err)
	assert.Equal(t, 0, report.NodesPurged)

	report, err = s.Compact(ctx, 50, true, 200) // cutoff = 150, 100 <= 150, reaped
	require.NoError(t, err)
	assert.Equal(t, 1, report.NodesPurged)
	assert.Equal(t, 1, report.FramesPurged)
}

func TestEnsureAgentFrameReturnsExistingHead(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}

	first := newFrameFor(nodeID, "writer1", "ctx", "first")
	firstID, err := s.PutFrame(ctx, nodeID, first, "writer1")
	require.NoError(t, err)

	second := newFrameFor(nodeID, "writer1", "ctx", "second")
	gotID, err := s.EnsureAgentFrame(ctx, nodeID, "ctx", "writer1", second)
	require.NoError(t, err)
	assert.Equal(t, firstID, gotID)
}

func TestCombinedContextText(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	nodeID := ids.ID{1}

	fr := newFrameFor(nodeID, "writer1", "ctx", "hello world")
	_, err := s.PutFrame(ctx, nodeID, fr, "writer1")
	require.NoError(t, err)

	text, err := s.CombinedContextText(ctx, nodeID, view.Policy{})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}
