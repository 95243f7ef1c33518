package api

import (
	"time"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxapi"
	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/node"
	"github.com/codeready-toolchain/ctxengine/pkg/queue"
)

// FrameResponse is the wire shape of a frame. The reserved metadata
// keys "agent_id" and "deleted" are removed from Metadata.
type FrameResponse struct {
	FrameID   string            `json:"frame_id"`
	FrameType string            `json:"frame_type"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

func newFrameResponse(f *frame.Frame) FrameResponse {
	metadata := make(map[string]string, len(f.Metadata))
	for k, v := range f.Metadata {
		if k == frame.ReservedMetadataAgentID || k == frame.ReservedMetadataDeleted {
			continue
		}
		metadata[k] = v
	}
	return FrameResponse{
		FrameID:   f.FrameID.String(),
		FrameType: f.FrameType,
		Content:   string(f.Content),
		Timestamp: f.Timestamp,
		Metadata:  metadata,
	}
}

func newFrameResponses(frames []*frame.Frame) []FrameResponse {
	out := make([]FrameResponse, 0, len(frames))
	for _, f := range frames {
		out = append(out, newFrameResponse(f))
	}
	return out
}

// NodeResponse is the wire shape of a node.Record.
type NodeResponse struct {
	NodeID       string   `json:"node_id"`
	Path         string   `json:"path"`
	NodeType     string   `json:"node_type"`
	Size         int64    `json:"size,omitempty"`
	Children     []string `json:"children,omitempty"`
	Parent       string   `json:"parent,omitempty"`
	TombstonedAt *int64   `json:"tombstoned_at,omitempty"`
}

func newNodeResponse(r *node.Record) NodeResponse {
	resp := NodeResponse{
		NodeID:       r.NodeID.String(),
		Path:         r.Path,
		NodeType:     nodeTypeString(r.NodeType),
		Size:         r.Size,
		TombstonedAt: r.TombstonedAt,
	}
	for _, c := range r.Children {
		resp.Children = append(resp.Children, c.String())
	}
	if r.Parent != nil {
		resp.Parent = r.Parent.String()
	}
	return resp
}

func nodeTypeString(t node.Type) string {
	if t == node.TypeDirectory {
		return "directory"
	}
	return "file"
}

// NodeContextResponse is the body of GET /v1/nodes/:node_id.
type NodeContextResponse struct {
	Node           NodeResponse    `json:"node"`
	Frames         []FrameResponse `json:"frames"`
	PreFilterCount int             `json:"pre_filter_count"`
}

func newNodeContextResponse(nc *ctxapi.NodeContext) NodeContextResponse {
	return NodeContextResponse{
		Node:           newNodeResponse(nc.Record),
		Frames:         newFrameResponses(nc.Frames),
		PreFilterCount: nc.PreFilterCount,
	}
}

// PutFrameResponse is the body returned by POST /v1/nodes/:node_id/frames.
type PutFrameResponse struct {
	FrameID string `json:"frame_id"`
}

// ComposeResponse is the body of POST /v1/nodes/:node_id/compose.
type ComposeResponse struct {
	Frames []FrameResponse `json:"frames"`
}

// TombstoneResponse reports how many nodes a tombstone/restore call touched.
type TombstoneResponse struct {
	NodesAffected int `json:"nodes_affected"`
}

// CompactResponse is the body of POST /v1/compact.
type CompactResponse struct {
	NodesPurged  int `json:"nodes_purged"`
	FramesPurged int `json:"frames_purged"`
	HeadsPurged  int `json:"heads_purged"`
}

// GenerateResponse is the body of POST /v1/generate. FrameID is only
// populated when the caller asked to wait (?wait=true).
type GenerateResponse struct {
	RequestID string `json:"request_id"`
	FrameID   string `json:"frame_id,omitempty"`
	Queued    bool   `json:"queued"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status string      `json:"status"`
	Queue  queue.Stats `json:"queue"`
}
