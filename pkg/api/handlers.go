package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
	"github.com/codeready-toolchain/ctxengine/pkg/queue"
	"github.com/codeready-toolchain/ctxengine/pkg/view"
)

func parseNodeID(c *gin.Context) (ids.NodeID, bool) {
	id, err := ids.ParseID(c.Param("node_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node_id: " + err.Error()})
		return ids.NodeID{}, false
	}
	return id, true
}

func orderingFromString(s string) view.Ordering {
	switch s {
	case "type":
		return view.OrderingType
	case "agent":
		return view.OrderingAgent
	default:
		return view.OrderingRecency
	}
}

func sourceKindFromString(s string) (view.SourceKind, bool) {
	switch s {
	case "current_node", "":
		return view.SourceCurrentNode, true
	case "parent_directory":
		return view.SourceParentDirectory, true
	case "siblings":
		return view.SourceSiblings, true
	case "related_nodes":
		return view.SourceRelatedNodes, true
	default:
		return 0, false
	}
}

func (req PolicyRequest) toPolicy() (view.Policy, error) {
	policy := view.Policy{
		MaxFrames: req.MaxFrames,
		Ordering:  orderingFromString(req.Ordering),
	}
	for _, f := range req.Filters {
		policy.Filters = append(policy.Filters, view.Filter{ByType: f.ByType, ByAgent: f.ByAgent})
	}
	for _, s := range req.Sources {
		kind, ok := sourceKindFromString(s.Kind)
		if !ok {
			return policy, ctxerr.New(ctxerr.KindInvalidFrame, "unknown composition source kind %q", s.Kind)
		}
		source := view.Source{Kind: kind}
		for _, raw := range s.RelatedNodes {
			id, err := ids.ParseID(raw)
			if err != nil {
				return policy, ctxerr.New(ctxerr.KindInvalidFrame, "invalid related_nodes entry %q", raw)
			}
			source.RelatedNodes = append(source.RelatedNodes, id)
		}
		policy.Sources = append(policy.Sources, source)
	}
	return policy, nil
}

// GetNode handles GET /v1/nodes/:node_id?view=recency|type|agent&max_frames=N&frame_type=...&agent_id=...
func (s *Server) GetNode(c *gin.Context) {
	nodeID, ok := parseNodeID(c)
	if !ok {
		return
	}

	policy := view.Policy{Ordering: orderingFromString(c.Query("view"))}
	if raw := c.Query("max_frames"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_frames: " + raw})
			return
		}
		policy.MaxFrames = n
	}
	if c.Query("frame_type") != "" {
		policy.Filters = append(policy.Filters, view.Filter{ByType: c.Query("frame_type")})
	}
	if c.Query("agent_id") != "" {
		policy.Filters = append(policy.Filters, view.Filter{ByAgent: c.Query("agent_id")})
	}

	nc, err := s.API.GetNode(c.Request.Context(), nodeID, policy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNodeContextResponse(nc))
}

// PutFrame handles POST /v1/nodes/:node_id/frames.
func (s *Server) PutFrame(c *gin.Context) {
	nodeID, ok := parseNodeID(c)
	if !ok {
		return
	}

	var req PutFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	basis := ids.NodeBasis(nodeID)
	if req.Basis != nil {
		var err error
		basis, err = parseBasisRequest(req.Basis, nodeID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata[frame.ReservedMetadataAgentID] = req.AgentID

	content := []byte(req.Content)
	fr := &frame.Frame{
		FrameID:   ids.ComputeFrameID(basis, content, req.FrameType, req.AgentID),
		Basis:     basis,
		Content:   content,
		FrameType: req.FrameType,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	frameID, err := s.API.PutFrame(c.Request.Context(), nodeID, fr, req.AgentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PutFrameResponse{FrameID: frameID.String()})
}

func parseBasisRequest(b *BasisRequest, nodeID ids.NodeID) (ids.Basis, error) {
	switch {
	case b.NodeID != "" && b.FrameID != "":
		n, err := ids.ParseID(b.NodeID)
		if err != nil {
			return ids.Basis{}, ctxerr.New(ctxerr.KindInvalidFrame, "invalid basis.node_id")
		}
		f, err := ids.ParseID(b.FrameID)
		if err != nil {
			return ids.Basis{}, ctxerr.New(ctxerr.KindInvalidFrame, "invalid basis.frame_id")
		}
		return ids.BothBasis(n, f), nil
	case b.FrameID != "":
		f, err := ids.ParseID(b.FrameID)
		if err != nil {
			return ids.Basis{}, ctxerr.New(ctxerr.KindInvalidFrame, "invalid basis.frame_id")
		}
		return ids.FrameBasis(f), nil
	case b.NodeID != "":
		n, err := ids.ParseID(b.NodeID)
		if err != nil {
			return ids.Basis{}, ctxerr.New(ctxerr.KindInvalidFrame, "invalid basis.node_id")
		}
		return ids.NodeBasis(n), nil
	default:
		return ids.NodeBasis(nodeID), nil
	}
}

// Compose handles POST /v1/nodes/:node_id/compose.
func (s *Server) Compose(c *gin.Context) {
	nodeID, ok := parseNodeID(c)
	if !ok {
		return
	}

	var req ComposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := req.Policy.toPolicy()
	if err != nil {
		writeError(c, err)
		return
	}

	frames, err := s.API.Compose(c.Request.Context(), nodeID, policy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ComposeResponse{Frames: newFrameResponses(frames)})
}

// Tombstone handles POST /v1/nodes/:node_id/tombstone.
func (s *Server) Tombstone(c *gin.Context) {
	nodeID, ok := parseNodeID(c)
	if !ok {
		return
	}
	count, err := s.API.TombstoneNode(c.Request.Context(), nodeID, time.Now().Unix())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TombstoneResponse{NodesAffected: count})
}

// Restore handles POST /v1/nodes/:node_id/restore.
func (s *Server) Restore(c *gin.Context) {
	nodeID, ok := parseNodeID(c)
	if !ok {
		return
	}
	if err := s.API.RestoreNode(c.Request.Context(), nodeID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TombstoneResponse{NodesAffected: 1})
}

// Compact handles POST /v1/compact.
func (s *Server) Compact(c *gin.Context) {
	var req CompactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := s.API.Compact(c.Request.Context(), req.TTLSeconds, req.PurgeFrames, time.Now().Unix())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CompactResponse{
		NodesPurged:  report.NodesPurged,
		FramesPurged: report.FramesPurged,
		HeadsPurged:  report.HeadsPurged,
	})
}

var priorityByName = map[string]queue.Priority{
	"low":    queue.PriorityLow,
	"normal": queue.PriorityNormal,
	"high":   queue.PriorityHigh,
	"urgent": queue.PriorityUrgent,
}

// Generate handles POST /v1/generate?wait=true. Without ?wait=true the
// request is enqueued and RequestID returned immediately; with it, the
// handler blocks (bounded by s.GenerateTimeout) for the resulting
// FrameID.
func (s *Server) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	nodeID, err := ids.ParseID(req.NodeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid node_id: " + err.Error()})
		return
	}

	priority, ok := priorityByName[req.Priority]
	if req.Priority != "" && !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority " + req.Priority})
		return
	}
	if req.Priority == "" {
		priority = queue.PriorityNormal
	}

	qreq := queue.NewRequest(nodeID, req.AgentID, req.ProviderName, req.FrameType, priority, queue.Options{Force: req.Force})

	if c.Query("wait") != "true" {
		requestID, err := s.Queue.Enqueue(qreq)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, GenerateResponse{RequestID: requestID, Queued: true})
		return
	}

	frameID, err := s.Queue.EnqueueAndWait(c.Request.Context(), qreq, s.HeadLookup, s.GenerateTimeout)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, GenerateResponse{RequestID: qreq.RequestID, FrameID: frameID.String(), Queued: false})
}
