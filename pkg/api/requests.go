package api

// PutFrameRequest is the body of POST /v1/nodes/:node_id/frames.
// Basis defaults to anchoring the frame to the target node when
// omitted, the common case for a writer agent's own output.
type PutFrameRequest struct {
	AgentID   string            `json:"agent_id" binding:"required"`
	FrameType string            `json:"frame_type" binding:"required"`
	Content   string            `json:"content" binding:"required"`
	Basis     *BasisRequest     `json:"basis"`
	Metadata  map[string]string `json:"metadata"`
}

// BasisRequest names the frame's anchor: exactly one of NodeID/FrameID
// is set for a node/frame basis, or both for a combined basis.
type BasisRequest struct {
	NodeID  string `json:"node_id"`
	FrameID string `json:"frame_id"`
}

// SourceRequest is one composition source entry.
type SourceRequest struct {
	Kind         string   `json:"kind" binding:"required"` // current_node|parent_directory|siblings|related_nodes
	RelatedNodes []string `json:"related_nodes"`
}

// FilterRequest narrows a composed frame set to one type or agent.
type FilterRequest struct {
	ByType  string `json:"by_type"`
	ByAgent string `json:"by_agent"`
}

// PolicyRequest is the JSON shape of a view.Policy.
type PolicyRequest struct {
	MaxFrames int             `json:"max_frames"`
	Ordering  string          `json:"ordering"` // recency|type|agent
	Filters   []FilterRequest `json:"filters"`
	Sources   []SourceRequest `json:"sources"`
}

// ComposeRequest is the body of POST /v1/nodes/:node_id/compose.
type ComposeRequest struct {
	Policy PolicyRequest `json:"policy"`
}

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	NodeID       string `json:"node_id" binding:"required"`
	AgentID      string `json:"agent_id" binding:"required"`
	ProviderName string `json:"provider_name" binding:"required"`
	FrameType    string `json:"frame_type" binding:"required"`
	Priority     string `json:"priority"` // low|normal|high|urgent, defaults to normal
	Force        bool   `json:"force"`
}

// CompactRequest is the body of POST /v1/compact. A zero TTL reaps
// every tombstoned node immediately.
type CompactRequest struct {
	TTLSeconds  int64 `json:"ttl_seconds" binding:"min=0"`
	PurgeFrames bool  `json:"purge_frames"`
}
