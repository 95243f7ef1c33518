// Package frametype holds the well-known frame_type string constants
// and the validator PutFrame applies.
package frametype

import (
	"strings"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
)

// Well-known frame types. Agents are free to use other strings; these
// are the ones the core itself recognizes or constructs.
const (
	// Analysis is the frame type that the starter engine.yaml written
	// by pkg/bootstrap sets as default_frame_type.
	Analysis = "analysis"

	// contextPrefix is the builder prefix for per-agent context frames.
	contextPrefix = "context-"
)

// ForAgent builds the conventional "context-<agent_id>" frame type used
// when an agent's generated frames are not otherwise disambiguated by a
// caller-supplied frame_type.
func ForAgent(agentID string) string {
	return contextPrefix + agentID
}

// Validate reports whether frameType is a well-formed frame_type:
// not empty or all whitespace, and free of NUL and other control
// bytes below 0x20 except tab.
func Validate(frameType string) error {
	if strings.TrimSpace(frameType) == "" {
		return ctxerr.New(ctxerr.KindInvalidFrame, "frame_type must not be empty")
	}
	for _, r := range frameType {
		if r == 0 || (r < 0x20 && r != '\t') {
			return ctxerr.New(ctxerr.KindInvalidFrame, "frame_type %q contains a control byte", frameType)
		}
	}
	return nil
}
