package agentreg

import (
	"errors"
	"fmt"
)

// ErrAgentNotFound indicates the agent_id was not found in the registry.
var ErrAgentNotFound = errors.New("agent not found")

// LoadError wraps a per-file loading failure with file context. A
// LoadError for one agent's TOML never aborts the rest of the load:
// the loader logs it and continues.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("agentreg: failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
