// Package agentreg implements the agent registry and prompt contract
// (C6): an in-memory map of agent identities keyed by agent_id, loaded
// from embedded defaults overlaid by per-file TOML configs under the
// XDG config directory.
package agentreg

import (
	"fmt"
	"strings"
	"sync"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
)

// Role is the agent's capability class.
type Role string

const (
	// RoleReader agents may only read context (get_node, compose).
	RoleReader Role = "reader"
	// RoleWriter agents may append frames via PutFrame and must
	// satisfy the prompt contract.
	RoleWriter Role = "writer"
)

// Prompt contract metadata keys. Writer agents must carry all three.
const (
	MetaSystemPrompt        = "system_prompt"
	MetaUserPromptFile      = "user_prompt_file"
	MetaUserPromptDirectory = "user_prompt_directory"
)

// Agent is one registered agent identity.
type Agent struct {
	AgentID  string
	Role     Role
	Metadata map[string]string
}

// Clone returns a deep copy of a.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	out := *a
	if a.Metadata != nil {
		out.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// ValidatePromptContract checks the Writer prompt contract:
// system_prompt, user_prompt_file, user_prompt_directory must all be
// present. Reader agents have no contract and always pass.
func (a *Agent) ValidatePromptContract() error {
	if a.Role != RoleWriter {
		return nil
	}
	for _, field := range []string{MetaSystemPrompt, MetaUserPromptFile, MetaUserPromptDirectory} {
		if strings.TrimSpace(a.Metadata[field]) == "" {
			return ctxerr.MissingPromptContractField(a.AgentID, field)
		}
	}
	return nil
}

// RenderUserPrompt substitutes {path}, {node_type}, and {file_size}
// into the template chosen by node kind: user_prompt_directory for
// directories, user_prompt_file for everything else.
func (a *Agent) RenderUserPrompt(path, nodeType string, fileSize int64) string {
	tmplKey := MetaUserPromptFile
	if nodeType == "directory" {
		tmplKey = MetaUserPromptDirectory
	}
	tmpl := a.Metadata[tmplKey]
	r := strings.NewReplacer(
		"{path}", path,
		"{node_type}", nodeType,
		"{file_size}", fmt.Sprintf("%d", fileSize),
	)
	return r.Replace(tmpl)
}

// Registry is the in-memory agent registry. Thread-safe.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry wraps agents in a Registry, defensively copying to
// prevent external mutation.
func NewRegistry(agents map[string]*Agent) *Registry {
	copied := make(map[string]*Agent, len(agents))
	for k, v := range agents {
		copied[k] = v.Clone()
	}
	return &Registry{agents: copied}
}

// Get retrieves an agent by id.
func (r *Registry) Get(agentID string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return a.Clone(), nil
}

// GetAll returns a copy of every registered agent.
func (r *Registry) GetAll() map[string]*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Agent, len(r.agents))
	for k, v := range r.agents {
		out[k] = v.Clone()
	}
	return out
}

// Has reports whether agentID is registered.
func (r *Registry) Has(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// put inserts or overwrites agent a. Used by the loader, which is the
// only writer after construction (later overlays override earlier).
func (r *Registry) put(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agents == nil {
		r.agents = make(map[string]*Agent)
	}
	r.agents[a.AgentID] = a
}
