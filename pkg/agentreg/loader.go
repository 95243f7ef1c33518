package agentreg

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
)

//go:embed defaults
var defaultsFS embed.FS

type fileAgent struct {
	AgentID string `toml:"agent_id"`
	Role    string `toml:"role"`
	// SystemPromptFile, when set, is a path (relative to the agent
	// file's own directory) read to populate the system_prompt
	// contract field. Reading a system_prompt rendered directly in
	// Metadata["system_prompt"] is also supported for small prompts.
	SystemPromptFile string            `toml:"system_prompt_file"`
	Metadata         map[string]string `toml:"metadata"`
}

type agentFile struct {
	Agents []fileAgent `toml:"agents"`
}

// Load runs the two-phase load: first the embedded defaults, then an
// overlay of per-file configs from configDir (later overrides earlier).
// A missing configDir is not an error — only the embedded defaults are
// used.
func Load(configDir string) (*Registry, error) {
	reg := &Registry{agents: make(map[string]*Agent)}

	if err := loadFromConfig(reg); err != nil {
		return nil, fmt.Errorf("agentreg: loading embedded defaults: %w", err)
	}
	if err := loadFromXDG(reg, configDir); err != nil {
		return nil, fmt.Errorf("agentreg: loading %s: %w", configDir, err)
	}
	return reg, nil
}

func loadFromConfig(reg *Registry) error {
	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		raw, err := defaultsFS.ReadFile(filepath.Join("defaults", e.Name()))
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", e.Name(), err)
		}
		readPrompt := func(path string) ([]byte, error) {
			return defaultsFS.ReadFile(filepath.Join("defaults", path))
		}
		if err := decodeAndMerge(reg, e.Name(), raw, readPrompt); err != nil {
			return fmt.Errorf("decoding embedded %s: %w", e.Name(), err)
		}
	}
	return nil
}

// loadFromXDG overlays per-file agent configs found directly under
// configDir. Agents whose TOML is malformed are skipped with a
// logged error; loading one broken agent file never halts the rest.
func loadFromXDG(reg *Registry, configDir string) error {
	if configDir == "" {
		return nil
	}
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(configDir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Error("agentreg: skipping unreadable agent file", "file", path, "error", err)
			continue
		}
		readPrompt := func(promptPath string) ([]byte, error) {
			return os.ReadFile(filepath.Join(configDir, promptPath))
		}
		if err := decodeAndMerge(reg, e.Name(), raw, readPrompt); err != nil {
			slog.Error("agentreg: skipping malformed agent file", "file", path, "error", err)
			continue
		}
	}
	return nil
}

func decodeAndMerge(reg *Registry, source string, raw []byte, readPrompt func(string) ([]byte, error)) error {
	var f agentFile
	if err := toml.Unmarshal(raw, &f); err != nil {
		return &LoadError{File: source, Err: err}
	}
	for _, fa := range f.Agents {
		if fa.AgentID == "" {
			return &LoadError{File: source, Err: fmt.Errorf("agent entry missing agent_id")}
		}
		role := Role(strings.ToLower(fa.Role))
		if role != RoleReader && role != RoleWriter {
			return &LoadError{File: source, Err: fmt.Errorf("agent %q: unknown role %q", fa.AgentID, fa.Role)}
		}

		metadata := fa.Metadata
		if fa.SystemPromptFile != "" {
			if metadata == nil {
				metadata = make(map[string]string)
			}
			content, err := readPrompt(fa.SystemPromptFile)
			if err != nil {
				// Prompt file unreadable: keep the agent, omit
				// system_prompt. Writer agents then fail the prompt
				// contract check at generation time instead of
				// disappearing from the registry.
				slog.Error("agentreg: prompt file unreadable, agent kept without system_prompt",
					"agent_id", fa.AgentID, "prompt_file", fa.SystemPromptFile, "error", err)
			} else {
				metadata[MetaSystemPrompt] = string(content)
			}
		}

		incoming := &Agent{AgentID: fa.AgentID, Role: role, Metadata: metadata}
		if existing, ok := reg.agents[fa.AgentID]; ok {
			merged := existing.Clone()
			merged.Role = incoming.Role
			if merged.Metadata == nil {
				merged.Metadata = make(map[string]string)
			}
			if err := mergo.Merge(&merged.Metadata, incoming.Metadata, mergo.WithOverride); err != nil {
				return &LoadError{File: source, Err: err}
			}
			reg.put(merged)
		} else {
			reg.put(incoming)
		}
	}
	return nil
}
