// Package bootstrap prepares a fresh workspace's on-disk state: XDG
// data/config directories, an empty head index, and a starter
// engine.yaml. Agent/prompt defaults are compiled into the binary
// (pkg/agentreg), so init only needs to create the directories a
// user's own overlay files and the runtime's state live in.
//
// cmd/ctxengine is the only importer: its init verb calls Init, and its
// engine wiring calls HeadsPath to locate the head index. The rest of
// the core library works against an already-bootstrapped workspace and
// never imports this package.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codeready-toolchain/ctxengine/pkg/heads"
	"github.com/codeready-toolchain/ctxengine/pkg/xdgpath"
)

// defaultEngineYAML is written to <configDir>/engine.yaml when absent,
// enough to start the engine against the bootstrapped workspace with
// the embedded reader/summarizer agent defaults.
const defaultEngineYAML = `# ctxengine configuration, written by "ctxengine init".
workspace: %s
agent_config_dir: %s
provider_config_dir: %s
default_agent: ctx-reader
default_frame_type: analysis
http:
  listen_addr: ":8080"
queue:
  worker_count: 4
  max_queue_size: 10000
  max_concurrent_per_agent: 1
  max_retry_attempts: 3
  retry_delay: 2s
providers: {}
`

// Result reports what Init actually did so a CLI can print a readable
// summary.
type Result struct {
	Created []string
	Skipped []string
}

// Init ensures the per-workspace XDG data and config directories
// exist, writes an empty head index if one isn't already there, and
// writes a starter engine.yaml under configDir if absent. It never
// overwrites an existing head index or engine.yaml — re-running init
// against an already-initialized workspace is a safe no-op save for
// directory creation.
func Init(workspaceRoot, configDir string) (*Result, error) {
	res := &Result{}

	absWorkspace, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolving workspace root: %w", err)
	}

	// WorkspaceDataDir creates the directory, so look for it first at
	// the same location to tell a fresh workspace from a re-run.
	dataHome, err := xdgpath.DataHome()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resolving XDG data home: %w", err)
	}
	_, statErr := os.Stat(filepath.Join(dataHome, "ctxengine", xdgpath.WorkspaceKey(absWorkspace)))
	dataDirExisted := statErr == nil

	dataDir, err := xdgpath.WorkspaceDataDir(absWorkspace)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: creating workspace data dir: %w", err)
	}
	if !dataDirExisted {
		res.Created = append(res.Created, dataDir)
	}

	if _, err := xdgpath.WorkspaceConfigDir(absWorkspace); err != nil {
		return nil, fmt.Errorf("bootstrap: creating workspace config dir: %w", err)
	}

	if _, err := xdgpath.AgentsDir(); err != nil {
		return nil, fmt.Errorf("bootstrap: creating shared agents dir: %w", err)
	}

	providerDir := filepath.Join(dataDir, "providers")
	if err := os.MkdirAll(providerDir, 0o755); err != nil {
		return nil, fmt.Errorf("bootstrap: creating provider config dir: %w", err)
	}

	headsPath := filepath.Join(dataDir, "heads.bin")
	if _, err := os.Stat(headsPath); os.IsNotExist(err) {
		if err := heads.Save(heads.New(), headsPath); err != nil {
			return nil, fmt.Errorf("bootstrap: writing empty head index: %w", err)
		}
		res.Created = append(res.Created, headsPath)
	} else if err != nil {
		return nil, fmt.Errorf("bootstrap: stat %s: %w", headsPath, err)
	} else {
		res.Skipped = append(res.Skipped, headsPath)
	}

	if configDir == "" {
		configDir = dataDir
	}
	enginePath := filepath.Join(configDir, "engine.yaml")
	if _, err := os.Stat(enginePath); os.IsNotExist(err) {
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return nil, fmt.Errorf("bootstrap: creating config dir: %w", err)
		}
		agentDir := xdgAgentsDirOrEmpty()
		content := fmt.Sprintf(defaultEngineYAML, absWorkspace, agentDir, providerDir)
		if err := os.WriteFile(enginePath, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("bootstrap: writing engine.yaml: %w", err)
		}
		res.Created = append(res.Created, enginePath)
	} else if err != nil {
		return nil, fmt.Errorf("bootstrap: stat %s: %w", enginePath, err)
	} else {
		res.Skipped = append(res.Skipped, enginePath)
	}

	return res, nil
}

func xdgAgentsDirOrEmpty() string {
	dir, err := xdgpath.AgentsDir()
	if err != nil {
		return ""
	}
	return dir
}

// HeadsPath returns the canonical head-index file location for a
// workspace, the same derivation Init uses, so cmd/ctxengine doesn't
// need to duplicate the filename convention.
func HeadsPath(workspaceRoot string) (string, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", err
	}
	dataDir, err := xdgpath.WorkspaceDataDir(abs)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "heads.bin"), nil
}

// ProviderConfigDir returns the canonical per-workspace provider TOML
// directory Init creates, for the same reason as HeadsPath.
func ProviderConfigDir(workspaceRoot string) (string, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", err
	}
	dataDir, err := xdgpath.WorkspaceDataDir(abs)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "providers"), nil
}
