// Package xdgpath resolves the XDG base-directory roots used to store
// per-workspace engine state, namespaced so two workspaces never
// collide on one machine.
package xdgpath

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// appDirName is the namespace directory under each XDG root.
const appDirName = "ctxengine"

// DataHome returns $XDG_DATA_HOME, or ~/.local/share when unset, per
// the XDG Base Directory spec.
func DataHome() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

// ConfigHome returns $XDG_CONFIG_HOME, or ~/.config when unset.
func ConfigHome() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

// WorkspaceKey derives a stable, collision-resistant directory name for
// workspaceRoot so two workspaces never share state on one machine, even
// if both happen to be named the same on disk.
func WorkspaceKey(workspaceRoot string) string {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		abs = workspaceRoot
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:16]
}

// WorkspaceDataDir returns (creating it if needed) the per-workspace
// data directory: $XDG_DATA_HOME/ctxengine/<workspace key>.
func WorkspaceDataDir(workspaceRoot string) (string, error) {
	return workspaceDir(DataHome, workspaceRoot)
}

// WorkspaceConfigDir returns the per-workspace config directory:
// $XDG_CONFIG_HOME/ctxengine/<workspace key>.
func WorkspaceConfigDir(workspaceRoot string) (string, error) {
	return workspaceDir(ConfigHome, workspaceRoot)
}

func workspaceDir(root func() (string, error), workspaceRoot string) (string, error) {
	base, err := root()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, appDirName, WorkspaceKey(workspaceRoot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// AgentsDir returns the shared (not per-workspace) directory holding
// user-overlay agent config files: $XDG_CONFIG_HOME/ctxengine/agents.
func AgentsDir() (string, error) {
	base, err := ConfigHome()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, appDirName, "agents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
