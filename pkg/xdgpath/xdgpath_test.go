package xdgpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceKeyStableAndDistinct(t *testing.T) {
	k1 := WorkspaceKey("/home/user/project-a")
	k2 := WorkspaceKey("/home/user/project-a")
	k3 := WorkspaceKey("/home/user/project-b")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestWorkspaceDataDirCreatesDirectoryUnderXDGDataHome(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	ws := t.TempDir()
	dir, err := WorkspaceDataDir(ws)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataHome, "ctxengine", WorkspaceKey(ws)), dir)

	info, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.DirExists(t, info)
}

func TestWorkspaceConfigDirUsesXDGConfigHome(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	ws := t.TempDir()
	dir, err := WorkspaceConfigDir(ws)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(configHome, "ctxengine", WorkspaceKey(ws)), dir)
	assert.DirExists(t, dir)
}

func TestTwoWorkspacesNeverCollide(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	wsA := t.TempDir()
	wsB := t.TempDir()
	dirA, err := WorkspaceDataDir(wsA)
	require.NoError(t, err)
	dirB, err := WorkspaceDataDir(wsB)
	require.NoError(t, err)
	assert.NotEqual(t, dirA, dirB)
}
