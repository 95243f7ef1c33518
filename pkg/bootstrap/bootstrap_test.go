package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withIsolatedXDG(t *testing.T) {
	t.Helper()
	dataHome := t.TempDir()
	configHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("XDG_CONFIG_HOME", configHome)
}

func TestInitCreatesHeadsAndEngineYAML(t *testing.T) {
	withIsolatedXDG(t)
	workspace := t.TempDir()
	configDir := t.TempDir()

	res, err := Init(workspace, configDir)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Created)
	assert.Empty(t, res.Skipped)

	headsPath, err := HeadsPath(workspace)
	require.NoError(t, err)
	assert.FileExists(t, headsPath)

	enginePath := filepath.Join(configDir, "engine.yaml")
	assert.FileExists(t, enginePath)

	content, err := os.ReadFile(enginePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "default_agent: ctx-reader")
}

func TestInitIsIdempotent(t *testing.T) {
	withIsolatedXDG(t)
	workspace := t.TempDir()
	configDir := t.TempDir()

	_, err := Init(workspace, configDir)
	require.NoError(t, err)

	res, err := Init(workspace, configDir)
	require.NoError(t, err)
	assert.Empty(t, res.Created, "second run should create nothing new")
	assert.Len(t, res.Skipped, 2, "second run should skip the existing heads file and engine.yaml")
}

func TestProviderConfigDirIsCreated(t *testing.T) {
	withIsolatedXDG(t)
	workspace := t.TempDir()
	configDir := t.TempDir()

	_, err := Init(workspace, configDir)
	require.NoError(t, err)

	dir, err := ProviderConfigDir(workspace)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
