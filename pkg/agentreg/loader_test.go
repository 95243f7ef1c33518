package agentreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaultsOnly(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	assert.True(t, reg.Has("ctx-reader"))
	assert.True(t, reg.Has("summarizer"))

	writer, err := reg.Get("summarizer")
	require.NoError(t, err)
	assert.Equal(t, RoleWriter, writer.Role)
	require.NoError(t, writer.ValidatePromptContract())
}

func TestLoadFromXDGOverlayOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summarizer.toml"), []byte(`
[[agents]]
agent_id = "summarizer"
role = "writer"

[agents.metadata]
system_prompt = "overridden prompt"
`), 0o644))

	reg, err := Load(dir)
	require.NoError(t, err)

	a, err := reg.Get("summarizer")
	require.NoError(t, err)
	assert.Equal(t, "overridden prompt", a.Metadata[MetaSystemPrompt])
	// user_prompt_file/directory survive from the embedded default
	// because the overlay merge is per-field, not whole-record.
	assert.NotEmpty(t, a.Metadata[MetaUserPromptFile])
}

func TestLoadFromXDGAddsNewAgent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.toml"), []byte(`
[[agents]]
agent_id = "extra-reader"
role = "reader"
`), 0o644))

	reg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, reg.Has("extra-reader"))
}

func TestLoadFromXDGSkipsMalformedFileButKeepsOthers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.toml"), []byte(`not valid toml [[[`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.toml"), []byte(`
[[agents]]
agent_id = "good-reader"
role = "reader"
`), 0o644))

	reg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, reg.Has("good-reader"))
}

func TestLoadFromXDGKeepsAgentWhenPromptFileUnreadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noprompt.toml"), []byte(`
[[agents]]
agent_id = "noprompt-writer"
role = "writer"
system_prompt_file = "missing_prompt.txt"

[agents.metadata]
user_prompt_file = "Summarize {path}"
user_prompt_directory = "Summarize dir {path}"
`), 0o644))

	reg, err := Load(dir)
	require.NoError(t, err)

	a, err := reg.Get("noprompt-writer")
	require.NoError(t, err)
	assert.Empty(t, a.Metadata[MetaSystemPrompt])
	assert.Error(t, a.ValidatePromptContract())
}

func TestLoadMissingConfigDirIsNotAnError(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.True(t, reg.Has("ctx-reader"))
}
