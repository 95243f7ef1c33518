package agentreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePromptContractReaderAlwaysPasses(t *testing.T) {
	a := &Agent{AgentID: "r1", Role: RoleReader}
	assert.NoError(t, a.ValidatePromptContract())
}

func TestValidatePromptContractWriterMissingField(t *testing.T) {
	a := &Agent{AgentID: "w1", Role: RoleWriter, Metadata: map[string]string{
		MetaSystemPrompt: "be terse",
	}}
	err := a.ValidatePromptContract()
	require.Error(t, err)
}

func TestValidatePromptContractWriterComplete(t *testing.T) {
	a := &Agent{AgentID: "w1", Role: RoleWriter, Metadata: map[string]string{
		MetaSystemPrompt:        "be terse",
		MetaUserPromptFile:      "Summarize {path}",
		MetaUserPromptDirectory: "Summarize dir {path}",
	}}
	assert.NoError(t, a.ValidatePromptContract())
}

func TestRenderUserPromptSubstitutesPlaceholders(t *testing.T) {
	a := &Agent{AgentID: "w1", Role: RoleWriter, Metadata: map[string]string{
		MetaUserPromptFile: "Summarize {path} ({node_type}, {file_size} bytes)",
	}}
	got := a.RenderUserPrompt("a/b.go", "file", 42)
	assert.Equal(t, "Summarize a/b.go (file, 42 bytes)", got)
}

func TestRegistryGetAndHas(t *testing.T) {
	r := NewRegistry(map[string]*Agent{
		"r1": {AgentID: "r1", Role: RoleReader},
	})
	assert.True(t, r.Has("r1"))
	assert.False(t, r.Has("missing"))

	got, err := r.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.AgentID)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRegistryGetAllReturnsDefensiveCopy(t *testing.T) {
	r := NewRegistry(map[string]*Agent{
		"r1": {AgentID: "r1", Role: RoleReader, Metadata: map[string]string{"k": "v"}},
	})
	all := r.GetAll()
	all["r1"].Metadata["k"] = "tampered"

	got, err := r.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])
}
