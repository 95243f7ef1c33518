package providerreg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAPIKeyExplicitFieldWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	cfg := Config{ProviderType: TypeOpenAI, APIKey: "explicit-key"}
	assert.Equal(t, "explicit-key", cfg.ResolveAPIKey())
}

func TestResolveAPIKeyFallsBackToEnvVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	cfg := Config{ProviderType: TypeAnthropic}
	assert.Equal(t, "env-key", cfg.ResolveAPIKey())
}

func TestResolveAPIKeyUnsetWhenNeitherPresent(t *testing.T) {
	os.Unsetenv("OLLAMA_API_KEY")
	cfg := Config{ProviderType: TypeOllama}
	assert.Equal(t, "", cfg.ResolveAPIKey())
}

func TestRegistryGetMissingProvider(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestCreateClientLocalCustomRequiresEndpoint(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"local1": {ProviderName: "local1", ProviderType: TypeLocalCustom},
	})
	_, err := r.CreateClient("local1")
	assert.Error(t, err)
}

func TestCreateClientUnknownProviderType(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"bad": {ProviderName: "bad", ProviderType: Type("nonsense")},
	})
	_, err := r.CreateClient("bad")
	assert.Error(t, err)
}

func TestCreateClientDispatchesPerProviderType(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"oa":    {ProviderName: "oa", ProviderType: TypeOpenAI, Endpoint: "http://example.invalid"},
		"an":    {ProviderName: "an", ProviderType: TypeAnthropic, Endpoint: "http://example.invalid"},
		"ol":    {ProviderName: "ol", ProviderType: TypeOllama, Endpoint: "http://example.invalid"},
		"local": {ProviderName: "local", ProviderType: TypeLocalCustom, Endpoint: "http://example.invalid"},
	})
	for _, name := range []string{"oa", "an", "ol", "local"} {
		client, err := r.CreateClient(name)
		require.NoError(t, err)
		require.NotNil(t, client)
	}
}
