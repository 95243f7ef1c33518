// Package providerreg implements the provider registry (C7): an
// in-memory map of LLM provider configurations keyed by provider_name,
// plus an abstract chat-completion client the generation queue drives
// uniformly regardless of provider_type.
package providerreg

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
)

// Type identifies the wire shape a provider speaks.
type Type string

const (
	TypeOpenAI      Type = "openai"
	TypeAnthropic   Type = "anthropic"
	TypeOllama      Type = "ollama"
	TypeLocalCustom Type = "local"
)

// Conversation message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a chat-completion request.
type Message struct {
	Role    string
	Content string
}

// CompletionOptions controls a single completion call. Fields mirror
// a provider's default_options configuration table.
type CompletionOptions struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
}

// CompletionResult is the normalized response shape across provider
// types.
type CompletionResult struct {
	Content      string
	Model        string
	Usage        Usage
	FinishReason string
}

// Usage reports token accounting, when the provider supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the abstract provider client the core treats uniformly;
// only Registry.CreateClient branches on provider_type.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*CompletionResult, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Config is one provider's configuration.
type Config struct {
	ProviderName   string
	ProviderType   Type
	Model          string
	Endpoint       string
	APIKey         string // explicit key, if set in config
	DefaultOptions CompletionOptions
}

// envVarForType returns the environment variable name conventionally
// used to supply an API key for a provider type.
func envVarForType(t Type) string {
	switch t {
	case TypeOpenAI:
		return "OPENAI_API_KEY"
	case TypeAnthropic:
		return "ANTHROPIC_API_KEY"
	case TypeOllama:
		return "OLLAMA_API_KEY"
	default:
		return ""
	}
}

// ResolveAPIKey resolves the key to send: explicit field, then
// environment variable derived from provider type, then unset.
func (c Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if envVar := envVarForType(c.ProviderType); envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}

// Registry is the in-memory provider registry.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Config
}

// NewRegistry wraps configs in a Registry.
func NewRegistry(configs map[string]Config) *Registry {
	copied := make(map[string]Config, len(configs))
	for k, v := range configs {
		copied[k] = v
	}
	return &Registry{providers: copied}
}

// Names returns every registered provider_name, for logging/health
// reporting.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// put inserts or overwrites a provider config. Used by the loader,
// which is the only writer after construction (later files override
// earlier ones, matching agentreg's overlay order).
func (r *Registry) put(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.providers == nil {
		r.providers = make(map[string]Config)
	}
	r.providers[cfg.ProviderName] = cfg
}

// Get returns the config for providerName.
func (r *Registry) Get(providerName string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.providers[providerName]
	if !ok {
		return Config{}, ctxerr.New(ctxerr.KindProviderNotConfigured, "provider %q is not configured", providerName)
	}
	return c, nil
}

// CreateClient returns an abstract Client for providerName. This is
// the only place that branches on provider_type.
func (r *Registry) CreateClient(providerName string) (Client, error) {
	cfg, err := r.Get(providerName)
	if err != nil {
		return nil, err
	}
	if cfg.ProviderType == TypeLocalCustom && strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ctxerr.New(ctxerr.KindConfigError, "provider %q: local provider requires a non-empty endpoint", providerName)
	}

	switch cfg.ProviderType {
	case TypeOpenAI:
		return newHTTPClient(cfg, openAIRequestBuilder{}), nil
	case TypeAnthropic:
		return newHTTPClient(cfg, anthropicRequestBuilder{}), nil
	case TypeOllama:
		return newHTTPClient(cfg, ollamaRequestBuilder{}), nil
	case TypeLocalCustom:
		return newHTTPClient(cfg, openAIRequestBuilder{}), nil
	default:
		return nil, ctxerr.New(ctxerr.KindConfigError, "provider %q: unknown provider_type %q", providerName, cfg.ProviderType)
	}
}
