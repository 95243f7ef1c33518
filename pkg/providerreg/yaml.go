package providerreg

// YAMLOptions is the on-disk shape of a provider's default_options
// table, shared by both the inline engine.yaml declaration and the
// per-entity TOML file (see loader.go).
type YAMLOptions struct {
	Temperature      float64  `yaml:"temperature" toml:"temperature"`
	MaxTokens        int      `yaml:"max_tokens" toml:"max_tokens"`
	TopP             float64  `yaml:"top_p" toml:"top_p"`
	FrequencyPenalty float64  `yaml:"frequency_penalty" toml:"frequency_penalty"`
	PresencePenalty  float64  `yaml:"presence_penalty" toml:"presence_penalty"`
	Stop             []string `yaml:"stop" toml:"stop"`
}

func (o YAMLOptions) toCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature:      o.Temperature,
		MaxTokens:        o.MaxTokens,
		TopP:             o.TopP,
		FrequencyPenalty: o.FrequencyPenalty,
		PresencePenalty:  o.PresencePenalty,
		Stop:             o.Stop,
	}
}

// YAMLProvider is the inline engine.yaml shape for a provider
// declaration. This is sugar alongside the per-entity TOML files Load
// reads from the XDG config tree: small deployments can declare their
// handful of providers directly in engine.yaml instead of one file
// per provider.
type YAMLProvider struct {
	ProviderType   string      `yaml:"provider_type"`
	Model          string      `yaml:"model"`
	Endpoint       string      `yaml:"endpoint"`
	APIKey         string      `yaml:"api_key"`
	DefaultOptions YAMLOptions `yaml:"default_options"`
}

// ToProviderConfig converts a parsed YAMLProvider entry into a Config
// under the given provider_name (the engine.yaml map key).
func (p YAMLProvider) ToProviderConfig(name string) Config {
	return Config{
		ProviderName:   name,
		ProviderType:   Type(p.ProviderType),
		Model:          p.Model,
		Endpoint:       p.Endpoint,
		APIKey:         p.APIKey,
		DefaultOptions: p.DefaultOptions.toCompletionOptions(),
	}
}
