// Package config loads the engine-wide configuration file
// (engine.yaml): provider definitions, queue sizing, and the default
// writer agent/provider pair used when a request omits them.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/ctxengine/pkg/providerreg"
	"github.com/codeready-toolchain/ctxengine/pkg/queue"
)

// YAMLConfig is the on-disk shape of engine.yaml.
type YAMLConfig struct {
	Workspace         string                              `yaml:"workspace"`
	AgentConfigDir    string                              `yaml:"agent_config_dir"`
	ProviderConfigDir string                              `yaml:"provider_config_dir"`
	DefaultAgent      string                              `yaml:"default_agent"`
	DefaultProvider   string                              `yaml:"default_provider"`
	DefaultFrame      string                              `yaml:"default_frame_type"`
	HTTP              *HTTPYAMLConfig                     `yaml:"http"`
	Queue             *QueueYAMLConfig                    `yaml:"queue"`
	Providers         map[string]providerreg.YAMLProvider `yaml:"providers"`
}

// HTTPYAMLConfig holds the HTTP surface's listen settings.
type HTTPYAMLConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// QueueYAMLConfig is the on-disk shape of the queue block. Durations
// are Go duration strings ("2s", "150ms"); zero/empty fields keep the
// built-in defaults.
type QueueYAMLConfig struct {
	WorkerCount           int    `yaml:"worker_count"`
	MaxQueueSize          int    `yaml:"max_queue_size"`
	MaxConcurrentPerAgent int    `yaml:"max_concurrent_per_agent"`
	MinDelayPerAgent      string `yaml:"min_delay_per_agent"`
	MaxRetryAttempts      int    `yaml:"max_retry_attempts"`
	RetryDelay            string `yaml:"retry_delay"`
}

func (q *QueueYAMLConfig) toQueueConfig() (queue.Config, error) {
	out := queue.Config{
		WorkerCount:           q.WorkerCount,
		MaxQueueSize:          q.MaxQueueSize,
		MaxConcurrentPerAgent: q.MaxConcurrentPerAgent,
		MaxRetryAttempts:      q.MaxRetryAttempts,
	}
	if q.MinDelayPerAgent != "" {
		d, err := time.ParseDuration(q.MinDelayPerAgent)
		if err != nil {
			return out, fmt.Errorf("queue.min_delay_per_agent: %w", err)
		}
		out.MinDelayPerAgent = d
	}
	if q.RetryDelay != "" {
		d, err := time.ParseDuration(q.RetryDelay)
		if err != nil {
			return out, fmt.Errorf("queue.retry_delay: %w", err)
		}
		out.RetryDelay = d
	}
	return out, nil
}

// Config is the fully resolved, validated configuration ready for
// cmd/ctxengine to wire into the engine's components.
type Config struct {
	Workspace        string
	AgentConfigDir   string
	DefaultAgent     string
	DefaultProvider  string
	DefaultFrameType string
	ListenAddr       string
	Queue            queue.Config
	Providers        *providerreg.Registry
}

// Initialize loads, merges, and validates engine.yaml under configDir.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "loading engine configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.InfoContext(ctx, "engine configuration initialized",
		"workspace", cfg.Workspace, "providers", len(cfg.Providers.Names()))
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "engine.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError("engine.yaml", ErrConfigNotFound)
		}
		return nil, NewLoadError("engine.yaml", err)
	}
	data = ExpandEnv(data)

	var y YAMLConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, NewLoadError("engine.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	queueCfg := defaultQueueConfig()
	if y.Queue != nil {
		override, err := y.Queue.toQueueConfig()
		if err != nil {
			return nil, NewLoadError("engine.yaml", err)
		}
		if err := mergo.Merge(&queueCfg, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging queue config: %w", err)
		}
	}

	// Per-entity TOML files under provider_config_dir are the primary
	// source; inline engine.yaml declarations (sugar for small
	// deployments, see providerreg.YAMLProvider) are layered on top so
	// either or both sources produce a working registry.
	fileProviders, err := providerreg.Load(y.ProviderConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading provider_config_dir: %w", err)
	}
	inline := make(map[string]providerreg.Config, len(y.Providers))
	for name, p := range y.Providers {
		inline[name] = p.ToProviderConfig(name)
	}
	providerRegistry := fileProviders
	providerRegistry.Merge(providerreg.NewRegistry(inline))

	listenAddr := ":8080"
	if y.HTTP != nil && y.HTTP.ListenAddr != "" {
		listenAddr = y.HTTP.ListenAddr
	}

	frameType := y.DefaultFrame
	if frameType == "" {
		frameType = "analysis"
	}

	return &Config{
		Workspace:        y.Workspace,
		AgentConfigDir:   y.AgentConfigDir,
		DefaultAgent:     y.DefaultAgent,
		DefaultProvider:  y.DefaultProvider,
		DefaultFrameType: frameType,
		ListenAddr:       listenAddr,
		Queue:            queueCfg,
		Providers:        providerRegistry,
	}, nil
}

func defaultQueueConfig() queue.Config {
	return queue.Config{
		WorkerCount:           4,
		MaxQueueSize:          10_000,
		MaxConcurrentPerAgent: 1,
		MinDelayPerAgent:      0,
		MaxRetryAttempts:      3,
		RetryDelay:            2 * time.Second,
	}
}

func validate(cfg *Config) error {
	if cfg.Workspace == "" {
		return NewValidationError("engine", "workspace", "", fmt.Errorf("%w: workspace root must be set", ErrMissingRequiredField))
	}
	if info, err := os.Stat(cfg.Workspace); err != nil || !info.IsDir() {
		return NewValidationError("engine", "workspace", "", fmt.Errorf("%w: %q is not a directory", ErrInvalidValue, cfg.Workspace))
	}
	if cfg.DefaultProvider != "" {
		if _, err := cfg.Providers.Get(cfg.DefaultProvider); err != nil {
			return NewValidationError("engine", "default_provider", "", fmt.Errorf("%w: %v", ErrInvalidReference, err))
		}
	}
	return nil
}
