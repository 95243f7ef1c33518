package providerreg

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// fileProvider is one [[providers]] table entry in a provider TOML
// file: provider_name, provider_type, model, optional endpoint,
// optional api_key, and a default_options table.
type fileProvider struct {
	ProviderName   string      `toml:"provider_name"`
	ProviderType   string      `toml:"provider_type"`
	Model          string      `toml:"model"`
	Endpoint       string      `toml:"endpoint"`
	APIKey         string      `toml:"api_key"`
	DefaultOptions YAMLOptions `toml:"default_options"`
}

type providerFile struct {
	Providers []fileProvider `toml:"providers"`
}

// Load reads every *.toml file directly under configDir and returns a
// Registry of the providers they declare (later files in directory
// order override earlier ones sharing a provider_name, mirroring
// agentreg's overlay order). A missing configDir is not an error: an
// empty Registry is returned, so inline engine.yaml provider
// declarations (see YAMLProvider) remain the only source in that case.
func Load(configDir string) (*Registry, error) {
	reg := &Registry{providers: make(map[string]Config)}
	if configDir == "" {
		return reg, nil
	}

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("providerreg: reading %s: %w", configDir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(configDir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Error("providerreg: skipping unreadable provider file", "file", path, "error", err)
			continue
		}
		var pf providerFile
		if err := toml.Unmarshal(raw, &pf); err != nil {
			slog.Error("providerreg: skipping malformed provider file", "file", path, "error", err)
			continue
		}
		for _, fp := range pf.Providers {
			if fp.ProviderName == "" {
				slog.Error("providerreg: skipping provider entry missing provider_name", "file", path)
				continue
			}
			reg.put(Config{
				ProviderName:   fp.ProviderName,
				ProviderType:   Type(fp.ProviderType),
				Model:          fp.Model,
				Endpoint:       fp.Endpoint,
				APIKey:         fp.APIKey,
				DefaultOptions: fp.DefaultOptions.toCompletionOptions(),
			})
		}
	}
	return reg, nil
}

// Merge overlays other's entries onto r, other winning on conflict.
// Used to combine TOML-file providers (Load) with inline engine.yaml
// providers (YAMLProvider), so either source alone or both together
// produce a working registry.
func (r *Registry) Merge(other *Registry) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	for _, cfg := range other.providers {
		r.put(cfg)
	}
}
