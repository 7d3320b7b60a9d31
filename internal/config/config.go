// Package config holds the per-concern configuration for goalpilot.
// User overrides live in .goalpilot/config.json inside the workspace;
// role-binding defaults may additionally be declared in .goalpilot/roles.yaml.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"goalpilot/internal/logging"
)

// Config aggregates all engine configuration.
type Config struct {
	Loop      LoopConfig      `json:"loop" yaml:"loop"`
	Provider  ProviderConfig  `json:"provider" yaml:"provider"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Loop:      DefaultLoopConfig(),
		Provider:  DefaultProviderConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// DefaultUserConfigPath returns the path of the user config file inside
// the given workspace.
func DefaultUserConfigPath(workspace string) string {
	return filepath.Join(workspace, ".goalpilot", "config.json")
}

// Load reads the user config from path and merges it over the defaults.
// A missing file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryConfig).Debug("no user config at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Provider.mergeDefaults()
	cfg.applyEnvOverrides()
	logging.Get(logging.CategoryConfig).Info("loaded user config from %s", path)
	return cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides fills in API keys from environment variables when the
// config file does not carry them. Priority: config file > env var.
func (c *Config) applyEnvOverrides() {
	envKeys := []struct {
		provider string
		envVar   string
	}{
		{"anthropic", "ANTHROPIC_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"gemini", "GEMINI_API_KEY"},
	}

	for _, e := range envKeys {
		if c.Provider.APIKeys == nil {
			c.Provider.APIKeys = make(map[string]string)
		}
		if c.Provider.APIKeys[e.provider] == "" {
			if key := os.Getenv(e.envVar); key != "" {
				c.Provider.APIKeys[e.provider] = key
				logging.Get(logging.CategoryConfig).Debug("API key for %s taken from %s", e.provider, e.envVar)
			}
		}
	}
}
