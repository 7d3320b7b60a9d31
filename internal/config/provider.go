package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleBinding maps an abstract role to a concrete provider and model.
type RoleBinding struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	// Params are adapter-specific knobs (temperature, max_tokens, ...).
	Params RoleParams `json:"params" yaml:"params"`
}

// RoleParams holds generation parameters shared by the HTTP adapters.
type RoleParams struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// ProviderConfig configures the role-based provider router.
type ProviderConfig struct {
	// Roles maps role names ("planner", "navigator", ...) to bindings.
	// Entries here override the built-in defaults.
	Roles map[string]RoleBinding `json:"roles" yaml:"roles"`

	// APIKeys maps provider name to API key. Env vars fill gaps.
	APIKeys map[string]string `json:"api_keys" yaml:"api_keys"`

	// BaseURLs optionally overrides the endpoint per provider
	// (e.g. a local Ollama server or an OpenAI-compatible proxy).
	BaseURLs map[string]string `json:"base_urls" yaml:"base_urls"`

	// Timeout in seconds for a single adapter invocation.
	TimeoutSec int `json:"timeout_sec" yaml:"timeout_sec"`
}

// DefaultProviderConfig returns the built-in role bindings.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Roles:      DefaultRoleBindings(),
		APIKeys:    map[string]string{},
		BaseURLs:   map[string]string{},
		TimeoutSec: 120,
	}
}

// DefaultRoleBindings returns the built-in role->binding table.
func DefaultRoleBindings() map[string]RoleBinding {
	return map[string]RoleBinding{
		"planner": {
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Params:   RoleParams{Temperature: 0.1, MaxTokens: 4096},
		},
		"navigator": {
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Params:   RoleParams{Temperature: 0.2, MaxTokens: 2048},
		},
		"summarizer": {
			Provider: "ollama",
			Model:    "llama3.1",
			Params:   RoleParams{Temperature: 0.3, MaxTokens: 1024},
		},
	}
}

// mergeDefaults fills roles absent from the user config with the
// built-in bindings, so an override file only needs to list changes.
func (p *ProviderConfig) mergeDefaults() {
	defaults := DefaultRoleBindings()
	if p.Roles == nil {
		p.Roles = defaults
		return
	}
	for role, binding := range defaults {
		if _, ok := p.Roles[role]; !ok {
			p.Roles[role] = binding
		}
	}
	if p.TimeoutSec <= 0 {
		p.TimeoutSec = 120
	}
}

// LoadRolesYAML reads role bindings from a YAML file and overlays them
// onto p. A missing file is not an error.
func (p *ProviderConfig) LoadRolesYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read roles file: %w", err)
	}

	var roles map[string]RoleBinding
	if err := yaml.Unmarshal(data, &roles); err != nil {
		return fmt.Errorf("parse roles file %s: %w", path, err)
	}

	if p.Roles == nil {
		p.Roles = make(map[string]RoleBinding)
	}
	for role, binding := range roles {
		p.Roles[role] = binding
	}
	return nil
}
