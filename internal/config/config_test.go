package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}

	def := Default()
	if cfg.Loop.IterationInterval != def.Loop.IterationInterval {
		t.Errorf("expected default loop config, got %+v", cfg.Loop)
	}
	if _, ok := cfg.Provider.Roles["planner"]; !ok {
		t.Error("expected the built-in planner binding")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"loop": {"max_consecutive_failures": 7},
		"provider": {
			"roles": {
				"planner": {"provider": "ollama", "model": "llama3.1", "params": {"temperature": 0.5}}
			}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Loop.MaxConsecutiveFailures != 7 {
		t.Errorf("expected override applied, got %d", cfg.Loop.MaxConsecutiveFailures)
	}
	if b := cfg.Provider.Roles["planner"]; b.Provider != "ollama" || b.Model != "llama3.1" {
		t.Errorf("expected planner rebinding, got %+v", b)
	}
	// Roles absent from the file keep their built-in bindings.
	if _, ok := cfg.Provider.Roles["navigator"]; !ok {
		t.Error("expected default roles merged in")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestEnvOverridesFillMissingKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider.APIKeys["anthropic"] != "from-env" {
		t.Errorf("expected env key picked up, got %q", cfg.Provider.APIKeys["anthropic"])
	}
}

func TestEnvDoesNotOverrideFileKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"provider": {"api_keys": {"openai": "from-file"}}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider.APIKeys["openai"] != "from-file" {
		t.Errorf("file key must win over env, got %q", cfg.Provider.APIKeys["openai"])
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Loop.RetryDelay = 90 * time.Second
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Loop.RetryDelay != 90*time.Second {
		t.Errorf("expected retry delay round-tripped, got %v", loaded.Loop.RetryDelay)
	}
}

func TestLoadRolesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	body := `
planner:
  provider: mock
  model: fake
  params:
    temperature: 0.9
    max_tokens: 64
auditor:
  provider: openai
  model: gpt-4o-mini
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write roles: %v", err)
	}

	p := DefaultProviderConfig()
	if err := p.LoadRolesYAML(path); err != nil {
		t.Fatalf("LoadRolesYAML failed: %v", err)
	}

	if b := p.Roles["planner"]; b.Provider != "mock" || b.Params.MaxTokens != 64 {
		t.Errorf("expected planner overlay, got %+v", b)
	}
	if b := p.Roles["auditor"]; b.Provider != "openai" {
		t.Errorf("expected new role added, got %+v", b)
	}

	// A missing file is a silent no-op.
	if err := p.LoadRolesYAML(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("missing roles file must not error: %v", err)
	}
}
