package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Provider != "dds" {
		t.Fatalf("expected default bus provider dds, got %q", cfg.Bus.Provider)
	}
	if cfg.Compression.Strategy != "truncation" {
		t.Fatalf("expected default compression strategy truncation, got %q", cfg.Compression.Strategy)
	}
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "bus:\n  provider: zenoh\nagents:\n  defaults:\n    model: test-model\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Provider != "zenoh" {
		t.Fatalf("expected zenoh, got %q", cfg.Bus.Provider)
	}
	if cfg.Agents.Defaults.Model != "test-model" {
		t.Fatalf("expected test-model, got %q", cfg.Agents.Defaults.Model)
	}
	// Fields absent from the YAML keep their Default() value.
	if cfg.Sessions.Backend != "file" {
		t.Fatalf("expected unset field to keep default, got %q", cfg.Sessions.Backend)
	}
}

func TestApplyEnvOverridesTakesPrecedence(t *testing.T) {
	t.Setenv("AISBOT_BUS_PROVIDER", "zenoh")
	t.Setenv("AISBOT_MODEL", "env-model")

	cfg := Default()
	cfg.applyEnvOverrides()

	if cfg.Bus.Provider != "zenoh" {
		t.Fatalf("expected env override to win, got %q", cfg.Bus.Provider)
	}
	if cfg.Agents.Defaults.Model != "env-model" {
		t.Fatalf("expected env override to win, got %q", cfg.Agents.Defaults.Model)
	}
}

func TestResolveAgentMergesOverridesOverDefaults(t *testing.T) {
	cfg := Default()
	cfg.Agents.List = map[string]AgentSpec{
		"special": {Model: "special-model", MaxTokens: 4096},
	}

	resolved := cfg.ResolveAgent("special")
	if resolved.Model != "special-model" {
		t.Fatalf("expected overridden model, got %q", resolved.Model)
	}
	if resolved.MaxTokens != 4096 {
		t.Fatalf("expected overridden max tokens, got %d", resolved.MaxTokens)
	}
	// Unset fields on the override fall back to defaults.
	if resolved.Provider != cfg.Agents.Defaults.Provider {
		t.Fatalf("expected provider to fall back to default, got %q", resolved.Provider)
	}
}

func TestResolveAgentUnknownIDReturnsDefaults(t *testing.T) {
	cfg := Default()
	resolved := cfg.ResolveAgent("nonexistent")
	if resolved.Model != cfg.Agents.Defaults.Model {
		t.Fatalf("expected defaults for unknown agent ID")
	}
}

func TestResolveDefaultAgentID(t *testing.T) {
	cfg := Default()
	if cfg.ResolveDefaultAgentID() != DefaultAgentID {
		t.Fatalf("expected fallback to DefaultAgentID when none marked")
	}

	cfg.Agents.List = map[string]AgentSpec{"custom": {Default: true}}
	if cfg.ResolveDefaultAgentID() != "custom" {
		t.Fatalf("expected the agent marked default to win")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/workspace"); got != home+"/workspace" {
		t.Fatalf("got %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("expected absolute path unchanged, got %q", got)
	}
	if got := ExpandHome(""); got != "" {
		t.Fatalf("expected empty unchanged, got %q", got)
	}
}

func TestFlexibleStringSliceYAMLScalarAndList(t *testing.T) {
	var scalar FlexibleStringSlice
	if err := yaml.Unmarshal([]byte("skill-a"), &scalar); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if len(scalar) != 1 || scalar[0] != "skill-a" {
		t.Fatalf("expected single-element slice, got %+v", scalar)
	}

	var list FlexibleStringSlice
	if err := yaml.Unmarshal([]byte("[skill-a, skill-b]"), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 2 || list[0] != "skill-a" || list[1] != "skill-b" {
		t.Fatalf("expected two-element slice, got %+v", list)
	}
}

func TestFlexibleStringSliceJSONScalarAndList(t *testing.T) {
	var scalar FlexibleStringSlice
	if err := json.Unmarshal([]byte(`"skill-a"`), &scalar); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if len(scalar) != 1 || scalar[0] != "skill-a" {
		t.Fatalf("expected single-element slice, got %+v", scalar)
	}

	var list FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["skill-a","skill-b"]`), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two-element slice, got %+v", list)
	}
}

func TestHashChangesWithContent(t *testing.T) {
	cfg := Default()
	h1 := cfg.Hash()
	cfg.Agents.Defaults.Model = "different-model"
	h2 := cfg.Hash()
	if h1 == h2 {
		t.Fatal("expected hash to change when config content changes")
	}
}
