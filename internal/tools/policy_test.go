package tools

import (
	"sort"
	"testing"

	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/providers"
)

func newPolicyTestRegistry(names ...string) *Registry {
	r := NewRegistry()
	for _, n := range names {
		r.Register(&fakeTool{name: n})
	}
	return r
}

func defNames(defs []providers.ToolDefinition) []string {
	var names []string
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	sort.Strings(names)
	return names
}

func TestPolicyEngineFullProfileAllowsEverything(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec", "sessions_send")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "full"})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	got := defNames(defs)
	want := []string{"exec", "read_file", "sessions_send"}
	assertStringSlicesEqual(t, got, want)
}

func TestPolicyEngineMinimalProfileRestrictsToNamedTool(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec", "session_status")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "minimal"})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	got := defNames(defs)
	assertStringSlicesEqual(t, got, []string{"session_status"})
}

func TestPolicyEngineCodingProfileExpandsGroups(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "write_file", "exec", "sessions_list", "web_fetch")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "coding"})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	got := defNames(defs)
	want := []string{"exec", "read_file", "sessions_list", "write_file"}
	assertStringSlicesEqual(t, got, want)
}

func TestPolicyEngineUnknownProfileFallsBackToFull(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec")
	pe := NewPolicyEngine(&config.ToolsConfig{Profile: "nonexistent"})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	got := defNames(defs)
	assertStringSlicesEqual(t, got, []string{"exec", "read_file"})
}

func TestPolicyEngineGlobalAllowRestricts(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec", "sessions_send")
	pe := NewPolicyEngine(&config.ToolsConfig{Allow: []string{"read_file"}})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"read_file"})
}

func TestPolicyEngineGlobalDenyRemoves(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec")
	pe := NewPolicyEngine(&config.ToolsConfig{Deny: []string{"exec"}})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"read_file"})
}

func TestPolicyEngineProviderOverrideAllow(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec")
	pe := NewPolicyEngine(&config.ToolsConfig{
		Allow: []string{"read_file", "exec"},
		ByProvider: map[string]*config.ToolPolicySpec{
			"anthropic": {Allow: []string{"exec"}},
		},
	})
	gotOpenAI := defNames(pe.FilterTools(r, "default", "openai", nil, nil, false, false))
	assertStringSlicesEqual(t, gotOpenAI, []string{"exec", "read_file"})

	gotAnthropic := defNames(pe.FilterTools(r, "default", "anthropic", nil, nil, false, false))
	assertStringSlicesEqual(t, gotAnthropic, []string{"exec"})
}

func TestPolicyEnginePerAgentAllowIntersects(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec", "sessions_send")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	agentPolicy := &config.ToolPolicySpec{Allow: []string{"read_file", "exec"}}
	defs := pe.FilterTools(r, "default", "openai", agentPolicy, nil, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"exec", "read_file"})
}

func TestPolicyEngineAgentDenyOverridesAllow(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	agentPolicy := &config.ToolPolicySpec{Deny: []string{"exec"}}
	defs := pe.FilterTools(r, "default", "openai", agentPolicy, nil, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"read_file"})
}

func TestPolicyEngineGroupToolAllow(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec", "sessions_send")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	defs := pe.FilterTools(r, "default", "openai", nil, []string{"read_file"}, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"read_file"})
}

func TestPolicyEngineAlsoAllowAddsBackAfterDeny(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "exec")
	pe := NewPolicyEngine(&config.ToolsConfig{
		Deny:      []string{"exec"},
		AlsoAllow: []string{"exec"},
	})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"exec", "read_file"})
}

func TestPolicyEngineSubagentDeniesSpawnTools(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "sessions_spawn", "subagents", "sessions_send")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, true, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"read_file"})
}

func TestPolicyEngineLeafAgentDeniesHistoryTools(t *testing.T) {
	r := newPolicyTestRegistry("read_file", "sessions_list", "sessions_history")
	pe := NewPolicyEngine(&config.ToolsConfig{})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, true)
	assertStringSlicesEqual(t, defNames(defs), []string{"read_file"})
}

func TestResolveAliasMapsBashToExec(t *testing.T) {
	if got := resolveAlias("bash"); got != "exec" {
		t.Fatalf("expected bash to resolve to exec, got %q", got)
	}
	if got := resolveAlias("read_file"); got != "read_file" {
		t.Fatalf("expected unaliased name unchanged, got %q", got)
	}
}

func TestRegisterAndUnregisterToolGroup(t *testing.T) {
	RegisterToolGroup("custom", []string{"a", "b"})
	defer UnregisterToolGroup("custom")

	r := newPolicyTestRegistry("a", "b", "c")
	pe := NewPolicyEngine(&config.ToolsConfig{Allow: []string{"group:custom"}})
	defs := pe.FilterTools(r, "default", "openai", nil, nil, false, false)
	assertStringSlicesEqual(t, defNames(defs), []string{"a", "b"})
}

func assertStringSlicesEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
