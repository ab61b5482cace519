package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both a bare scalar and a list in YAML/JSON,
// tolerating hand-edited config files that write a single value unquoted.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ss []string
	if err := unmarshal(&ss); err == nil {
		*f = ss
		return nil
	}
	var one string
	if err := unmarshal(&one); err != nil {
		return err
	}
	if one == "" {
		*f = nil
		return nil
	}
	*f = []string{one}
	return nil
}

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*f = []string{one}
		}
		return nil
	}
	return fmt.Errorf("FlexibleStringSlice: unsupported JSON shape")
}

// Config is the root configuration for the agent runtime.
type Config struct {
	Agents      AgentsConfig      `yaml:"agents"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Tools       ToolsConfig       `yaml:"tools"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Bus         BusConfig         `yaml:"bus"`
	Compression CompressionConfig `yaml:"compression"`
	Telemetry   TelemetryConfig   `yaml:"telemetry,omitempty"`

	mu sync.RWMutex
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Providers = src.Providers
	c.Tools = src.Tools
	c.Sessions = src.Sessions
	c.Bus = src.Bus
	c.Compression = src.Compression
	c.Telemetry = src.Telemetry
}

// AgentsConfig contains agent defaults and per-agent overrides.
type AgentsConfig struct {
	Defaults AgentDefaults        `yaml:"defaults"`
	List     map[string]AgentSpec `yaml:"list,omitempty"`
}

// AgentDefaults are default settings for all agents.
type AgentDefaults struct {
	Workspace           string  `yaml:"workspace"`
	RestrictToWorkspace bool    `yaml:"restrict_to_workspace"`
	Provider            string  `yaml:"provider"`
	Model               string  `yaml:"model"`
	MaxTokens           int     `yaml:"max_tokens"`
	Temperature         float64 `yaml:"temperature"`
	MaxToolIterations   int     `yaml:"max_tool_iterations"`
	ContextWindow       int     `yaml:"context_window"`

	Subagents *SubagentsConfig `yaml:"subagents,omitempty"`

	// Bootstrap context truncation limits. Parsed but not applied: the
	// context builder includes bootstrap files in full.
	BootstrapMaxChars      int `yaml:"bootstrap_max_chars,omitempty"`       // per-file max before truncation
	BootstrapTotalMaxChars int `yaml:"bootstrap_total_max_chars,omitempty"` // total budget across all files

	// MaxHistoryTurns caps the number of user/assistant turns pulled from
	// session history before the prompt is built, applied before
	// compression gets a chance to run. 0 disables the cap.
	MaxHistoryTurns int `yaml:"max_history_turns,omitempty"`

	Skills SkillsConfig `yaml:"skills,omitempty"`
}

// SkillsConfig controls how available skills are surfaced in the system
// prompt.
type SkillsConfig struct {
	// InlineTokenThreshold: an AlwaysActive skill whose estimated token size
	// is at or under this threshold is inlined in full; a larger one is
	// demoted to a one-line index entry, on the expectation the agent loads
	// the rest itself via a read-file tool. Skills that are not AlwaysActive
	// are always index entries. 0 disables the threshold (AlwaysActive
	// alone decides).
	InlineTokenThreshold int `yaml:"inline_token_threshold,omitempty"`
}

// SubagentsConfig configures the subagent manager.
type SubagentsConfig struct {
	MaxConcurrent       int    `yaml:"max_concurrent,omitempty"`        // default 8
	MaxSpawnDepth       int    `yaml:"max_spawn_depth,omitempty"`       // default 1; not range-checked
	MaxChildrenPerAgent int    `yaml:"max_children_per_agent,omitempty"` // default 5; not range-checked
	ArchiveAfterMinutes int    `yaml:"archive_after_minutes,omitempty"` // default 60
	Model               string `yaml:"model,omitempty"`                 // model override for subagents
}

// AgentSpec is the per-agent configuration override.
type AgentSpec struct {
	DisplayName       string          `yaml:"display_name,omitempty"`
	Provider          string          `yaml:"provider,omitempty"`
	Model             string          `yaml:"model,omitempty"`
	MaxTokens         int             `yaml:"max_tokens,omitempty"`
	Temperature       float64         `yaml:"temperature,omitempty"`
	MaxToolIterations int             `yaml:"max_tool_iterations,omitempty"`
	ContextWindow     int             `yaml:"context_window,omitempty"`
	Skills            []string        `yaml:"skills,omitempty"` // nil = all skills allowed
	Tools             *ToolPolicySpec `yaml:"tools,omitempty"`  // per-agent tool policy
	Workspace         string          `yaml:"workspace,omitempty"`
	Default           bool            `yaml:"default,omitempty"`
	Identity          *IdentityConfig `yaml:"identity,omitempty"`
}

// IdentityConfig defines agent persona / display identity.
type IdentityConfig struct {
	Name  string `yaml:"name,omitempty"`
	Emoji string `yaml:"emoji,omitempty"`
}

// ProvidersConfig maps provider name to its config.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `yaml:"anthropic"`
	OpenAI     ProviderConfig `yaml:"openai"`
	OpenRouter ProviderConfig `yaml:"openrouter"`
	Gemini     ProviderConfig `yaml:"gemini"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	APIBase string `yaml:"api_base,omitempty"`
	// TimeoutSec overrides the provider HTTP client's request timeout.
	// 0 keeps the provider's built-in default (120s).
	TimeoutSec int `yaml:"timeout_sec,omitempty"`
}

// HasAnyProvider returns true if at least one provider has an API key configured.
func (c *Config) HasAnyProvider() bool {
	p := c.Providers
	return p.Anthropic.APIKey != "" || p.OpenAI.APIKey != "" || p.OpenRouter.APIKey != "" || p.Gemini.APIKey != ""
}

// BusConfig selects and configures the message-bus transport.
type BusConfig struct {
	Provider string      `yaml:"provider"` // "dds" (default), "zenoh", "memory"
	DomainID int         `yaml:"domain_id,omitempty"`
	Zenoh    ZenohConfig `yaml:"zenoh,omitempty"`
}

// ZenohConfig configures the zenoh-like push-based provider.
type ZenohConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// CompressionConfig controls context-compression strategy selection.
type CompressionConfig struct {
	Strategy        string  `yaml:"strategy,omitempty"`          // "truncation" (default), "semantic", "summary"
	TriggerRatio    float64 `yaml:"trigger_ratio,omitempty"`     // fraction of context window that triggers compression (default 0.85)
	KeepLastTurns   int     `yaml:"keep_last_turns,omitempty"`   // trailing non-system messages exempt from compression (default 4)
	SummaryModel    string  `yaml:"summary_model,omitempty"`     // model used by the summary strategy (defaults to agent's model)
	ToolResultChars int     `yaml:"tool_result_chars,omitempty"` // tool results longer than this are compressed individually (default 1000)
}

// ToolsConfig controls tool availability, policy, and built-in tool settings.
type ToolsConfig struct {
	Profile          string                     `yaml:"profile,omitempty"`    // global profile: "minimal", "coding", "messaging", "full"
	Allow            []string                   `yaml:"allow,omitempty"`      // global allow list (tool names or "group:xxx")
	Deny             []string                   `yaml:"deny,omitempty"`       // global deny list
	AlsoAllow        []string                   `yaml:"also_allow,omitempty"` // additive: adds without removing existing
	ByProvider       map[string]*ToolPolicySpec `yaml:"by_provider,omitempty"`
	ExecApproval     ExecApprovalCfg            `yaml:"exec_approval,omitempty"`
	Web              WebToolsConfig             `yaml:"web"`
	RateLimitPerHour int                        `yaml:"rate_limit_per_hour,omitempty"` // max tool executions per hour per session; parsed but not enforced
	ScrubCredentials *bool                      `yaml:"scrub_credentials,omitempty"`   // redact API keys/tokens in tool output; parsed but not applied
	McpServers       map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`
}

// MCPServerConfig configures a single external MCP server connection.
type MCPServerConfig struct {
	Transport  string            `yaml:"transport"`             // "stdio" or "http"
	Command    string            `yaml:"command,omitempty"`     // stdio: command to spawn
	Args       []string          `yaml:"args,omitempty"`        // stdio: command arguments
	Env        map[string]string `yaml:"env,omitempty"`         // stdio: extra environment variables
	URL        string            `yaml:"url,omitempty"`         // http: server URL
	Headers    map[string]string `yaml:"headers,omitempty"`     // http: extra HTTP headers
	Enabled    *bool             `yaml:"enabled,omitempty"`     // default true
	ToolPrefix string            `yaml:"tool_prefix,omitempty"` // prefix for tool names (avoids collisions)
	TimeoutSec int               `yaml:"timeout_sec,omitempty"` // per-tool-call timeout in seconds (default 60)
	ToolAllow  []string          `yaml:"tool_allow,omitempty"`  // restrict to these server-side tool names (empty = all)
	ToolDeny   []string          `yaml:"tool_deny,omitempty"`   // exclude these server-side tool names; takes priority over ToolAllow
}

// IsEnabled returns whether this MCP server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ExecApprovalCfg configures command execution approval.
type ExecApprovalCfg struct {
	Security  string   `yaml:"security,omitempty"` // "deny", "allowlist", "full" (default "full")
	Ask       string   `yaml:"ask,omitempty"`      // "off", "on-miss", "always" (default "off")
	Allowlist []string `yaml:"allowlist,omitempty"`
}

// ToolPolicySpec defines a tool policy at any level (global, per-agent, per-provider).
type ToolPolicySpec struct {
	Profile    string                     `yaml:"profile,omitempty"`
	Allow      []string                   `yaml:"allow,omitempty"`
	Deny       []string                   `yaml:"deny,omitempty"`
	AlsoAllow  []string                   `yaml:"also_allow,omitempty"`
	ByProvider map[string]*ToolPolicySpec `yaml:"by_provider,omitempty"`
}

type WebToolsConfig struct {
	Brave      BraveConfig      `yaml:"brave"`
	DuckDuckGo DuckDuckGoConfig `yaml:"duckduckgo"`
	Rod        RodConfig        `yaml:"rod"` // headless-browser fallback for JS-rendered pages
	// FetchDenyHosts blocks web_fetch from reaching these hostnames
	// (exact match or suffix match on ".<host>"), on top of its built-in
	// SSRF protection against private/loopback addresses.
	FetchDenyHosts []string `yaml:"fetch_deny_hosts,omitempty"`
}

type BraveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

type DuckDuckGoConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxResults int  `yaml:"max_results"`
}

type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BinaryPath string `yaml:"binary_path,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec,omitempty"`
}

// SessionsConfig controls session behavior and persistence backend.
type SessionsConfig struct {
	Storage    string `yaml:"storage"`              // directory for the file backend
	Backend    string `yaml:"backend,omitempty"`    // "file" (default) or "postgres"
	PostgresDSN string `yaml:"-"`                   // from env AISBOT_POSTGRES_DSN only, never persisted
	Scope      string `yaml:"scope,omitempty"`      // "per-sender" (default), "global"; per-user tool workspaces need an explicit "per-sender"
	DmScope    string `yaml:"dm_scope,omitempty"`   // "main", "per-peer", "per-channel-peer" (default), "per-account-channel-peer"
	MainKey    string `yaml:"main_key,omitempty"`   // main session key suffix (default "main")
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`     // e.g. "localhost:4318"
	Insecure    bool              `yaml:"insecure,omitempty"`     // skip TLS verification (default false)
	ServiceName string            `yaml:"service_name,omitempty"` // default "aisbot"
	Headers     map[string]string `yaml:"headers,omitempty"`
}
