package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultAgentID is the agent identity used when no agent is explicitly bound.
const DefaultAgentID = "default"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:           "~/.aisbot/workspace",
				RestrictToWorkspace: true,
				Provider:            "anthropic",
				Model:               "claude-sonnet-4-5-20250929",
				MaxTokens:           8192,
				Temperature:         0.7,
				MaxToolIterations:   20,
				ContextWindow:       200000,
				Subagents: &SubagentsConfig{
					MaxConcurrent:       8,
					MaxSpawnDepth:       1,
					MaxChildrenPerAgent: 5,
					ArchiveAfterMinutes: 60,
				},
			},
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				DuckDuckGo: DuckDuckGoConfig{Enabled: true, MaxResults: 5},
			},
			ExecApproval: ExecApprovalCfg{
				Security: "full",
				Ask:      "off",
			},
		},
		Sessions: SessionsConfig{
			Storage: "~/.aisbot/sessions",
			Backend: "file",
			DmScope: "per-channel-peer",
		},
		Bus: BusConfig{
			Provider: "dds",
		},
		Compression: CompressionConfig{
			Strategy:        "truncation",
			TriggerRatio:    0.85,
			KeepLastTurns:   4,
			ToolResultChars: 1000,
		},
	}
}

// Load reads config from a YAML file, then overlays env vars. A missing file
// is not an error: Load falls back to Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// WatchForChanges starts a fsnotify watcher on path and logs a warning
// recommending a restart whenever the file changes on disk. The core does
// not support hot config reload, so the watcher is purely diagnostic.
func WatchForChanges(path string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher: watch dir: %w", err)
	}

	log := slog.Default().With("component", "config.watch")
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					log.Warn("config file changed on disk, restart required to apply", "path", path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)
			}
		}
	}()
	return w, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets are read only from env, never
// persisted to the YAML file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("AISBOT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("AISBOT_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.APIBase)
	envStr("AISBOT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("AISBOT_OPENAI_BASE_URL", &c.Providers.OpenAI.APIBase)
	envStr("AISBOT_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("AISBOT_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)

	envStr("AISBOT_PROVIDER", &c.Agents.Defaults.Provider)
	envStr("AISBOT_MODEL", &c.Agents.Defaults.Model)
	envStr("AISBOT_WORKSPACE", &c.Agents.Defaults.Workspace)

	envStr("AISBOT_SESSIONS_STORAGE", &c.Sessions.Storage)
	envStr("AISBOT_SESSIONS_BACKEND", &c.Sessions.Backend)
	envStr("AISBOT_POSTGRES_DSN", &c.Sessions.PostgresDSN)

	envStr("AISBOT_BUS_PROVIDER", &c.Bus.Provider)
	if v := os.Getenv("AISBOT_BUS_DOMAIN_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Bus.DomainID = id
		}
	}

	envStr("AISBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AISBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AISBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AISBOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	envStr("AISBOT_WEB_BRAVE_API_KEY", &c.Tools.Web.Brave.APIKey)
	if c.Tools.Web.Brave.APIKey != "" {
		c.Tools.Web.Brave.Enabled = true
	}
}

// Save writes the config to a YAML file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for optimistic concurrency.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := yaml.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Agents.Defaults.Workspace)
}

// ResolveAgent returns the effective config for a given agent ID, merging
// defaults with per-agent overrides.
func (c *Config) ResolveAgent(agentID string) AgentDefaults {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Agents.Defaults
	if spec, ok := c.Agents.List[agentID]; ok {
		if spec.Provider != "" {
			d.Provider = spec.Provider
		}
		if spec.Model != "" {
			d.Model = spec.Model
		}
		if spec.MaxTokens > 0 {
			d.MaxTokens = spec.MaxTokens
		}
		if spec.Temperature > 0 {
			d.Temperature = spec.Temperature
		}
		if spec.MaxToolIterations > 0 {
			d.MaxToolIterations = spec.MaxToolIterations
		}
		if spec.ContextWindow > 0 {
			d.ContextWindow = spec.ContextWindow
		}
		if spec.Workspace != "" {
			d.Workspace = spec.Workspace
		}
	}

	return d
}

// ResolveDefaultAgentID returns the ID of the agent marked as default, or
// DefaultAgentID if none is explicitly marked.
func (c *Config) ResolveDefaultAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, spec := range c.Agents.List {
		if spec.Default {
			return id
		}
	}
	return DefaultAgentID
}

// ResolveDisplayName returns the display name for an agent.
func (c *Config) ResolveDisplayName(agentID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if spec, ok := c.Agents.List[agentID]; ok && spec.DisplayName != "" {
		return spec.DisplayName
	}
	return "aisbot"
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config. Call after modifying config in place to restore runtime secrets.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
