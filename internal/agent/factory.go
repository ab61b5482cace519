package agent

import (
	"fmt"

	"github.com/open1s/aisbot/internal/bus"
	"github.com/open1s/aisbot/internal/compression"
	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/providers"
	"github.com/open1s/aisbot/internal/store"
	"github.com/open1s/aisbot/internal/tools"
)

// BuildLoop constructs one agent's Loop from its resolved config (defaults
// merged with any per-agent override), wiring it to the shared provider
// registry, tool registry, policy engine, session store, and message bus.
// There is no database and no agent UUID: an agent's identity is just its
// configured ID string.
func BuildLoop(
	agentID string,
	cfg *config.Config,
	providerRegistry *providers.Registry,
	toolRegistry *tools.Registry,
	policy *tools.PolicyEngine,
	sessions store.SessionStore,
	msgBus *bus.MessageBus,
	onEvent func(AgentEvent),
) (*Loop, error) {
	resolved := cfg.ResolveAgent(agentID)

	provider, err := providerRegistry.Resolve(resolved.Provider)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", agentID, err)
	}

	model := resolved.Model
	if model == "" {
		model = provider.DefaultModel()
	}

	workspace := resolved.Workspace
	if workspace == "" {
		workspace = cfg.WorkspacePath()
	}

	var agentToolPolicy *config.ToolPolicySpec
	if spec, ok := cfg.Agents.List[agentID]; ok {
		agentToolPolicy = spec.Tools
	}

	contextWindow := resolved.ContextWindow
	if contextWindow <= 0 {
		contextWindow = 200000
	}
	strat, targetTokens, recentKeep := compression.ResolveFromConfig(cfg.Compression, contextWindow, provider)

	toolResultChars := cfg.Compression.ToolResultChars
	if toolResultChars <= 0 {
		toolResultChars = 1000
	}

	builder := NewContextBuilder(workspace, cfg.ResolveDisplayName(agentID))

	return NewLoop(LoopConfig{
		ID:              agentID,
		Model:           model,
		Provider:        provider,
		Tools:           toolRegistry,
		ToolPolicy:      policy,
		AgentToolPolicy: agentToolPolicy,
		Sessions:        sessions,
		Bus:             msgBus,
		Builder:         builder,
		MaxIterations:   resolved.MaxToolIterations,
		Compression:     strat,
		CompressTarget:  targetTokens,
		CompressKeep:    recentKeep,
		ToolResultChars: toolResultChars,
		OnEvent:         onEvent,
	}), nil
}
