package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/open1s/aisbot/internal/agent"
	"github.com/open1s/aisbot/internal/bus"
	"github.com/open1s/aisbot/internal/channels"
	"github.com/open1s/aisbot/internal/compression"
	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/mcp"
	"github.com/open1s/aisbot/internal/sessions"
	"github.com/open1s/aisbot/internal/store/file"
	"github.com/open1s/aisbot/internal/tools"
	"github.com/open1s/aisbot/internal/tracing"
)

// runGateway wires config → providers → tools → MCP proxy → sessions → bus
// → channels → agent loop, registers the interactive CLI channel, and blocks
// until interrupted. It is the single entry point both `aisbot` (bare) and
// `aisbot run` invoke.
func runGateway(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, "aisbot")
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer shutdownTracing(context.Background())

	agentID := cfg.ResolveDefaultAgentID()
	agentCfg := cfg.ResolveAgent(agentID)
	workspace := config.ExpandHome(agentCfg.Workspace)
	if !filepath.IsAbs(workspace) {
		if abs, err := filepath.Abs(workspace); err == nil {
			workspace = abs
		}
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	providerReg := buildProviderRegistry(cfg)
	provider, err := providerReg.Resolve(agentCfg.Provider)
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}

	toolReg := buildToolRegistry(cfg, workspace, agentCfg.RestrictToWorkspace)
	toolPolicy := tools.NewPolicyEngine(&cfg.Tools)

	mcpMgr := mcp.NewManager(toolReg, cfg.Tools.McpServers)
	if err := mcpMgr.Start(ctx); err != nil {
		slog.Warn("mcp startup reported errors", "error", err)
	}
	defer mcpMgr.Stop()

	sessStorage := config.ExpandHome(cfg.Sessions.Storage)
	sessStore := file.NewFileSessionStore(sessions.NewManager(sessStorage))

	msgBus := bus.NewMessageBus(mustBusProvider(cfg))

	chanMgr := channels.NewManager(msgBus)
	chanMgr.RegisterChannel(bus.CLIChannel, newCLIChannel(msgBus, "local"))

	builder := agent.NewContextBuilder(workspace, cfg.ResolveDisplayName(agentID)).
		WithSkillsInlineTokenThreshold(agentCfg.Skills.InlineTokenThreshold)

	compressStrat, compressTarget, compressKeep := compression.ResolveFromConfig(cfg.Compression, agentCfg.ContextWindow, provider)

	loop := agent.NewLoop(agent.LoopConfig{
		ID:              agentID,
		Model:           agentCfg.Model,
		Provider:        provider,
		Tools:           toolReg,
		ToolPolicy:      toolPolicy,
		AgentToolPolicy: resolveAgentToolPolicy(cfg, agentID),
		Sessions:        sessStore,
		Bus:             msgBus,
		Builder:         builder,
		MaxIterations:   agentCfg.MaxToolIterations,
		MaxHistoryTurns: agentCfg.MaxHistoryTurns,
		Workspace:       workspace,
		PerUserWorkspace: cfg.Sessions.Scope == "per-sender",
		Compression:     compressStrat,
		CompressTarget:  compressTarget,
		CompressKeep:    compressKeep,
		ToolResultChars: cfg.Compression.ToolResultChars,
	})

	if err := chanMgr.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	defer chanMgr.StopAll(context.Background())

	slog.Info("aisbot started", "agent", agentID, "provider", provider.Name(), "model", agentCfg.Model)

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		go func(m bus.InboundMessage) {
			if _, err := loop.Run(ctx, m); err != nil {
				slog.Error("agent run failed", "error", err)
			}
		}(msg)
	}
}

// resolveAgentToolPolicy returns the per-agent tool policy override, if any.
func resolveAgentToolPolicy(cfg *config.Config, agentID string) *config.ToolPolicySpec {
	if spec, ok := cfg.Agents.List[agentID]; ok {
		return spec.Tools
	}
	return nil
}

func mustBusProvider(cfg *config.Config) bus.Provider {
	p, err := bus.NewProvider(bus.Config{
		Provider:    cfg.Bus.Provider,
		DomainID:    cfg.Bus.DomainID,
		ZenohConfig: map[string]interface{}{"endpoint": cfg.Bus.Zenoh.Endpoint},
	})
	if err != nil {
		slog.Warn("bus provider selection failed, falling back to memory", "error", err)
		return bus.NewMemoryProvider()
	}
	return p
}
