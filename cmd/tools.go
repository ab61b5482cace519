package cmd

import (
	"time"

	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/tools"
)

// buildToolRegistry registers the built-in filesystem, exec, and web tools
// an agent can call, scoped to workspace and the agent's restrict flag.
func buildToolRegistry(cfg *config.Config, workspace string, restrict bool) *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(tools.NewReadFileTool(workspace, restrict))
	reg.Register(tools.NewWriteFileTool(workspace, restrict))
	reg.Register(tools.NewListFilesTool(workspace, restrict))
	reg.Register(tools.NewEditFileTool(workspace, restrict))
	reg.Register(tools.NewGlobTool(workspace, restrict))
	reg.Register(tools.NewSearchTool(workspace, restrict))

	execTool := tools.NewExecTool(workspace, restrict)
	execTool.SetApproval(cfg.Tools.ExecApproval.Security, cfg.Tools.ExecApproval.Allowlist)
	reg.Register(execTool)

	reg.Register(tools.NewWebFetchTool(tools.WebFetchConfig{
		MaxChars:  0,
		CacheTTL:  10 * time.Minute,
		DenyHosts: cfg.Tools.Web.FetchDenyHosts,
	}))

	return reg
}
