package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/open1s/aisbot/internal/tools"
)

// BridgeTool adapts one MCP-discovered tool into the local tools.Tool
// interface, so the registry and agent loop dispatch an MCP tool call
// through the exact same Execute path as a native tool.
type BridgeTool struct {
	serverName   string
	originalName string
	description  string
	parameters   map[string]interface{}

	client     *mcpclient.Client
	timeoutSec int
	connected  *atomic.Bool
	namePrefix string
}

// NewBridgeTool wraps a tool discovered on one MCP server. connected is the
// server's live health flag, shared with the manager's health loop, so a
// call made while the server is down fails fast instead of blocking on a
// dead transport.
func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client *mcpclient.Client, toolPrefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	return &BridgeTool{
		serverName:   serverName,
		originalName: mcpTool.Name,
		description:  mcpTool.Description,
		parameters:   schemaToMap(mcpTool.InputSchema),
		client:       client,
		timeoutSec:   timeoutSec,
		connected:    connected,
		namePrefix:   toolPrefix,
	}
}

// Name is the tool name registered with the LLM provider: prefixed with the
// server name (or a configured prefix) so identically-named tools on two
// servers never collide in the registry.
func (b *BridgeTool) Name() string {
	prefix := b.namePrefix
	if prefix == "" {
		prefix = b.serverName
	}
	return sanitizeToolName(prefix) + "_" + sanitizeToolName(b.originalName)
}

// OriginalName is the tool name as the MCP server itself knows it, used by
// the manager's allow/deny filtering (server grants are expressed in terms
// of the server's own tool names, not the prefixed registry name).
func (b *BridgeTool) OriginalName() string { return b.originalName }

func (b *BridgeTool) Description() string {
	desc := strings.TrimSpace(b.description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %q on server %q.", b.originalName, b.serverName)
	}
	return fmt.Sprintf("[mcp:%s] %s", b.serverName, desc)
}

func (b *BridgeTool) Parameters() map[string]interface{} {
	if b.parameters == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return b.parameters
}

// Source marks this tool as MCP-backed for policy and group filtering.
func (b *BridgeTool) Source() tools.Source { return tools.SourceMCP }

// Execute calls the remote tool over the MCP session. The arguments have
// already passed Registry.Execute's schema validation by the time this
// runs, so no further verification happens here.
func (b *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if b.connected != nil && !b.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("MCP server %q is currently disconnected", b.serverName))
	}

	timeout := time.Duration(b.timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.originalName
	req.Params.Arguments = args

	res, err := b.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("MCP call %s.%s failed: %v", b.serverName, b.originalName, err))
	}

	text, isError := formatCallResult(res)
	if isError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// formatCallResult flattens an MCP tool result into plain text for the LLM:
// the first text content block; when no block is text, the JSON encoding
// of the first block; "(no output)" when there is no content at all.
func formatCallResult(res *mcpgo.CallToolResult) (string, bool) {
	if res == nil {
		return "", false
	}

	for _, block := range res.Content {
		if tc, ok := block.(mcpgo.TextContent); ok {
			return tc.Text, res.IsError
		}
	}
	if len(res.Content) == 0 {
		return "(no output)", res.IsError
	}

	payload, err := json.Marshal(res.Content[0])
	if err != nil {
		return fmt.Sprintf("%v", res.Content[0]), res.IsError
	}
	return string(payload), res.IsError
}

// schemaToMap converts the MCP tool's JSON-Schema-shaped input schema into a
// plain map, the representation tools.Tool.Parameters and ValidateArgs
// expect throughout the registry.
func schemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func sanitizeToolName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "tool"
	}
	return out
}
