package tools

import "context"

type ctxKey int

const (
	ctxKeyWorkspace ctxKey = iota
	ctxKeyChannel
	ctxKeyChatID
)

// WithToolWorkspace attaches a per-user workspace directory to ctx, so tools
// resolve paths against the caller's isolated directory instead of the
// agent's shared default.
func WithToolWorkspace(ctx context.Context, workspace string) context.Context {
	return context.WithValue(ctx, ctxKeyWorkspace, workspace)
}

// ToolWorkspaceFromCtx returns the per-user workspace attached to ctx, or ""
// if none was set (callers then fall back to the tool's configured default).
func ToolWorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyWorkspace).(string)
	return v
}

// WithToolRoute attaches the resolved routing tuple (channel, chat_id) to
// ctx so per-call tools (message, spawn, cron) know where to reply.
func WithToolRoute(ctx context.Context, channel, chatID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyChannel, channel)
	return context.WithValue(ctx, ctxKeyChatID, chatID)
}

// ToolRouteFromCtx returns the routing tuple attached by WithToolRoute.
func ToolRouteFromCtx(ctx context.Context) (channel, chatID string) {
	channel, _ = ctx.Value(ctxKeyChannel).(string)
	chatID, _ = ctx.Value(ctxKeyChatID).(string)
	return channel, chatID
}
