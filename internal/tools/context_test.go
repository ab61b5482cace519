package tools

import (
	"context"
	"testing"
)

func TestWithToolWorkspaceRoundTrips(t *testing.T) {
	ctx := WithToolWorkspace(context.Background(), "/data/u1")
	if got := ToolWorkspaceFromCtx(ctx); got != "/data/u1" {
		t.Fatalf("expected workspace round-trip, got %q", got)
	}
}

func TestToolWorkspaceFromCtxEmptyWhenUnset(t *testing.T) {
	if got := ToolWorkspaceFromCtx(context.Background()); got != "" {
		t.Fatalf("expected empty workspace for a bare context, got %q", got)
	}
}

func TestWithToolRouteRoundTrips(t *testing.T) {
	ctx := WithToolRoute(context.Background(), "telegram", "chat-1")
	channel, chatID := ToolRouteFromCtx(ctx)
	if channel != "telegram" || chatID != "chat-1" {
		t.Fatalf("expected route round-trip, got channel=%q chatID=%q", channel, chatID)
	}
}

func TestToolRouteFromCtxEmptyWhenUnset(t *testing.T) {
	channel, chatID := ToolRouteFromCtx(context.Background())
	if channel != "" || chatID != "" {
		t.Fatalf("expected empty route for a bare context, got channel=%q chatID=%q", channel, chatID)
	}
}

func TestWithToolWorkspaceDoesNotLeakIntoRoute(t *testing.T) {
	ctx := WithToolWorkspace(context.Background(), "/data/u1")
	channel, chatID := ToolRouteFromCtx(ctx)
	if channel != "" || chatID != "" {
		t.Fatalf("expected route unset when only workspace was attached, got channel=%q chatID=%q", channel, chatID)
	}
}
