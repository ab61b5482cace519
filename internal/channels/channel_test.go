package channels

import (
	"testing"

	"github.com/open1s/aisbot/internal/bus"
)

func TestParseSystemOriginWithEmbeddedOrigin(t *testing.T) {
	ch, chatID := ParseSystemOrigin("telegram:386246614")
	if ch != "telegram" || chatID != "386246614" {
		t.Fatalf("got channel=%q chatID=%q", ch, chatID)
	}
}

func TestParseSystemOriginFallsBackToCLI(t *testing.T) {
	ch, chatID := ParseSystemOrigin("u1")
	if ch != bus.CLIChannel || chatID != "u1" {
		t.Fatalf("expected fallback to cli channel, got channel=%q chatID=%q", ch, chatID)
	}
}

func TestParseSystemOriginLeadingColonTreatedAsNoPrefix(t *testing.T) {
	// idx must be > 0 for a prefix to be recognized; a leading colon falls
	// back to the whole string being the cli chat id.
	ch, chatID := ParseSystemOrigin(":u1")
	if ch != bus.CLIChannel || chatID != ":u1" {
		t.Fatalf("expected fallback for leading colon, got channel=%q chatID=%q", ch, chatID)
	}
}

func TestIsInternalChannel(t *testing.T) {
	if !IsInternalChannel(bus.SystemChannel) {
		t.Fatal("expected system channel to be internal")
	}
	if IsInternalChannel("telegram") {
		t.Fatal("expected telegram to not be internal")
	}
}
