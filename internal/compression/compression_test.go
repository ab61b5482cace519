package compression

import (
	"context"
	"strings"
	"testing"

	"github.com/open1s/aisbot/internal/providers"
)

func msg(role, content string) providers.Message {
	return providers.Message{Role: role, Content: content}
}

func TestEstimateTokensIgnoresImages(t *testing.T) {
	messages := []providers.Message{
		msg("user", strings.Repeat("a", 8)),
		{Role: "user", Content: "", Images: []providers.ImageContent{{MimeType: "image/png", Data: strings.Repeat("x", 4000)}}},
	}
	if got := EstimateTokens(messages); got != 2 {
		t.Fatalf("expected 2 tokens for 8 chars, got %d", got)
	}
}

func TestCompressMessagesUnderLimitReturnsUnchanged(t *testing.T) {
	messages := []providers.Message{msg("user", "short")}
	out, stats := CompressMessages(context.Background(), messages, 1000, 4, TruncationStrategy{})
	if stats.Reason != "under_limit" {
		t.Fatalf("expected under_limit, got %q", stats.Reason)
	}
	if len(out) != len(messages) || out[0].Content != messages[0].Content {
		t.Fatalf("messages mutated when under limit")
	}
}

func TestCompressMessagesDisabledWhenNoStrategy(t *testing.T) {
	messages := []providers.Message{msg("user", strings.Repeat("a", 10000))}
	out, stats := CompressMessages(context.Background(), messages, 10, 0, nil)
	if stats.Reason != "disabled" {
		t.Fatalf("expected disabled, got %q", stats.Reason)
	}
	if len(out) != 1 || out[0].Content != messages[0].Content {
		t.Fatalf("expected unchanged messages")
	}
}

func TestCompressMessagesKeepsRecentAndSystemUntouched(t *testing.T) {
	var messages []providers.Message
	messages = append(messages, msg("system", "you are an assistant"))
	for i := 0; i < 20; i++ {
		messages = append(messages, msg("user", strings.Repeat("lorem ipsum dolor sit amet ", 20)))
	}
	recentKeep := 4
	out, stats := CompressMessages(context.Background(), messages, 50, recentKeep, TruncationStrategy{})
	if stats.Reason != "compressed" {
		t.Fatalf("expected compressed, got %q", stats.Reason)
	}
	// system message preserved byte-identical, in place.
	if out[0].Role != "system" || out[0].Content != messages[0].Content {
		t.Fatalf("system message was altered")
	}
	// the last recentKeep non-system messages must be byte-identical.
	tail := out[len(out)-recentKeep:]
	origTail := messages[len(messages)-recentKeep:]
	for i := range tail {
		if tail[i].Content != origTail[i].Content {
			t.Fatalf("recent message %d was altered: %q vs %q", i, tail[i].Content, origTail[i].Content)
		}
	}
}

func TestCompressMessagesNoopWhenRecentKeepExceedsHistory(t *testing.T) {
	messages := []providers.Message{
		msg("system", "sys"),
		msg("user", strings.Repeat("a", 5000)),
		msg("assistant", strings.Repeat("b", 5000)),
	}
	out, stats := CompressMessages(context.Background(), messages, 10, 10, TruncationStrategy{})
	if stats.Reason != "under_limit" {
		t.Fatalf("expected under_limit when recentKeep >= len(others), got %q", stats.Reason)
	}
	if len(out) != len(messages) {
		t.Fatalf("expected unchanged length")
	}
}

func TestTruncationStrategyBoundary(t *testing.T) {
	short := strings.Repeat("a", 199)
	if got := (TruncationStrategy{}).Compress(context.Background(), short, 0.3); got != short {
		t.Fatalf("content under 200 chars must be returned unchanged")
	}
	long := strings.Repeat("a", 200)
	got := (TruncationStrategy{}).Compress(context.Background(), long, 0.3)
	if got == long {
		t.Fatalf("content at 200 chars must be compressed")
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated content must end with ellipsis, got %q", got)
	}
}

func TestTruncationStrategyExtendsToSentenceBreak(t *testing.T) {
	// cut=120, lastWindow=floor(120*0.7)=84; the '.' at index 100 falls
	// inside slice[84:120], so the cut extends back to just past it.
	content := strings.Repeat("a", 100) + "." + strings.Repeat("b", 99)
	got := (TruncationStrategy{}).Compress(context.Background(), content, 0.6)
	want := strings.Repeat("a", 100) + "." + "…"
	if got != want {
		t.Fatalf("expected truncation to extend to the sentence break, got %q want %q", got, want)
	}
}

func TestTruncationStrategyIdempotentUpToEllipsis(t *testing.T) {
	content := strings.Repeat("word ", 100)
	once := (TruncationStrategy{}).Compress(context.Background(), content, 0.3)
	twice := (TruncationStrategy{}).Compress(context.Background(), once, 0.3)
	trimmedOnce := strings.TrimSuffix(once, "…")
	trimmedTwice := strings.TrimSuffix(twice, "…")
	if !strings.HasPrefix(trimmedOnce, trimmedTwice) && !strings.HasPrefix(trimmedTwice, trimmedOnce) {
		t.Fatalf("compress(compress(x)) diverged beyond the trailing ellipsis: %q vs %q", once, twice)
	}
}

func TestSemanticStrategyUnderThreshold(t *testing.T) {
	short := strings.Repeat("a", 499)
	if got := (SemanticStrategy{}).Compress(context.Background(), short, 0.3); got != short {
		t.Fatalf("content under 500 chars must be returned unchanged")
	}
}

func TestSemanticStrategyPrefersScoredSections(t *testing.T) {
	plain := strings.Repeat("filler text with nothing special in it. ", 20)
	important := "This is the result.\n```go\nfunc main() {}\n```\nThis contains a critical error summary."
	content := plain + "\n\n" + important + "\n\n" + plain
	got := (SemanticStrategy{}).Compress(context.Background(), content, 0.34)
	if !strings.Contains(got, "critical error summary") {
		t.Fatalf("expected the high-scoring section to survive compression, got %q", got)
	}
}

func TestSemanticStrategyPreservesOriginalOrder(t *testing.T) {
	a := "## Heading A\nresult one"
	b := "## Heading B\nresult two"
	c := "## Heading C\nresult three"
	content := a + "\n\n" + b + "\n\n" + c
	got := (SemanticStrategy{}).Compress(context.Background(), content, 1.0)
	idxA := strings.Index(got, "Heading A")
	idxB := strings.Index(got, "Heading B")
	idxC := strings.Index(got, "Heading C")
	if idxA < 0 || idxB < 0 || idxC < 0 {
		t.Fatalf("expected all sections kept at ratio=1.0, got %q", got)
	}
	if !(idxA < idxB && idxB < idxC) {
		t.Fatalf("expected sections in original order, got %q", got)
	}
}

func TestSemanticStrategyResplitsOversizeSections(t *testing.T) {
	// A single >2000-char section with no blank-line breaks gets resplit into
	// ≤1000-char chunks before scoring, so ratio=0.3 can still drop some of it.
	content := strings.Repeat("plain sentence without any signal words whatsoever. ", 80)
	got := (SemanticStrategy{}).Compress(context.Background(), content, 0.3)
	if len(got) >= len(content) {
		t.Fatalf("expected compression to shorten oversize single-section content")
	}
}

func TestSummaryStrategyReturnsOriginalOnFailure(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := (SummaryStrategy{Provider: nil}).Compress(context.Background(), long, 0.3)
	if got != long {
		t.Fatalf("expected unchanged content when provider is nil")
	}
}

func TestSummaryStrategyUnderThreshold(t *testing.T) {
	short := strings.Repeat("a", 399)
	got := (SummaryStrategy{}).Compress(context.Background(), short, 0.3)
	if got != short {
		t.Fatalf("content under 400 chars must be returned unchanged")
	}
}

func TestCompressToolResultRespectsThreshold(t *testing.T) {
	short := strings.Repeat("a", 1000)
	if got := CompressToolResult(context.Background(), short, 1000, TruncationStrategy{}); got != short {
		t.Fatalf("content at exactly 1000 chars must not be compressed")
	}
	long := strings.Repeat("a", 1001)
	got := CompressToolResult(context.Background(), long, 1000, TruncationStrategy{})
	if got == long {
		t.Fatalf("content over 1000 chars must be compressed")
	}
}

func TestCompressToolResultNilStrategyIsNoop(t *testing.T) {
	long := strings.Repeat("a", 5000)
	if got := CompressToolResult(context.Background(), long, 1000, nil); got != long {
		t.Fatalf("nil strategy must leave content unchanged")
	}
}

func TestSourceHashDeterministicAndOrderIndependent(t *testing.T) {
	a := SourceHash(map[string]string{"AGENTS.md": "x", "SOUL.md": "y"})
	b := SourceHash(map[string]string{"SOUL.md": "y", "AGENTS.md": "x"})
	if a != b {
		t.Fatalf("hash must not depend on map iteration order: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16-hex-char key, got %q (len %d)", a, len(a))
	}
	c := SourceHash(map[string]string{"AGENTS.md": "different"})
	if c == a {
		t.Fatalf("different content must hash differently")
	}
}

func TestPromptCacheHitRequiresMatchingHash(t *testing.T) {
	cache := NewPromptCache()
	cache.Set("k", "hash1", "prompt-v1")

	if _, ok := cache.Get("k", "hash2"); ok {
		t.Fatalf("expected miss on mismatched hash")
	}
	got, ok := cache.Get("k", "hash1")
	if !ok || got != "prompt-v1" {
		t.Fatalf("expected cache hit with prompt-v1, got %q ok=%v", got, ok)
	}

	cache.Set("k", "hash2", "prompt-v2")
	got, ok = cache.Get("k", "hash2")
	if !ok || got != "prompt-v2" {
		t.Fatalf("expected last-write-wins, got %q ok=%v", got, ok)
	}
	if _, ok := cache.Get("k", "hash1"); ok {
		t.Fatalf("stale hash must now miss")
	}
}

func TestResolveDefaultsToTruncation(t *testing.T) {
	if _, ok := Resolve("unknown", nil, "").(TruncationStrategy); !ok {
		t.Fatalf("expected default strategy to be truncation")
	}
	if _, ok := Resolve("semantic", nil, "").(SemanticStrategy); !ok {
		t.Fatalf("expected semantic strategy to resolve")
	}
	if _, ok := Resolve("summary", nil, "m").(SummaryStrategy); !ok {
		t.Fatalf("expected summary strategy to resolve")
	}
}
