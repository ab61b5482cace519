package sessions

import (
	"testing"

	"github.com/open1s/aisbot/internal/providers"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager("")
	s1 := m.GetOrCreate("cli:u1")
	s2 := m.GetOrCreate("cli:u1")
	if s1 != s2 {
		t.Fatal("expected GetOrCreate to return the same session on repeat calls")
	}
}

func TestAddMessageAppendsInOrder(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("cli:u1")
	m.AddMessage("cli:u1", providers.Message{Role: "user", Content: "hello"})
	m.AddMessage("cli:u1", providers.Message{Role: "assistant", Content: "hi"})

	history := m.GetHistory("cli:u1")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("expected user then assistant order, got %+v", history)
	}
}

func TestTurnCommitAppendsExactlyTwoRecords(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("cli:u1")
	m.AddMessage("cli:u1", providers.Message{Role: "user", Content: "turn one"})
	m.AddMessage("cli:u1", providers.Message{Role: "assistant", Content: "reply one"})
	before := len(m.GetHistory("cli:u1"))

	m.AddMessage("cli:u1", providers.Message{Role: "user", Content: "turn two"})
	m.AddMessage("cli:u1", providers.Message{Role: "assistant", Content: "reply two"})
	after := m.GetHistory("cli:u1")

	if len(after) != before+2 {
		t.Fatalf("expected exactly two records appended per turn, before=%d after=%d", before, len(after))
	}
	if after[len(after)-2].Role != "user" || after[len(after)-1].Role != "assistant" {
		t.Fatalf("expected (user, assistant) appended in that order, got %+v", after[len(after)-2:])
	}
	// Prior history is untouched.
	for i := 0; i < before; i++ {
		if after[i].Content != m.GetHistory("cli:u1")[i].Content {
			t.Fatalf("prior history entry %d mutated", i)
		}
	}
}

func TestGetHistoryReturnsACopy(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("cli:u1")
	m.AddMessage("cli:u1", providers.Message{Role: "user", Content: "hello"})

	history := m.GetHistory("cli:u1")
	history[0].Content = "mutated"

	fresh := m.GetHistory("cli:u1")
	if fresh[0].Content != "hello" {
		t.Fatalf("expected internal history to be unaffected by caller mutation, got %q", fresh[0].Content)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.GetOrCreate("cli:u1")
	m.AddMessage("cli:u1", providers.Message{Role: "user", Content: "hello"})
	m.AddMessage("cli:u1", providers.Message{Role: "assistant", Content: "hi"})
	m.UpdateMetadata("cli:u1", "claude-x", "anthropic", "cli")
	if err := m.Save("cli:u1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded := NewManager(dir)
	history := reloaded.GetHistory("cli:u1")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi" {
		t.Fatalf("unexpected reloaded content: %+v", history)
	}
}

func TestTruncateHistoryKeepsTail(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("cli:u1")
	for i := 0; i < 5; i++ {
		m.AddMessage("cli:u1", providers.Message{Role: "user", Content: string(rune('a' + i))})
	}
	m.TruncateHistory("cli:u1", 2)
	history := m.GetHistory("cli:u1")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages kept, got %d", len(history))
	}
	if history[0].Content != "d" || history[1].Content != "e" {
		t.Fatalf("expected the last two messages kept, got %+v", history)
	}
}

func TestResetClearsHistoryAndSummary(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("cli:u1")
	m.AddMessage("cli:u1", providers.Message{Role: "user", Content: "hello"})
	m.SetSummary("cli:u1", "a summary")

	m.Reset("cli:u1")

	if len(m.GetHistory("cli:u1")) != 0 {
		t.Fatal("expected history cleared")
	}
	if m.GetSummary("cli:u1") != "" {
		t.Fatal("expected summary cleared")
	}
}

func TestAccumulateTokens(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("cli:u1")
	m.AccumulateTokens("cli:u1", 10, 20)
	m.AccumulateTokens("cli:u1", 5, 7)

	s := m.GetOrCreate("cli:u1")
	if s.InputTokens != 15 || s.OutputTokens != 27 {
		t.Fatalf("expected accumulated tokens 15/27, got %d/%d", s.InputTokens, s.OutputTokens)
	}
}

func TestListFiltersByAgentPrefix(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("agent:default:cli:direct:u1")
	m.GetOrCreate("agent:other:cli:direct:u2")

	all := m.List("")
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions total, got %d", len(all))
	}
	onlyDefault := m.List("default")
	if len(onlyDefault) != 1 || onlyDefault[0].Key != "agent:default:cli:direct:u1" {
		t.Fatalf("expected only the default-agent session, got %+v", onlyDefault)
	}
}
