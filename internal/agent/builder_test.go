package agent

import (
	"strings"
	"testing"

	"github.com/open1s/aisbot/internal/providers"
)

func msg(role, content string) providers.Message {
	return providers.Message{Role: role, Content: content}
}

func TestLimitHistoryTurnsKeepsLastNUserTurns(t *testing.T) {
	history := []providers.Message{
		msg("user", "1"), msg("assistant", "a1"),
		msg("user", "2"), msg("assistant", "a2"),
		msg("user", "3"), msg("assistant", "a3"),
	}
	got := LimitHistoryTurns(history, 2)
	if len(got) != 4 {
		t.Fatalf("expected 4 messages (last 2 turns), got %d: %+v", len(got), got)
	}
	if got[0].Content != "2" {
		t.Fatalf("expected the cut to start at the second user turn, got %q", got[0].Content)
	}
}

func TestLimitHistoryTurnsZeroDisablesCap(t *testing.T) {
	history := []providers.Message{msg("user", "1"), msg("assistant", "a1")}
	got := LimitHistoryTurns(history, 0)
	if len(got) != len(history) {
		t.Fatalf("expected no trimming with maxTurns=0, got %d", len(got))
	}
}

func TestLimitHistoryTurnsFewerTurnsThanCapIsNoop(t *testing.T) {
	history := []providers.Message{msg("user", "1"), msg("assistant", "a1")}
	got := LimitHistoryTurns(history, 5)
	if len(got) != len(history) {
		t.Fatalf("expected no trimming when history is under the cap, got %d", len(got))
	}
}

func TestLimitHistoryTurnsPreservesToolCallPairingAtCutBoundary(t *testing.T) {
	history := []providers.Message{
		msg("user", "1"),
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "tc1", Name: "exec"}}},
		{Role: "tool", Content: "result", ToolCallID: "tc1"},
		msg("assistant", "a1"),
		msg("user", "2"),
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "tc2", Name: "exec"}}},
		{Role: "tool", Content: "result2", ToolCallID: "tc2"},
		msg("assistant", "a2"),
	}
	got := LimitHistoryTurns(history, 1)
	if len(got) != 4 {
		t.Fatalf("expected the single kept turn's 4 messages, got %d: %+v", len(got), got)
	}
	if got[0].Content != "2" || got[1].ToolCalls[0].ID != "tc2" {
		t.Fatalf("expected the cut turn's tool_calls to stay intact, got %+v", got)
	}
}

func TestRepairToolPairingDropsOrphanToolMessage(t *testing.T) {
	messages := []providers.Message{
		msg("user", "hi"),
		{Role: "tool", Content: "orphan", ToolCallID: "missing"},
		msg("assistant", "reply"),
	}
	got := RepairToolPairing(messages)
	for _, m := range got {
		if m.Role == "tool" {
			t.Fatalf("expected the orphan tool message dropped, got %+v", got)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving messages, got %d: %+v", len(got), got)
	}
}

func TestRepairToolPairingSynthesizesMissingToolResult(t *testing.T) {
	messages := []providers.Message{
		msg("user", "hi"),
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "tc1", Name: "exec"}}},
		msg("user", "next turn, no tool result ever arrived"),
	}
	got := RepairToolPairing(messages)
	if len(got) != 4 {
		t.Fatalf("expected a synthesized tool message inserted, got %d: %+v", len(got), got)
	}
	if got[2].Role != "tool" || got[2].ToolCallID != "tc1" {
		t.Fatalf("expected the synthesized message to pair with tc1, got %+v", got[2])
	}
}

func TestRepairToolPairingPassesThroughWellFormedHistory(t *testing.T) {
	messages := []providers.Message{
		msg("user", "hi"),
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "tc1", Name: "exec"}}},
		{Role: "tool", Content: "ok", ToolCallID: "tc1"},
		msg("assistant", "done"),
	}
	got := RepairToolPairing(messages)
	if len(got) != len(messages) {
		t.Fatalf("expected well-formed history unchanged, got %d messages", len(got))
	}
}

func TestBuildSystemPromptSkillsInlineTokenThresholdDemotesLargeAlwaysActiveSkill(t *testing.T) {
	b := NewContextBuilder("", "tester").WithSkillsInlineTokenThreshold(5)
	big := SkillInfo{Name: "big", Summary: "a big skill", Content: "this content is definitely over the tiny threshold", AlwaysActive: true}
	prompt := b.BuildSystemPrompt("", []SkillInfo{big})
	if want := "this content is definitely over the tiny threshold"; strings.Contains(prompt, want) {
		t.Fatalf("expected the oversized skill demoted out of the inline prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "**big**: a big skill") {
		t.Fatalf("expected the oversized skill to appear in the index instead, got %q", prompt)
	}
}

func TestBuildSystemPromptSkillsInlineTokenThresholdKeepsSmallSkillInline(t *testing.T) {
	b := NewContextBuilder("", "tester").WithSkillsInlineTokenThreshold(1000)
	small := SkillInfo{Name: "small", Summary: "tiny", Content: "short", AlwaysActive: true}
	prompt := b.BuildSystemPrompt("", []SkillInfo{small})
	if !strings.Contains(prompt, "short") {
		t.Fatalf("expected the small skill inlined, got %q", prompt)
	}
}
