package agent

import "testing"

func TestToolLoopStateBelowWarnThreshold(t *testing.T) {
	var s toolLoopState
	key := s.record("search", map[string]interface{}{"q": "x"})
	level, _ := s.detect("search", key, 3, 6)
	if level != "" {
		t.Fatalf("expected no detection below threshold, got %q", level)
	}
}

func TestToolLoopStateWarnThreshold(t *testing.T) {
	var s toolLoopState
	var key string
	for i := 0; i < 3; i++ {
		key = s.record("search", map[string]interface{}{"q": "x"})
	}
	level, msg := s.detect("search", key, 3, 6)
	if level != "warning" {
		t.Fatalf("expected warning at threshold, got %q", level)
	}
	if msg == "" {
		t.Fatal("expected a non-empty warning message")
	}
}

func TestToolLoopStateCriticalThreshold(t *testing.T) {
	var s toolLoopState
	var key string
	for i := 0; i < 6; i++ {
		key = s.record("search", map[string]interface{}{"q": "x"})
	}
	level, _ := s.detect("search", key, 3, 6)
	if level != "critical" {
		t.Fatalf("expected critical at threshold, got %q", level)
	}
}

func TestNormalizeToolCallStableAcrossArgOrder(t *testing.T) {
	var s toolLoopState
	k1 := s.record("tool", map[string]interface{}{"a": 1, "b": 2})
	k2 := s.record("tool", map[string]interface{}{"b": 2, "a": 1})
	if k1 != k2 {
		t.Fatalf("expected same normalized key regardless of map insertion order: %q vs %q", k1, k2)
	}
	if s.counts[k1] != 2 {
		t.Fatalf("expected both calls to count toward the same key, got %d", s.counts[k1])
	}
}

func TestNormalizeToolCallDifferentArgsDifferentKeys(t *testing.T) {
	var s toolLoopState
	k1 := s.record("tool", map[string]interface{}{"a": 1})
	k2 := s.record("tool", map[string]interface{}{"a": 2})
	if k1 == k2 {
		t.Fatal("expected different arguments to produce different keys")
	}
}
