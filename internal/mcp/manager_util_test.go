package mcp

import (
	"sort"
	"testing"
)

func TestMapToEnvSliceEmptyIsNil(t *testing.T) {
	if got := mapToEnvSlice(nil); got != nil {
		t.Fatalf("expected nil for empty map, got %v", got)
	}
}

func TestMapToEnvSliceFormatsKeyValuePairs(t *testing.T) {
	got := mapToEnvSlice(map[string]string{"A": "1", "B": "2"})
	sort.Strings(got)
	want := []string{"A=1", "B=2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestToSetEmptyIsNil(t *testing.T) {
	if got := toSet(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestToSetContainsAllItems(t *testing.T) {
	s := toSet([]string{"a", "b", "a"})
	if len(s) != 2 {
		t.Fatalf("expected deduplicated set of 2, got %d", len(s))
	}
	if _, ok := s["a"]; !ok {
		t.Fatal("expected set to contain 'a'")
	}
	if _, ok := s["b"]; !ok {
		t.Fatal("expected set to contain 'b'")
	}
	if _, ok := s["c"]; ok {
		t.Fatal("expected set to not contain 'c'")
	}
}

func TestJoinErrorsEmpty(t *testing.T) {
	if got := joinErrors(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestJoinErrorsSingle(t *testing.T) {
	if got := joinErrors([]string{"boom"}); got != "boom" {
		t.Fatalf("expected no separator for a single error, got %q", got)
	}
}

func TestJoinErrorsMultipleSeparatedBySemicolon(t *testing.T) {
	got := joinErrors([]string{"first", "second", "third"})
	want := "first; second; third"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
