package agent

import (
	"encoding/json"
	"fmt"
)

// toolLoopState detects a tool call being repeated with identical arguments
// within one run's iteration window, so a stuck agent can be nudged (then
// stopped) instead of spinning through its iteration budget.
type toolLoopState struct {
	counts map[string]int
}

// record normalizes (name, args) into a stable key and increments its
// repeat count, returning the key for recordResult/detect to reuse.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	key := normalizeToolCall(name, args)
	s.counts[key]++
	return key
}

// recordResult is a hook for future no-progress detection keyed on repeated
// identical tool output; count-based detection in detect already covers the
// spec's repeated-call thresholds, so this currently just records nothing.
func (s *toolLoopState) recordResult(key, result string) {}

// detect reports whether key's repeat count has crossed the warn or
// critical threshold. level is "" below warn, "warning" at/above warn and
// below critical, "critical" at/above critical.
func (s *toolLoopState) detect(name, key string, warnAt, criticalAt int) (level, msg string) {
	count := s.counts[key]
	switch {
	case count >= criticalAt:
		return "critical", fmt.Sprintf("tool %q called %d times with identical arguments without making progress", name, count)
	case count >= warnAt:
		return "warning", fmt.Sprintf("[System: you have called %q with identical arguments %d times in this run; try a different approach.]", name, count)
	default:
		return "", ""
	}
}

// normalizeToolCall renders (name, args) as a stable string key.
// encoding/json serializes map keys in sorted order, so two calls with the
// same arguments in different insertion order normalize to the same key.
func normalizeToolCall(name string, args map[string]interface{}) string {
	b, _ := json.Marshal(args)
	return name + ":" + string(b)
}
