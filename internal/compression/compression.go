// Package compression keeps an agent's prompt under its context window by
// rewriting older message content in place, preserving the system prompt and
// the most recent turns untouched.
package compression

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/providers"
)

// EstimateTokens applies the ⌈len(chars)/4⌉ heuristic across all text
// content in messages. Image parts are not counted.
func EstimateTokens(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += ceilDiv(len(m.Content), 4)
	}
	return total
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Stats reports what CompressMessages did, for logging/metrics.
type Stats struct {
	Reason          string
	OriginalTokens  int
	CompressedCount int
}

// Strategy rewrites one message's content to approximately targetRatio of
// its original length.
type Strategy interface {
	Compress(ctx context.Context, content string, targetRatio float64) string
}

// Resolve returns the configured strategy by name, defaulting to truncation.
func Resolve(name string, provider providers.Provider, summaryModel string) Strategy {
	switch name {
	case "semantic":
		return SemanticStrategy{}
	case "summary":
		return SummaryStrategy{Provider: provider, Model: summaryModel}
	default:
		return TruncationStrategy{}
	}
}

const (
	targetRatio         = 0.3
	minContentLength    = 200
	toolResultMinLength = 1000
	toolResultRatio     = 0.4
)

// CompressMessages rewrites older message content so the full array fits
// under targetContextTokens, keeping the system messages and the most
// recent recentKeep non-system messages untouched.
func CompressMessages(ctx context.Context, messages []providers.Message, targetContextTokens, recentKeep int, strat Strategy) ([]providers.Message, Stats) {
	stats := Stats{OriginalTokens: EstimateTokens(messages)}

	if strat == nil || targetContextTokens <= 0 {
		stats.Reason = "disabled"
		return messages, stats
	}
	if stats.OriginalTokens <= targetContextTokens {
		stats.Reason = "under_limit"
		return messages, stats
	}

	var system, others []providers.Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			others = append(others, m)
		}
	}
	if len(others) <= recentKeep {
		stats.Reason = "under_limit"
		return messages, stats
	}

	splitAt := len(others) - recentKeep
	older := others[:splitAt]
	recent := others[splitAt:]

	compressedOlder := make([]providers.Message, len(older))
	for i, m := range older {
		if len(m.Content) > minContentLength {
			m.Content = strat.Compress(ctx, m.Content, targetRatio)
			stats.CompressedCount++
		}
		compressedOlder[i] = m
	}

	result := make([]providers.Message, 0, len(system)+len(compressedOlder)+len(recent))
	result = append(result, system...)
	result = append(result, compressedOlder...)
	result = append(result, recent...)
	stats.Reason = "compressed"
	return result, stats
}

// CompressToolResult compresses a single tool result's content if it exceeds
// the configured character threshold. Returns the content unchanged otherwise.
func CompressToolResult(ctx context.Context, content string, threshold int, strat Strategy) string {
	if strat == nil {
		return content
	}
	if threshold <= 0 {
		threshold = toolResultMinLength
	}
	if len(content) <= threshold {
		return content
	}
	return strat.Compress(ctx, content, toolResultRatio)
}

// ResolveFromConfig builds a Strategy plus target/recent parameters from
// CompressionConfig, defaulting unset fields to the spec's values.
func ResolveFromConfig(cfg config.CompressionConfig, contextWindow int, provider providers.Provider) (strat Strategy, targetTokens, recentKeep int) {
	ratio := cfg.TriggerRatio
	if ratio <= 0 {
		ratio = 0.85
	}
	recentKeep = cfg.KeepLastTurns
	if recentKeep <= 0 {
		recentKeep = 4
	}
	targetTokens = int(float64(contextWindow) * ratio)
	strat = Resolve(cfg.Strategy, provider, cfg.SummaryModel)
	return strat, targetTokens, recentKeep
}

// --- Truncation ---

type TruncationStrategy struct{}

func (TruncationStrategy) Compress(_ context.Context, content string, ratio float64) string {
	if len(content) < 200 {
		return content
	}
	cut := int(float64(len(content)) * ratio)
	if cut <= 0 || cut >= len(content) {
		return content
	}
	slice := content[:cut]

	// Extend back to the nearest sentence break if it falls in the last 30%.
	lastWindow := int(float64(len(slice)) * 0.7)
	if idx := lastSentenceBreak(slice[lastWindow:]); idx >= 0 {
		slice = slice[:lastWindow+idx+1]
	}
	return strings.TrimRight(slice, " \t\n") + "…"
}

func lastSentenceBreak(s string) int {
	idx := -1
	for i, r := range s {
		if r == '.' || r == '\n' {
			idx = i
		}
	}
	return idx
}

// --- Semantic ---

type SemanticStrategy struct{}

var semanticKeyTerms = []string{"error", "exception", "result", "summary", "conclusion", "important", "critical"}

type scoredSection struct {
	text  string
	index int
	score float64
}

func (SemanticStrategy) Compress(ctx context.Context, content string, ratio float64) string {
	if len(content) < 500 {
		return content
	}

	raw := strings.Split(content, "\n\n")
	var chunks []string
	for _, s := range raw {
		if len(s) > 2000 {
			chunks = append(chunks, resplit(s, 1000)...)
		} else {
			chunks = append(chunks, s)
		}
	}

	sections := make([]scoredSection, len(chunks))
	anyPositive := false
	for i, c := range chunks {
		score := scoreSection(c)
		sections[i] = scoredSection{text: c, index: i, score: score}
		if score > 0 {
			anyPositive = true
		}
	}
	if !anyPositive {
		return TruncationStrategy{}.Compress(ctx, content, ratio)
	}

	keep := int(float64(len(sections)) * ratio)
	if keep < 1 {
		keep = 1
	}
	if keep > len(sections) {
		keep = len(sections)
	}

	// Stable sort descending by score; ties broken by lower original index
	// (the earlier section wins), matching a stable sort over an
	// index-annotated slice rather than an O(n^2) rescan.
	ranked := make([]scoredSection, len(sections))
	copy(ranked, sections)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	kept := make(map[int]bool, keep)
	for i := 0; i < keep; i++ {
		kept[ranked[i].index] = true
	}

	var out []string
	for _, s := range sections {
		if kept[s.index] {
			out = append(out, s.text)
		}
	}
	return strings.Join(out, "\n\n")
}

func resplit(s string, maxLen int) []string {
	var out []string
	for len(s) > maxLen {
		out = append(out, s[:maxLen])
		s = s[maxLen:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}

func scoreSection(s string) float64 {
	score := 1.0
	if strings.Contains(s, "```") {
		score += 2.0
	}
	if strings.Contains(s, "#") {
		for _, line := range strings.Split(s, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				score += 1.5
				break
			}
		}
	}
	lower := strings.ToLower(s)
	for _, term := range semanticKeyTerms {
		if strings.Contains(lower, term) {
			score += 0.5
		}
	}
	if len(s) < 100 {
		score *= 0.5
	}
	return score
}

// --- Summary ---

type SummaryStrategy struct {
	Provider providers.Provider
	Model    string
}

func (s SummaryStrategy) Compress(ctx context.Context, content string, ratio float64) string {
	if len(content) < 400 || s.Provider == nil {
		return content
	}
	prompt := strings.Builder{}
	prompt.WriteString("Summarize the following to approximately ")
	prompt.WriteString(percentString(ratio))
	prompt.WriteString(" of its original length, preserving key facts:\n\n")
	prompt.WriteString(content)

	resp, err := s.Provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt.String()}},
		Model:    s.Model,
		Options:  map[string]interface{}{"max_tokens": 512, "temperature": 0.3},
	})
	if err != nil || resp.Content == "" {
		return content
	}
	return resp.Content
}

func percentString(ratio float64) string {
	return strconv.Itoa(int(ratio*100)) + "%"
}

// --- System prompt cache ---

// PromptCache memoizes a built system prompt keyed by the hash of its
// constituent sources, so unchanged bootstrap files/skills don't get
// re-serialized into a fresh string on every request.
type PromptCache struct {
	mu    sync.Mutex
	entry map[string]cacheEntry
}

type cacheEntry struct {
	prompt string
	hash   string
}

func NewPromptCache() *PromptCache {
	return &PromptCache{entry: make(map[string]cacheEntry)}
}

// SourceHash hashes sorted (name, content) pairs to a 16-hex-char key.
func SourceHash(sources map[string]string) string {
	names := make([]string, 0, len(sources))
	for n := range sources {
		names = append(names, n)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte{0})
		h.Write([]byte(sources[n]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get returns the cached prompt for key if present and its hash matches.
func (c *PromptCache) Get(key, hash string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entry[key]
	if !ok || e.hash != hash {
		return "", false
	}
	return e.prompt, true
}

// Set stores prompt under key/hash, last-write-wins.
func (c *PromptCache) Set(key, hash, prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry[key] = cacheEntry{prompt: prompt, hash: hash}
}
