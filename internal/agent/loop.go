// Package agent implements the per-message agent loop: it resolves
// a session from an InboundMessage, builds a provider-ready prompt, drives
// the LLM/tool-call iteration to a final reply, and publishes the result as
// an OutboundMessage.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open1s/aisbot/internal/bus"
	"github.com/open1s/aisbot/internal/channels"
	"github.com/open1s/aisbot/internal/compression"
	"github.com/open1s/aisbot/internal/config"
	"github.com/open1s/aisbot/internal/providers"
	"github.com/open1s/aisbot/internal/store"
	"github.com/open1s/aisbot/internal/tools"
)

// AgentEventType classifies an AgentEvent's Payload shape.
type AgentEventType string

const (
	EventRunStarted   AgentEventType = "run_started"
	EventRunCompleted AgentEventType = "run_completed"
	EventRunFailed    AgentEventType = "run_failed"
	EventToolCall     AgentEventType = "tool_call"
	EventToolResult   AgentEventType = "tool_result"
	EventChatChunk    AgentEventType = "chat_chunk"
	EventChatThinking AgentEventType = "chat_thinking"
)

// AgentEvent is emitted by the loop at notable points during a run, for a
// caller-supplied observer (streaming previews, gateway status lines, etc).
type AgentEvent struct {
	Type    AgentEventType
	AgentID string
	RunID   string
	Payload interface{}
}

// MediaResult describes one media file surfaced by a tool result during a
// run, to be delivered to the channel alongside (or instead of) text.
type MediaResult struct {
	Path        string
	ContentType string
	AsVoice     bool
}

// RunResult is what one call to Run produces.
type RunResult struct {
	Content    string
	RunID      string
	Iterations int
	Usage      *providers.Usage
	Media      []MediaResult
}

// LoopConfig configures one Loop instance. One Loop serves one configured
// agent; multiple Loops can share the same Registry/SessionStore/MessageBus.
type LoopConfig struct {
	ID       string
	Model    string
	Provider providers.Provider

	Tools           *tools.Registry
	ToolPolicy      *tools.PolicyEngine
	AgentToolPolicy *config.ToolPolicySpec
	Sessions        store.SessionStore
	Bus             *bus.MessageBus
	Builder         *ContextBuilder

	MaxIterations   int
	MaxMessageChars int
	MaxHistoryTurns int // caps history to this many user turns before building the prompt; 0 disables

	// Workspace is the agent's shared default tool workspace. When
	// PerUserWorkspace is set, each session's tool calls get a
	// Workspace/users/<sanitized-channel>/<sanitized-chat-id> subdirectory
	// instead.
	Workspace        string
	PerUserWorkspace bool

	Compression     compression.Strategy
	CompressTarget  int // target context tokens; 0 disables compression
	CompressKeep    int // recent non-system messages exempt from compression
	ToolResultChars int // tool results over this many chars get compressed individually

	ToolLoopWarnThreshold     int // repeats before a warning is injected (default 3)
	ToolLoopCriticalThreshold int // repeats before the run aborts (default 6)

	OnEvent func(AgentEvent)
}

// Loop drives one agent's per-message algorithm.
type Loop struct {
	id       string
	model    string
	provider providers.Provider

	tools           *tools.Registry
	toolPolicy      *tools.PolicyEngine
	agentToolPolicy *config.ToolPolicySpec
	sessions        store.SessionStore
	msgBus          *bus.MessageBus
	builder         *ContextBuilder

	maxIterations   int
	maxMessageChars int
	maxHistoryTurns int

	workspace        string
	perUserWorkspace bool

	compressStrat  compression.Strategy
	compressTarget int
	compressKeep   int
	toolResultChars int

	toolLoopWarn     int
	toolLoopCritical int

	onEvent    func(AgentEvent)
	activeRuns atomic.Int32
}

// NewLoop constructs a Loop from cfg, applying the spec's defaults for any
// zero-valued tunable.
func NewLoop(cfg LoopConfig) *Loop {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}
	warnAt := cfg.ToolLoopWarnThreshold
	if warnAt <= 0 {
		warnAt = 3
	}
	criticalAt := cfg.ToolLoopCriticalThreshold
	if criticalAt <= 0 {
		criticalAt = 6
	}
	maxMessageChars := cfg.MaxMessageChars
	if maxMessageChars <= 0 {
		maxMessageChars = 32_000
	}
	return &Loop{
		id:                cfg.ID,
		model:             cfg.Model,
		provider:          cfg.Provider,
		tools:             cfg.Tools,
		toolPolicy:        cfg.ToolPolicy,
		agentToolPolicy:   cfg.AgentToolPolicy,
		sessions:          cfg.Sessions,
		msgBus:            cfg.Bus,
		builder:           cfg.Builder,
		maxIterations:     maxIterations,
		maxMessageChars:   maxMessageChars,
		maxHistoryTurns:   cfg.MaxHistoryTurns,
		workspace:         cfg.Workspace,
		perUserWorkspace:  cfg.PerUserWorkspace,
		compressStrat:     cfg.Compression,
		compressTarget:    cfg.CompressTarget,
		compressKeep:      cfg.CompressKeep,
		toolResultChars:   cfg.ToolResultChars,
		toolLoopWarn:      warnAt,
		toolLoopCritical:  criticalAt,
		onEvent:           cfg.OnEvent,
	}
}

// Run executes the full per-message algorithm for one InboundMessage and
// publishes the reply to the bus. The returned RunResult is also handed
// back to the caller for callers that want it directly (e.g. RunSync-style
// synchronous subagent use).
func (l *Loop) Run(ctx context.Context, msg bus.InboundMessage) (*RunResult, error) {
	l.activeRuns.Add(1)
	defer l.activeRuns.Add(-1)

	runID := msg.Metadata["run_id"]
	if runID == "" {
		runID = fmt.Sprintf("%s-%d", l.id, time.Now().UnixNano())
	}

	l.emit(AgentEvent{Type: EventRunStarted, AgentID: l.id, RunID: runID})

	start := time.Now().UTC()
	result, err := l.runOnce(ctx, msg, runID)
	l.emitAgentSpan(ctx, start, result, err)
	if err != nil {
		l.emit(AgentEvent{Type: EventRunFailed, AgentID: l.id, RunID: runID, Payload: err.Error()})
		return nil, err
	}
	l.emit(AgentEvent{Type: EventRunCompleted, AgentID: l.id, RunID: runID})
	return result, nil
}

// runOnce implements the per-turn algorithm over one inbound message.
func (l *Loop) runOnce(ctx context.Context, msg bus.InboundMessage, runID string) (*RunResult, error) {
	// Step 1: system-origin routing. A message on the reserved "system"
	// channel carries its real destination embedded in ChatID.
	replyChannel, replyChatID := msg.Channel, msg.ChatID
	isSystemOrigin := msg.Channel == bus.SystemChannel
	if isSystemOrigin {
		replyChannel, replyChatID = channels.ParseSystemOrigin(msg.ChatID)
	}
	sessionKey := replyChannel + ":" + replyChatID

	// Step 2: load or create the session.
	l.sessions.GetOrCreate(sessionKey)
	history := l.sessions.GetHistory(sessionKey)
	history = LimitHistoryTurns(history, l.maxHistoryTurns)
	history = RepairToolPairing(history)

	// Step 3: route context for per-call tools (message, spawn, cron), and
	// isolate this session's tool workspace when per-user isolation is on.
	ctx = tools.WithToolRoute(ctx, replyChannel, replyChatID)
	if l.perUserWorkspace && l.workspace != "" {
		userWorkspace := filepath.Join(l.workspace, "users", sanitizeWorkspaceSegment(replyChannel), sanitizeWorkspaceSegment(replyChatID))
		if err := os.MkdirAll(userWorkspace, 0755); err != nil {
			slog.Warn("per-user workspace create failed, falling back to shared workspace", "session", sessionKey, "error", err)
		} else {
			ctx = tools.WithToolWorkspace(ctx, userWorkspace)
		}
	}

	userContent := msg.Content
	if maxChars := l.maxMessageChars; maxChars > 0 && len(userContent) > maxChars {
		originalLen := len(userContent)
		userContent = userContent[:maxChars] + fmt.Sprintf(
			"\n\n[System: message truncated from %d to %d characters.]", originalLen, maxChars)
	}

	// Step 4: build the prompt.
	toolDefs := l.filteredTools()
	toolsSummary := ToolsSummary(toolDefs)
	messages := l.builder.BuildMessages(history, userContent, "", replyChannel, replyChatID, msg.Media, toolsSummary, nil)
	if l.compressTarget > 0 {
		messages, _ = compression.CompressMessages(ctx, messages, l.compressTarget, l.compressKeep, l.compressStrat)
	}

	// Step 5: iterate, calling the LLM and executing any requested tools.
	var loopDetector toolLoopState
	var totalUsage providers.Usage
	var mediaResults []MediaResult
	iteration := 0
	var finalContent string

	for iteration < l.maxIterations {
		iteration++

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
			Model:    l.model,
			Options: map[string]interface{}{
				providers.OptMaxTokens:   8192,
				providers.OptTemperature: 0.7,
			},
		}

		llmStart := time.Now().UTC()
		var resp *providers.ChatResponse
		var err error
		if msg.Metadata["stream"] == "true" {
			resp, err = l.provider.ChatStream(ctx, chatReq, func(chunk providers.StreamChunk) {
				if chunk.Thinking != "" {
					l.emit(AgentEvent{Type: EventChatThinking, AgentID: l.id, RunID: runID, Payload: chunk.Thinking})
				}
				if chunk.Content != "" {
					l.emit(AgentEvent{Type: EventChatChunk, AgentID: l.id, RunID: runID, Payload: chunk.Content})
				}
			})
		} else {
			resp, err = l.provider.Chat(ctx, chatReq)
		}
		l.emitLLMSpan(ctx, llmStart, iteration, messages, resp, err)
		if err != nil {
			return nil, fmt.Errorf("LLM call failed (iteration %d): %w", iteration, err)
		}

		if resp.Usage != nil {
			totalUsage.PromptTokens += resp.Usage.PromptTokens
			totalUsage.CompletionTokens += resp.Usage.CompletionTokens
			totalUsage.TotalTokens += resp.Usage.TotalTokens
			totalUsage.ThinkingTokens += resp.Usage.ThinkingTokens
		}

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			break
		}

		assistantMsg := providers.Message{
			Role:                "assistant",
			Content:             resp.Content,
			ToolCalls:           resp.ToolCalls,
			RawAssistantContent: resp.RawAssistantContent,
		}
		messages = append(messages, assistantMsg)

		toolMsgs, media, stuckMsg := l.executeToolCalls(ctx, runID, resp.ToolCalls, &loopDetector)
		messages = append(messages, toolMsgs...)
		mediaResults = append(mediaResults, media...)
		if stuckMsg != "" {
			finalContent = stuckMsg
			break
		}
	}

	// Step 6: fallback reply when no final content was produced.
	finalContent = SanitizeAssistantContent(finalContent)
	if finalContent == "" {
		if isSystemOrigin {
			finalContent = "Background task completed."
		} else {
			finalContent = "I've completed processing but have no response to give."
		}
	}

	// Step 7: commit the turn to the session.
	l.sessions.AddMessage(sessionKey, providers.Message{Role: "user", Content: msg.Content})
	l.sessions.AddMessage(sessionKey, providers.Message{Role: "assistant", Content: finalContent})
	l.sessions.UpdateMetadata(sessionKey, l.model, l.provider.Name(), replyChannel)
	l.sessions.AccumulateTokens(sessionKey, int64(totalUsage.PromptTokens), int64(totalUsage.CompletionTokens))
	if err := l.sessions.Save(sessionKey); err != nil {
		slog.Warn("session save failed", "session", sessionKey, "error", err)
	}

	// Step 8: publish the reply.
	l.msgBus.PublishOutbound(bus.OutboundMessage{
		Channel:   replyChannel,
		ChatID:    replyChatID,
		Content:   finalContent,
		Timestamp: time.Now().UTC(),
	})

	return &RunResult{
		Content:    finalContent,
		RunID:      runID,
		Iterations: iteration,
		Usage:      &totalUsage,
		Media:      mediaResults,
	}, nil
}

func (l *Loop) filteredTools() []providers.ToolDefinition {
	if l.toolPolicy == nil {
		return l.tools.Definitions()
	}
	return l.toolPolicy.FilterTools(l.tools, l.id, l.provider.Name(), l.agentToolPolicy, nil, false, false)
}

// executeToolCalls runs one turn's tool calls — inline when there is only
// one, concurrently (then re-sorted to the LLM's order) when there are
// several — and converts each into a "tool" message. A non-empty stuckMsg
// means the tool-loop detector tripped the critical threshold and the run
// should stop with that message as its final reply.
func (l *Loop) executeToolCalls(ctx context.Context, runID string, calls []providers.ToolCall, detector *toolLoopState) (msgs []providers.Message, media []MediaResult, stuckMsg string) {
	type outcome struct {
		idx    int
		tc     providers.ToolCall
		result *tools.Result
		args   string
		start  time.Time
	}

	for _, tc := range calls {
		l.emit(AgentEvent{Type: EventToolCall, AgentID: l.id, RunID: runID, Payload: map[string]interface{}{"name": tc.Name, "id": tc.ID}})
	}

	var collected []outcome
	if len(calls) == 1 {
		tc := calls[0]
		argsJSON, _ := json.Marshal(tc.Arguments)
		start := time.Now().UTC()
		result := l.tools.Execute(ctx, tc.Name, tc.Arguments)
		collected = []outcome{{idx: 0, tc: tc, result: result, args: string(argsJSON), start: start}}
	} else {
		resultCh := make(chan outcome, len(calls))
		var wg sync.WaitGroup
		for i, tc := range calls {
			wg.Add(1)
			go func(idx int, tc providers.ToolCall) {
				defer wg.Done()
				argsJSON, _ := json.Marshal(tc.Arguments)
				start := time.Now().UTC()
				result := l.tools.Execute(ctx, tc.Name, tc.Arguments)
				resultCh <- outcome{idx: idx, tc: tc, result: result, args: string(argsJSON), start: start}
			}(i, tc)
		}
		go func() { wg.Wait(); close(resultCh) }()
		for o := range resultCh {
			collected = append(collected, o)
		}
		sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })
	}

	for _, o := range collected {
		l.emitToolSpan(ctx, o.start, o.tc.Name, o.tc.ID, o.args, o.result)

		argsHash := detector.record(o.tc.Name, o.tc.Arguments)
		detector.recordResult(argsHash, o.result.ForLLM)

		if o.result.IsError {
			slog.Warn("tool error", "agent", l.id, "tool", o.tc.Name, "error", truncateStr(o.result.ForLLM, 200))
		}

		l.emit(AgentEvent{
			Type: EventToolResult, AgentID: l.id, RunID: runID,
			Payload: map[string]interface{}{"name": o.tc.Name, "id": o.tc.ID, "is_error": o.result.IsError},
		})

		content := o.result.ForLLM
		if o.result.ExceedsChars(l.toolResultChars) {
			content = compression.CompressToolResult(ctx, content, l.toolResultChars, l.compressStrat)
		}

		msgs = append(msgs, providers.Message{Role: "tool", Content: content, ToolCallID: o.tc.ID})

		if mr := parseMediaResult(o.result.ForLLM); mr != nil {
			media = append(media, *mr)
		}

		if level, warnMsg := detector.detect(o.tc.Name, argsHash, l.toolLoopWarn, l.toolLoopCritical); level != "" {
			if level == "critical" {
				return msgs, media, "I was unable to complete this task — I got stuck repeatedly calling " +
					o.tc.Name + " without making progress. Please try rephrasing your request."
			}
			msgs = append(msgs, providers.Message{Role: "user", Content: warnMsg})
		}
	}

	return msgs, media, ""
}

// sanitizeWorkspaceSegment converts a chat ID or channel name into a safe,
// single path segment: only letters, digits, '-', '_', and '.' survive, and
// anything else (path separators, "..", control characters from a hostile
// sender) collapses to '_' so the result can never escape its parent
// directory.
func sanitizeWorkspaceSegment(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}

// parseMediaResult extracts a MediaResult from a tool result string carrying
// a "MEDIA:" prefix, optionally preceded by an "[[audio_as_voice]]" tag.
// Returns nil when the result carries no media reference.
func parseMediaResult(toolOutput string) *MediaResult {
	s := toolOutput
	asVoice := false

	if strings.Contains(s, "[[audio_as_voice]]") {
		asVoice = true
		s = strings.TrimSpace(strings.ReplaceAll(s, "[[audio_as_voice]]", ""))
	}

	idx := strings.Index(s, "MEDIA:")
	if idx < 0 {
		return nil
	}
	path := strings.TrimSpace(s[idx+len("MEDIA:"):])
	if path == "" {
		return nil
	}
	if nl := strings.IndexByte(path, '\n'); nl >= 0 {
		path = strings.TrimSpace(path[:nl])
	}

	return &MediaResult{Path: path, ContentType: mimeFromExt(filepath.Ext(path)), AsVoice: asVoice}
}

// mimeFromExt returns a MIME type for common media file extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
