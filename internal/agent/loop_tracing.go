package agent

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/open1s/aisbot/internal/providers"
	"github.com/open1s/aisbot/internal/tools"
	"github.com/open1s/aisbot/internal/tracing"
)

func (l *Loop) emit(event AgentEvent) {
	if l.onEvent != nil {
		l.onEvent(event)
	}
}

// ID returns the agent's identifier.
func (l *Loop) ID() string { return l.id }

// Model returns the model identifier for this agent loop.
func (l *Loop) Model() string { return l.model }

// IsRunning returns whether the agent is currently processing.
func (l *Loop) IsRunning() bool { return l.activeRuns.Load() > 0 }

// emitLLMSpan records an LLM call as a completed otel span nested under
// whatever span is active on ctx.
func (l *Loop) emitLLMSpan(ctx context.Context, start time.Time, iteration int, messages []providers.Message, resp *providers.ChatResponse, callErr error) {
	now := time.Now().UTC()
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.system", l.provider.Name()),
		attribute.String("gen_ai.request.model", l.model),
		attribute.Int("agent.iteration", iteration),
	}
	_, span := tracing.StartHistorical(ctx, "llm.chat", start, attrs...)
	defer span.End(trace.WithTimestamp(now))

	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return
	}
	if resp == nil {
		return
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		)
		if resp.Usage.CacheCreationTokens > 0 {
			span.SetAttributes(attribute.Int("gen_ai.usage.cache_creation_tokens", resp.Usage.CacheCreationTokens))
		}
		if resp.Usage.CacheReadTokens > 0 {
			span.SetAttributes(attribute.Int("gen_ai.usage.cache_read_tokens", resp.Usage.CacheReadTokens))
		}
	}
	span.SetAttributes(
		attribute.String("gen_ai.response.finish_reason", resp.FinishReason),
		attribute.String("gen_ai.response.preview", truncateStr(resp.Content, 500)),
	)
}

// emitToolSpan records a tool call as a completed otel span. result may
// carry Usage from tools that make their own internal LLM calls.
func (l *Loop) emitToolSpan(ctx context.Context, start time.Time, toolName, toolCallID, input string, result *tools.Result) {
	now := time.Now().UTC()
	attrs := []attribute.KeyValue{
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", toolCallID),
		attribute.String("tool.input", truncateStr(input, 2000)),
	}
	_, span := tracing.StartHistorical(ctx, "tool."+toolName, start, attrs...)
	defer span.End(trace.WithTimestamp(now))

	span.SetAttributes(attribute.String("tool.output", truncateStr(result.ForLLM, 2000)))
	if result.IsError {
		span.SetStatus(codes.Error, truncateStr(result.ForLLM, 200))
	}
	if result.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", result.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", result.Usage.CompletionTokens),
			attribute.String("gen_ai.system", result.Provider),
			attribute.String("gen_ai.request.model", result.Model),
		)
	}
}

// emitAgentSpan records the root span for one inbound-message run after the
// fact: it starts "agent.run" at start via tracing.StartHistorical, sets
// attributes and status, and ends the span at the current time.
func (l *Loop) emitAgentSpan(ctx context.Context, start time.Time, result *RunResult, runErr error) {
	now := time.Now().UTC()
	attrs := []attribute.KeyValue{
		attribute.String("agent.id", l.id),
		attribute.String("gen_ai.request.model", l.model),
		attribute.String("gen_ai.system", l.provider.Name()),
	}
	_, span := tracing.StartHistorical(ctx, "agent.run", start, attrs...)
	defer span.End(trace.WithTimestamp(now))

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return
	}
	if result != nil {
		span.SetAttributes(attribute.String("agent.output_preview", truncateStr(result.Content, 500)))
	}
}

func truncateStr(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}

// EstimateTokens returns a rough token estimate for a slice of messages.
// It counts one token per three runes of each message's Content.
func EstimateTokens(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.Content) / 3
	}
	return total
}
