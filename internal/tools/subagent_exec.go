package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/open1s/aisbot/internal/bus"
	"github.com/open1s/aisbot/internal/providers"
	"github.com/open1s/aisbot/internal/tracing"
)

// runTask executes the subagent in a goroutine and announces the outcome.
func (sm *SubagentManager) runTask(ctx context.Context, task *SubagentTask, callback AsyncCallback) {
	iterations := sm.executeTask(ctx, task)

	// Announce the result back to the parent on the bus's reserved system
	// channel. The chat_id carries "origin_channel:origin_chat_id" so the
	// agent loop can route the reply to the right conversation.
	if sm.msgBus != nil && task.OriginChannel != "" {
		remaining := sm.CountRunningForParent(task.ParentID)
		content := formatAnnounce(task, iterations, remaining)

		sm.msgBus.PublishInbound(bus.InboundMessage{
			Channel:   bus.SystemChannel,
			SenderID:  fmt.Sprintf("subagent:%s", task.ID),
			ChatID:    task.OriginChannel + ":" + task.OriginChatID,
			Content:   content,
			Timestamp: time.Now(),
			Metadata: map[string]string{
				"origin_channel":   task.OriginChannel,
				"origin_peer_kind": task.OriginPeerKind,
				"parent_agent":     task.ParentID,
				"subagent_id":      task.ID,
				"subagent_label":   task.Label,
			},
		})
	}

	if callback != nil {
		result := NewResult(fmt.Sprintf("Subagent %q completed in %d iterations.\n\nResult:\n%s",
			task.Label, iterations, task.Result))
		callback(ctx, result)
	}
}

func formatAnnounce(task *SubagentTask, iterations, remainingActive int) string {
	status := task.Status
	msg := fmt.Sprintf("[subagent %q %s after %d iterations]\n%s", task.Label, status, iterations, task.Result)
	if remainingActive > 0 {
		msg += fmt.Sprintf("\n\n(%d other subagent(s) still running)", remainingActive)
	}
	return msg
}

// executeTask runs the LLM tool loop for a subagent. Returns iteration count.
func (sm *SubagentManager) executeTask(ctx context.Context, task *SubagentTask) int {
	taskStart := time.Now().UTC()

	// Detach from the caller's cancellation so the root span still gets
	// emitted even if the inbound request that spawned this subagent is
	// long gone by the time it finishes.
	traceCtx := tracing.Detach(ctx)
	traceCtx, rootSpan := tracing.StartHistorical(traceCtx, "subagent.run", taskStart,
		attribute.String("subagent.id", task.ID),
		attribute.String("subagent.parent", task.ParentID),
		attribute.Int("subagent.depth", task.Depth),
	)

	var model string
	var finalContent string
	iteration := 0

	defer func() {
		sm.mu.Lock()
		task.CompletedAt = time.Now().UnixMilli()
		sm.mu.Unlock()

		rootSpan.SetAttributes(
			attribute.String("subagent.status", task.Status),
			attribute.Int("subagent.iterations", iteration),
		)
		rootSpan.End()

		slog.Debug("subagent finished", "id", task.ID, "status", task.Status, "iterations", iteration)

		if sm.config.ArchiveAfterMinutes > 0 {
			go sm.scheduleArchive(task.ID, time.Duration(sm.config.ArchiveAfterMinutes)*time.Minute)
		}
	}()

	if ctx.Err() != nil {
		sm.mu.Lock()
		task.Status = TaskStatusCancelled
		task.Result = "cancelled before execution"
		sm.mu.Unlock()
		return 0
	}

	// Build tools for the subagent; strip spawn/recursion-capable tools.
	toolsReg := sm.createTools()
	sm.applyDenyList(toolsReg, task.Depth)

	// Cascading model priority: per-task override > SubagentConfig.Model > manager default.
	model = sm.model
	if sm.config.Model != "" {
		model = sm.config.Model
	}
	if task.Model != "" {
		model = task.Model
	}

	systemPrompt := sm.buildSubagentSystemPrompt(task)

	messages := []providers.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task.Task},
	}

	const maxIterations = 20

	for iteration < maxIterations {
		iteration++

		if ctx.Err() != nil {
			sm.mu.Lock()
			task.Status = TaskStatusCancelled
			task.Result = "cancelled during execution"
			sm.mu.Unlock()
			return iteration
		}

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    toolsReg.Definitions(),
			Model:    model,
			Options: map[string]interface{}{
				"max_tokens":  4096,
				"temperature": 0.5,
			},
		}

		llmStart := time.Now().UTC()
		resp, err := sm.provider.Chat(ctx, chatReq)
		sm.emitLLMSpan(traceCtx, llmStart, iteration, model, resp, err)

		if err != nil {
			sm.mu.Lock()
			task.Status = TaskStatusFailed
			task.Result = fmt.Sprintf("LLM error at iteration %d: %v", iteration, err)
			sm.mu.Unlock()
			slog.Warn("subagent LLM error", "id", task.ID, "iteration", iteration, "error", err)
			return iteration
		}

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			break
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			slog.Debug("subagent tool call", "id", task.ID, "tool", tc.Name)

			toolStart := time.Now().UTC()
			result := toolsReg.Execute(ctx, tc.Name, tc.Arguments)

			argsJSON, _ := json.Marshal(tc.Arguments)
			sm.emitToolSpan(traceCtx, toolStart, tc.Name, tc.ID, string(argsJSON), result)

			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: tc.ID,
			})
		}
	}

	sm.mu.Lock()
	if finalContent == "" {
		finalContent = "Task completed but no final response was generated."
	}
	task.Status = TaskStatusCompleted
	task.Result = finalContent
	sm.mu.Unlock()

	slog.Info("subagent completed", "id", task.ID, "iterations", iteration)
	return iteration
}

// emitLLMSpan records one subagent LLM call as a completed otel span.
func (sm *SubagentManager) emitLLMSpan(ctx context.Context, start time.Time, iteration int, model string, resp *providers.ChatResponse, callErr error) {
	_, span := tracing.StartHistorical(ctx, "llm.chat", start,
		attribute.String("gen_ai.request.model", model),
		attribute.Int("agent.iteration", iteration),
	)
	defer span.End()
	if callErr != nil {
		span.RecordError(callErr)
		return
	}
	if resp != nil && resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		)
	}
}

// emitToolSpan records one subagent tool call as a completed otel span.
func (sm *SubagentManager) emitToolSpan(ctx context.Context, start time.Time, toolName, toolCallID, input string, result *Result) {
	_, span := tracing.StartHistorical(ctx, "tool."+toolName, start,
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", toolCallID),
	)
	defer span.End()
	if result.IsError {
		span.SetAttributes(attribute.Bool("tool.error", true))
	}
}

// buildSubagentSystemPrompt gives the subagent a narrow framing: finish the
// assigned task and stop, rather than behaving like the parent's full chat agent.
func (sm *SubagentManager) buildSubagentSystemPrompt(task *SubagentTask) string {
	return fmt.Sprintf(
		"You are a subagent spawned to complete a single task, then report back.\n"+
			"Task: %s\n\n"+
			"Work autonomously using the tools available to you. When the task is "+
			"complete, respond with a concise final answer and stop calling tools.",
		task.Task,
	)
}

// scheduleArchive drops a completed task's bookkeeping entry after ttl so
// the in-memory task map doesn't grow unbounded across a long-lived process.
func (sm *SubagentManager) scheduleArchive(taskID string, ttl time.Duration) {
	time.Sleep(ttl)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.tasks, taskID)
}
