// Package tools provides the subagent system for spawning child agent instances.
//
// Subagents run in background goroutines with restricted tool access:
//   - Depth limit: SubagentConfig.MaxSpawnDepth
//   - Max children per parent: SubagentConfig.MaxChildrenPerAgent
//   - Auto-archive after SubagentConfig.ArchiveAfterMinutes (0 disables)
//   - Tool deny lists: SubagentDenyAlways + SubagentDenyLeaf at max depth
//   - Results announced back to the parent via the message bus's reserved
//     system channel, where the agent loop reformulates them for the user.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open1s/aisbot/internal/bus"
	"github.com/open1s/aisbot/internal/providers"
)

// SubagentConfig configures the subagent system. No defaults are applied in
// this package: a zero MaxConcurrent, MaxSpawnDepth or MaxChildrenPerAgent
// rejects every spawn, and a zero ArchiveAfterMinutes disables auto-archive.
type SubagentConfig struct {
	MaxConcurrent       int    // max concurrent subagents
	MaxSpawnDepth       int    // max nesting depth
	MaxChildrenPerAgent int    // max children per parent
	ArchiveAfterMinutes int    // auto-archive completed tasks after this many minutes
	Model               string // model override for subagents (empty = inherit)
}

// Subagent task status constants.
const (
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
)

// AsyncCallback receives the final result once a spawned subagent completes.
type AsyncCallback func(ctx context.Context, result *Result)

// SubagentTask tracks a running or completed subagent.
type SubagentTask struct {
	ID             string `json:"id"`
	ParentID       string `json:"parentId"`
	Task           string `json:"task"`
	Label          string `json:"label"`
	Status         string `json:"status"` // "running", "completed", "failed", "cancelled"
	Result         string `json:"result,omitempty"`
	Depth          int    `json:"depth"`
	Model          string `json:"model,omitempty"` // model override for this subagent
	OriginChannel  string `json:"originChannel,omitempty"`
	OriginChatID   string `json:"originChatId,omitempty"`
	OriginPeerKind string `json:"originPeerKind,omitempty"` // "direct" or "group" (for session key building)
	CreatedAt      int64  `json:"createdAt"`
	CompletedAt    int64  `json:"completedAt,omitempty"`

	cancelFunc context.CancelFunc `json:"-"`
}

// SubagentManager manages the lifecycle of spawned subagents.
type SubagentManager struct {
	mu       sync.RWMutex
	tasks    map[string]*SubagentTask
	config   SubagentConfig
	provider providers.Provider
	model    string
	msgBus   *bus.MessageBus

	// createTools builds a tool registry for subagents (without spawn/subagent tools).
	createTools func() *Registry
}

// NewSubagentManager creates a new subagent manager.
func NewSubagentManager(
	provider providers.Provider,
	model string,
	msgBus *bus.MessageBus,
	createTools func() *Registry,
	cfg SubagentConfig,
) *SubagentManager {
	return &SubagentManager{
		tasks:       make(map[string]*SubagentTask),
		config:      cfg,
		provider:    provider,
		model:       model,
		msgBus:      msgBus,
		createTools: createTools,
	}
}

// CountRunningForParent returns the number of running tasks for a parent.
func (sm *SubagentManager) CountRunningForParent(parentID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	count := 0
	for _, t := range sm.tasks {
		if t.ParentID == parentID && t.Status == TaskStatusRunning {
			count++
		}
	}
	return count
}

// SubagentDenyAlways is the list of tools always denied to subagents.
var SubagentDenyAlways = []string{
	"sessions_spawn",
	"subagents",
	"sessions_send",
	"session_status",
}

// SubagentDenyLeaf is the additional deny list for subagents at max depth.
var SubagentDenyLeaf = []string{
	"sessions_list",
	"sessions_history",
}

// applyDenyList removes spawn-capable and depth-exceeding tools from a
// subagent's own registry so it cannot recurse past the configured limits.
func (sm *SubagentManager) applyDenyList(reg *Registry, depth int) {
	for _, name := range SubagentDenyAlways {
		reg.Unregister(name)
	}
	if depth >= sm.config.MaxSpawnDepth {
		for _, name := range SubagentDenyLeaf {
			reg.Unregister(name)
		}
	}
}

// Spawn creates a new subagent task that runs asynchronously.
// Returns immediately with a status message. The subagent runs in a goroutine.
func (sm *SubagentManager) Spawn(
	ctx context.Context,
	parentID string,
	depth int,
	task, label, modelOverride string,
	channel, chatID, peerKind string,
	callback AsyncCallback,
) (string, error) {
	sm.mu.Lock()

	if depth >= sm.config.MaxSpawnDepth {
		sm.mu.Unlock()
		return "", fmt.Errorf("spawn depth limit reached (%d/%d)", depth, sm.config.MaxSpawnDepth)
	}

	running := 0
	for _, t := range sm.tasks {
		if t.Status == TaskStatusRunning {
			running++
		}
	}
	if running >= sm.config.MaxConcurrent {
		sm.mu.Unlock()
		return "", fmt.Errorf("max concurrent subagents reached (%d/%d)", running, sm.config.MaxConcurrent)
	}

	childCount := 0
	for _, t := range sm.tasks {
		if t.ParentID == parentID {
			childCount++
		}
	}
	if childCount >= sm.config.MaxChildrenPerAgent {
		sm.mu.Unlock()
		return "", fmt.Errorf("max children per agent reached (%d/%d)", childCount, sm.config.MaxChildrenPerAgent)
	}

	id := generateSubagentID()
	if label == "" {
		label = truncate(task, 50)
	}

	subTask := &SubagentTask{
		ID:             id,
		ParentID:       parentID,
		Task:           task,
		Label:          label,
		Status:         TaskStatusRunning,
		Depth:          depth + 1,
		Model:          modelOverride,
		OriginChannel:  channel,
		OriginChatID:   chatID,
		OriginPeerKind: peerKind,
		CreatedAt:      time.Now().UnixMilli(),
	}
	// Per-task context; its cancel func is kept on the task record.
	taskCtx, taskCancel := context.WithCancel(ctx)
	subTask.cancelFunc = taskCancel

	sm.tasks[id] = subTask
	sm.mu.Unlock()

	slog.Info("subagent spawned", "id", id, "parent", parentID, "depth", subTask.Depth, "label", label)

	go sm.runTask(taskCtx, subTask, callback)

	return fmt.Sprintf("Spawned subagent %q (id=%s, depth=%d) for task: %s",
		label, id, subTask.Depth, truncate(task, 100)), nil
}

// RunSync executes a subagent task synchronously, blocking until completion.
func (sm *SubagentManager) RunSync(
	ctx context.Context,
	parentID string,
	depth int,
	task, label string,
	channel, chatID string,
) (string, int, error) {
	sm.mu.Lock()

	if depth >= sm.config.MaxSpawnDepth {
		sm.mu.Unlock()
		return "", 0, fmt.Errorf("spawn depth limit reached (%d/%d)", depth, sm.config.MaxSpawnDepth)
	}

	id := generateSubagentID()
	if label == "" {
		label = truncate(task, 50)
	}

	subTask := &SubagentTask{
		ID:            id,
		ParentID:      parentID,
		Task:          task,
		Label:         label,
		Status:        TaskStatusRunning,
		Depth:         depth + 1,
		OriginChannel: channel,
		OriginChatID:  chatID,
		CreatedAt:     time.Now().UnixMilli(),
	}
	sm.tasks[id] = subTask
	sm.mu.Unlock()

	slog.Info("subagent sync started", "id", id, "parent", parentID, "depth", subTask.Depth, "label", label)

	iterations := sm.executeTask(ctx, subTask)

	if subTask.Status == TaskStatusFailed {
		return subTask.Result, iterations, fmt.Errorf("subagent failed: %s", subTask.Result)
	}

	return subTask.Result, iterations, nil
}

func generateSubagentID() string {
	return fmt.Sprintf("sub_%d", time.Now().UnixNano())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
