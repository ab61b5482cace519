package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/open1s/aisbot/internal/compression"
	"github.com/open1s/aisbot/internal/providers"
)

// bootstrapFiles are the fixed filenames loaded verbatim from the workspace
// root into the system prompt, in this order.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// memoryFile holds the short free-text memory section.
const memoryFile = "MEMORY.md"

// sectionSeparator joins system prompt sections with a horizontal rule.
const sectionSeparator = "\n\n---\n\n"

// SkillInfo describes one skill available to the agent. Always-active
// skills contribute their full Content unconditionally; the rest surface
// only as a one-line entry in the available-skills index, on the
// expectation that the agent loads details itself via a read-file tool.
type SkillInfo struct {
	Name         string
	Summary      string
	Content      string
	AlwaysActive bool
}

// ContextBuilder assembles the system prompt and per-turn message array fed
// to the LLM. One builder is shared by every turn of one agent
// instance; BuildSystemPrompt memoizes its output behind a content-hash
// keyed cache so unchanged bootstrap files/skills don't get re-serialized
// on every request.
type ContextBuilder struct {
	workspace string
	agentName string
	cache     *compression.PromptCache

	// skillsInlineTokenThreshold: a skill whose content is larger than this
	// many estimated tokens is demoted to the index regardless of
	// AlwaysActive. 0 disables the threshold (AlwaysActive alone decides).
	skillsInlineTokenThreshold int
}

func NewContextBuilder(workspace, agentName string) *ContextBuilder {
	return &ContextBuilder{
		workspace: workspace,
		agentName: agentName,
		cache:     compression.NewPromptCache(),
	}
}

// WithSkillsInlineTokenThreshold sets the inline-vs-index size cutoff and
// returns the builder for chaining.
func (b *ContextBuilder) WithSkillsInlineTokenThreshold(threshold int) *ContextBuilder {
	b.skillsInlineTokenThreshold = threshold
	return b
}

// estimateTokens applies the same ⌈len/4⌉ heuristic compression.EstimateTokens
// uses, without importing a providers.Message wrapper for one string.
func estimateTokens(s string) int {
	if len(s) <= 0 {
		return 0
	}
	return (len(s) + 3) / 4
}

// BuildSystemPrompt assembles the identity header, bootstrap files, tools
// summary, memory section, and skills sections, joined by sectionSeparator.
func (b *ContextBuilder) BuildSystemPrompt(toolsSummary string, skills []SkillInfo) string {
	sources := make(map[string]string)

	identity := b.identityHeader()
	sources["identity"] = identity
	sections := []string{identity}

	for _, name := range bootstrapFiles {
		content := b.readWorkspaceFile(name)
		if content == "" {
			continue
		}
		sources["bootstrap:"+name] = content
		sections = append(sections, content)
	}

	sources["tools_summary"] = toolsSummary
	sections = append(sections, toolsSummary)

	if mem := b.readWorkspaceFile(memoryFile); mem != "" {
		sources["memory"] = mem
		sections = append(sections, "## Memory\n\n"+mem)
	}

	var index []string
	for _, s := range skills {
		inline := s.AlwaysActive
		if b.skillsInlineTokenThreshold > 0 && estimateTokens(s.Content) > b.skillsInlineTokenThreshold {
			inline = false
		}
		if inline {
			sources["skill:"+s.Name] = s.Content
			sections = append(sections, s.Content)
			continue
		}
		index = append(index, fmt.Sprintf("- **%s**: %s", s.Name, s.Summary))
	}
	if len(index) > 0 {
		indexBlock := "## Available skills\n\n" + strings.Join(index, "\n")
		sources["skills_index"] = indexBlock
		sections = append(sections, indexBlock)
	}

	hash := compression.SourceHash(sources)
	if cached, ok := b.cache.Get("system", hash); ok {
		return cached
	}
	prompt := strings.Join(sections, sectionSeparator)
	b.cache.Set("system", hash, prompt)
	return prompt
}

// identityHeader is the generated header every system prompt opens with:
// timestamp, host platform tag, workspace path, and behavior rules.
func (b *ContextBuilder) identityHeader() string {
	return fmt.Sprintf(
		"You are %s, an AI agent operating in a tool-using reasoning loop.\n"+
			"Current time: %s\n"+
			"Platform: %s\n"+
			"Workspace: %s\n\n"+
			"Behavior rules:\n"+
			"- Use tools when they help you answer accurately; don't narrate tool use.\n"+
			"- Keep replies concise and directly responsive to the user's message.\n"+
			"- Never fabricate tool results or file contents.",
		b.agentName,
		time.Now().UTC().Format(time.RFC3339),
		runtime.GOOS,
		b.workspace,
	)
}

func (b *ContextBuilder) readWorkspaceFile(name string) string {
	if b.workspace == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(b.workspace, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// BuildMessages assembles the full LLM-ready message array: the system
// prompt (with Channel/Chat ID appended when available), history verbatim,
// then the new user turn. When media contains readable image files, the
// new turn's Images are populated alongside its Content.
func (b *ContextBuilder) BuildMessages(
	history []providers.Message,
	current, extraSystemPrompt, channel, chatID string,
	media []string,
	toolsSummary string,
	skills []SkillInfo,
) []providers.Message {
	sysContent := b.BuildSystemPrompt(toolsSummary, skills)
	if extraSystemPrompt != "" {
		sysContent += sectionSeparator + extraSystemPrompt
	}
	if channel != "" || chatID != "" {
		sysContent += fmt.Sprintf("\n\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: sysContent})
	messages = append(messages, history...)

	userMsg := providers.Message{Role: "user", Content: current}
	if images := loadImages(media); len(images) > 0 {
		userMsg.Images = images
	}
	messages = append(messages, userMsg)

	return messages
}

// LimitHistoryTurns caps history to the last maxTurns user turns. Cutting at
// a user-message boundary (every turn starts with one) guarantees the slice
// never splits an assistant tool_calls message away from its tool replies.
// maxTurns <= 0 disables the cap.
func LimitHistoryTurns(history []providers.Message, maxTurns int) []providers.Message {
	if maxTurns <= 0 {
		return history
	}
	userTurns := 0
	cut := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			userTurns++
			if userTurns == maxTurns {
				cut = i
				break
			}
		}
	}
	if cut <= 0 {
		return history
	}
	return history[cut:]
}

// RepairToolPairing enforces that every assistant message's tool_calls is
// immediately followed by matching "tool" role messages, and drops any
// "tool" message whose tool_call_id has no pending assistant call. Providers
// reject a request where the two don't line up; history can get out of sync
// after a crash mid-turn, a manual edit, or a turn-limiting cut that (despite
// LimitHistoryTurns' boundary guarantee) lands on hand-authored or migrated
// session data.
func RepairToolPairing(messages []providers.Message) []providers.Message {
	repaired := make([]providers.Message, 0, len(messages))
	var pending []string

	flushPending := func() {
		for _, id := range pending {
			repaired = append(repaired, providers.Message{
				Role:       "tool",
				Content:    "(no result recorded — conversation history was truncated)",
				ToolCallID: id,
			})
		}
		pending = nil
	}

	for _, m := range messages {
		switch m.Role {
		case "assistant":
			flushPending()
			repaired = append(repaired, m)
			for _, tc := range m.ToolCalls {
				pending = append(pending, tc.ID)
			}
		case "tool":
			idx := -1
			for i, id := range pending {
				if id == m.ToolCallID {
					idx = i
					break
				}
			}
			if idx == -1 {
				continue // orphan tool result with no matching pending call
			}
			pending = append(pending[:idx], pending[idx+1:]...)
			repaired = append(repaired, m)
		default:
			flushPending()
			repaired = append(repaired, m)
		}
	}
	flushPending()

	return repaired
}

// ToolsSummary renders the one-line-per-tool index inserted into the system
// prompt; the full JSON Schema is still sent to the LLM via ToolDefinition,
// this is only the human-readable prose summary.
func ToolsSummary(defs []providers.ToolDefinition) string {
	if len(defs) == 0 {
		return "## Tools\n\nNo tools are currently available."
	}
	var b strings.Builder
	b.WriteString("## Tools\n\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- **%s**: %s\n", d.Function.Name, d.Function.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
