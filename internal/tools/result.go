package tools

import "github.com/open1s/aisbot/internal/providers"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content sent to the LLM
	ForUser string `json:"for_user,omitempty"`  // content shown to the user
	Silent  bool   `json:"silent"`              // suppress user message
	IsError bool   `json:"is_error"`            // marks error
	Async   bool   `json:"async"`               // running asynchronously
	Err     error  `json:"-"`                   // internal error (not serialized)

	// Usage holds token usage from tools that make internal LLM calls (e.g. read_image).
	// When set, the agent loop records these on the tool span for tracing.
	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"` // provider name (for tool span metadata)
	Model    string           `json:"-"` // model used (for tool span metadata)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func AsyncResult(message string) *Result {
	return &Result{ForLLM: message, Async: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// WithUsage attaches provider token usage to a tool result that made its own
// internal LLM call (e.g. an image-description or summarization tool), so
// the agent loop can fold it into the turn's accounting.
func (r *Result) WithUsage(provider, model string, usage *providers.Usage) *Result {
	r.Provider = provider
	r.Model = model
	r.Usage = usage
	return r
}

// ExceedsChars reports whether ForLLM is long enough to be a compression
// candidate under the given char budget. limit <= 0 disables the check.
func (r *Result) ExceedsChars(limit int) bool {
	return limit > 0 && len(r.ForLLM) > limit
}
