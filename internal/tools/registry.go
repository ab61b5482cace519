package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/open1s/aisbot/internal/providers"
)

// Tool is any value exposing a name, description, JSON Schema parameters,
// and an Execute method — native tools, MCP-discovered remote tools, and
// skill-backed tools all satisfy this one interface.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Source classifies where a tool's implementation lives.
type Source string

const (
	SourceLocal Source = "local"
	SourceMCP   Source = "mcp"
	SourceSkill Source = "skill"
)

// Sourced is implemented by tools that report a non-default source; tools
// that don't implement it are treated as SourceLocal.
type Sourced interface {
	Source() Source
}

// Registry maps tool name to Tool and dispatches validated calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool entry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool entry, e.g. when the MCP manager stops a server
// or filters its tools.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions returns the OpenAI-compatible schema for every registered tool.
func (r *Registry) Definitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToProviderDef(t))
	}
	return defs
}

// ToProviderDef converts a Tool into the OpenAI-style function-calling schema.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Execute validates args against the tool's schema, then dispatches.
// Unknown tools and validation/execution failures are converted into
// diagnostic Result strings rather than propagated as errors, so the LLM
// always sees a reply for every tool call it makes.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (result *Result) {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("Unknown tool: %s", name))
	}

	if err := ValidateArgs(tool.Parameters(), args); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(fmt.Sprintf("Error executing %s: %v", name, rec))
		}
	}()

	return tool.Execute(ctx, args)
}

// ValidateArgs checks args against a JSON Schema object definition at the
// top level: required keys present, no undeclared keys, primitive types
// matching (an integer value satisfies "number"; a whole-valued float
// satisfies "integer" but a fractional one does not; booleans satisfy
// neither).
func ValidateArgs(schema map[string]interface{}, args map[string]interface{}) error {
	props, _ := schema["properties"].(map[string]interface{})
	required, _ := schema["required"].([]string)

	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	for key, val := range args {
		propSchema, declared := props[key]
		if !declared {
			return fmt.Errorf("unexpected argument %q", key)
		}
		propMap, ok := propSchema.(map[string]interface{})
		if !ok {
			continue
		}
		wantType, _ := propMap["type"].(string)
		if wantType == "" {
			continue
		}
		if !typeMatches(wantType, val) {
			return fmt.Errorf("argument %q: expected %s", key, wantType)
		}
	}

	return nil
}

func typeMatches(want string, val interface{}) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "integer":
		switch n := val.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		default:
			return false
		}
	case "number":
		switch val.(type) {
		case int, int64, float64:
			return true
		default:
			return false
		}
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	default:
		return true
	}
}
