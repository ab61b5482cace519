package mcp

import (
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func TestSanitizeToolName(t *testing.T) {
	cases := map[string]string{
		"add":        "add",
		"my-server":  "my_server",
		"a.b c":      "a_b_c",
		"":           "tool",
		"___":        "___",
		"123 go!!":   "123_go__",
	}
	for in, want := range cases {
		if got := sanitizeToolName(in); got != want {
			t.Errorf("sanitizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBridgeToolNameIsServerPrefixed(t *testing.T) {
	tool := &BridgeTool{serverName: "math", originalName: "add"}
	if got := tool.Name(); got != "math_add" {
		t.Fatalf("expected math_add, got %q", got)
	}
}

func TestBridgeToolNameUsesCustomPrefixWhenSet(t *testing.T) {
	tool := &BridgeTool{serverName: "math", originalName: "add", namePrefix: "calc"}
	if got := tool.Name(); got != "calc_add" {
		t.Fatalf("expected calc_add, got %q", got)
	}
}

func TestBridgeToolOriginalNamePreserved(t *testing.T) {
	tool := &BridgeTool{serverName: "math", originalName: "add"}
	if tool.OriginalName() != "add" {
		t.Fatalf("expected original name add, got %q", tool.OriginalName())
	}
}

func TestBridgeToolDescriptionFallsBackWhenEmpty(t *testing.T) {
	tool := &BridgeTool{serverName: "math", originalName: "add"}
	desc := tool.Description()
	if desc == "" {
		t.Fatal("expected a non-empty fallback description")
	}
}

func TestBridgeToolDescriptionPrefixesServerWhenPresent(t *testing.T) {
	tool := &BridgeTool{serverName: "math", originalName: "add", description: "adds two numbers"}
	desc := tool.Description()
	if desc != `[mcp:math] adds two numbers` {
		t.Fatalf("unexpected description: %q", desc)
	}
}

func TestBridgeToolParametersDefaultsToEmptyObjectSchema(t *testing.T) {
	tool := &BridgeTool{serverName: "math", originalName: "add"}
	params := tool.Parameters()
	if params["type"] != "object" {
		t.Fatalf("expected object schema default, got %+v", params)
	}
}

func TestFormatCallResultReturnsFirstTextBlock(t *testing.T) {
	res := &mcpgo.CallToolResult{
		Content: []mcpgo.Content{
			mcpgo.TextContent{Text: "line one"},
			mcpgo.TextContent{Text: "line two"},
		},
	}
	text, isErr := formatCallResult(res)
	if isErr {
		t.Fatal("expected non-error result")
	}
	if text != "line one" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestFormatCallResultPropagatesIsError(t *testing.T) {
	res := &mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.TextContent{Text: "boom"}},
		IsError: true,
	}
	text, isErr := formatCallResult(res)
	if !isErr || text != "boom" {
		t.Fatalf("expected error propagated with text boom, got %q isErr=%v", text, isErr)
	}
}

func TestFormatCallResultNilIsEmpty(t *testing.T) {
	text, isErr := formatCallResult(nil)
	if text != "" || isErr {
		t.Fatalf("expected empty non-error result for nil, got %q %v", text, isErr)
	}
}

func TestSchemaToMapRoundTripsProperties(t *testing.T) {
	schema := mcpgo.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"a": map[string]interface{}{"type": "string"},
		},
	}
	m := schemaToMap(schema)
	if m["type"] != "object" {
		t.Fatalf("expected type object, got %+v", m)
	}
	props, ok := m["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected properties map, got %+v", m["properties"])
	}
	if _, ok := props["a"]; !ok {
		t.Fatal("expected property 'a' to survive round trip")
	}
}
