package providers

import "testing"

func TestCleanSchemaForProviderNilReturnsEmptyObjectSchema(t *testing.T) {
	got := CleanSchemaForProvider("openai", nil)
	if got["type"] != "object" {
		t.Fatalf("expected object type for nil schema, got %v", got)
	}
	props, ok := got["properties"].(map[string]interface{})
	if !ok || len(props) != 0 {
		t.Fatalf("expected empty properties map, got %v", got["properties"])
	}
}

func TestCleanSchemaForProviderPassesThroughForNonGemini(t *testing.T) {
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"$schema":              "http://json-schema.org/draft-07/schema#",
	}
	got := CleanSchemaForProvider("openai", schema)
	if got["additionalProperties"] != false {
		t.Fatal("expected additionalProperties preserved for non-Gemini providers")
	}
	if got["$schema"] == nil {
		t.Fatal("expected $schema preserved for non-Gemini providers")
	}
}

func TestCleanSchemaForProviderStripsUnsupportedGeminiKeys(t *testing.T) {
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"const":                "fixed",
		"examples":             []interface{}{"a"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	}
	got := CleanSchemaForProvider("gemini", schema)
	for _, key := range []string{"additionalProperties", "$schema", "const", "examples"} {
		if _, present := got[key]; present {
			t.Fatalf("expected %q stripped for gemini, still present: %v", key, got)
		}
	}
	if got["type"] != "object" {
		t.Fatal("expected supported keys preserved")
	}
	props, ok := got["properties"].(map[string]interface{})
	if !ok || props["name"] == nil {
		t.Fatalf("expected nested properties preserved, got %v", got["properties"])
	}
}

func TestCleanSchemaForProviderRecursesIntoNestedObjectsAndArrays(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"items": map[string]interface{}{
				"type": "array",
				"items": []interface{}{
					map[string]interface{}{"const": "x", "type": "string"},
				},
			},
		},
	}
	got := CleanSchemaForProvider("google", schema)
	props := got["properties"].(map[string]interface{})
	items := props["items"].(map[string]interface{})
	arr := items["items"].([]interface{})
	elem := arr[0].(map[string]interface{})
	if _, present := elem["const"]; present {
		t.Fatalf("expected const stripped from nested array element, got %v", elem)
	}
	if elem["type"] != "string" {
		t.Fatalf("expected type preserved on nested array element, got %v", elem)
	}
}

func TestIsGeminiLikeRecognizesBothNames(t *testing.T) {
	if !isGeminiLike("gemini") || !isGeminiLike("google") {
		t.Fatal("expected both 'gemini' and 'google' to be recognized")
	}
	if isGeminiLike("openai") {
		t.Fatal("expected 'openai' to not be recognized as gemini-like")
	}
}

func TestCleanToolSchemasRendersFunctionShape(t *testing.T) {
	tools := []ToolDefinition{
		{
			Type: "function",
			Function: ToolFunctionSchema{
				Name:        "read_file",
				Description: "reads a file",
				Parameters: map[string]interface{}{
					"type":                 "object",
					"additionalProperties": false,
				},
			},
		},
	}
	out := CleanToolSchemas("gemini", tools)
	if len(out) != 1 {
		t.Fatalf("expected one rendered tool, got %d", len(out))
	}
	fn, ok := out[0]["function"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a function map, got %v", out[0])
	}
	if fn["name"] != "read_file" || fn["description"] != "reads a file" {
		t.Fatalf("unexpected function fields: %v", fn)
	}
	params, ok := fn["parameters"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected cleaned parameters map, got %v", fn["parameters"])
	}
	if _, present := params["additionalProperties"]; present {
		t.Fatal("expected additionalProperties stripped for gemini in rendered tool")
	}
}
