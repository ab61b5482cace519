package providers

// CleanSchemaForProvider adapts one JSON Schema tool-parameter map to the
// dialect a specific provider's function-calling API accepts. The standard
// library's encoding/json round-trips arbitrary maps fine; the cleanup here
// is about the providers rejecting schema keywords their validators don't
// understand, not about serialization.
func CleanSchemaForProvider(providerName string, params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	cleaned := cleanSchemaNode(providerName, params)
	out, ok := cleaned.(map[string]interface{})
	if !ok {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return out
}

// CleanToolSchemas renders a tool list into the provider's wire format,
// cleaning each tool's parameter schema along the way.
func CleanToolSchemas(providerName string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(providerName, t.Function.Parameters),
			},
		})
	}
	return out
}

// schemaKeysUnsupportedByGemini lists JSON Schema keywords Gemini's function
// declaration parser rejects outright when present anywhere in the tree.
var schemaKeysUnsupportedByGemini = map[string]bool{
	"$schema":              true,
	"additionalProperties": true,
	"const":                true,
	"examples":             true,
}

func cleanSchemaNode(providerName string, node interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			if isGeminiLike(providerName) && schemaKeysUnsupportedByGemini[k] {
				continue
			}
			out[k] = cleanSchemaNode(providerName, val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = cleanSchemaNode(providerName, val)
		}
		return out
	default:
		return v
	}
}

func isGeminiLike(providerName string) bool {
	return providerName == "gemini" || providerName == "google"
}
