package mcp

// NormalizeSchema rewrites a tool's input schema into the strict subset every
// supported LLM provider accepts. The output is always a fresh object:
//
//   - top level keeps only properties and required, plus a forced
//     `type: "object"` and `additionalProperties: false`
//   - each property keeps type (default "string"), description, enum, items,
//     minimum and maximum; enum/minimum/maximum survive because argument
//     coercion reads them back at call time
//   - integer collapses to number; array items collapse to {type: "string"}
//     unless already a simple type
//
// Normalizing an already-normalized schema is a no-op.
func NormalizeSchema(schema map[string]any) map[string]any {
	out := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{},
	}
	if schema == nil {
		return out
	}

	props, _ := out["properties"].(map[string]any)
	if rawProps, ok := schema["properties"].(map[string]any); ok {
		for name, rawProp := range rawProps {
			props[name] = normalizeProperty(rawProp)
		}
	}
	if required := stringSlice(schema["required"]); len(required) > 0 {
		out["required"] = required
	}
	return out
}

func normalizeProperty(rawProp any) map[string]any {
	prop, _ := rawProp.(map[string]any)

	typ := "string"
	if t, ok := prop["type"].(string); ok && t != "" {
		typ = t
	}
	if typ == "integer" {
		typ = "number"
	}

	out := map[string]any{"type": typ}
	if desc, ok := prop["description"].(string); ok {
		out["description"] = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		out["enum"] = append([]any{}, enum...)
	}
	if items, ok := prop["items"]; ok {
		out["items"] = normalizeItems(items)
	}
	if minimum, ok := prop["minimum"]; ok {
		out["minimum"] = minimum
	}
	if maximum, ok := prop["maximum"]; ok {
		out["maximum"] = maximum
	}
	return out
}

// normalizeItems collapses array item schemas to a bare simple type.
func normalizeItems(items any) map[string]any {
	if m, ok := items.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			switch t {
			case "string", "number", "boolean":
				return map[string]any{"type": t}
			case "integer":
				return map[string]any{"type": "number"}
			}
		}
	}
	return map[string]any{"type": "string"}
}

// stringSlice accepts both decoding shapes of a JSON string array.
func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return append([]string{}, vals...)
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
