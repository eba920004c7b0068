package mcp

import (
	"sort"
	"strconv"
	"strings"
)

// RemapDollarArgument handles the Ollama quirk where a model emits arguments
// as exactly {"$": value}. The "$" key is substituted with the first required
// property, falling back to the first declared property. Anything else passes
// through untouched.
func RemapDollarArgument(args map[string]any, schema map[string]any) map[string]any {
	if len(args) != 1 {
		return args
	}
	value, ok := args["$"]
	if !ok {
		return args
	}

	target := firstProperty(schema)
	if target == "" {
		return args
	}
	return map[string]any{target: value}
}

func firstProperty(schema map[string]any) string {
	if required := stringSlice(schema["required"]); len(required) > 0 {
		return required[0]
	}
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return ""
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

// CoerceArguments validates model-produced arguments against the normalized
// schema and repairs the recurring provider quirks: a bare string where an
// array is expected gets wrapped, numeric strings are parsed, null values for
// non-required parameters are dropped, and enum values are matched
// case-insensitively with invalid values dropped so server-side defaults
// apply. Always returns a fresh map.
func CoerceArguments(args map[string]any, schema map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	for _, name := range stringSlice(schema["required"]) {
		required[name] = true
	}

	for key, value := range args {
		prop, ok := props[key].(map[string]any)
		if !ok {
			out[key] = value
			continue
		}
		if value == nil {
			if required[key] {
				out[key] = nil
			}
			continue
		}

		switch prop["type"] {
		case "array":
			if s, ok := value.(string); ok {
				value = []any{s}
			}
		case "number":
			if s, ok := value.(string); ok {
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					value = f
				}
			}
		}

		if enum, ok := prop["enum"].([]any); ok {
			matched, keep := matchEnum(value, enum)
			if !keep {
				continue
			}
			value = matched
		}
		out[key] = value
	}
	return out
}

// matchEnum resolves value against the enum, case-insensitively for strings.
// The canonical enum spelling wins. Returns keep=false when the value matches
// nothing, so the argument is dropped.
func matchEnum(value any, enum []any) (any, bool) {
	s, isString := value.(string)
	for _, candidate := range enum {
		if candidate == value {
			return candidate, true
		}
		if cs, ok := candidate.(string); ok && isString && strings.EqualFold(cs, s) {
			return cs, true
		}
	}
	return nil, false
}
