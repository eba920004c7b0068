package config

import (
	"os"
	"strings"
)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references in raw config
// bytes before YAML parsing. An unset variable without a default expands to
// the empty string; validation catches required fields left empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		return ""
	}))
}
