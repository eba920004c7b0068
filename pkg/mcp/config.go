// Package mcp manages MCP (Model Context Protocol) servers on behalf of
// worlds: config parsing, a refcounted server registry with idle shutdown,
// tool discovery with a TTL'd cache, schema normalization for LLM-provider
// compatibility, and tool execution with automatic reconnection.
package mcp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// TransportKind selects how a server is reached.
type TransportKind string

const (
	// TransportStdio runs the server as a child process speaking stdio.
	TransportStdio TransportKind = "stdio"
	// TransportSSE connects to a server-sent-events endpoint.
	TransportSSE TransportKind = "sse"
	// TransportStreamableHTTP connects to a streamable HTTP endpoint.
	// The legacy config value "http" is an alias.
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerConfig is one parsed server entry.
type ServerConfig struct {
	Name      string
	Transport TransportKind

	// Stdio fields.
	Command string
	Args    []string
	Env     map[string]string

	// HTTP/SSE fields.
	URL     string
	Headers map[string]string
}

type rawServerEntry struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Transport string            `json:"transport"`
	Type      string            `json:"type"`
}

type rawConfig struct {
	Servers    map[string]json.RawMessage `json:"servers"`
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// ParseConfig parses a world's MCP config string. Both `servers` and
// `mcpServers` are accepted as the top-level key; unknown fields inside
// entries are ignored. Any invalid entry rejects the whole config with a
// *ConfigError. Entries come back sorted by name so iteration is stable.
func ParseConfig(raw string) ([]ServerConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var cfg rawConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("parsing json: %w", err)}
	}
	entries := cfg.Servers
	if entries == nil {
		entries = cfg.MCPServers
	}
	if len(entries) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	servers := make([]ServerConfig, 0, len(names))
	for _, name := range names {
		server, err := parseServerEntry(name, entries[name])
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func parseServerEntry(name string, raw json.RawMessage) (ServerConfig, error) {
	var entry rawServerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ServerConfig{}, fmt.Errorf("server %q: %w", name, err)
	}

	// `type` is a legacy alias for `transport`; `http` is a legacy alias
	// for `streamable-http`.
	transport := entry.Transport
	if transport == "" {
		transport = entry.Type
	}
	if transport == "http" {
		transport = string(TransportStreamableHTTP)
	}
	if transport == "" {
		if entry.Command == "" {
			return ServerConfig{}, fmt.Errorf("server %q: no transport and no command", name)
		}
		transport = string(TransportStdio)
	}

	server := ServerConfig{
		Name:      name,
		Transport: TransportKind(transport),
		Command:   entry.Command,
		Args:      entry.Args,
		Env:       entry.Env,
		URL:       entry.URL,
		Headers:   entry.Headers,
	}
	switch server.Transport {
	case TransportStdio:
		if server.Command == "" {
			return ServerConfig{}, fmt.Errorf("server %q: stdio transport requires command", name)
		}
	case TransportSSE, TransportStreamableHTTP:
		if server.URL == "" {
			return ServerConfig{}, fmt.Errorf("server %q: %s transport requires url", name, server.Transport)
		}
	default:
		return ServerConfig{}, fmt.Errorf("server %q: unsupported transport %q", name, transport)
	}
	return server, nil
}

// HashConfig derives the server's identity: SHA256 over a stable-ordered
// encoding of the connection-relevant fields. Two entries with equal hashes
// share one running instance regardless of the name they were declared under.
func HashConfig(cfg ServerConfig) string {
	h := sha256.New()
	writeField(h, "transport", string(cfg.Transport))
	writeField(h, "command", cfg.Command)
	for _, a := range cfg.Args {
		writeField(h, "arg", a)
	}
	writeSortedMap(h, "env", cfg.Env)
	writeField(h, "url", cfg.URL)
	writeSortedMap(h, "header", cfg.Headers)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s=%s\x00", key, value)
}

func writeSortedMap(w io.Writer, prefix string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(w, prefix+"."+k, m[k])
	}
}

// SanitizeName maps a declared server name onto the cache key alphabet:
// lowercase alphanumerics, dash and underscore.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
