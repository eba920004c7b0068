package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agent-world/agentworld/pkg/metrics"
	"github.com/agent-world/agentworld/pkg/models"
)

// ToolNameSeparator joins server and tool in the names handed to LLM
// providers; dots are not allowed in OpenAI function names.
const ToolNameSeparator = "__"

// Tool is one discovered MCP tool bound to a live server connection.
type Tool struct {
	Server      string // sanitized server name
	Name        string
	Description string
	InputSchema map[string]any // normalized

	exec func(ctx context.Context, args map[string]any) (string, error)
}

// FullName returns the provider-facing name, "server__tool".
func (t *Tool) FullName() string {
	return t.Server + ToolNameSeparator + t.Name
}

// Execute runs the tool. Arguments are remapped and coerced against the
// normalized schema before the call; connection-level failures trigger one
// reconnect-and-retry.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.exec(ctx, args)
}

// SplitToolName splits a provider-facing "server__tool" name.
func SplitToolName(full string) (server, tool string, err error) {
	idx := strings.Index(full, ToolNameSeparator)
	if idx <= 0 || idx+len(ToolNameSeparator) >= len(full) {
		return "", "", fmt.Errorf("malformed tool name %q, expected server%stool", full, ToolNameSeparator)
	}
	return full[:idx], full[idx+len(ToolNameSeparator):], nil
}

// ToolsForWorld discovers the tools of every server in a world's MCP config.
// Per-server discovery goes through the tool cache: an entry is reused iff
// its config hash matches and it is younger than the TTL. Servers that fail
// to connect or list are skipped with a warning; partial tools are better
// than none. A malformed config is rejected whole with *ConfigError.
func (r *Registry) ToolsForWorld(ctx context.Context, worldID, rawConfig string, vars map[string]string) ([]*Tool, error) {
	servers, err := ParseConfig(rawConfig)
	if err != nil {
		return nil, err
	}

	var all []*Tool
	for _, cfg := range servers {
		tools, err := r.toolsForServer(ctx, cfg, vars)
		if err != nil {
			r.logger.Warn("Failed to discover tools from MCP server",
				"server", cfg.Name, "world_id", worldID, "error", err)
			continue
		}
		all = append(all, tools...)
	}
	return all, nil
}

func (r *Registry) toolsForServer(ctx context.Context, cfg ServerConfig, vars map[string]string) ([]*Tool, error) {
	key := SanitizeName(cfg.Name)
	hash := HashConfig(cfg)

	if entry := r.cache.get(key, hash); entry != nil {
		return entry.tools, nil
	}

	client, err := r.connect(ctx, cfg, vars)
	if err != nil {
		return nil, err
	}
	sdkTools, err := client.ListTools(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	entry := &cacheEntry{
		serverName: key,
		configHash: hash,
		cachedAt:   time.Now(),
		client:     client,
	}
	for _, sdkTool := range sdkTools {
		schema, err := decodeSchema(sdkTool.InputSchema)
		if err != nil {
			r.logger.Warn("Skipping tool with undecodable schema",
				"server", cfg.Name, "tool", sdkTool.Name, "error", err)
			continue
		}
		entry.tools = append(entry.tools, r.newTool(entry, cfg, vars, sdkTool.Name, sdkTool.Description, NormalizeSchema(schema)))
	}
	r.cache.put(entry)

	r.logger.Info("MCP tools discovered",
		"server", cfg.Name, "tool_count", len(entry.tools))
	return entry.tools, nil
}

// InvalidateServer drops a server's cached tools, forcing rediscovery.
func (r *Registry) InvalidateServer(name string) {
	r.cache.invalidate(SanitizeName(name))
}

// Refresh drops and rediscovers a server's tools.
func (r *Registry) Refresh(ctx context.Context, cfg ServerConfig, vars map[string]string) ([]*Tool, error) {
	r.cache.invalidate(SanitizeName(cfg.Name))
	return r.toolsForServer(ctx, cfg, vars)
}

func (r *Registry) newTool(entry *cacheEntry, cfg ServerConfig, vars map[string]string, name, description string, schema map[string]any) *Tool {
	tool := &Tool{
		Server:      entry.serverName,
		Name:        name,
		Description: description,
		InputSchema: schema,
	}
	tool.exec = func(ctx context.Context, args map[string]any) (string, error) {
		return r.executeTool(ctx, entry, cfg, vars, tool, args)
	}
	return tool
}

func (r *Registry) executeTool(ctx context.Context, entry *cacheEntry, cfg ServerConfig, vars map[string]string, tool *Tool, args map[string]any) (string, error) {
	execID := models.NewMessageID()
	seq := r.execSeq.Add(1)
	start := time.Now()

	args = RemapDollarArgument(args, tool.InputSchema)
	args = CoerceArguments(args, tool.InputSchema)

	result, err := entry.client.CallTool(ctx, tool.Name, args)
	if err != nil && IsConnectionError(err) {
		r.logger.Warn("MCP call hit connection error, reconnecting",
			"server", cfg.Name, "tool", tool.Name, "execution_id", execID, "error", err)
		if rerr := r.reconnect(ctx, entry, cfg, vars); rerr != nil {
			metrics.ToolCalls.WithLabelValues(tool.Server, metrics.OutcomeError).Inc()
			return "", &TransportError{Server: cfg.Name, Err: rerr}
		}
		result, err = entry.client.CallTool(ctx, tool.Name, args)
		if err != nil {
			metrics.ToolCalls.WithLabelValues(tool.Server, metrics.OutcomeError).Inc()
			return "", &TransportError{Server: cfg.Name, Err: err}
		}
	} else if err != nil {
		metrics.ToolCalls.WithLabelValues(tool.Server, metrics.OutcomeError).Inc()
		return "", fmt.Errorf("calling %s.%s: %w", cfg.Name, tool.Name, err)
	}

	content := extractContent(result)
	if result.IsError {
		metrics.ToolCalls.WithLabelValues(tool.Server, metrics.OutcomeError).Inc()
		return "", &ToolError{Server: cfg.Name, Tool: tool.Name, Message: content}
	}

	metrics.ToolCalls.WithLabelValues(tool.Server, metrics.OutcomeOK).Inc()
	r.touchHealth(entry.configHash)
	r.logger.Info("MCP tool executed",
		"server", cfg.Name, "tool", tool.Name,
		"execution_id", execID, "sequence", seq,
		"duration_ms", time.Since(start).Milliseconds())
	return content, nil
}

// reconnect replaces the entry's session with a fresh one. Concurrent callers
// collapse onto a single in-flight attempt; every caller gets its outcome.
func (r *Registry) reconnect(ctx context.Context, entry *cacheEntry, cfg ServerConfig, vars map[string]string) error {
	_, err, _ := r.reconnects.Do(entry.serverName, func() (any, error) {
		fresh, err := r.connect(ctx, cfg, vars)
		if err != nil {
			metrics.Reconnects.WithLabelValues(entry.serverName, metrics.OutcomeError).Inc()
			return nil, err
		}
		entry.client.adopt(fresh)
		r.cache.refresh(entry.serverName)
		metrics.Reconnects.WithLabelValues(entry.serverName, metrics.OutcomeOK).Inc()
		r.logger.Info("MCP server reconnected", "server", cfg.Name)
		return nil, nil
	})
	return err
}

// decodeSchema converts whatever schema representation the SDK hands back
// into a plain map.
func decodeSchema(schema any) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// extractContent flattens a tool result: text parts joined by newlines, then
// structured content, then the serialized raw content as a last resort.
func extractContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	if result.StructuredContent != nil {
		if raw, err := json.Marshal(result.StructuredContent); err == nil {
			return string(raw)
		}
	}
	raw, err := json.Marshal(result.Content)
	if err != nil {
		return ""
	}
	return string(raw)
}
