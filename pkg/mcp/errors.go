package mcp

import "fmt"

// ConfigError reports a rejected MCP configuration. One invalid server entry
// rejects the whole config; the world then proceeds without tools.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid mcp config: %v", e.Err) }

func (e *ConfigError) Unwrap() error { return e.Err }

// ToolError is an error reported by the tool itself (isError result). The
// server is healthy; the call is not retried.
type ToolError struct {
	Server  string
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s.%s failed: %s", e.Server, e.Tool, e.Message)
}

// TransportError is a connection-level failure that survived the one
// permitted reconnect attempt.
type TransportError struct {
	Server string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp server %s transport failure: %v", e.Server, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
