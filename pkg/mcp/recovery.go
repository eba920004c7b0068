package mcp

import (
	"errors"
	"strings"
	"syscall"
	"time"
)

// Timeouts and limits for server lifecycle and tool calls.
const (
	// ConnectTimeout bounds transport creation plus the MCP handshake.
	ConnectTimeout = 30 * time.Second

	// OperationTimeout is the per-call deadline for CallTool and ListTools.
	// Set conservatively: some tools are legitimately slow.
	OperationTimeout = 90 * time.Second

	// PingTimeout is the health check ping deadline.
	PingTimeout = 5 * time.Second

	// IdleShutdownDelay is how long an unreferenced server instance lingers
	// before its transport is stopped. Re-registration within the window
	// aborts the shutdown.
	IdleShutdownDelay = 30 * time.Second
)

// connectionErrorKeywords is the fixed set of substrings that mark an error
// as connection-level, matched case-insensitively against the error message.
// Connection-level failures get exactly one reconnect-and-retry.
var connectionErrorKeywords = []string{
	"connection closed",
	"connection reset",
	"socket hang up",
	"broken pipe",
	"transport error",
	"cannot call write after a stream was destroyed",
	"econnreset",
	"econnrefused",
	"network connection lost",
	"read epipe",
}

// IsConnectionError reports whether err is a connection-level transport
// failure. Both the message text and, for wrapped syscall errors, the errno
// are consulted.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range connectionErrorKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.EPIPE:
			return true
		}
	}
	return false
}
