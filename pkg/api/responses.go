package api

import (
	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/queue"
)

// MessageResponse is returned by POST /api/v1/worlds/:world/messages.
type MessageResponse struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	EventID   string `json:"eventId"`
	Status    string `json:"status"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Checks      map[string]HealthCheck `json:"checks"`
	Queue       queue.Status           `json:"queue"`
	MCPServers  []mcp.InstanceStatus   `json:"mcpServers,omitempty"`
	Connections int                    `json:"connections"`
}

// ClearQueueResponse is returned by POST /api/v1/queue/clear.
type ClearQueueResponse struct {
	Cleared int `json:"cleared"`
}
