package api

import "github.com/agent-world/agentworld/pkg/models"

// maxMessageLength caps user message content accepted over HTTP.
const maxMessageLength = 32 * 1024

// SendMessageRequest is the body of POST /api/v1/worlds/:world/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// EditMessageRequest is the body of PATCH /api/v1/worlds/:world/messages/:id.
type EditMessageRequest struct {
	Content string `json:"content"`
	ChatID  string `json:"chatId,omitempty"`
}

// UpdateMemoryRequest is the body of PUT .../agents/:agent/memory.
type UpdateMemoryRequest struct {
	Memory []models.AgentMessage `json:"memory"`
}
