package models

import "time"

// Chat is a named conversation thread within a world. Agent memory is
// partitioned by chat id.
type Chat struct {
	ID           string    `json:"id"`
	WorldID      string    `json:"worldId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// NewChatParams carries the optional fields for chat creation.
type NewChatParams struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// CaptureSnapshot requests a full world snapshot alongside the chat.
	CaptureSnapshot bool `json:"captureSnapshot,omitempty"`
}

// ChatSnapshot is a point-in-time capture of a chat's world: the world
// configuration, the agent configurations, and the chat-scoped messages.
// Stored by the chat CRUD so a chat can be inspected or restored after the
// live world has moved on.
type ChatSnapshot struct {
	World      World          `json:"world"`
	Agents     []Agent        `json:"agents"`
	Messages   []AgentMessage `json:"messages"`
	CapturedAt time.Time      `json:"capturedAt"`
}
