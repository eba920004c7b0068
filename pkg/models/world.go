// Package models defines the core domain entities shared across the runtime:
// worlds, agents, chats, and the persisted message record.
package models

import "time"

// DefaultChatName is the title given to freshly created chats. A chat carrying
// this title is considered reusable while it has no messages, and the message
// editor resets auto-generated titles back to it.
const DefaultChatName = "New Chat"

// DefaultTurnLimit bounds aggregate LLM calls per world when a world is
// created without an explicit limit.
const DefaultTurnLimit = 5

// World is the persisted configuration of an isolated agent namespace.
// Runtime-only state (event bus, processing flag, hydrated maps) lives on
// world.World, not here.
type World struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// TurnLimit caps the sum of all agents' LLM call counts; once reached,
	// agents stop responding until a memory clear or a new chat.
	TurnLimit int `json:"turnLimit"`

	// MainAgent names the agent that answers un-mentioned human messages.
	// Empty means unset.
	MainAgent string `json:"mainAgent,omitempty"`

	// ChatLLMProvider and ChatLLMModel select the model used for ancillary
	// calls such as chat title generation.
	ChatLLMProvider Provider `json:"chatLLMProvider,omitempty"`
	ChatLLMModel    string   `json:"chatLLMModel,omitempty"`

	// MCPConfig is the opaque JSON document describing this world's MCP
	// servers. Parsed on demand; a parse failure leaves the world toolless.
	MCPConfig string `json:"mcpConfig,omitempty"`

	// Variables holds .env-style text. Parsed entries are overlaid onto the
	// environment of stdio MCP servers started for this world.
	Variables string `json:"variables,omitempty"`

	CurrentChatID string    `json:"currentChatId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// CreateWorldParams carries the caller-supplied fields for world creation.
// ID is derived from Name unless set explicitly.
type CreateWorldParams struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	TurnLimit       int      `json:"turnLimit,omitempty"`
	MainAgent       string   `json:"mainAgent,omitempty"`
	ChatLLMProvider Provider `json:"chatLLMProvider,omitempty"`
	ChatLLMModel    string   `json:"chatLLMModel,omitempty"`
	MCPConfig       string   `json:"mcpConfig,omitempty"`
	Variables       string   `json:"variables,omitempty"`
}

// UpdateWorldParams carries partial updates. Nil fields are left unchanged;
// pointer fields distinguish "clear" from "keep".
type UpdateWorldParams struct {
	Name            *string   `json:"name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	TurnLimit       *int      `json:"turnLimit,omitempty"`
	MainAgent       *string   `json:"mainAgent,omitempty"`
	ChatLLMProvider *Provider `json:"chatLLMProvider,omitempty"`
	ChatLLMModel    *string   `json:"chatLLMModel,omitempty"`
	MCPConfig       *string   `json:"mcpConfig,omitempty"`
	Variables       *string   `json:"variables,omitempty"`
	CurrentChatID   *string   `json:"currentChatId,omitempty"`
}

// Apply copies the set fields of p onto w and stamps LastUpdated.
func (p UpdateWorldParams) Apply(w *World, now time.Time) {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Description != nil {
		w.Description = *p.Description
	}
	if p.TurnLimit != nil && *p.TurnLimit >= 1 {
		w.TurnLimit = *p.TurnLimit
	}
	if p.MainAgent != nil {
		w.MainAgent = *p.MainAgent
	}
	if p.ChatLLMProvider != nil {
		w.ChatLLMProvider = *p.ChatLLMProvider
	}
	if p.ChatLLMModel != nil {
		w.ChatLLMModel = *p.ChatLLMModel
	}
	if p.MCPConfig != nil {
		w.MCPConfig = *p.MCPConfig
	}
	if p.Variables != nil {
		w.Variables = *p.Variables
	}
	if p.CurrentChatID != nil {
		w.CurrentChatID = *p.CurrentChatID
	}
	w.LastUpdated = now
}
