// Package events provides the per-world event bus: a typed, in-process
// publish/subscribe mechanism carrying the four event kinds the runtime
// produces (message, sse, system, crud).
//
// Dispatch is synchronous and ordered: events published by a single
// publisher reach every subscriber in emission order, and subscribers of a
// kind are invoked in registration order. The API layer bridges bus events
// onto WebSocket channels; the persistence and activity listeners hang off
// the same bus.
package events

import (
	"time"

	"github.com/agent-world/agentworld/pkg/models"
)

// Kind discriminates the event union.
type Kind string

const (
	// KindMessage is a conversational message within a world's chat.
	KindMessage Kind = "message"
	// KindSSE is a streaming notification for one agent's LLM call.
	KindSSE Kind = "sse"
	// KindSystem is an out-of-band runtime notification (e.g. title updates).
	KindSystem Kind = "system"
	// KindCRUD announces entity lifecycle changes.
	KindCRUD Kind = "crud"
)

// SSEType is the phase of a streaming LLM call.
type SSEType string

const (
	SSEStart SSEType = "start"
	SSEChunk SSEType = "chunk"
	SSEEnd   SSEType = "end"
	SSEError SSEType = "error"
)

// CRUDOp is the operation of a crud event.
type CRUDOp string

const (
	CRUDCreate CRUDOp = "create"
	CRUDUpdate CRUDOp = "update"
	CRUDDelete CRUDOp = "delete"
)

// SystemChatTitleUpdated is the system-event action recorded when a chat
// title is generated or changed. The message editor reads this trail to
// decide whether a title was auto-generated.
const SystemChatTitleUpdated = "chat-title-updated"

// Event is the tagged union published on a world's bus. Exactly one payload
// pointer is set, matching Kind.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	WorldID   string    `json:"worldId"`
	Timestamp time.Time `json:"timestamp"`

	Message *MessagePayload `json:"message,omitempty"`
	SSE     *SSEPayload     `json:"sse,omitempty"`
	System  *SystemPayload  `json:"system,omitempty"`
	CRUD    *CRUDPayload    `json:"crud,omitempty"`
}

// MessagePayload carries a chat message.
type MessagePayload struct {
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

// SSEPayload carries one streaming notification.
type SSEPayload struct {
	AgentName string        `json:"agentName"`
	Type      SSEType       `json:"type"`
	Content   string        `json:"content,omitempty"`
	MessageID string        `json:"messageId"`
	Error     string        `json:"error,omitempty"`
	Usage     *models.Usage `json:"usage,omitempty"`
}

// SystemPayload carries an opaque runtime notification.
type SystemPayload struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// CRUDPayload announces an entity change.
type CRUDPayload struct {
	Operation CRUDOp `json:"operation"`
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	Data      any    `json:"data,omitempty"`
}

// Publisher is the subset of Bus that producers need. It decouples the API
// bridge and supporting services from the concrete bus.
type Publisher interface {
	Publish(ev Event) Event
}
