// Package world hosts the runtime: world/agent/chat lifecycle, the per-world
// event bus wiring, the agent response loop, and message editing with
// resubmission. A Manager owns every loaded world and the shared services
// (storage, LLM queue, MCP registry) they run against.
package world

import (
	"sort"
	"sync"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/models"
)

// World is the runtime state of one loaded world: persisted data plus the
// hydrated agent/chat maps and the event bus. A world exclusively owns its
// agents, chats and bus.
type World struct {
	mu     sync.RWMutex
	data   models.World
	agents map[string]*models.Agent
	chats  map[string]*models.Chat
	bus    *events.Bus

	// processing serializes agent work within the world; the flag mirrors it
	// so entity mutations can fail fast without blocking.
	processMu  sync.Mutex
	processing bool

	// subscribed is set once the manager has attached the bus handlers.
	subscribed bool
	subs       []*events.Subscription

	// lastTitleEvent remembers the newest chat-title-updated title per chat;
	// the editor's title-reset rule reads it.
	lastTitleEvent map[string]string

	// serverIDs holds the MCP server ids this world registered.
	serverIDs []string
}

func newRuntimeWorld(data models.World) *World {
	return &World{
		data:           data,
		agents:         make(map[string]*models.Agent),
		chats:          make(map[string]*models.Chat),
		bus:            events.NewBus(data.ID),
		lastTitleEvent: make(map[string]string),
	}
}

// ID returns the world's normalized id.
func (w *World) ID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data.ID
}

// Data returns a copy of the persisted world record.
func (w *World) Data() models.World {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data
}

// Bus returns the world's event bus.
func (w *World) Bus() *events.Bus { return w.bus }

// IsProcessing reports whether an agent run is in flight.
func (w *World) IsProcessing() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processing
}

// beginProcessing blocks until the world's processing slot is free, then
// claims it.
func (w *World) beginProcessing() {
	w.processMu.Lock()
	w.mu.Lock()
	w.processing = true
	w.mu.Unlock()
}

func (w *World) endProcessing() {
	w.mu.Lock()
	w.processing = false
	w.mu.Unlock()
	w.processMu.Unlock()
}

// Agent returns the runtime agent by exact id.
func (w *World) Agent(agentID string) (*models.Agent, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.agents[agentID]
	return a, ok
}

// Agents returns the world's agents sorted by id. The pointers are live;
// callers mutate them only on the processing path.
func (w *World) Agents() []*models.Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*models.Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Chat returns the chat by id.
func (w *World) Chat(chatID string) (*models.Chat, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.chats[chatID]
	return c, ok
}

// Chats returns the world's chats sorted by creation time.
func (w *World) Chats() []*models.Chat {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*models.Chat, 0, len(w.chats))
	for _, c := range w.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CurrentChatID returns the active chat id.
func (w *World) CurrentChatID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data.CurrentChatID
}

// TurnsUsed sums LLM call counts across all agents.
func (w *World) TurnsUsed() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	total := 0
	for _, a := range w.agents {
		total += a.LLMCallCount
	}
	return total
}

// lastAutoTitle returns the newest auto-generated title recorded for a chat.
func (w *World) lastAutoTitle(chatID string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	title, ok := w.lastTitleEvent[chatID]
	return title, ok
}

// defaultResponder picks the agent that answers un-mentioned human messages
// when MainAgent is unset: the first agent by id.
func (w *World) defaultResponder() string {
	agents := w.Agents()
	if len(agents) == 0 {
		return ""
	}
	return agents[0].ID
}
