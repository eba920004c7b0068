package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
)

// Bus is a per-world event bus. One Bus is created per runtime world and
// lives for as long as the world stays hydrated.
type Bus struct {
	worldID string

	// pubMu serializes publishes so that a single publisher's events reach
	// subscribers in emission order even when dispatch itself suspends.
	pubMu sync.Mutex

	// subMu guards the subscriber lists. Held only while mutating or
	// snapshotting them, never across handler invocations.
	subMu  sync.Mutex
	nextID int
	subs   map[Kind][]*Subscription
}

// NewBus creates a bus for the given world.
func NewBus(worldID string) *Bus {
	return &Bus{
		worldID: worldID,
		subs:    make(map[Kind][]*Subscription),
	}
}

// WorldID returns the owning world's id.
func (b *Bus) WorldID() string { return b.worldID }

// Handler receives dispatched events. Handlers run on the publisher's
// goroutine; long-running work must be deferred by the handler itself.
type Handler func(ev Event)

// Subscription is a handle for one registered handler.
type Subscription struct {
	id      int
	kind    Kind
	handler Handler
	bus     *Bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	b := s.bus
	b.subMu.Lock()
	defer b.subMu.Unlock()
	list := b.subs[s.kind]
	for i, sub := range list {
		if sub.id == s.id {
			b.subs[s.kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	s.bus = nil
}

// Subscribe registers a handler for one event kind. Handlers are invoked in
// registration order.
func (b *Bus) Subscribe(kind Kind, h Handler) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, kind: kind, handler: h, bus: b}
	b.subs[kind] = append(b.subs[kind], sub)
	return sub
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) []*Subscription {
	kinds := []Kind{KindMessage, KindSSE, KindSystem, KindCRUD}
	subs := make([]*Subscription, 0, len(kinds))
	for _, k := range kinds {
		subs = append(subs, b.Subscribe(k, h))
	}
	return subs
}

// SubscriberCount returns how many handlers are registered for a kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return len(b.subs[kind])
}

// Publish stamps the event (id, world id, timestamp if unset) and delivers
// it synchronously to all subscribers of its kind, in registration order.
// The stamped event is returned so callers can reference the assigned id.
func (b *Bus) Publish(ev Event) Event {
	if ev.ID == "" {
		ev.ID = models.NewMessageID()
	}
	ev.WorldID = b.worldID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.subMu.Lock()
	list := make([]*Subscription, len(b.subs[ev.Kind]))
	copy(list, b.subs[ev.Kind])
	b.subMu.Unlock()

	for _, sub := range list {
		b.dispatch(sub, ev)
	}
	return ev
}

// dispatch invokes one handler, recovering panics so a broken subscriber
// cannot take down the publisher.
func (b *Bus) dispatch(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event subscriber panicked",
				"world_id", b.worldID, "kind", ev.Kind, "panic", r)
		}
	}()
	sub.handler(ev)
}

var _ Publisher = (*Bus)(nil)

// NewMessageEvent builds a message event with a fresh message id.
func NewMessageEvent(content, sender, chatID string) Event {
	return Event{
		Kind: KindMessage,
		Message: &MessagePayload{
			Content:   content,
			Sender:    sender,
			ChatID:    chatID,
			MessageID: models.NewMessageID(),
		},
	}
}

// NewSSEEvent builds a streaming notification event.
func NewSSEEvent(agentName string, typ SSEType, content, messageID string) Event {
	return Event{
		Kind: KindSSE,
		SSE: &SSEPayload{
			AgentName: agentName,
			Type:      typ,
			Content:   content,
			MessageID: messageID,
		},
	}
}

// NewSystemEvent builds a system notification event.
func NewSystemEvent(action string, data map[string]any) Event {
	return Event{
		Kind:   KindSystem,
		System: &SystemPayload{Action: action, Data: data},
	}
}

// NewCRUDEvent builds an entity lifecycle event.
func NewCRUDEvent(op CRUDOp, entity, id string, data any) Event {
	return Event{
		Kind: KindCRUD,
		CRUD: &CRUDPayload{Operation: op, Entity: entity, ID: id, Data: data},
	}
}
