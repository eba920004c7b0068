package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDispatchOrder(t *testing.T) {
	bus := NewBus("world-1")

	var got []string
	bus.Subscribe(KindMessage, func(ev Event) {
		got = append(got, "first:"+ev.Message.Content)
	})
	bus.Subscribe(KindMessage, func(ev Event) {
		got = append(got, "second:"+ev.Message.Content)
	})

	bus.Publish(NewMessageEvent("a", "human", "chat-1"))
	bus.Publish(NewMessageEvent("b", "human", "chat-1"))

	assert.Equal(t, []string{"first:a", "second:a", "first:b", "second:b"}, got)
}

func TestBusKindIsolation(t *testing.T) {
	bus := NewBus("world-1")

	messages := 0
	sse := 0
	bus.Subscribe(KindMessage, func(Event) { messages++ })
	bus.Subscribe(KindSSE, func(Event) { sse++ })

	bus.Publish(NewMessageEvent("hello", "human", "c1"))
	bus.Publish(NewSSEEvent("researcher", SSEChunk, "tok", "m1"))
	bus.Publish(NewSSEEvent("researcher", SSEEnd, "", "m1"))

	assert.Equal(t, 1, messages)
	assert.Equal(t, 2, sse)
}

func TestBusStampsEvents(t *testing.T) {
	bus := NewBus("world-7")

	var captured Event
	bus.Subscribe(KindMessage, func(ev Event) { captured = ev })

	returned := bus.Publish(NewMessageEvent("hi", "human", "c1"))

	require.NotEmpty(t, captured.ID)
	assert.Equal(t, "world-7", captured.WorldID)
	assert.False(t, captured.Timestamp.IsZero())
	assert.Equal(t, returned.ID, captured.ID)
	assert.Len(t, captured.Message.MessageID, 10)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus("w")

	calls := 0
	sub := bus.Subscribe(KindCRUD, func(Event) { calls++ })
	bus.Publish(NewCRUDEvent(CRUDCreate, "agent", "a1", nil))

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	bus.Publish(NewCRUDEvent(CRUDDelete, "agent", "a1", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.SubscriberCount(KindCRUD))
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus("w")

	var kinds []Kind
	subs := bus.SubscribeAll(func(ev Event) { kinds = append(kinds, ev.Kind) })
	require.Len(t, subs, 4)

	bus.Publish(NewMessageEvent("x", "human", "c"))
	bus.Publish(NewSystemEvent(SystemChatTitleUpdated, map[string]any{"chatId": "c", "title": "T"}))
	bus.Publish(NewCRUDEvent(CRUDUpdate, "world", "w", nil))

	assert.Equal(t, []Kind{KindMessage, KindSystem, KindCRUD}, kinds)
}

func TestBusPanickingSubscriberDoesNotStopDispatch(t *testing.T) {
	bus := NewBus("w")

	reached := false
	bus.Subscribe(KindMessage, func(Event) { panic("boom") })
	bus.Subscribe(KindMessage, func(Event) { reached = true })

	bus.Publish(NewMessageEvent("x", "human", "c"))

	assert.True(t, reached)
}

func TestBusConcurrentPublishers(t *testing.T) {
	bus := NewBus("w")

	var mu sync.Mutex
	seen := make(map[string]int)
	bus.Subscribe(KindMessage, func(ev Event) {
		mu.Lock()
		seen[ev.Message.MessageID]++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewMessageEvent("m", "human", "c"))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 400)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s delivered %d times", id, n)
	}
}
