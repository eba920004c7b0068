package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/world"
)

// worldChannelPrefix namespaces WebSocket channels; clients subscribe to
// "world:<id>" to receive that world's bus events.
const worldChannelPrefix = "world:"

// ClientMessage is a message received from a WebSocket client.
type ClientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

// ChannelListener attaches an upstream event source when a channel gains its
// first subscriber and detaches it when the last one leaves.
type ChannelListener interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

// ConnectionManager tracks WebSocket connections and their channel
// subscriptions, and fans bus events out to subscribers.
type ConnectionManager struct {
	// Active connections: connection id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Channel subscriptions: channel → set of connection ids
	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	listener     ChannelListener
	writeTimeout time.Duration
}

// Connection is a single WebSocket client.
//
// subscriptions is accessed without a lock: all reads and writes happen on
// the goroutine that owns the connection (HandleConnection's read loop and
// its deferred cleanup).
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a manager fed by the given listener.
func NewConnectionManager(listener ChannelListener, writeTimeout time.Duration) *ConnectionManager {
	m := &ConnectionManager{
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		listener:     listener,
		writeTimeout: writeTimeout,
	}
	if b, ok := listener.(*worldBridge); ok {
		b.setBroadcast(m.Broadcast)
	}
	return m
}

// HandleConnection manages the lifecycle of one WebSocket connection. Called
// by the WebSocket HTTP handler after upgrade; blocks until the connection
// closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(ctx, c, &msg)
	}
}

// Broadcast sends a payload to every connection subscribed to the channel.
func (m *ConnectionManager) Broadcast(channel string, payload []byte) {
	m.channelMu.RLock()
	connIDs, exists := m.channels[channel]
	if !exists {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(connIDs))
	for id := range connIDs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	// Snapshot connection pointers, then send without holding any lock so a
	// slow client cannot stall register/unregister.
	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := m.sendRaw(conn, payload); err != nil {
			slog.Warn("Failed to send to WebSocket client",
				"connection_id", conn.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of open WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll cancels every connection. Used on server shutdown.
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.cancel()
		_ = c.Conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// subscriberCount returns the number of subscribers for a channel.
// Unexported, used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		if err := m.subscribe(ctx, c, msg.Channel); err != nil {
			m.sendJSON(c, map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": err.Error(),
			})
			return
		}
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

// subscribe registers a connection for a channel. The first subscriber
// attaches the upstream listener synchronously, so by the time the client
// sees subscription.confirmed, events are already flowing.
func (m *ConnectionManager) subscribe(ctx context.Context, c *Connection, channel string) error {
	m.channelMu.Lock()
	needsListen := false
	if _, exists := m.channels[channel]; !exists {
		m.channels[channel] = make(map[string]bool)
		needsListen = true
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()

	if needsListen && m.listener != nil {
		if err := m.listener.Subscribe(ctx, channel); err != nil {
			m.cleanupFailedChannel(c, channel)
			return err
		}
	}

	c.subscriptions[channel] = true
	return nil
}

// cleanupFailedChannel removes all subscribers from a channel after a failed
// listener attach. Connections that subscribed concurrently saw the channel
// entry already existed and skipped the attach; they received
// subscription.confirmed for a channel that never went live, so they are
// notified with subscription.error here.
func (m *ConnectionManager) cleanupFailedChannel(triggering *Connection, channel string) {
	m.channelMu.Lock()
	affectedIDs := make([]string, 0, len(m.channels[channel]))
	for connID := range m.channels[channel] {
		if connID != triggering.ID {
			affectedIDs = append(affectedIDs, connID)
		}
	}
	delete(m.channels, channel)
	m.channelMu.Unlock()

	if len(affectedIDs) == 0 {
		return
	}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(affectedIDs))
	for _, id := range affectedIDs {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		slog.Warn("Removing orphaned subscriber after failed channel attach",
			"connection_id", conn.ID, "channel", channel)
		m.sendJSON(conn, map[string]string{
			"type":    "subscription.error",
			"channel": channel,
			"message": "channel attach failed; subscription removed",
		})
	}
}

// unsubscribe removes a connection from a channel and detaches the upstream
// listener when the last subscriber leaves.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.channelMu.Lock()
	lastLeft := false
	if subs, exists := m.channels[channel]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
			lastLeft = true
		}
	}
	m.channelMu.Unlock()

	if lastLeft && m.listener != nil {
		if err := m.listener.Unsubscribe(context.Background(), channel); err != nil {
			slog.Warn("Failed to detach channel listener", "channel", channel, "error", err)
		}
	}
	delete(c.subscriptions, channel)
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

// worldBridge attaches WebSocket channels to world event buses. Subscribing
// to "world:<id>" registers a bus handler that serializes every event of
// that world and broadcasts it on the channel.
type worldBridge struct {
	manager   *world.Manager
	broadcast func(channel string, payload []byte)

	mu   sync.Mutex
	subs map[string][]*events.Subscription
}

func newWorldBridge(manager *world.Manager) *worldBridge {
	return &worldBridge{
		manager: manager,
		subs:    make(map[string][]*events.Subscription),
	}
}

func (b *worldBridge) setBroadcast(fn func(channel string, payload []byte)) {
	b.broadcast = fn
}

// Subscribe resolves the channel's world and attaches a bus handler.
func (b *worldBridge) Subscribe(ctx context.Context, channel string) error {
	ref, ok := strings.CutPrefix(channel, worldChannelPrefix)
	if !ok || ref == "" {
		return &world.NotFoundError{Kind: "world", Ref: channel}
	}

	w, err := b.manager.GetWorld(ctx, ref)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, attached := b.subs[channel]; attached {
		return nil
	}
	b.subs[channel] = w.Bus().SubscribeAll(func(ev events.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("Failed to marshal world event",
				"world_id", ev.WorldID, "kind", ev.Kind, "error", err)
			return
		}
		b.broadcast(channel, payload)
	})
	return nil
}

// Unsubscribe detaches the channel's bus handler.
func (b *worldBridge) Unsubscribe(_ context.Context, channel string) error {
	b.mu.Lock()
	subs := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}
