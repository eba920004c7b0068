package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/events"
)

// wsMessage is the envelope the test decodes server frames into; it covers
// both protocol messages and bridged world events.
type wsMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`

	Kind    events.Kind `json:"kind"`
	WorldID string      `json:"worldId"`
	// Message holds an events.MessagePayload for bridged world events but a
	// plain string for protocol error frames, so it is decoded on demand.
	Message json.RawMessage `json:"message"`
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg wsMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeWS(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestWebSocketStreamsWorldEvents(t *testing.T) {
	s := newTestServer(t)
	setupMessageWorld(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	established := readWS(t, conn)
	assert.Equal(t, "connection.established", established.Type)

	writeWS(t, conn, ClientMessage{Action: "subscribe", Channel: "world:talk"})
	confirmed := readWS(t, conn)
	require.Equal(t, "subscription.confirmed", confirmed.Type)
	assert.Equal(t, "world:talk", confirmed.Channel)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/worlds/talk/messages", SendMessageRequest{Content: "stream me"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The first bridged frame is the published user message; agent sse and
	// reply frames follow on the same channel.
	var got wsMessage
	for {
		got = readWS(t, conn)
		if got.Kind == events.KindMessage {
			break
		}
	}
	assert.Equal(t, "talk", got.WorldID)
	require.NotNil(t, got.Message)
	var payload events.MessagePayload
	require.NoError(t, json.Unmarshal(got.Message, &payload))
	assert.Equal(t, "stream me", payload.Content)
	assert.Equal(t, "human", payload.Sender)
}

func TestWebSocketSubscribeUnknownWorld(t *testing.T) {
	s := newTestServer(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readWS(t, conn) // connection.established

	writeWS(t, conn, ClientMessage{Action: "subscribe", Channel: "world:missing"})
	msg := readWS(t, conn)
	assert.Equal(t, "subscription.error", msg.Type)
	assert.Equal(t, "world:missing", msg.Channel)
}

func TestWebSocketPing(t *testing.T) {
	s := newTestServer(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readWS(t, conn) // connection.established

	writeWS(t, conn, ClientMessage{Action: "ping"})
	msg := readWS(t, conn)
	assert.Equal(t, "pong", msg.Type)
}

func TestWebSocketUnsubscribeDetachesBridge(t *testing.T) {
	s := newTestServer(t)
	setupMessageWorld(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readWS(t, conn) // connection.established

	writeWS(t, conn, ClientMessage{Action: "subscribe", Channel: "world:talk"})
	readWS(t, conn) // subscription.confirmed
	require.Equal(t, 1, s.connManager.subscriberCount("world:talk"))

	writeWS(t, conn, ClientMessage{Action: "unsubscribe", Channel: "world:talk"})
	require.Eventually(t, func() bool {
		return s.connManager.subscriberCount("world:talk") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Events published after the unsubscribe no longer reach the client.
	_, err := s.manager.PublishUserMessage(context.Background(), "talk", "after unsubscribe", "human", "")
	require.NoError(t, err)

	writeWS(t, conn, ClientMessage{Action: "ping"})
	msg := readWS(t, conn)
	assert.Equal(t, "pong", msg.Type)
}
