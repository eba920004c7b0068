package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/models"
)

// eventRecorder captures bus traffic for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func recordEvents(w *World) *eventRecorder {
	r := &eventRecorder{}
	w.Bus().SubscribeAll(func(ev events.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) messagesFrom(sender string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Kind == events.KindMessage && ev.Message.Sender == sender {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) sseTypes() []events.SSEType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.SSEType
	for _, ev := range r.events {
		if ev.Kind == events.KindSSE {
			out = append(out, ev.SSE.Type)
		}
	}
	return out
}

func (r *eventRecorder) titleUpdates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == events.KindSystem && ev.System.Action == events.SystemChatTitleUpdated {
			if title, ok := ev.System.Data["title"].(string); ok {
				out = append(out, title)
			}
		}
	}
	return out
}

func (r *eventRecorder) systemActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == events.KindSystem {
			out = append(out, ev.System.Action)
		}
	}
	return out
}

func setupConversation(t *testing.T, client llm.Client, agentNames ...string) (*Manager, *World, *eventRecorder) {
	t.Helper()
	m, _ := newTestManager(t, client)
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "conv", TurnLimit: 10})
	require.NoError(t, err)
	for _, name := range agentNames {
		_, err := m.CreateAgent(ctx, "conv", models.CreateAgentParams{
			Name: name, Provider: models.ProviderOpenAI, Model: "gpt-4o",
		})
		require.NoError(t, err)
	}
	return m, w, recordEvents(w)
}

func TestMainAgentAnswersHumanMessage(t *testing.T) {
	client := &stubClient{script: []llm.Response{
		{Kind: llm.ResponseText, Content: "hello there"},
	}}
	m, w, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	_, err := m.PublishUserMessage(ctx, "conv", "hi everyone", "human", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	reply := rec.messagesFrom("alice")[0]
	assert.Equal(t, "hello there", reply.Message.Content)
	assert.Equal(t, w.CurrentChatID(), reply.Message.ChatID)
	assert.Equal(t, []events.SSEType{events.SSEStart, events.SSEChunk, events.SSEEnd}, rec.sseTypes())

	// The human turn and the reply both land in the agent's memory.
	a, _ := w.Agent("alice")
	require.Eventually(t, func() bool {
		w.mu.RLock()
		defer w.mu.RUnlock()
		return len(a.Memory) == 2
	}, 2*time.Second, 10*time.Millisecond)
	w.mu.RLock()
	assert.Equal(t, models.RoleUser, a.Memory[0].Role)
	assert.Equal(t, models.RoleAssistant, a.Memory[1].Role)
	w.mu.RUnlock()
}

func TestMentionRestrictsAudience(t *testing.T) {
	client := &stubClient{}
	m, _, rec := setupConversation(t, client, "bob")
	ctx := context.Background()

	// alice is the main agent candidate by id order but auto-reply is off, so
	// she also stays out of the follow-up chatter.
	autoReply := false
	_, err := m.CreateAgent(ctx, "conv", models.CreateAgentParams{
		Name: "alice", Provider: models.ProviderOpenAI, Model: "gpt-4o", AutoReply: &autoReply,
	})
	require.NoError(t, err)

	_, err = m.PublishUserMessage(ctx, "conv", "@bob what do you think?", "human", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("bob")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give alice a moment to (wrongly) respond, then check she stayed silent.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.messagesFrom("alice"))
	assert.Equal(t, 1, client.callCount())
}

func TestAgentNeverAnswersItself(t *testing.T) {
	client := &stubClient{}
	m, _, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	_, err := m.PublishUserMessage(ctx, "conv", "@alice note to self", "alice", "")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	// The recorder sees the published message itself (its sender is alice);
	// what matters is that no reply follows it.
	assert.Len(t, rec.messagesFrom("alice"), 1)
	assert.Zero(t, client.callCount())
}

func TestMemoryFanOutSharesMessageIDs(t *testing.T) {
	client := &stubClient{script: []llm.Response{
		{Kind: llm.ResponseText, Content: "answer"},
	}}
	m, w, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	// Second agent with auto-reply off: it remembers but never speaks.
	autoReply := false
	_, err := m.CreateAgent(ctx, "conv", models.CreateAgentParams{
		Name: "observer", Provider: models.ProviderOpenAI, Model: "gpt-4o", AutoReply: &autoReply,
	})
	require.NoError(t, err)

	ev, err := m.PublishUserMessage(ctx, "conv", "hello", "human", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	alice, _ := w.Agent("alice")
	observer, _ := w.Agent("observer")

	require.Eventually(t, func() bool {
		w.mu.RLock()
		defer w.mu.RUnlock()
		return len(alice.Memory) == 2 && len(observer.Memory) == 2
	}, 2*time.Second, 10*time.Millisecond)

	w.mu.RLock()
	defer w.mu.RUnlock()
	// Same message id in both memories for the human turn.
	assert.Equal(t, ev.Message.MessageID, alice.Memory[0].MessageID)
	assert.Equal(t, ev.Message.MessageID, observer.Memory[0].MessageID)
	// The reply is assistant for the speaker, user for the observer.
	assert.Equal(t, models.RoleAssistant, alice.Memory[1].Role)
	assert.Equal(t, models.RoleUser, observer.Memory[1].Role)
	assert.Equal(t, alice.Memory[1].MessageID, observer.Memory[1].MessageID)
}

func TestTurnLimitStopsAgentChatter(t *testing.T) {
	client := &stubClient{}
	m, _ := newTestManager(t, client)
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "capped", TurnLimit: 2})
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob"} {
		_, err := m.CreateAgent(ctx, "capped", models.CreateAgentParams{
			Name: name, Provider: models.ProviderOpenAI, Model: "gpt-4o",
		})
		require.NoError(t, err)
	}
	rec := recordEvents(w)

	_, err = m.PublishUserMessage(ctx, "capped", "kick off", "human", "")
	require.NoError(t, err)

	// alice answers the human, bob auto-replies to alice, then the limit trips.
	require.Eventually(t, func() bool {
		for _, action := range rec.systemActions() {
			if action == "turn-limit-reached" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, client.callCount())
	assert.Equal(t, 2, w.TurnsUsed())
}

func TestToolRoundTrips(t *testing.T) {
	client := &stubClient{script: []llm.Response{
		{Kind: llm.ResponseToolCalls, ToolCalls: []models.ToolCall{
			{ID: "call-1", Name: "search__lookup", Arguments: map[string]any{"query": "weather"}},
		}},
		{Kind: llm.ResponseText, Content: "done"},
	}}
	m, w, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	_, err := m.PublishUserMessage(ctx, "conv", "look it up", "human", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "done", rec.messagesFrom("alice")[0].Message.Content)
	assert.Equal(t, 2, client.callCount())

	// The tool round stays in the agent's private memory: the unknown tool
	// produced an error result the model saw on the second call.
	alice, _ := w.Agent("alice")
	w.mu.RLock()
	defer w.mu.RUnlock()
	var toolMsgs []models.AgentMessage
	for _, msg := range alice.Memory {
		if msg.Role == models.RoleTool {
			toolMsgs = append(toolMsgs, msg)
		}
	}
	require.Len(t, toolMsgs, 1)
	assert.Equal(t, "call-1", toolMsgs[0].ToolCallID)
	assert.Contains(t, toolMsgs[0].Content, "unknown tool")
}

func TestAgentReplyMentionsBackAgentSender(t *testing.T) {
	client := &stubClient{script: []llm.Response{
		{Kind: llm.ResponseText, Content: "sounds good"},
	}}
	m, _, rec := setupConversation(t, client, "alice", "bob")
	ctx := context.Background()

	// bob addresses alice directly; alice's reply should mention bob back.
	_, err := m.PublishUserMessage(ctx, "conv", "@alice your turn", "bob", "")
	require.NoError(t, err)

	// The mention-back reply re-triggers bob and the chatter runs until the
	// turn limit, so alice may speak more than once; check her first message.
	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "@bob sounds good", rec.messagesFrom("alice")[0].Message.Content)
}
