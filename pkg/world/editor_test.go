package world

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/models"
)

func TestEditUserMessageTruncatesAcrossAgents(t *testing.T) {
	client := &stubClient{script: []llm.Response{
		{Kind: llm.ResponseText, Content: "first answer"},
		{Kind: llm.ResponseText, Content: "second answer"},
		{Kind: llm.ResponseText, Content: "edited answer"},
	}}
	m, w, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	// A silent observer shares the transcript.
	autoReply := false
	_, err := m.CreateAgent(ctx, "conv", models.CreateAgentParams{
		Name: "scribe", Provider: models.ProviderOpenAI, Model: "gpt-4o", AutoReply: &autoReply,
	})
	require.NoError(t, err)

	_, err = m.PublishUserMessage(ctx, "conv", "question one", "human", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	second, err := m.PublishUserMessage(ctx, "conv", "question two", "human", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	result, err := m.EditUserMessage(ctx, "conv", "", second.Message.MessageID, "question two, edited")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalAgents)
	assert.ElementsMatch(t, []string{"alice", "scribe"}, result.ProcessedAgents)
	assert.Empty(t, result.FailedAgents)
	// Question two and its answer, in both agents' memories.
	assert.Equal(t, 4, result.MessagesRemovedTotal)
	assert.Equal(t, ResubmissionSuccess, result.ResubmissionStatus)
	require.NotEmpty(t, result.NewMessageID)
	assert.NotEqual(t, second.Message.MessageID, result.NewMessageID)

	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "edited answer", rec.messagesFrom("alice")[2].Message.Content)

	alice, _ := w.Agent("alice")
	require.Eventually(t, func() bool {
		w.mu.RLock()
		defer w.mu.RUnlock()
		// question one, first answer, edited question, edited answer
		return len(alice.Memory) == 4
	}, 2*time.Second, 10*time.Millisecond)
	w.mu.RLock()
	assert.Equal(t, "question one", alice.Memory[0].Content)
	assert.Equal(t, "first answer", alice.Memory[1].Content)
	assert.Equal(t, "question two, edited", alice.Memory[2].Content)
	assert.Equal(t, result.NewMessageID, alice.Memory[2].MessageID)
	w.mu.RUnlock()
}

func TestEditNonexistentMessageMutatesNothing(t *testing.T) {
	client := &stubClient{}
	m, w, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	_, err := m.PublishUserMessage(ctx, "conv", "hello", "human", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	alice, _ := w.Agent("alice")
	w.mu.RLock()
	before := len(alice.Memory)
	w.mu.RUnlock()

	result, err := m.EditUserMessage(ctx, "conv", "", "does-not-ex", "replacement")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Zero(t, result.MessagesRemovedTotal)
	assert.Equal(t, ResubmissionSkipped, result.ResubmissionStatus)
	assert.Empty(t, result.NewMessageID)

	w.mu.RLock()
	assert.Len(t, alice.Memory, before)
	w.mu.RUnlock()

	// The failed lookup lands in the world's edit-error log.
	raw, err := os.ReadFile(filepath.Join(m.dataDir, "worlds", w.ID(), "edit-errors.json"))
	require.NoError(t, err)
	var entries []editError
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "does-not-ex", entries[0].MessageID)
	assert.Equal(t, "locate", entries[0].Stage)
}

func TestEditResetsAutoGeneratedTitle(t *testing.T) {
	client := &stubClient{script: []llm.Response{
		{Kind: llm.ResponseText, Content: "sounds like a fun trip"},
		{Kind: llm.ResponseText, Content: "Trip to Osaka"},
	}}
	m, _ := newTestManager(t, client)
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{
		Name:            "travel",
		TurnLimit:       10,
		ChatLLMProvider: models.ProviderOpenAI,
		ChatLLMModel:    "gpt-4o-mini",
	})
	require.NoError(t, err)
	_, err = m.CreateAgent(ctx, "travel", models.CreateAgentParams{
		Name: "guide", Provider: models.ProviderOpenAI, Model: "gpt-4o",
	})
	require.NoError(t, err)
	rec := recordEvents(w)
	chatID := w.CurrentChatID()

	first, err := m.PublishUserMessage(ctx, "travel", "help me plan a trip to Osaka", "human", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		chat, ok := w.Chat(chatID)
		return ok && chat.Name == "Trip to Osaka"
	}, 2*time.Second, 10*time.Millisecond)

	result, err := m.EditUserMessage(ctx, "travel", "", first.Message.MessageID, "help me plan a trip to Kyoto")
	require.NoError(t, err)
	require.True(t, result.Success)

	// The reset is announced after the generated title, in order.
	titles := rec.titleUpdates()
	require.GreaterOrEqual(t, len(titles), 2)
	assert.Equal(t, "Trip to Osaka", titles[0])
	assert.Equal(t, models.DefaultChatName, titles[1])
}

func TestEditKeepsManualTitle(t *testing.T) {
	client := &stubClient{}
	m, w, rec := setupConversation(t, client, "alice")
	ctx := context.Background()

	first, err := m.PublishUserMessage(ctx, "conv", "hello", "human", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(rec.messagesFrom("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A manually renamed chat has no generated-title trail; the edit leaves
	// the name alone.
	chatID := w.CurrentChatID()
	w.mu.Lock()
	w.chats[chatID].Name = "My Notes"
	w.mu.Unlock()

	result, err := m.EditUserMessage(ctx, "conv", "", first.Message.MessageID, "hello again")
	require.NoError(t, err)
	require.True(t, result.Success)

	chat, ok := w.Chat(chatID)
	require.True(t, ok)
	assert.Equal(t, "My Notes", chat.Name)
}
