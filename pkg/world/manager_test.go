package world

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/queue"
	"github.com/agent-world/agentworld/pkg/storage"
	"github.com/agent-world/agentworld/pkg/storage/file"
)

// stubClient replays scripted responses; when the script runs out it answers
// with plain text.
type stubClient struct {
	mu      sync.Mutex
	script  []llm.Response
	calls   int
	lastReq llm.Request
}

func (s *stubClient) next(req llm.Request) *llm.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastReq = req
	if len(s.script) > 0 {
		resp := s.script[0]
		s.script = s.script[1:]
		return &resp
	}
	return &llm.Response{Kind: llm.ResponseText, Content: "ok"}
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	return s.next(req), nil
}

func (s *stubClient) Stream(_ context.Context, req llm.Request, onChunk func(llm.Chunk)) (*llm.Response, error) {
	resp := s.next(req)
	if resp.Kind == llm.ResponseText && onChunk != nil {
		onChunk(llm.Chunk{Delta: resp.Content})
	}
	return resp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, client llm.Client) (*Manager, storage.Storage) {
	t.Helper()
	logger := testLogger()

	store, err := file.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := queue.New(queue.Config{ProcessingTimeout: 5 * time.Second})
	t.Cleanup(q.Close)

	registry := mcp.NewRegistry(mcp.RegistryConfig{}, logger)
	t.Cleanup(func() { registry.ShutdownAll(context.Background()) })

	m := NewManager(Services{
		Store:    store,
		Queue:    q,
		Registry: registry,
		Clients:  func(models.Provider) (llm.Client, error) { return client, nil },
		DataDir:  t.TempDir(),
		Logger:   logger,
	})
	t.Cleanup(m.Shutdown)
	return m, store
}

func TestCreateWorldDefaults(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "My World"})
	require.NoError(t, err)

	data := w.Data()
	assert.Equal(t, "my-world", data.ID)
	assert.Equal(t, "My World", data.Name)
	assert.Equal(t, models.DefaultTurnLimit, data.TurnLimit)
	require.NotEmpty(t, data.CurrentChatID)

	chat, ok := w.Chat(data.CurrentChatID)
	require.True(t, ok)
	assert.Equal(t, models.DefaultChatName, chat.Name)
}

func TestCreateWorldDuplicate(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	_, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "dup"})
	require.NoError(t, err)

	_, err = m.CreateWorld(ctx, models.CreateWorldParams{Name: "dup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestWorldResolutionByNameAndCase(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	created, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "Trading Floor"})
	require.NoError(t, err)

	for _, ref := range []string{"trading-floor", "Trading Floor", "TRADING-FLOOR", "trading_floor"} {
		w, err := m.GetWorld(ctx, ref)
		require.NoError(t, err, "ref %q", ref)
		assert.Equal(t, created.ID(), w.ID())
	}

	_, err = m.GetWorld(ctx, "no-such-world")
	assert.ErrorIs(t, err, ErrWorldNotFound)
}

func TestWorldSurvivesManagerRestart(t *testing.T) {
	client := &stubClient{}
	logger := testLogger()
	dir := t.TempDir()

	store, err := file.Open(dir, logger)
	require.NoError(t, err)
	q := queue.New(queue.Config{ProcessingTimeout: 5 * time.Second})
	t.Cleanup(q.Close)
	registry := mcp.NewRegistry(mcp.RegistryConfig{}, logger)
	t.Cleanup(func() { registry.ShutdownAll(context.Background()) })
	services := Services{
		Store:    store,
		Queue:    q,
		Registry: registry,
		Clients:  func(models.Provider) (llm.Client, error) { return client, nil },
		DataDir:  dir,
		Logger:   logger,
	}

	ctx := context.Background()
	m1 := NewManager(services)
	_, err = m1.CreateWorld(ctx, models.CreateWorldParams{Name: "persistent"})
	require.NoError(t, err)
	_, err = m1.CreateAgent(ctx, "persistent", models.CreateAgentParams{
		Name: "helper", Provider: models.ProviderOpenAI, Model: "gpt-4o",
	})
	require.NoError(t, err)
	m1.Shutdown()

	m2 := NewManager(services)
	defer m2.Shutdown()
	w, err := m2.GetWorld(ctx, "persistent")
	require.NoError(t, err)
	agents := w.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "helper", agents[0].ID)
	assert.NotEmpty(t, w.CurrentChatID())
}

func TestCreateAgentDefaults(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	_, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "w"})
	require.NoError(t, err)

	a, err := m.CreateAgent(ctx, "w", models.CreateAgentParams{
		Name: "Data Analyst", Provider: models.ProviderAnthropic, Model: "claude-sonnet-4-5",
	})
	require.NoError(t, err)
	assert.Equal(t, "data-analyst", a.ID)
	assert.True(t, a.AutoReply)
	assert.Equal(t, models.AgentStatusActive, a.Status)

	_, err = m.CreateAgent(ctx, "w", models.CreateAgentParams{
		Name: "data analyst", Provider: models.ProviderAnthropic, Model: "claude-sonnet-4-5",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMutationsRejectedWhileProcessing(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "busy"})
	require.NoError(t, err)
	_, err = m.CreateAgent(ctx, "busy", models.CreateAgentParams{
		Name: "worker", Provider: models.ProviderOpenAI, Model: "gpt-4o",
	})
	require.NoError(t, err)

	w.beginProcessing()
	defer w.endProcessing()

	_, err = m.CreateAgent(ctx, "busy", models.CreateAgentParams{
		Name: "another", Provider: models.ProviderOpenAI, Model: "gpt-4o",
	})
	assert.ErrorIs(t, err, ErrWorldProcessing)

	_, err = m.UpdateAgent(ctx, "busy", "worker", models.UpdateAgentParams{})
	assert.ErrorIs(t, err, ErrWorldProcessing)

	err = m.DeleteAgent(ctx, "busy", "worker")
	assert.ErrorIs(t, err, ErrWorldProcessing)

	err = m.ClearAgentMemory(ctx, "busy", "worker")
	assert.ErrorIs(t, err, ErrWorldProcessing)
}

func TestClearAgentMemoryResetsCallCount(t *testing.T) {
	m, store := newTestManager(t, &stubClient{})
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "w"})
	require.NoError(t, err)
	a, err := m.CreateAgent(ctx, "w", models.CreateAgentParams{
		Name: "bot", Provider: models.ProviderOpenAI, Model: "gpt-4o",
	})
	require.NoError(t, err)

	chatID := w.CurrentChatID()
	w.mu.Lock()
	a.LLMCallCount = 3
	a.Memory = []models.AgentMessage{{
		MessageID: models.NewMessageID(), Role: models.RoleUser,
		Content: "hi", ChatID: chatID, CreatedAt: time.Now(),
	}}
	w.mu.Unlock()
	require.NoError(t, store.SaveAgentMemory(ctx, w.ID(), a.ID, a.Memory))

	require.NoError(t, m.ClearAgentMemory(ctx, "w", "bot"))

	assert.Zero(t, a.LLMCallCount)
	assert.Empty(t, a.Memory)
	mem, err := store.LoadAgentMemory(ctx, w.ID(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, mem)
}

func TestNewChatReusesEmptyDefault(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "w"})
	require.NoError(t, err)
	first := w.CurrentChatID()

	chat, err := m.NewChat(ctx, "w", models.NewChatParams{})
	require.NoError(t, err)
	assert.Equal(t, first, chat.ID, "empty default chat should be reused")

	named, err := m.NewChat(ctx, "w", models.NewChatParams{Name: "planning"})
	require.NoError(t, err)
	assert.NotEqual(t, first, named.ID)
	assert.Equal(t, named.ID, w.CurrentChatID())
}

func TestDeleteChatRepointsCurrent(t *testing.T) {
	m, _ := newTestManager(t, &stubClient{})
	ctx := context.Background()

	w, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "w"})
	require.NoError(t, err)
	first := w.CurrentChatID()

	second, err := m.NewChat(ctx, "w", models.NewChatParams{Name: "second"})
	require.NoError(t, err)
	require.Equal(t, second.ID, w.CurrentChatID())

	require.NoError(t, m.DeleteChat(ctx, "w", second.ID))
	assert.Equal(t, first, w.CurrentChatID(), "current chat falls back to the survivor")

	// Deleting the last chat leaves the world with a fresh default chat.
	require.NoError(t, m.DeleteChat(ctx, "w", first))
	current := w.CurrentChatID()
	require.NotEmpty(t, current)
	chat, ok := w.Chat(current)
	require.True(t, ok)
	assert.Equal(t, models.DefaultChatName, chat.Name)
}

func TestDeleteWorldWithoutHydration(t *testing.T) {
	m, store := newTestManager(t, &stubClient{})
	ctx := context.Background()

	_, err := m.CreateWorld(ctx, models.CreateWorldParams{Name: "doomed"})
	require.NoError(t, err)
	m.Shutdown() // drop the runtime copy; delete must work from storage alone

	require.NoError(t, m.DeleteWorld(ctx, "doomed"))
	_, err = store.LoadWorld(ctx, "doomed")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = m.DeleteWorld(ctx, "doomed")
	assert.ErrorIs(t, err, ErrWorldNotFound)
}
