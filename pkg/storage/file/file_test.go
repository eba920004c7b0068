package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func testWorld(id string) *models.World {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.World{
		ID:          id,
		Name:        "Test World",
		Description: "a world for tests",
		TurnLimit:   models.DefaultTurnLimit,
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func TestWorldRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadWorld(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	w := testWorld("alpha")
	require.NoError(t, s.SaveWorld(ctx, w))

	got, err := s.LoadWorld(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, w.Name, got.Name)
	assert.True(t, w.CreatedAt.Equal(got.CreatedAt))

	worlds, err := s.ListWorlds(ctx)
	require.NoError(t, err)
	require.Len(t, worlds, 1)

	require.NoError(t, s.DeleteWorld(ctx, "alpha"))
	_, err = s.LoadWorld(ctx, "alpha")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteWorld(ctx, "alpha"), storage.ErrNotFound)
}

func TestAgentRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))

	a := &models.Agent{
		ID:        "researcher",
		Name:      "Researcher",
		Provider:  models.ProviderOpenAI,
		Model:     "gpt-4o",
		AutoReply: true,
	}
	require.NoError(t, s.SaveAgent(ctx, "alpha", a))

	got, err := s.LoadAgent(ctx, "alpha", "researcher")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, got.Provider)
	assert.True(t, got.AutoReply)

	agents, err := s.ListAgents(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, agents, 1)

	require.NoError(t, s.DeleteAgent(ctx, "alpha", "researcher"))
	_, err = s.LoadAgent(ctx, "alpha", "researcher")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChatRenameIfCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))

	now := time.Now().UTC()
	chat := &models.Chat{
		ID:        "chat-1",
		WorldID:   "alpha",
		Name:      models.DefaultChatName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.SaveChat(ctx, chat))

	// Expected name matches: rename applies.
	ok, err := s.UpdateChatNameIfCurrent(ctx, "alpha", "chat-1", models.DefaultChatName, "Trip planning")
	require.NoError(t, err)
	assert.True(t, ok)

	// Name moved on since: rename is refused.
	ok, err = s.UpdateChatNameIfCurrent(ctx, "alpha", "chat-1", models.DefaultChatName, "Something else")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.LoadChat(ctx, "alpha", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", got.Name)
}

func TestMemoryAppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msgs := []models.AgentMessage{
		{MessageID: "m000000001", Role: models.RoleUser, Content: "hello", ChatID: "c1", AgentID: "a", CreatedAt: base},
		{MessageID: "m000000002", Role: models.RoleAssistant, Content: "hi there", ChatID: "c1", AgentID: "a", CreatedAt: base.Add(time.Second)},
	}
	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "a", msgs))
	require.NoError(t, s.AppendAgentMemory(ctx, "alpha", "a", []models.AgentMessage{
		{MessageID: "m000000003", Role: models.RoleUser, Content: "again", ChatID: "c1", AgentID: "a", CreatedAt: base.Add(2 * time.Second)},
	}))

	memory, err := s.LoadAgentMemory(ctx, "alpha", "a")
	require.NoError(t, err)
	require.Len(t, memory, 3)
	assert.Equal(t, "m000000003", memory[2].MessageID)

	// Tool call payloads survive the roundtrip.
	withTools := []models.AgentMessage{{
		MessageID: "m000000004",
		Role:      models.RoleAssistant,
		ChatID:    "c1",
		AgentID:   "a",
		CreatedAt: base.Add(3 * time.Second),
		ToolCalls: []models.ToolCall{{
			ID:        "call-1",
			Name:      "search",
			Arguments: map[string]any{"query": "weather"},
		}},
	}}
	require.NoError(t, s.AppendAgentMemory(ctx, "alpha", "a", withTools))
	memory, err = s.LoadAgentMemory(ctx, "alpha", "a")
	require.NoError(t, err)
	require.Len(t, memory, 4)
	require.Len(t, memory[3].ToolCalls, 1)
	assert.Equal(t, "search", memory[3].ToolCalls[0].Name)
}

func TestGetMemoryMergesAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))
	require.NoError(t, s.SaveAgent(ctx, "alpha", &models.Agent{ID: "a", Name: "A"}))
	require.NoError(t, s.SaveAgent(ctx, "alpha", &models.Agent{ID: "b", Name: "B"}))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "a", []models.AgentMessage{
		{MessageID: "shared00001", Role: models.RoleUser, Content: "hello", ChatID: "c1", AgentID: "a", CreatedAt: base},
		{MessageID: "a-reply0001", Role: models.RoleAssistant, Content: "from a", ChatID: "c1", AgentID: "a", CreatedAt: base.Add(time.Second)},
		{MessageID: "othr-chat01", Role: models.RoleUser, Content: "elsewhere", ChatID: "c2", AgentID: "a", CreatedAt: base.Add(time.Second)},
	}))
	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "b", []models.AgentMessage{
		{MessageID: "shared00001", Role: models.RoleUser, Content: "hello", ChatID: "c1", AgentID: "b", CreatedAt: base},
		{MessageID: "b-reply0001", Role: models.RoleAssistant, Content: "from b", ChatID: "c1", AgentID: "b", CreatedAt: base.Add(2 * time.Second)},
	}))

	transcript, err := s.GetMemory(ctx, "alpha", "c1")
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, "shared00001", transcript[0].MessageID)
	assert.Equal(t, "a-reply0001", transcript[1].MessageID)
	assert.Equal(t, "b-reply0001", transcript[2].MessageID)
}

func TestMigrateMessageIDsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))
	require.NoError(t, s.SaveAgent(ctx, "alpha", &models.Agent{ID: "a", Name: "A"}))

	base := time.Now().UTC()
	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "a", []models.AgentMessage{
		{Role: models.RoleUser, Content: "legacy one", ChatID: "c1", AgentID: "a", CreatedAt: base},
		{Role: models.RoleUser, Content: "legacy two", ChatID: "c1", AgentID: "a", CreatedAt: base.Add(time.Second)},
		{MessageID: "has-id00001", Role: models.RoleUser, Content: "modern", ChatID: "c1", AgentID: "a", CreatedAt: base.Add(2 * time.Second)},
	}))

	filled, err := s.MigrateMessageIDs(ctx, "alpha", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, filled)

	filled, err = s.MigrateMessageIDs(ctx, "alpha", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, filled)

	memory, err := s.LoadAgentMemory(ctx, "alpha", "a")
	require.NoError(t, err)
	for _, m := range memory {
		assert.NotEmpty(t, m.MessageID)
	}
}

func TestDeleteMemoryByChatID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))
	require.NoError(t, s.SaveAgent(ctx, "alpha", &models.Agent{ID: "a", Name: "A"}))

	base := time.Now().UTC()
	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "a", []models.AgentMessage{
		{MessageID: "keep0000001", Role: models.RoleUser, ChatID: "c1", AgentID: "a", CreatedAt: base},
		{MessageID: "drop0000001", Role: models.RoleUser, ChatID: "c2", AgentID: "a", CreatedAt: base},
		{MessageID: "keep0000002", Role: models.RoleUser, ChatID: "c1", AgentID: "a", CreatedAt: base},
	}))

	require.NoError(t, s.DeleteMemoryByChatID(ctx, "alpha", "c2"))
	memory, err := s.LoadAgentMemory(ctx, "alpha", "a")
	require.NoError(t, err)
	require.Len(t, memory, 2)
	for _, m := range memory {
		assert.Equal(t, "c1", m.ChatID)
	}
}

func TestArchiveMemoryLeavesLiveMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorld(ctx, testWorld("alpha")))
	require.NoError(t, s.SaveAgent(ctx, "alpha", &models.Agent{ID: "a", Name: "A"}))

	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "a", []models.AgentMessage{
		{MessageID: "m000000001", Role: models.RoleUser, Content: "hello", ChatID: "c1", AgentID: "a", CreatedAt: time.Now().UTC()},
	}))
	require.NoError(t, s.ArchiveMemory(ctx, "alpha", "a"))

	memory, err := s.LoadAgentMemory(ctx, "alpha", "a")
	require.NoError(t, err)
	assert.Len(t, memory, 1)

	entries, err := os.ReadDir(s.agentDir("alpha", "a"))
	require.NoError(t, err)
	archives := 0
	for _, e := range entries {
		if name := e.Name(); filepath.Ext(name) == ".json" && len(name) > 8 && name[:8] == "archive-" {
			archives++
		}
	}
	assert.Equal(t, 1, archives)
}

func TestRepairDataFixesWorld(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w := testWorld("alpha")
	w.CurrentChatID = "gone"
	require.NoError(t, s.SaveWorld(ctx, w))
	require.NoError(t, s.SaveAgent(ctx, "alpha", &models.Agent{ID: "a", Name: "A"}))

	now := time.Now().UTC()
	require.NoError(t, s.SaveChat(ctx, &models.Chat{
		ID: "c1", WorldID: "alpha", Name: models.DefaultChatName, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SaveAgentMemory(ctx, "alpha", "a", []models.AgentMessage{
		{Role: models.RoleUser, Content: "legacy", ChatID: "c1", AgentID: "a", CreatedAt: now},
		{MessageID: "orphan00001", Role: models.RoleUser, Content: "orphan", ChatID: "deleted-chat", AgentID: "a", CreatedAt: now},
	}))

	report, err := s.ValidateIntegrity(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Len(t, report.Issues, 3)

	result, err := s.RepairData(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MessageIDsFilled)
	assert.Equal(t, 1, result.OrphansRemoved)
	assert.True(t, result.CurrentChatReset)

	report, err = s.ValidateIntegrity(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, report.Valid)

	got, err := s.LoadWorld(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CurrentChatID)
}
