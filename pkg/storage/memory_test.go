package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agent-world/agentworld/pkg/models"
)

func TestMergeTranscript(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := func(id string, offset int) models.AgentMessage {
		return models.AgentMessage{
			MessageID: id,
			Role:      models.RoleUser,
			Content:   "content-" + id,
			CreatedAt: base.Add(time.Duration(offset) * time.Second),
		}
	}

	tests := []struct {
		name     string
		perAgent [][]models.AgentMessage
		wantIDs  []string
	}{
		{
			name:     "empty",
			perAgent: nil,
			wantIDs:  nil,
		},
		{
			name: "single agent keeps insertion order",
			perAgent: [][]models.AgentMessage{
				{msg("a", 0), msg("b", 1), msg("c", 2)},
			},
			wantIDs: []string{"a", "b", "c"},
		},
		{
			name: "interleaves two agents by creation time",
			perAgent: [][]models.AgentMessage{
				{msg("a", 0), msg("c", 2)},
				{msg("b", 1), msg("d", 3)},
			},
			wantIDs: []string{"a", "b", "c", "d"},
		},
		{
			name: "drops duplicate ids keeping the first",
			perAgent: [][]models.AgentMessage{
				{msg("a", 0), msg("shared", 1)},
				{msg("shared", 1), msg("b", 2)},
			},
			wantIDs: []string{"a", "shared", "b"},
		},
		{
			name: "same timestamp preserves per-agent order",
			perAgent: [][]models.AgentMessage{
				{msg("first", 5), msg("second", 5)},
			},
			wantIDs: []string{"first", "second"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTranscript(tt.perAgent...)
			var ids []string
			for _, m := range got {
				ids = append(ids, m.MessageID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestEnsureMessageIDs(t *testing.T) {
	msgs := []models.AgentMessage{
		{MessageID: "existing", Content: "a"},
		{Content: "b"},
		{Content: "c"},
	}

	filled := EnsureMessageIDs(msgs)
	assert.Equal(t, 2, filled)
	assert.Equal(t, "existing", msgs[0].MessageID)
	assert.Len(t, msgs[1].MessageID, models.MessageIDLength)
	assert.Len(t, msgs[2].MessageID, models.MessageIDLength)

	// Second pass has nothing left to assign.
	assert.Equal(t, 0, EnsureMessageIDs(msgs))
}

func TestFilterByChat(t *testing.T) {
	msgs := []models.AgentMessage{
		{MessageID: "1", ChatID: "chat-a"},
		{MessageID: "2", ChatID: "chat-b"},
		{MessageID: "3", ChatID: "chat-a"},
	}
	got := FilterByChat(msgs, "chat-a")
	assert.Len(t, got, 2)
	assert.Equal(t, "1", got[0].MessageID)
	assert.Equal(t, "3", got[1].MessageID)
	assert.Empty(t, FilterByChat(msgs, "chat-z"))
}
