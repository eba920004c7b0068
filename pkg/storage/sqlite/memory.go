package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

const memoryColumns = `agent_id, seq, message_id, role, content, sender,
	chat_id, tool_calls, tool_call_id, created_at`

// SaveAgentMemory replaces the agent's entire history in one transaction.
func (s *Store) SaveAgentMemory(ctx context.Context, worldID, agentID string, memory []models.AgentMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning memory save for %s/%s: %w", worldID, agentID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM agent_memory WHERE world_id = ? AND agent_id = ?`,
		worldID, agentID); err != nil {
		return fmt.Errorf("clearing memory of %s/%s: %w", worldID, agentID, err)
	}
	if err := insertMemory(ctx, tx, worldID, agentID, 0, memory); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendAgentMemory adds messages after the agent's current history.
func (s *Store) AppendAgentMemory(ctx context.Context, worldID, agentID string, msgs []models.AgentMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning memory append for %s/%s: %w", worldID, agentID, err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM agent_memory WHERE world_id = ? AND agent_id = ?`,
		worldID, agentID).Scan(&next)
	if err != nil {
		return fmt.Errorf("finding memory tail of %s/%s: %w", worldID, agentID, err)
	}
	if err := insertMemory(ctx, tx, worldID, agentID, next, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMemory(ctx context.Context, tx *sql.Tx, worldID, agentID string, from int, msgs []models.AgentMessage) error {
	for i, m := range msgs {
		toolCalls, err := encodeToolCalls(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls of %s: %w", m.MessageID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO agent_memory (world_id, `+memoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			worldID, agentID, from+i, m.MessageID, string(m.Role), m.Content,
			m.Sender, m.ChatID, toolCalls, m.ToolCallID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting memory row %d of %s/%s: %w", from+i, worldID, agentID, err)
		}
	}
	return nil
}

func (s *Store) LoadAgentMemory(ctx context.Context, worldID, agentID string) ([]models.AgentMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM agent_memory
		WHERE world_id = ? AND agent_id = ? ORDER BY seq`,
		worldID, agentID)
	if err != nil {
		return nil, fmt.Errorf("loading memory of %s/%s: %w", worldID, agentID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetMemory assembles the chat transcript across all agents. Legacy rows
// missing message ids are backfilled first so the transcript can be
// de-duplicated by id.
func (s *Store) GetMemory(ctx context.Context, worldID, chatID string) ([]models.AgentMessage, error) {
	if _, err := s.MigrateMessageIDs(ctx, worldID, chatID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM agent_memory
		WHERE world_id = ? AND chat_id = ? ORDER BY agent_id, seq`,
		worldID, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading chat memory %s/%s: %w", worldID, chatID, err)
	}
	defer rows.Close()

	all, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	var perAgent [][]models.AgentMessage
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].AgentID == all[i].AgentID {
			j++
		}
		perAgent = append(perAgent, all[i:j])
		i = j
	}
	return storage.MergeTranscript(perAgent...), nil
}

// MigrateMessageIDs backfills empty message ids for one chat. Returns how
// many rows were updated; a repeated call finds nothing left and returns 0.
func (s *Store) MigrateMessageIDs(ctx context.Context, worldID, chatID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning id migration for %s/%s: %w", worldID, chatID, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT agent_id, seq FROM agent_memory
		WHERE world_id = ? AND chat_id = ? AND message_id = ''`,
		worldID, chatID)
	if err != nil {
		return 0, fmt.Errorf("finding unidentified messages of %s/%s: %w", worldID, chatID, err)
	}
	type rowKey struct {
		agentID string
		seq     int
	}
	var keys []rowKey
	for rows.Next() {
		var k rowKey
		if err := rows.Scan(&k.agentID, &k.seq); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning message key: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `
			UPDATE agent_memory SET message_id = ?
			WHERE world_id = ? AND agent_id = ? AND seq = ?`,
			models.NewMessageID(), worldID, k.agentID, k.seq); err != nil {
			return 0, fmt.Errorf("assigning message id: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *Store) DeleteMemoryByChatID(ctx context.Context, worldID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_memory WHERE world_id = ? AND chat_id = ?`,
		worldID, chatID)
	if err != nil {
		return fmt.Errorf("deleting chat memory %s/%s: %w", worldID, chatID, err)
	}
	return nil
}

// ArchiveMemory stores a JSON snapshot of the agent's current memory. The
// live memory is left untouched.
func (s *Store) ArchiveMemory(ctx context.Context, worldID, agentID string) error {
	memory, err := s.LoadAgentMemory(ctx, worldID, agentID)
	if err != nil {
		return err
	}
	if len(memory) == 0 {
		return nil
	}
	data, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("encoding archive of %s/%s: %w", worldID, agentID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_archives (world_id, agent_id, archived_at, data)
		VALUES (?, ?, ?, ?)`,
		worldID, agentID, time.Now().UTC(), string(data))
	if err != nil {
		return fmt.Errorf("archiving memory of %s/%s: %w", worldID, agentID, err)
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]models.AgentMessage, error) {
	var msgs []models.AgentMessage
	for rows.Next() {
		var m models.AgentMessage
		var seq int
		var role string
		var toolCalls sql.NullString
		err := rows.Scan(&m.AgentID, &seq, &m.MessageID, &role, &m.Content,
			&m.Sender, &m.ChatID, &toolCalls, &m.ToolCallID, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		m.Role = models.Role(role)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls of %s: %w", m.MessageID, err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func encodeToolCalls(calls []models.ToolCall) (any, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
