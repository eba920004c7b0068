package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func (s *Store) SaveChat(ctx context.Context, chat *models.Chat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (world_id, id, name, description, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (world_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at`,
		chat.WorldID, chat.ID, chat.Name, chat.Description,
		chat.MessageCount, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving chat %s/%s: %w", chat.WorldID, chat.ID, err)
	}
	return nil
}

func (s *Store) LoadChat(ctx context.Context, worldID, chatID string) (*models.Chat, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT world_id, id, name, description, message_count, created_at, updated_at
		FROM chats WHERE world_id = ? AND id = ?`, worldID, chatID)
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("loading chat %s/%s: %w", worldID, chatID, err)
	}
	return c, nil
}

func (s *Store) DeleteChat(ctx context.Context, worldID, chatID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chats WHERE world_id = ? AND id = ?`, worldID, chatID)
	if err != nil {
		return fmt.Errorf("deleting chat %s/%s: %w", worldID, chatID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListChats(ctx context.Context, worldID string) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT world_id, id, name, description, message_count, created_at, updated_at
		FROM chats WHERE world_id = ? ORDER BY updated_at DESC`, worldID)
	if err != nil {
		return nil, fmt.Errorf("listing chats of world %s: %w", worldID, err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// UpdateChatNameIfCurrent renames the chat only while its stored name still
// equals expect. The compare and the write happen in one statement, so a
// concurrent rename cannot slip between them.
func (s *Store) UpdateChatNameIfCurrent(ctx context.Context, worldID, chatID, expect, replace string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chats SET name = ?, updated_at = ?
		WHERE world_id = ? AND id = ? AND name = ?`,
		replace, time.Now().UTC(), worldID, chatID, expect)
	if err != nil {
		return false, fmt.Errorf("renaming chat %s/%s: %w", worldID, chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renaming chat %s/%s: %w", worldID, chatID, err)
	}
	return n > 0, nil
}

func (s *Store) SaveChatSnapshot(ctx context.Context, worldID, chatID string, snap *models.ChatSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s/%s: %w", worldID, chatID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_snapshots (world_id, chat_id, data, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (world_id, chat_id) DO UPDATE SET
			data = excluded.data,
			captured_at = excluded.captured_at`,
		worldID, chatID, string(data), snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("saving snapshot %s/%s: %w", worldID, chatID, err)
	}
	return nil
}

func (s *Store) LoadChatSnapshot(ctx context.Context, worldID, chatID string) (*models.ChatSnapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM chat_snapshots WHERE world_id = ? AND chat_id = ?`,
		worldID, chatID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("loading snapshot %s/%s: %w", worldID, chatID, err)
	}
	var snap models.ChatSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s/%s: %w", worldID, chatID, err)
	}
	return &snap, nil
}

func scanChat(r rowScanner) (*models.Chat, error) {
	var c models.Chat
	err := r.Scan(&c.WorldID, &c.ID, &c.Name, &c.Description,
		&c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
