package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func (s *Store) SaveChat(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.chatFile(chat.WorldID, chat.ID), chat)
}

func (s *Store) LoadChat(_ context.Context, worldID, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadChatLocked(worldID, chatID)
}

func (s *Store) loadChatLocked(worldID, chatID string) (*models.Chat, error) {
	var c models.Chat
	if err := readJSON(s.chatFile(worldID, chatID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeleteChat(_ context.Context, worldID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.chatFile(worldID, chatID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("deleting chat %s/%s: %w", worldID, chatID, err)
	}
	// The snapshot goes with the chat.
	if err := os.Remove(s.snapshotFile(worldID, chatID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to delete chat snapshot",
			"world_id", worldID, "chat_id", chatID, "error", err)
	}
	return nil
}

func (s *Store) ListChats(_ context.Context, worldID string) ([]*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := filepath.Join(s.worldDir(worldID), "chats")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing chats of world %s: %w", worldID, err)
	}
	var chats []*models.Chat
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var c models.Chat
		if err := readJSON(filepath.Join(dir, e.Name()), &c); err != nil {
			s.logger.Warn("Skipping unreadable chat file",
				"world_id", worldID, "file", e.Name(), "error", err)
			continue
		}
		chats = append(chats, &c)
	}
	return chats, nil
}

// UpdateChatNameIfCurrent renames the chat only while its stored name still
// equals expect. The exclusive lock makes the read-compare-write atomic.
func (s *Store) UpdateChatNameIfCurrent(_ context.Context, worldID, chatID, expect, replace string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadChatLocked(worldID, chatID)
	if err != nil {
		return false, err
	}
	if c.Name != expect {
		return false, nil
	}
	c.Name = replace
	c.UpdatedAt = time.Now().UTC()
	if err := writeJSON(s.chatFile(worldID, chatID), c); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SaveChatSnapshot(_ context.Context, worldID, chatID string, snap *models.ChatSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.snapshotFile(worldID, chatID), snap)
}

func (s *Store) LoadChatSnapshot(_ context.Context, worldID, chatID string) (*models.ChatSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap models.ChatSnapshot
	if err := readJSON(s.snapshotFile(worldID, chatID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
