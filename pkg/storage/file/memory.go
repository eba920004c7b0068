package file

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func (s *Store) memoryFile(worldID, agentID string) string {
	return filepath.Join(s.agentDir(worldID, agentID), "memory.json")
}

func (s *Store) SaveAgentMemory(_ context.Context, worldID, agentID string, memory []models.AgentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if memory == nil {
		memory = []models.AgentMessage{}
	}
	return writeJSON(s.memoryFile(worldID, agentID), memory)
}

func (s *Store) AppendAgentMemory(_ context.Context, worldID, agentID string, msgs []models.AgentMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	memory, err := s.loadMemoryLocked(worldID, agentID)
	if err != nil {
		return err
	}
	return writeJSON(s.memoryFile(worldID, agentID), append(memory, msgs...))
}

func (s *Store) LoadAgentMemory(_ context.Context, worldID, agentID string) ([]models.AgentMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadMemoryLocked(worldID, agentID)
}

// loadMemoryLocked reads an agent's memory file; a missing file is an empty
// history, not an error.
func (s *Store) loadMemoryLocked(worldID, agentID string) ([]models.AgentMessage, error) {
	var memory []models.AgentMessage
	if err := readJSON(s.memoryFile(worldID, agentID), &memory); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return memory, nil
}

// GetMemory assembles the chat transcript across all agents, backfilling
// missing message ids first.
func (s *Store) GetMemory(ctx context.Context, worldID, chatID string) ([]models.AgentMessage, error) {
	if _, err := s.MigrateMessageIDs(ctx, worldID, chatID); err != nil {
		return nil, err
	}
	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var perAgent [][]models.AgentMessage
	for _, a := range agents {
		memory, err := s.loadMemoryLocked(worldID, a.ID)
		if err != nil {
			return nil, err
		}
		perAgent = append(perAgent, storage.FilterByChat(memory, chatID))
	}
	return storage.MergeTranscript(perAgent...), nil
}

// MigrateMessageIDs backfills empty message ids for one chat across all
// agents. Returns how many were assigned; a repeated call returns 0.
func (s *Store) MigrateMessageIDs(ctx context.Context, worldID, chatID string) (int, error) {
	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, a := range agents {
		memory, err := s.loadMemoryLocked(worldID, a.ID)
		if err != nil {
			return total, err
		}
		filled := 0
		for i := range memory {
			if memory[i].ChatID == chatID && memory[i].MessageID == "" {
				memory[i].MessageID = models.NewMessageID()
				filled++
			}
		}
		if filled == 0 {
			continue
		}
		if err := writeJSON(s.memoryFile(worldID, a.ID), memory); err != nil {
			return total, err
		}
		total += filled
	}
	return total, nil
}

func (s *Store) DeleteMemoryByChatID(ctx context.Context, worldID, chatID string) error {
	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range agents {
		memory, err := s.loadMemoryLocked(worldID, a.ID)
		if err != nil {
			return err
		}
		kept := memory[:0]
		for _, m := range memory {
			if m.ChatID != chatID {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(memory) {
			continue
		}
		if err := writeJSON(s.memoryFile(worldID, a.ID), kept); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveMemory copies the agent's current memory into a timestamped archive
// file next to it. The live memory is left untouched.
func (s *Store) ArchiveMemory(_ context.Context, worldID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	memory, err := s.loadMemoryLocked(worldID, agentID)
	if err != nil {
		return err
	}
	if len(memory) == 0 {
		return nil
	}
	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	path := filepath.Join(s.agentDir(worldID, agentID), fmt.Sprintf("archive-%s.json", stamp))
	return writeJSON(path, memory)
}
