package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func (s *Store) SaveAgent(_ context.Context, worldID string, a *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.agentDir(worldID, a.ID), "config.json"), a)
}

func (s *Store) LoadAgent(_ context.Context, worldID, agentID string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var a models.Agent
	if err := readJSON(filepath.Join(s.agentDir(worldID, agentID), "config.json"), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) DeleteAgent(_ context.Context, worldID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.agentDir(worldID, agentID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("checking agent %s/%s: %w", worldID, agentID, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting agent %s/%s: %w", worldID, agentID, err)
	}
	return nil
}

func (s *Store) ListAgents(_ context.Context, worldID string) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := filepath.Join(s.worldDir(worldID), "agents")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing agents of world %s: %w", worldID, err)
	}
	var agents []*models.Agent
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var a models.Agent
		if err := readJSON(filepath.Join(dir, e.Name(), "config.json"), &a); err != nil {
			s.logger.Warn("Skipping unreadable agent directory",
				"world_id", worldID, "dir", e.Name(), "error", err)
			continue
		}
		agents = append(agents, &a)
	}
	return agents, nil
}
