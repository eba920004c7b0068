package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

func (s *Store) SaveWorld(_ context.Context, w *models.World) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.worldFile(w.ID), w)
}

func (s *Store) LoadWorld(_ context.Context, worldID string) (*models.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var w models.World
	if err := readJSON(s.worldFile(worldID), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) DeleteWorld(_ context.Context, worldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.worldDir(worldID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("checking world %s: %w", worldID, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting world %s: %w", worldID, err)
	}
	return nil
}

func (s *Store) ListWorlds(_ context.Context) ([]*models.World, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	var worlds []*models.World
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var w models.World
		if err := readJSON(s.worldFile(e.Name()), &w); err != nil {
			// A stray directory without world.json is skipped, not fatal.
			s.logger.Warn("Skipping unreadable world directory", "dir", e.Name(), "error", err)
			continue
		}
		worlds = append(worlds, &w)
	}
	return worlds, nil
}
