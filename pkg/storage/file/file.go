// Package file implements storage.Storage on a plain directory tree of JSON
// documents:
//
//	<root>/worlds/<worldID>/world.json
//	<root>/worlds/<worldID>/agents/<agentID>/config.json
//	<root>/worlds/<worldID>/agents/<agentID>/memory.json
//	<root>/worlds/<worldID>/agents/<agentID>/archive-<timestamp>.json
//	<root>/worlds/<worldID>/chats/<chatID>.json
//	<root>/worlds/<worldID>/snapshots/<chatID>.json
//
// Writes go through a temp file and rename, so readers never observe a
// partial document. A single lock serializes access; the backend favors
// inspectability over throughput.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/agent-world/agentworld/pkg/storage"
)

// Store is the directory-tree storage implementation.
type Store struct {
	root   string
	logger *slog.Logger

	mu sync.RWMutex
}

var _ storage.Storage = (*Store)(nil)

// Open prepares the directory tree under rootDir.
func Open(rootDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := filepath.Join(rootDir, "worlds")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &Store{root: root, logger: logger.With("component", "storage.file")}
	s.logger.Info("File storage ready", "root", root)
	return s, nil
}

// Close is a no-op; files are flushed on every write.
func (s *Store) Close() error { return nil }

func (s *Store) worldDir(worldID string) string {
	return filepath.Join(s.root, worldID)
}

func (s *Store) worldFile(worldID string) string {
	return filepath.Join(s.worldDir(worldID), "world.json")
}

func (s *Store) agentDir(worldID, agentID string) string {
	return filepath.Join(s.worldDir(worldID), "agents", agentID)
}

func (s *Store) chatFile(worldID, chatID string) string {
	return filepath.Join(s.worldDir(worldID), "chats", chatID+".json")
}

func (s *Store) snapshotFile(worldID, chatID string) string {
	return filepath.Join(s.worldDir(worldID), "snapshots", chatID+".json")
}

// writeJSON atomically replaces path with the indented JSON encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSON decodes path into v, mapping a missing file to ErrNotFound.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
