// Package storage defines the pluggable persistence interface for worlds,
// agents, chats and per-chat agent memory, plus helpers shared by the
// backends. Concrete backends live in the sqlite, postgres and file
// subpackages.
package storage

import (
	"context"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
)

// Backend selects a storage implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendFile     Backend = "file"
)

// IsValid checks if the backend name is known.
func (b Backend) IsValid() bool {
	return b == BackendSQLite || b == BackendPostgres || b == BackendFile
}

// Storage is the backend-agnostic persistence contract. All methods are safe
// for concurrent use. Reads of missing entities return ErrNotFound; a backend
// that failed to initialize returns ErrUnavailable from every method.
type Storage interface {
	// Worlds
	SaveWorld(ctx context.Context, w *models.World) error
	LoadWorld(ctx context.Context, worldID string) (*models.World, error)
	DeleteWorld(ctx context.Context, worldID string) error
	ListWorlds(ctx context.Context) ([]*models.World, error)

	// Agents
	SaveAgent(ctx context.Context, worldID string, a *models.Agent) error
	LoadAgent(ctx context.Context, worldID, agentID string) (*models.Agent, error)
	DeleteAgent(ctx context.Context, worldID, agentID string) error
	ListAgents(ctx context.Context, worldID string) ([]*models.Agent, error)

	// Chats. SaveChat upserts. UpdateChatNameIfCurrent renames the chat only
	// while its name still equals expect, and reports whether it applied.
	SaveChat(ctx context.Context, chat *models.Chat) error
	LoadChat(ctx context.Context, worldID, chatID string) (*models.Chat, error)
	DeleteChat(ctx context.Context, worldID, chatID string) error
	ListChats(ctx context.Context, worldID string) ([]*models.Chat, error)
	UpdateChatNameIfCurrent(ctx context.Context, worldID, chatID, expect, replace string) (bool, error)

	// Chat snapshots
	SaveChatSnapshot(ctx context.Context, worldID, chatID string, snap *models.ChatSnapshot) error
	LoadChatSnapshot(ctx context.Context, worldID, chatID string) (*models.ChatSnapshot, error)

	// Agent memory. SaveAgentMemory replaces the agent's entire history;
	// AppendAgentMemory adds to it preserving insertion order.
	SaveAgentMemory(ctx context.Context, worldID, agentID string, memory []models.AgentMessage) error
	AppendAgentMemory(ctx context.Context, worldID, agentID string, msgs []models.AgentMessage) error
	LoadAgentMemory(ctx context.Context, worldID, agentID string) ([]models.AgentMessage, error)

	// GetMemory returns the chat transcript: the union of all agents'
	// messages for the chat, in insertion order, de-duplicated by message id.
	// Legacy rows missing message ids are backfilled (MigrateMessageIDs)
	// before the transcript is returned.
	GetMemory(ctx context.Context, worldID, chatID string) ([]models.AgentMessage, error)

	// MigrateMessageIDs assigns fresh 10-char tokens to chat messages that
	// lack one and returns how many were assigned. Idempotent: a second call
	// returns 0.
	MigrateMessageIDs(ctx context.Context, worldID, chatID string) (int, error)

	DeleteMemoryByChatID(ctx context.Context, worldID, chatID string) error

	// ArchiveMemory snapshots the agent's current memory into the archive
	// area. It does not clear the live memory.
	ArchiveMemory(ctx context.Context, worldID, agentID string) error

	// Maintenance
	ValidateIntegrity(ctx context.Context, worldID string) (*IntegrityReport, error)
	RepairData(ctx context.Context, worldID string) (*RepairResult, error)

	Close() error
}

// IntegrityReport describes consistency problems found in a world's data.
type IntegrityReport struct {
	WorldID   string    `json:"worldId"`
	Valid     bool      `json:"valid"`
	Issues    []string  `json:"issues,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// RepairResult describes what RepairData fixed.
type RepairResult struct {
	WorldID          string   `json:"worldId"`
	MessageIDsFilled int      `json:"messageIdsFilled"`
	OrphansRemoved   int      `json:"orphansRemoved"`
	CurrentChatReset bool     `json:"currentChatReset"`
	Notes            []string `json:"notes,omitempty"`
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend Backend `yaml:"backend"`

	// RootDir is the data directory: the sqlite database file and the file
	// backend's world tree live under it, and the message editor keeps its
	// per-world edit-error logs there regardless of backend.
	RootDir string `yaml:"root_dir"`

	// Postgres connection settings, used when Backend is "postgres".
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}
