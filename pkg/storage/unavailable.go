package storage

import (
	"context"
	"fmt"

	"github.com/agent-world/agentworld/pkg/models"
)

// Unavailable returns a Storage whose every operation fails with
// ErrUnavailable wrapping cause. Open falls back to it when a backend cannot
// initialize, so the runtime still starts and the failure surfaces on first
// use instead of at boot.
func Unavailable(cause error) Storage {
	return &unavailable{cause: cause}
}

type unavailable struct {
	cause error
}

func (u *unavailable) err() error {
	if u.cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, u.cause)
}

func (u *unavailable) SaveWorld(context.Context, *models.World) error { return u.err() }
func (u *unavailable) LoadWorld(context.Context, string) (*models.World, error) {
	return nil, u.err()
}
func (u *unavailable) DeleteWorld(context.Context, string) error { return u.err() }
func (u *unavailable) ListWorlds(context.Context) ([]*models.World, error) {
	return nil, u.err()
}

func (u *unavailable) SaveAgent(context.Context, string, *models.Agent) error { return u.err() }
func (u *unavailable) LoadAgent(context.Context, string, string) (*models.Agent, error) {
	return nil, u.err()
}
func (u *unavailable) DeleteAgent(context.Context, string, string) error { return u.err() }
func (u *unavailable) ListAgents(context.Context, string) ([]*models.Agent, error) {
	return nil, u.err()
}

func (u *unavailable) SaveChat(context.Context, *models.Chat) error { return u.err() }
func (u *unavailable) LoadChat(context.Context, string, string) (*models.Chat, error) {
	return nil, u.err()
}
func (u *unavailable) DeleteChat(context.Context, string, string) error { return u.err() }
func (u *unavailable) ListChats(context.Context, string) ([]*models.Chat, error) {
	return nil, u.err()
}
func (u *unavailable) UpdateChatNameIfCurrent(context.Context, string, string, string, string) (bool, error) {
	return false, u.err()
}

func (u *unavailable) SaveChatSnapshot(context.Context, string, string, *models.ChatSnapshot) error {
	return u.err()
}
func (u *unavailable) LoadChatSnapshot(context.Context, string, string) (*models.ChatSnapshot, error) {
	return nil, u.err()
}

func (u *unavailable) SaveAgentMemory(context.Context, string, string, []models.AgentMessage) error {
	return u.err()
}
func (u *unavailable) AppendAgentMemory(context.Context, string, string, []models.AgentMessage) error {
	return u.err()
}
func (u *unavailable) LoadAgentMemory(context.Context, string, string) ([]models.AgentMessage, error) {
	return nil, u.err()
}
func (u *unavailable) GetMemory(context.Context, string, string) ([]models.AgentMessage, error) {
	return nil, u.err()
}
func (u *unavailable) MigrateMessageIDs(context.Context, string, string) (int, error) {
	return 0, u.err()
}
func (u *unavailable) DeleteMemoryByChatID(context.Context, string, string) error { return u.err() }
func (u *unavailable) ArchiveMemory(context.Context, string, string) error        { return u.err() }

func (u *unavailable) ValidateIntegrity(context.Context, string) (*IntegrityReport, error) {
	return nil, u.err()
}
func (u *unavailable) RepairData(context.Context, string) (*RepairResult, error) {
	return nil, u.err()
}

func (u *unavailable) Close() error { return nil }
