package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

// ValidateIntegrity checks a world's data for dangling references and legacy
// rows without rewriting anything.
func (s *Store) ValidateIntegrity(ctx context.Context, worldID string) (*storage.IntegrityReport, error) {
	w, err := s.LoadWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}
	report := &storage.IntegrityReport{WorldID: worldID, CheckedAt: time.Now().UTC()}

	if w.CurrentChatID != "" {
		if _, err := s.LoadChat(ctx, worldID, w.CurrentChatID); err != nil {
			report.Issues = append(report.Issues,
				fmt.Sprintf("current chat %s does not exist", w.CurrentChatID))
		}
	}
	if w.MainAgent != "" {
		if _, err := s.LoadAgent(ctx, worldID, w.MainAgent); err != nil {
			report.Issues = append(report.Issues,
				fmt.Sprintf("main agent %s does not exist", w.MainAgent))
		}
	}

	var orphans int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agent_memory m
		WHERE m.world_id = $1 AND m.chat_id != ''
		  AND NOT EXISTS (SELECT 1 FROM chats c WHERE c.world_id = m.world_id AND c.id = m.chat_id)`,
		worldID).Scan(&orphans)
	if err != nil {
		return nil, fmt.Errorf("counting orphaned memory of %s: %w", worldID, err)
	}
	if orphans > 0 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d memory rows reference deleted chats", orphans))
	}

	var unidentified int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_memory WHERE world_id = $1 AND message_id = ''`,
		worldID).Scan(&unidentified)
	if err != nil {
		return nil, fmt.Errorf("counting unidentified messages of %s: %w", worldID, err)
	}
	if unidentified > 0 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d memory rows lack message ids", unidentified))
	}

	report.Valid = len(report.Issues) == 0
	return report, nil
}

// RepairData fixes what ValidateIntegrity reports: backfills message ids,
// drops memory rows pointing at deleted chats, and re-points an invalid
// current chat at the most recently updated one.
func (s *Store) RepairData(ctx context.Context, worldID string) (*storage.RepairResult, error) {
	w, err := s.LoadWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}
	result := &storage.RepairResult{WorldID: worldID}

	chats, err := s.ListChats(ctx, worldID)
	if err != nil {
		return nil, err
	}
	for _, chat := range chats {
		n, err := s.MigrateMessageIDs(ctx, worldID, chat.ID)
		if err != nil {
			return nil, err
		}
		result.MessageIDsFilled += n
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_memory
		WHERE world_id = $1 AND chat_id != ''
		  AND NOT EXISTS (SELECT 1 FROM chats c WHERE c.world_id = agent_memory.world_id AND c.id = agent_memory.chat_id)`,
		worldID)
	if err != nil {
		return nil, fmt.Errorf("removing orphaned memory of %s: %w", worldID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		result.OrphansRemoved = int(n)
		result.Notes = append(result.Notes,
			fmt.Sprintf("removed %d memory rows of deleted chats", n))
	}

	if w.CurrentChatID != "" {
		if _, err := s.LoadChat(ctx, worldID, w.CurrentChatID); err != nil {
			w.CurrentChatID = latestChatID(chats)
			w.LastUpdated = time.Now().UTC()
			if err := s.SaveWorld(ctx, w); err != nil {
				return nil, err
			}
			result.CurrentChatReset = true
		}
	}
	return result, nil
}

func latestChatID(chats []*models.Chat) string {
	var id string
	var latest time.Time
	for _, c := range chats {
		if id == "" || c.UpdatedAt.After(latest) {
			id = c.ID
			latest = c.UpdatedAt
		}
	}
	return id
}
