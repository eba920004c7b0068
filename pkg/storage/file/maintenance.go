package file

import (
	"context"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

// ValidateIntegrity checks a world's files for dangling references and
// legacy rows without rewriting anything.
func (s *Store) ValidateIntegrity(ctx context.Context, worldID string) (*storage.IntegrityReport, error) {
	w, err := s.LoadWorld(ctx, worldID)
	if err != nil {
		return nil, err
	}
	report := &storage.IntegrityReport{WorldID: worldID, CheckedAt: time.Now().UTC()}

	chats, err := s.ListChats(ctx, worldID)
	if err != nil {
		return nil, err
	}
	chatIDs := make(map[string]struct{}, len(chats))
	for _, c := range chats {
		chatIDs[c.ID] = struct{}{}
	}
	if w.CurrentChatID != "" {
		if _, ok := chatIDs[w.CurrentChatID]; !ok {
			report.Issues = append(report.Issues,
				fmt.Sprintf("current chat %s does not exist", w.CurrentChatID))
		}
	}

	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return nil, err
	}
	if w.MainAgent != "" {
		found := false
		for _, a := range agents {
			if a.ID == w.MainAgent {
				found = true
				break
			}
		}
		if !found {
			report.Issues = append(report.Issues,
				fmt.Sprintf("main agent %s does not exist", w.MainAgent))
		}
	}

	orphans, unidentified := 0, 0
	s.mu.RLock()
	for _, a := range agents {
		memory, err := s.loadMemoryLocked(worldID, a.ID)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		for _, m := range memory {
			if m.MessageID == "" {
				unidentified++
			}
			if m.ChatID != "" {
				if _, ok := chatIDs[m.ChatID]; !ok {
					orphans++
				}
			}
		}
	}
	s.mu.RUnlock()

	if orphans > 0 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d memory rows reference deleted chats", orphans))
	}
	if unidentified > 0 {
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d memory rows lack message ids", unidentified))
	}
	report.Valid = len(report.Issues) == 0
	return report, nil
}

// RepairData fixes what ValidateIntegrity reports: backfills message ids,
// drops memory entries pointing at deleted chats, and re-points an invalid
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
	chatIDs := make(map[string]struct{}, len(chats))
	for _, c := range chats {
		chatIDs[c.ID] = struct{}{}
	}
	agents, err := s.ListAgents(ctx, worldID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, a := range agents {
		memory, err := s.loadMemoryLocked(worldID, a.ID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		changed := false
		kept := make([]models.AgentMessage, 0, len(memory))
		for _, m := range memory {
			if m.ChatID != "" {
				if _, ok := chatIDs[m.ChatID]; !ok {
					result.OrphansRemoved++
					changed = true
					continue
				}
			}
			if m.MessageID == "" {
				m.MessageID = models.NewMessageID()
				result.MessageIDsFilled++
				changed = true
			}
			kept = append(kept, m)
		}
		if !changed {
			continue
		}
		if err := writeJSON(s.memoryFile(worldID, a.ID), kept); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	if result.OrphansRemoved > 0 {
		result.Notes = append(result.Notes,
			fmt.Sprintf("removed %d memory rows of deleted chats", result.OrphansRemoved))
	}
	if w.CurrentChatID != "" {
		if _, ok := chatIDs[w.CurrentChatID]; !ok {
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
