package world

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

// maxEditErrors bounds the per-world edit-error log.
const maxEditErrors = 100

// RemovalResult reports what a message edit removed and whether the edited
// content was resubmitted.
type RemovalResult struct {
	Success              bool     `json:"success"`
	TotalAgents          int      `json:"totalAgents"`
	ProcessedAgents      []string `json:"processedAgents,omitempty"`
	FailedAgents         []string `json:"failedAgents,omitempty"`
	MessagesRemovedTotal int      `json:"messagesRemovedTotal"`
	ResubmissionStatus   string   `json:"resubmissionStatus"`
	NewMessageID         string   `json:"newMessageId,omitempty"`
}

// Resubmission statuses.
const (
	ResubmissionSuccess = "success"
	ResubmissionFailed  = "failed"
	ResubmissionSkipped = "skipped"
)

// editError is one entry of the per-world edit-error log.
type editError struct {
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
}

// EditUserMessage rewrites chat history from an edited message onward: stop
// any in-flight processing for the chat, truncate every agent's memory at the
// edited message, undo an auto-generated title, then resubmit the new content
// as a fresh message. Partial failures are reported per agent and logged to
// the world's edit-error file.
func (m *Manager) EditUserMessage(ctx context.Context, worldRef, chatID, messageID, newContent string) (*RemovalResult, error) {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	worldID := w.ID()
	if chatID == "" {
		chatID = w.CurrentChatID()
	} else if _, ok := w.Chat(chatID); !ok {
		return nil, &NotFoundError{Kind: "chat", Ref: chatID}
	}

	if m.control.Stop(worldID, chatID) {
		m.logger.Info("Stopped in-flight processing for edit",
			"world_id", worldID, "chat_id", chatID)
	}

	result := m.removeMessagesFrom(ctx, w, chatID, messageID)
	if !result.Success {
		result.ResubmissionStatus = ResubmissionSkipped
		return result, nil
	}

	m.resetAutoTitle(ctx, w, chatID)
	m.resyncMemory(ctx, w, result)

	m.subscribeWorld(w)

	ev := w.bus.Publish(events.NewMessageEvent(newContent, "human", chatID))
	result.ResubmissionStatus = ResubmissionSuccess
	result.NewMessageID = ev.Message.MessageID

	m.logger.Info("Message edited and resubmitted",
		"world_id", worldID, "chat_id", chatID,
		"removed", result.MessagesRemovedTotal, "new_message_id", result.NewMessageID)
	return result, nil
}

// removeMessagesFrom truncates every agent's memory for the chat at the
// edited message. Two passes: find the earliest timestamp any agent recorded
// for the message, then drop that chat's entries at or after the cutoff.
// An unknown message id mutates nothing.
func (m *Manager) removeMessagesFrom(ctx context.Context, w *World, chatID, messageID string) *RemovalResult {
	worldID := w.ID()
	agents := w.Agents()
	result := &RemovalResult{TotalAgents: len(agents)}

	var cutoff time.Time
	found := false
	w.mu.RLock()
	for _, a := range agents {
		for _, msg := range a.Memory {
			if msg.MessageID == messageID && msg.ChatID == chatID {
				if !found || msg.CreatedAt.Before(cutoff) {
					cutoff = msg.CreatedAt
					found = true
				}
			}
		}
	}
	w.mu.RUnlock()
	if !found {
		m.recordEditError(worldID, editError{
			Timestamp: time.Now().UTC(),
			ChatID:    chatID,
			MessageID: messageID,
			Stage:     "locate",
			Error:     "message not found in any agent memory",
		})
		return result
	}

	for _, a := range agents {
		w.mu.Lock()
		kept := make([]models.AgentMessage, 0, len(a.Memory))
		removed := 0
		for _, msg := range a.Memory {
			if msg.ChatID == chatID && !msg.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, msg)
		}
		a.Memory = kept
		w.mu.Unlock()

		if err := m.store.SaveAgentMemory(ctx, worldID, a.ID, kept); err != nil {
			result.FailedAgents = append(result.FailedAgents, a.ID)
			m.recordEditError(worldID, editError{
				Timestamp: time.Now().UTC(),
				ChatID:    chatID,
				MessageID: messageID,
				Stage:     "truncate:" + a.ID,
				Error:     err.Error(),
			})
			continue
		}
		result.ProcessedAgents = append(result.ProcessedAgents, a.ID)
		result.MessagesRemovedTotal += removed
	}
	result.Success = true

	// Chat message count is derived; recount from the surviving transcript.
	if msgs, err := m.store.GetMemory(ctx, worldID, chatID); err == nil || errors.Is(err, storage.ErrNotFound) {
		w.mu.Lock()
		if chat, ok := w.chats[chatID]; ok {
			chat.MessageCount = len(msgs)
			chat.UpdatedAt = time.Now().UTC()
			snapshot := *chat
			w.mu.Unlock()
			if err := m.store.SaveChat(ctx, &snapshot); err != nil {
				m.logger.Warn("Failed to persist chat after edit",
					"world_id", worldID, "chat_id", chatID, "error", err)
			}
		} else {
			w.mu.Unlock()
		}
	}
	return result
}

// resetAutoTitle undoes an auto-generated chat title when the edit removed
// the message the title was derived from. Only titles the runtime generated
// itself are reset, and only while no manual rename intervened: the chat's
// current name must still equal the last announced generated title.
func (m *Manager) resetAutoTitle(ctx context.Context, w *World, chatID string) {
	title, ok := w.lastAutoTitle(chatID)
	if !ok {
		return
	}
	chat, ok := w.Chat(chatID)
	if !ok || chat.Name != title {
		return
	}

	applied, err := m.store.UpdateChatNameIfCurrent(ctx, w.ID(), chatID, title, models.DefaultChatName)
	if err != nil {
		m.logger.Warn("Title reset failed",
			"world_id", w.ID(), "chat_id", chatID, "error", err)
		return
	}
	if !applied {
		return
	}

	w.mu.Lock()
	if c, ok := w.chats[chatID]; ok {
		c.Name = models.DefaultChatName
	}
	w.mu.Unlock()

	w.bus.Publish(events.NewSystemEvent(events.SystemChatTitleUpdated, map[string]any{
		"chatId": chatID,
		"title":  models.DefaultChatName,
	}))
	// The reset is not itself a generated title; forget the trail.
	w.mu.Lock()
	delete(w.lastTitleEvent, chatID)
	w.mu.Unlock()
}

// resyncMemory reloads every successfully truncated agent's memory from
// storage so the runtime state matches what was persisted.
func (m *Manager) resyncMemory(ctx context.Context, w *World, result *RemovalResult) {
	worldID := w.ID()
	for _, agentID := range result.ProcessedAgents {
		memory, err := m.store.LoadAgentMemory(ctx, worldID, agentID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("Memory resync failed",
				"world_id", worldID, "agent_id", agentID, "error", err)
			continue
		}
		w.mu.Lock()
		if a, ok := w.agents[agentID]; ok {
			a.Memory = memory
		}
		w.mu.Unlock()
	}
}

// recordEditError appends to the world's edit-error ring file, keeping the
// newest maxEditErrors entries.
func (m *Manager) recordEditError(worldID string, entry editError) {
	if m.dataDir == "" {
		return
	}
	dir := filepath.Join(m.dataDir, "worlds", worldID)
	path := filepath.Join(dir, "edit-errors.json")

	var entries []editError
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &entries); err != nil {
			m.logger.Warn("Corrupt edit-error log, starting fresh",
				"world_id", worldID, "error", err)
			entries = nil
		}
	}
	entries = append(entries, entry)
	if len(entries) > maxEditErrors {
		entries = entries[len(entries)-maxEditErrors:]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.Warn("Failed to create edit-error log dir",
			"world_id", worldID, "error", err)
		return
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		m.logger.Warn("Failed to write edit-error log",
			"world_id", worldID, "error", err)
	}
}
