package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

// createDefaultChat creates the world's initial chat and points
// CurrentChatID at it.
func (m *Manager) createDefaultChat(ctx context.Context, w *World) (*models.Chat, error) {
	now := time.Now().UTC()
	chat := &models.Chat{
		ID:        models.NewChatID(),
		WorldID:   w.ID(),
		Name:      models.DefaultChatName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("saving chat: %w", err)
	}

	w.mu.Lock()
	w.chats[chat.ID] = chat
	w.data.CurrentChatID = chat.ID
	w.data.LastUpdated = now
	data := w.data
	w.mu.Unlock()

	if err := m.store.SaveWorld(ctx, &data); err != nil {
		return nil, fmt.Errorf("saving world %q: %w", data.ID, err)
	}
	return chat, nil
}

// ensureCurrentChat repairs a missing or dangling CurrentChatID: adopt the
// most recently updated chat, or create a fresh default one.
func (m *Manager) ensureCurrentChat(ctx context.Context, w *World) error {
	current := w.CurrentChatID()
	if current != "" {
		if _, ok := w.Chat(current); ok {
			return nil
		}
	}

	chats := w.Chats()
	if len(chats) > 0 {
		latest := chats[0]
		for _, c := range chats {
			if c.UpdatedAt.After(latest.UpdatedAt) {
				latest = c
			}
		}
		return m.setCurrentChat(ctx, w, latest.ID)
	}

	_, err := m.createDefaultChat(ctx, w)
	return err
}

func (m *Manager) setCurrentChat(ctx context.Context, w *World, chatID string) error {
	w.mu.Lock()
	w.data.CurrentChatID = chatID
	w.data.LastUpdated = time.Now().UTC()
	data := w.data
	w.mu.Unlock()
	if err := m.store.SaveWorld(ctx, &data); err != nil {
		return fmt.Errorf("saving world %q: %w", data.ID, err)
	}
	return nil
}

// NewChat starts a new conversation thread and makes it current. An existing
// current chat that still carries the default title and has no messages is
// reused instead of piling up empty chats. Optionally captures a snapshot of
// the world state.
func (m *Manager) NewChat(ctx context.Context, worldRef string, params models.NewChatParams) (*models.Chat, error) {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	worldID := w.ID()

	if current, ok := w.Chat(w.CurrentChatID()); ok {
		if current.Name == models.DefaultChatName && current.MessageCount == 0 && params.Name == "" {
			return current, nil
		}
	}

	now := time.Now().UTC()
	name := params.Name
	if name == "" {
		name = models.DefaultChatName
	}
	chat := &models.Chat{
		ID:          models.NewChatID(),
		WorldID:     worldID,
		Name:        name,
		Description: params.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("saving chat: %w", err)
	}

	w.mu.Lock()
	w.chats[chat.ID] = chat
	w.mu.Unlock()
	if err := m.setCurrentChat(ctx, w, chat.ID); err != nil {
		return nil, err
	}

	if params.CaptureSnapshot {
		if err := m.captureSnapshot(ctx, w, chat.ID); err != nil {
			m.logger.Warn("Chat snapshot capture failed",
				"world_id", worldID, "chat_id", chat.ID, "error", err)
		}
	}

	w.bus.Publish(events.NewCRUDEvent(events.CRUDCreate, "chat", chat.ID, chat))
	m.logger.Info("Chat created", "world_id", worldID, "chat_id", chat.ID, "name", chat.Name)
	return chat, nil
}

func (m *Manager) captureSnapshot(ctx context.Context, w *World, chatID string) error {
	agents := w.Agents()
	snapAgents := make([]models.Agent, 0, len(agents))
	for _, a := range agents {
		snapAgents = append(snapAgents, *a)
	}
	messages, err := m.store.GetMemory(ctx, w.ID(), chatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	snap := &models.ChatSnapshot{
		World:      w.Data(),
		Agents:     snapAgents,
		Messages:   messages,
		CapturedAt: time.Now().UTC(),
	}
	return m.store.SaveChatSnapshot(ctx, w.ID(), chatID, snap)
}

// LoadChat switches the world's current chat.
func (m *Manager) LoadChat(ctx context.Context, worldRef, chatID string) (*models.Chat, error) {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	chat, ok := w.Chat(chatID)
	if !ok {
		return nil, &NotFoundError{Kind: "chat", Ref: chatID}
	}
	if err := m.setCurrentChat(ctx, w, chatID); err != nil {
		return nil, err
	}
	w.bus.Publish(events.NewCRUDEvent(events.CRUDUpdate, "chat", chatID, chat))
	return chat, nil
}

// ListChats returns a world's chats sorted by creation time.
func (m *Manager) ListChats(ctx context.Context, worldRef string) ([]*models.Chat, error) {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	return w.Chats(), nil
}

// DeleteChat removes a chat and its messages. Order matters: memory first,
// then the delete announcement while the chat is still resolvable, then the
// chat record. If the current chat was deleted, the world falls back to the
// most recently updated survivor or a fresh default chat.
func (m *Manager) DeleteChat(ctx context.Context, worldRef, chatID string) error {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return err
	}
	if _, ok := w.Chat(chatID); !ok {
		return &NotFoundError{Kind: "chat", Ref: chatID}
	}
	worldID := w.ID()

	if err := m.store.DeleteMemoryByChatID(ctx, worldID, chatID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting messages of chat %s: %w", chatID, err)
	}
	// Prune the deleted chat's rows from the hydrated agent memories too.
	w.mu.Lock()
	for _, a := range w.agents {
		kept := a.Memory[:0]
		for _, msg := range a.Memory {
			if msg.ChatID != chatID {
				kept = append(kept, msg)
			}
		}
		a.Memory = kept
	}
	w.mu.Unlock()

	w.bus.Publish(events.NewCRUDEvent(events.CRUDDelete, "chat", chatID, nil))

	if err := m.store.DeleteChat(ctx, worldID, chatID); err != nil {
		return fmt.Errorf("deleting chat %s: %w", chatID, err)
	}
	w.mu.Lock()
	delete(w.chats, chatID)
	wasCurrent := w.data.CurrentChatID == chatID
	if wasCurrent {
		w.data.CurrentChatID = ""
	}
	w.mu.Unlock()

	if wasCurrent {
		if err := m.ensureCurrentChat(ctx, w); err != nil {
			return err
		}
	}
	m.logger.Info("Chat deleted", "world_id", worldID, "chat_id", chatID)
	return nil
}

// GetMemory returns the de-duplicated transcript of a chat. An empty chatID
// selects the current chat.
func (m *Manager) GetMemory(ctx context.Context, worldRef, chatID string) ([]models.AgentMessage, error) {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	if chatID == "" {
		chatID = w.CurrentChatID()
	}
	msgs, err := m.store.GetMemory(ctx, w.ID(), chatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading transcript of %s/%s: %w", w.ID(), chatID, err)
	}
	return msgs, nil
}

// ExportWorldToMarkdown renders a world's configuration, agents and chat
// transcripts as a markdown document.
func (m *Manager) ExportWorldToMarkdown(ctx context.Context, worldRef string) (string, error) {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return "", err
	}
	data := w.Data()

	var b strings.Builder
	fmt.Fprintf(&b, "# World: %s\n\n", data.Name)
	if data.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", data.Description)
	}
	fmt.Fprintf(&b, "- ID: `%s`\n- Turn limit: %d\n", data.ID, data.TurnLimit)
	if data.MainAgent != "" {
		fmt.Fprintf(&b, "- Main agent: `%s`\n", data.MainAgent)
	}
	b.WriteString("\n## Agents\n\n")
	for _, a := range w.Agents() {
		fmt.Fprintf(&b, "### %s (`%s`)\n\n- Provider: %s\n- Model: %s\n- LLM calls: %d\n\n",
			a.Name, a.ID, a.Provider, a.Model, a.LLMCallCount)
		if a.SystemPrompt != "" {
			fmt.Fprintf(&b, "System prompt:\n\n> %s\n\n",
				strings.ReplaceAll(a.SystemPrompt, "\n", "\n> "))
		}
	}

	chats := w.Chats()
	sort.Slice(chats, func(i, j int) bool { return chats[i].CreatedAt.Before(chats[j].CreatedAt) })
	for _, chat := range chats {
		fmt.Fprintf(&b, "## Chat: %s\n\n", chat.Name)
		msgs, err := m.store.GetMemory(ctx, data.ID, chat.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("loading transcript of %s/%s: %w", data.ID, chat.ID, err)
		}
		for _, msg := range msgs {
			sender := msg.Sender
			if sender == "" {
				sender = string(msg.Role)
			}
			fmt.Fprintf(&b, "**%s** (%s):\n\n%s\n\n", sender,
				msg.CreatedAt.Format(time.RFC3339), msg.Content)
		}
	}
	return b.String(), nil
}
