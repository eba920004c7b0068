package world

import (
	"context"
	"fmt"
	"strings"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/models"
)

// titleWordLimit caps generated chat titles.
const titleWordLimit = 6

// maybeGenerateTitle replaces a chat's default title with a short generated
// one after its first user message. The rename goes through the storage-level
// compare-and-set so a concurrent manual rename wins, and the applied title
// is announced as a system event.
func (m *Manager) maybeGenerateTitle(ctx context.Context, w *World, chatID, firstMessage string) {
	chat, ok := w.Chat(chatID)
	if !ok || chat.Name != models.DefaultChatName {
		return
	}
	data := w.Data()
	provider := data.ChatLLMProvider
	model := data.ChatLLMModel
	if provider == "" || model == "" {
		// No ancillary model configured; the default title stays.
		return
	}

	client, err := m.clients(provider)
	if err != nil {
		m.logger.Warn("No client for title generation",
			"world_id", data.ID, "provider", provider, "error", err)
		return
	}

	req := llm.Request{
		Model: model,
		Messages: []llm.Message{
			{
				Role: models.RoleSystem,
				Content: fmt.Sprintf(
					"Summarize the user's message as a conversation title of at most %d words. "+
						"Reply with the title only, no quotes, no punctuation at the end.", titleWordLimit),
			},
			{Role: models.RoleUser, Content: firstMessage},
		},
		Temperature: 0.2,
		MaxTokens:   32,
	}
	resp, err := m.enqueueLLM(ctx, "chat-title", data.ID, func(callCtx context.Context) (*llm.Response, error) {
		return client.Generate(callCtx, req)
	})
	if err != nil {
		m.logger.Warn("Chat title generation failed",
			"world_id", data.ID, "chat_id", chatID, "error", err)
		return
	}

	title := cleanTitle(resp.Content)
	if title == "" {
		return
	}

	applied, err := m.store.UpdateChatNameIfCurrent(ctx, data.ID, chatID, models.DefaultChatName, title)
	if err != nil {
		m.logger.Warn("Chat title update failed",
			"world_id", data.ID, "chat_id", chatID, "error", err)
		return
	}
	if !applied {
		// Renamed meanwhile; keep the human's choice.
		return
	}

	w.mu.Lock()
	if c, ok := w.chats[chatID]; ok {
		c.Name = title
	}
	w.mu.Unlock()

	w.bus.Publish(events.NewSystemEvent(events.SystemChatTitleUpdated, map[string]any{
		"chatId": chatID,
		"title":  title,
	}))
	m.logger.Info("Chat title generated",
		"world_id", data.ID, "chat_id", chatID, "title", title)
}

// cleanTitle normalizes model output into a short plain title.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.TrimRight(s, ".!,;:")
	fields := strings.Fields(s)
	if len(fields) > titleWordLimit {
		fields = fields[:titleWordLimit]
	}
	title := strings.Join(fields, " ")
	if title == models.DefaultChatName {
		return ""
	}
	return title
}
