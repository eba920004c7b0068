package world

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/metrics"
	"github.com/agent-world/agentworld/pkg/models"
)

// subscribeWorld attaches the manager's handlers to a world's bus: memory
// fan-out plus response scheduling for messages, title bookkeeping for system
// events, and activity stamping. Idempotent.
func (m *Manager) subscribeWorld(w *World) {
	w.mu.Lock()
	if w.subscribed {
		w.mu.Unlock()
		return
	}
	w.subscribed = true
	w.mu.Unlock()

	var subs []*events.Subscription
	subs = append(subs, w.bus.Subscribe(events.KindMessage, func(ev events.Event) {
		m.appendToMemories(w, ev)
		// Response work runs off the publisher's goroutine; the world's
		// processing lock serializes it.
		go m.respondToMessage(w, ev)
	}))
	subs = append(subs, w.bus.Subscribe(events.KindSystem, func(ev events.Event) {
		m.recordTitleEvent(w, ev)
	}))
	subs = append(subs, w.bus.SubscribeAll(func(ev events.Event) {
		m.stampActivity(w, ev)
	})...)

	w.mu.Lock()
	w.subs = subs
	w.mu.Unlock()
}

func (m *Manager) unsubscribeWorld(w *World) {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	w.subscribed = false
	w.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// appendToMemories writes a published message into every agent's memory: the
// sender remembers it as its own assistant turn, everyone else as a user
// turn. Runs synchronously on the publisher's goroutine so per-publisher
// ordering carries into the memories.
func (m *Manager) appendToMemories(w *World, ev events.Event) {
	msg := ev.Message
	worldID := w.ID()
	ctx := context.Background()
	metrics.MessagesPublished.WithLabelValues(string(models.SenderKindOf(msg.Sender))).Inc()

	sender := models.KebabCase(msg.Sender)
	w.mu.Lock()
	for _, a := range w.agents {
		role := models.RoleUser
		if sender == a.ID {
			role = models.RoleAssistant
		}
		entry := models.AgentMessage{
			MessageID: msg.MessageID,
			Role:      role,
			Content:   msg.Content,
			Sender:    msg.Sender,
			AgentID:   a.ID,
			ChatID:    msg.ChatID,
			CreatedAt: ev.Timestamp,
		}
		a.Memory = append(a.Memory, entry)
		if err := m.store.AppendAgentMemory(ctx, worldID, a.ID, []models.AgentMessage{entry}); err != nil {
			m.logger.Error("Failed to persist agent memory",
				"world_id", worldID, "agent_id", a.ID, "error", err)
		}
	}
	chat, ok := w.chats[msg.ChatID]
	if ok {
		chat.MessageCount++
		chat.UpdatedAt = ev.Timestamp
	}
	w.mu.Unlock()

	if ok {
		if err := m.store.SaveChat(ctx, chat); err != nil {
			m.logger.Error("Failed to persist chat",
				"world_id", worldID, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// recordTitleEvent remembers the newest auto-generated chat title; the
// message editor's title-reset rule consults it.
func (m *Manager) recordTitleEvent(w *World, ev events.Event) {
	if ev.System == nil || ev.System.Action != events.SystemChatTitleUpdated {
		return
	}
	chatID, _ := ev.System.Data["chatId"].(string)
	title, _ := ev.System.Data["title"].(string)
	if chatID == "" || title == "" {
		return
	}
	w.mu.Lock()
	w.lastTitleEvent[chatID] = title
	w.mu.Unlock()
}

// stampActivity bumps LastUpdated on any world activity. Persisted only for
// message events; sse chunks would hammer storage.
func (m *Manager) stampActivity(w *World, ev events.Event) {
	w.mu.Lock()
	w.data.LastUpdated = ev.Timestamp
	data := w.data
	w.mu.Unlock()

	if ev.Kind != events.KindMessage {
		return
	}
	if err := m.store.SaveWorld(context.Background(), &data); err != nil {
		m.logger.Error("Failed to persist world activity",
			"world_id", data.ID, "error", err)
	}
}

// respondToMessage runs the response side of one published message: pick the
// eligible agents and let each respond in turn.
func (m *Manager) respondToMessage(w *World, ev events.Event) {
	msg := ev.Message
	if models.SenderKindOf(msg.Sender) == models.SenderSystem {
		return
	}

	eligible := eligibleAgents(w, ev)
	for _, agent := range eligible {
		data := w.Data()
		if used := w.TurnsUsed(); used >= data.TurnLimit {
			m.logger.Warn("Turn limit reached, agent response refused",
				"world_id", data.ID, "agent_id", agent.ID,
				"turns_used", used, "turn_limit", data.TurnLimit)
			w.bus.Publish(events.NewSystemEvent("turn-limit-reached", map[string]any{
				"chatId":    msg.ChatID,
				"agentId":   agent.ID,
				"turnsUsed": used,
				"turnLimit": data.TurnLimit,
			}))
			break
		}
		m.respondAsAgent(context.Background(), w, agent, ev)
	}

	if models.SenderKindOf(msg.Sender) == models.SenderHuman {
		m.maybeGenerateTitle(context.Background(), w, msg.ChatID, msg.Content)
	}
}

// eligibleAgents applies the response ladder to one message, in agent-id
// order. The ladder: explicit mentions win; an un-mentioned human message
// goes to the main agent; an un-mentioned agent message goes to every
// auto-reply agent. An agent never answers itself.
func eligibleAgents(w *World, ev events.Event) []*models.Agent {
	msg := ev.Message
	mentions := ExtractMentions(msg.Content)
	senderKind := models.SenderKindOf(msg.Sender)
	data := w.Data()

	mainAgent := models.KebabCase(data.MainAgent)
	if mainAgent == "" {
		mainAgent = w.defaultResponder()
	}

	sender := models.KebabCase(msg.Sender)
	var out []*models.Agent
	for _, a := range w.Agents() {
		if a.ID == sender {
			continue
		}
		if a.Status == models.AgentStatusInactive {
			continue
		}
		switch {
		case MentionTargets(mentions, a):
			out = append(out, a)
		case len(mentions.All) > 0:
			// Mentions restrict the audience; non-targets stay silent.
		case senderKind == models.SenderHuman && a.ID == mainAgent:
			out = append(out, a)
		case senderKind == models.SenderAgent && a.AutoReply:
			out = append(out, a)
		}
	}
	return out
}

// respondAsAgent produces one agent's reply to a message: the streaming LLM
// loop with tool calls, then the reply published back onto the bus. Errors
// surface as an sse error plus a system failure note.
func (m *Manager) respondAsAgent(ctx context.Context, w *World, agent *models.Agent, ev events.Event) {
	worldID := w.ID()
	chatID := ev.Message.ChatID

	ctx, done := m.control.Begin(ctx, worldID, chatID)
	defer done()
	w.beginProcessing()
	defer w.endProcessing()

	messageID := models.NewMessageID()
	reply, err := m.runAgentLoop(ctx, w, agent, chatID, messageID)
	if err != nil {
		m.logger.Error("Agent response failed",
			"world_id", worldID, "agent_id", agent.ID, "chat_id", chatID, "error", err)
		w.bus.Publish(events.Event{
			Kind: events.KindSSE,
			SSE: &events.SSEPayload{
				AgentName: agent.Name,
				Type:      events.SSEError,
				MessageID: messageID,
				Error:     err.Error(),
			},
		})
		w.bus.Publish(events.NewSystemEvent("agent-error", map[string]any{
			"agentId": agent.ID,
			"chatId":  chatID,
			"error":   err.Error(),
		}))
		return
	}

	content := strings.TrimSpace(StripSelfMentions(reply, agent))
	if content == "" {
		return
	}
	content = AutoMentionBack(content, ev.Message.Sender)
	w.bus.Publish(events.NewMessageEvent(content, agent.ID, chatID))
}

// runAgentLoop drives one agent turn: discover tools, build the request from
// chat-scoped memory, then alternate LLM calls and tool executions until the
// model answers with text or the iteration ceiling trips.
func (m *Manager) runAgentLoop(ctx context.Context, w *World, agent *models.Agent, chatID, messageID string) (string, error) {
	client, err := m.clients(agent.Provider)
	if err != nil {
		return "", fmt.Errorf("no client for provider %q: %w", agent.Provider, err)
	}
	worldID := w.ID()
	data := w.Data()

	var tools []*mcp.Tool
	if data.MCPConfig != "" {
		tools, err = m.registry.ToolsForWorld(ctx, worldID, data.MCPConfig, m.worldVariables(w))
		if err != nil {
			m.logger.Warn("Tool discovery failed, responding without tools",
				"world_id", worldID, "agent_id", agent.ID, "error", err)
			tools = nil
		}
	}
	toolIndex := make(map[string]*mcp.Tool, len(tools))
	toolDefs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		toolIndex[t.FullName()] = t
		toolDefs = append(toolDefs, llm.ToolDefinition{
			Name:        t.FullName(),
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	messages := m.requestMessages(w, agent, chatID, len(tools) > 0)

	w.bus.Publish(events.NewSSEEvent(agent.Name, events.SSEStart, "", messageID))

	for iter := 0; iter < m.toolIter; iter++ {
		req := llm.Request{
			Model:       agent.Model,
			Messages:    messages,
			Tools:       toolDefs,
			Temperature: agent.Temperature,
			MaxTokens:   agent.MaxTokens,
		}
		start := time.Now()
		resp, err := m.enqueueLLM(ctx, agent.ID, worldID, func(callCtx context.Context) (*llm.Response, error) {
			return client.Stream(callCtx, req, func(chunk llm.Chunk) {
				w.bus.Publish(events.NewSSEEvent(agent.Name, events.SSEChunk, chunk.Delta, messageID))
			})
		})
		m.recordLLMCall(w, agent)
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.LLMCalls.WithLabelValues(string(agent.Provider), outcome).Inc()
		metrics.LLMCallDuration.WithLabelValues(string(agent.Provider)).Observe(time.Since(start).Seconds())
		if err != nil {
			return "", err
		}

		if resp.Kind != llm.ResponseToolCalls || len(resp.ToolCalls) == 0 {
			w.bus.Publish(events.Event{
				Kind: events.KindSSE,
				SSE: &events.SSEPayload{
					AgentName: agent.Name,
					Type:      events.SSEEnd,
					MessageID: messageID,
					Usage:     resp.Usage,
				},
			})
			return resp.Content, nil
		}

		// Tool round: remember the request, run every call, feed the results
		// back as tool messages.
		request := models.AgentMessage{
			MessageID: models.NewMessageID(),
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			Sender:    agent.ID,
			AgentID:   agent.ID,
			ChatID:    chatID,
			CreatedAt: time.Now().UTC(),
			ToolCalls: resp.ToolCalls,
		}
		m.appendAgentMemory(w, agent, request)
		messages = append(messages, llm.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			output := m.executeToolCall(ctx, worldID, agent.ID, toolIndex, call)
			result := models.AgentMessage{
				MessageID:  models.NewMessageID(),
				Role:       models.RoleTool,
				Content:    output,
				Sender:     call.Name,
				AgentID:    agent.ID,
				ChatID:     chatID,
				CreatedAt:  time.Now().UTC(),
				ToolCallID: call.ID,
			}
			m.appendAgentMemory(w, agent, result)
			messages = append(messages, llm.Message{
				Role:       models.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}
	return "", fmt.Errorf("tool iteration limit reached after %d rounds", m.toolIter)
}

// executeToolCall runs one tool call and renders its outcome as the tool
// message content. Failures become content too; the model decides what to do
// with them.
func (m *Manager) executeToolCall(ctx context.Context, worldID, agentID string, toolIndex map[string]*mcp.Tool, call models.ToolCall) string {
	tool, ok := toolIndex[call.Name]
	if !ok {
		m.logger.Warn("Model called unknown tool",
			"world_id", worldID, "agent_id", agentID, "tool", call.Name)
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	// Approval hook; the default approver auto-allows.
	decision, err := m.approver.RequestWorldOption(ctx, worldID, OptionRequest{
		Title:           "Tool call",
		Message:         fmt.Sprintf("%s wants to run %s", agentID, call.Name),
		DefaultOptionID: "allow",
		Options: []Option{
			{ID: "allow", Label: "Allow"},
			{ID: "deny", Label: "Deny"},
		},
	})
	if err != nil {
		m.logger.Warn("Tool approval failed",
			"world_id", worldID, "agent_id", agentID, "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: tool call not approved: %v", err)
	}
	if decision.OptionID == "deny" {
		return fmt.Sprintf("Error: tool call %s was denied", call.Name)
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		m.logger.Warn("Tool execution failed",
			"world_id", worldID, "agent_id", agentID, "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return output
}

// enqueueLLM routes one provider call through the global queue, bridging the
// caller's cancellation into the queue's task context.
func (m *Manager) enqueueLLM(ctx context.Context, agentID, worldID string, fn func(ctx context.Context) (*llm.Response, error)) (*llm.Response, error) {
	outcomeCh, err := m.queue.Add(agentID, worldID, func(taskCtx context.Context) (any, error) {
		callCtx, cancel := context.WithCancel(taskCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		return fn(callCtx)
	})
	if err != nil {
		return nil, err
	}
	select {
	case out := <-outcomeCh:
		if out.Err != nil {
			return nil, out.Err
		}
		resp, ok := out.Value.(*llm.Response)
		if !ok || resp == nil {
			return nil, fmt.Errorf("llm call produced no response")
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recordLLMCall bumps the agent's call counter and persists it. Counted even
// for failed calls; the turn limit is about spend, not success.
func (m *Manager) recordLLMCall(w *World, agent *models.Agent) {
	now := time.Now().UTC()
	w.mu.Lock()
	agent.LLMCallCount++
	agent.LastLLMCall = now
	agent.LastActive = now
	snapshot := *agent
	w.mu.Unlock()
	if err := m.store.SaveAgent(context.Background(), w.ID(), &snapshot); err != nil {
		m.logger.Error("Failed to persist agent call count",
			"world_id", w.ID(), "agent_id", agent.ID, "error", err)
	}
}

// appendAgentMemory records one private memory entry (tool traffic) for a
// single agent, in memory and in storage.
func (m *Manager) appendAgentMemory(w *World, agent *models.Agent, entry models.AgentMessage) {
	w.mu.Lock()
	agent.Memory = append(agent.Memory, entry)
	w.mu.Unlock()
	if err := m.store.AppendAgentMemory(context.Background(), w.ID(), agent.ID, []models.AgentMessage{entry}); err != nil {
		m.logger.Error("Failed to persist agent memory",
			"world_id", w.ID(), "agent_id", agent.ID, "error", err)
	}
}

// requestMessages builds the provider-neutral conversation for one agent and
// chat: a system message, then the chat-scoped memory stripped to the wire
// subset.
func (m *Manager) requestMessages(w *World, agent *models.Agent, chatID string, withTools bool) []llm.Message {
	w.mu.RLock()
	history := make([]models.AgentMessage, 0, len(agent.Memory))
	for _, msg := range agent.Memory {
		if msg.ChatID == chatID {
			history = append(history, msg)
		}
	}
	w.mu.RUnlock()

	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.Message{
		Role:    models.RoleSystem,
		Content: m.systemPrompt(w, agent, withTools),
	})
	for _, msg := range history {
		out = append(out, llm.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	return out
}

// systemPrompt composes the agent's prompt with the world context and, when
// tools are available, the tool usage clause.
func (m *Manager) systemPrompt(w *World, agent *models.Agent, withTools bool) string {
	data := w.Data()
	var b strings.Builder
	if agent.SystemPrompt != "" {
		b.WriteString(agent.SystemPrompt)
	} else {
		fmt.Fprintf(&b, "You are %s, an agent in the world %q.", agent.Name, data.Name)
	}

	var others []string
	for _, a := range w.Agents() {
		if a.ID != agent.ID {
			others = append(others, "@"+a.ID)
		}
	}
	if len(others) > 0 {
		fmt.Fprintf(&b, "\n\nOther participants: %s. Mention a participant with @id to address them directly.",
			strings.Join(others, ", "))
	}
	if withTools {
		b.WriteString("\n\nYou have access to tools. Call a tool when it helps answer; otherwise reply directly.")
	}
	return b.String()
}
