package world

import (
	"context"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

// CreateAgent adds an agent to a world. Rejected while the world is
// processing a message.
func (m *Manager) CreateAgent(ctx context.Context, worldRef string, params models.CreateAgentParams) (*models.Agent, error) {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	if w.IsProcessing() {
		return nil, ErrWorldProcessing
	}

	id := params.ID
	if id == "" {
		id = params.Name
	}
	id = models.KebabCase(id)
	if id == "" {
		return nil, fmt.Errorf("agent name or id is required")
	}
	if _, exists := w.Agent(id); exists {
		return nil, &DuplicateError{Kind: "agent", ID: id}
	}

	autoReply := true
	if params.AutoReply != nil {
		autoReply = *params.AutoReply
	}
	agent := &models.Agent{
		ID:           id,
		Name:         params.Name,
		Type:         params.Type,
		Provider:     params.Provider,
		Model:        params.Model,
		SystemPrompt: params.SystemPrompt,
		Temperature:  params.Temperature,
		MaxTokens:    params.MaxTokens,
		AutoReply:    autoReply,
		Status:       models.AgentStatusActive,
	}
	if agent.Name == "" {
		agent.Name = id
	}

	worldID := w.ID()
	if err := m.store.SaveAgent(ctx, worldID, agent); err != nil {
		return nil, fmt.Errorf("saving agent %s/%s: %w", worldID, id, err)
	}
	w.mu.Lock()
	w.agents[id] = agent
	w.mu.Unlock()

	w.bus.Publish(events.NewCRUDEvent(events.CRUDCreate, "agent", id, agent))
	m.logger.Info("Agent created", "world_id", worldID, "agent_id", id, "provider", agent.Provider)
	return agent, nil
}

// GetAgent resolves an agent ref within a world using the same id/name rule
// as worlds.
func (m *Manager) GetAgent(ctx context.Context, worldRef, agentRef string) (*models.Agent, error) {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	a, err := resolveAgent(w, agentRef)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func resolveAgent(w *World, ref string) (*models.Agent, error) {
	norm := models.KebabCase(ref)
	if a, ok := w.Agent(norm); ok {
		return a, nil
	}
	for _, a := range w.Agents() {
		if identifierMatches(ref, norm, a.ID, a.Name) {
			return a, nil
		}
	}
	return nil, &NotFoundError{Kind: "agent", Ref: norm}
}

// UpdateAgent applies a partial update. Rejected while processing.
func (m *Manager) UpdateAgent(ctx context.Context, worldRef, agentRef string, params models.UpdateAgentParams) (*models.Agent, error) {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	if w.IsProcessing() {
		return nil, ErrWorldProcessing
	}
	a, err := resolveAgent(w, agentRef)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	params.Apply(a)
	updated := *a
	w.mu.Unlock()

	worldID := w.ID()
	if err := m.store.SaveAgent(ctx, worldID, &updated); err != nil {
		return nil, fmt.Errorf("saving agent %s/%s: %w", worldID, a.ID, err)
	}
	w.bus.Publish(events.NewCRUDEvent(events.CRUDUpdate, "agent", a.ID, updated))
	return a, nil
}

// DeleteAgent removes an agent and its memory. Rejected while processing.
func (m *Manager) DeleteAgent(ctx context.Context, worldRef, agentRef string) error {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return err
	}
	if w.IsProcessing() {
		return ErrWorldProcessing
	}
	a, err := resolveAgent(w, agentRef)
	if err != nil {
		return err
	}

	worldID := w.ID()
	if err := m.store.DeleteAgent(ctx, worldID, a.ID); err != nil {
		return fmt.Errorf("deleting agent %s/%s: %w", worldID, a.ID, err)
	}
	w.mu.Lock()
	delete(w.agents, a.ID)
	w.mu.Unlock()

	w.bus.Publish(events.NewCRUDEvent(events.CRUDDelete, "agent", a.ID, nil))
	m.logger.Info("Agent deleted", "world_id", worldID, "agent_id", a.ID)
	return nil
}

// ListAgents returns a world's agents sorted by id.
func (m *Manager) ListAgents(ctx context.Context, worldRef string) ([]*models.Agent, error) {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return nil, err
	}
	return w.Agents(), nil
}

// UpdateAgentMemory replaces an agent's full memory. Rejected while
// processing.
func (m *Manager) UpdateAgentMemory(ctx context.Context, worldRef, agentRef string, memory []models.AgentMessage) error {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return err
	}
	if w.IsProcessing() {
		return ErrWorldProcessing
	}
	a, err := resolveAgent(w, agentRef)
	if err != nil {
		return err
	}

	storage.EnsureMessageIDs(memory)
	worldID := w.ID()
	if err := m.store.SaveAgentMemory(ctx, worldID, a.ID, memory); err != nil {
		return fmt.Errorf("saving memory of %s/%s: %w", worldID, a.ID, err)
	}
	w.mu.Lock()
	a.Memory = memory
	w.mu.Unlock()
	return nil
}

// ClearAgentMemory archives the agent's memory, then resets it and the LLM
// call count. Archive failure is logged; the clear proceeds.
func (m *Manager) ClearAgentMemory(ctx context.Context, worldRef, agentRef string) error {
	w, err := m.resolveWorld(ctx, worldRef)
	if err != nil {
		return err
	}
	if w.IsProcessing() {
		return ErrWorldProcessing
	}
	a, err := resolveAgent(w, agentRef)
	if err != nil {
		return err
	}

	worldID := w.ID()
	if err := m.store.ArchiveMemory(ctx, worldID, a.ID); err != nil {
		m.logger.Warn("Memory archive failed, clearing anyway",
			"world_id", worldID, "agent_id", a.ID, "error", err)
	}
	if err := m.store.SaveAgentMemory(ctx, worldID, a.ID, nil); err != nil {
		return fmt.Errorf("clearing memory of %s/%s: %w", worldID, a.ID, err)
	}

	w.mu.Lock()
	a.Memory = nil
	a.LLMCallCount = 0
	a.LastActive = time.Now().UTC()
	cleared := *a
	w.mu.Unlock()

	if err := m.store.SaveAgent(ctx, worldID, &cleared); err != nil {
		return fmt.Errorf("saving agent %s/%s: %w", worldID, a.ID, err)
	}
	w.bus.Publish(events.NewCRUDEvent(events.CRUDUpdate, "agent", a.ID, cleared))
	m.logger.Info("Agent memory cleared", "world_id", worldID, "agent_id", a.ID)
	return nil
}
