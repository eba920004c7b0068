package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/agent-world/agentworld/pkg/events"
	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/queue"
	"github.com/agent-world/agentworld/pkg/storage"
)

// DefaultToolIterationLimit caps tool-call round trips within one agent
// response.
const DefaultToolIterationLimit = 10

// ClientFactory hands out an LLM client for a provider. Wired from config at
// startup; injected so tests can stub providers.
type ClientFactory func(provider models.Provider) (llm.Client, error)

// Services bundles the shared dependencies a Manager runs against.
type Services struct {
	Store    storage.Storage
	Queue    *queue.Queue
	Registry *mcp.Registry
	Clients  ClientFactory
	Approver Approver

	// DataDir is where per-world edit-error logs live.
	DataDir string

	Logger             *slog.Logger
	ToolIterationLimit int
}

// Manager owns every loaded world and implements the runtime operations:
// world/agent/chat CRUD with identifier resolution, message publishing, and
// the editing flow. Safe for concurrent use.
type Manager struct {
	store    storage.Storage
	queue    *queue.Queue
	registry *mcp.Registry
	clients  ClientFactory
	approver Approver
	control  *ProcessControl
	dataDir  string
	logger   *slog.Logger
	toolIter int

	mu     sync.RWMutex
	worlds map[string]*World
}

// NewManager creates a manager. Zero-value optional fields get defaults.
func NewManager(s Services) *Manager {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	approver := s.Approver
	if approver == nil {
		approver = AutoApprover{}
	}
	toolIter := s.ToolIterationLimit
	if toolIter < 1 {
		toolIter = DefaultToolIterationLimit
	}
	return &Manager{
		store:    s.Store,
		queue:    s.Queue,
		registry: s.Registry,
		clients:  s.Clients,
		approver: approver,
		control:  NewProcessControl(),
		dataDir:  s.DataDir,
		logger:   logger,
		toolIter: toolIter,
		worlds:   make(map[string]*World),
	}
}

// Control exposes the processing-control registry (stop endpoints use it).
func (m *Manager) Control() *ProcessControl { return m.control }

// CreateWorld creates a world: normalized id, duplicate check, empty
// agent/chat maps, event bus wiring, then one default chat created
// synchronously.
func (m *Manager) CreateWorld(ctx context.Context, params models.CreateWorldParams) (*World, error) {
	id := params.ID
	if id == "" {
		id = params.Name
	}
	id = models.KebabCase(id)
	if id == "" {
		return nil, fmt.Errorf("world name or id is required")
	}

	if _, err := m.store.LoadWorld(ctx, id); err == nil {
		return nil, &DuplicateError{Kind: "world", ID: id}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing world: %w", err)
	}

	now := time.Now().UTC()
	turnLimit := params.TurnLimit
	if turnLimit < 1 {
		turnLimit = models.DefaultTurnLimit
	}
	data := models.World{
		ID:              id,
		Name:            params.Name,
		Description:     params.Description,
		TurnLimit:       turnLimit,
		MainAgent:       params.MainAgent,
		ChatLLMProvider: params.ChatLLMProvider,
		ChatLLMModel:    params.ChatLLMModel,
		MCPConfig:       params.MCPConfig,
		Variables:       params.Variables,
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if data.Name == "" {
		data.Name = id
	}
	if err := m.store.SaveWorld(ctx, &data); err != nil {
		return nil, fmt.Errorf("saving world: %w", err)
	}

	w := newRuntimeWorld(data)
	m.subscribeWorld(w)
	m.registerMCPServers(ctx, w)

	if _, err := m.createDefaultChat(ctx, w); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.worlds[id] = w
	m.mu.Unlock()

	w.bus.Publish(events.NewCRUDEvent(events.CRUDCreate, "world", id, w.Data()))
	m.logger.Info("World created", "world_id", id, "name", data.Name)
	return w, nil
}

// GetWorld resolves ref to a loaded world, hydrating agents and chats on
// first access and guaranteeing a current chat exists.
func (m *Manager) GetWorld(ctx context.Context, ref string) (*World, error) {
	w, err := m.resolveWorld(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := m.ensureCurrentChat(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// resolveWorld applies the identifier resolution rule: direct normalized-id
// load, then a scan matching stored id/name and their kebab forms against ref
// and kebab(ref), case-insensitively.
func (m *Manager) resolveWorld(ctx context.Context, ref string) (*World, error) {
	norm := models.KebabCase(ref)

	m.mu.RLock()
	if w, ok := m.worlds[ref]; ok {
		m.mu.RUnlock()
		return w, nil
	}
	if w, ok := m.worlds[norm]; ok {
		m.mu.RUnlock()
		return w, nil
	}
	m.mu.RUnlock()

	data, err := m.store.LoadWorld(ctx, norm)
	if err != nil && errors.Is(err, storage.ErrNotFound) {
		data, err = m.scanForWorld(ctx, ref, norm)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Kind: "world", Ref: norm}
		}
		return nil, fmt.Errorf("loading world %q: %w", norm, err)
	}
	return m.hydrate(ctx, data)
}

func (m *Manager) scanForWorld(ctx context.Context, ref, norm string) (*models.World, error) {
	worlds, err := m.store.ListWorlds(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range worlds {
		if identifierMatches(ref, norm, w.ID, w.Name) {
			return w, nil
		}
	}
	return nil, storage.ErrNotFound
}

// identifierMatches implements the shared world/agent resolution rule.
func identifierMatches(ref, norm, storedID, storedName string) bool {
	for _, candidate := range []string{storedID, storedName, models.KebabCase(storedID), models.KebabCase(storedName)} {
		if candidate == "" {
			continue
		}
		if strings.EqualFold(candidate, ref) || strings.EqualFold(candidate, norm) {
			return true
		}
	}
	return false
}

// hydrate loads a world's agents, memory and chats into a runtime World and
// caches it. Concurrent hydrations of the same world converge on one copy.
func (m *Manager) hydrate(ctx context.Context, data *models.World) (*World, error) {
	m.mu.RLock()
	if w, ok := m.worlds[data.ID]; ok {
		m.mu.RUnlock()
		return w, nil
	}
	m.mu.RUnlock()

	w := newRuntimeWorld(*data)

	agents, err := m.store.ListAgents(ctx, data.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading agents of %q: %w", data.ID, err)
	}
	for _, a := range agents {
		memory, err := m.store.LoadAgentMemory(ctx, data.ID, a.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("loading memory of %s/%s: %w", data.ID, a.ID, err)
		}
		a.Memory = memory
		w.agents[a.ID] = a
	}

	chats, err := m.store.ListChats(ctx, data.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading chats of %q: %w", data.ID, err)
	}
	for _, c := range chats {
		w.chats[c.ID] = c
	}

	m.mu.Lock()
	if existing, ok := m.worlds[data.ID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.worlds[data.ID] = w
	m.mu.Unlock()

	m.subscribeWorld(w)
	m.registerMCPServers(ctx, w)
	m.logger.Info("World hydrated",
		"world_id", data.ID, "agents", len(agents), "chats", len(chats))
	return w, nil
}

// UpdateWorld applies a partial update and persists it.
func (m *Manager) UpdateWorld(ctx context.Context, ref string, params models.UpdateWorldParams) (*World, error) {
	w, err := m.resolveWorld(ctx, ref)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	mcpBefore := w.data.MCPConfig
	params.Apply(&w.data, time.Now().UTC())
	data := w.data
	w.mu.Unlock()

	if err := m.store.SaveWorld(ctx, &data); err != nil {
		return nil, fmt.Errorf("saving world %q: %w", data.ID, err)
	}
	if data.MCPConfig != mcpBefore {
		m.unregisterMCPServers(w)
		m.registerMCPServers(ctx, w)
	}
	w.bus.Publish(events.NewCRUDEvent(events.CRUDUpdate, "world", data.ID, data))
	return w, nil
}

// DeleteWorld removes a world without hydrating runtime state: raw load,
// cleanup, delete.
func (m *Manager) DeleteWorld(ctx context.Context, ref string) error {
	norm := models.KebabCase(ref)
	data, err := m.store.LoadWorld(ctx, norm)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if scanned, scanErr := m.scanForWorld(ctx, ref, norm); scanErr == nil {
				data = scanned
			} else {
				return &NotFoundError{Kind: "world", Ref: norm}
			}
		} else {
			return fmt.Errorf("loading world %q: %w", norm, err)
		}
	}

	// Detach the runtime copy if one is loaded.
	m.mu.Lock()
	w, loaded := m.worlds[data.ID]
	delete(m.worlds, data.ID)
	m.mu.Unlock()
	if loaded {
		w.bus.Publish(events.NewCRUDEvent(events.CRUDDelete, "world", data.ID, nil))
		m.unsubscribeWorld(w)
		m.unregisterMCPServers(w)
	}

	if err := m.store.DeleteWorld(ctx, data.ID); err != nil {
		return fmt.Errorf("deleting world %q: %w", data.ID, err)
	}
	m.logger.Info("World deleted", "world_id", data.ID)
	return nil
}

// ListWorlds returns every persisted world, normalized ids included.
func (m *Manager) ListWorlds(ctx context.Context) ([]*models.World, error) {
	return m.store.ListWorlds(ctx)
}

// PublishUserMessage publishes a message into the world's bus, defaulting the
// chat to the current one. Agent responses follow via the bus subscription.
func (m *Manager) PublishUserMessage(ctx context.Context, worldRef, content, sender, chatID string) (events.Event, error) {
	w, err := m.GetWorld(ctx, worldRef)
	if err != nil {
		return events.Event{}, err
	}
	if chatID == "" {
		chatID = w.CurrentChatID()
	} else if _, ok := w.Chat(chatID); !ok {
		return events.Event{}, &NotFoundError{Kind: "chat", Ref: chatID}
	}
	if sender == "" {
		sender = "human"
	}
	ev := w.bus.Publish(events.NewMessageEvent(content, sender, chatID))
	return ev, nil
}

// registerMCPServers parses the world's MCP config and acquires registry
// references. A parse failure is logged; the world proceeds without tools.
func (m *Manager) registerMCPServers(ctx context.Context, w *World) {
	data := w.Data()
	if data.MCPConfig == "" {
		return
	}
	servers, err := mcp.ParseConfig(data.MCPConfig)
	if err != nil {
		m.logger.Warn("Invalid MCP config, world proceeds without tools",
			"world_id", data.ID, "error", err)
		return
	}
	vars := m.worldVariables(w)
	var ids []string
	for _, cfg := range servers {
		id, err := m.registry.Register(ctx, cfg, data.ID, vars)
		if err != nil {
			m.logger.Warn("MCP server registration failed",
				"world_id", data.ID, "server", cfg.Name, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	w.mu.Lock()
	w.serverIDs = ids
	w.mu.Unlock()
}

func (m *Manager) unregisterMCPServers(w *World) {
	w.mu.Lock()
	ids := w.serverIDs
	w.serverIDs = nil
	worldID := w.data.ID
	w.mu.Unlock()
	for _, id := range ids {
		m.registry.Unregister(id, worldID)
	}
}

// worldVariables parses the world's .env-style variables text.
func (m *Manager) worldVariables(w *World) map[string]string {
	data := w.Data()
	if data.Variables == "" {
		return nil
	}
	vars, err := godotenv.Unmarshal(data.Variables)
	if err != nil {
		m.logger.Warn("Failed to parse world variables",
			"world_id", data.ID, "error", err)
		return nil
	}
	return vars
}

// Shutdown detaches every loaded world. Shared services (queue, registry,
// storage) are closed by their owner.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	worlds := make([]*World, 0, len(m.worlds))
	for _, w := range m.worlds {
		worlds = append(worlds, w)
	}
	m.worlds = make(map[string]*World)
	m.mu.Unlock()

	for _, w := range worlds {
		m.unsubscribeWorld(w)
		m.unregisterMCPServers(w)
	}
}
