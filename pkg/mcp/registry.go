package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agent-world/agentworld/pkg/metrics"
)

// Status is the lifecycle state of a server instance.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// ServerInstance is one running (or starting/failed) MCP server shared by
// every world whose config hashes to the same identity.
type ServerInstance struct {
	ID     string // SHA256 of the normalized config
	Config ServerConfig

	Status           Status
	Err              error // set when Status is StatusError
	ReferenceCount   int
	AssociatedWorlds map[string]struct{}
	StartedAt        time.Time
	LastHealthCheck  time.Time

	client    toolConn
	idleTimer *time.Timer
	ready     chan struct{} // closed when Status leaves starting
}

// InstanceStatus is the externally visible snapshot of an instance.
type InstanceStatus struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Transport       string    `json:"transport"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`
	ReferenceCount  int       `json:"referenceCount"`
	Worlds          []string  `json:"worlds"`
	StartedAt       time.Time `json:"startedAt,omitzero"`
	LastHealthCheck time.Time `json:"lastHealthCheck,omitzero"`
}

// RegistryConfig tunes the process-global registry.
type RegistryConfig struct {
	ToolCacheTTL      time.Duration // default 1h
	IdleShutdownDelay time.Duration // default 30s
}

// Registry is the process-global MCP server registry. Worlds register the
// servers their config names; instances are shared by config hash and torn
// down 30s after the last reference goes away.
type Registry struct {
	logger    *slog.Logger
	idleDelay time.Duration
	cache     *toolCache

	mu      sync.Mutex
	servers map[string]*ServerInstance

	// connect dials a server. Overridden in tests.
	connect func(ctx context.Context, cfg ServerConfig, vars map[string]string) (toolConn, error)

	// reconnects collapses concurrent reconnection attempts per server.
	reconnects singleflight.Group

	execSeq atomic.Int64
}

// NewRegistry creates a registry. Zero-value config fields get defaults.
func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	idleDelay := cfg.IdleShutdownDelay
	if idleDelay <= 0 {
		idleDelay = IdleShutdownDelay
	}
	return &Registry{
		logger:    logger,
		idleDelay: idleDelay,
		cache:     newToolCache(cfg.ToolCacheTTL, logger),
		servers:   make(map[string]*ServerInstance),
		connect: func(ctx context.Context, cfg ServerConfig, vars map[string]string) (toolConn, error) {
			client, err := connectServer(ctx, cfg, vars)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

// Register acquires a reference to the server described by cfg on behalf of
// worldID and returns the server's id. The first registration connects the
// transport; later ones reuse the running instance. A registration landing
// inside another world's idle-shutdown window aborts the shutdown. An
// instance left in error state by a failed start is dropped and connected
// fresh, so a transient startup failure does not poison the config.
func (r *Registry) Register(ctx context.Context, cfg ServerConfig, worldID string, vars map[string]string) (string, error) {
	id := HashConfig(cfg)

	r.mu.Lock()
	if inst, ok := r.servers[id]; ok && inst.Status == StatusError {
		r.logger.Info("Restarting MCP server after startup failure",
			"server", cfg.Name, "server_id", id, "previous_error", inst.Err)
		if inst.idleTimer != nil {
			inst.idleTimer.Stop()
		}
		delete(r.servers, id)
	}
	if inst, ok := r.servers[id]; ok {
		inst.ReferenceCount++
		inst.AssociatedWorlds[worldID] = struct{}{}
		if inst.idleTimer != nil {
			inst.idleTimer.Stop()
			inst.idleTimer = nil
		}
		ready := inst.ready
		r.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			r.mu.Lock()
			r.dropRefLocked(inst, worldID)
			r.mu.Unlock()
			return id, ctx.Err()
		}

		r.mu.Lock()
		err := inst.Err
		if err != nil {
			r.dropRefLocked(inst, worldID)
		}
		r.mu.Unlock()
		if err != nil {
			return id, fmt.Errorf("server %q failed to start: %w", cfg.Name, err)
		}
		return id, nil
	}

	inst := &ServerInstance{
		ID:               id,
		Config:           cfg,
		Status:           StatusStarting,
		ReferenceCount:   1,
		AssociatedWorlds: map[string]struct{}{worldID: {}},
		ready:            make(chan struct{}),
	}
	r.servers[id] = inst
	r.mu.Unlock()

	client, err := r.connect(ctx, cfg, vars)

	r.mu.Lock()
	if err != nil {
		// Keep the errored instance visible on the health surface, but hold
		// no references: callers never unregister a failed registration, and
		// the next Register of this config replaces the instance.
		inst.Status = StatusError
		inst.Err = err
		inst.ReferenceCount = 0
		inst.AssociatedWorlds = make(map[string]struct{})
	} else {
		now := time.Now()
		inst.Status = StatusRunning
		inst.StartedAt = now
		inst.LastHealthCheck = now
		inst.client = client
		metrics.ActiveServers.Inc()
	}
	close(inst.ready)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("MCP server failed to start",
			"server", cfg.Name, "server_id", id, "error", err)
		return id, fmt.Errorf("server %q failed to start: %w", cfg.Name, err)
	}
	r.logger.Info("MCP server started",
		"server", cfg.Name, "server_id", id, "transport", cfg.Transport, "world_id", worldID)
	return id, nil
}

// Unregister releases worldID's reference. When the count reaches zero the
// instance is kept alive for the idle window, then stopped and removed unless
// a registration arrived in the meantime.
func (r *Registry) Unregister(serverID, worldID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.servers[serverID]
	if !ok {
		return
	}
	r.dropRefLocked(inst, worldID)
}

// dropRefLocked releases one reference. Caller holds r.mu. When the last
// reference to a running instance goes away, the idle shutdown window starts.
// Errored instances hold no client and get no timer; they stay visible until
// the next registration replaces them.
func (r *Registry) dropRefLocked(inst *ServerInstance, worldID string) {
	delete(inst.AssociatedWorlds, worldID)
	if inst.ReferenceCount > 0 {
		inst.ReferenceCount--
	}
	if inst.ReferenceCount > 0 || inst.Status != StatusRunning {
		return
	}

	if inst.idleTimer != nil {
		inst.idleTimer.Stop()
	}
	serverID := inst.ID
	inst.idleTimer = time.AfterFunc(r.idleDelay, func() {
		r.shutdownIfIdle(serverID)
	})
}

// shutdownIfIdle runs when the idle timer fires: re-check under the lock that
// no registration arrived, then stop the instance.
func (r *Registry) shutdownIfIdle(serverID string) {
	r.mu.Lock()
	inst, ok := r.servers[serverID]
	if !ok || inst.ReferenceCount > 0 {
		r.mu.Unlock()
		return
	}
	inst.Status = StatusStopping
	delete(r.servers, serverID)
	client := inst.client
	inst.client = nil
	if client != nil {
		metrics.ActiveServers.Dec()
	}
	r.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			r.logger.Warn("Failed to stop idle MCP server",
				"server", inst.Config.Name, "server_id", serverID, "error", err)
		}
	}
	r.cache.invalidate(SanitizeName(inst.Config.Name))
	r.logger.Info("MCP server stopped after idle window",
		"server", inst.Config.Name, "server_id", serverID)
}

// AssociatedWorlds returns the ids of worlds currently referencing a server.
func (r *Registry) AssociatedWorlds(serverID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.servers[serverID]
	if !ok {
		return nil
	}
	worlds := make([]string, 0, len(inst.AssociatedWorlds))
	for id := range inst.AssociatedWorlds {
		worlds = append(worlds, id)
	}
	sort.Strings(worlds)
	return worlds
}

// Statuses snapshots every known instance for the health surface.
func (r *Registry) Statuses() []InstanceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]InstanceStatus, 0, len(r.servers))
	for _, inst := range r.servers {
		status := InstanceStatus{
			ID:              inst.ID,
			Name:            inst.Config.Name,
			Transport:       string(inst.Config.Transport),
			Status:          inst.Status,
			ReferenceCount:  inst.ReferenceCount,
			StartedAt:       inst.StartedAt,
			LastHealthCheck: inst.LastHealthCheck,
		}
		if inst.Err != nil {
			status.Error = inst.Err.Error()
		}
		for id := range inst.AssociatedWorlds {
			status.Worlds = append(status.Worlds, id)
		}
		sort.Strings(status.Worlds)
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ShutdownAll stops every server, disposes every cache entry and clears both
// maps. Used on process shutdown.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	instances := make([]*ServerInstance, 0, len(r.servers))
	for _, inst := range r.servers {
		if inst.idleTimer != nil {
			inst.idleTimer.Stop()
		}
		inst.Status = StatusStopping
		if inst.client != nil {
			metrics.ActiveServers.Dec()
		}
		instances = append(instances, inst)
	}
	r.servers = make(map[string]*ServerInstance)
	r.mu.Unlock()

	for _, inst := range instances {
		if inst.client == nil {
			continue
		}
		if err := inst.client.Close(); err != nil {
			r.logger.Warn("Failed to stop MCP server during shutdown",
				"server", inst.Config.Name, "error", err)
		}
	}
	r.cache.disposeAll()
	r.logger.Info("All MCP servers stopped", "count", len(instances))
}

// touchHealth records a successful interaction with a server.
func (r *Registry) touchHealth(configHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.servers[configHash]; ok {
		inst.LastHealthCheck = time.Now()
	}
}
