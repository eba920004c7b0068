// agentworld server — hosts isolated worlds of LLM-backed agents behind an
// HTTP/WebSocket API, with a global serialized LLM queue and a shared MCP
// server registry.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-world/agentworld/pkg/api"
	"github.com/agent-world/agentworld/pkg/config"
	"github.com/agent-world/agentworld/pkg/llm"
	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/queue"
	"github.com/agent-world/agentworld/pkg/storage"
	"github.com/agent-world/agentworld/pkg/storage/file"
	"github.com/agent-world/agentworld/pkg/storage/postgres"
	"github.com/agent-world/agentworld/pkg/storage/sqlite"
	"github.com/agent-world/agentworld/pkg/world"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	config.LoadDotenv(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"backend", cfg.Storage.Backend,
		"providers", len(cfg.LLM.Providers))

	ctx := context.Background()

	// Storage. Init failure falls back to an unavailable backend so the
	// process still starts and surfaces the problem on first use.
	store := openStorage(ctx, cfg, logger)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing storage", "error", err)
		}
	}()

	// Global LLM queue: one provider call at a time, process-wide.
	q := queue.New(cfg.Queue)

	// MCP server registry, shared by all worlds.
	registry := mcp.NewRegistry(mcp.RegistryConfig{
		ToolCacheTTL:      cfg.MCP.ToolCacheTTL,
		IdleShutdownDelay: cfg.MCP.IdleShutdownDelay,
	}, logger)

	manager := world.NewManager(world.Services{
		Store:              store,
		Queue:              q,
		Registry:           registry,
		Clients:            clientFactory(cfg),
		DataDir:            cfg.Storage.RootDir,
		Logger:             logger,
		ToolIterationLimit: cfg.World.ToolIterationLimit,
	})

	server := api.NewServer(manager, store, q, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.HTTP.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("agentworld started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// HTTP first so no new work arrives, then worlds, queue and MCP servers.
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	manager.Shutdown()
	q.Close()

	mcpCtx, mcpCancel := context.WithTimeout(ctx, 10*time.Second)
	defer mcpCancel()
	registry.ShutdownAll(mcpCtx)

	slog.Info("Shutdown complete")
}

// openStorage selects the backend from config. A backend that fails to
// initialize is replaced by storage.Unavailable so every operation reports
// the cause.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) storage.Storage {
	var (
		store storage.Storage
		err   error
	)
	switch cfg.Storage.Backend {
	case storage.BackendPostgres:
		store, err = postgres.Open(ctx, cfg.Storage.Postgres, logger)
	case storage.BackendFile:
		store, err = file.Open(cfg.Storage.RootDir, logger)
	default:
		store, err = sqlite.Open(ctx, cfg.Storage.RootDir, logger)
	}
	if err != nil {
		slog.Error("Storage backend failed to initialize, deferring failure",
			"backend", cfg.Storage.Backend, "error", err)
		return storage.Unavailable(err)
	}
	slog.Info("Storage initialized", "backend", cfg.Storage.Backend)
	return store
}

// clientFactory builds the per-provider LLM client lookup from configured
// credentials. Providers without credentials are unavailable to agents.
func clientFactory(cfg *config.Config) world.ClientFactory {
	return func(provider models.Provider) (llm.Client, error) {
		creds, _ := cfg.Credentials(provider)
		return llm.ClientFor(llm.ClientConfig{
			Provider: provider,
			APIKey:   creds.APIKey,
			BaseURL:  creds.BaseURL,
		})
	}
}
