// Package api exposes the runtime over HTTP: world/agent/chat CRUD, message
// publish and edit, markdown export, a WebSocket event stream bridged from
// the per-world buses, health and Prometheus metrics. The surface is a thin
// adapter; all semantics live in the core packages.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/queue"
	"github.com/agent-world/agentworld/pkg/storage"
	"github.com/agent-world/agentworld/pkg/world"
)

// wsWriteTimeout bounds a single WebSocket send.
const wsWriteTimeout = 10 * time.Second

// Server is the HTTP server wiring the runtime services to echo routes.
type Server struct {
	manager  *world.Manager
	store    storage.Storage
	queue    *queue.Queue
	registry *mcp.Registry

	connManager *ConnectionManager
	logger      *slog.Logger

	echo *echo.Echo
	http *http.Server
}

// NewServer assembles the server and registers all routes.
func NewServer(manager *world.Manager, store storage.Storage, q *queue.Queue, registry *mcp.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager:  manager,
		store:    store,
		queue:    q,
		registry: registry,
		logger:   logger,
	}
	s.connManager = NewConnectionManager(newWorldBridge(manager), wsWriteTimeout)

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(requestLogger(logger))
	s.registerRoutes(e)
	s.echo = e
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", s.healthHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/ws", s.wsHandler)

	v1 := e.Group("/api/v1")

	v1.POST("/worlds", s.createWorldHandler)
	v1.GET("/worlds", s.listWorldsHandler)
	v1.GET("/worlds/:world", s.getWorldHandler)
	v1.PATCH("/worlds/:world", s.updateWorldHandler)
	v1.DELETE("/worlds/:world", s.deleteWorldHandler)
	v1.GET("/worlds/:world/export", s.exportWorldHandler)

	v1.POST("/worlds/:world/agents", s.createAgentHandler)
	v1.GET("/worlds/:world/agents", s.listAgentsHandler)
	v1.GET("/worlds/:world/agents/:agent", s.getAgentHandler)
	v1.PATCH("/worlds/:world/agents/:agent", s.updateAgentHandler)
	v1.DELETE("/worlds/:world/agents/:agent", s.deleteAgentHandler)
	v1.PUT("/worlds/:world/agents/:agent/memory", s.updateAgentMemoryHandler)
	v1.DELETE("/worlds/:world/agents/:agent/memory", s.clearAgentMemoryHandler)

	v1.POST("/worlds/:world/chats", s.newChatHandler)
	v1.GET("/worlds/:world/chats", s.listChatsHandler)
	v1.POST("/worlds/:world/chats/:chat/load", s.loadChatHandler)
	v1.DELETE("/worlds/:world/chats/:chat", s.deleteChatHandler)
	v1.GET("/worlds/:world/memory", s.getMemoryHandler)

	v1.POST("/worlds/:world/messages", s.sendMessageHandler)
	v1.PATCH("/worlds/:world/messages/:id", s.editMessageHandler)

	v1.GET("/worlds/:world/integrity", s.integrityHandler)
	v1.POST("/worlds/:world/repair", s.repairHandler)

	v1.GET("/queue", s.queueStatusHandler)
	v1.POST("/queue/clear", s.clearQueueHandler)
	v1.GET("/mcp/servers", s.mcpStatusHandler)
	v1.POST("/mcp/servers/:id/ping", s.mcpPingHandler)
}

// Start begins serving on addr. Blocks until the listener fails or Shutdown
// is called; returns http.ErrServerClosed on clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and closes WebSocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.connManager.CloseAll()
	if s.http == nil {
		return nil
	}
	err := s.http.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler exposes the route tree, used by tests.
func (s *Server) Handler() http.Handler { return s.echo }
