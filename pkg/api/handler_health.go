package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agent-world/agentworld/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /healthz. Storage is probed with a cheap list;
// MCP servers are reported but never probed here, so a broken external
// server cannot flip the process to unhealthy.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.store.ListWorlds(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["storage"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["storage"] = HealthCheck{Status: healthStatusHealthy}
	}

	qs := s.queue.Status()
	if qs.Length >= qs.MaxQueueSize {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["queue"] = HealthCheck{Status: healthStatusDegraded, Message: "queue is full"}
	} else {
		checks["queue"] = HealthCheck{Status: healthStatusHealthy}
	}

	statuses := s.registry.Statuses()
	for _, inst := range statuses {
		if inst.Error != "" {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["mcp:"+inst.Name] = HealthCheck{Status: healthStatusDegraded, Message: inst.Error}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:      status,
		Version:     version.GitCommit,
		Checks:      checks,
		Queue:       qs,
		MCPServers:  statuses,
		Connections: s.connManager.ActiveConnections(),
	})
}
