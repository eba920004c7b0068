package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// queueStatusHandler handles GET /api/v1/queue.
func (s *Server) queueStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Status())
}

// clearQueueHandler handles POST /api/v1/queue/clear. Rejects every pending
// LLM call; the in-flight call is left to finish.
func (s *Server) clearQueueHandler(c *echo.Context) error {
	cleared := s.queue.Clear()
	return c.JSON(http.StatusOK, &ClearQueueResponse{Cleared: cleared})
}

// mcpStatusHandler handles GET /api/v1/mcp/servers.
func (s *Server) mcpStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Statuses())
}

// mcpPingHandler handles POST /api/v1/mcp/servers/:id/ping. Probes a
// registered server and refreshes its health timestamp.
func (s *Server) mcpPingHandler(c *echo.Context) error {
	if err := s.registry.Ping(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
