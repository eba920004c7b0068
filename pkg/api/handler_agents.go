package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agent-world/agentworld/pkg/models"
)

// createAgentHandler handles POST /api/v1/worlds/:world/agents.
func (s *Server) createAgentHandler(c *echo.Context) error {
	var params models.CreateAgentParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if params.Name == "" && params.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	agent, err := s.manager.CreateAgent(c.Request().Context(), c.Param("world"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, agent)
}

// listAgentsHandler handles GET /api/v1/worlds/:world/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	agents, err := s.manager.ListAgents(c.Request().Context(), c.Param("world"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, agents)
}

// getAgentHandler handles GET /api/v1/worlds/:world/agents/:agent.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agent, err := s.manager.GetAgent(c.Request().Context(), c.Param("world"), c.Param("agent"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// updateAgentHandler handles PATCH /api/v1/worlds/:world/agents/:agent.
func (s *Server) updateAgentHandler(c *echo.Context) error {
	var params models.UpdateAgentParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	agent, err := s.manager.UpdateAgent(c.Request().Context(), c.Param("world"), c.Param("agent"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// deleteAgentHandler handles DELETE /api/v1/worlds/:world/agents/:agent.
func (s *Server) deleteAgentHandler(c *echo.Context) error {
	if err := s.manager.DeleteAgent(c.Request().Context(), c.Param("world"), c.Param("agent")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// updateAgentMemoryHandler handles PUT /api/v1/worlds/:world/agents/:agent/memory.
// Replaces the agent's full memory; entries missing message ids get fresh ones.
func (s *Server) updateAgentMemoryHandler(c *echo.Context) error {
	var req UpdateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err := s.manager.UpdateAgentMemory(c.Request().Context(), c.Param("world"), c.Param("agent"), req.Memory)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": len(req.Memory)})
}

// clearAgentMemoryHandler handles DELETE /api/v1/worlds/:world/agents/:agent/memory.
// Archives the current memory, then clears it and resets the call count.
func (s *Server) clearAgentMemoryHandler(c *echo.Context) error {
	err := s.manager.ClearAgentMemory(c.Request().Context(), c.Param("world"), c.Param("agent"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
