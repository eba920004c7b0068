package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agent-world/agentworld/pkg/models"
)

// createWorldHandler handles POST /api/v1/worlds.
func (s *Server) createWorldHandler(c *echo.Context) error {
	var params models.CreateWorldParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if params.Name == "" && params.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	w, err := s.manager.CreateWorld(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, w.Data())
}

// listWorldsHandler handles GET /api/v1/worlds.
func (s *Server) listWorldsHandler(c *echo.Context) error {
	worlds, err := s.manager.ListWorlds(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, worlds)
}

// getWorldHandler handles GET /api/v1/worlds/:world.
func (s *Server) getWorldHandler(c *echo.Context) error {
	w, err := s.manager.GetWorld(c.Request().Context(), c.Param("world"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, w.Data())
}

// updateWorldHandler handles PATCH /api/v1/worlds/:world.
func (s *Server) updateWorldHandler(c *echo.Context) error {
	var params models.UpdateWorldParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	w, err := s.manager.UpdateWorld(c.Request().Context(), c.Param("world"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, w.Data())
}

// deleteWorldHandler handles DELETE /api/v1/worlds/:world.
func (s *Server) deleteWorldHandler(c *echo.Context) error {
	if err := s.manager.DeleteWorld(c.Request().Context(), c.Param("world")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// exportWorldHandler handles GET /api/v1/worlds/:world/export. Returns the
// world's configuration and transcripts as a markdown document.
func (s *Server) exportWorldHandler(c *echo.Context) error {
	md, err := s.manager.ExportWorldToMarkdown(c.Request().Context(), c.Param("world"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

// integrityHandler handles GET /api/v1/worlds/:world/integrity.
func (s *Server) integrityHandler(c *echo.Context) error {
	w, err := s.manager.GetWorld(c.Request().Context(), c.Param("world"))
	if err != nil {
		return mapServiceError(err)
	}
	report, err := s.store.ValidateIntegrity(c.Request().Context(), w.ID())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// repairHandler handles POST /api/v1/worlds/:world/repair.
func (s *Server) repairHandler(c *echo.Context) error {
	w, err := s.manager.GetWorld(c.Request().Context(), c.Param("world"))
	if err != nil {
		return mapServiceError(err)
	}
	result, err := s.store.RepairData(c.Request().Context(), w.ID())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}
