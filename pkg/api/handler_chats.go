package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agent-world/agentworld/pkg/models"
)

// newChatHandler handles POST /api/v1/worlds/:world/chats. An unnamed request
// reuses the current chat when it is still the untouched default.
func (s *Server) newChatHandler(c *echo.Context) error {
	var params models.NewChatParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	chat, err := s.manager.NewChat(c.Request().Context(), c.Param("world"), params)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, chat)
}

// listChatsHandler handles GET /api/v1/worlds/:world/chats.
func (s *Server) listChatsHandler(c *echo.Context) error {
	chats, err := s.manager.ListChats(c.Request().Context(), c.Param("world"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, chats)
}

// loadChatHandler handles POST /api/v1/worlds/:world/chats/:chat/load.
// Switches the world's current chat.
func (s *Server) loadChatHandler(c *echo.Context) error {
	chat, err := s.manager.LoadChat(c.Request().Context(), c.Param("world"), c.Param("chat"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, chat)
}

// deleteChatHandler handles DELETE /api/v1/worlds/:world/chats/:chat.
func (s *Server) deleteChatHandler(c *echo.Context) error {
	if err := s.manager.DeleteChat(c.Request().Context(), c.Param("world"), c.Param("chat")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// getMemoryHandler handles GET /api/v1/worlds/:world/memory. The optional
// "chat" query selects a chat; empty means the current one.
func (s *Server) getMemoryHandler(c *echo.Context) error {
	transcript, err := s.manager.GetMemory(c.Request().Context(), c.Param("world"), c.QueryParam("chat"))
	if err != nil {
		return mapServiceError(err)
	}
	if transcript == nil {
		transcript = []models.AgentMessage{}
	}
	return c.JSON(http.StatusOK, transcript)
}
