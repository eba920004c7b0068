package api

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// sendMessageHandler handles POST /api/v1/worlds/:world/messages. Publishes a
// user message onto the world's bus; agent responses stream over /ws.
func (s *Server) sendMessageHandler(c *echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	if len(req.Content) > maxMessageLength {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("content exceeds maximum length of %d bytes", maxMessageLength))
	}

	ev, err := s.manager.PublishUserMessage(c.Request().Context(), c.Param("world"), req.Content, req.Sender, req.ChatID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &MessageResponse{
		MessageID: ev.Message.MessageID,
		ChatID:    ev.Message.ChatID,
		EventID:   ev.ID,
		Status:    "published",
	})
}

// editMessageHandler handles PATCH /api/v1/worlds/:world/messages/:id. Stops
// in-flight processing, truncates every agent's memory from the edited
// message onward and resubmits the new content.
func (s *Server) editMessageHandler(c *echo.Context) error {
	var req EditMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	if len(req.Content) > maxMessageLength {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("content exceeds maximum length of %d bytes", maxMessageLength))
	}

	result, err := s.manager.EditUserMessage(c.Request().Context(), c.Param("world"), req.ChatID, c.Param("id"), req.Content)
	if err != nil {
		return mapServiceError(err)
	}
	if !result.Success {
		return c.JSON(http.StatusNotFound, result)
	}
	return c.JSON(http.StatusOK, result)
}
