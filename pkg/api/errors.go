package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agent-world/agentworld/pkg/mcp"
	"github.com/agent-world/agentworld/pkg/queue"
	"github.com/agent-world/agentworld/pkg/storage"
	"github.com/agent-world/agentworld/pkg/world"
)

// mapServiceError maps runtime errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var notFound *world.NotFoundError
	if errors.As(err, &notFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	}
	var dup *world.DuplicateError
	if errors.As(err, &dup) {
		return echo.NewHTTPError(http.StatusConflict, dup.Error())
	}
	var cfgErr *mcp.ConfigError
	if errors.As(err, &cfgErr) {
		return echo.NewHTTPError(http.StatusBadRequest, cfgErr.Error())
	}
	if errors.Is(err, world.ErrWorldProcessing) {
		return echo.NewHTTPError(http.StatusConflict, "world is processing, try again shortly")
	}
	if errors.Is(err, queue.ErrQueueFull) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "llm queue is full")
	}
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, storage.ErrUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage backend unavailable")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
