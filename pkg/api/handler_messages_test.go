package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/world"
)

func setupMessageWorld(t *testing.T, s *Server) {
	t.Helper()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/worlds", models.CreateWorldParams{Name: "talk"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/worlds/talk/agents", models.CreateAgentParams{
		Name:     "Echo",
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestSendMessageTriggersAgentReply(t *testing.T) {
	s := newTestServer(t)
	setupMessageWorld(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/worlds/talk/messages", SendMessageRequest{Content: "hi there"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.MessageID)
	assert.NotEmpty(t, resp.ChatID)
	assert.Equal(t, "published", resp.Status)

	// The agent responds asynchronously; the transcript ends up with the
	// user message and the stub's reply.
	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/worlds/talk/memory", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var transcript []models.AgentMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &transcript); err != nil {
			return false
		}
		return len(transcript) >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSendMessageValidation(t *testing.T) {
	s := newTestServer(t)
	setupMessageWorld(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/worlds/talk/messages", SendMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/worlds/talk/messages",
		SendMessageRequest{Content: strings.Repeat("x", maxMessageLength+1)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/worlds/missing/messages", SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditMessageRoundTrip(t *testing.T) {
	s := newTestServer(t)
	setupMessageWorld(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/worlds/talk/messages", SendMessageRequest{Content: "original question"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var sent MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))

	// Wait for the reply so the edit has something to truncate.
	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/worlds/talk/memory", nil)
		var transcript []models.AgentMessage
		_ = json.Unmarshal(rec.Body.Bytes(), &transcript)
		return len(transcript) >= 2
	}, 5*time.Second, 20*time.Millisecond)

	rec = doJSON(t, s, http.MethodPatch, "/api/v1/worlds/talk/messages/"+sent.MessageID,
		EditMessageRequest{Content: "edited question"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result world.RemovalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, world.ResubmissionSuccess, result.ResubmissionStatus)
	assert.NotEmpty(t, result.NewMessageID)
	assert.NotEqual(t, sent.MessageID, result.NewMessageID)
}

func TestEditUnknownMessageReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	setupMessageWorld(t, s)

	rec := doJSON(t, s, http.MethodPatch, "/api/v1/worlds/talk/messages/nope123456",
		EditMessageRequest{Content: "edited"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var result world.RemovalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
}
