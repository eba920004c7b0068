// Package llm provides the provider-neutral LLM client abstraction and the
// concrete clients behind it: one OpenAI-compatible client covering OpenAI,
// Azure, custom endpoints, xAI and Ollama, plus dedicated Anthropic and
// Google clients. Dispatch happens in ClientFor; everything above this
// package works with Request/Response only.
package llm

import (
	"github.com/agent-world/agentworld/pkg/models"
)

// Message is one entry of the provider-neutral conversation. The subset
// {Role, Content, ToolCalls, ToolCallID} is exactly what crosses the wire;
// sender and chat bookkeeping are stripped before a request is built.
type Message struct {
	Role       models.Role       `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes one callable tool. Parameters is a normalized
// JSON schema object (see the mcp package for the normalization rules).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// ResponseKind discriminates the Response union.
type ResponseKind string

const (
	// ResponseText is a final assistant text answer.
	ResponseText ResponseKind = "text"
	// ResponseToolCalls asks the caller to execute tools and continue.
	ResponseToolCalls ResponseKind = "tool_calls"
)

// Response is the tagged union every provider client returns.
type Response struct {
	Kind      ResponseKind      `json:"type"`
	Content   string            `json:"content,omitempty"`
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
	Usage     *models.Usage     `json:"usage,omitempty"`
}

// Chunk is one streamed delta, forwarded to the caller's chunk callback as
// it arrives.
type Chunk struct {
	Delta string
}

// StreamResult pairs the final response of a streaming call with the
// message id the stream's sse events were published under.
type StreamResult struct {
	Response  *Response
	MessageID string
}
