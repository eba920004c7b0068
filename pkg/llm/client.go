package llm

import (
	"context"
	"fmt"

	"github.com/agent-world/agentworld/pkg/models"
)

// Client is the contract every provider integration satisfies.
type Client interface {
	// Generate performs a non-streaming completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Stream performs a streaming completion, invoking onChunk for each
	// text delta, and returns the accumulated final response.
	Stream(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error)
}

// ClientConfig selects and authenticates a provider client.
type ClientConfig struct {
	Provider models.Provider
	APIKey   string

	// BaseURL overrides the provider endpoint. Required for
	// openai-compatible and azure; optional for xai and ollama, which have
	// conventional defaults.
	BaseURL string
}

// Conventional endpoints for the OpenAI-compatible family.
const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	defaultXAIBaseURL    = "https://api.x.ai/v1"
)

// ClientFor partitions providers onto their clients: the OpenAI-compatible
// family shares one client, Anthropic and Google get their own, anything
// else fails with ErrUnsupportedProvider.
func ClientFor(cfg ClientConfig) (Client, error) {
	switch {
	case cfg.Provider.OpenAICompatible():
		baseURL := cfg.BaseURL
		switch cfg.Provider {
		case models.ProviderOllama:
			if baseURL == "" {
				baseURL = defaultOllamaBaseURL
			}
		case models.ProviderXAI:
			if baseURL == "" {
				baseURL = defaultXAIBaseURL
			}
		}
		return newOpenAIClient(cfg.Provider, cfg.APIKey, baseURL), nil
	case cfg.Provider == models.ProviderAnthropic:
		return newAnthropicClient(cfg.APIKey), nil
	case cfg.Provider == models.ProviderGoogle:
		return newGoogleClient(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
