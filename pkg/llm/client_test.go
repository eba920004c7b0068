package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-world/agentworld/pkg/models"
)

func TestClientFor(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ClientConfig
		wantType any
		wantErr  error
	}{
		{
			name:     "openai",
			cfg:      ClientConfig{Provider: models.ProviderOpenAI, APIKey: "sk-test"},
			wantType: &openAIClient{},
		},
		{
			name:     "azure with endpoint",
			cfg:      ClientConfig{Provider: models.ProviderAzure, APIKey: "key", BaseURL: "https://example.openai.azure.com"},
			wantType: &openAIClient{},
		},
		{
			name:     "openai-compatible",
			cfg:      ClientConfig{Provider: models.ProviderOpenAICompatible, APIKey: "key", BaseURL: "http://localhost:8080/v1"},
			wantType: &openAIClient{},
		},
		{
			name:     "xai",
			cfg:      ClientConfig{Provider: models.ProviderXAI, APIKey: "key"},
			wantType: &openAIClient{},
		},
		{
			name:     "ollama without base url",
			cfg:      ClientConfig{Provider: models.ProviderOllama},
			wantType: &openAIClient{},
		},
		{
			name:     "anthropic",
			cfg:      ClientConfig{Provider: models.ProviderAnthropic, APIKey: "key"},
			wantType: &anthropicClient{},
		},
		{
			name:     "google",
			cfg:      ClientConfig{Provider: models.ProviderGoogle, APIKey: "key"},
			wantType: &googleClient{},
		},
		{
			name:    "unknown provider",
			cfg:     ClientConfig{Provider: "mistral"},
			wantErr: ErrUnsupportedProvider,
		},
		{
			name:    "empty provider",
			cfg:     ClientConfig{},
			wantErr: ErrUnsupportedProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := ClientFor(tt.cfg)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, client)
		})
	}
}

func TestDecodeToolCall(t *testing.T) {
	tests := []struct {
		name     string
		rawArgs  string
		wantArgs map[string]any
		wantErr  bool
	}{
		{
			name:     "object arguments",
			rawArgs:  `{"path": "/tmp/x", "count": 3}`,
			wantArgs: map[string]any{"path": "/tmp/x", "count": float64(3)},
		},
		{
			name:     "empty string means no arguments",
			rawArgs:  "",
			wantArgs: map[string]any{},
		},
		{
			name:     "empty object",
			rawArgs:  `{}`,
			wantArgs: map[string]any{},
		},
		{
			name:    "malformed json",
			rawArgs: `{"path": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := decodeToolCall("call-1", "read_file", tt.rawArgs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "call-1", call.ID)
			assert.Equal(t, "read_file", call.Name)
			assert.Equal(t, tt.wantArgs, call.Arguments)
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := ErrUnsupportedProvider
	err := &ProviderError{Provider: models.ProviderOpenAI, StatusCode: 429, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "openai")
}

func TestGoogleSchema(t *testing.T) {
	schema, err := googleSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search text"},
			"limit": map[string]any{"type": "number"},
		},
		"required": []any{"query"},
	})
	require.NoError(t, err)

	require.NotNil(t, schema)
	require.Contains(t, schema.Properties, "query")
	assert.Equal(t, "search text", schema.Properties["query"].Description)
	assert.Equal(t, []string{"query"}, schema.Required)
}

func TestGoogleSchemaEmpty(t *testing.T) {
	schema, err := googleSchema(nil)
	require.NoError(t, err)
	require.NotNil(t, schema)
}
