package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/agent-world/agentworld/pkg/models"
)

// googleClient drives the Gemini API. The genai SDK needs a context to
// construct its client, so construction is deferred to the first call.
type googleClient struct {
	apiKey string

	mu     sync.Mutex
	client *genai.Client
}

var _ Client = (*googleClient)(nil)

func newGoogleClient(apiKey string) *googleClient {
	return &googleClient{apiKey: apiKey}
}

func (c *googleClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *googleClient) Generate(ctx context.Context, req Request) (*Response, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, c.wrap(err)
	}
	contents, config, err := buildGoogleRequest(req)
	if err != nil {
		return nil, c.wrap(err)
	}

	result, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, c.wrap(err)
	}

	out := &Response{
		Kind:    ResponseText,
		Content: result.Text(),
		Usage:   googleUsage(result.UsageMetadata),
	}
	for _, fc := range result.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, googleToolCall(fc))
	}
	if len(out.ToolCalls) > 0 {
		out.Kind = ResponseToolCalls
	}
	return out, nil
}

func (c *googleClient) Stream(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, c.wrap(err)
	}
	contents, config, err := buildGoogleRequest(req)
	if err != nil {
		return nil, c.wrap(err)
	}

	out := &Response{Kind: ResponseText}
	for chunk, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return nil, c.wrap(err)
		}
		if text := chunk.Text(); text != "" {
			out.Content += text
			if onChunk != nil {
				onChunk(Chunk{Delta: text})
			}
		}
		for _, fc := range chunk.FunctionCalls() {
			out.ToolCalls = append(out.ToolCalls, googleToolCall(fc))
		}
		if chunk.UsageMetadata != nil {
			out.Usage = googleUsage(chunk.UsageMetadata)
		}
	}
	if len(out.ToolCalls) > 0 {
		out.Kind = ResponseToolCalls
	}
	return out, nil
}

func buildGoogleRequest(req Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var systemText string
	var contents []*genai.Content

	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += m.Content
		case models.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case models.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			if len(parts) == 0 {
				parts = append(parts, &genai.Part{Text: ""})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case models.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.ToolCallID,
					Response: map[string]any{"output": m.Content},
				}}},
			})
		default:
			return nil, nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if systemText != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemText}},
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, td := range req.Tools {
			schema, err := googleSchema(td.Parameters)
			if err != nil {
				return nil, nil, fmt.Errorf("converting schema of tool %s: %w", td.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  schema,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, config, nil
}

// googleSchema converts a JSON schema map into the SDK's schema type via its
// JSON tags.
func googleSchema(parameters map[string]any) (*genai.Schema, error) {
	if len(parameters) == 0 {
		return &genai.Schema{Type: genai.TypeObject}, nil
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	var schema genai.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func googleToolCall(fc *genai.FunctionCall) models.ToolCall {
	id := fc.ID
	if id == "" {
		id = models.NewCallID()
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return models.ToolCall{ID: id, Name: fc.Name, Arguments: args}
}

func googleUsage(meta *genai.GenerateContentResponseUsageMetadata) *models.Usage {
	if meta == nil {
		return nil
	}
	return &models.Usage{
		PromptTokens:     int(meta.PromptTokenCount),
		CompletionTokens: int(meta.CandidatesTokenCount),
		TotalTokens:      int(meta.TotalTokenCount),
	}
}

func (c *googleClient) wrap(err error) error {
	return &ProviderError{Provider: models.ProviderGoogle, Err: err}
}
