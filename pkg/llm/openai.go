package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/agent-world/agentworld/pkg/models"
)

// openAIClient speaks the chat completions protocol. It serves every
// provider of the OpenAI-compatible family; only base URL and key differ.
type openAIClient struct {
	provider models.Provider
	client   oai.Client
}

var _ Client = (*openAIClient)(nil)

func newOpenAIClient(provider models.Provider, apiKey, baseURL string) *openAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAIClient{
		provider: provider,
		client:   oai.NewClient(opts...),
	}
}

func (c *openAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, c.wrap(err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, c.wrap(errors.New("empty choices in response"))
	}

	choice := resp.Choices[0]
	out := &Response{
		Kind:    ResponseText,
		Content: choice.Message.Content,
		Usage: &models.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		call, err := decodeToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			return nil, c.wrap(err)
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	if len(out.ToolCalls) > 0 {
		out.Kind = ResponseToolCalls
	}
	return out, nil
}

func (c *openAIClient) Stream(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, c.wrap(err)
	}
	params.StreamOptions = oai.ChatCompletionStreamOptionsParam{
		IncludeUsage: param.NewOpt(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	out := &Response{Kind: ResponseText}
	// Tool call fragments arrive keyed by index and must be reassembled.
	type partialCall struct {
		id   string
		name string
		args string
	}
	accum := map[int]*partialCall{}

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			out.Usage = &models.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			out.Content += delta.Content
			if onChunk != nil {
				onChunk(Chunk{Delta: delta.Content})
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index)
			pc, ok := accum[idx]
			if !ok {
				pc = &partialCall{}
				accum[idx] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args += tc.Function.Arguments
		}
	}
	if err := stream.Err(); err != nil {
		return nil, c.wrap(err)
	}

	for i := 0; i < len(accum); i++ {
		pc, ok := accum[i]
		if !ok {
			continue
		}
		call, err := decodeToolCall(pc.id, pc.name, pc.args)
		if err != nil {
			return nil, c.wrap(err)
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	if len(out.ToolCalls) > 0 {
		out.Kind = ResponseToolCalls
	}
	return out, nil
}

func (c *openAIClient) buildParams(req Request) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertOpenAIMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}
	return params, nil
}

func convertOpenAIMessage(m Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case models.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case models.RoleUser:
		return oai.UserMessage(m.Content), nil
	case models.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("encoding tool call %s arguments: %w", tc.ID, err)
			}
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case models.RoleTool:
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}

// decodeToolCall parses a provider's JSON argument string into the
// provider-neutral call shape. An empty argument string means no arguments.
func decodeToolCall(id, name, rawArgs string) (models.ToolCall, error) {
	call := models.ToolCall{ID: id, Name: name, Arguments: map[string]any{}}
	if rawArgs == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(rawArgs), &call.Arguments); err != nil {
		return models.ToolCall{}, fmt.Errorf("decoding arguments of tool call %s (%s): %w", id, name, err)
	}
	return call, nil
}

func (c *openAIClient) wrap(err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return &ProviderError{Provider: c.provider, StatusCode: apierr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: c.provider, Err: err}
}
