package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agent-world/agentworld/pkg/models"
)

// anthropicClient drives the Anthropic messages API. Tool calls map to
// tool_use blocks on assistant turns and tool_result blocks on user turns;
// system messages are lifted into the top-level system parameter.
type anthropicClient struct {
	client anthropic.Client
}

var _ Client = (*anthropicClient)(nil)

func newAnthropicClient(apiKey string) *anthropicClient {
	return &anthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// anthropicDefaultMaxTokens applies when the caller does not set a budget;
// the messages API requires max_tokens.
const anthropicDefaultMaxTokens = 4096

func (c *anthropicClient) Generate(ctx context.Context, req Request) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, c.wrap(err)
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.wrap(err)
	}
	out, err := convertAnthropicMessage(msg)
	if err != nil {
		return nil, c.wrap(err)
	}
	return out, nil
}

func (c *anthropicClient) Stream(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, c.wrap(err)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var acc anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, c.wrap(fmt.Errorf("accumulating stream event: %w", err))
		}
		if onChunk == nil {
			continue
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				onChunk(Chunk{Delta: text.Text})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, c.wrap(err)
	}

	out, err := convertAnthropicMessage(&acc)
	if err != nil {
		return nil, c.wrap(err)
	}
	return out, nil
}

func (c *anthropicClient) buildParams(req Request) (anthropic.MessageNewParams, error) {
	var systemParts []string
	var messages []anthropic.MessageParam

	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			systemParts = append(systemParts, m.Content)
		case models.RoleUser:
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
			})
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case models.RoleTool:
			// Tool results ride on user turns in the messages API.
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
				},
			})
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unknown message role %q", m.Role)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(systemParts) > 0 {
		params.System = []anthropic.TextBlockParam{{
			Text: strings.Join(systemParts, "\n\n"),
		}}
	}
	for _, td := range req.Tools {
		schema := anthropic.ToolInputSchemaParam{Type: "object"}
		if props, ok := td.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if required, ok := td.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParamOfTool(schema, td.Name))
	}
	return params, nil
}

func convertAnthropicMessage(msg *anthropic.Message) (*Response, error) {
	out := &Response{
		Kind: ResponseText,
		Usage: &models.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for i := range msg.Content {
		block := &msg.Content[i]
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args := map[string]any{}
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					return nil, fmt.Errorf("decoding tool_use input of %s: %w", tu.ID, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.Kind = ResponseToolCalls
	}
	return out, nil
}

func (c *anthropicClient) wrap(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &ProviderError{Provider: models.ProviderAnthropic, StatusCode: apierr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: models.ProviderAnthropic, Err: err}
}
