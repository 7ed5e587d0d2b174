package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bankchat/internal/agent"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type Options struct {
	APIKey  string
	BaseURL string
}

// Client 是非流式补全的薄封装，流式路径由 internal/stream 自行处理。
type Client struct {
	api *openai.Client
}

func New(opts Options) (*Client, error) {
	base := NormalizeBaseURL(opts.BaseURL)
	if base == "" {
		return nil, errors.New("missing base url")
	}
	cfg := []option.RequestOption{
		option.WithBaseURL(base + "/"),
	}
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		cfg = append(cfg, option.WithAPIKey(key))
	} else {
		// the gateway does not check credentials, but the SDK insists on a key
		cfg = append(cfg, option.WithAPIKey("unused"))
	}
	client := openai.NewClient(cfg...)
	return &Client{api: &client}, nil
}

func (c *Client) Complete(ctx context.Context, prompt agent.Prompt) (string, error) {
	opts := prompt.Options.WithDefaults()
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(opts.Model),
		Messages:    toChatMessages(prompt.Messages),
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
		Temperature: openai.Float(opts.Temperature),
		TopP:        openai.Float(opts.TopP),
	}
	if len(prompt.Tools) > 0 {
		params.Tools = toChatTools(prompt.Tools)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapHTTPError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	choice := resp.Choices[0]
	text := choice.Message.Content
	for _, call := range choice.Message.ToolCalls {
		if call.Function.Name == "" {
			continue
		}
		text += fmt.Sprintf("\n[tool_call %s %s]", call.Function.Name, call.Function.Arguments)
	}
	return text, nil
}

func toChatMessages(msgs []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case agent.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toChatTools(specs []agent.ToolSpec) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:       name,
			Parameters: spec.Parameters,
		}
		if desc := strings.TrimSpace(spec.Description); desc != "" {
			fn.Description = openai.String(desc)
		}
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: fn,
			},
		})
	}
	return tools
}

func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
			return fmt.Errorf("http_%d: %s", apiErr.StatusCode, raw)
		}
		return fmt.Errorf("http_%d: %w", apiErr.StatusCode, err)
	}
	return err
}
