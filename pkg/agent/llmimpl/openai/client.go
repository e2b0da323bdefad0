// Package openai implements the llm.Client interface against the OpenAI
// Chat Completions API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"dockhand/pkg/agent/llm"
)

// Client wraps the official OpenAI Go client.
type Client struct {
	client openai.Client
	model  string
}

// New creates a raw OpenAI client; middleware is applied at a higher level.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// reasoningModel reports whether the model rejects system messages and the
// temperature parameter.
func reasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}

// Complete sends a chat completion request. For reasoning models the system
// prompt is folded into the first user message.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, fmt.Errorf("message list cannot be empty")
	}

	fold := reasoningModel(c.model)
	var systemParts []string
	var messages []openai.ChatCompletionMessageParamUnion
	for i := range req.Messages {
		msg := &req.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			if fold {
				systemParts = append(systemParts, msg.Content)
			} else {
				messages = append(messages, openai.SystemMessage(msg.Content))
			}
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			content := msg.Content
			if len(systemParts) > 0 {
				content = strings.Join(systemParts, "\n\n") + "\n\n" + content
				systemParts = nil
			}
			messages = append(messages, openai.UserMessage(content))
		}
	}
	if len(systemParts) > 0 {
		messages = append(messages, openai.UserMessage(strings.Join(systemParts, "\n\n")))
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if !fold {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("received empty response from OpenAI API")
	}

	return llm.Response{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}
