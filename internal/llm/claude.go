package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

// ClaudeClient has no embedding endpoint; pair it with another embedder.
type ClaudeClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewClaudeClient(apiKey, model, baseURL string, maxTokens int) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *ClaudeClient) Complete(ctx context.Context, req Request) (*Response, error) {
	msgReq := anthropic.MessagesRequest{
		Model:  anthropic.Model(c.model),
		System: req.System,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(req.User),
				},
			},
		},
		MaxTokens: c.maxTokens,
	}
	if req.Function != nil {
		msgReq.Tools = []anthropic.ToolDefinition{{
			Name:        req.Function.Name,
			Description: req.Function.Description,
			InputSchema: req.Function.Parameters(),
		}}
		msgReq.ToolChoice = &anthropic.ToolChoice{
			Type: "tool",
			Name: req.Function.Name,
		}
	}

	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		return nil, err
	}

	out := &Response{
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}
	for _, part := range resp.Content {
		switch part.Type {
		case anthropic.MessagesContentTypeText:
			if part.Text != nil {
				out.Text += *part.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if part.MessageContentToolUse != nil && req.Function != nil && part.Name == req.Function.Name {
				out.Arguments = part.Input
			}
		}
	}
	if out.Text == "" && out.Arguments == nil {
		return nil, fmt.Errorf("no response content")
	}
	return out, nil
}
