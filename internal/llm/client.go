package llm

import (
	"context"
	"encoding/json"
)

// Request is a single-turn chat call. When Function is set the provider is
// forced to call it and Response.Arguments carries its JSON arguments.
type Request struct {
	System      string          `json:"system"`
	User        string          `json:"user"`
	Function    *FunctionSchema `json:"function,omitempty"`
	Temperature float32         `json:"temperature"`
}

type Response struct {
	Text      string          `json:"text,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Usage     Usage           `json:"usage"`
}

type LLMClient interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
