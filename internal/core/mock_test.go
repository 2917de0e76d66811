package core

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/agenthands/moralgraph/internal/llm"
)

type MockEmbedder struct {
	Vectors map[string][]float32
	Calls   int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	v, ok := m.Vectors[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return v, nil
}

type MockLLM struct {
	Response      *llm.Response
	Err           error
	ResponseQueue []*llm.Response
	Requests      []llm.Request
}

func (m *MockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.Requests = append(m.Requests, req)
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Response == nil {
		return nil, errors.New("unexpected llm call")
	}
	return m.Response, nil
}

func arguments(v any) *llm.Response {
	b, _ := json.Marshal(v)
	return &llm.Response{
		Arguments: b,
		Usage:     llm.Usage{PromptTokens: 1000, CompletionTokens: 100},
	}
}
