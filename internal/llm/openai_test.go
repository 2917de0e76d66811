package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIForcedFunctionCall(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "x", "object": "chat.completion", "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "best_card", "arguments": "{\"best_id\": 9}"}}]
			}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", "gpt-4o", "", srv.URL)
	resp, err := c.Complete(context.Background(), Request{System: "sys", User: "pick", Function: bestFn})
	require.NoError(t, err)

	assert.Equal(t, Usage{PromptTokens: 42, CompletionTokens: 7}, resp.Usage)
	got, err := Decode[bestCard](resp, bestFn)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.BestID)

	msgs := captured["messages"].([]any)
	assert.Len(t, msgs, 2)
	choice := captured["tool_choice"].(map[string]any)
	assert.Equal(t, "function", choice["type"])
	assert.Equal(t, "best_card", choice["function"].(map[string]any)["name"])
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", "gpt-4o", "", srv.URL)
	vec, err := c.Embed(context.Background(), "honesty")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}
