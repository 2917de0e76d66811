package llm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLLM struct {
	calls int
	resp  Response
}

func (c *countingLLM) Complete(ctx context.Context, req Request) (*Response, error) {
	c.calls++
	r := c.resp
	return &r, nil
}

func TestCacheKeyStable(t *testing.T) {
	req := Request{System: "s", User: "u", Function: bestFn}
	k1, err := CacheKey("gpt-4o", req)
	require.NoError(t, err)
	k2, err := CacheKey("gpt-4o", req)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := CacheKey("gpt-4o-mini", req)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	req.User = "other"
	k4, err := CacheKey("gpt-4o", req)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}

func TestCachedClientReplaysFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "llm.jsonl")

	fc, err := OpenFileCache(path)
	require.NoError(t, err)

	inner := &countingLLM{resp: Response{
		Arguments: []byte(`{"best_id":4}`),
		Usage:     Usage{PromptTokens: 100, CompletionTokens: 5},
	}}
	client := NewCachedClient(inner, fc, "gpt-4o", nil)
	req := Request{User: "pick one", Function: bestFn}

	first, err := client.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 100, first.Usage.PromptTokens)

	second, err := client.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.JSONEq(t, `{"best_id":4}`, string(second.Arguments))
	assert.Zero(t, second.Usage.Total())
	require.NoError(t, fc.Close())

	reopened, err := OpenFileCache(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Len())

	client = NewCachedClient(inner, reopened, "gpt-4o", nil)
	third, err := client.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	got, err := Decode[bestCard](third, bestFn)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.BestID)
}

type queuedLLM struct {
	calls   int
	replies []string
}

func (q *queuedLLM) Complete(ctx context.Context, req Request) (*Response, error) {
	r := q.replies[q.calls]
	q.calls++
	return &Response{Arguments: []byte(r)}, nil
}

func TestCachedClientSkipsInvalidReply(t *testing.T) {
	ctx := context.Background()
	fc, err := OpenFileCache(filepath.Join(t.TempDir(), "llm.jsonl"))
	require.NoError(t, err)
	defer fc.Close()

	inner := &queuedLLM{replies: []string{`{}`, `{"best_id":2}`}}
	client := NewCachedClient(inner, fc, "gpt-4o", nil)
	req := Request{User: "pick one", Function: bestFn}

	first, err := client.Complete(ctx, req)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(first.Arguments))
	assert.Equal(t, 0, fc.Len())

	second, err := client.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.JSONEq(t, `{"best_id":2}`, string(second.Arguments))
	assert.Equal(t, 1, fc.Len())
}

func TestCachedClientFreshReplyOverwrites(t *testing.T) {
	ctx := context.Background()
	fc, err := OpenFileCache(filepath.Join(t.TempDir(), "llm.jsonl"))
	require.NoError(t, err)
	defer fc.Close()

	inner := &queuedLLM{replies: []string{`{"best_id":9}`, `{"best_id":2}`}}
	client := NewCachedClient(inner, fc, "gpt-4o", nil)
	req := Request{User: "pick one", Function: bestFn}

	_, err = client.Complete(ctx, req)
	require.NoError(t, err)

	fresh, err := client.Complete(WithFreshReply(ctx), req)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.JSONEq(t, `{"best_id":2}`, string(fresh.Arguments))

	replayed, err := client.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.JSONEq(t, `{"best_id":2}`, string(replayed.Arguments))
}
