//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/core"
	"github.com/agenthands/moralgraph/internal/core/dedupe"
	"github.com/agenthands/moralgraph/internal/core/embedding"
	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/graphfile"
	"github.com/agenthands/moralgraph/internal/llm"
	"github.com/agenthands/moralgraph/internal/store"
)

type scriptedLLM struct {
	queue []*llm.Response
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if len(s.queue) == 0 {
		return nil, errors.New("unexpected llm call")
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r, nil
}

type tableEmbedder map[string][]float32

func (e tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := e[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return v, nil
}

// TestScriptedPipelineOnMemgraph checks the graph store under the real
// pipeline with deterministic model answers.
func TestScriptedPipelineOnMemgraph(t *testing.T) {
	st := newMemgraph(t)
	ctx := context.Background()

	g, err := graphfile.Read(strings.NewReader(sampleGraph))
	require.NoError(t, err)
	genID, err := graphfile.Import(ctx, st, g)
	require.NoError(t, err)

	cards, err := st.RawCards(ctx, genID)
	require.NoError(t, err)
	require.Len(t, cards, 3)

	embedder := tableEmbedder{
		"honesty":      {0, 0.1, 1},
		"truthfulness": {0, 0.15, 1},
	}
	vectors := [][]float32{{1, 0, 0}, {0.99, 0.05, 0}, {0, 1, 0}}
	for i, c := range cards {
		embedder[embedding.PolicyText(c.Policies)] = vectors[i]
	}

	answer, _ := json.Marshal(map[string]int64{"matching_id": cards[1].ID})
	chat := &scriptedLLM{queue: []*llm.Response{{Arguments: answer}}}

	opts := dedupe.DefaultOptions()
	opts.Retry = llm.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	p := core.NewPipeline(st, chat, embedder, opts, llm.Pricing{}, nil)

	stats, err := p.Run(ctx, genID)
	require.NoError(t, err)
	assert.True(t, stats.Finished)

	canonical, err := st.CanonicalCards(ctx, stats.RunID, store.CardFilter{})
	require.NoError(t, err)
	assert.Len(t, canonical, 2)

	contexts, err := st.CanonicalContexts(ctx, stats.RunID)
	require.NoError(t, err)
	assert.Equal(t, []model.CanonicalContext{{Name: "honesty", DeduplicationID: stats.RunID}}, contexts)

	edges, err := st.CanonicalEdges(ctx, stats.RunID, "honesty")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "first", edges[0].Metadata["story"])

	inContext, err := st.CanonicalCards(ctx, stats.RunID, store.CardFilter{ContextName: "honesty"})
	require.NoError(t, err)
	assert.Len(t, inContext, 2)
}
