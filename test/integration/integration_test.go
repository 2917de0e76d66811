//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/app"
	"github.com/agenthands/moralgraph/internal/config"
	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/driver"
	"github.com/agenthands/moralgraph/internal/graphfile"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
	"github.com/agenthands/moralgraph/internal/store/storetest"
)

// newMemgraph connects to MEMGRAPH_URI and wipes the database. The tests
// own the whole database, so do not point them at real data.
func newMemgraph(t *testing.T) *driver.GraphStore {
	t.Helper()
	_ = godotenv.Load("../../.env")

	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		t.Skip("Skipping integration test: MEMGRAPH_URI not set")
	}

	ctx := context.Background()
	d, err := driver.NewMemgraphDriver(ctx, uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	_, err = d.ExecuteQuery(ctx, `MATCH (n) DETACH DELETE n`, nil)
	require.NoError(t, err)
	require.NoError(t, d.BuildIndices(ctx))

	return driver.NewGraphStore(d, logger.NewNop())
}

func TestMemgraphStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newMemgraph(t) })
}

const sampleGraph = `{
  "values": [
    {"id": "a", "data": {"title": "Hard truths", "policies": ["MOMENTS when a friend tells me something hard to hear"], "choice_context": ""}},
    {"id": "b", "data": {"title": "Honest friends", "policies": ["MOMENTS when a friend is honest with me even if it hurts"], "choice_context": ""}},
    {"id": "c", "data": {"title": "Shared grief", "policies": ["SPACES where grief can be shared without fixing it"], "choice_context": ""}}
  ],
  "edges": [
    {"from_id": "a", "to_id": "c", "context": "truthfulness", "metadata": {"story": "first"}},
    {"from_id": "b", "to_id": "c", "context": "honesty", "metadata": {"story": "second"}}
  ]
}`

// TestPipelineOnMemgraph runs the full pipeline with the configured model
// provider. It needs LLM_PROVIDER and the provider's credentials.
func TestPipelineOnMemgraph(t *testing.T) {
	st := newMemgraph(t)
	if os.Getenv("LLM_PROVIDER") == "" {
		t.Skip("Skipping integration test: LLM_PROVIDER not set")
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	cfg.Cache.Backend = "none"
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	log := logger.NewNop()

	g, err := graphfile.Read(strings.NewReader(sampleGraph))
	require.NoError(t, err)
	genID, err := graphfile.Import(ctx, st, g)
	require.NoError(t, err)

	chat, embedder, closeCache, err := app.Models(ctx, cfg, log)
	require.NoError(t, err)
	defer closeCache()

	stats, err := app.NewPipeline(cfg, st, chat, embedder, log).Run(ctx, genID)
	require.NoError(t, err)
	assert.True(t, stats.Finished)
	t.Logf("stats: %+v", *stats)

	run, err := st.Run(ctx, stats.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFinished, run.State)

	links, err := st.CardLinks(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, links, 3)

	edgeLinks, err := st.EdgeLinks(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, edgeLinks, 2)

	exported, err := graphfile.Export(ctx, st, run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, exported.Values)
	assert.NotEmpty(t, exported.Edges)
}
