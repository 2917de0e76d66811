package graphfile

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store/memory"
)

const sample = `{
  "values": [
    {"id": "v1", "data": {"title": "Hard truths", "policies": ["MOMENTS when a friend tells me something hard"], "choice_context": "honesty"}},
    {"id": "v2", "data": {"title": "Honest friends", "policies": ["MOMENTS when a friend is honest"], "choice_context": "honesty"}}
  ],
  "edges": [
    {"from_id": "v1", "to_id": "v2", "context": "truthfulness", "metadata": {"story": "s1", "problem": {"description": "p"}}}
  ],
  "seed_questions": ["How should I give feedback?"]
}`

func TestImport(t *testing.T) {
	ctx := context.Background()
	g, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"How should I give feedback?"}, g.SeedQuestions)

	st := memory.New()
	genID, err := Import(ctx, st, g)
	require.NoError(t, err)

	cards, err := st.RawCards(ctx, genID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "Hard truths", cards[0].Title)
	assert.Equal(t, "honesty", cards[0].ChoiceContext)

	edges, err := st.RawEdges(ctx, genID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, cards[0].ID, edges[0].FromID)
	assert.Equal(t, cards[1].ID, edges[0].ToID)
	assert.Equal(t, "truthfulness", edges[0].ContextName)
	assert.Equal(t, "s1", edges[0].Metadata["story"])

	latest, err := st.LatestGenerationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, genID, latest)
}

func TestImportRejectsDanglingEdge(t *testing.T) {
	st := memory.New()
	g := &Graph{
		Values: []Value{{ID: "a", Data: ValueData{Policies: []string{"X"}}}},
		Edges:  []Edge{{FromID: "a", ToID: "missing", Context: "c"}},
	}
	_, err := Import(context.Background(), st, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = st.LatestGenerationID(context.Background())
	assert.Error(t, err)
}

func TestImportAssignsMissingIDs(t *testing.T) {
	g := &Graph{Values: []Value{{Data: ValueData{Policies: []string{"X"}}}}}
	_, err := Import(context.Background(), memory.New(), g)
	require.NoError(t, err)
	assert.NotEmpty(t, g.Values[0].ID)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	gen, err := st.CreateGeneration(ctx)
	require.NoError(t, err)
	run, err := st.CreateRun(ctx, gen.ID)
	require.NoError(t, err)

	a, err := st.CreateCanonicalCard(ctx, model.CanonicalCard{Title: "A", Policies: []string{"PA"}, DeduplicationID: run.ID})
	require.NoError(t, err)
	b, err := st.CreateCanonicalCard(ctx, model.CanonicalCard{Title: "B", Policies: []string{"PB"}, DeduplicationID: run.ID})
	require.NoError(t, err)
	_, err = st.UpsertCanonicalEdge(ctx, model.CanonicalEdge{
		FromID: a.ID, ToID: b.ID, ContextName: "honesty",
		Metadata: model.EdgeMetadata{"story": "s1"}, DeduplicationID: run.ID,
	})
	require.NoError(t, err)

	g, err := Export(ctx, st, run.ID)
	require.NoError(t, err)
	require.Len(t, g.Values, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, g.Values[0].ID, g.Edges[0].FromID)
	assert.Equal(t, g.Values[1].ID, g.Edges[0].ToID)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, g))
	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, "honesty", back.Edges[0].Context)
	assert.Equal(t, "PB", back.Values[1].Data.Policies[0])
}
