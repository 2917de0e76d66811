package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store"
)

type executed struct {
	Query  string
	Params map[string]interface{}
}

// MockDriver records every query and replays queued results in order.
type MockDriver struct {
	Executed []executed
	Results  []neo4j.EagerResult
	Err      error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Executed = append(m.Executed, executed{Query: query, Params: params})
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	if len(m.Results) == 0 {
		return neo4j.EagerResult{}, nil
	}
	r := m.Results[0]
	m.Results = m.Results[1:]
	return r, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }
func (m *MockDriver) Close(ctx context.Context) error        { return nil }

func rows(keys []string, values ...[]any) neo4j.EagerResult {
	res := neo4j.EagerResult{Keys: keys}
	for _, v := range values {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: v})
	}
	return res
}

func node(p map[string]any) neo4j.Node {
	return neo4j.Node{Props: p}
}

func TestCreateRunConflict(t *testing.T) {
	d := &MockDriver{Results: []neo4j.EagerResult{rows([]string{"r"})}}
	s := NewGraphStore(d, nil)

	_, err := s.CreateRun(context.Background(), 4)
	assert.ErrorIs(t, err, store.ErrActiveRunExists)
	require.Len(t, d.Executed, 1)
	assert.Equal(t, CreateRunQuery, d.Executed[0].Query)
	assert.Equal(t, int64(4), d.Executed[0].Params["generation_id"])
}

func TestCreateRunDecodesNode(t *testing.T) {
	d := &MockDriver{Results: []neo4j.EagerResult{
		rows([]string{"r"}, []any{node(map[string]any{
			"id": int64(3), "generation_id": int64(4), "state": "IN_PROGRESS", "created_at": int64(1_700_000_000_000_000_000),
		})}),
	}}
	run, err := NewGraphStore(d, nil).CreateRun(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), run.ID)
	assert.True(t, run.Active())
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, int64(1_700_000_000), run.CreatedAt.Unix())
}

func TestRawCardsDecode(t *testing.T) {
	d := &MockDriver{Results: []neo4j.EagerResult{
		rows([]string{"c"}, []any{node(map[string]any{
			"id":             int64(7),
			"title":          "Candor",
			"policies":       []any{"MOMENTS of candor", "FEELINGS of trust"},
			"generation_id":  int64(1),
			"choice_context": "when giving feedback",
			"embedding":      []any{0.5, 0.25},
		})}),
	}}
	cards, err := NewGraphStore(d, nil).RawCards(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Candor", cards[0].Title)
	assert.Equal(t, []string{"MOMENTS of candor", "FEELINGS of trust"}, cards[0].Policies)
	assert.Equal(t, []float32{0.5, 0.25}, cards[0].Embedding)
	assert.Equal(t, "when giving feedback", cards[0].ChoiceContext)
}

func TestCreateCanonicalCardAllocatesID(t *testing.T) {
	d := &MockDriver{Results: []neo4j.EagerResult{
		rows([]string{"id"}, []any{int64(12)}),
		rows([]string{"c"}, []any{node(map[string]any{"id": int64(12), "title": "Candor", "deduplication_id": int64(2)})}),
	}}
	card, err := NewGraphStore(d, nil).CreateCanonicalCard(context.Background(), model.CanonicalCard{
		Title: "Candor", DeduplicationID: 2, Embedding: []float32{1, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), card.ID)

	require.Len(t, d.Executed, 2)
	assert.Equal(t, NextIDQuery, d.Executed[0].Query)
	assert.Equal(t, "canonical_card", d.Executed[0].Params["name"])
	assert.Equal(t, int64(12), d.Executed[1].Params["id"])
	assert.Equal(t, []float64{1, 0}, d.Executed[1].Params["embedding"])
}

func TestMergeSkipsMissingDrop(t *testing.T) {
	d := &MockDriver{Results: []neo4j.EagerResult{rows([]string{"c"})}}
	err := NewGraphStore(d, nil).MergeCanonicalCards(context.Background(), 1, 2, 3)
	require.NoError(t, err)
	assert.Len(t, d.Executed, 1)
}

func TestMergeRunsStatementsInOrder(t *testing.T) {
	present := rows([]string{"c"}, []any{node(map[string]any{"id": int64(1)})})
	d := &MockDriver{Results: []neo4j.EagerResult{present, present}}
	err := NewGraphStore(d, nil).MergeCanonicalCards(context.Background(), 9, 2, 5)
	require.NoError(t, err)

	var got []string
	for _, e := range d.Executed[2:] {
		got = append(got, e.Query)
	}
	assert.Equal(t, []string{
		MergeCardLinksQuery,
		MergeCardContextsQuery,
		MergeOutgoingEdgesQuery,
		MergeIncomingEdgesQuery,
		DeleteCanonicalCardQuery,
	}, got)
	assert.Equal(t, int64(2), d.Executed[2].Params["keep"])
	assert.Equal(t, int64(5), d.Executed[2].Params["drop"])
	assert.Equal(t, int64(5), d.Executed[6].Params["id"])
}

func TestMergeMissingKeep(t *testing.T) {
	present := rows([]string{"c"}, []any{node(map[string]any{"id": int64(5)})})
	d := &MockDriver{Results: []neo4j.EagerResult{present, rows([]string{"c"})}}
	err := NewGraphStore(d, nil).MergeCanonicalCards(context.Background(), 9, 2, 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCanonicalEdgesMetadataRoundTrip(t *testing.T) {
	d := &MockDriver{Results: []neo4j.EagerResult{
		rows([]string{"id", "from_id", "to_id", "context_name", "metadata"},
			[]any{int64(1), int64(4), int64(4), "when being honest", `{"story":"s"}`}),
	}}
	edges, err := NewGraphStore(d, nil).CanonicalEdges(context.Background(), 3, "when being honest")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].IsSelfEdge())
	assert.Equal(t, "s", edges[0].Metadata["story"])
	assert.Equal(t, int64(3), edges[0].DeduplicationID)
	assert.Equal(t, "when being honest", d.Executed[0].Params["context_name"])
}

func TestUpsertEdgeLinkAssignsUUID(t *testing.T) {
	d := &MockDriver{}
	err := NewGraphStore(d, nil).UpsertEdgeLink(context.Background(), model.EdgeLink{RawEdgeID: 8, CanonicalEdgeID: 2, DeduplicationID: 1})
	require.NoError(t, err)
	assert.Len(t, d.Executed[0].Params["uuid"], 36)
}

func TestCanonicalCardsPassesEmptyIDs(t *testing.T) {
	d := &MockDriver{}
	_, err := NewGraphStore(d, nil).CanonicalCards(context.Background(), 1, store.CardFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{}, d.Executed[0].Params["ids"])
	assert.Equal(t, "", d.Executed[0].Params["context_name"])
}

func TestDriverErrorsPropagate(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewGraphStore(&MockDriver{Err: boom}, nil).Runs(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLatestGenerationEmpty(t *testing.T) {
	_, err := NewGraphStore(&MockDriver{}, nil).LatestGenerationID(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveContextAliasesSingleStatement(t *testing.T) {
	d := &MockDriver{}
	err := NewGraphStore(d, nil).SaveContextAliases(context.Background(), []model.ContextAlias{
		{RawName: "truthfulness", CanonicalName: "honesty", DeduplicationID: 3},
		{RawName: "honesty", CanonicalName: "honesty", DeduplicationID: 3},
	})
	require.NoError(t, err)
	require.Len(t, d.Executed, 1)
	assert.Equal(t, SaveContextAliasesQuery, d.Executed[0].Query)
	aliases, ok := d.Executed[0].Params["aliases"].([]any)
	require.True(t, ok)
	require.Len(t, aliases, 2)
	assert.Equal(t, "honesty", aliases[0].(map[string]any)["canonical_name"])

	require.NoError(t, NewGraphStore(d, nil).SaveContextAliases(context.Background(), nil))
	assert.Len(t, d.Executed, 1)
}
