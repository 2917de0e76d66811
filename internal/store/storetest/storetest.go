// Package storetest is a behavioral suite every store.Store must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("Inputs", func(t *testing.T) { testInputs(t, newStore(t)) })
	t.Run("SingleActiveRun", func(t *testing.T) { testSingleActiveRun(t, newStore(t)) })
	t.Run("IdempotentLinking", func(t *testing.T) { testIdempotentLinking(t, newStore(t)) })
	t.Run("MergeRepoints", func(t *testing.T) { testMergeRepoints(t, newStore(t)) })
	t.Run("MergeCommutes", func(t *testing.T) { testMergeCommutes(t, newStore) })
	t.Run("EdgesAndContexts", func(t *testing.T) { testEdgesAndContexts(t, newStore(t)) })
	t.Run("ContextAliasesKeepFirst", func(t *testing.T) { testContextAliases(t, newStore(t)) })
}

type fixture struct {
	gen   int64
	run   int64
	raw   []model.RawCard
	edges []model.RawEdge
}

// seed imports four raw cards (a, b, c, d) and edges a->b, c->d, a->d in
// context "ctx", then opens a run.
func seed(t *testing.T, s store.Store) fixture {
	ctx := context.Background()
	g, err := s.CreateGeneration(ctx)
	require.NoError(t, err)

	raw, err := s.CreateRawCards(ctx, g.ID, []model.RawCard{
		{Title: "a", Policies: []string{"pa"}, ChoiceContext: "ctx"},
		{Title: "b", Policies: []string{"pb"}},
		{Title: "c", Policies: []string{"pc"}},
		{Title: "d", Policies: []string{"pd"}},
	})
	require.NoError(t, err)
	require.Len(t, raw, 4)

	edges, err := s.CreateRawEdges(ctx, g.ID, []model.RawEdge{
		{FromID: raw[0].ID, ToID: raw[1].ID, ContextName: "ctx", Metadata: model.EdgeMetadata{"story": "s1"}},
		{FromID: raw[2].ID, ToID: raw[3].ID, ContextName: "ctx"},
		{FromID: raw[0].ID, ToID: raw[3].ID, ContextName: "ctx"},
	})
	require.NoError(t, err)

	run, err := s.CreateRun(ctx, g.ID)
	require.NoError(t, err)
	return fixture{gen: g.ID, run: run.ID, raw: raw, edges: edges}
}

func canonical(t *testing.T, s store.Store, f fixture, raw model.RawCard) model.CanonicalCard {
	c, err := s.CreateCanonicalCard(context.Background(), model.CanonicalFromRaw(raw, f.run))
	require.NoError(t, err)
	return c
}

func link(t *testing.T, s store.Store, f fixture, raw model.RawCard, c model.CanonicalCard) {
	require.NoError(t, s.UpsertCardLink(context.Background(), model.CardLink{
		RawCardID: raw.ID, CanonicalCardID: c.ID, DeduplicationID: f.run,
	}))
}

func testInputs(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.LatestGenerationID(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	f := seed(t, s)
	latest, err := s.LatestGenerationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.gen, latest)

	cards, err := s.RawCards(ctx, f.gen)
	require.NoError(t, err)
	require.Len(t, cards, 4)
	assert.Equal(t, "a", cards[0].Title)
	assert.Equal(t, "ctx", cards[0].ChoiceContext)
	assert.Equal(t, []string{"pa"}, cards[0].Policies)
	assert.Nil(t, cards[0].Embedding)

	require.NoError(t, s.SetRawCardEmbedding(ctx, cards[0].ID, []float32{0.5, 0.5}))
	cards, err = s.RawCards(ctx, f.gen)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, cards[0].Embedding)

	edges, err := s.RawEdges(ctx, f.gen)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, "s1", edges[0].Metadata["story"])
}

func testSingleActiveRun(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	active, err := s.ActiveRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.run, active.ID)
	assert.Equal(t, model.RunInProgress, active.State)

	_, err = s.CreateRun(ctx, f.gen)
	assert.ErrorIs(t, err, store.ErrActiveRunExists)

	_, err = s.LatestFinishedRun(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.FinishRun(ctx, f.run))
	_, err = s.ActiveRun(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	finished, err := s.LatestFinishedRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.run, finished.ID)
	assert.NotNil(t, finished.FinishedAt)

	next, err := s.CreateRun(ctx, f.gen)
	require.NoError(t, err)
	assert.NotEqual(t, f.run, next.ID)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	got, err := s.Run(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, f.gen, got.GenerationID)
}

func testIdempotentLinking(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	c := canonical(t, s, f, f.raw[0])

	link(t, s, f, f.raw[0], c)
	link(t, s, f, f.raw[0], c)
	link(t, s, f, f.raw[1], c)

	links, err := s.CardLinks(ctx, f.run)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	got, err := s.CanonicalCardFor(ctx, f.run, f.raw[1].ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, []string{"pa"}, got.Policies)

	_, err = s.CanonicalCardFor(ctx, f.run, f.raw[2].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	unlinked, err := s.UnlinkedRawCards(ctx, f.gen, f.run)
	require.NoError(t, err)
	assert.Len(t, unlinked, 2)
	assert.Equal(t, f.raw[2].ID, unlinked[0].ID)
}

func testMergeRepoints(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	ca := canonical(t, s, f, f.raw[0])
	cb := canonical(t, s, f, f.raw[1])
	cd := canonical(t, s, f, f.raw[3])
	link(t, s, f, f.raw[0], ca)
	link(t, s, f, f.raw[1], cb)
	link(t, s, f, f.raw[3], cd)

	// a->b and a->d in the same context; merging d into b collapses them.
	e1, err := s.UpsertCanonicalEdge(ctx, model.CanonicalEdge{FromID: ca.ID, ToID: cb.ID, ContextName: "ctx", DeduplicationID: f.run})
	require.NoError(t, err)
	e2, err := s.UpsertCanonicalEdge(ctx, model.CanonicalEdge{FromID: ca.ID, ToID: cd.ID, ContextName: "ctx", DeduplicationID: f.run})
	require.NoError(t, err)
	require.NoError(t, s.UpsertEdgeLink(ctx, model.EdgeLink{RawEdgeID: f.edges[0].ID, CanonicalEdgeID: e1.ID, RawContextName: "ctx", CanonicalContextName: "ctx", DeduplicationID: f.run}))
	require.NoError(t, s.UpsertEdgeLink(ctx, model.EdgeLink{RawEdgeID: f.edges[2].ID, CanonicalEdgeID: e2.ID, RawContextName: "ctx", CanonicalContextName: "ctx", DeduplicationID: f.run}))
	require.NoError(t, s.UpsertCanonicalContext(ctx, model.CanonicalContext{Name: "ctx", DeduplicationID: f.run}))
	for _, id := range []int64{cb.ID, cd.ID} {
		require.NoError(t, s.UpsertCardContext(ctx, model.CardContext{CanonicalCardID: id, ContextName: "ctx", DeduplicationID: f.run}))
	}

	require.NoError(t, s.MergeCanonicalCards(ctx, f.run, cb.ID, cd.ID))
	require.NoError(t, s.MergeCanonicalCards(ctx, f.run, cb.ID, cd.ID))

	cards, err := s.CanonicalCards(ctx, f.run, store.CardFilter{})
	require.NoError(t, err)
	assert.Len(t, cards, 2)

	got, err := s.CanonicalCardFor(ctx, f.run, f.raw[3].ID)
	require.NoError(t, err)
	assert.Equal(t, cb.ID, got.ID)

	edges, err := s.CanonicalEdges(ctx, f.run, "")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, ca.ID, edges[0].FromID)
	assert.Equal(t, cb.ID, edges[0].ToID)

	links, err := s.EdgeLinks(ctx, f.run)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, edges[0].ID, l.CanonicalEdgeID)
	}

	ccs, err := s.CardContexts(ctx, f.run)
	require.NoError(t, err)
	assert.Equal(t, []model.CardContext{{CanonicalCardID: cb.ID, ContextName: "ctx", DeduplicationID: f.run}}, ccs)
}

// Merging x into y or y into x must leave the same partition of raw cards.
func testMergeCommutes(t *testing.T, newStore Factory) {
	ctx := context.Background()
	partition := func(intoLower bool) [][]string {
		s := newStore(t)
		f := seed(t, s)
		ca := canonical(t, s, f, f.raw[0])
		cc := canonical(t, s, f, f.raw[2])
		link(t, s, f, f.raw[0], ca)
		link(t, s, f, f.raw[1], ca)
		link(t, s, f, f.raw[2], cc)
		link(t, s, f, f.raw[3], cc)
		if intoLower {
			require.NoError(t, s.MergeCanonicalCards(ctx, f.run, ca.ID, cc.ID))
		} else {
			require.NoError(t, s.MergeCanonicalCards(ctx, f.run, cc.ID, ca.ID))
		}
		links, err := s.CardLinks(ctx, f.run)
		require.NoError(t, err)
		groups := map[int64][]string{}
		for _, l := range links {
			for _, r := range f.raw {
				if r.ID == l.RawCardID {
					groups[l.CanonicalCardID] = append(groups[l.CanonicalCardID], r.Title)
				}
			}
		}
		var out [][]string
		for _, g := range groups {
			out = append(out, g)
		}
		return out
	}

	assert.ElementsMatch(t, [][]string{{"a", "b", "c", "d"}}, partition(true))
	assert.ElementsMatch(t, [][]string{{"a", "b", "c", "d"}}, partition(false))
}

func testEdgesAndContexts(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	ca := canonical(t, s, f, f.raw[0])
	link(t, s, f, f.raw[0], ca)
	link(t, s, f, f.raw[1], ca)

	self := model.CanonicalEdge{FromID: ca.ID, ToID: ca.ID, ContextName: "ctx", Metadata: model.EdgeMetadata{"story": "first"}, DeduplicationID: f.run}
	e1, err := s.UpsertCanonicalEdge(ctx, self)
	require.NoError(t, err)
	assert.True(t, e1.IsSelfEdge())

	self.Metadata = model.EdgeMetadata{"story": "second"}
	e2, err := s.UpsertCanonicalEdge(ctx, self)
	require.NoError(t, err)
	assert.Equal(t, e1.ID, e2.ID)
	assert.Equal(t, "first", e2.Metadata["story"])

	other, err := s.UpsertCanonicalEdge(ctx, model.CanonicalEdge{FromID: ca.ID, ToID: ca.ID, ContextName: "other", DeduplicationID: f.run})
	require.NoError(t, err)
	assert.NotEqual(t, e1.ID, other.ID)

	inCtx, err := s.CanonicalEdges(ctx, f.run, "ctx")
	require.NoError(t, err)
	assert.Len(t, inCtx, 1)

	l := model.EdgeLink{RawEdgeID: f.edges[0].ID, CanonicalEdgeID: e1.ID, RawContextName: "ctx", CanonicalContextName: "ctx", DeduplicationID: f.run}
	require.NoError(t, s.UpsertEdgeLink(ctx, l))
	require.NoError(t, s.UpsertEdgeLink(ctx, l))
	links, err := s.EdgeLinks(ctx, f.run)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.NotEmpty(t, links[0].UUID)

	unlinked, err := s.UnlinkedRawEdges(ctx, f.gen, f.run)
	require.NoError(t, err)
	assert.Len(t, unlinked, 2)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.UpsertCanonicalContext(ctx, model.CanonicalContext{Name: "ctx", DeduplicationID: f.run}))
		require.NoError(t, s.UpsertCardContext(ctx, model.CardContext{CanonicalCardID: ca.ID, ContextName: "ctx", DeduplicationID: f.run}))
	}
	contexts, err := s.CanonicalContexts(ctx, f.run)
	require.NoError(t, err)
	assert.Equal(t, []model.CanonicalContext{{Name: "ctx", DeduplicationID: f.run}}, contexts)

	filtered, err := s.CanonicalCards(ctx, f.run, store.CardFilter{ContextName: "ctx"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ca.ID, filtered[0].ID)

	none, err := s.CanonicalCards(ctx, f.run, store.CardFilter{ContextName: "missing"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testContextAliases(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)

	none, err := s.ContextAliases(ctx, f.run)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.SaveContextAliases(ctx, []model.ContextAlias{
		{RawName: "truthfulness", CanonicalName: "honesty", DeduplicationID: f.run},
		{RawName: "honesty", CanonicalName: "honesty", DeduplicationID: f.run},
	}))
	require.NoError(t, s.SaveContextAliases(ctx, []model.ContextAlias{
		{RawName: "truthfulness", CanonicalName: "truthfulness", DeduplicationID: f.run},
		{RawName: "grief", CanonicalName: "grief", DeduplicationID: f.run},
	}))
	require.NoError(t, s.SaveContextAliases(ctx, nil))

	got, err := s.ContextAliases(ctx, f.run)
	require.NoError(t, err)
	assert.Equal(t, []model.ContextAlias{
		{RawName: "grief", CanonicalName: "grief", DeduplicationID: f.run},
		{RawName: "honesty", CanonicalName: "honesty", DeduplicationID: f.run},
		{RawName: "truthfulness", CanonicalName: "honesty", DeduplicationID: f.run},
	}, got)

	other, err := s.ContextAliases(ctx, f.run+1)
	require.NoError(t, err)
	assert.Empty(t, other)
}
