package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// seed stores a finished run with three canonical cards: 1->2 in
// "honesty" and 2->3 in "grief".
func seed(t *testing.T) (*memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	gen, err := st.CreateGeneration(ctx)
	require.NoError(t, err)
	run, err := st.CreateRun(ctx, gen.ID)
	require.NoError(t, err)

	var ids []int64
	for _, title := range []string{"Hard truths", "Honest friends", "Shared grief"} {
		c, err := st.CreateCanonicalCard(ctx, model.CanonicalCard{Title: title, Policies: []string{title}, DeduplicationID: run.ID})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	for _, e := range []model.CanonicalEdge{
		{FromID: ids[0], ToID: ids[1], ContextName: "honesty", DeduplicationID: run.ID},
		{FromID: ids[1], ToID: ids[2], ContextName: "grief", DeduplicationID: run.ID},
	} {
		_, err := st.UpsertCanonicalEdge(ctx, e)
		require.NoError(t, err)
		require.NoError(t, st.UpsertCanonicalContext(ctx, model.CanonicalContext{Name: e.ContextName, DeduplicationID: run.ID}))
		for _, id := range []int64{e.FromID, e.ToID} {
			require.NoError(t, st.UpsertCardContext(ctx, model.CardContext{CanonicalCardID: id, ContextName: e.ContextName, DeduplicationID: run.ID}))
		}
	}
	require.NoError(t, st.FinishRun(ctx, run.ID))
	return st, run.ID
}

func get(t *testing.T, r http.Handler, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestRuns(t *testing.T) {
	st, runID := seed(t)
	r := NewServer(st, nil).SetupRouter()

	var list struct {
		Runs []model.DeduplicationRun `json:"runs"`
	}
	assert.Equal(t, http.StatusOK, get(t, r, "/runs", &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, model.RunFinished, list.Runs[0].State)

	var latest model.DeduplicationRun
	assert.Equal(t, http.StatusOK, get(t, r, "/runs/latest", &latest))
	assert.Equal(t, runID, latest.ID)
}

func TestLatestRunWithoutFinishedRun(t *testing.T) {
	r := NewServer(memory.New(), nil).SetupRouter()
	assert.Equal(t, http.StatusNotFound, get(t, r, "/runs/latest", nil))
}

func TestRunNotFoundAndBadID(t *testing.T) {
	st, _ := seed(t)
	r := NewServer(st, nil).SetupRouter()
	assert.Equal(t, http.StatusNotFound, get(t, r, "/runs/99/cards", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/runs/abc/cards", nil))
}

func TestCardsAndContexts(t *testing.T) {
	st, runID := seed(t)
	r := NewServer(st, nil).SetupRouter()
	base := "/runs/" + itoa(runID)

	var cards struct {
		Cards []model.CanonicalCard `json:"cards"`
	}
	assert.Equal(t, http.StatusOK, get(t, r, base+"/cards", &cards))
	assert.Len(t, cards.Cards, 3)
	assert.Equal(t, http.StatusOK, get(t, r, base+"/cards?context=grief", &cards))
	assert.Len(t, cards.Cards, 2)

	var contexts struct {
		Contexts []model.CanonicalContext `json:"contexts"`
	}
	assert.Equal(t, http.StatusOK, get(t, r, base+"/contexts", &contexts))
	assert.Len(t, contexts.Contexts, 2)
}

func TestEdgesAndGraph(t *testing.T) {
	st, runID := seed(t)
	r := NewServer(st, nil).SetupRouter()
	base := "/runs/" + itoa(runID)

	var edges struct {
		Edges []model.CanonicalEdge `json:"edges"`
	}
	assert.Equal(t, http.StatusOK, get(t, r, base+"/edges", &edges))
	assert.Len(t, edges.Edges, 2)
	assert.Equal(t, http.StatusOK, get(t, r, base+"/edges?context=honesty", &edges))
	require.Len(t, edges.Edges, 1)
	assert.Equal(t, "honesty", edges.Edges[0].ContextName)

	var g Graph
	assert.Equal(t, http.StatusOK, get(t, r, base+"/graph?context=honesty", &g))
	assert.Equal(t, "honesty", g.Context)
	require.Len(t, g.Edges, 1)
	require.Len(t, g.Cards, 2)
	assert.Equal(t, "Hard truths", g.Cards[0].Title)
	assert.Equal(t, "Honest friends", g.Cards[1].Title)

	assert.Equal(t, http.StatusOK, get(t, r, base+"/graph?context=missing", &g))
	assert.Empty(t, g.Cards)
	assert.Empty(t, g.Edges)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
