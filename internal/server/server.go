package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
)

// Server exposes the canonical graph of deduplication runs read-only.
type Server struct {
	Store store.Store
	log   *logger.Logger
}

func NewServer(st store.Store, log *logger.Logger) *Server {
	return &Server{Store: st, log: logger.OrNop(log)}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/runs", s.ListRuns)
	r.GET("/runs/latest", s.LatestRun)

	runs := r.Group("/runs/:id")
	runs.Use(s.loadRun)
	runs.GET("/cards", s.Cards)
	runs.GET("/contexts", s.Contexts)
	runs.GET("/edges", s.Edges)
	runs.GET("/graph", s.Graph)

	return r
}

// Graph is a context-restricted subgraph: the edges of one context and the
// cards they connect.
type Graph struct {
	RunID   int64                 `json:"run_id"`
	Context string                `json:"context,omitempty"`
	Cards   []model.CanonicalCard `json:"cards"`
	Edges   []model.CanonicalEdge `json:"edges"`
}

func (s *Server) ListRuns(c *gin.Context) {
	runs, err := s.Store.Runs(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []model.DeduplicationRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) LatestRun(c *gin.Context) {
	run, err := s.Store.LatestFinishedRun(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) loadRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, err := s.Store.Run(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		c.Abort()
		return
	}
	c.Set("run", run)
	c.Next()
}

func runOf(c *gin.Context) *model.DeduplicationRun {
	return c.MustGet("run").(*model.DeduplicationRun)
}

func (s *Server) Cards(c *gin.Context) {
	run := runOf(c)
	cards, err := s.Store.CanonicalCards(c.Request.Context(), run.ID, store.CardFilter{ContextName: c.Query("context")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "cards": orEmpty(cards)})
}

func (s *Server) Contexts(c *gin.Context) {
	run := runOf(c)
	contexts, err := s.Store.CanonicalContexts(c.Request.Context(), run.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "contexts": orEmpty(contexts)})
}

func (s *Server) Edges(c *gin.Context) {
	run := runOf(c)
	edges, err := s.Store.CanonicalEdges(c.Request.Context(), run.ID, c.Query("context"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.ID, "edges": orEmpty(edges)})
}

func (s *Server) Graph(c *gin.Context) {
	ctx := c.Request.Context()
	run := runOf(c)
	contextName := c.Query("context")

	edges, err := s.Store.CanonicalEdges(ctx, run.ID, contextName)
	if err != nil {
		s.fail(c, err)
		return
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range edges {
		for _, id := range []int64{e.FromID, e.ToID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	cards := []model.CanonicalCard{}
	if len(ids) > 0 {
		cards, err = s.Store.CanonicalCards(ctx, run.ID, store.CardFilter{IDs: ids})
		if err != nil {
			s.fail(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, Graph{
		RunID:   run.ID,
		Context: contextName,
		Cards:   orEmpty(cards),
		Edges:   orEmpty(edges),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.log.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
