// Package graphfile reads and writes moral graphs as JSON files: values
// with string ids and upgrade edges between them.
package graphfile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store"
)

type ValueData struct {
	Title         string   `json:"title"`
	Policies      []string `json:"policies"`
	ChoiceContext string   `json:"choice_context"`
}

type Value struct {
	ID   string    `json:"id"`
	Data ValueData `json:"data"`
}

type Edge struct {
	FromID   string             `json:"from_id"`
	ToID     string             `json:"to_id"`
	Context  string             `json:"context"`
	Metadata model.EdgeMetadata `json:"metadata,omitempty"`
}

type Graph struct {
	Values        []Value  `json:"values"`
	Edges         []Edge   `json:"edges"`
	SeedQuestions []string `json:"seed_questions,omitempty"`
}

func Read(r io.Reader) (*Graph, error) {
	var g Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &g, nil
}

func ReadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph file '%s': %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

func Write(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// Import stores g as a new generation and returns its id. Values without
// an id get a fresh uuid; edges must point at values of the file.
func Import(ctx context.Context, st store.Importer, g *Graph) (int64, error) {
	index := make(map[string]int, len(g.Values))
	cards := make([]model.RawCard, 0, len(g.Values))
	for i := range g.Values {
		v := &g.Values[i]
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if _, dup := index[v.ID]; dup {
			return 0, fmt.Errorf("duplicate value id %q", v.ID)
		}
		index[v.ID] = i
		cards = append(cards, model.RawCard{
			Title:         v.Data.Title,
			Policies:      v.Data.Policies,
			ChoiceContext: v.Data.ChoiceContext,
		})
	}
	for _, e := range g.Edges {
		for _, id := range []string{e.FromID, e.ToID} {
			if _, ok := index[id]; !ok {
				return 0, fmt.Errorf("edge references unknown value %q", id)
			}
		}
	}

	gen, err := st.CreateGeneration(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create generation: %w", err)
	}
	stored, err := st.CreateRawCards(ctx, gen.ID, cards)
	if err != nil {
		return 0, fmt.Errorf("failed to store values: %w", err)
	}

	edges := make([]model.RawEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, model.RawEdge{
			FromID:      stored[index[e.FromID]].ID,
			ToID:        stored[index[e.ToID]].ID,
			ContextName: e.Context,
			Metadata:    e.Metadata,
		})
	}
	if len(edges) > 0 {
		if _, err := st.CreateRawEdges(ctx, gen.ID, edges); err != nil {
			return 0, fmt.Errorf("failed to store edges: %w", err)
		}
	}
	return gen.ID, nil
}

// Export builds the canonical graph of a run. Value ids are the canonical
// card ids.
func Export(ctx context.Context, st store.Store, runID int64) (*Graph, error) {
	cards, err := st.CanonicalCards(ctx, runID, store.CardFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical cards: %w", err)
	}
	edges, err := st.CanonicalEdges(ctx, runID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical edges: %w", err)
	}

	g := &Graph{
		Values: make([]Value, 0, len(cards)),
		Edges:  make([]Edge, 0, len(edges)),
	}
	for _, c := range cards {
		g.Values = append(g.Values, Value{
			ID:   strconv.FormatInt(c.ID, 10),
			Data: ValueData{Title: c.Title, Policies: c.Policies},
		})
	}
	for _, e := range edges {
		g.Edges = append(g.Edges, Edge{
			FromID:   strconv.FormatInt(e.FromID, 10),
			ToID:     strconv.FormatInt(e.ToID, 10),
			Context:  e.ContextName,
			Metadata: e.Metadata,
		})
	}
	return g, nil
}
