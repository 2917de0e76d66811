package dedupe

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store"
)

type EdgeStats struct {
	Linked  int `json:"linked"`
	Skipped int `json:"skipped"`
}

// ReconstructEdges projects every raw edge without an EdgeLink in the run
// onto canonical cards and contexts. Edges whose endpoints are not linked
// yet are skipped and picked up when the run is resumed.
func (d *Deduplicator) ReconstructEdges(ctx context.Context, runID, generationID int64, mapping model.ContextMapping) (EdgeStats, error) {
	log := d.log.With("run_id", runID, "generation_id", generationID)
	var stats EdgeStats

	edges, err := d.Store.UnlinkedRawEdges(ctx, generationID, runID)
	if err != nil {
		return stats, fmt.Errorf("failed to list unlinked raw edges: %w", err)
	}

	canonicalOf := make(map[int64]int64)
	resolve := func(rawID int64) (int64, bool, error) {
		if id, ok := canonicalOf[rawID]; ok {
			return id, true, nil
		}
		c, err := d.Store.CanonicalCardFor(ctx, runID, rawID)
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to resolve card %d: %w", rawID, err)
		}
		canonicalOf[rawID] = c.ID
		return c.ID, true, nil
	}

	for _, e := range edges {
		from, okFrom, err := resolve(e.FromID)
		if err != nil {
			return stats, err
		}
		to, okTo, err := resolve(e.ToID)
		if err != nil {
			return stats, err
		}
		if !okFrom || !okTo {
			log.Warn("skipping edge with unlinked endpoint", "edge_id", e.ID, "from_id", e.FromID, "to_id", e.ToID)
			stats.Skipped++
			continue
		}

		contextName := mapping.Canonical(e.ContextName)
		if _, ok := mapping[e.ContextName]; !ok {
			if err := d.Store.UpsertCanonicalContext(ctx, model.CanonicalContext{Name: contextName, DeduplicationID: runID}); err != nil {
				return stats, fmt.Errorf("failed to upsert canonical context %q: %w", contextName, err)
			}
		}

		edge, err := d.Store.UpsertCanonicalEdge(ctx, model.CanonicalEdge{
			FromID:          from,
			ToID:            to,
			ContextName:     contextName,
			Metadata:        e.Metadata,
			DeduplicationID: runID,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to upsert canonical edge for raw edge %d: %w", e.ID, err)
		}

		err = d.Store.UpsertEdgeLink(ctx, model.EdgeLink{
			RawEdgeID:            e.ID,
			CanonicalEdgeID:      edge.ID,
			RawContextName:       e.ContextName,
			CanonicalContextName: contextName,
			DeduplicationID:      runID,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to link raw edge %d: %w", e.ID, err)
		}

		for _, cardID := range []int64{from, to} {
			if err := d.upsertCardContext(ctx, runID, cardID, contextName); err != nil {
				return stats, err
			}
		}
		stats.Linked++
	}

	log.Info("reconstructed edges", "linked", stats.Linked, "skipped", stats.Skipped)
	return stats, nil
}

// LinkChoiceContexts attaches each linked card's own choice context to its
// canonical card.
func (d *Deduplicator) LinkChoiceContexts(ctx context.Context, runID int64, cards []model.RawCard, mapping model.ContextMapping) error {
	for _, c := range cards {
		if c.ChoiceContext == "" {
			continue
		}
		canonical, err := d.Store.CanonicalCardFor(ctx, runID, c.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve card %d: %w", c.ID, err)
		}
		if err := d.upsertCardContext(ctx, runID, canonical.ID, mapping.Canonical(c.ChoiceContext)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deduplicator) upsertCardContext(ctx context.Context, runID, cardID int64, contextName string) error {
	err := d.Store.UpsertCardContext(ctx, model.CardContext{
		CanonicalCardID: cardID,
		ContextName:     contextName,
		DeduplicationID: runID,
	})
	if err != nil {
		return fmt.Errorf("failed to attach card %d to context %q: %w", cardID, contextName, err)
	}
	return nil
}
