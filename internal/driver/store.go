package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
)

// GraphStore keeps the consolidation graph in Memgraph. Raw cards are
// :ValuesCard nodes joined by :EDGE relationships; canonical cards are
// :CanonicalCard nodes joined by :UPGRADES_TO relationships keyed by
// context and run.
type GraphStore struct {
	Driver GraphDriver
	log    *logger.Logger
	now    func() time.Time
}

var _ store.Store = (*GraphStore)(nil)

func NewGraphStore(d GraphDriver, log *logger.Logger) *GraphStore {
	return &GraphStore{
		Driver: d,
		log:    logger.OrNop(log).With("service", "GraphStore"),
		now:    time.Now,
	}
}

func (s *GraphStore) query(ctx context.Context, q string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := s.Driver.ExecuteQuery(ctx, q, params)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *GraphStore) nextID(ctx context.Context, name string) (int64, error) {
	recs, err := s.query(ctx, NextIDQuery, map[string]any{"name": name})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	if len(recs) == 0 {
		return 0, fmt.Errorf("failed to allocate %s id: empty result", name)
	}
	return asInt64(get(recs[0], "id")), nil
}

func (s *GraphStore) CreateGeneration(ctx context.Context) (model.Generation, error) {
	id, err := s.nextID(ctx, "generation")
	if err != nil {
		return model.Generation{}, err
	}
	now := s.now().UTC()
	if _, err := s.query(ctx, CreateGenerationQuery, map[string]any{
		"id":         id,
		"created_at": now.UnixNano(),
	}); err != nil {
		return model.Generation{}, err
	}
	return model.Generation{ID: id, CreatedAt: now}, nil
}

func (s *GraphStore) CreateRawCards(ctx context.Context, generationID int64, cards []model.RawCard) ([]model.RawCard, error) {
	out := make([]model.RawCard, 0, len(cards))
	for _, c := range cards {
		id, err := s.nextID(ctx, "values_card")
		if err != nil {
			return nil, err
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		recs, err := s.query(ctx, CreateRawCardQuery, map[string]any{
			"id":             id,
			"title":          c.Title,
			"policies":       c.Policies,
			"generation_id":  generationID,
			"choice_context": c.ChoiceContext,
			"embedding":      float64s(c.Embedding),
			"created_at":     created.UTC().UnixNano(),
		})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("generation %d: %w", generationID, store.ErrNotFound)
		}
		out = append(out, rawCardFrom(props(recs[0], "c")))
	}
	return out, nil
}

func (s *GraphStore) CreateRawEdges(ctx context.Context, generationID int64, edges []model.RawEdge) ([]model.RawEdge, error) {
	out := make([]model.RawEdge, 0, len(edges))
	for _, e := range edges {
		id, err := s.nextID(ctx, "edge")
		if err != nil {
			return nil, err
		}
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return nil, err
		}
		recs, err := s.query(ctx, CreateRawEdgeQuery, map[string]any{
			"id":            id,
			"from_id":       e.FromID,
			"to_id":         e.ToID,
			"context_name":  e.ContextName,
			"metadata":      meta,
			"generation_id": generationID,
		})
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("edge %d->%d: %w", e.FromID, e.ToID, store.ErrNotFound)
		}
		e.ID = id
		e.GenerationID = generationID
		out = append(out, e)
	}
	return out, nil
}

func (s *GraphStore) LatestGenerationID(ctx context.Context) (int64, error) {
	recs, err := s.query(ctx, LatestGenerationQuery, nil)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, store.ErrNotFound
	}
	return asInt64(get(recs[0], "id")), nil
}

func (s *GraphStore) rawCards(ctx context.Context, q string, params map[string]any) ([]model.RawCard, error) {
	recs, err := s.query(ctx, q, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawCard, 0, len(recs))
	for _, r := range recs {
		out = append(out, rawCardFrom(props(r, "c")))
	}
	return out, nil
}

func (s *GraphStore) RawCards(ctx context.Context, generationID int64) ([]model.RawCard, error) {
	return s.rawCards(ctx, GetRawCardsQuery, map[string]any{"generation_id": generationID})
}

func (s *GraphStore) SetRawCardEmbedding(ctx context.Context, rawCardID int64, embedding []float32) error {
	recs, err := s.query(ctx, SetRawCardEmbeddingQuery, map[string]any{
		"id":        rawCardID,
		"embedding": float64s(embedding),
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("raw card %d: %w", rawCardID, store.ErrNotFound)
	}
	return nil
}

func (s *GraphStore) UnlinkedRawCards(ctx context.Context, generationID, runID int64) ([]model.RawCard, error) {
	return s.rawCards(ctx, GetUnlinkedRawCardsQuery, map[string]any{
		"generation_id":    generationID,
		"deduplication_id": runID,
	})
}

func (s *GraphStore) rawEdges(ctx context.Context, q string, params map[string]any) ([]model.RawEdge, error) {
	recs, err := s.query(ctx, q, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.RawEdge, 0, len(recs))
	for _, r := range recs {
		out = append(out, rawEdgeFrom(r))
	}
	return out, nil
}

func (s *GraphStore) RawEdges(ctx context.Context, generationID int64) ([]model.RawEdge, error) {
	return s.rawEdges(ctx, GetRawEdgesQuery, map[string]any{"generation_id": generationID})
}

func (s *GraphStore) UnlinkedRawEdges(ctx context.Context, generationID, runID int64) ([]model.RawEdge, error) {
	return s.rawEdges(ctx, GetUnlinkedRawEdgesQuery, map[string]any{
		"generation_id":    generationID,
		"deduplication_id": runID,
	})
}

func (s *GraphStore) oneRun(ctx context.Context, q string, params map[string]any) (*model.DeduplicationRun, error) {
	recs, err := s.query(ctx, q, params)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	r := runFrom(props(recs[0], "r"))
	return &r, nil
}

func (s *GraphStore) ActiveRun(ctx context.Context) (*model.DeduplicationRun, error) {
	return s.oneRun(ctx, GetActiveRunQuery, nil)
}

func (s *GraphStore) CreateRun(ctx context.Context, generationID int64) (*model.DeduplicationRun, error) {
	run, err := s.oneRun(ctx, CreateRunQuery, map[string]any{
		"generation_id": generationID,
		"created_at":    s.now().UTC().UnixNano(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrActiveRunExists
	}
	return run, err
}

func (s *GraphStore) FinishRun(ctx context.Context, runID int64) error {
	recs, err := s.query(ctx, FinishRunQuery, map[string]any{
		"id":          runID,
		"finished_at": s.now().UTC().UnixNano(),
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("run %d: %w", runID, store.ErrNotFound)
	}
	return nil
}

func (s *GraphStore) Run(ctx context.Context, runID int64) (*model.DeduplicationRun, error) {
	return s.oneRun(ctx, GetRunQuery, map[string]any{"id": runID})
}

func (s *GraphStore) Runs(ctx context.Context) ([]model.DeduplicationRun, error) {
	recs, err := s.query(ctx, GetRunsQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.DeduplicationRun, 0, len(recs))
	for _, r := range recs {
		out = append(out, runFrom(props(r, "r")))
	}
	return out, nil
}

func (s *GraphStore) LatestFinishedRun(ctx context.Context) (*model.DeduplicationRun, error) {
	return s.oneRun(ctx, GetLatestFinishedRunQuery, nil)
}

func (s *GraphStore) canonicalCards(ctx context.Context, q string, params map[string]any) ([]model.CanonicalCard, error) {
	recs, err := s.query(ctx, q, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalCard, 0, len(recs))
	for _, r := range recs {
		out = append(out, canonicalCardFrom(props(r, "c")))
	}
	return out, nil
}

func (s *GraphStore) CanonicalCards(ctx context.Context, runID int64, filter store.CardFilter) ([]model.CanonicalCard, error) {
	ids := filter.IDs
	if ids == nil {
		ids = []int64{}
	}
	return s.canonicalCards(ctx, GetCanonicalCardsQuery, map[string]any{
		"deduplication_id": runID,
		"ids":              ids,
		"context_name":     filter.ContextName,
	})
}

func (s *GraphStore) CreateCanonicalCard(ctx context.Context, card model.CanonicalCard) (model.CanonicalCard, error) {
	id, err := s.nextID(ctx, "canonical_card")
	if err != nil {
		return model.CanonicalCard{}, err
	}
	created := card.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	cards, err := s.canonicalCards(ctx, CreateCanonicalCardQuery, map[string]any{
		"id":               id,
		"title":            card.Title,
		"policies":         card.Policies,
		"deduplication_id": card.DeduplicationID,
		"embedding":        float64s(card.Embedding),
		"created_at":       created.UTC().UnixNano(),
	})
	if err != nil {
		return model.CanonicalCard{}, err
	}
	if len(cards) == 0 {
		return model.CanonicalCard{}, fmt.Errorf("run %d: %w", card.DeduplicationID, store.ErrNotFound)
	}
	return cards[0], nil
}

func (s *GraphStore) CanonicalCardFor(ctx context.Context, runID, rawCardID int64) (*model.CanonicalCard, error) {
	cards, err := s.canonicalCards(ctx, GetCanonicalCardForRawQuery, map[string]any{
		"raw_card_id":      rawCardID,
		"deduplication_id": runID,
	})
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, store.ErrNotFound
	}
	return &cards[0], nil
}

func (s *GraphStore) UpsertCardLink(ctx context.Context, link model.CardLink) error {
	recs, err := s.query(ctx, UpsertCardLinkQuery, map[string]any{
		"raw_card_id":       link.RawCardID,
		"canonical_card_id": link.CanonicalCardID,
		"deduplication_id":  link.DeduplicationID,
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("link %d->%d: %w", link.RawCardID, link.CanonicalCardID, store.ErrNotFound)
	}
	return nil
}

func (s *GraphStore) CardLinks(ctx context.Context, runID int64) ([]model.CardLink, error) {
	recs, err := s.query(ctx, GetCardLinksQuery, map[string]any{"deduplication_id": runID})
	if err != nil {
		return nil, err
	}
	out := make([]model.CardLink, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.CardLink{
			RawCardID:       asInt64(get(r, "raw_card_id")),
			CanonicalCardID: asInt64(get(r, "canonical_card_id")),
			DeduplicationID: runID,
		})
	}
	return out, nil
}

// MergeCanonicalCards runs one idempotent statement per relationship kind,
// so a crash between statements is repaired by merging again.
func (s *GraphStore) MergeCanonicalCards(ctx context.Context, runID, keep, drop int64) error {
	if keep == drop {
		return nil
	}
	exists := func(id int64) (bool, error) {
		recs, err := s.query(ctx, GetCanonicalCardQuery, map[string]any{"id": id, "deduplication_id": runID})
		return len(recs) > 0, err
	}
	if ok, err := exists(drop); err != nil || !ok {
		return err
	}
	if ok, err := exists(keep); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("canonical card %d: %w", keep, store.ErrNotFound)
	}

	params := map[string]any{"keep": keep, "drop": drop, "deduplication_id": runID}
	for _, q := range []string{
		MergeCardLinksQuery,
		MergeCardContextsQuery,
		MergeOutgoingEdgesQuery,
		MergeIncomingEdgesQuery,
	} {
		if _, err := s.query(ctx, q, params); err != nil {
			return fmt.Errorf("merge %d into %d: %w", drop, keep, err)
		}
	}
	if _, err := s.query(ctx, DeleteCanonicalCardQuery, map[string]any{"id": drop, "deduplication_id": runID}); err != nil {
		return fmt.Errorf("merge %d into %d: %w", drop, keep, err)
	}
	s.log.Debug("merged canonical cards", "run_id", runID, "keep", keep, "drop", drop)
	return nil
}

func (s *GraphStore) UpsertCanonicalContext(ctx context.Context, c model.CanonicalContext) error {
	_, err := s.query(ctx, UpsertCanonicalContextQuery, map[string]any{
		"name":             c.Name,
		"deduplication_id": c.DeduplicationID,
	})
	return err
}

func (s *GraphStore) CanonicalContexts(ctx context.Context, runID int64) ([]model.CanonicalContext, error) {
	recs, err := s.query(ctx, GetCanonicalContextsQuery, map[string]any{"deduplication_id": runID})
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalContext, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.CanonicalContext{Name: asString(get(r, "name")), DeduplicationID: runID})
	}
	return out, nil
}

// SaveContextAliases writes every alias in one UNWIND statement, so a
// mapping is either stored whole or not at all.
func (s *GraphStore) SaveContextAliases(ctx context.Context, aliases []model.ContextAlias) error {
	if len(aliases) == 0 {
		return nil
	}
	rows := make([]any, 0, len(aliases))
	for _, a := range aliases {
		rows = append(rows, map[string]any{
			"raw_name":         a.RawName,
			"canonical_name":   a.CanonicalName,
			"deduplication_id": a.DeduplicationID,
		})
	}
	_, err := s.query(ctx, SaveContextAliasesQuery, map[string]any{"aliases": rows})
	return err
}

func (s *GraphStore) ContextAliases(ctx context.Context, runID int64) ([]model.ContextAlias, error) {
	recs, err := s.query(ctx, GetContextAliasesQuery, map[string]any{"deduplication_id": runID})
	if err != nil {
		return nil, err
	}
	out := make([]model.ContextAlias, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.ContextAlias{
			RawName:         asString(get(r, "raw_name")),
			CanonicalName:   asString(get(r, "canonical_name")),
			DeduplicationID: runID,
		})
	}
	return out, nil
}

func (s *GraphStore) UpsertCardContext(ctx context.Context, cc model.CardContext) error {
	recs, err := s.query(ctx, UpsertCardContextQuery, map[string]any{
		"canonical_card_id": cc.CanonicalCardID,
		"context_name":      cc.ContextName,
		"deduplication_id":  cc.DeduplicationID,
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("canonical card %d: %w", cc.CanonicalCardID, store.ErrNotFound)
	}
	return nil
}

func (s *GraphStore) CardContexts(ctx context.Context, runID int64) ([]model.CardContext, error) {
	recs, err := s.query(ctx, GetCardContextsQuery, map[string]any{"deduplication_id": runID})
	if err != nil {
		return nil, err
	}
	out := make([]model.CardContext, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.CardContext{
			CanonicalCardID: asInt64(get(r, "canonical_card_id")),
			ContextName:     asString(get(r, "context_name")),
			DeduplicationID: runID,
		})
	}
	return out, nil
}

func (s *GraphStore) UpsertCanonicalEdge(ctx context.Context, e model.CanonicalEdge) (model.CanonicalEdge, error) {
	id, err := s.nextID(ctx, "deduplicated_edge")
	if err != nil {
		return model.CanonicalEdge{}, err
	}
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return model.CanonicalEdge{}, err
	}
	recs, err := s.query(ctx, UpsertCanonicalEdgeQuery, map[string]any{
		"id":               id,
		"from_id":          e.FromID,
		"to_id":            e.ToID,
		"context_name":     e.ContextName,
		"deduplication_id": e.DeduplicationID,
		"metadata":         meta,
	})
	if err != nil {
		return model.CanonicalEdge{}, err
	}
	if len(recs) == 0 {
		return model.CanonicalEdge{}, fmt.Errorf("edge %d->%d: %w", e.FromID, e.ToID, store.ErrNotFound)
	}
	return canonicalEdgeFrom(recs[0], e.DeduplicationID), nil
}

func (s *GraphStore) CanonicalEdges(ctx context.Context, runID int64, contextName string) ([]model.CanonicalEdge, error) {
	recs, err := s.query(ctx, GetCanonicalEdgesQuery, map[string]any{
		"deduplication_id": runID,
		"context_name":     contextName,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEdge, 0, len(recs))
	for _, r := range recs {
		out = append(out, canonicalEdgeFrom(r, runID))
	}
	return out, nil
}

func (s *GraphStore) UpsertEdgeLink(ctx context.Context, l model.EdgeLink) error {
	if l.UUID == "" {
		l.UUID = uuid.NewString()
	}
	_, err := s.query(ctx, UpsertEdgeLinkQuery, map[string]any{
		"uuid":                   l.UUID,
		"raw_edge_id":            l.RawEdgeID,
		"canonical_edge_id":      l.CanonicalEdgeID,
		"raw_context_name":       l.RawContextName,
		"canonical_context_name": l.CanonicalContextName,
		"deduplication_id":       l.DeduplicationID,
	})
	return err
}

func (s *GraphStore) EdgeLinks(ctx context.Context, runID int64) ([]model.EdgeLink, error) {
	recs, err := s.query(ctx, GetEdgeLinksQuery, map[string]any{"deduplication_id": runID})
	if err != nil {
		return nil, err
	}
	out := make([]model.EdgeLink, 0, len(recs))
	for _, r := range recs {
		out = append(out, edgeLinkFrom(props(r, "l")))
	}
	return out, nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}
