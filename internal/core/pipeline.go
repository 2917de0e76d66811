// Package core runs a deduplication run end to end: embeddings, contexts,
// cards, then edges.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/moralgraph/internal/core/dedupe"
	"github.com/agenthands/moralgraph/internal/core/embedding"
	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/llm"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
)

var (
	ErrNoCards       = errors.New("no cards to deduplicate")
	ErrIncompleteRun = errors.New("deduplication run left raw cards unlinked")
)

type Stats struct {
	RunID        int64            `json:"run_id"`
	GenerationID int64            `json:"generation_id"`
	Created      bool             `json:"created"`
	Embedded     int              `json:"embedded"`
	Contexts     int              `json:"contexts"`
	Cards        dedupe.CardStats `json:"cards"`
	Edges        dedupe.EdgeStats `json:"edges"`
	Unlinked     int              `json:"unlinked"`
	Finished     bool             `json:"finished"`
	Usage        llm.Usage        `json:"usage"`
	Cost         float64          `json:"cost"`
}

type Pipeline struct {
	Store        store.Store
	Deduplicator *dedupe.Deduplicator
	Pricing      llm.Pricing

	log *logger.Logger
}

func NewPipeline(st store.Store, llmClient llm.LLMClient, embedder llm.EmbedderClient, opts dedupe.Options, pricing llm.Pricing, log *logger.Logger) *Pipeline {
	log = logger.OrNop(log)
	return &Pipeline{
		Store:        st,
		Deduplicator: dedupe.NewDeduplicator(llmClient, embedding.NewService(embedder), st, opts, log),
		Pricing:      pricing,
		log:          log,
	}
}

// Run deduplicates generationID, continuing the IN_PROGRESS run when there
// is one. Stats are returned even when the run cannot be finished.
func (p *Pipeline) Run(ctx context.Context, generationID int64) (*Stats, error) {
	stats := &Stats{GenerationID: generationID}

	embedded, err := p.EmbedCards(ctx, generationID)
	stats.Embedded = embedded
	if err != nil {
		return p.priced(stats), err
	}

	run, created, err := p.GetOrCreateActiveRun(ctx, generationID)
	if err != nil {
		return p.priced(stats), err
	}
	stats.RunID = run.ID
	stats.Created = created

	if created {
		cards, err := p.Store.RawCards(ctx, generationID)
		if err != nil {
			return p.priced(stats), fmt.Errorf("failed to load raw cards: %w", err)
		}
		seeded, err := p.Deduplicator.WithUsage(&stats.Usage).SeedClusters(ctx, run.ID, cards)
		stats.Cards.Add(seeded)
		if err != nil {
			return p.priced(stats), err
		}
	}

	err = p.Process(ctx, run, stats)
	return p.priced(stats), err
}

// EmbedCards embeds the raw cards of a generation that have no embedding.
func (p *Pipeline) EmbedCards(ctx context.Context, generationID int64) (int, error) {
	cards, err := p.Store.RawCards(ctx, generationID)
	if err != nil {
		return 0, fmt.Errorf("failed to load raw cards: %w", err)
	}
	n, err := p.Deduplicator.EmbedCards(ctx, cards)
	if n > 0 {
		p.log.Info("embedded raw cards", "generation_id", generationID, "count", n)
	}
	return n, err
}

// GetOrCreateActiveRun returns the IN_PROGRESS run, or creates one for
// generationID. The boolean reports whether the run is new.
func (p *Pipeline) GetOrCreateActiveRun(ctx context.Context, generationID int64) (*model.DeduplicationRun, bool, error) {
	run, err := p.activeRun(ctx, generationID)
	if err == nil {
		return run, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	cards, err := p.Store.RawCards(ctx, generationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load raw cards: %w", err)
	}
	embedded := 0
	for _, c := range cards {
		if len(c.Embedding) > 0 {
			embedded++
		}
	}
	if embedded == 0 {
		return nil, false, fmt.Errorf("generation %d: %w", generationID, ErrNoCards)
	}

	run, err = p.Store.CreateRun(ctx, generationID)
	if errors.Is(err, store.ErrActiveRunExists) {
		// Lost the race to another process.
		run, err = p.activeRun(ctx, generationID)
		return run, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create deduplication run: %w", err)
	}
	p.log.Info("created deduplication run", "run_id", run.ID, "generation_id", generationID)
	return run, true, nil
}

func (p *Pipeline) activeRun(ctx context.Context, generationID int64) (*model.DeduplicationRun, error) {
	run, err := p.Store.ActiveRun(ctx)
	if err != nil {
		return nil, err
	}
	if run.GenerationID != generationID {
		return nil, fmt.Errorf("run %d is in progress for generation %d: %w", run.ID, run.GenerationID, store.ErrActiveRunExists)
	}
	p.log.Info("continuing deduplication run", "run_id", run.ID, "generation_id", generationID)
	return run, nil
}

// Process runs the context, card and edge steps of run. It only touches
// what is still missing, so replaying a run is safe. Model usage is added
// to stats.Usage.
func (p *Pipeline) Process(ctx context.Context, run *model.DeduplicationRun, stats *Stats) error {
	d := p.Deduplicator.WithUsage(&stats.Usage)
	log := p.log.With("run_id", run.ID, "generation_id", run.GenerationID)
	stats.RunID = run.ID
	stats.GenerationID = run.GenerationID

	cards, err := p.Store.RawCards(ctx, run.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to load raw cards: %w", err)
	}
	edges, err := p.Store.RawEdges(ctx, run.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to load raw edges: %w", err)
	}

	labels, counts := dedupe.ContextLabels(cards, edges)
	mapping, err := d.DedupeContexts(ctx, run.ID, labels, counts)
	if err != nil {
		return err
	}
	stats.Contexts = len(mapping.CanonicalNames())

	targets, err := p.Store.UnlinkedRawCards(ctx, run.GenerationID, run.ID)
	if err != nil {
		return fmt.Errorf("failed to list unlinked raw cards: %w", err)
	}
	cardStats, err := d.DedupeCards(ctx, run.ID, targets, cards, dedupe.Scopes(cards, edges, mapping))
	stats.Cards.Add(cardStats)
	if err != nil {
		return err
	}

	if err := d.LinkChoiceContexts(ctx, run.ID, cards, mapping); err != nil {
		return err
	}

	edgeStats, err := d.ReconstructEdges(ctx, run.ID, run.GenerationID, mapping)
	stats.Edges.Linked += edgeStats.Linked
	stats.Edges.Skipped += edgeStats.Skipped
	if err != nil {
		return err
	}

	unlinked, err := p.Store.UnlinkedRawCards(ctx, run.GenerationID, run.ID)
	if err != nil {
		return fmt.Errorf("failed to list unlinked raw cards: %w", err)
	}
	stats.Unlinked = len(unlinked)
	if len(unlinked) > 0 {
		log.Warn("run left open", "unlinked", len(unlinked))
		return fmt.Errorf("%w: %d of %d cards", ErrIncompleteRun, len(unlinked), len(cards))
	}

	if run.Active() {
		if err := p.Store.FinishRun(ctx, run.ID); err != nil {
			return fmt.Errorf("failed to finish run %d: %w", run.ID, err)
		}
		log.Info("finished deduplication run")
	}
	stats.Finished = true
	return nil
}

func (p *Pipeline) priced(s *Stats) *Stats {
	s.Cost = p.Pricing.Cost(s.Usage)
	return s
}
