package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agenthands/moralgraph/internal/core/cluster"
	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/core/similarity"
	"github.com/agenthands/moralgraph/internal/store"
)

type CardStats struct {
	Seeded  int `json:"seeded"`
	Linked  int `json:"linked"`
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

func (s *CardStats) Add(o CardStats) {
	s.Seeded += o.Seeded
	s.Linked += o.Linked
	s.Merged += o.Merged
	s.Skipped += o.Skipped
}

// Scopes returns the canonical contexts every card takes part in: its
// choice context and the contexts of the raw edges touching it. Cards
// without any share the "" scope.
func Scopes(cards []model.RawCard, edges []model.RawEdge, mapping model.ContextMapping) map[int64][]string {
	sets := make(map[int64]map[string]bool, len(cards))
	add := func(id int64, raw string) {
		if sets[id] == nil {
			sets[id] = make(map[string]bool)
		}
		sets[id][mapping.Canonical(raw)] = true
	}
	for _, c := range cards {
		if c.ChoiceContext != "" {
			add(c.ID, c.ChoiceContext)
		}
	}
	for _, e := range edges {
		add(e.FromID, e.ContextName)
		add(e.ToID, e.ContextName)
	}

	out := make(map[int64][]string, len(cards))
	for _, c := range cards {
		names := make([]string, 0, len(sets[c.ID]))
		for n := range sets[c.ID] {
			names = append(names, n)
		}
		if len(names) == 0 {
			names = append(names, "")
		}
		sort.Strings(names)
		out[c.ID] = names
	}
	return out
}

func sharesScope(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// SeedClusters creates one canonical card per dense cluster of cards and
// links every member to it. Clusters whose representative cannot be
// chosen are left to DedupeCards.
func (d *Deduplicator) SeedClusters(ctx context.Context, runID int64, cards []model.RawCard) (CardStats, error) {
	log := d.log.With("run_id", runID)
	var stats CardStats

	embedded := make([]model.RawCard, 0, len(cards))
	for _, c := range cards {
		if len(c.Embedding) > 0 {
			embedded = append(embedded, c)
		}
	}

	clusters := cluster.DBSCAN(embedded, func(c model.RawCard) []float32 { return c.Embedding },
		d.Options.CardEps, d.Options.CardMinSamples)
	log.Info("clustered raw cards", "cards", len(embedded), "clusters", len(clusters))

	for i, members := range clusters {
		if len(members) < d.Options.MinClusterSize {
			continue
		}
		rep, err := d.Representative(ctx, members)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Warn("skipping cluster, no representative", "cluster", i, "size", len(members), "error", err)
			stats.Skipped++
			continue
		}

		canonical, err := d.Store.CreateCanonicalCard(ctx, model.CanonicalFromRaw(rep, runID))
		if err != nil {
			return stats, fmt.Errorf("failed to create canonical card for cluster %d: %w", i, err)
		}
		stats.Seeded++
		for _, m := range members {
			if err := d.link(ctx, runID, m.ID, canonical.ID); err != nil {
				return stats, err
			}
		}
		log.Info("seeded canonical card", "cluster", i, "canonical_id", canonical.ID, "representative_id", rep.ID, "size", len(members))
	}
	return stats, nil
}

// DedupeCards resolves every card of targets against the cards of pool
// that share a scope with it. Cards are visited in id order.
func (d *Deduplicator) DedupeCards(ctx context.Context, runID int64, targets, pool []model.RawCard, scopes map[int64][]string) (CardStats, error) {
	log := d.log.With("run_id", runID)
	var stats CardStats

	links, err := d.linkIndex(ctx, runID)
	if err != nil {
		return stats, err
	}

	targets = append([]model.RawCard(nil), targets...)
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	byID := make(map[int64]model.RawCard, len(pool))
	for _, c := range pool {
		byID[c.ID] = c
	}

	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if len(c.Embedding) == 0 {
			log.Warn("skipping card without embedding", "card_id", c.ID)
			stats.Skipped++
			continue
		}

		candidates := d.candidates(c, pool, scopes, links)
		dup, err := d.FindDuplicate(ctx, c, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Warn("skipping card, adjudication failed", "card_id", c.ID, "error", err)
			stats.Skipped++
			continue
		}

		var s CardStats
		if dup != nil {
			s, err = d.resolvePair(ctx, runID, c, byID[dup.ID], links)
		} else {
			s, err = d.resolveAlone(ctx, runID, c, links)
		}
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			var skip *skipError
			if errors.As(err, &skip) {
				log.Warn("skipping card", "card_id", c.ID, "error", skip.err)
				stats.Skipped++
				continue
			}
			return stats, err
		}
		stats.Add(s)
	}
	return stats, nil
}

// candidates lists the embedded pool cards sharing a scope with c that do
// not already resolve to c's canonical card, closest first.
func (d *Deduplicator) candidates(c model.RawCard, pool []model.RawCard, scopes map[int64][]string, links map[int64]int64) []model.RawCard {
	own, linked := links[c.ID]
	eligible := make([]model.RawCard, 0, len(pool))
	byID := make(map[int64]model.RawCard, len(pool))
	for _, p := range pool {
		if p.ID == c.ID || len(p.Embedding) == 0 {
			continue
		}
		if !sharesScope(scopes[c.ID], scopes[p.ID]) {
			continue
		}
		if other, ok := links[p.ID]; linked && ok && other == own {
			continue
		}
		eligible = append(eligible, p)
		byID[p.ID] = p
	}

	hits := similarity.Search(c.Embedding, similarity.RawItems(eligible), d.Options.CandidateLimit, d.Options.CandidateThreshold)
	out := make([]model.RawCard, 0, len(hits))
	for _, h := range hits {
		out = append(out, byID[h.ID])
	}
	return out
}

func (d *Deduplicator) resolvePair(ctx context.Context, runID int64, c, c2 model.RawCard, links map[int64]int64) (CardStats, error) {
	log := d.log.With("run_id", runID, "card_id", c.ID, "match_id", c2.ID)
	var stats CardStats

	own, ownOK := links[c.ID]
	other, otherOK := links[c2.ID]

	switch {
	case !ownOK && !otherOK:
		canonical, err := d.Store.CreateCanonicalCard(ctx, model.CanonicalFromRaw(c, runID))
		if err != nil {
			return stats, fmt.Errorf("failed to create canonical card for %d: %w", c.ID, err)
		}
		if err := d.link(ctx, runID, c.ID, canonical.ID); err != nil {
			return stats, err
		}
		if err := d.link(ctx, runID, c2.ID, canonical.ID); err != nil {
			return stats, err
		}
		links[c.ID], links[c2.ID] = canonical.ID, canonical.ID
		stats.Seeded++
		stats.Linked += 2
		log.Info("seeded canonical card from duplicate pair", "canonical_id", canonical.ID)

	case ownOK && otherOK && own == other:

	case ownOK && otherOK:
		keep, drop := own, other
		if drop < keep {
			keep, drop = drop, keep
		}
		if err := d.Store.MergeCanonicalCards(ctx, runID, keep, drop); err != nil {
			return stats, fmt.Errorf("failed to merge canonical card %d into %d: %w", drop, keep, err)
		}
		for raw, canonical := range links {
			if canonical == drop {
				links[raw] = keep
			}
		}
		stats.Merged++
		log.Info("merged canonical cards", "canonical_id", keep, "dropped_id", drop)

	case ownOK:
		if err := d.link(ctx, runID, c2.ID, own); err != nil {
			return stats, err
		}
		links[c2.ID] = own
		stats.Linked++

	default:
		if err := d.link(ctx, runID, c.ID, other); err != nil {
			return stats, err
		}
		links[c.ID] = other
		stats.Linked++
	}
	return stats, nil
}

// resolveAlone handles a card without a raw duplicate. Unlinked cards are
// matched against the canonical cards of the run, or become one.
func (d *Deduplicator) resolveAlone(ctx context.Context, runID int64, c model.RawCard, links map[int64]int64) (CardStats, error) {
	var stats CardStats
	if _, ok := links[c.ID]; ok {
		return stats, nil
	}

	existing, err := d.Store.CanonicalCards(ctx, runID, store.CardFilter{})
	if err != nil {
		return stats, fmt.Errorf("failed to list canonical cards: %w", err)
	}
	hits := similarity.SearchCanonical(c.Embedding, existing, d.Options.SimilarityLimit, d.Options.SimilarityThreshold)
	match, err := d.FindCanonical(ctx, c, hits)
	if err != nil {
		return stats, &skipError{err: err}
	}

	if match != nil {
		if err := d.link(ctx, runID, c.ID, match.ID); err != nil {
			return stats, err
		}
		links[c.ID] = match.ID
		stats.Linked++
		d.log.Info("linked card to existing canonical card", "run_id", runID, "card_id", c.ID, "canonical_id", match.ID)
		return stats, nil
	}

	canonical, err := d.Store.CreateCanonicalCard(ctx, model.CanonicalFromRaw(c, runID))
	if err != nil {
		return stats, fmt.Errorf("failed to create canonical card for %d: %w", c.ID, err)
	}
	if err := d.link(ctx, runID, c.ID, canonical.ID); err != nil {
		return stats, err
	}
	links[c.ID] = canonical.ID
	stats.Seeded++
	stats.Linked++
	d.log.Info("seeded canonical card", "run_id", runID, "card_id", c.ID, "canonical_id", canonical.ID)
	return stats, nil
}

func (d *Deduplicator) link(ctx context.Context, runID, rawID, canonicalID int64) error {
	err := d.Store.UpsertCardLink(ctx, model.CardLink{
		RawCardID:       rawID,
		CanonicalCardID: canonicalID,
		DeduplicationID: runID,
	})
	if err != nil {
		return fmt.Errorf("failed to link card %d to %d: %w", rawID, canonicalID, err)
	}
	return nil
}

func (d *Deduplicator) linkIndex(ctx context.Context, runID int64) (map[int64]int64, error) {
	links, err := d.Store.CardLinks(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card links: %w", err)
	}
	idx := make(map[int64]int64, len(links))
	for _, l := range links {
		if cur, ok := idx[l.RawCardID]; !ok || l.CanonicalCardID < cur {
			idx[l.RawCardID] = l.CanonicalCardID
		}
	}
	return idx, nil
}

// skipError marks a failure that only affects the current card.
type skipError struct {
	err error
}

func (e *skipError) Error() string { return e.err.Error() }
func (e *skipError) Unwrap() error { return e.err }
