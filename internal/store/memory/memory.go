// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/store"
)

type edgeKey struct {
	From, To int64
	Context  string
	Run      int64
}

type edgeLinkKey struct {
	RawEdgeID int64
	Run       int64
}

type aliasKey struct {
	Raw string
	Run int64
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq map[string]int64

	generations  map[int64]model.Generation
	rawCards     map[int64]model.RawCard
	rawEdges     map[int64]model.RawEdge
	runs         map[int64]model.DeduplicationRun
	canonical    map[int64]model.CanonicalCard
	links        map[model.CardLink]struct{}
	contexts     map[model.CanonicalContext]struct{}
	aliases      map[aliasKey]model.ContextAlias
	cardContexts map[model.CardContext]struct{}
	edges        map[int64]model.CanonicalEdge
	edgeKeys     map[edgeKey]int64
	edgeLinks    map[edgeLinkKey]model.EdgeLink
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:          time.Now,
		seq:          make(map[string]int64),
		generations:  make(map[int64]model.Generation),
		rawCards:     make(map[int64]model.RawCard),
		rawEdges:     make(map[int64]model.RawEdge),
		runs:         make(map[int64]model.DeduplicationRun),
		canonical:    make(map[int64]model.CanonicalCard),
		links:        make(map[model.CardLink]struct{}),
		contexts:     make(map[model.CanonicalContext]struct{}),
		aliases:      make(map[aliasKey]model.ContextAlias),
		cardContexts: make(map[model.CardContext]struct{}),
		edges:        make(map[int64]model.CanonicalEdge),
		edgeKeys:     make(map[edgeKey]int64),
		edgeLinks:    make(map[edgeLinkKey]model.EdgeLink),
	}
}

func (s *Store) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

func (s *Store) CreateGeneration(ctx context.Context) (model.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := model.Generation{ID: s.next("generation"), CreatedAt: s.now()}
	s.generations[g.ID] = g
	return g, nil
}

func (s *Store) CreateRawCards(ctx context.Context, generationID int64, cards []model.RawCard) ([]model.RawCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[generationID]; !ok {
		return nil, fmt.Errorf("generation %d: %w", generationID, store.ErrNotFound)
	}
	out := make([]model.RawCard, 0, len(cards))
	for _, c := range cards {
		c.ID = s.next("raw_card")
		c.GenerationID = generationID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		s.rawCards[c.ID] = c
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) CreateRawEdges(ctx context.Context, generationID int64, edges []model.RawEdge) ([]model.RawEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generations[generationID]; !ok {
		return nil, fmt.Errorf("generation %d: %w", generationID, store.ErrNotFound)
	}
	out := make([]model.RawEdge, 0, len(edges))
	for _, e := range edges {
		if _, ok := s.rawCards[e.FromID]; !ok {
			return nil, fmt.Errorf("raw card %d: %w", e.FromID, store.ErrNotFound)
		}
		if _, ok := s.rawCards[e.ToID]; !ok {
			return nil, fmt.Errorf("raw card %d: %w", e.ToID, store.ErrNotFound)
		}
		e.ID = s.next("raw_edge")
		e.GenerationID = generationID
		s.rawEdges[e.ID] = e
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) LatestGenerationID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Generation
	for _, g := range s.generations {
		g := g
		if latest == nil || g.CreatedAt.After(latest.CreatedAt) ||
			(g.CreatedAt.Equal(latest.CreatedAt) && g.ID > latest.ID) {
			latest = &g
		}
	}
	if latest == nil {
		return 0, store.ErrNotFound
	}
	return latest.ID, nil
}

func (s *Store) RawCards(ctx context.Context, generationID int64) ([]model.RawCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RawCard
	for _, c := range s.rawCards {
		if c.GenerationID == generationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetRawCardEmbedding(ctx context.Context, rawCardID int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rawCards[rawCardID]
	if !ok {
		return fmt.Errorf("raw card %d: %w", rawCardID, store.ErrNotFound)
	}
	c.Embedding = append([]float32(nil), embedding...)
	s.rawCards[rawCardID] = c
	return nil
}

func (s *Store) linkedRaw(runID int64) map[int64]bool {
	linked := make(map[int64]bool)
	for l := range s.links {
		if l.DeduplicationID == runID {
			linked[l.RawCardID] = true
		}
	}
	return linked
}

func (s *Store) UnlinkedRawCards(ctx context.Context, generationID, runID int64) ([]model.RawCard, error) {
	all, _ := s.RawCards(ctx, generationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	linked := s.linkedRaw(runID)
	var out []model.RawCard
	for _, c := range all {
		if !linked[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) RawEdges(ctx context.Context, generationID int64) ([]model.RawEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RawEdge
	for _, e := range s.rawEdges {
		if e.GenerationID == generationID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UnlinkedRawEdges(ctx context.Context, generationID, runID int64) ([]model.RawEdge, error) {
	all, _ := s.RawEdges(ctx, generationID)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RawEdge
	for _, e := range all {
		if _, ok := s.edgeLinks[edgeLinkKey{RawEdgeID: e.ID, Run: runID}]; !ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ActiveRun(ctx context.Context) (*model.DeduplicationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.Active() {
			r := r
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateRun(ctx context.Context, generationID int64) (*model.DeduplicationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.Active() {
			return nil, store.ErrActiveRunExists
		}
	}
	r := model.DeduplicationRun{
		ID:           s.next("run"),
		GenerationID: generationID,
		State:        model.RunInProgress,
		CreatedAt:    s.now(),
	}
	s.runs[r.ID] = r
	return &r, nil
}

func (s *Store) FinishRun(ctx context.Context, runID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %d: %w", runID, store.ErrNotFound)
	}
	if r.State == model.RunFinished {
		return nil
	}
	now := s.now()
	r.State = model.RunFinished
	r.FinishedAt = &now
	s.runs[runID] = r
	return nil
}

func (s *Store) Run(ctx context.Context, runID int64) (*model.DeduplicationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) Runs(ctx context.Context) ([]model.DeduplicationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DeduplicationRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) LatestFinishedRun(ctx context.Context) (*model.DeduplicationRun, error) {
	runs, _ := s.Runs(ctx)
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].State == model.RunFinished {
			return &runs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CanonicalCards(ctx context.Context, runID int64, filter store.CardFilter) ([]model.CanonicalCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids map[int64]bool
	if len(filter.IDs) > 0 {
		ids = make(map[int64]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}
	var inContext map[int64]bool
	if filter.ContextName != "" {
		inContext = make(map[int64]bool)
		for cc := range s.cardContexts {
			if cc.DeduplicationID == runID && cc.ContextName == filter.ContextName {
				inContext[cc.CanonicalCardID] = true
			}
		}
	}

	var out []model.CanonicalCard
	for _, c := range s.canonical {
		if c.DeduplicationID != runID {
			continue
		}
		if ids != nil && !ids[c.ID] {
			continue
		}
		if inContext != nil && !inContext[c.ID] {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCanonicalCard(ctx context.Context, card model.CanonicalCard) (model.CanonicalCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[card.DeduplicationID]; !ok {
		return model.CanonicalCard{}, fmt.Errorf("run %d: %w", card.DeduplicationID, store.ErrNotFound)
	}
	card.ID = s.next("canonical_card")
	if card.CreatedAt.IsZero() {
		card.CreatedAt = s.now()
	}
	s.canonical[card.ID] = card
	return card, nil
}

func (s *Store) CanonicalCardFor(ctx context.Context, runID, rawCardID int64) (*model.CanonicalCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best int64
	for l := range s.links {
		if l.DeduplicationID == runID && l.RawCardID == rawCardID {
			if best == 0 || l.CanonicalCardID < best {
				best = l.CanonicalCardID
			}
		}
	}
	c, ok := s.canonical[best]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UpsertCardLink(ctx context.Context, link model.CardLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rawCards[link.RawCardID]; !ok {
		return fmt.Errorf("raw card %d: %w", link.RawCardID, store.ErrNotFound)
	}
	if _, ok := s.canonical[link.CanonicalCardID]; !ok {
		return fmt.Errorf("canonical card %d: %w", link.CanonicalCardID, store.ErrNotFound)
	}
	s.links[link] = struct{}{}
	return nil
}

func (s *Store) CardLinks(ctx context.Context, runID int64) ([]model.CardLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CardLink
	for l := range s.links {
		if l.DeduplicationID == runID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RawCardID != out[j].RawCardID {
			return out[i].RawCardID < out[j].RawCardID
		}
		return out[i].CanonicalCardID < out[j].CanonicalCardID
	})
	return out, nil
}

func (s *Store) MergeCanonicalCards(ctx context.Context, runID, keep, drop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep == drop {
		return nil
	}
	if _, ok := s.canonical[drop]; !ok {
		return nil
	}
	if _, ok := s.canonical[keep]; !ok {
		return fmt.Errorf("canonical card %d: %w", keep, store.ErrNotFound)
	}

	for l := range s.links {
		if l.DeduplicationID == runID && l.CanonicalCardID == drop {
			delete(s.links, l)
			l.CanonicalCardID = keep
			s.links[l] = struct{}{}
		}
	}
	for cc := range s.cardContexts {
		if cc.DeduplicationID == runID && cc.CanonicalCardID == drop {
			delete(s.cardContexts, cc)
			cc.CanonicalCardID = keep
			s.cardContexts[cc] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(s.edges))
	for id := range s.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e := s.edges[id]
		if e.DeduplicationID != runID || (e.FromID != drop && e.ToID != drop) {
			continue
		}
		delete(s.edgeKeys, edgeKey{e.FromID, e.ToID, e.ContextName, runID})
		if e.FromID == drop {
			e.FromID = keep
		}
		if e.ToID == drop {
			e.ToID = keep
		}
		k := edgeKey{e.FromID, e.ToID, e.ContextName, runID}
		if existing, ok := s.edgeKeys[k]; ok {
			// Collapse onto the edge already holding the key.
			delete(s.edges, id)
			for lk, l := range s.edgeLinks {
				if l.CanonicalEdgeID == id {
					l.CanonicalEdgeID = existing
					s.edgeLinks[lk] = l
				}
			}
			continue
		}
		s.edges[id] = e
		s.edgeKeys[k] = id
	}

	delete(s.canonical, drop)
	return nil
}

func (s *Store) UpsertCanonicalContext(ctx context.Context, c model.CanonicalContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c] = struct{}{}
	return nil
}

func (s *Store) CanonicalContexts(ctx context.Context, runID int64) ([]model.CanonicalContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CanonicalContext
	for c := range s.contexts {
		if c.DeduplicationID == runID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveContextAliases(ctx context.Context, aliases []model.ContextAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range aliases {
		k := aliasKey{Raw: a.RawName, Run: a.DeduplicationID}
		if _, ok := s.aliases[k]; !ok {
			s.aliases[k] = a
		}
	}
	return nil
}

func (s *Store) ContextAliases(ctx context.Context, runID int64) ([]model.ContextAlias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ContextAlias
	for k, a := range s.aliases {
		if k.Run == runID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RawName < out[j].RawName })
	return out, nil
}

func (s *Store) UpsertCardContext(ctx context.Context, cc model.CardContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.canonical[cc.CanonicalCardID]; !ok {
		return fmt.Errorf("canonical card %d: %w", cc.CanonicalCardID, store.ErrNotFound)
	}
	s.cardContexts[cc] = struct{}{}
	return nil
}

func (s *Store) CardContexts(ctx context.Context, runID int64) ([]model.CardContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CardContext
	for cc := range s.cardContexts {
		if cc.DeduplicationID == runID {
			out = append(out, cc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CanonicalCardID != out[j].CanonicalCardID {
			return out[i].CanonicalCardID < out[j].CanonicalCardID
		}
		return out[i].ContextName < out[j].ContextName
	})
	return out, nil
}

func (s *Store) UpsertCanonicalEdge(ctx context.Context, e model.CanonicalEdge) (model.CanonicalEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeKey{e.FromID, e.ToID, e.ContextName, e.DeduplicationID}
	if id, ok := s.edgeKeys[k]; ok {
		return s.edges[id], nil
	}
	for _, id := range []int64{e.FromID, e.ToID} {
		if _, ok := s.canonical[id]; !ok {
			return model.CanonicalEdge{}, fmt.Errorf("canonical card %d: %w", id, store.ErrNotFound)
		}
	}
	e.ID = s.next("canonical_edge")
	s.edges[e.ID] = e
	s.edgeKeys[k] = e.ID
	return e, nil
}

func (s *Store) CanonicalEdges(ctx context.Context, runID int64, contextName string) ([]model.CanonicalEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CanonicalEdge
	for _, e := range s.edges {
		if e.DeduplicationID != runID {
			continue
		}
		if contextName != "" && e.ContextName != contextName {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertEdgeLink(ctx context.Context, l model.EdgeLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeLinkKey{RawEdgeID: l.RawEdgeID, Run: l.DeduplicationID}
	if _, ok := s.edgeLinks[k]; ok {
		return nil
	}
	if l.UUID == "" {
		l.UUID = uuid.NewString()
	}
	s.edgeLinks[k] = l
	return nil
}

func (s *Store) EdgeLinks(ctx context.Context, runID int64) ([]model.EdgeLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EdgeLink
	for k, l := range s.edgeLinks {
		if k.Run == runID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RawEdgeID < out[j].RawEdgeID })
	return out, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }
