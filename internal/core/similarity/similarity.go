// Package similarity ranks embedded items by cosine distance.
package similarity

import (
	"math"
	"sort"

	"github.com/agenthands/moralgraph/internal/core/model"
)

const (
	DefaultThreshold = 0.1
	DefaultLimit     = 5
)

type Item struct {
	ID        int64
	Embedding []float32
}

type Scored struct {
	ID       int64
	Distance float64
}

// CosineDistance is 1 - cos(a, b), in [0, 2]. Vectors of different length
// or zero norm have no defined distance and report ok=false.
func CosineDistance(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return math.Max(0, math.Min(2, d)), true
}

// Search returns pool items strictly closer than threshold to candidate,
// nearest first, ties by id, at most limit of them.
func Search(candidate []float32, pool []Item, limit int, threshold float64) []Scored {
	if len(pool) == 0 || limit <= 0 {
		return nil
	}
	var out []Scored
	for _, it := range pool {
		d, ok := CosineDistance(candidate, it.Embedding)
		if !ok || d >= threshold {
			continue
		}
		out = append(out, Scored{ID: it.ID, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RawItems projects raw cards onto search items.
func RawItems(cards []model.RawCard) []Item {
	items := make([]Item, 0, len(cards))
	for _, c := range cards {
		items = append(items, Item{ID: c.ID, Embedding: c.Embedding})
	}
	return items
}

// SearchCanonical ranks canonical cards of a run against candidate.
func SearchCanonical(candidate []float32, cards []model.CanonicalCard, limit int, threshold float64) []model.CardWithDistance {
	byID := make(map[int64]model.CanonicalCard, len(cards))
	items := make([]Item, 0, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
		items = append(items, Item{ID: c.ID, Embedding: c.Embedding})
	}
	scored := Search(candidate, items, limit, threshold)
	out := make([]model.CardWithDistance, 0, len(scored))
	for _, s := range scored {
		out = append(out, model.CardWithDistance{CanonicalCard: byID[s.ID], Distance: s.Distance})
	}
	return out
}
