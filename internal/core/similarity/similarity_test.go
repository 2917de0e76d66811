package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/moralgraph/internal/core/model"
)

func unit(deg float64) []float32 {
	r := deg * math.Pi / 180
	return []float32{float32(math.Cos(r)), float32(math.Sin(r))}
}

func TestCosineDistance(t *testing.T) {
	d, ok := CosineDistance([]float32{1, 0}, []float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 0, d, 1e-9)

	d, ok = CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.True(t, ok)
	assert.InDelta(t, 2, d, 1e-9)

	d, ok = CosineDistance([]float32{1, 0}, []float32{0, 3})
	require.True(t, ok)
	assert.InDelta(t, 1, d, 1e-9)

	_, ok = CosineDistance([]float32{1, 0}, []float32{1, 0, 0})
	assert.False(t, ok)
	_, ok = CosineDistance([]float32{0, 0}, []float32{1, 0})
	assert.False(t, ok)
}

func TestSearchOrderingAndFiltering(t *testing.T) {
	pool := []Item{
		{ID: 4, Embedding: unit(20)},
		{ID: 3, Embedding: unit(5)},
		{ID: 2, Embedding: unit(5)},
		{ID: 1, Embedding: nil},
		{ID: 5, Embedding: []float32{1, 0, 0}},
		{ID: 6, Embedding: unit(90)},
	}
	got := Search(unit(0), pool, 10, DefaultThreshold)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.LessOrEqual(t, got[0].Distance, got[2].Distance)

	assert.Len(t, Search(unit(0), pool, 1, DefaultThreshold), 1)
	assert.Empty(t, Search(unit(0), nil, 5, DefaultThreshold))
}

func TestSearchThresholdIsStrict(t *testing.T) {
	d, _ := CosineDistance(unit(0), unit(30))
	pool := []Item{{ID: 1, Embedding: unit(30)}}
	assert.Empty(t, Search(unit(0), pool, 5, d))
	assert.Len(t, Search(unit(0), pool, 5, d+1e-6), 1)
}

func TestSearchThresholdMonotonic(t *testing.T) {
	var pool []Item
	for i := 0; i < 30; i++ {
		pool = append(pool, Item{ID: int64(i), Embedding: unit(float64(i) * 3)})
	}
	prev := map[int64]bool{}
	for _, th := range []float64{0.001, 0.01, 0.05, 0.1, 0.3, 1} {
		got := Search(unit(0), pool, len(pool), th)
		cur := map[int64]bool{}
		for _, s := range got {
			cur[s.ID] = true
		}
		for id := range prev {
			assert.True(t, cur[id], "id %d dropped when threshold rose to %v", id, th)
		}
		prev = cur
	}
}

func TestSearchCanonical(t *testing.T) {
	cards := []model.CanonicalCard{
		{ID: 10, Title: "Honesty", Embedding: unit(2)},
		{ID: 11, Title: "Far", Embedding: unit(80)},
	}
	got := SearchCanonical(unit(0), cards, DefaultLimit, DefaultThreshold)
	require.Len(t, got, 1)
	assert.Equal(t, "Honesty", got[0].Title)
	assert.Greater(t, got[0].Distance, 0.0)
}

func TestSearchRawItems(t *testing.T) {
	cards := []model.RawCard{
		{ID: 1, Embedding: unit(0)},
		{ID: 2},
		{ID: 3, Embedding: unit(5)},
	}
	items := RawItems(cards)
	require.Len(t, items, 3)
	assert.Equal(t, int64(2), items[1].ID)
	assert.Empty(t, items[1].Embedding)

	got := Search(unit(1), items, 5, 0.1)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}
