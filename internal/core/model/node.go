package model

import "time"

// RawCard is a values card produced by the generation phase.
type RawCard struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Policies      []string  `json:"policies"`
	GenerationID  int64     `json:"generation_id"`
	ChoiceContext string    `json:"choice_context,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CanonicalCard represents one equivalence class of raw cards under a
// deduplication run.
type CanonicalCard struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Policies        []string  `json:"policies"`
	DeduplicationID int64     `json:"deduplication_id"`
	Embedding       []float32 `json:"embedding,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type CardLink struct {
	RawCardID       int64 `json:"raw_card_id"`
	CanonicalCardID int64 `json:"canonical_card_id"`
	DeduplicationID int64 `json:"deduplication_id"`
}

type Generation struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// CanonicalFromRaw seeds a canonical card from its representative.
func CanonicalFromRaw(raw RawCard, runID int64) CanonicalCard {
	policies := make([]string, len(raw.Policies))
	copy(policies, raw.Policies)
	return CanonicalCard{
		Title:           raw.Title,
		Policies:        policies,
		DeduplicationID: runID,
		Embedding:       raw.Embedding,
	}
}
