package model

// DuplicateMatch is the structured answer of the equivalence adjudication.
// MatchingID is nil when no candidate denotes the same value.
type DuplicateMatch struct {
	MatchingID *int64 `json:"matching_id,omitempty"`
}

// BestCard is the structured answer of representative selection.
type BestCard struct {
	BestID int64 `json:"best_id"`
}

// SynonymGroup is one group of context labels with its canonical label.
type SynonymGroup struct {
	Canonical string   `json:"canonical"`
	Members   []string `json:"members"`
}

type SynonymGroups struct {
	Groups []SynonymGroup `json:"groups"`
}
