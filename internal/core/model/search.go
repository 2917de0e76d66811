package model

// CardWithDistance is a similarity search hit. It is never persisted.
type CardWithDistance struct {
	CanonicalCard
	Distance float64 `json:"distance"`
}
