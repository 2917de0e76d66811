package model

import "sort"

type CanonicalContext struct {
	Name            string `json:"name"`
	DeduplicationID int64  `json:"deduplication_id"`
}

// CardContext links a canonical card to a canonical context it is relevant to.
type CardContext struct {
	CanonicalCardID int64  `json:"canonical_card_id"`
	ContextName     string `json:"context_name"`
	DeduplicationID int64  `json:"deduplication_id"`
}

// ContextAlias records the canonical context a raw label resolved to in a
// run. Once stored it never changes.
type ContextAlias struct {
	RawName         string `json:"raw_name"`
	CanonicalName   string `json:"canonical_name"`
	DeduplicationID int64  `json:"deduplication_id"`
}

// ContextMapping maps every raw context label to its canonical label.
type ContextMapping map[string]string

// Canonical returns the canonical label for raw, or raw itself when unmapped.
func (m ContextMapping) Canonical(raw string) string {
	if c, ok := m[raw]; ok {
		return c
	}
	return raw
}

// CanonicalNames returns the distinct canonical labels.
func (m ContextMapping) CanonicalNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range m {
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	return names
}

// Aliases lists the mapping as aliases of runID, sorted by raw label.
func (m ContextMapping) Aliases(runID int64) []ContextAlias {
	out := make([]ContextAlias, 0, len(m))
	for raw, canonical := range m {
		out = append(out, ContextAlias{RawName: raw, CanonicalName: canonical, DeduplicationID: runID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RawName < out[j].RawName })
	return out
}
