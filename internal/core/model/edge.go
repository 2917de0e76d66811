package model

// EdgeMetadata is the free-form payload attached to an upgrade edge
// (story, problem, improvements, ...).
type EdgeMetadata map[string]interface{}

// RawEdge is an upgrade relation between two raw cards in a raw context.
type RawEdge struct {
	ID           int64        `json:"id"`
	FromID       int64        `json:"from_id"`
	ToID         int64        `json:"to_id"`
	ContextName  string       `json:"context_name"`
	Metadata     EdgeMetadata `json:"metadata,omitempty"`
	GenerationID int64        `json:"generation_id"`
}

// CanonicalEdge is unique per (FromID, ToID, ContextName, DeduplicationID).
// FromID may equal ToID.
type CanonicalEdge struct {
	ID              int64        `json:"id"`
	FromID          int64        `json:"from_id"`
	ToID            int64        `json:"to_id"`
	ContextName     string       `json:"context_name"`
	Metadata        EdgeMetadata `json:"metadata,omitempty"`
	DeduplicationID int64        `json:"deduplication_id"`
}

func (e CanonicalEdge) IsSelfEdge() bool {
	return e.FromID == e.ToID
}

// EdgeLink records which raw edge produced which canonical edge.
type EdgeLink struct {
	UUID                 string `json:"uuid"`
	RawEdgeID            int64  `json:"raw_edge_id"`
	CanonicalEdgeID      int64  `json:"canonical_edge_id"`
	RawContextName       string `json:"raw_context_name"`
	CanonicalContextName string `json:"canonical_context_name"`
	DeduplicationID      int64  `json:"deduplication_id"`
}
