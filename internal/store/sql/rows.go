package sql

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/agenthands/moralgraph/internal/core/model"
)

type generationRow struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (generationRow) TableName() string { return "generations" }

type rawCardRow struct {
	ID            int64          `gorm:"primaryKey"`
	Title         string         `gorm:"not null"`
	Policies      datatypes.JSON `gorm:"not null"`
	GenerationID  int64          `gorm:"index;not null"`
	ChoiceContext string
	Embedding     datatypes.JSON
	CreatedAt     time.Time
}

func (rawCardRow) TableName() string { return "values_cards" }

type rawEdgeRow struct {
	ID           int64  `gorm:"primaryKey"`
	FromID       int64  `gorm:"index;not null"`
	ToID         int64  `gorm:"index;not null"`
	ContextName  string `gorm:"not null"`
	Metadata     datatypes.JSON
	GenerationID int64 `gorm:"index;not null"`
}

func (rawEdgeRow) TableName() string { return "edges" }

type runRow struct {
	ID           int64  `gorm:"primaryKey"`
	GenerationID int64  `gorm:"index;not null"`
	State        string `gorm:"not null"`
	CreatedAt    time.Time
	FinishedAt   *time.Time
}

func (runRow) TableName() string { return "deduplication_runs" }

type canonicalCardRow struct {
	ID              int64          `gorm:"primaryKey"`
	Title           string         `gorm:"not null"`
	Policies        datatypes.JSON `gorm:"not null"`
	DeduplicationID int64          `gorm:"index;not null"`
	Embedding       datatypes.JSON
	CreatedAt       time.Time
}

func (canonicalCardRow) TableName() string { return "deduplicated_cards" }

type cardLinkRow struct {
	RawCardID       int64 `gorm:"primaryKey;autoIncrement:false"`
	CanonicalCardID int64 `gorm:"primaryKey;autoIncrement:false;index"`
	DeduplicationID int64 `gorm:"primaryKey;autoIncrement:false"`
}

func (cardLinkRow) TableName() string { return "values_card_to_deduplicated_card" }

type canonicalContextRow struct {
	Name            string `gorm:"primaryKey"`
	DeduplicationID int64  `gorm:"primaryKey;autoIncrement:false"`
}

func (canonicalContextRow) TableName() string { return "deduplicated_contexts" }

type contextAliasRow struct {
	RawName         string `gorm:"primaryKey"`
	DeduplicationID int64  `gorm:"primaryKey;autoIncrement:false"`
	CanonicalName   string `gorm:"not null"`
}

func (contextAliasRow) TableName() string { return "deduplicated_context_aliases" }

type cardContextRow struct {
	CanonicalCardID int64  `gorm:"primaryKey;autoIncrement:false"`
	ContextName     string `gorm:"primaryKey"`
	DeduplicationID int64  `gorm:"primaryKey;autoIncrement:false"`
}

func (cardContextRow) TableName() string { return "deduplicated_card_contexts" }

type canonicalEdgeRow struct {
	ID              int64  `gorm:"primaryKey"`
	FromID          int64  `gorm:"uniqueIndex:idx_deduplicated_edge_key;not null"`
	ToID            int64  `gorm:"uniqueIndex:idx_deduplicated_edge_key;not null"`
	ContextName     string `gorm:"uniqueIndex:idx_deduplicated_edge_key;not null"`
	DeduplicationID int64  `gorm:"uniqueIndex:idx_deduplicated_edge_key;not null"`
	Metadata        datatypes.JSON
}

func (canonicalEdgeRow) TableName() string { return "deduplicated_edges" }

type edgeLinkRow struct {
	UUID                 string `gorm:"primaryKey"`
	RawEdgeID            int64  `gorm:"uniqueIndex:idx_edge_link_key;not null"`
	DeduplicationID      int64  `gorm:"uniqueIndex:idx_edge_link_key;not null"`
	CanonicalEdgeID      int64  `gorm:"index;not null"`
	RawContextName       string
	CanonicalContextName string
}

func (edgeLinkRow) TableName() string { return "edge_to_deduplicated_edge" }

func allRows() []any {
	return []any{
		&generationRow{}, &rawCardRow{}, &rawEdgeRow{}, &runRow{},
		&canonicalCardRow{}, &cardLinkRow{}, &canonicalContextRow{},
		&contextAliasRow{}, &cardContextRow{}, &canonicalEdgeRow{}, &edgeLinkRow{},
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func embeddingJSON(v []float32) (datatypes.JSON, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return toJSON(v)
}

func decodeStrings(raw datatypes.JSON) []string {
	var out []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func decodeEmbedding(raw datatypes.JSON) []float32 {
	var out []float32
	if len(raw) > 0 && string(raw) != "null" {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func decodeMetadata(raw datatypes.JSON) model.EdgeMetadata {
	var out model.EdgeMetadata
	if len(raw) > 0 && string(raw) != "null" {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func (r rawCardRow) model() model.RawCard {
	return model.RawCard{
		ID:            r.ID,
		Title:         r.Title,
		Policies:      decodeStrings(r.Policies),
		GenerationID:  r.GenerationID,
		ChoiceContext: r.ChoiceContext,
		Embedding:     decodeEmbedding(r.Embedding),
		CreatedAt:     r.CreatedAt,
	}
}

func (r rawEdgeRow) model() model.RawEdge {
	return model.RawEdge{
		ID:           r.ID,
		FromID:       r.FromID,
		ToID:         r.ToID,
		ContextName:  r.ContextName,
		Metadata:     decodeMetadata(r.Metadata),
		GenerationID: r.GenerationID,
	}
}

func (r runRow) model() model.DeduplicationRun {
	return model.DeduplicationRun{
		ID:           r.ID,
		GenerationID: r.GenerationID,
		State:        model.RunState(r.State),
		CreatedAt:    r.CreatedAt,
		FinishedAt:   r.FinishedAt,
	}
}

func (r canonicalCardRow) model() model.CanonicalCard {
	return model.CanonicalCard{
		ID:              r.ID,
		Title:           r.Title,
		Policies:        decodeStrings(r.Policies),
		DeduplicationID: r.DeduplicationID,
		Embedding:       decodeEmbedding(r.Embedding),
		CreatedAt:       r.CreatedAt,
	}
}

func (r canonicalEdgeRow) model() model.CanonicalEdge {
	return model.CanonicalEdge{
		ID:              r.ID,
		FromID:          r.FromID,
		ToID:            r.ToID,
		ContextName:     r.ContextName,
		Metadata:        decodeMetadata(r.Metadata),
		DeduplicationID: r.DeduplicationID,
	}
}

func (r edgeLinkRow) model() model.EdgeLink {
	return model.EdgeLink{
		UUID:                 r.UUID,
		RawEdgeID:            r.RawEdgeID,
		CanonicalEdgeID:      r.CanonicalEdgeID,
		RawContextName:       r.RawContextName,
		CanonicalContextName: r.CanonicalContextName,
		DeduplicationID:      r.DeduplicationID,
	}
}
