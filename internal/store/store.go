// Package store declares the persistence contract of the consolidation
// pipeline. Every write is either lookup-before-create or a keyed upsert,
// so an interrupted run can be resumed by replaying it.
package store

import (
	"context"
	"errors"

	"github.com/agenthands/moralgraph/internal/core/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrActiveRunExists = errors.New("an IN_PROGRESS deduplication run already exists")
)

// CardFilter narrows CanonicalCards. Zero values match everything.
type CardFilter struct {
	IDs         []int64
	ContextName string
}

// Importer writes the read-only inputs of a run. Only the import command
// and tests use it.
type Importer interface {
	CreateGeneration(ctx context.Context) (model.Generation, error)
	// CreateRawCards assigns ids and returns the stored cards in order.
	CreateRawCards(ctx context.Context, generationID int64, cards []model.RawCard) ([]model.RawCard, error)
	CreateRawEdges(ctx context.Context, generationID int64, edges []model.RawEdge) ([]model.RawEdge, error)
}

type Store interface {
	Importer

	// LatestGenerationID returns ErrNotFound when nothing was imported.
	LatestGenerationID(ctx context.Context) (int64, error)
	RawCards(ctx context.Context, generationID int64) ([]model.RawCard, error)
	SetRawCardEmbedding(ctx context.Context, rawCardID int64, embedding []float32) error
	// UnlinkedRawCards lists raw cards of the generation with no CardLink in run.
	UnlinkedRawCards(ctx context.Context, generationID, runID int64) ([]model.RawCard, error)
	RawEdges(ctx context.Context, generationID int64) ([]model.RawEdge, error)
	// UnlinkedRawEdges lists raw edges of the generation with no EdgeLink in run.
	UnlinkedRawEdges(ctx context.Context, generationID, runID int64) ([]model.RawEdge, error)

	// ActiveRun returns ErrNotFound when no run is IN_PROGRESS.
	ActiveRun(ctx context.Context) (*model.DeduplicationRun, error)
	// CreateRun fails with ErrActiveRunExists while another run is active.
	CreateRun(ctx context.Context, generationID int64) (*model.DeduplicationRun, error)
	FinishRun(ctx context.Context, runID int64) error
	Run(ctx context.Context, runID int64) (*model.DeduplicationRun, error)
	Runs(ctx context.Context) ([]model.DeduplicationRun, error)
	LatestFinishedRun(ctx context.Context) (*model.DeduplicationRun, error)

	CanonicalCards(ctx context.Context, runID int64, filter CardFilter) ([]model.CanonicalCard, error)
	CreateCanonicalCard(ctx context.Context, card model.CanonicalCard) (model.CanonicalCard, error)
	// CanonicalCardFor returns the canonical card rawCardID is linked to in
	// run, or ErrNotFound.
	CanonicalCardFor(ctx context.Context, runID, rawCardID int64) (*model.CanonicalCard, error)
	UpsertCardLink(ctx context.Context, link model.CardLink) error
	CardLinks(ctx context.Context, runID int64) ([]model.CardLink, error)
	// MergeCanonicalCards re-points every link, card context and edge
	// endpoint from drop onto keep, then deletes drop. Merging a card that
	// no longer exists is a no-op.
	MergeCanonicalCards(ctx context.Context, runID, keep, drop int64) error

	UpsertCanonicalContext(ctx context.Context, c model.CanonicalContext) error
	CanonicalContexts(ctx context.Context, runID int64) ([]model.CanonicalContext, error)
	// SaveContextAliases stores aliases in a single write. A raw label that
	// already has an alias in the run keeps it.
	SaveContextAliases(ctx context.Context, aliases []model.ContextAlias) error
	// ContextAliases lists the aliases of run sorted by raw label.
	ContextAliases(ctx context.Context, runID int64) ([]model.ContextAlias, error)
	UpsertCardContext(ctx context.Context, cc model.CardContext) error
	CardContexts(ctx context.Context, runID int64) ([]model.CardContext, error)

	// UpsertCanonicalEdge returns the stored edge. An existing edge with the
	// same endpoints, context and run is returned unchanged.
	UpsertCanonicalEdge(ctx context.Context, e model.CanonicalEdge) (model.CanonicalEdge, error)
	// CanonicalEdges lists edges of run, restricted to contextName unless empty.
	CanonicalEdges(ctx context.Context, runID int64, contextName string) ([]model.CanonicalEdge, error)
	// UpsertEdgeLink is keyed by (RawEdgeID, DeduplicationID).
	UpsertEdgeLink(ctx context.Context, l model.EdgeLink) error
	EdgeLinks(ctx context.Context, runID int64) ([]model.EdgeLink, error)

	Close(ctx context.Context) error
}
