// Package sql persists the consolidation graph in Postgres or SQLite via
// gorm. Composite unique keys back every upsert.
package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
)

const activeRunIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_single_active_run
	ON deduplication_runs (state) WHERE state = 'IN_PROGRESS'`

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to backend ("postgres" or "sqlite") and migrates the schema.
func Open(backend, dsn string, logg *logger.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(backend) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql backend: %s", backend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   newGormLog(logg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", backend, err)
	}
	if strings.EqualFold(backend, "sqlite") {
		// Shared-cache in-memory databases lock tables per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, logg)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB, logg *logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(allRows()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := db.Exec(activeRunIndex).Error; err != nil {
		return nil, fmt.Errorf("failed to create active run index: %w", err)
	}
	return &Store{db: db, log: logger.OrNop(logg).With("service", "SQLStore")}, nil
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, store.ErrNotFound)
	}
	return err
}

func (s *Store) CreateGeneration(ctx context.Context) (model.Generation, error) {
	row := generationRow{CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Generation{}, err
	}
	return model.Generation{ID: row.ID, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) CreateRawCards(ctx context.Context, generationID int64, cards []model.RawCard) ([]model.RawCard, error) {
	out := make([]model.RawCard, 0, len(cards))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&generationRow{}, generationID).Error; err != nil {
			return notFound(err, "generation", generationID)
		}
		for _, c := range cards {
			policies, err := toJSON(c.Policies)
			if err != nil {
				return err
			}
			emb, err := embeddingJSON(c.Embedding)
			if err != nil {
				return err
			}
			row := rawCardRow{
				Title:         c.Title,
				Policies:      policies,
				GenerationID:  generationID,
				ChoiceContext: c.ChoiceContext,
				Embedding:     emb,
				CreatedAt:     c.CreatedAt,
			}
			if row.CreatedAt.IsZero() {
				row.CreatedAt = time.Now()
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			out = append(out, row.model())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateRawEdges(ctx context.Context, generationID int64, edges []model.RawEdge) ([]model.RawEdge, error) {
	out := make([]model.RawEdge, 0, len(edges))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&generationRow{}, generationID).Error; err != nil {
			return notFound(err, "generation", generationID)
		}
		for _, e := range edges {
			meta, err := toJSON(e.Metadata)
			if err != nil {
				return err
			}
			row := rawEdgeRow{
				FromID:       e.FromID,
				ToID:         e.ToID,
				ContextName:  e.ContextName,
				Metadata:     meta,
				GenerationID: generationID,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			out = append(out, row.model())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) LatestGenerationID(ctx context.Context) (int64, error) {
	var row generationRow
	err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Store) rawCards(q *gorm.DB) ([]model.RawCard, error) {
	var rows []rawCardRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.RawCard, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) RawCards(ctx context.Context, generationID int64) ([]model.RawCard, error) {
	return s.rawCards(s.db.WithContext(ctx).Where("generation_id = ?", generationID))
}

func (s *Store) SetRawCardEmbedding(ctx context.Context, rawCardID int64, embedding []float32) error {
	emb, err := embeddingJSON(embedding)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&rawCardRow{}).Where("id = ?", rawCardID).Update("embedding", emb)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("raw card %d: %w", rawCardID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UnlinkedRawCards(ctx context.Context, generationID, runID int64) ([]model.RawCard, error) {
	db := s.db.WithContext(ctx)
	linked := db.Model(&cardLinkRow{}).Select("raw_card_id").Where("deduplication_id = ?", runID)
	return s.rawCards(db.Where("generation_id = ?", generationID).Where("id NOT IN (?)", linked))
}

func (s *Store) rawEdges(q *gorm.DB) ([]model.RawEdge, error) {
	var rows []rawEdgeRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.RawEdge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) RawEdges(ctx context.Context, generationID int64) ([]model.RawEdge, error) {
	return s.rawEdges(s.db.WithContext(ctx).Where("generation_id = ?", generationID))
}

func (s *Store) UnlinkedRawEdges(ctx context.Context, generationID, runID int64) ([]model.RawEdge, error) {
	db := s.db.WithContext(ctx)
	linked := db.Model(&edgeLinkRow{}).Select("raw_edge_id").Where("deduplication_id = ?", runID)
	return s.rawEdges(db.Where("generation_id = ?", generationID).Where("id NOT IN (?)", linked))
}

func (s *Store) ActiveRun(ctx context.Context) (*model.DeduplicationRun, error) {
	var row runRow
	err := s.db.WithContext(ctx).Where("state = ?", string(model.RunInProgress)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r := row.model()
	return &r, nil
}

func (s *Store) CreateRun(ctx context.Context, generationID int64) (*model.DeduplicationRun, error) {
	row := runRow{
		GenerationID: generationID,
		State:        string(model.RunInProgress),
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, store.ErrActiveRunExists
		}
		return nil, err
	}
	r := row.model()
	return &r, nil
}

func (s *Store) FinishRun(ctx context.Context, runID int64) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&runRow{}).
		Where("id = ? AND state = ?", runID, string(model.RunInProgress)).
		Updates(map[string]any{"state": string(model.RunFinished), "finished_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Run(ctx, runID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Run(ctx context.Context, runID int64) (*model.DeduplicationRun, error) {
	var row runRow
	if err := s.db.WithContext(ctx).First(&row, runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r := row.model()
	return &r, nil
}

func (s *Store) Runs(ctx context.Context) ([]model.DeduplicationRun, error) {
	var rows []runRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.DeduplicationRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) LatestFinishedRun(ctx context.Context) (*model.DeduplicationRun, error) {
	var row runRow
	err := s.db.WithContext(ctx).Where("state = ?", string(model.RunFinished)).Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r := row.model()
	return &r, nil
}

func (s *Store) CanonicalCards(ctx context.Context, runID int64, filter store.CardFilter) ([]model.CanonicalCard, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("deduplication_id = ?", runID)
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}
	if filter.ContextName != "" {
		inContext := db.Model(&cardContextRow{}).Select("canonical_card_id").
			Where("deduplication_id = ? AND context_name = ?", runID, filter.ContextName)
		q = q.Where("id IN (?)", inContext)
	}
	var rows []canonicalCardRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.CanonicalCard, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) CreateCanonicalCard(ctx context.Context, card model.CanonicalCard) (model.CanonicalCard, error) {
	policies, err := toJSON(card.Policies)
	if err != nil {
		return model.CanonicalCard{}, err
	}
	emb, err := embeddingJSON(card.Embedding)
	if err != nil {
		return model.CanonicalCard{}, err
	}
	row := canonicalCardRow{
		Title:           card.Title,
		Policies:        policies,
		DeduplicationID: card.DeduplicationID,
		Embedding:       emb,
		CreatedAt:       card.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.CanonicalCard{}, err
	}
	return row.model(), nil
}

func (s *Store) CanonicalCardFor(ctx context.Context, runID, rawCardID int64) (*model.CanonicalCard, error) {
	var row canonicalCardRow
	err := s.db.WithContext(ctx).
		Joins("JOIN values_card_to_deduplicated_card l ON l.canonical_card_id = deduplicated_cards.id").
		Where("l.raw_card_id = ? AND l.deduplication_id = ?", rawCardID, runID).
		Order("deduplicated_cards.id").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c := row.model()
	return &c, nil
}

func (s *Store) UpsertCardLink(ctx context.Context, link model.CardLink) error {
	row := cardLinkRow(link)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) CardLinks(ctx context.Context, runID int64) ([]model.CardLink, error) {
	var rows []cardLinkRow
	if err := s.db.WithContext(ctx).Where("deduplication_id = ?", runID).
		Order("raw_card_id").Order("canonical_card_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.CardLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.CardLink(r))
	}
	return out, nil
}

func (s *Store) MergeCanonicalCards(ctx context.Context, runID, keep, drop int64) error {
	if keep == drop {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dropRow canonicalCardRow
		err := tx.Where("id = ? AND deduplication_id = ?", drop, runID).First(&dropRow).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("id = ? AND deduplication_id = ?", keep, runID).First(&canonicalCardRow{}).Error; err != nil {
			return notFound(err, "canonical card", keep)
		}

		var links []cardLinkRow
		if err := tx.Where("canonical_card_id = ? AND deduplication_id = ?", drop, runID).Find(&links).Error; err != nil {
			return err
		}
		for i := range links {
			links[i].CanonicalCardID = keep
		}
		if len(links) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("canonical_card_id = ? AND deduplication_id = ?", drop, runID).Delete(&cardLinkRow{}).Error; err != nil {
			return err
		}

		var ccs []cardContextRow
		if err := tx.Where("canonical_card_id = ? AND deduplication_id = ?", drop, runID).Find(&ccs).Error; err != nil {
			return err
		}
		for i := range ccs {
			ccs[i].CanonicalCardID = keep
		}
		if len(ccs) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ccs).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("canonical_card_id = ? AND deduplication_id = ?", drop, runID).Delete(&cardContextRow{}).Error; err != nil {
			return err
		}

		var edges []canonicalEdgeRow
		if err := tx.Where("deduplication_id = ? AND (from_id = ? OR to_id = ?)", runID, drop, drop).
			Order("id").Find(&edges).Error; err != nil {
			return err
		}
		for _, e := range edges {
			from, to := e.FromID, e.ToID
			if from == drop {
				from = keep
			}
			if to == drop {
				to = keep
			}
			var existing canonicalEdgeRow
			err := tx.Where("from_id = ? AND to_id = ? AND context_name = ? AND deduplication_id = ? AND id <> ?",
				from, to, e.ContextName, runID, e.ID).First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&edgeLinkRow{}).Where("canonical_edge_id = ?", e.ID).
					Update("canonical_edge_id", existing.ID).Error; err != nil {
					return err
				}
				if err := tx.Delete(&canonicalEdgeRow{}, e.ID).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Model(&canonicalEdgeRow{}).Where("id = ?", e.ID).
					Updates(map[string]any{"from_id": from, "to_id": to}).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}

		return tx.Delete(&canonicalCardRow{}, drop).Error
	})
	if err != nil {
		return fmt.Errorf("merge %d into %d: %w", drop, keep, err)
	}
	s.log.Debug("merged canonical cards", "run_id", runID, "keep", keep, "drop", drop)
	return nil
}

func (s *Store) UpsertCanonicalContext(ctx context.Context, c model.CanonicalContext) error {
	row := canonicalContextRow(c)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) CanonicalContexts(ctx context.Context, runID int64) ([]model.CanonicalContext, error) {
	var rows []canonicalContextRow
	if err := s.db.WithContext(ctx).Where("deduplication_id = ?", runID).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.CanonicalContext, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.CanonicalContext(r))
	}
	return out, nil
}

func (s *Store) SaveContextAliases(ctx context.Context, aliases []model.ContextAlias) error {
	if len(aliases) == 0 {
		return nil
	}
	rows := make([]contextAliasRow, 0, len(aliases))
	for _, a := range aliases {
		rows = append(rows, contextAliasRow{RawName: a.RawName, DeduplicationID: a.DeduplicationID, CanonicalName: a.CanonicalName})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *Store) ContextAliases(ctx context.Context, runID int64) ([]model.ContextAlias, error) {
	var rows []contextAliasRow
	if err := s.db.WithContext(ctx).Where("deduplication_id = ?", runID).Order("raw_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ContextAlias, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ContextAlias{RawName: r.RawName, CanonicalName: r.CanonicalName, DeduplicationID: r.DeduplicationID})
	}
	return out, nil
}

func (s *Store) UpsertCardContext(ctx context.Context, cc model.CardContext) error {
	row := cardContextRow(cc)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) CardContexts(ctx context.Context, runID int64) ([]model.CardContext, error) {
	var rows []cardContextRow
	if err := s.db.WithContext(ctx).Where("deduplication_id = ?", runID).
		Order("canonical_card_id").Order("context_name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.CardContext, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.CardContext(r))
	}
	return out, nil
}

func (s *Store) UpsertCanonicalEdge(ctx context.Context, e model.CanonicalEdge) (model.CanonicalEdge, error) {
	meta, err := toJSON(e.Metadata)
	if err != nil {
		return model.CanonicalEdge{}, err
	}
	db := s.db.WithContext(ctx)
	row := canonicalEdgeRow{
		FromID:          e.FromID,
		ToID:            e.ToID,
		ContextName:     e.ContextName,
		DeduplicationID: e.DeduplicationID,
		Metadata:        meta,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "from_id"}, {Name: "to_id"}, {Name: "context_name"}, {Name: "deduplication_id"},
		},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return model.CanonicalEdge{}, err
	}

	var stored canonicalEdgeRow
	if err := db.Where("from_id = ? AND to_id = ? AND context_name = ? AND deduplication_id = ?",
		e.FromID, e.ToID, e.ContextName, e.DeduplicationID).First(&stored).Error; err != nil {
		return model.CanonicalEdge{}, err
	}
	return stored.model(), nil
}

func (s *Store) CanonicalEdges(ctx context.Context, runID int64, contextName string) ([]model.CanonicalEdge, error) {
	q := s.db.WithContext(ctx).Where("deduplication_id = ?", runID)
	if contextName != "" {
		q = q.Where("context_name = ?", contextName)
	}
	var rows []canonicalEdgeRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.CanonicalEdge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) UpsertEdgeLink(ctx context.Context, l model.EdgeLink) error {
	if l.UUID == "" {
		l.UUID = uuid.NewString()
	}
	row := edgeLinkRow{
		UUID:                 l.UUID,
		RawEdgeID:            l.RawEdgeID,
		DeduplicationID:      l.DeduplicationID,
		CanonicalEdgeID:      l.CanonicalEdgeID,
		RawContextName:       l.RawContextName,
		CanonicalContextName: l.CanonicalContextName,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Store) EdgeLinks(ctx context.Context, runID int64) ([]model.EdgeLink, error) {
	var rows []edgeLinkRow
	if err := s.db.WithContext(ctx).Where("deduplication_id = ?", runID).Order("raw_edge_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.EdgeLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
