package dedupe

import (
	"context"
	"fmt"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/llm"
)

// FindDuplicate asks the model whether one of candidates denotes the same
// value as card. It returns nil when none does or when there is nothing to
// compare against.
func (d *Deduplicator) FindDuplicate(ctx context.Context, card model.RawCard, candidates []model.RawCard) (*model.RawCard, error) {
	offered := make([]promptCard, 0, len(candidates))
	for _, c := range candidates {
		offered = append(offered, promptCard{ID: c.ID, Policies: c.Policies})
	}
	id, err := d.adjudicate(ctx, card.Policies, offered)
	if err != nil || id == nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].ID == *id {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// FindCanonical is FindDuplicate against the canonical cards of a run.
func (d *Deduplicator) FindCanonical(ctx context.Context, card model.RawCard, candidates []model.CardWithDistance) (*model.CanonicalCard, error) {
	offered := make([]promptCard, 0, len(candidates))
	for _, c := range candidates {
		offered = append(offered, promptCard{ID: c.ID, Policies: c.Policies})
	}
	id, err := d.adjudicate(ctx, card.Policies, offered)
	if err != nil || id == nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].ID == *id {
			return &candidates[i].CanonicalCard, nil
		}
	}
	return nil, nil
}

func (d *Deduplicator) adjudicate(ctx context.Context, policies []string, offered []promptCard) (*int64, error) {
	if len(offered) == 0 {
		return nil, nil
	}

	req := llm.Request{
		System:   d.Options.Prompts.Dedupe,
		User:     dedupeMessage(policies, offered),
		Function: DedupeFunction,
	}

	var match *int64
	err := d.complete(ctx, DedupeFunction.Name, req, func(resp *llm.Response) error {
		out, err := llm.Decode[model.DuplicateMatch](resp, DedupeFunction)
		if err != nil {
			return err
		}
		if out.MatchingID != nil && !offeredID(offered, *out.MatchingID) {
			return fmt.Errorf("%w: %d", ErrUnknownChoice, *out.MatchingID)
		}
		match = out.MatchingID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func offeredID(offered []promptCard, id int64) bool {
	for _, c := range offered {
		if c.ID == id {
			return true
		}
	}
	return false
}
