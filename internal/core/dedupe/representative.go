package dedupe

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/moralgraph/internal/core/model"
	"github.com/agenthands/moralgraph/internal/llm"
)

// Representative picks the best formulated card of a cluster. A single
// card is returned without asking the model.
func (d *Deduplicator) Representative(ctx context.Context, cards []model.RawCard) (model.RawCard, error) {
	switch len(cards) {
	case 0:
		return model.RawCard{}, errors.New("representative of an empty cluster")
	case 1:
		return cards[0], nil
	}

	offered := make([]promptCard, 0, len(cards))
	for _, c := range cards {
		offered = append(offered, promptCard{ID: c.ID, Policies: c.Policies})
	}
	req := llm.Request{
		System:   d.Options.Prompts.BestCard,
		User:     bestCardMessage(offered),
		Function: BestCardFunction,
	}

	var best model.RawCard
	err := d.complete(ctx, BestCardFunction.Name, req, func(resp *llm.Response) error {
		out, err := llm.Decode[model.BestCard](resp, BestCardFunction)
		if err != nil {
			return err
		}
		for _, c := range cards {
			if c.ID == out.BestID {
				best = c
				return nil
			}
		}
		return fmt.Errorf("%w: %d", ErrUnknownChoice, out.BestID)
	})
	if err != nil {
		return model.RawCard{}, err
	}
	return best, nil
}
