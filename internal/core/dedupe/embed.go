package dedupe

import (
	"context"
	"fmt"

	"github.com/agenthands/moralgraph/internal/core/model"
)

// EmbedCards computes and stores the embedding of every card that lacks
// one. Cards that cannot be embedded are logged and left out.
func (d *Deduplicator) EmbedCards(ctx context.Context, cards []model.RawCard) (int, error) {
	embedded := 0
	for _, c := range cards {
		if len(c.Embedding) > 0 {
			continue
		}
		policies := c.Policies
		vec, err := d.embed(ctx, "embed_card", func(ctx context.Context) ([]float32, error) {
			return d.Embeddings.EmbedPolicies(ctx, policies)
		})
		if err != nil {
			if ctx.Err() != nil {
				return embedded, ctx.Err()
			}
			d.log.Warn("skipping card, embedding failed", "card_id", c.ID, "error", err)
			continue
		}
		if err := d.Store.SetRawCardEmbedding(ctx, c.ID, vec); err != nil {
			return embedded, fmt.Errorf("failed to store embedding of card %d: %w", c.ID, err)
		}
		embedded++
	}
	return embedded, nil
}
