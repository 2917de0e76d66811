// Package embedding turns values cards and context labels into vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/moralgraph/internal/llm"
)

// Preamble frames a card's policies before embedding.
const Preamble = "It feels meaningful to pay attention to the following in certain choices for me:\n"

var ErrEmptyInput = errors.New("nothing to embed")

type Service struct {
	Embedder llm.EmbedderClient
}

func NewService(e llm.EmbedderClient) *Service {
	return &Service{Embedder: e}
}

// PolicyText is the exact string embedded for a card.
func PolicyText(policies []string) string {
	return Preamble + strings.Join(policies, "\n")
}

func (s *Service) EmbedPolicies(ctx context.Context, policies []string) ([]float32, error) {
	if len(policies) == 0 {
		return nil, ErrEmptyInput
	}
	vec, err := s.Embedder.Embed(ctx, PolicyText(policies))
	if err != nil {
		return nil, fmt.Errorf("failed to embed policies: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}
	return vec, nil
}

func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vec, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %q: %w", text, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}
	return vec, nil
}
