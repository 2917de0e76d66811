// Package dedupe collapses the raw cards, contexts and edges of a
// generation into the canonical graph of one deduplication run.
package dedupe

import (
	"context"
	"errors"
	"time"

	"github.com/agenthands/moralgraph/internal/config"
	"github.com/agenthands/moralgraph/internal/core/cluster"
	"github.com/agenthands/moralgraph/internal/core/embedding"
	"github.com/agenthands/moralgraph/internal/core/similarity"
	"github.com/agenthands/moralgraph/internal/llm"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
)

// ErrUnknownChoice is returned when the model answers with an id that was
// not offered to it.
var ErrUnknownChoice = errors.New("model chose an id that was not offered")

const (
	StrategyEmbedding = "embedding"
	StrategyLLM       = "llm"
)

type Options struct {
	CandidateThreshold  float64
	CandidateLimit      int
	SimilarityThreshold float64
	SimilarityLimit     int

	CardEps        float64
	CardMinSamples int
	MinClusterSize int

	ContextStrategy   string
	ContextEps        float64
	ContextMinSamples int

	Retry       llm.RetryPolicy
	Temperature float32
	// Timeout bounds every single model call. Zero means no deadline.
	Timeout time.Duration
	Prompts Prompts
}

func DefaultOptions() Options {
	return Options{
		CandidateThreshold:  similarity.DefaultThreshold,
		CandidateLimit:      similarity.DefaultLimit,
		SimilarityThreshold: similarity.DefaultThreshold,
		SimilarityLimit:     similarity.DefaultLimit,
		CardEps:             cluster.CardEps,
		CardMinSamples:      cluster.CardMinSamples,
		MinClusterSize:      cluster.CardMinSamples,
		ContextStrategy:     StrategyEmbedding,
		ContextEps:          cluster.ContextEps,
		ContextMinSamples:   cluster.ContextMinSamples,
		Retry:               llm.DefaultRetryPolicy(),
	}
}

// OptionsFromConfig maps the [dedupe], [prompts] and [llm] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Dedupe
	return Options{
		CandidateThreshold:  d.CandidateThreshold,
		CandidateLimit:      d.CandidateLimit,
		SimilarityThreshold: d.SimilarityThreshold,
		SimilarityLimit:     d.SimilarityLimit,
		CardEps:             d.CardEps,
		CardMinSamples:      d.CardMinSamples,
		MinClusterSize:      d.MinClusterSize,
		ContextStrategy:     d.ContextStrategy,
		ContextEps:          d.ContextEps,
		ContextMinSamples:   d.ContextMinSamples,
		Retry: llm.RetryPolicy{
			MaxAttempts:    d.MaxAttempts,
			InitialBackoff: d.RetryBackoff.Duration,
			MaxBackoff:     30 * time.Second,
		},
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout.Duration,
		Prompts: Prompts{
			Dedupe:          cfg.Prompts.Dedupe,
			BestCard:        cfg.Prompts.BestCard,
			ContextSynonyms: cfg.Prompts.ContextSynonyms,
		},
	}
}

type Deduplicator struct {
	LLM        llm.LLMClient
	Embeddings *embedding.Service
	Store      store.Store
	Options    Options

	log   *logger.Logger
	usage *llm.Usage
}

func NewDeduplicator(llmClient llm.LLMClient, embeddings *embedding.Service, st store.Store, opts Options, log *logger.Logger) *Deduplicator {
	opts.Prompts = opts.Prompts.withDefaults()
	return &Deduplicator{
		LLM:        llmClient,
		Embeddings: embeddings,
		Store:      st,
		Options:    opts,
		log:        logger.OrNop(log),
	}
}

// WithUsage returns a copy of d that adds the tokens of every model call,
// retries included, to usage.
func (d *Deduplicator) WithUsage(usage *llm.Usage) *Deduplicator {
	c := *d
	c.usage = usage
	return &c
}

// complete runs one structured call under the retry policy. decode sees
// every response and its error makes the attempt fail. Retries ask the
// model again instead of replaying a cached reply.
func (d *Deduplicator) complete(ctx context.Context, operation string, req llm.Request, decode func(*llm.Response) error) error {
	req.Temperature = d.Options.Temperature
	attempt := 0
	return llm.Retry(ctx, d.Options.Retry, d.log, operation, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := d.withTimeout(ctx)
		defer cancel()
		if attempt > 1 {
			callCtx = llm.WithFreshReply(callCtx)
		}

		resp, err := d.LLM.Complete(callCtx, req)
		if err != nil {
			return err
		}
		if d.usage != nil {
			d.usage.Add(resp.Usage)
		}
		return decode(resp)
	})
}

func (d *Deduplicator) embed(ctx context.Context, operation string, fn func(context.Context) ([]float32, error)) ([]float32, error) {
	var vec []float32
	err := llm.Retry(ctx, d.Options.Retry, d.log, operation, func(ctx context.Context) error {
		callCtx, cancel := d.withTimeout(ctx)
		defer cancel()

		v, err := fn(callCtx)
		if errors.Is(err, embedding.ErrEmptyInput) {
			return llm.Permanent(err)
		}
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}

func (d *Deduplicator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Options.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Options.Timeout)
}
