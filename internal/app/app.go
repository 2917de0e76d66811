// Package app wires configuration into stores, model clients and the
// pipeline for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/moralgraph/internal/config"
	"github.com/agenthands/moralgraph/internal/core"
	"github.com/agenthands/moralgraph/internal/core/dedupe"
	"github.com/agenthands/moralgraph/internal/driver"
	"github.com/agenthands/moralgraph/internal/llm"
	"github.com/agenthands/moralgraph/internal/logger"
	"github.com/agenthands/moralgraph/internal/store"
	"github.com/agenthands/moralgraph/internal/store/memory"
	sqlstore "github.com/agenthands/moralgraph/internal/store/sql"
)

// LoadConfig reads path (defaults when missing), applies the environment
// and validates the result.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// OpenStore connects the backend named by cfg.Store.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		return memory.New(), nil
	case "postgres", "sqlite":
		return sqlstore.Open(cfg.Store.Backend, cfg.Store.DSN, log)
	case "memgraph":
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to memgraph: %w", err)
		}
		if err := d.BuildIndices(ctx); err != nil {
			_ = d.Close(ctx)
			return nil, err
		}
		return driver.NewGraphStore(d, log), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// Models builds the chat and embedding clients, wrapping the chat client
// in the response cache when one is configured. The returned func closes
// the cache.
func Models(ctx context.Context, cfg *config.Config, log *logger.Logger) (llm.LLMClient, llm.EmbedderClient, func() error, error) {
	log = logger.OrNop(log)
	chat, embedder, err := llm.NewClient(ctx, cfg.LLM, log)
	if err != nil {
		return nil, nil, nil, err
	}

	cache, err := llm.NewCache(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open llm cache: %w", err)
	}
	if cache == nil {
		return chat, embedder, func() error { return nil }, nil
	}
	log.Info("llm response cache enabled", "backend", cfg.Cache.Backend)
	return llm.NewCachedClient(chat, cache, cfg.LLM.Model, log), embedder, cache.Close, nil
}

// NewPipeline builds the deduplication pipeline over st.
func NewPipeline(cfg *config.Config, st store.Store, chat llm.LLMClient, embedder llm.EmbedderClient, log *logger.Logger) *core.Pipeline {
	pricing := llm.Pricing{
		PromptPerMillion:     cfg.Pricing.PromptPerMillion,
		CompletionPerMillion: cfg.Pricing.CompletionPerMillion,
	}
	return core.NewPipeline(st, chat, embedder, dedupe.OptionsFromConfig(cfg), pricing, log)
}
