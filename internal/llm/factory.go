package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/moralgraph/internal/config"
	"github.com/agenthands/moralgraph/internal/logger"
)

// NewClient builds the chat client and embedder named by cfg. The embedder
// comes from cfg.EmbeddingProvider when set, so claude can be paired with
// an openai or gemini embedder.
func NewClient(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (LLMClient, EmbedderClient, error) {
	log = logger.OrNop(log)

	chat, embedder, err := newProvider(ctx, cfg.Provider, cfg, cfg.APIKey, cfg.BaseURL, log)
	if err != nil {
		return nil, nil, err
	}

	ep := strings.ToLower(cfg.EmbeddingProvider)
	if ep != "" && ep != strings.ToLower(cfg.Provider) {
		key := cfg.EmbeddingAPIKey
		if key == "" {
			key = cfg.APIKey
		}
		_, embedder, err = newProvider(ctx, ep, cfg, key, cfg.EmbeddingBaseURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("embedding provider: %w", err)
		}
	}
	if embedder == nil {
		return nil, nil, fmt.Errorf("llm provider %s has no embeddings; set llm.embedding_provider", cfg.Provider)
	}
	return chat, embedder, nil
}

func newProvider(ctx context.Context, name string, cfg config.LLMConfig, apiKey, baseURL string, log *logger.Logger) (LLMClient, EmbedderClient, error) {
	provider := strings.ToLower(name)

	switch provider {
	case "openai":
		c := NewOpenAIClient(apiKey, cfg.Model, cfg.EmbeddingModel, baseURL).
			WithDimensions(cfg.EmbeddingDimensions).
			WithMaxTokens(cfg.MaxTokens)
		return c, c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, apiKey, cfg.Model, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil

	case "claude":
		c := NewClaudeClient(apiKey, cfg.Model, baseURL, cfg.MaxTokens)
		return c, nil, nil

	case "ollama":
		// Ollama speaks the OpenAI API under /v1 and ignores the key.
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		log.Info("initializing ollama via openai-compatible api", "base_url", baseURL)

		if apiKey == "" {
			apiKey = "ollama"
		}
		c := NewOpenAIClient(apiKey, cfg.Model, cfg.EmbeddingModel, baseURL).WithMaxTokens(cfg.MaxTokens)
		return c, c, nil

	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

// NewCache opens the response cache named by cfg. It returns nil for "none".
func NewCache(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "file":
		return OpenFileCache(cfg.Path)
	case "redis":
		return NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL.Duration)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
