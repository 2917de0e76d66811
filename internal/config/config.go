package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Prompts override the built-in system prompts when non-empty.
type Prompts struct {
	Dedupe          string `toml:"dedupe"`
	BestCard        string `toml:"best_card"`
	ContextSynonyms string `toml:"context_synonyms"`
}

type LLMConfig struct {
	Provider       string   `toml:"provider"`
	Model          string   `toml:"model"`
	EmbeddingModel string   `toml:"embedding_model"`
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	Temperature    float32  `toml:"temperature"`
	MaxTokens      int      `toml:"max_tokens"`
	Timeout        Duration `toml:"timeout"`

	// EmbeddingProvider lets a provider without embeddings (claude) borrow
	// another one. Empty means the chat provider.
	EmbeddingProvider   string `toml:"embedding_provider"`
	EmbeddingAPIKey     string `toml:"embedding_api_key"`
	EmbeddingBaseURL    string `toml:"embedding_base_url"`
	EmbeddingDimensions int    `toml:"embedding_dimensions"`
}

type StoreConfig struct {
	// Backend is one of memgraph, postgres, sqlite, memory.
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type CacheConfig struct {
	// Backend is one of none, file, redis.
	Backend       string   `toml:"backend"`
	Path          string   `toml:"path"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	TTL           Duration `toml:"ttl"`
}

type DedupeConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	SimilarityLimit     int     `toml:"similarity_limit"`
	CandidateThreshold  float64 `toml:"candidate_threshold"`
	CandidateLimit      int     `toml:"candidate_limit"`

	CardEps        float64 `toml:"card_eps"`
	CardMinSamples int     `toml:"card_min_samples"`
	MinClusterSize int     `toml:"min_cluster_size"`

	// ContextStrategy is "embedding" or "llm".
	ContextStrategy   string  `toml:"context_strategy"`
	ContextEps        float64 `toml:"context_eps"`
	ContextMinSamples int     `toml:"context_min_samples"`

	MaxAttempts  int      `toml:"max_attempts"`
	RetryBackoff Duration `toml:"retry_backoff"`
}

// PricingConfig is in USD per million tokens.
type PricingConfig struct {
	PromptPerMillion     float64 `toml:"prompt_per_million"`
	CompletionPerMillion float64 `toml:"completion_per_million"`
}

type LogConfig struct {
	Mode  string `toml:"mode"`
	Level string `toml:"level"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Store    StoreConfig    `toml:"store"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	Cache    CacheConfig    `toml:"cache"`
	Dedupe   DedupeConfig   `toml:"dedupe"`
	Prompts  Prompts        `toml:"prompts"`
	Pricing  PricingConfig  `toml:"pricing"`
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the tuning used by the original pipeline.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o",
			EmbeddingModel: "text-embedding-3-small",
			MaxTokens:      1024,
			Timeout:        Duration{2 * time.Minute},
		},
		Store:    StoreConfig{Backend: "memgraph"},
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687"},
		Cache: CacheConfig{
			Backend: "file",
			Path:    "./data/llm_cache.jsonl",
		},
		Dedupe: DedupeConfig{
			SimilarityThreshold: 0.1,
			SimilarityLimit:     5,
			CandidateThreshold:  0.1,
			CandidateLimit:      5,
			CardEps:             0.11,
			CardMinSamples:      3,
			MinClusterSize:      3,
			ContextStrategy:     "embedding",
			ContextEps:          0.25,
			ContextMinSamples:   1,
			MaxAttempts:         3,
			RetryBackoff:        Duration{time.Second},
		},
		Pricing: PricingConfig{
			PromptPerMillion:     10,
			CompletionPerMillion: 30,
		},
		Log:    LogConfig{Mode: "development", Level: "info"},
		Server: ServerConfig{Port: "8080"},
	}
}

// Load reads a TOML file on top of Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	override := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override("LLM_PROVIDER", &c.LLM.Provider)
	override("LLM_MODEL", &c.LLM.Model)
	override("LLM_EMBEDDING_MODEL", &c.LLM.EmbeddingModel)
	override("LLM_API_KEY", &c.LLM.APIKey)
	override("LLM_BASE_URL", &c.LLM.BaseURL)
	override("LLM_EMBEDDING_PROVIDER", &c.LLM.EmbeddingProvider)
	override("LLM_EMBEDDING_API_KEY", &c.LLM.EmbeddingAPIKey)
	override("STORE_BACKEND", &c.Store.Backend)
	override("STORE_DSN", &c.Store.DSN)
	override("MEMGRAPH_URI", &c.Memgraph.URI)
	override("MEMGRAPH_USER", &c.Memgraph.User)
	override("MEMGRAPH_PASSWORD", &c.Memgraph.Password)
	override("CACHE_BACKEND", &c.Cache.Backend)
	override("CACHE_PATH", &c.Cache.Path)
	override("REDIS_ADDR", &c.Cache.RedisAddr)
	override("REDIS_PASSWORD", &c.Cache.RedisPassword)
	override("LOG_MODE", &c.Log.Mode)
	override("LOG_LEVEL", &c.Log.Level)
	override("PORT", &c.Server.Port)
}

func (c *Config) Validate() error {
	d := c.Dedupe
	if d.SimilarityThreshold <= 0 || d.SimilarityThreshold > 2 {
		return fmt.Errorf("dedupe.similarity_threshold must be in (0, 2] (got %.3f)", d.SimilarityThreshold)
	}
	if d.CandidateThreshold <= 0 || d.CandidateThreshold > 2 {
		return fmt.Errorf("dedupe.candidate_threshold must be in (0, 2] (got %.3f)", d.CandidateThreshold)
	}
	if d.SimilarityLimit <= 0 || d.CandidateLimit <= 0 {
		return fmt.Errorf("dedupe similarity/candidate limits must be positive")
	}
	if d.CardEps <= 0 || d.ContextEps <= 0 {
		return fmt.Errorf("dedupe eps values must be positive")
	}
	if d.CardMinSamples < 1 || d.ContextMinSamples < 1 {
		return fmt.Errorf("dedupe min_samples values must be at least 1")
	}
	if d.MaxAttempts < 1 || d.MaxAttempts > 10 {
		return fmt.Errorf("dedupe.max_attempts must be between 1 and 10 (got %d)", d.MaxAttempts)
	}
	switch d.ContextStrategy {
	case "embedding", "llm":
	default:
		return fmt.Errorf("unsupported dedupe.context_strategy: %s", d.ContextStrategy)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "memgraph", "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "", "none", "file", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	return nil
}
