package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.11, cfg.Dedupe.CardEps)
	assert.Equal(t, 3, cfg.Dedupe.CardMinSamples)
	assert.Equal(t, 0.25, cfg.Dedupe.ContextEps)
	assert.Equal(t, time.Second, cfg.Dedupe.RetryBackoff.Duration)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[llm]
provider = "claude"
timeout = "45s"
embedding_provider = "openai"

[dedupe]
context_strategy = "llm"
max_attempts = 5
retry_backoff = "250ms"

[store]
backend = "sqlite"
dsn = "file:test.db"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "openai", cfg.LLM.EmbeddingProvider)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout.Duration)
	assert.Equal(t, "llm", cfg.Dedupe.ContextStrategy)
	assert.Equal(t, 5, cfg.Dedupe.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Dedupe.RetryBackoff.Duration)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.1, cfg.Dedupe.SimilarityThreshold)
	assert.Equal(t, "bolt://localhost:7687", cfg.Memgraph.URI)
	require.NoError(t, cfg.Validate())
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[llm]\ntimeout = \"soon\"\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("STORE_DSN", "postgres://localhost/moralgraph")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LLM_MODEL", "")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/moralgraph", cfg.Store.DSN)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"threshold":     func(c *Config) { c.Dedupe.SimilarityThreshold = 0 },
		"limit":         func(c *Config) { c.Dedupe.CandidateLimit = 0 },
		"eps":           func(c *Config) { c.Dedupe.CardEps = -1 },
		"min samples":   func(c *Config) { c.Dedupe.ContextMinSamples = 0 },
		"attempts":      func(c *Config) { c.Dedupe.MaxAttempts = 11 },
		"strategy":      func(c *Config) { c.Dedupe.ContextStrategy = "magic" },
		"store backend": func(c *Config) { c.Store.Backend = "mysql" },
		"cache backend": func(c *Config) { c.Cache.Backend = "memcached" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
