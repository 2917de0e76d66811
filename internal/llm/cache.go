package llm

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agenthands/moralgraph/internal/logger"
)

// Cache stores serialized responses by request key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// CachedClient replays responses for identical requests. Cached responses
// report zero usage so cost accounting only counts real calls. Replies to
// a function call are only stored once their arguments decode.
type CachedClient struct {
	inner LLMClient
	cache Cache
	model string
	log   *logger.Logger
}

func NewCachedClient(inner LLMClient, cache Cache, model string, log *logger.Logger) *CachedClient {
	return &CachedClient{
		inner: inner,
		cache: cache,
		model: model,
		log:   logger.OrNop(log).With("service", "LLMCache"),
	}
}

type freshReplyKey struct{}

// WithFreshReply makes a CachedClient ask the model even when it holds a
// reply for the request, and replace the stored reply with the new one.
func WithFreshReply(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReplyKey{}, true)
}

func wantsFreshReply(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReplyKey{}).(bool)
	return fresh
}

func (c *CachedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	key, err := CacheKey(c.model, req)
	if err != nil {
		return nil, err
	}

	if !wantsFreshReply(ctx) {
		if resp, ok := c.cached(ctx, key, req); ok {
			return resp, nil
		}
	}

	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := cacheable(req, resp); err != nil {
		c.log.Debug("not caching reply", "key", key, "error", err)
		return resp, nil
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response for cache: %w", err)
	}
	if err := c.cache.Set(ctx, key, raw); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
	return resp, nil
}

func (c *CachedClient) cached(ctx context.Context, key string, req Request) (*Response, bool) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Warn("discarding corrupt cache entry", "key", key)
		return nil, false
	}
	if err := cacheable(req, &resp); err != nil {
		c.log.Warn("discarding invalid cache entry", "key", key, "error", err)
		return nil, false
	}
	resp.Usage = Usage{}
	return &resp, true
}

// cacheable rejects replies that do not carry the arguments req asked for.
func cacheable(req Request, resp *Response) error {
	if req.Function == nil {
		return nil
	}
	_, err := Decode[map[string]json.RawMessage](resp, req.Function)
	return err
}

// CacheKey hashes the model together with everything that shapes a reply.
func CacheKey(model string, req Request) (string, error) {
	payload := struct {
		Model    string  `json:"model"`
		Request  Request `json:"request"`
		Function any     `json:"function_parameters,omitempty"`
	}{Model: model, Request: req}
	if req.Function != nil {
		payload.Function = req.Function.Parameters()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

type fileEntry struct {
	Key      string          `json:"key"`
	Response json.RawMessage `json:"response"`
}

// FileCache is an append-only JSONL file loaded into memory on open.
type FileCache struct {
	mu      sync.Mutex
	path    string
	entries map[string][]byte
	f       *os.File
}

func OpenFileCache(path string) (*FileCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	fc := &FileCache{path: path, entries: make(map[string][]byte)}

	if existing, err := os.Open(path); err == nil {
		sc := bufio.NewScanner(existing)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			var e fileEntry
			if json.Unmarshal(sc.Bytes(), &e) != nil || e.Key == "" {
				continue
			}
			fc.entries[e.Key] = []byte(e.Response)
		}
		scanErr := sc.Err()
		existing.Close()
		if scanErr != nil {
			return nil, fmt.Errorf("failed to read cache file '%s': %w", path, scanErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to open cache file '%s': %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file '%s': %w", path, err)
	}
	fc.f = f
	return fc, nil
}

func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *FileCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := json.Marshal(fileEntry{Key: key, Response: value})
	if err != nil {
		return err
	}
	if _, err := c.f.Write(append(line, '\n')); err != nil {
		return err
	}
	c.entries[key] = value
	return nil
}

func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *FileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

const redisKeyPrefix = "moralgraph:llm:"

type RedisCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisCache connects and pings before returning. A zero ttl keeps
// entries forever.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, redisKeyPrefix+key, value, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
