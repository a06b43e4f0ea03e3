package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache provides caching for LLM responses
type Cache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error
	Stats() CacheStats
}

// CacheStats holds cache statistics
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int64 `json:"size"`
}

// MemoryCache is a bounded in-memory cache. Expired entries are dropped on
// access; the entry closest to expiry is evicted when full.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	stats   CacheStats
	now     func() time.Time
}

type cacheEntry struct {
	response  Response
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Size = int64(len(c.entries))
		return nil, false
	}

	c.stats.Hits++
	resp := entry.response
	return &resp, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		response:  *resp,
		expiresAt: c.now().Add(ttl),
	}
	c.stats.Size = int64(len(c.entries))
	return nil
}

func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// NullCache is a no-op cache
type NullCache struct{}

func (NullCache) Get(ctx context.Context, key string) (*Response, bool) { return nil, false }

func (NullCache) Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	return nil
}

func (NullCache) Stats() CacheStats { return CacheStats{} }

// CreateCache returns the cache selected by config ("memory" or "none")
func CreateCache(cacheType string, maxSize int, ttl time.Duration) Cache {
	switch cacheType {
	case "memory":
		return NewMemoryCache(maxSize, ttl)
	case "none", "":
		return NullCache{}
	default:
		log.Warn().Str("type", cacheType).Msg("unknown cache type, using memory cache")
		return NewMemoryCache(maxSize, ttl)
	}
}

// GenerateCacheKey hashes every field that influences the completion
func GenerateCacheKey(req *Request) string {
	keyData := struct {
		Tier        Tier
		Model       string
		System      string
		Messages    []Message
		Temperature float64
		Format      json.RawMessage
	}{
		Tier:        req.Tier,
		Model:       req.Model,
		System:      req.System,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Format:      req.Format,
	}

	data, _ := json.Marshal(keyData)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// CachedCompleter serves repeated requests from a cache
type CachedCompleter struct {
	next  Completer
	cache Cache
	ttl   time.Duration
}

// NewCachedCompleter wraps next with cache
func NewCachedCompleter(next Completer, cache Cache, ttl time.Duration) *CachedCompleter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedCompleter{next: next, cache: cache, ttl: ttl}
}

func (c *CachedCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	key := GenerateCacheKey(req)

	if cached, ok := c.cache.Get(ctx, key); ok {
		log.Debug().Str("key", key[:16]).Msg("cache hit")
		cached.Cached = true
		return cached, nil
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, resp, c.ttl); err != nil {
		log.Warn().Err(err).Msg("failed to cache response")
	}
	return resp, nil
}

// Stats returns cache statistics
func (c *CachedCompleter) Stats() CacheStats {
	return c.cache.Stats()
}
