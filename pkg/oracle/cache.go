package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// Key computes the cache key of §4.4: hash(model, prompt, params).
// Cache writes happen on success only, so a cold key always triggers
// a real provider call.
func Key(model, prompt string, maxTokens int, temperature float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%.4f", model, prompt, maxTokens, temperature)
	return hex.EncodeToString(h.Sum(nil))
}

// SharedStore is the tier-2 cache: a process-external key/value store
// with its own TTL, so restarts and multiple engine processes see a
// consistent view. The production implementation is RedisStore below;
// tests use an in-memory fake.
type SharedStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// Cache implements §4.4's three tiers: an in-process LRU with a short
// TTL (tier 1), an optional shared store with a longer TTL (tier 2),
// and a miss on both falls through to the provider chain (tier none).
type Cache struct {
	local      *expirable.LRU[string, string]
	shared     SharedStore
	sharedTTL  time.Duration
}

// NewCache builds the cache. localSize/localTTL tune tier 1
// (documented default ≈30s); shared may be nil to disable tier 2;
// sharedTTL tunes tier 2 (documented default ≈5min).
func NewCache(localSize int, localTTL time.Duration, shared SharedStore, sharedTTL time.Duration) *Cache {
	return &Cache{
		local:     expirable.NewLRU[string, string](localSize, nil, localTTL),
		shared:    shared,
		sharedTTL: sharedTTL,
	}
}

// Get checks tier 1 then tier 2, promoting a tier-2 hit back into
// tier 1 so the next call avoids the shared round trip.
func (c *Cache) Get(key string) (string, bool) {
	if v, ok := c.local.Get(key); ok {
		return v, true
	}
	if c.shared == nil {
		return "", false
	}
	v, ok := c.shared.Get(context.Background(), key)
	if ok {
		c.local.Add(key, v)
	}
	return v, ok
}

// Set writes both tiers on a successful Analyze call.
func (c *Cache) Set(key, value string) {
	c.local.Add(key, value)
	if c.shared != nil {
		c.shared.Set(context.Background(), key, value, c.sharedTTL)
	}
}

// RedisStore is the production SharedStore, backed by the same
// go-zero redis client the rest of the module uses for row caching.
type RedisStore struct {
	client *redis.Redis
}

// NewRedisStore wraps a go-zero redis client (host, type, pass from
// config) as a SharedStore.
func NewRedisStore(client *redis.Redis) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.GetCtx(ctx, "oracle:"+key)
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	_ = r.client.SetexCtx(ctx, "oracle:"+key, value, int(ttl.Seconds()))
}

// InMemorySharedStore is a SharedStore fake for tests and single-process
// paper runs without Redis available. One instance is shared by every
// engine goroutine the process runs (see ServiceContext), so Get/Set
// must be safe for concurrent use just like RedisStore's real network
// round trip is.
type InMemorySharedStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	value   string
	expires time.Time
}

// NewInMemorySharedStore constructs an empty fake.
func NewInMemorySharedStore() *InMemorySharedStore {
	return &InMemorySharedStore{entries: make(map[string]memEntry)}
}

func (s *InMemorySharedStore) Get(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.value, true
}

func (s *InMemorySharedStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
}
