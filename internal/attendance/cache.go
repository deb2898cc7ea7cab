package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attendance_cache_lookups_total",
	Help: "Snapshot cache lookups by cache name and outcome.",
}, []string{"cache", "outcome"})

// Cache stores snapshots keyed by spreadsheet ID. Entries live until they are
// invalidated; there is no TTL and no size bound.
type Cache interface {
	Get(ctx context.Context, id string) (Snapshot, bool, error)
	Set(ctx context.Context, id string, snap Snapshot) error
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// MemoryCache is the in-process map cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]Snapshot
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]Snapshot)}
}

func (c *MemoryCache) Get(_ context.Context, id string) (Snapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.items[id]
	return snap, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, id string, snap Snapshot) error {
	c.mu.Lock()
	c.items[id] = snap
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[id]
	delete(c.items, id)
	return ok, nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]Snapshot)
	c.mu.Unlock()
	return nil
}

// RedisCache keeps JSON snapshots under prefix+id so several API replicas
// share one cache.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a cache using keys that start with prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, id string) (Snapshot, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, id string, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+id, b, 0).Err()
}

func (c *RedisCache) Delete(ctx context.Context, id string) (bool, error) {
	n, err := c.client.Del(ctx, c.prefix+id).Result()
	return n > 0, err
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
