// Package talkflow is the read side consumed by the conversation runner: it
// serves the materialized snapshot and execution template of a flow, with a
// cache invalidated by materialization events.
package talkflow

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// ArtifactCache stores encoded artifacts keyed by flow ID and artifact kind.
type ArtifactCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Remove(ctx context.Context, key string)
}

// lruCache is the in-process default.
type lruCache struct {
	inner *lru.Cache[string, []byte]
}

// NewLRUCache creates an in-process artifact cache holding up to size
// entries.
func NewLRUCache(size int) (ArtifactCache, error) {
	inner, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}

	return &lruCache{inner: inner}, nil
}

func (c *lruCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.inner.Get(key)
}

func (c *lruCache) Set(_ context.Context, key string, value []byte) {
	c.inner.Add(key, value)
}

func (c *lruCache) Remove(_ context.Context, key string) {
	c.inner.Remove(key)
}

// redisCache shares artifacts between runner instances. Entries expire on
// their own as a safety net; materialization events remove them eagerly.
type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a redis-backed artifact cache.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) ArtifactCache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, "talkflow:"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, false
		}

		return nil, false
	}

	return value, true
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte) {
	c.client.Set(ctx, "talkflow:"+key, value, c.ttl)
}

func (c *redisCache) Remove(ctx context.Context, key string) {
	c.client.Del(ctx, "talkflow:"+key)
}
