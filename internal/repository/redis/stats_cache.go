package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheHatt/revboard/internal/domain"
)

const (
	keyPrefix        = "revboard:stats:"
	generationPrefix = "revboard:stats-gen:"
)

// StatsCache implements repository.StatsCache using Redis. Every tenant has
// a generation counter that is part of each entry key; Invalidate bumps it
// so older entries are never read again and expire on their TTL.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a new Redis-backed statistics cache. A zero ttl
// disables caching.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached statistics for key in the tenant's current generation.
func (c *StatsCache) Get(ctx context.Context, tenantID, key string) (*domain.Stats, bool, error) {
	if c.ttl <= 0 {
		return nil, false, nil
	}

	entryKey, err := c.entryKey(ctx, tenantID, key)
	if err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, entryKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get stats: %w", err)
	}

	var stats domain.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false, fmt.Errorf("unmarshal stats: %w", err)
	}

	return &stats, true, nil
}

// Set stores stats under key in the tenant's current generation.
func (c *StatsCache) Set(ctx context.Context, tenantID, key string, stats *domain.Stats) error {
	if c.ttl <= 0 {
		return nil
	}

	entryKey, err := c.entryKey(ctx, tenantID, key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, entryKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set stats: %w", err)
	}

	return nil
}

// Invalidate moves the tenant to a new generation.
func (c *StatsCache) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.client.Incr(ctx, generationPrefix+tenantID).Err(); err != nil {
		return fmt.Errorf("redis incr stats generation: %w", err)
	}
	return nil
}

func (c *StatsCache) entryKey(ctx context.Context, tenantID, key string) (string, error) {
	gen, err := c.client.Get(ctx, generationPrefix+tenantID).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis get stats generation: %w", err)
	}
	return fmt.Sprintf("%s%s:%d:%s", keyPrefix, tenantID, gen, key), nil
}
