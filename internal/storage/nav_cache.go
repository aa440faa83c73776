package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fund-ledger/internal/models"
)

// NavCache keeps each fund's latest NAV mark in Redis. The read API serves
// NAV quotes from here; a miss falls through to the Postgres projection.
type NavCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewNavCache creates a NAV cache with the given entry TTL
func NewNavCache(cache *RedisCache, ttl time.Duration) *NavCache {
	return &NavCache{cache: cache, ttl: ttl}
}

func navKey(fundID string) string {
	return fmt.Sprintf("nav:latest:%s", fundID)
}

// Put stores a fund's latest NAV mark
func (c *NavCache) Put(ctx context.Context, mark *models.NavMark) error {
	data, err := json.Marshal(mark)
	if err != nil {
		return fmt.Errorf("failed to marshal nav mark: %w", err)
	}
	return c.cache.Set(ctx, navKey(mark.FundID), data, c.ttl)
}

// Get retrieves a fund's latest NAV mark. A cache miss returns (nil, nil).
func (c *NavCache) Get(ctx context.Context, fundID string) (*models.NavMark, error) {
	data, err := c.cache.Get(ctx, navKey(fundID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get nav mark: %w", err)
	}

	var mark models.NavMark
	if err := json.Unmarshal([]byte(data), &mark); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nav mark: %w", err)
	}
	return &mark, nil
}

// Invalidate drops a fund's cached NAV mark
func (c *NavCache) Invalidate(ctx context.Context, fundID string) error {
	return c.cache.Del(ctx, navKey(fundID))
}
