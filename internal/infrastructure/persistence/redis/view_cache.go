package redis

import (
	"context"
	"errors"
	"time"

	"github.com/readstack-hub/progression-engine/internal/application/query"
	"github.com/readstack-hub/progression-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIEW CACHE
// Redis-backed snapshot cache for the query side. Also serves the event
// handlers as their snapshot invalidator.
//
// All calls go through a circuit breaker: when Redis is down, every read
// would otherwise pay the dial timeout before falling back to Postgres.
// An open circuit turns cache reads into instant misses. Skipped
// invalidations are bounded by the snapshot TTL.
// ══════════════════════════════════════════════════════════════════════════════

// ViewCache adapts Cache to the query-side cache contract.
type ViewCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewViewCache creates a ViewCache over an established Redis connection.
func NewViewCache(cache *Cache) *ViewCache {
	return &ViewCache{
		cache: cache,
		breaker: circuitbreaker.New("view_cache",
			circuitbreaker.WithTimeout(15*time.Second),
			// A miss is a normal outcome, not a Redis failure.
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !errors.Is(err, ErrCacheMiss)
			}),
		),
	}
}

// Get loads a cached view into dest. A miss is not an error, and neither
// is an open circuit.
func (v *ViewCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	err := v.breaker.Execute(ctx, func(ctx context.Context) error {
		return v.cache.Get(ctx, key, dest)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) ||
			errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
			errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Set stores a view under key with the given TTL.
func (v *ViewCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return v.breaker.Execute(ctx, func(ctx context.Context) error {
		return v.cache.Set(ctx, key, value, ttl)
	})
}

// Delete removes cached views.
func (v *ViewCache) Delete(ctx context.Context, keys ...string) error {
	return v.breaker.Execute(ctx, func(ctx context.Context) error {
		return v.cache.Delete(ctx, keys...)
	})
}

// InvalidateProgress drops a user's progress snapshot.
func (v *ViewCache) InvalidateProgress(ctx context.Context, userID string) error {
	return v.Delete(ctx, query.ProgressSnapshotKey(userID))
}
