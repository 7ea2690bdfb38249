package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dialtel/crm-backend/internal/dates"
	"github.com/dialtel/crm-backend/internal/metrics"
	"github.com/dialtel/crm-backend/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// RankingCache memoizes aggregation results per (date range, scope,
// identity). An all-scope aggregation touches every partition in the
// store and the dashboard requests it on every page view, so results are
// kept for a short TTL; staleness is bounded and callers that need
// guaranteed freshness pass bypass instead of waiting for expiry.
//
// Concurrent misses for the same key are collapsed through singleflight:
// N simultaneous cold requests trigger exactly one scan.
type RankingCache struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl        time.Duration
	partialTTL time.Duration // shorter, so skipped partitions get retried sooner

	group  singleflight.Group
	logger zerolog.Logger
}

type entry struct {
	result   *types.RankingResult
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expired() bool {
	return time.Since(e.storedAt) >= e.ttl
}

// NewRankingCache creates a cache with the given TTL. Partial results are
// kept for a third of the TTL (at least 30 seconds).
func NewRankingCache(ttl time.Duration, logger zerolog.Logger) *RankingCache {
	partialTTL := ttl / 3
	if partialTTL < 30*time.Second {
		partialTTL = 30 * time.Second
	}
	return &RankingCache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		partialTTL: partialTTL,
		logger:     logger.With().Str("component", "ranking_cache").Logger(),
	}
}

// Key builds the cache key for a normalized query.
func Key(r dates.Range, scope types.Scope, identityKey string) string {
	return r.String() + "|" + string(scope) + "|" + identityKey
}

// GetOrCompute returns the cached result for key, or computes it. The
// second return reports whether the result came from the cache. When
// bypass is set the lookup is skipped but the fresh result still
// replaces the cached entry.
func (c *RankingCache) GetOrCompute(ctx context.Context, key string, bypass bool, compute func(context.Context) (*types.RankingResult, error)) (*types.RankingResult, bool, error) {
	m := metrics.Get()

	if !bypass {
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !e.expired() {
			m.RecordCacheHit()
			return e.result, true, nil
		}
	}
	m.RecordCacheMiss()

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}

	if shared {
		c.logger.Debug().Str("key", key).Msg("joined in-flight aggregation")
	}
	return v.(*types.RankingResult), false, nil
}

func (c *RankingCache) store(key string, result *types.RankingResult) {
	ttl := c.ttl
	if result.Partial {
		ttl = c.partialTTL
	}

	c.mu.Lock()
	c.entries[key] = entry{result: result, storedAt: time.Now(), ttl: ttl}
	c.mu.Unlock()
}

// Len returns the number of cached entries, expired ones included.
func (c *RankingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// prune drops expired entries.
func (c *RankingCache) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.expired() {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run prunes expired entries periodically until ctx is cancelled.
func (c *RankingCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	c.logger.Info().Dur("ttl", c.ttl).Msg("ranking cache started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("ranking cache stopped")
			return
		case <-ticker.C:
			if removed := c.prune(); removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("pruned expired ranking entries")
			}
		}
	}
}
