// Package cache provides the in-memory TTL cache for surge multipliers.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tripflow/internal/domain"
	"tripflow/internal/repository"
)

// Multiplier is the cached surge value for a (zone, product) key.
// Active is false when no window covers the lookup instant; the multiplier is
// then the no-surge default 1.0.
type Multiplier struct {
	Value  float64
	Active bool
}

// noSurge is cached on lookups that find no covering window, so repeated
// misses for quiet zones do not hammer the store.
var noSurge = Multiplier{Value: 1.0, Active: false}

type entry struct {
	value     Multiplier
	expiresAt time.Time
	storedAt  time.Time
}

// SurgeCache is a TTL read-through cache of price multipliers keyed by
// (zone, product). It is internally synchronized; readers and the refresh
// job need no external locking.
type SurgeCache struct {
	windows  repository.SurgeWindowRepository
	ttl      time.Duration
	capacity int
	logger   *slog.Logger

	now func() time.Time // overridable in tests

	mu      sync.Mutex
	entries map[repository.SurgeKey]entry
}

// NewSurgeCache creates a SurgeCache over the given window repository.
func NewSurgeCache(windows repository.SurgeWindowRepository, ttl time.Duration, capacity int, logger *slog.Logger) *SurgeCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurgeCache{
		windows:  windows,
		ttl:      ttl,
		capacity: capacity,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[repository.SurgeKey]entry),
	}
}

// Multiplier returns the current surge multiplier for the key. On a miss or
// an expired entry it queries the window store for a window covering now;
// absence of a window is cached the same as presence, bounded by the TTL.
func (c *SurgeCache) Multiplier(ctx context.Context, zone string, product domain.ProductCategory) (Multiplier, error) {
	key := repository.SurgeKey{Zone: zone, Product: product}
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	value, err := c.lookup(ctx, key, now)
	if err != nil {
		return noSurge, err
	}

	c.put(key, value, now)
	return value, nil
}

// Refresh re-populates the entry for a single key from the store.
func (c *SurgeCache) Refresh(ctx context.Context, key repository.SurgeKey) error {
	now := c.now()
	value, err := c.lookup(ctx, key, now)
	if err != nil {
		return err
	}
	c.put(key, value, now)
	return nil
}

// RunRefresh proactively re-populates the cache for every historically
// observed key at the given interval, so steady-state reads rarely hit a cold
// miss. Blocks until ctx is cancelled. Per-key failures are logged and do not
// abort the batch.
func (c *SurgeCache) RunRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshAll(ctx)
		}
	}
}

func (c *SurgeCache) refreshAll(ctx context.Context) {
	keys, err := c.windows.ListKnownKeys(ctx)
	if err != nil {
		c.logger.Warn("surge refresh: listing keys failed", "error", err)
		return
	}

	for _, key := range keys {
		if err := c.Refresh(ctx, key); err != nil {
			c.logger.Warn("surge refresh: key failed",
				"zone", key.Zone, "product", key.Product, "error", err)
		}
	}
}

func (c *SurgeCache) lookup(ctx context.Context, key repository.SurgeKey, now time.Time) (Multiplier, error) {
	window, err := c.windows.FindActive(ctx, key.Zone, key.Product, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return noSurge, nil
		}
		return noSurge, err
	}

	value := window.Multiplier
	if value < 1.0 {
		value = 1.0
	}
	return Multiplier{Value: value, Active: true}, nil
}

func (c *SurgeCache) put(key repository.SurgeKey, value Multiplier, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.capacity {
		c.evict(now)
	}

	c.entries[key] = entry{
		value:     value,
		expiresAt: now.Add(c.ttl),
		storedAt:  now,
	}
}

// evict drops expired entries, falling back to the oldest entry when nothing
// has expired yet. Caller holds the lock.
func (c *SurgeCache) evict(now time.Time) {
	var oldestKey repository.SurgeKey
	var oldestAt time.Time
	dropped := false

	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			dropped = true
			continue
		}
		if oldestAt.IsZero() || e.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.storedAt
		}
	}

	if !dropped && !oldestAt.IsZero() {
		delete(c.entries, oldestKey)
	}
}

// Len reports the number of live entries.
func (c *SurgeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
