// Package cache implements the three-tier cache layer described in §4.2: an
// in-process LRU (L1), a shared Redis store (L2), and an optional persistent
// Postgres store (L3), selected by TTL class.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// Config controls TTL-class boundaries and the L1 byte budget (§6.4).
type Config struct {
	HotTTL       time.Duration
	WarmTTL      time.Duration
	ColdTTL      time.Duration
	MaxSizeBytes int64
	L1Fraction   float64 // fraction of MaxSizeBytes reserved for L1
}

// DefaultConfig mirrors the teacher's habit of providing usable zero-config defaults.
func DefaultConfig() Config {
	return Config{
		HotTTL:       30 * time.Second,
		WarmTTL:      5 * time.Minute,
		ColdTTL:      24 * time.Hour,
		MaxSizeBytes: 64 * 1024 * 1024,
		L1Fraction:   0.25,
	}
}

// Stats is a point-in-time snapshot of cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	L1Bytes   int64
}

// HitRate returns hits/(hits+misses), or 0 when no requests have been made.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MissRate returns misses/(hits+misses); HitRate()+MissRate() == 1 whenever
// total > 0 (§4.2 invariant).
func (s Stats) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total)
}

// Cache is the three-tier cache facade. L2 and L3 are optional: a nil redis
// client or pgx pool simply disables that tier.
type Cache struct {
	log zerolog.Logger
	cfg Config

	l1 *l1Store
	l2 *redis.Client
	l3 *pgxpool.Pool

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New builds a Cache. l2 and l3 may be nil to disable that tier.
func New(log zerolog.Logger, cfg Config, l2 *redis.Client, l3 *pgxpool.Pool) *Cache {
	return &Cache{
		log: log.With().Str("component", "cache").Logger(),
		cfg: cfg,
		l1:  newL1Store(int64(float64(cfg.MaxSizeBytes) * cfg.L1Fraction)),
		l2:  l2,
		l3:  l3,
	}
}

func (c *Cache) tierFor(ttl time.Duration) string {
	switch {
	case ttl <= c.cfg.HotTTL:
		return "hot"
	case ttl <= c.cfg.WarmTTL:
		return "warm"
	default:
		return "cold"
	}
}

// Set stores value under key with the given ttl, writing to the tier(s) the
// TTL class dictates: hot -> L1+L2, warm -> L2 only, cold -> L3.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(errs.KindInput, "cache", "marshal value", err)
	}

	switch c.tierFor(ttl) {
	case "hot":
		c.l1.set(key, raw, ttl)
		if c.l2 != nil {
			if err := c.l2.Set(ctx, key, raw, ttl).Err(); err != nil {
				return errs.Wrap(errs.KindExternal, "cache", "l2 set", err)
			}
		}
	case "warm":
		if c.l2 != nil {
			if err := c.l2.Set(ctx, key, raw, ttl).Err(); err != nil {
				return errs.Wrap(errs.KindExternal, "cache", "l2 set", err)
			}
		}
	default: // cold
		if c.l3 != nil {
			if err := c.l3SetRaw(ctx, key, raw, ttl); err != nil {
				return errs.Wrap(errs.KindExternal, "cache", "l3 set", err)
			}
		}
	}
	return nil
}

// Get looks up key across tiers (L1, then L2 with promotion, then L3) and
// unmarshals into dest on a hit. Returns (true, nil) on hit, (false, nil) on
// a clean miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if raw, ok := c.l1.get(key); ok {
		c.hits.Add(1)
		return true, json.Unmarshal(raw, dest)
	}

	if c.l2 != nil {
		raw, err := c.l2.Get(ctx, key).Bytes()
		if err == nil {
			c.hits.Add(1)
			c.l1.set(key, raw, c.cfg.HotTTL) // promote
			return true, json.Unmarshal(raw, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return false, errs.Wrap(errs.KindExternal, "cache", "l2 get", err)
		}
	}

	if c.l3 != nil {
		raw, ok, err := c.l3GetRaw(ctx, key)
		if err != nil {
			return false, errs.Wrap(errs.KindExternal, "cache", "l3 get", err)
		}
		if ok {
			c.hits.Add(1)
			return true, json.Unmarshal(raw, dest)
		}
	}

	c.misses.Add(1)
	return false, nil
}

// Invalidate removes key from every tier.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.l1.delete(key)
	if c.l2 != nil {
		if err := c.l2.Del(ctx, key).Err(); err != nil {
			return errs.Wrap(errs.KindExternal, "cache", "l2 del", err)
		}
	}
	if c.l3 != nil {
		if err := c.l3DeleteRaw(ctx, key); err != nil {
			return errs.Wrap(errs.KindExternal, "cache", "l3 del", err)
		}
	}
	return nil
}

// Stats returns a snapshot of rolling cache performance counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load() + c.l1.evictionCount(),
		L1Bytes:   c.l1.bytesUsed(),
	}
}

// RunMaintenance purges expired L1 entries; call on a ticker (§4.2: "every minute").
func (c *Cache) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.l1.purgeExpired()
		}
	}
}

// Get2 is a generic convenience wrapper returning a typed value and an
// Option-style boolean, matching the §4.2 `get<T>(key) -> Option<T>` contract.
func Get2[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var out T
	found, err := c.Get(ctx, key, &out)
	return out, found, err
}
