package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.MaxSizeBytes = 4096
	return New(zerolog.Nop(), cfg, rdb, nil)
}

// P5 — set then get within TTL returns the value; hit+miss accounting sums to 1.
func TestSetGetWithinTTLHits(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", c.cfg.HotTTL))

	var out string
	found, err := c.Get(ctx, "k1", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", out)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(0), stats.Misses)
}

// P5 — an expired L1 entry is never returned, even before maintenance runs.
func TestExpiredEntryNeverReturned(t *testing.T) {
	c := newTestCache(t)

	c.l1.set("k2", []byte(`"v2"`), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, found := c.l1.get("k2")
	require.False(t, found)
}

// A clean miss (absent from every tier) increments misses and returns false, nil.
func TestMissAcrossTiers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var out string
	found, err := c.Get(ctx, "absent", &out)
	require.NoError(t, err)
	require.False(t, found)

	stats := c.Stats()
	require.Equal(t, int64(0), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.InDelta(t, 0.0, stats.HitRate(), 1e-9)
	require.InDelta(t, 1.0, stats.MissRate(), 1e-9)
}

// A warm-tier write bypasses L1 but is still retrievable through L2 promotion.
func TestWarmTierPromotesToL1OnRead(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "warm-key", 42, c.cfg.WarmTTL))
	_, found := c.l1.get("warm-key")
	require.False(t, found, "warm writes should not populate L1 directly")

	var out int
	found, err := c.Get(ctx, "warm-key", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 42, out)

	_, foundAfter := c.l1.get("warm-key")
	require.True(t, foundAfter, "a warm read should promote into L1")
}

// Invalidate removes a key from every configured tier.
func TestInvalidateRemovesFromAllTiers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "gone", "x", c.cfg.HotTTL))
	require.NoError(t, c.Invalidate(ctx, "gone"))

	var out string
	found, err := c.Get(ctx, "gone", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestL1EvictsLeastRecentlyUsedUnderByteBudget(t *testing.T) {
	s := newL1Store(10)
	s.set("a", []byte("12345"), time.Minute)
	s.set("b", []byte("12345"), time.Minute)
	// a and b fill the 10-byte budget exactly; touch a so b is the LRU victim.
	_, _ = s.get("a")
	s.set("c", []byte("12345"), time.Minute)

	_, okA := s.get("a")
	_, okB := s.get("b")
	_, okC := s.get("c")
	require.True(t, okA)
	require.False(t, okB)
	require.True(t, okC)
	require.Equal(t, int64(1), s.evictionCount())
}

func TestGet2GenericWrapper(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "typed", 7, c.cfg.HotTTL))

	out, found, err := Get2[int](ctx, c, "typed")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 7, out)
}
