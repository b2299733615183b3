package rpcrouter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// fakeCaller routes by URL and lets tests script per-URL failures.
type fakeCaller struct {
	mu      sync.Mutex
	failFor map[string]int // remaining forced failures, by URL
	calls   map[string]int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{failFor: make(map[string]int), calls: make(map[string]int)}
}

func (f *fakeCaller) Call(ctx context.Context, url, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if n, ok := f.failFor[url]; ok && n > 0 {
		f.failFor[url]--
		return nil, errors.New("simulated rpc failure")
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func urlsFor(base string) map[Network]string {
	return map[Network]string{NetworkMainnetBeta: base, NetworkDevnet: base}
}

// S3 — Router failover on quota.
func TestSelectProviderSkipsExhaustedQuota(t *testing.T) {
	caller := newFakeCaller()
	r := New(zerolog.Nop(), StrategyCostOptimized, NetworkMainnetBeta, caller)
	r.AddProvider(ProviderConfig{ID: "A", URLs: urlsFor("http://a"), MonthlyQuota: 100, CostPerRequest: 0.001, Priority: 10})
	r.AddProvider(ProviderConfig{ID: "B", URLs: urlsFor("http://b"), MonthlyQuota: 1000, CostPerRequest: 0.002, Priority: 8})

	pA := r.providers["A"]
	pA.mu.Lock()
	pA.stats.RequestsMonth = 100
	pA.mu.Unlock()

	for i := 0; i < 1; i++ {
		_, err := r.Call(context.Background(), "getBalance", nil, 0)
		require.NoError(t, err)
	}

	statsA, _ := r.ProviderStats("A")
	statsB, _ := r.ProviderStats("B")
	require.Equal(t, uint64(100), statsA.RequestsMonth, "A must not be selected once exhausted")
	require.Equal(t, uint64(1), statsB.RequestsMonth)
}

// P4 — quota counter strictly increases by 1 per request; exhausted provider never selected.
func TestQuotaCounterMonotonic(t *testing.T) {
	caller := newFakeCaller()
	r := New(zerolog.Nop(), StrategyCostOptimized, NetworkMainnetBeta, caller)
	r.AddProvider(ProviderConfig{ID: "only", URLs: urlsFor("http://only"), MonthlyQuota: 3, CostPerRequest: 0.001, Priority: 5})

	for i := 0; i < 3; i++ {
		before, _ := r.ProviderStats("only")
		_, err := r.Call(context.Background(), "m", nil, 0)
		require.NoError(t, err)
		after, _ := r.ProviderStats("only")
		require.Equal(t, before.RequestsMonth+1, after.RequestsMonth)
	}

	_, err := r.SelectProvider(time.Now(), 0)
	require.ErrorIs(t, err, errs.ErrNoProvider)
}

// P8 — exactly one transient failure from the initial provider still
// succeeds overall when a distinct eligible provider exists.
func TestCallFailsOverOnce(t *testing.T) {
	caller := newFakeCaller()
	caller.failFor["http://a"] = 1 // first call to A fails, then would succeed

	r := New(zerolog.Nop(), StrategyCostOptimized, NetworkMainnetBeta, caller)
	r.AddProvider(ProviderConfig{ID: "A", URLs: urlsFor("http://a"), MonthlyQuota: 1000, CostPerRequest: 0.001, Priority: 10})
	r.AddProvider(ProviderConfig{ID: "B", URLs: urlsFor("http://b"), MonthlyQuota: 1000, CostPerRequest: 0.002, Priority: 8})

	result, err := r.Call(context.Background(), "m", nil, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))

	statsB, _ := r.ProviderStats("B")
	require.Equal(t, uint64(1), statsB.RequestsMonth, "failover must land on B")
}

func TestSelectProviderNoneEligibleReturnsErrNoProvider(t *testing.T) {
	r := New(zerolog.Nop(), StrategyCostOptimized, NetworkMainnetBeta, newFakeCaller())
	_, err := r.SelectProvider(time.Now(), 0)
	require.ErrorIs(t, err, errs.ErrNoProvider)
}

func TestEnhancedDataFirstFallsBackToCostOptimized(t *testing.T) {
	r := New(zerolog.Nop(), StrategyEnhancedDataFirst, NetworkMainnetBeta, newFakeCaller())
	r.AddProvider(ProviderConfig{ID: "cheap", URLs: urlsFor("http://cheap"), MonthlyQuota: 1000, CostPerRequest: 0.001, Priority: 1})
	r.AddProvider(ProviderConfig{ID: "pricey", URLs: urlsFor("http://pricey"), MonthlyQuota: 1000, CostPerRequest: 0.01, Priority: 10})

	id, err := r.SelectProvider(time.Now(), 0)
	require.NoError(t, err)
	require.Equal(t, "cheap", id, "no provider has enhanced_data, so it falls back to cost-optimized")
}

func TestEnhancedDataFirstPrefersFeatureBit(t *testing.T) {
	r := New(zerolog.Nop(), StrategyEnhancedDataFirst, NetworkMainnetBeta, newFakeCaller())
	r.AddProvider(ProviderConfig{ID: "plain", URLs: urlsFor("http://plain"), MonthlyQuota: 1000, CostPerRequest: 0.001, Priority: 10})
	r.AddProvider(ProviderConfig{ID: "rich", URLs: urlsFor("http://rich"), MonthlyQuota: 1000, CostPerRequest: 0.01, Priority: 1, Features: FeatureEnhancedData})

	id, err := r.SelectProvider(time.Now(), FeatureEnhancedData)
	require.NoError(t, err)
	require.Equal(t, "rich", id)
}

func TestRoundRobinCyclesThroughEligible(t *testing.T) {
	r := New(zerolog.Nop(), StrategyRoundRobin, NetworkMainnetBeta, newFakeCaller())
	r.AddProvider(ProviderConfig{ID: "A", URLs: urlsFor("http://a"), MonthlyQuota: 1000})
	r.AddProvider(ProviderConfig{ID: "B", URLs: urlsFor("http://b"), MonthlyQuota: 1000})

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		id, err := r.SelectProvider(time.Now(), 0)
		require.NoError(t, err)
		seen[id]++
	}
	require.Equal(t, 2, seen["A"])
	require.Equal(t, 2, seen["B"])
}

func TestResetMonthlyCountersClearsUsage(t *testing.T) {
	caller := newFakeCaller()
	r := New(zerolog.Nop(), StrategyCostOptimized, NetworkMainnetBeta, caller)
	r.AddProvider(ProviderConfig{ID: "only", URLs: urlsFor("http://only"), MonthlyQuota: 1, CostPerRequest: 0.001})

	_, err := r.Call(context.Background(), "m", nil, 0)
	require.NoError(t, err)
	_, err = r.SelectProvider(time.Now(), 0)
	require.ErrorIs(t, err, errs.ErrNoProvider)

	r.ResetMonthlyCounters()
	id, err := r.SelectProvider(time.Now(), 0)
	require.NoError(t, err)
	require.Equal(t, "only", id)
}
