package rpcrouter

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// Caller issues a single JSON-RPC call against a resolved provider URL. The
// Router never constructs HTTP clients itself; callers supply one so tests
// can substitute a fake.
type Caller interface {
	Call(ctx context.Context, url, method string, params any) (json.RawMessage, error)
}

var (
	metricsOnce sync.Once
	selections  *prometheus.CounterVec
	requests    *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		selections = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_router_selections_total",
			Help: "Number of times a provider was selected by the router.",
		}, []string{"provider", "strategy"})
		requests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_router_requests_total",
			Help: "Total RPC requests issued per provider and result.",
		}, []string{"provider", "result"})
		breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpc_router_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"})
	})
}

// Router selects and calls RPC providers under a configurable Strategy,
// tracking quota/health stats and failing over once on a transient error.
type Router struct {
	log     zerolog.Logger
	caller  Caller
	network Network

	mu        sync.RWMutex
	providers map[string]*provider
	order     []string // insertion order, drives RoundRobin/WeightedRoundRobin determinism

	strategy Strategy
	rrIndex  atomic.Uint64

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	healthCheckInterval time.Duration
}

// New creates a Router with no providers registered yet.
func New(log zerolog.Logger, strategy Strategy, network Network, caller Caller) *Router {
	initMetrics()
	return &Router{
		log:                 log.With().Str("component", "rpcrouter").Logger(),
		caller:              caller,
		network:             network,
		providers:           make(map[string]*provider),
		strategy:            strategy,
		breakers:            make(map[string]*gobreaker.CircuitBreaker),
		healthCheckInterval: 5 * time.Minute,
	}
}

// AddProvider registers a provider configuration, seeding fresh stats.
func (r *Router) AddProvider(cfg ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.providers[cfg.ID] = newProvider(cfg, time.Now())
}

// SetStrategy changes the active routing strategy.
func (r *Router) SetStrategy(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = s
}

func (r *Router) breakerFor(id string) *gobreaker.CircuitBreaker {
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()
	if b, ok := r.breakers[id]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	r.breakers[id] = b
	return b
}

// eligibleProviders returns eligible providers in stable (insertion) order.
func (r *Router) eligibleProviders(now time.Time, required Feature) []*provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*provider, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		if p.eligible(now, required) {
			out = append(out, p)
		}
	}
	return out
}

// SelectProvider picks a provider id per the active strategy (§4.3).
func (r *Router) SelectProvider(now time.Time, required Feature) (string, error) {
	eligible := r.eligibleProviders(now, required)
	if len(eligible) == 0 {
		return "", errs.ErrNoProvider
	}

	r.mu.RLock()
	strategy := r.strategy
	r.mu.RUnlock()

	var chosen *provider
	switch strategy {
	case StrategyCostOptimized:
		chosen = selectCostOptimized(eligible)
	case StrategyPerformanceFirst:
		chosen = selectPerformanceFirst(eligible)
	case StrategyRoundRobin:
		idx := r.rrIndex.Add(1) - 1
		chosen = eligible[idx%uint64(len(eligible))]
	case StrategyWeightedRoundRobin:
		chosen = r.selectWeightedRoundRobin(eligible)
	case StrategyEnhancedDataFirst:
		chosen = selectEnhancedDataFirst(eligible)
	default:
		chosen = selectCostOptimized(eligible)
	}
	if chosen == nil {
		return "", errs.ErrNoProvider
	}
	selections.WithLabelValues(chosen.cfg.ID, string(strategy)).Inc()
	return chosen.cfg.ID, nil
}

func selectCostOptimized(eligible []*provider) *provider {
	best := eligible[0]
	bestStats := best.snapshot()
	for _, p := range eligible[1:] {
		s := p.snapshot()
		bs := bestStats
		switch {
		case p.cfg.CostPerRequest < best.cfg.CostPerRequest:
			best, bestStats = p, s
		case p.cfg.CostPerRequest == best.cfg.CostPerRequest && s.SuccessRate > bs.SuccessRate:
			best, bestStats = p, s
		}
	}
	return best
}

func selectPerformanceFirst(eligible []*provider) *provider {
	best := eligible[0]
	bestScore := performanceScore(best)
	for _, p := range eligible[1:] {
		score := performanceScore(p)
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best
}

func performanceScore(p *provider) float64 {
	s := p.snapshot()
	return float64(p.cfg.Priority) + s.SuccessRate/10.0
}

func selectEnhancedDataFirst(eligible []*provider) *provider {
	var withFeature []*provider
	for _, p := range eligible {
		if p.cfg.hasFeatures(FeatureEnhancedData) {
			withFeature = append(withFeature, p)
		}
	}
	if len(withFeature) > 0 {
		return selectHighestPriority(withFeature)
	}
	return selectCostOptimized(eligible)
}

func selectHighestPriority(eligible []*provider) *provider {
	best := eligible[0]
	for _, p := range eligible[1:] {
		if p.cfg.Priority > best.cfg.Priority {
			best = p
		}
	}
	return best
}

// selectWeightedRoundRobin duplicates each eligible provider by its priority
// in a virtual ring and advances a single shared index (§4.3).
func (r *Router) selectWeightedRoundRobin(eligible []*provider) *provider {
	// stable order for determinism regardless of map iteration
	sorted := make([]*provider, len(eligible))
	copy(sorted, eligible)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].cfg.ID < sorted[j].cfg.ID })

	var total uint64
	for _, p := range sorted {
		total += uint64(p.cfg.Priority)
	}
	if total == 0 {
		return sorted[0]
	}
	target := r.rrIndex.Add(1) - 1
	target %= total

	var cumulative uint64
	for _, p := range sorted {
		cumulative += uint64(p.cfg.Priority)
		if cumulative > target {
			return p
		}
	}
	return sorted[len(sorted)-1]
}

// Call selects a provider, issues method via Caller, and on a transient
// failure attempts exactly one failover to a distinct eligible provider
// (§4.3 step 3, P8).
func (r *Router) Call(ctx context.Context, method string, params any, required Feature) (json.RawMessage, error) {
	now := time.Now()
	providerID, err := r.SelectProvider(now, required)
	if err != nil {
		return nil, err
	}

	result, err := r.callProvider(ctx, providerID, method, params)
	if err == nil {
		return result, nil
	}

	r.log.Warn().Err(err).Str("provider", providerID).Msg("rpc call failed, attempting failover")

	fallbackID := ""
	for _, p := range r.eligibleProviders(time.Now(), required) {
		if p.cfg.ID != providerID {
			fallbackID = p.cfg.ID
			break
		}
	}
	if fallbackID == "" {
		return nil, errs.Wrap(errs.KindTransient, "rpcrouter", "rpc call failed, no failover available", err)
	}

	result, fbErr := r.callProvider(ctx, fallbackID, method, params)
	if fbErr != nil {
		return nil, errs.Wrap(errs.KindTransient, "rpcrouter", "rpc call failed after failover", fbErr)
	}
	return result, nil
}

func (r *Router) callProvider(ctx context.Context, providerID, method string, params any) (json.RawMessage, error) {
	r.mu.RLock()
	p, ok := r.providers[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNoProvider
	}

	url := p.cfg.URLFor(r.network)
	breaker := r.breakerFor(providerID)

	start := time.Now()
	out, err := breaker.Execute(func() (any, error) {
		return r.caller.Call(ctx, url, method, params)
	})
	latency := time.Since(start)

	p.mu.Lock()
	if err != nil {
		p.stats.recordFailure(time.Now(), latency)
	} else {
		p.stats.recordSuccess(time.Now(), latency)
	}
	p.mu.Unlock()

	if err != nil {
		requests.WithLabelValues(providerID, "failure").Inc()
		return nil, err
	}
	requests.WithLabelValues(providerID, "success").Inc()
	return out.(json.RawMessage), nil
}

// HealthCheckAll issues a cheap idempotent probe against every provider with
// a 10s timeout and updates is_healthy from the outcome (§4.3).
func (r *Router) HealthCheckAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	for _, id := range ids {
		r.mu.RLock()
		p := r.providers[id]
		r.mu.RUnlock()

		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := r.caller.Call(probeCtx, p.cfg.URLFor(r.network), "getHealth", nil)
		cancel()

		p.mu.Lock()
		p.stats.IsHealthy = err == nil
		p.stats.LastHealthCheck = time.Now()
		p.mu.Unlock()
	}
}

// ResetMonthlyCounters clears every provider's monthly counter. The router
// never calls it itself and does not detect a month boundary, so the counter
// is cleared only when a caller invokes this.
func (r *Router) ResetMonthlyCounters() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	for _, p := range r.providers {
		p.mu.Lock()
		p.stats.RequestsMonth = 0
		p.stats.monthWindowStart = now
		p.mu.Unlock()
	}
}

// RestoreMonthlyCount sets a provider's monthly request counter, used at
// startup to reapply a count persisted before the last shutdown (§6.5) so a
// provider near its quota doesn't get a free month's worth of headroom
// across a restart.
func (r *Router) RestoreMonthlyCount(id string, count uint64) {
	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	p.mu.Lock()
	p.stats.RequestsMonth = count
	p.mu.Unlock()
}

// ProviderStats returns a point-in-time snapshot for one provider.
func (r *Router) ProviderStats(id string) (Stats, bool) {
	r.mu.RLock()
	p, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return p.snapshot(), true
}

// AllStats returns a snapshot of every registered provider's stats.
func (r *Router) AllStats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.providers))
	for id, p := range r.providers {
		out[id] = p.snapshot()
	}
	return out
}
