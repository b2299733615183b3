// Package rpcrouter implements the multi-provider RPC router (§4.3):
// strategy-driven provider selection under quota and health constraints,
// with a single bounded failover and gobreaker-backed trip protection.
package rpcrouter

import (
	"sync"
	"time"
)

// Network selects which URL a provider exposes for a call.
type Network string

const (
	NetworkMainnetBeta Network = "mainnet-beta"
	NetworkDevnet       Network = "devnet"
	NetworkTestnet      Network = "testnet"
)

// Feature is a capability bit a caller may require of a provider.
type Feature uint8

const (
	FeatureEnhancedData Feature = 1 << iota
	FeatureWebhooks
)

// Strategy selects among eligible providers (§4.3).
type Strategy string

const (
	StrategyCostOptimized      Strategy = "cost_optimized"
	StrategyPerformanceFirst   Strategy = "performance_first"
	StrategyRoundRobin         Strategy = "round_robin"
	StrategyWeightedRoundRobin Strategy = "weighted_round_robin"
	StrategyEnhancedDataFirst  Strategy = "enhanced_data_first"
)

// ProviderConfig is the static configuration for one RPC provider (§3 RpcProvider).
type ProviderConfig struct {
	ID             string
	Kind           string
	URLs           map[Network]string
	APIKey         string
	MonthlyQuota   uint64
	RPMLimit       uint32 // 0 means unlimited
	CostPerRequest float64
	Features       Feature
	Priority       uint8 // 1-10, higher is better
}

// URLFor returns the provider's URL for the given network, falling back to
// devnet's URL for testnet the way the original multi-RPC manager does.
func (p ProviderConfig) URLFor(network Network) string {
	if network == NetworkTestnet {
		network = NetworkDevnet
	}
	return p.URLs[network]
}

func (p ProviderConfig) hasFeatures(required Feature) bool {
	return p.Features&required == required
}

// Stats is the rolling usage/health snapshot for one provider (§3 stats).
type Stats struct {
	RequestsHour   uint64
	RequestsDay    uint64
	RequestsMonth  uint64
	SuccessRate    float64 // EMA, [0,1]
	AvgLatencyMs   float64 // EMA
	IsHealthy      bool
	LastHealthCheck time.Time

	hourWindowStart  time.Time
	dayWindowStart   time.Time
	monthWindowStart time.Time
}

func newStats(now time.Time) Stats {
	return Stats{
		SuccessRate:      1.0,
		IsHealthy:        true,
		hourWindowStart:  now,
		dayWindowStart:   now,
		monthWindowStart: now,
	}
}

const (
	successEMAAlpha = 0.1
	latencyEMAAlpha = 0.1
	healthThreshold = 0.5
)

// rollWindows resets hour/day counters whose window has elapsed. Monthly
// counters only reset via an explicit ResetMonthlyCounters call (§4.3).
func (s *Stats) rollWindows(now time.Time) {
	if now.Sub(s.hourWindowStart) >= time.Hour {
		s.RequestsHour = 0
		s.hourWindowStart = now
	}
	if now.Sub(s.dayWindowStart) >= 24*time.Hour {
		s.RequestsDay = 0
		s.dayWindowStart = now
	}
}

func (s *Stats) recordSuccess(now time.Time, latency time.Duration) {
	s.rollWindows(now)
	s.RequestsHour++
	s.RequestsDay++
	s.RequestsMonth++
	s.SuccessRate = s.SuccessRate + successEMAAlpha*(1.0-s.SuccessRate)
	s.updateLatency(latency)
	s.IsHealthy = s.SuccessRate > healthThreshold
}

func (s *Stats) recordFailure(now time.Time, latency time.Duration) {
	s.rollWindows(now)
	s.RequestsHour++
	s.RequestsDay++
	s.RequestsMonth++
	s.SuccessRate = s.SuccessRate + successEMAAlpha*(0.0-s.SuccessRate)
	s.updateLatency(latency)
	s.IsHealthy = s.SuccessRate > healthThreshold
}

func (s *Stats) updateLatency(latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1000.0
	if s.AvgLatencyMs == 0 {
		s.AvgLatencyMs = ms
		return
	}
	s.AvgLatencyMs = s.AvgLatencyMs + latencyEMAAlpha*(ms-s.AvgLatencyMs)
}

// provider bundles config and a guarded stats snapshot.
type provider struct {
	mu    sync.Mutex
	cfg   ProviderConfig
	stats Stats
}

func newProvider(cfg ProviderConfig, now time.Time) *provider {
	return &provider{cfg: cfg, stats: newStats(now)}
}

func (p *provider) snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// eligible reports whether p may be selected right now (§4.3 eligibility).
func (p *provider) eligible(now time.Time, required Feature) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.rollWindows(now)

	if !p.cfg.hasFeatures(required) {
		return false
	}
	if p.cfg.MonthlyQuota > 0 && p.stats.RequestsMonth >= p.cfg.MonthlyQuota {
		return false
	}
	if p.cfg.RPMLimit > 0 && p.stats.RequestsHour >= uint64(p.cfg.RPMLimit)*60 {
		return false
	}
	return p.stats.IsHealthy
}
