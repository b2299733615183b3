// Package signal implements the inbound filtering and scoring pipeline: it
// turns a raw TokenCandidate into a ranked TokenProfile, or rejects it
// outright, and adjusts signal weights by market context and rolling
// per-signal success rates.
package signal

import "time"

// Kind classifies what a signal measures.
type Kind string

const (
	KindMomentum  Kind = "momentum"
	KindLiquidity Kind = "liquidity"
	KindSafety    Kind = "safety"
	KindRisk      Kind = "risk"
	KindListing   Kind = "listing"
)

// Platform identifies the venue a token was observed on.
type Platform string

// TokenCandidate is the immutable, inbound observation produced per chain event.
type TokenCandidate struct {
	Address           string
	VolumeUSD         float64
	LiquidityUSD      float64
	PriceChange24h    float64
	HolderCount       int
	Platform          Platform
	DevAllocationPct   float64
	HasFreezeFunction  bool
	HasMintAuthority   bool
	IsVerified         bool
	IsDoxxedTeam       bool
	SuspiciousMetadata bool
	CreatedAt          time.Time
	RawEventRef        string

	// DevAllocationPct/HasFreezeFunction/etc. above are optional metrics: a
	// zero value is ambiguous with "measured and zero", so callers that
	// don't have a metric must omit the corresponding Known* flag instead
	// of guessing. The scorer never synthesizes a value for an absent metric.
	Known KnownMetrics
}

// KnownMetrics records which optional metrics were actually observed on the
// candidate, so the scorer can skip a signal rather than guess at its value.
type KnownMetrics struct {
	DevAllocationPct   bool
	HasFreezeFunction  bool
	HasMintAuthority   bool
	IsVerified         bool
	IsDoxxedTeam       bool
	SuspiciousMetadata bool
	HolderCount        bool
}

// Signal is a single named, weighted feature contributing to a TokenProfile.
type Signal struct {
	Name       string
	Kind       Kind
	Strength   float64 // [0,1]
	Confidence float64 // [0,1]
	Weight     float64 // sign-bearing; negative = risk
	Source     string
	Timestamp  time.Time
}

// Weighted returns strength * weight * confidence.
func (s Signal) Weighted() float64 {
	return s.Strength * s.Weight * s.Confidence
}

// RiskLevel buckets risk_score into a monotone classification.
type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskExtreme RiskLevel = "Extreme"
)

// Action is the recommended next step for a TokenProfile.
type Action string

const (
	ActionIgnore        Action = "Ignore"
	ActionMonitor       Action = "Monitor"
	ActionSendToDecision Action = "SendToDecision"
	ActionAlert         Action = "Alert"
)

// TokenProfile is the scored output of the Signal Scorer.
type TokenProfile struct {
	Address           string
	Signals           []Signal
	PotentialScore    float64
	RiskScore         float64
	WeightedScore     float64
	RiskLevel         RiskLevel
	RecommendedAction Action
	TopSignals        []Signal
}

// FilterReason explains why a candidate was rejected before scoring.
type FilterReason string

const (
	FilterNone           FilterReason = ""
	FilterLowVolume      FilterReason = "volume below minimum"
	FilterLowLiquidity   FilterReason = "liquidity below minimum"
	FilterRiskTooHigh    FilterReason = "risk score above maximum"
	FilterOpportunityLow FilterReason = "opportunity score below minimum"
)

// MarketContext captures the market conditions the Dynamic Weighter reacts to.
type MarketContext struct {
	Volatility     float64 // [0,1]
	MemecoinSeason bool
	RiskAppetite   float64 // [0,1]
	VolumeTrend    VolumeTrend
}

// VolumeTrend is the direction of recent volume.
type VolumeTrend string

const (
	TrendUp   VolumeTrend = "Up"
	TrendFlat VolumeTrend = "Flat"
	TrendDown VolumeTrend = "Down"
)
