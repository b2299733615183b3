package signal

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Scorer is a stateless per-event function: TokenCandidate -> TokenProfile,
// or a FilterReason when the candidate fails hard minimums. It never
// synthesizes a value for a metric the candidate doesn't report (§4.1).
type Scorer struct {
	log        zerolog.Logger
	thresholds FilterThresholds
	weights    map[string]float64 // name -> signed base weight, possibly weighter-adjusted
}

// NewScorer builds a Scorer with the given thresholds and per-signal base
// weights (typically BaseWeights, or a Dynamic-Weighter-adjusted copy of it).
func NewScorer(log zerolog.Logger, thresholds FilterThresholds, weights map[string]float64) *Scorer {
	return &Scorer{
		log:        log.With().Str("component", "signal_scorer").Logger(),
		thresholds: thresholds,
		weights:    weights,
	}
}

const (
	volumeSpikeFloor    = 50_000.0
	volumeSpikeScale    = 500_000.0
	liquidityFloor      = 50_000.0
	liquidityScale      = 500_000.0
	momentumFloor       = 5.0
	momentumScale       = 50.0
	volatilityFloor     = 50.0
	volatilityScale     = 100.0
	devAllocationFloor  = 10.0
	holderCountFloor    = 100.0
	newListingWindow    = time.Hour
)

// Score evaluates a candidate. A non-empty FilterReason means the candidate
// was rejected before scoring and the returned profile is nil.
func (s *Scorer) Score(c TokenCandidate, now time.Time) (*TokenProfile, FilterReason) {
	if c.VolumeUSD < s.thresholds.MinVolumeUSD {
		return nil, FilterLowVolume
	}
	if c.LiquidityUSD < s.thresholds.MinLiquidityUSD {
		return nil, FilterLowLiquidity
	}

	signals := s.emit(c, now)

	var potential, risk float64
	for _, sig := range signals {
		w := sig.Weighted()
		if w > 0 {
			potential += w
		} else {
			risk += -w
		}
	}
	potential = clamp01(potential)
	risk = clamp01(risk)
	weighted := clamp01(potential - 0.5*risk)

	if risk > s.thresholds.MaxRiskScore {
		return nil, FilterRiskTooHigh
	}
	if potential < s.thresholds.MinOpportunity {
		return nil, FilterOpportunityLow
	}

	profile := &TokenProfile{
		Address:        c.Address,
		Signals:        signals,
		PotentialScore: potential,
		RiskScore:      risk,
		WeightedScore:  weighted,
		RiskLevel:      riskLevel(risk),
	}
	profile.TopSignals = topSignals(signals, s.thresholds.TopSignalsCount)
	profile.RecommendedAction = recommendedAction(profile.RiskLevel, weighted, len(profile.TopSignals))
	return profile, FilterNone
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func riskLevel(risk float64) RiskLevel {
	switch {
	case risk < 0.3:
		return RiskLow
	case risk < 0.6:
		return RiskMedium
	case risk < 0.8:
		return RiskHigh
	default:
		return RiskExtreme
	}
}

func recommendedAction(level RiskLevel, weighted float64, topSignalCount int) Action {
	switch level {
	case RiskExtreme:
		return ActionIgnore
	case RiskHigh:
		if weighted > 0.8 && topSignalCount >= 2 {
			return ActionAlert
		}
		return ActionMonitor
	case RiskMedium:
		if weighted > 0.7 {
			return ActionSendToDecision
		}
		return ActionMonitor
	default: // Low
		if weighted > 0.6 {
			return ActionSendToDecision
		}
		return ActionMonitor
	}
}

// topSignals returns the n entries of greatest |weighted|, ties broken by
// ascending name (P3).
func topSignals(signals []Signal, n int) []Signal {
	ordered := make([]Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		wi, wj := math.Abs(ordered[i].Weighted()), math.Abs(ordered[j].Weighted())
		if wi != wj {
			return wi > wj
		}
		return ordered[i].Name < ordered[j].Name
	})
	if n > len(ordered) {
		n = len(ordered)
	}
	return ordered[:n]
}

func (s *Scorer) weight(name string) (float64, bool) {
	w, ok := s.weights[name]
	return w, ok
}

// emit produces every applicable signal for the candidate. A metric the
// candidate doesn't report (Known* false) never produces a synthesized signal.
func (s *Scorer) emit(c TokenCandidate, now time.Time) []Signal {
	var out []Signal
	add := func(name string, kind Kind, strength, confidence float64, source string) {
		w, ok := s.weight(name)
		if !ok {
			return
		}
		out = append(out, Signal{
			Name:       name,
			Kind:       kind,
			Strength:   clamp01(strength),
			Confidence: clamp01(confidence),
			Weight:     w,
			Source:     source,
			Timestamp:  now,
		})
	}

	if c.VolumeUSD > volumeSpikeFloor {
		add("volume_spike", KindMomentum, c.VolumeUSD/volumeSpikeScale, 0.8, "volume")
	}
	if math.Abs(c.PriceChange24h) > momentumFloor {
		add("price_momentum", KindMomentum, math.Abs(c.PriceChange24h)/momentumScale, 0.75, "price")
	}
	if c.LiquidityUSD > liquidityFloor {
		add("high_liquidity", KindLiquidity, c.LiquidityUSD/liquidityScale, 0.85, "liquidity")
	}
	if math.Abs(c.PriceChange24h) > volatilityFloor {
		add("high_volatility", KindRisk, math.Abs(c.PriceChange24h)/volatilityScale, 0.7, "price")
	}
	if !c.CreatedAt.IsZero() && now.Sub(c.CreatedAt) <= newListingWindow {
		add("new_listing", KindListing, 1.0, 0.6, "creation_time")
	}
	if c.Platform == "pump.fun" {
		add("pump_fun_listing", KindListing, 1.0, 0.9, "platform")
	}
	if c.Known.DevAllocationPct && c.DevAllocationPct < devAllocationFloor {
		add("low_dev_allocation", KindSafety, 1-c.DevAllocationPct/devAllocationFloor, 0.8, "onchain")
	}
	if c.Known.HasFreezeFunction && !c.HasFreezeFunction {
		add("no_freeze_function", KindSafety, 1.0, 0.9, "onchain")
	}
	if c.Known.IsVerified && c.IsVerified {
		add("verified_contract", KindSafety, 1.0, 0.85, "onchain")
	}
	if c.Known.IsDoxxedTeam && c.IsDoxxedTeam {
		add("doxxed_team", KindSafety, 1.0, 0.6, "team")
	}
	if c.Known.SuspiciousMetadata && c.SuspiciousMetadata {
		add("suspicious_metadata", KindRisk, 1.0, 0.7, "metadata")
	}
	if c.Known.HolderCount && c.HolderCount < int(holderCountFloor) {
		add("low_holder_count", KindRisk, 1-float64(c.HolderCount)/holderCountFloor, 0.75, "holders")
	}

	rugFlags, rugTotal := 0.0, 0.0
	if c.Known.HasFreezeFunction {
		rugTotal++
		if c.HasFreezeFunction {
			rugFlags++
		}
	}
	if c.Known.HasMintAuthority {
		rugTotal++
		if c.HasMintAuthority {
			rugFlags++
		}
	}
	if c.Known.SuspiciousMetadata {
		rugTotal++
		if c.SuspiciousMetadata {
			rugFlags++
		}
	}
	if rugTotal > 0 && rugFlags > 0 {
		add("rug_pull_indicators", KindRisk, rugFlags/rugTotal, 0.8, "onchain")
	}

	return out
}
