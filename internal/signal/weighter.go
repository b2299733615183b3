package signal

import (
	"math"
	"sync"
)

// volatilityAmplified signals scale up with market volatility.
var volatilityAmplified = map[string]bool{
	"volume_spike":   true,
	"price_momentum": true,
	"high_volatility": true,
}

// safetySignals scale up with risk appetite (the more risk-tolerant the
// context, the more weight is put on the signals that make risk tolerable).
var safetySignals = map[string]bool{
	"low_dev_allocation": true,
	"no_freeze_function": true,
	"verified_contract":  true,
	"doxxed_team":        true,
}

const successHistoryLen = 20

// successTracker is an EMA-backed rolling success-rate tracker for a single
// signal name, keeping the last successHistoryLen outcomes for introspection.
type successTracker struct {
	mu      sync.Mutex
	ema     float64
	history []bool
	seeded  bool
}

func newSuccessTracker() *successTracker {
	return &successTracker{ema: 0.5}
}

const successEMAAlpha = 0.1

func (t *successTracker) record(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, success)
	if len(t.history) > successHistoryLen {
		t.history = t.history[len(t.history)-successHistoryLen:]
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if !t.seeded {
		t.ema = outcome
		t.seeded = true
		return
	}
	t.ema = t.ema + successEMAAlpha*(outcome-t.ema)
}

func (t *successTracker) rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ema
}

// Weighter adjusts per-signal base weight by market context and tracks a
// rolling per-signal success rate that feeds back into signal confidence.
type Weighter struct {
	mu       sync.RWMutex
	trackers map[string]*successTracker
}

// NewWeighter creates a Weighter with no prior success history.
func NewWeighter() *Weighter {
	return &Weighter{trackers: make(map[string]*successTracker)}
}

// RecordOutcome feeds back a signal's realized outcome (§4.9 step 3) into its
// rolling success tracker.
func (w *Weighter) RecordOutcome(signalName string, success bool) {
	w.mu.Lock()
	t, ok := w.trackers[signalName]
	if !ok {
		t = newSuccessTracker()
		w.trackers[signalName] = t
	}
	w.mu.Unlock()
	t.record(success)
}

func (w *Weighter) successRate(signalName string) float64 {
	w.mu.RLock()
	t, ok := w.trackers[signalName]
	w.mu.RUnlock()
	if !ok {
		return 0.5
	}
	return t.rate()
}

// AdjustedWeights returns a copy of base with each weight multiplicatively
// adjusted by the market context, sign preserved, magnitude clamped to [0,1].
func (w *Weighter) AdjustedWeights(base map[string]float64, ctx MarketContext) map[string]float64 {
	out := make(map[string]float64, len(base))
	for name, weight := range base {
		mult := 1.0
		if volatilityAmplified[name] {
			mult *= 1 + ctx.Volatility*0.2
		}
		if safetySignals[name] {
			mult *= 1 + ctx.RiskAppetite*0.1
		}
		if ctx.MemecoinSeason {
			switch name {
			case "new_listing", "pump_fun_listing":
				mult *= 1.3
			case "rug_pull_indicators":
				mult *= 1.4
			}
		}
		adjusted := weight * mult
		sign := 1.0
		if adjusted < 0 {
			sign = -1.0
		}
		magnitude := math.Min(math.Abs(adjusted), 1.0)
		out[name] = sign * magnitude
	}
	return out
}

// AdjustConfidence nudges a signal's confidence by its rolling success rate:
// confidence' = clamp(confidence + (success_rate-0.5)*0.4, 0.1, 1.0).
func (w *Weighter) AdjustConfidence(signalName string, confidence float64) float64 {
	rate := w.successRate(signalName)
	adjusted := confidence + (rate-0.5)*0.4
	if adjusted < 0.1 {
		return 0.1
	}
	if adjusted > 1.0 {
		return 1.0
	}
	return adjusted
}

// AdjustSignals applies AdjustConfidence to every signal in place and returns
// the same slice for convenience.
func (w *Weighter) AdjustSignals(signals []Signal) []Signal {
	for i := range signals {
		signals[i].Confidence = w.AdjustConfidence(signals[i].Name, signals[i].Confidence)
	}
	return signals
}
