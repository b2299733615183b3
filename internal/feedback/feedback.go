package feedback

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

const (
	globalSuccessAlpha = 0.05
	globalOtherAlpha   = 0.05
	perAgentKindAlpha  = 0.1
	perSignalAlpha     = 0.1

	patternMinObservations = 5
	patternSuccessProbGate = 0.7
)

// FinancialOutcome is the realized result of an executed decision (§4.9).
type FinancialOutcome struct {
	PnLSOL     float64
	PnLUSD     float64
	ROIPct     float64
	Fees       float64
	DurationS  float64
}

// Outcome is the feedback loop's input: a completed task paired with its
// realized financial result and the signals that drove the originating
// decision.
type Outcome struct {
	TaskID     string
	AgentKind  string
	Success    bool
	ExecutionMs float64
	Signals    []string // signal names present in the driving TokenProfile
	Financial  *FinancialOutcome
}

// agentKindStats tracks per-agent-kind rolling performance.
type agentKindStats struct {
	successRate  float64
	avgLatencyMs float64
	observations int
}

// signalStats tracks per-signal rolling performance.
type signalStats struct {
	successRate  float64
	profitImpact float64
	observations int
}

// patternKey identifies a DetectedPattern for duplicate suppression: same
// type + description is never re-emitted (§4.9).
type patternKey struct {
	kind        string
	description string
}

// DetectedPattern is an accumulated, supported observation of recurring
// behavior (§4.9).
type DetectedPattern struct {
	Kind               string
	Description        string
	Conditions         map[string]string
	SupportCount       int
	SuccessProb        float64
	RecommendedAgentKind string
	Confidence         float64
}

// conditionsMatch reports whether every condition in p is satisfied by task.
func (p *DetectedPattern) conditionsMatch(task map[string]string) bool {
	for k, v := range p.Conditions {
		if task[k] != v {
			return false
		}
	}
	return true
}

// PredictedOutcome is predict()'s result (§4.9).
type PredictedOutcome struct {
	SuccessProb          float64
	RecommendedAgentKind string
	MatchedPattern       string // pattern description, empty for the default neutral outcome
}

// FeedbackLoop records outcomes, maintains rolling statistics, detects
// patterns, and predicts/recommends based on them.
type FeedbackLoop struct {
	log   zerolog.Logger
	store *Store

	mu                sync.Mutex
	globalSuccessRate float64
	globalExecMs      float64
	globalROIPct      float64
	byAgentKind       map[string]*agentKindStats
	bySignal          map[string]*signalStats
	patterns          map[patternKey]*DetectedPattern
	// observation counters toward a not-yet-promoted pattern, keyed the same
	// way as patterns so repeated conditions accumulate support.
	pending map[patternKey]int
}

// New creates a FeedbackLoop backed by store for LongTerm persistence.
func New(log zerolog.Logger, store *Store) *FeedbackLoop {
	return &FeedbackLoop{
		log:               log.With().Str("component", "feedback").Logger(),
		store:             store,
		globalSuccessRate: 0.5,
		byAgentKind:       make(map[string]*agentKindStats),
		bySignal:          make(map[string]*signalStats),
		patterns:          make(map[patternKey]*DetectedPattern),
		pending:           make(map[patternKey]int),
	}
}

func ema(current, target, alpha float64) float64 {
	return current + alpha*(target-current)
}

func successTarget(success bool) float64 {
	if success {
		return 1.0
	}
	return 0.0
}

// Record ingests a realized outcome: persists it to LongTerm memory, updates
// every rolling statistic (§4.9 steps 1-3), and runs pattern detection
// (step 4).
func (f *FeedbackLoop) Record(ctx context.Context, o Outcome) error {
	if f.store != nil {
		if _, err := f.store.Put(ctx, TierLongTerm, "feedback", o.TaskID, o, nil, 0.5); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.globalSuccessRate = ema(f.globalSuccessRate, successTarget(o.Success), globalSuccessAlpha)
	f.globalExecMs = ema(f.globalExecMs, o.ExecutionMs, globalOtherAlpha)
	if o.Financial != nil {
		f.globalROIPct = ema(f.globalROIPct, o.Financial.ROIPct, globalOtherAlpha)
	}

	if o.AgentKind != "" {
		s, ok := f.byAgentKind[o.AgentKind]
		if !ok {
			s = &agentKindStats{successRate: 0.5, avgLatencyMs: o.ExecutionMs}
			f.byAgentKind[o.AgentKind] = s
		}
		s.successRate = ema(s.successRate, successTarget(o.Success), perAgentKindAlpha)
		s.avgLatencyMs = ema(s.avgLatencyMs, o.ExecutionMs, perAgentKindAlpha)
		s.observations++
	}

	profitImpact := 0.0
	if o.Financial != nil {
		profitImpact = o.Financial.ROIPct
	}
	for _, sig := range o.Signals {
		s, ok := f.bySignal[sig]
		if !ok {
			s = &signalStats{successRate: 0.5}
			f.bySignal[sig] = s
		}
		s.successRate = ema(s.successRate, successTarget(o.Success), perSignalAlpha)
		s.profitImpact = ema(s.profitImpact, profitImpact, perSignalAlpha)
		s.observations++
	}

	f.detectPatternLocked(o)
	return nil
}

// detectPatternLocked accumulates support for the (agent_kind, success)
// condition pair and promotes it to a DetectedPattern once it reaches
// patternMinObservations. Must be called with f.mu held.
func (f *FeedbackLoop) detectPatternLocked(o Outcome) {
	if o.AgentKind == "" {
		return
	}
	description := o.AgentKind + " tends to " + outcomeLabel(o.Success)
	key := patternKey{kind: "agent_outcome", description: description}
	if _, promoted := f.patterns[key]; promoted {
		return
	}

	f.pending[key]++
	if f.pending[key] < patternMinObservations {
		return
	}

	successProb := 0.5
	if s, ok := f.byAgentKind[o.AgentKind]; ok {
		successProb = s.successRate
	}
	f.patterns[key] = &DetectedPattern{
		Kind:                 key.kind,
		Description:          description,
		Conditions:           map[string]string{"agent_kind": o.AgentKind},
		SupportCount:         f.pending[key],
		SuccessProb:          successProb,
		RecommendedAgentKind: o.AgentKind,
		Confidence:           minFloat(1.0, float64(f.pending[key])/10.0),
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "succeed"
	}
	return "fail"
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Patterns returns a snapshot of every promoted DetectedPattern.
func (f *FeedbackLoop) Patterns() []DetectedPattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DetectedPattern, 0, len(f.patterns))
	for _, p := range f.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Predict scans patterns for the best match against task's conditions,
// returning the highest-confidence fully-satisfied pattern, or a neutral
// default outcome if none match (§4.9).
func (f *FeedbackLoop) Predict(task map[string]string) PredictedOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	var best *DetectedPattern
	for _, p := range f.patterns {
		if !p.conditionsMatch(task) {
			continue
		}
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}
	if best == nil {
		return PredictedOutcome{SuccessProb: 0.5}
	}
	return PredictedOutcome{
		SuccessProb:          best.SuccessProb,
		RecommendedAgentKind: best.RecommendedAgentKind,
		MatchedPattern:       best.Description,
	}
}

// AgentKindLatency exposes a kind's rolling average latency, for
// RecommendAgentKind's normalized_latency input.
func (f *FeedbackLoop) AgentKindLatency(kind string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byAgentKind[kind]
	if !ok {
		return 0, false
	}
	return s.avgLatencyMs, true
}

const latencyNormalizationMs = 60000.0

// RecommendAgentKind implements §4.9's agent recommendation: if the best
// matching pattern clears patternSuccessProbGate, use its recommendation;
// otherwise pick the kind maximizing 0.7*success_rate + 0.3*(1-normalized_latency).
func (f *FeedbackLoop) RecommendAgentKind(task map[string]string) string {
	prediction := f.Predict(task)
	if prediction.SuccessProb >= patternSuccessProbGate && prediction.RecommendedAgentKind != "" {
		return prediction.RecommendedAgentKind
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var bestKind string
	bestScore := -1.0
	kinds := make([]string, 0, len(f.byAgentKind))
	for k := range f.byAgentKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		s := f.byAgentKind[k]
		normalizedLatency := s.avgLatencyMs / latencyNormalizationMs
		if normalizedLatency > 1.0 {
			normalizedLatency = 1.0
		}
		score := 0.7*s.successRate + 0.3*(1-normalizedLatency)
		if score > bestScore {
			bestScore = score
			bestKind = k
		}
	}
	return bestKind
}

// GlobalStats exposes the global rolling metrics for dashboards/alerts.
type GlobalStats struct {
	SuccessRate float64
	ExecutionMs float64
	ROIPct      float64
}

func (f *FeedbackLoop) GlobalStats() GlobalStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return GlobalStats{SuccessRate: f.globalSuccessRate, ExecutionMs: f.globalExecMs, ROIPct: f.globalROIPct}
}

// SignalStats exposes one signal's rolling success rate and profit impact.
func (f *FeedbackLoop) SignalStats(signal string) (successRate, profitImpact float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, found := f.bySignal[signal]
	if !found {
		return 0, 0, false
	}
	return s.successRate, s.profitImpact, true
}
