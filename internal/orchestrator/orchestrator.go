// Package orchestrator assembles the coordination substrate's components
// (registry, task delegator, message bus, RPC router, cache, batcher,
// multi-sig gate, HSM manager, ensemble combiner, context engine, feedback
// loop, signal scorer/weighter) into the end-to-end flow described in §6.2
// and §6.3: score an inbound token candidate, combine it through the
// ensemble, delegate execution to an agent, and gate on-chain execution
// behind the multi-sig threshold.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/batch"
	"github.com/ajitpratap0/cryptofunk/internal/cache"
	stdcontext "github.com/ajitpratap0/cryptofunk/internal/context"
	"github.com/ajitpratap0/cryptofunk/internal/ensemble"
	"github.com/ajitpratap0/cryptofunk/internal/errs"
	"github.com/ajitpratap0/cryptofunk/internal/feedback"
	"github.com/ajitpratap0/cryptofunk/internal/hsm"
	"github.com/ajitpratap0/cryptofunk/internal/messaging"
	"github.com/ajitpratap0/cryptofunk/internal/multisig"
	"github.com/ajitpratap0/cryptofunk/internal/registry"
	"github.com/ajitpratap0/cryptofunk/internal/rpcrouter"
	"github.com/ajitpratap0/cryptofunk/internal/signal"
	"github.com/ajitpratap0/cryptofunk/internal/tasks"
)

// Action mirrors §6.2's AITradingDecision.action enum.
type Action string

const (
	ActionBuy   Action = "Buy"
	ActionSell  Action = "Sell"
	ActionHold  Action = "Hold"
	ActionAvoid Action = "Avoid"
)

// RiskAssessment mirrors §6.2's AITradingDecision.risk_assessment enum.
type RiskAssessment string

const (
	RiskAssessLow    RiskAssessment = "Low"
	RiskAssessMedium RiskAssessment = "Medium"
	RiskAssessHigh   RiskAssessment = "High"
)

// Decision is the §6.2 AITradingDecision returned per analyzed token profile.
type Decision struct {
	// ID is the ensemble prediction id when an Ensemble is wired (so a
	// later POST /feedback can reference it via decision_id), empty
	// otherwise.
	ID              string
	TokenAddress    string
	Action          Action
	Confidence      float64
	Reasoning       string
	RiskAssessment  RiskAssessment
	PositionSizePct float64
	StopLossPct     *float64
	TakeProfitPct   *float64
	Urgency         int
	StrategyType    string

	// MultisigTxID is set when Action is Buy or Sell and execution was
	// gated behind the multi-sig wallet; empty otherwise.
	MultisigTxID string
}

// Coordinator wires every component package into one request/feedback
// pipeline. All fields are optional except Scorer and Weighter: a nil
// component degrades that stage rather than panicking, so the Coordinator
// can run standalone in tests without a live database, NATS, or HSM.
type Coordinator struct {
	log zerolog.Logger

	Scorer   *signal.Scorer
	Weighter *signal.Weighter
	Ensemble *ensemble.Combiner

	Registry  *registry.Registry
	Delegator *tasks.Delegator
	Bus       *messaging.Bus

	Router *rpcrouter.Router
	Cache  *cache.Cache
	Batch  *batch.Aggregator

	HSM      *hsm.Manager
	Multisig *multisig.Gate

	ContextEngine *stdcontext.Engine
	FeedbackLoop  *feedback.FeedbackLoop
	FeedbackStore *feedback.Store

	multisigTTL time.Duration
}

// New builds a Coordinator. Pass nil for any component not wired in this
// deployment; AnalyzeTokens and RecordFeedback degrade gracefully.
func New(log zerolog.Logger, scorer *signal.Scorer, weighter *signal.Weighter, combiner *ensemble.Combiner, multisigTTL time.Duration) *Coordinator {
	return &Coordinator{
		log:         log.With().Str("component", "orchestrator").Logger(),
		Scorer:      scorer,
		Weighter:    weighter,
		Ensemble:    combiner,
		multisigTTL: multisigTTL,
	}
}

// AnalyzeTokens implements §6.2: score each candidate, combine the scorer's
// opinion through the ensemble, derive an AITradingDecision, and for
// Buy/Sell actions below the high-risk bucket, open a pending multi-sig
// transaction so execution still requires threshold signatures.
func (c *Coordinator) AnalyzeTokens(ctx context.Context, candidates []signal.TokenCandidate, source string) ([]Decision, error) {
	decisions := make([]Decision, 0, len(candidates))
	now := time.Now()

	for _, cand := range candidates {
		profile, reason := c.Scorer.Score(cand, now)
		if reason != signal.FilterNone {
			decisions = append(decisions, Decision{
				TokenAddress:   cand.Address,
				Action:         ActionAvoid,
				Confidence:     1,
				Reasoning:      string(reason),
				RiskAssessment: RiskAssessHigh,
				StrategyType:   "filtered",
			})
			continue
		}

		decision := c.decisionFromProfile(cand.Address, *profile, source)

		if c.Multisig != nil && (decision.Action == ActionBuy || decision.Action == ActionSell) && decision.RiskAssessment != RiskAssessHigh {
			payload := fmt.Appendf(nil, "%s:%s:%.6f", decision.Action, decision.TokenAddress, decision.PositionSizePct)
			txID, err := c.Multisig.Create(payload, "orchestrator", c.multisigTTL)
			if err != nil {
				c.log.Warn().Err(err).Str("token", decision.TokenAddress).Msg("failed to open multi-sig transaction for decision")
			} else {
				decision.MultisigTxID = txID
			}
		}

		if c.Delegator != nil {
			priority := tasks.PriorityMedium
			if decision.Urgency >= 8 {
				priority = tasks.PriorityCritical
			} else if decision.Urgency >= 5 {
				priority = tasks.PriorityHigh
			}
			c.Delegator.Enqueue("analyze_token", priority, decision, []string{"token_analysis"}, "", 2)
		}

		decisions = append(decisions, decision)
	}

	return decisions, nil
}

// decisionFromProfile maps a scored TokenProfile through the ensemble (a
// single "signal-scorer" opinion, weighted like every other model) into an
// AITradingDecision.
func (c *Coordinator) decisionFromProfile(address string, profile signal.TokenProfile, source string) Decision {
	confidence := profile.WeightedScore
	var predictionID string
	if c.Ensemble != nil {
		combined, err := c.Ensemble.Combine([]ensemble.Opinion{{
			ModelID:        "signal-scorer",
			Prediction:     profile.RecommendedAction,
			Confidence:     profile.WeightedScore,
			ContextQuality: 1,
		}})
		if err == nil {
			confidence = combined.Confidence
			predictionID = combined.PredictionID
		}
	}

	action := ActionHold
	switch profile.RecommendedAction {
	case signal.ActionAlert, signal.ActionSendToDecision:
		if profile.WeightedScore >= 0 {
			action = ActionBuy
		} else {
			action = ActionSell
		}
	case signal.ActionMonitor:
		action = ActionHold
	case signal.ActionIgnore:
		action = ActionAvoid
	}

	risk := RiskAssessLow
	switch profile.RiskLevel {
	case signal.RiskMedium:
		risk = RiskAssessMedium
	case signal.RiskHigh, signal.RiskExtreme:
		risk = RiskAssessHigh
	}

	urgency := 1 + int(confidence*9)
	if urgency > 10 {
		urgency = 10
	}
	if urgency < 1 {
		urgency = 1
	}

	positionSize := clampPct(profile.PotentialScore * 0.1)

	return Decision{
		ID:              predictionID,
		TokenAddress:    address,
		Action:          action,
		Confidence:      confidence,
		Reasoning:       fmt.Sprintf("source=%s weighted_score=%.3f risk_score=%.3f top_signals=%d", source, profile.WeightedScore, profile.RiskScore, len(profile.TopSignals)),
		RiskAssessment:  risk,
		PositionSizePct: positionSize,
		Urgency:         urgency,
		StrategyType:    "signal_ensemble",
	}
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// FeedbackRequest is §6.3's POST /feedback body.
type FeedbackRequest struct {
	TokenAddress string
	DecisionID   string
	ActualResult ActualResult
	Market       signal.MarketContext
}

// ActualResult is the realized outcome reported back for a prior decision.
type ActualResult struct {
	ProfitLossPct  float64
	HoldingPeriodS float64
	SignalsUsed    []string
}

// RecordFeedback implements §6.3: updates per-signal success/weights via the
// Dynamic Weighter, per-agent-kind and pattern statistics via the Feedback
// Loop, and ensemble accuracy via the Combiner.
func (c *Coordinator) RecordFeedback(ctx context.Context, req FeedbackRequest) error {
	success := req.ActualResult.ProfitLossPct > 0

	if c.Weighter != nil {
		for _, name := range req.ActualResult.SignalsUsed {
			c.Weighter.RecordOutcome(name, success)
		}
	}

	if c.FeedbackLoop != nil {
		outcome := feedback.Outcome{
			TaskID:      req.DecisionID,
			Success:     success,
			ExecutionMs: req.ActualResult.HoldingPeriodS * 1000,
			Signals:     req.ActualResult.SignalsUsed,
			Financial: &feedback.FinancialOutcome{
				ROIPct:    req.ActualResult.ProfitLossPct,
				DurationS: req.ActualResult.HoldingPeriodS,
			},
		}
		if err := c.FeedbackLoop.Record(ctx, outcome); err != nil {
			return errs.Wrap(errs.KindExternal, "orchestrator", "record feedback outcome", err)
		}
	}

	if c.Ensemble != nil && req.DecisionID != "" {
		if err := c.Ensemble.RecordFeedback(req.DecisionID, success); err != nil {
			c.log.Debug().Err(err).Str("decision_id", req.DecisionID).Msg("ensemble feedback not recorded")
		}
	}

	return nil
}
