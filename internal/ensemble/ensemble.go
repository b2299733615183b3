// Package ensemble implements the weighted confidence combiner (§4.13):
// combines model opinions by per-model weight, tracks rolling accuracy
// against labeled feedback, and nudges weights based on outcomes.
package ensemble

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

const (
	minWeight          = 0.1
	maxWeight          = 2.0
	initialWeight      = 1.0
	weightNudge        = 0.01
	accuracyAlpha      = 0.05
	defaultMinConfidence = 0.7
)

// Opinion is one model's prediction for an ensemble round (§4.13).
type Opinion struct {
	ModelID        string
	Prediction     any
	Confidence     float64
	ContextQuality float64
}

// Combined is apply()'s result.
type Combined struct {
	PredictionID    string
	Prediction      any
	Confidence      float64
	ContextQuality  float64
	BelowConfidence bool
}

// TechniqueFlags are feature flags flipped when rolling accuracy is below
// target, consumed by the Scorer and Context Engine (§4.13).
type TechniqueFlags struct {
	ContextQualityBoost bool
	PatternEnhancement  bool
	AnomalyGating       bool
	AdaptiveThresholds  bool
}

// Combiner is the Ensemble Accuracy Combiner.
type Combiner struct {
	log           zerolog.Logger
	minConfidence float64
	targetAccuracy float64

	mu              sync.Mutex
	weights         map[string]float64
	predictions     map[string]predictionRecord
	rollingAccuracy float64
	labeledCount    int
}

type predictionRecord struct {
	modelID    string
	confidence float64
}

// New creates a Combiner. targetAccuracy drives when technique flags flip on.
func New(log zerolog.Logger, minConfidence, targetAccuracy float64) *Combiner {
	if minConfidence <= 0 {
		minConfidence = defaultMinConfidence
	}
	return &Combiner{
		log:            log.With().Str("component", "ensemble").Logger(),
		minConfidence:  minConfidence,
		targetAccuracy: targetAccuracy,
		weights:        make(map[string]float64),
		predictions:    make(map[string]predictionRecord),
		rollingAccuracy: 1.0,
	}
}

func (c *Combiner) weightFor(modelID string) float64 {
	w, ok := c.weights[modelID]
	if !ok {
		return initialWeight
	}
	return w
}

// Combine implements §4.13 steps 1-3: weighted confidence average, select
// the highest confidence*weight prediction, and flag if the combined
// confidence falls below the configured minimum (callers decide what to do).
func (c *Combiner) Combine(opinions []Opinion) (Combined, error) {
	if len(opinions) == 0 {
		return Combined{}, errs.New(errs.KindInput, "ensemble", "at least one opinion is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var totalWeight, weightedConfidence, weightedQuality float64
	var best Opinion
	bestScore := -1.0

	for _, op := range opinions {
		w := c.weightFor(op.ModelID)
		totalWeight += w
		weightedConfidence += op.Confidence * w
		weightedQuality += op.ContextQuality * w

		score := op.Confidence * w
		if score > bestScore {
			bestScore = score
			best = op
		}
	}

	finalConfidence := weightedConfidence / totalWeight
	finalQuality := weightedQuality / totalWeight

	predictionID := uuid.NewString()
	c.predictions[predictionID] = predictionRecord{modelID: best.ModelID, confidence: finalConfidence}

	result := Combined{
		PredictionID:    predictionID,
		Prediction:      best.Prediction,
		Confidence:      finalConfidence,
		ContextQuality:  finalQuality,
		BelowConfidence: finalConfidence < c.minConfidence,
	}
	if result.BelowConfidence {
		c.log.Warn().Str("prediction_id", predictionID).Float64("confidence", finalConfidence).
			Msg("combined confidence below minimum")
	}
	return result, nil
}

// RecordFeedback implements §4.13 step 4: nudge the contributing model's
// weight by +/-0.01 (clipped to [0.1, 2.0]) based on whether the prediction
// was correct, and roll the accuracy EMA.
func (c *Combiner) RecordFeedback(predictionID string, wasCorrect bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.predictions[predictionID]
	if !ok {
		return errs.New(errs.KindInput, "ensemble", "unknown prediction id")
	}
	delete(c.predictions, predictionID)

	w := c.weightFor(rec.modelID)
	if wasCorrect {
		w += weightNudge
	} else {
		w -= weightNudge
	}
	c.weights[rec.modelID] = clamp(w, minWeight, maxWeight)

	target := 0.0
	if wasCorrect {
		target = 1.0
	}
	c.rollingAccuracy = c.rollingAccuracy + accuracyAlpha*(target-c.rollingAccuracy)
	c.labeledCount++
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RollingAccuracy reports the current accuracy EMA over labeled predictions.
func (c *Combiner) RollingAccuracy() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAccuracy
}

// Techniques flips additional accuracy techniques on when rolling accuracy
// is below target (§4.13); all flags share the same gate in this
// implementation since the spec names no per-technique threshold.
func (c *Combiner) Techniques() TechniqueFlags {
	c.mu.Lock()
	below := c.labeledCount > 0 && c.rollingAccuracy < c.targetAccuracy
	c.mu.Unlock()

	return TechniqueFlags{
		ContextQualityBoost: below,
		PatternEnhancement:  below,
		AnomalyGating:       below,
		AdaptiveThresholds:  below,
	}
}

// WeightFor exposes a model's current weight, for observability.
func (c *Combiner) WeightFor(modelID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weightFor(modelID)
}
