package ensemble

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCombiner() *Combiner {
	return New(zerolog.Nop(), 0.7, 0.8)
}

func TestCombineSelectsHighestWeightedConfidencePrediction(t *testing.T) {
	c := newTestCombiner()
	result, err := c.Combine([]Opinion{
		{ModelID: "a", Prediction: "buy", Confidence: 0.6},
		{ModelID: "b", Prediction: "sell", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.Equal(t, "sell", result.Prediction)
}

func TestCombineFlagsBelowMinConfidenceButStillReturns(t *testing.T) {
	c := newTestCombiner()
	result, err := c.Combine([]Opinion{{ModelID: "a", Prediction: "hold", Confidence: 0.3}})
	require.NoError(t, err)
	require.True(t, result.BelowConfidence)
	require.Equal(t, "hold", result.Prediction, "callers decide what to do; the combiner still returns the result")
}

// §4.13 — weight nudges are bounded to [0.1, 2.0].
func TestRecordFeedbackNudgesWeightWithinBounds(t *testing.T) {
	c := newTestCombiner()
	for i := 0; i < 500; i++ {
		result, err := c.Combine([]Opinion{{ModelID: "a", Prediction: "x", Confidence: 0.9}})
		require.NoError(t, err)
		require.NoError(t, c.RecordFeedback(result.PredictionID, true))
	}
	require.LessOrEqual(t, c.WeightFor("a"), 2.0)

	for i := 0; i < 500; i++ {
		result, err := c.Combine([]Opinion{{ModelID: "b", Prediction: "x", Confidence: 0.9}})
		require.NoError(t, err)
		require.NoError(t, c.RecordFeedback(result.PredictionID, false))
	}
	require.GreaterOrEqual(t, c.WeightFor("b"), 0.1)
}

func TestRecordFeedbackRejectsUnknownPredictionID(t *testing.T) {
	c := newTestCombiner()
	err := c.RecordFeedback("does-not-exist", true)
	require.Error(t, err)
}

func TestTechniquesActivateWhenAccuracyBelowTarget(t *testing.T) {
	c := newTestCombiner()
	require.False(t, c.Techniques().ContextQualityBoost, "no labeled feedback yet")

	for i := 0; i < 30; i++ {
		result, err := c.Combine([]Opinion{{ModelID: "a", Prediction: "x", Confidence: 0.9}})
		require.NoError(t, err)
		require.NoError(t, c.RecordFeedback(result.PredictionID, false))
	}
	require.True(t, c.Techniques().ContextQualityBoost)
	require.True(t, c.Techniques().AnomalyGating)
}

func TestCombineRejectsEmptyOpinions(t *testing.T) {
	c := newTestCombiner()
	_, err := c.Combine(nil)
	require.Error(t, err)
}
