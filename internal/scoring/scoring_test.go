package scoring

import (
	"math"
	"testing"

	"bayesian-melody-predictor/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatForecast(value, std float64, h int) ml.Forecast {
	f := ml.Forecast{Mean: make([]float64, h), Std: make([]float64, h)}
	for i := 0; i < h; i++ {
		f.Mean[i] = value
		f.Std[i] = std
	}
	return f
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestParse(t *testing.T) {
	s, err := Parse("composite", DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, StrategyComposite, s.Name())

	s, err = Parse(" Moving-Average ", DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, StrategyMovingAverage, s.Name())

	_, err = Parse("", DefaultWeights())
	assert.ErrorIs(t, err, ml.ErrConfiguration)

	_, err = Parse("dtw", DefaultWeights())
	assert.ErrorIs(t, err, ml.ErrConfiguration)

	bad := DefaultWeights()
	bad.VarianceDiff = -0.1
	_, err = Parse("composite", bad)
	assert.ErrorIs(t, err, ml.ErrConfiguration)
}

func TestComposite_Terms(t *testing.T) {
	forecast := ml.Forecast{
		Mean: []float64{0.5, 0.6, 0.7, 0.6},
		Std:  []float64{0.1, 0.1, 0.1, 0.1},
	}
	candidate := []float64{0.5, 0.8, 0.7, 0.3}

	b, err := Composite{Weights: DefaultWeights(), Interval: DefaultInterval}.Score(candidate, forecast)
	require.NoError(t, err)

	// Squared errors 0, 0.04, 0, 0.09.
	assert.InDelta(t, 0.0325, b.PredictionError, 1e-12)

	// Population variances 0.036875 and 0.005.
	assert.InDelta(t, 0.031875, b.VarianceDiff, 1e-12)

	// Deltas (0.3, -0.1, -0.4) vs (0.1, 0.1, -0.1).
	assert.InDelta(t, (0.04+0.04+0.09)/3, b.ContourSimilarity, 1e-12)

	// Band is ±0.196: indices 1 and 3 fall outside.
	assert.InDelta(t, 0.5, b.ConfidenceScore, 1e-12)
	assert.InDelta(t, 0.1, b.UncertaintyPenalty, 1e-12)

	want := 0.30*b.PredictionError + 0.20*b.VarianceDiff + 0.20*b.ContourSimilarity +
		0.15*b.ConfidenceScore + 0.15*b.UncertaintyPenalty
	assert.InDelta(t, want, b.Combined, 1e-12)
	assert.Zero(t, b.MovingAverage)
}

func TestComposite_HorizonOneHasNoContour(t *testing.T) {
	b, err := Composite{Weights: DefaultWeights()}.Score([]float64{0.9}, flatForecast(0.1, 0.01, 1))
	require.NoError(t, err)
	assert.Zero(t, b.ContourSimilarity)
	assert.Zero(t, b.VarianceDiff)
	assert.InDelta(t, 0.64, b.PredictionError, 1e-12)
	assert.Equal(t, 1.0, b.ConfidenceScore)
}

func TestComposite_CloserCandidateScoresLower(t *testing.T) {
	forecast := flatForecast(0.5, 0.02, 8)
	c := Composite{Weights: DefaultWeights(), Interval: DefaultInterval}

	a, err := c.Score(repeat(0.5, 8), forecast)
	require.NoError(t, err)
	b, err := c.Score(repeat(0.95, 8), forecast)
	require.NoError(t, err)

	assert.Less(t, a.PredictionError, b.PredictionError)
	assert.Less(t, a.Combined, b.Combined)
	assert.GreaterOrEqual(t, a.Combined, 0.0)
}

func TestComposite_IsPure(t *testing.T) {
	forecast := ml.Forecast{Mean: []float64{0.2, 0.4, 0.3}, Std: []float64{0.05, 0.1, 0.2}}
	candidate := []float64{0.25, 0.1, 0.6}
	c := Composite{Weights: DefaultWeights(), Interval: DefaultInterval}

	first, err := c.Score(candidate, forecast)
	require.NoError(t, err)
	second, err := c.Score(candidate, forecast)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []float64{0.25, 0.1, 0.6}, candidate)
	assert.Equal(t, []float64{0.2, 0.4, 0.3}, forecast.Mean)
}

func TestMovingAverage(t *testing.T) {
	forecast := flatForecast(0.5, 0.1, 4)
	candidate := []float64{0.2, 0.5, 0.8, 0.5}

	b, err := MovingAverage{}.Score(candidate, forecast)
	require.NoError(t, err)
	// Moving averages 0.5, 0.6 vs 0.5, 0.5.
	assert.InDelta(t, 0.005, b.MovingAverage, 1e-12)
	assert.Equal(t, b.MovingAverage, b.Combined)
	assert.Zero(t, b.PredictionError)
}

func TestMovingAverage_ShortHorizon(t *testing.T) {
	for _, h := range []int{1, 2} {
		_, err := MovingAverage{}.Score(repeat(0.5, h), flatForecast(0.5, 0.1, h))
		assert.ErrorIs(t, err, ml.ErrConfiguration, "horizon %d", h)
	}
}

func TestScore_ShapeErrors(t *testing.T) {
	c := Composite{Weights: DefaultWeights()}
	tests := []struct {
		name      string
		candidate []float64
		forecast  ml.Forecast
	}{
		{"length mismatch", repeat(0.5, 3), flatForecast(0.5, 0.1, 4)},
		{"empty forecast", nil, ml.Forecast{}},
		{"std mismatch", repeat(0.5, 2), ml.Forecast{Mean: []float64{0.1, 0.2}, Std: []float64{0.1}}},
		{"nan candidate", []float64{0.1, math.NaN()}, flatForecast(0.5, 0.1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Score(tt.candidate, tt.forecast)
			assert.ErrorIs(t, err, ml.ErrInputShape)
			_, err = MovingAverage{}.Score(tt.candidate, tt.forecast)
			assert.ErrorIs(t, err, ml.ErrInputShape)
		})
	}
}

func TestIntervalCoverage_InclusiveBounds(t *testing.T) {
	forecast := ml.Forecast{Mean: []float64{0.5, 0.5}, Std: []float64{0.1, 0.1}}
	assert.Equal(t, 1.0, IntervalCoverage([]float64{0.5, 0.5}, forecast, 1.96))
	assert.Equal(t, 0.5, IntervalCoverage([]float64{0.5, 0.9}, forecast, 1.96))
	assert.Equal(t, 0.0, IntervalCoverage(nil, ml.Forecast{}, 1.96))
}
