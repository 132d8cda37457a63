// Package scoring compares candidate continuations against a forecast.
// Scores are nonnegative and lower is better. Every strategy is a pure
// function of its inputs.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"bayesian-melody-predictor/internal/ml"

	"gonum.org/v1/gonum/stat"
)

const (
	StrategyComposite     = "composite"
	StrategyMovingAverage = "moving-average"

	// DefaultInterval is the z value of the two-sided 95% band.
	DefaultInterval = 1.96

	movingAverageWidth = 3
)

// Breakdown carries the individual terms behind a score. Terms a strategy
// does not compute are left at zero.
type Breakdown struct {
	PredictionError    float64 `json:"prediction_error"`
	VarianceDiff       float64 `json:"variance_diff"`
	ContourSimilarity  float64 `json:"contour_similarity"`
	ConfidenceScore    float64 `json:"confidence_score"`
	UncertaintyPenalty float64 `json:"uncertainty_penalty"`
	MovingAverage      float64 `json:"moving_average"`
	Combined           float64 `json:"combined"`
}

// Strategy scores one candidate against a forecast of the same length.
type Strategy interface {
	Name() string
	Score(candidate []float64, forecast ml.Forecast) (Breakdown, error)
}

// Weights for the five composite terms.
type Weights struct {
	PredictionError    float64 `yaml:"prediction_error" json:"prediction_error"`
	VarianceDiff       float64 `yaml:"variance_diff" json:"variance_diff"`
	ContourSimilarity  float64 `yaml:"contour_similarity" json:"contour_similarity"`
	ConfidenceScore    float64 `yaml:"confidence_score" json:"confidence_score"`
	UncertaintyPenalty float64 `yaml:"uncertainty_penalty" json:"uncertainty_penalty"`
}

func DefaultWeights() Weights {
	return Weights{
		PredictionError:    0.30,
		VarianceDiff:       0.20,
		ContourSimilarity:  0.20,
		ConfidenceScore:    0.15,
		UncertaintyPenalty: 0.15,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"prediction_error":    w.PredictionError,
		"variance_diff":       w.VarianceDiff,
		"contour_similarity":  w.ContourSimilarity,
		"confidence_score":    w.ConfidenceScore,
		"uncertainty_penalty": w.UncertaintyPenalty,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %s must be a finite non-negative number, got %v", name, v)
		}
	}
	return nil
}

// Parse resolves a strategy by name. There is no default: an empty or
// unknown name is a configuration error.
func Parse(name string, weights Weights) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyComposite:
		if err := weights.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ml.ErrConfiguration, err)
		}
		return Composite{Weights: weights, Interval: DefaultInterval}, nil
	case StrategyMovingAverage:
		return MovingAverage{}, nil
	case "":
		return nil, fmt.Errorf("%w: scoring strategy must be set (%s or %s)",
			ml.ErrConfiguration, StrategyComposite, StrategyMovingAverage)
	default:
		return nil, fmt.Errorf("%w: unsupported scoring strategy %q", ml.ErrConfiguration, name)
	}
}

// Composite is the five-term weighted score.
type Composite struct {
	Weights  Weights
	Interval float64
}

func (Composite) Name() string { return StrategyComposite }

func (c Composite) Score(candidate []float64, forecast ml.Forecast) (Breakdown, error) {
	if err := checkAligned(candidate, forecast); err != nil {
		return Breakdown{}, err
	}

	z := c.Interval
	if z <= 0 {
		z = DefaultInterval
	}

	b := Breakdown{
		PredictionError:    PredictionError(candidate, forecast.Mean),
		VarianceDiff:       math.Abs(popVariance(candidate) - popVariance(forecast.Mean)),
		ContourSimilarity:  ContourSimilarity(candidate, forecast.Mean),
		ConfidenceScore:    1 - IntervalCoverage(candidate, forecast, z),
		UncertaintyPenalty: stat.Mean(forecast.Std, nil),
	}
	w := c.Weights
	b.Combined = w.PredictionError*b.PredictionError +
		w.VarianceDiff*b.VarianceDiff +
		w.ContourSimilarity*b.ContourSimilarity +
		w.ConfidenceScore*b.ConfidenceScore +
		w.UncertaintyPenalty*b.UncertaintyPenalty
	return b, nil
}

// MovingAverage compares 3-point moving averages of candidate and forecast
// mean. Horizons shorter than 3 have no moving average and are rejected.
type MovingAverage struct{}

func (MovingAverage) Name() string { return StrategyMovingAverage }

func (MovingAverage) Score(candidate []float64, forecast ml.Forecast) (Breakdown, error) {
	if err := checkAligned(candidate, forecast); err != nil {
		return Breakdown{}, err
	}
	if len(candidate) < movingAverageWidth {
		return Breakdown{}, fmt.Errorf("%w: %s strategy needs horizon >= %d, got %d",
			ml.ErrConfiguration, StrategyMovingAverage, movingAverageWidth, len(candidate))
	}

	score := PredictionError(smooth(candidate), smooth(forecast.Mean))
	return Breakdown{MovingAverage: score, Combined: score}, nil
}

// PredictionError is the mean squared difference of two aligned series.
func PredictionError(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a))
}

// ContourSimilarity is the mean squared difference of first differences.
// It is 0 when there are fewer than two points.
func ContourSimilarity(a, b []float64) float64 {
	if len(a) < 2 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(a); i++ {
		d := (a[i+1] - a[i]) - (b[i+1] - b[i])
		sum += d * d
	}
	return sum / float64(len(a)-1)
}

// IntervalCoverage is the fraction of candidate values inside
// mean ± z·std of the forecast, bounds inclusive.
func IntervalCoverage(candidate []float64, forecast ml.Forecast, z float64) float64 {
	if len(candidate) == 0 {
		return 0
	}
	inside := 0
	for i, v := range candidate {
		lo := forecast.Mean[i] - z*forecast.Std[i]
		hi := forecast.Mean[i] + z*forecast.Std[i]
		if v >= lo && v <= hi {
			inside++
		}
	}
	return float64(inside) / float64(len(candidate))
}

// popVariance is zero for a single value; gonum divides by n-1 first.
func popVariance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.PopVariance(x, nil)
}

func smooth(x []float64) []float64 {
	out := make([]float64, len(x)-movingAverageWidth+1)
	for i := range out {
		out[i] = (x[i] + x[i+1] + x[i+2]) / movingAverageWidth
	}
	return out
}

func checkAligned(candidate []float64, forecast ml.Forecast) error {
	if len(forecast.Mean) == 0 {
		return fmt.Errorf("%w: empty forecast", ml.ErrInputShape)
	}
	if len(forecast.Std) != len(forecast.Mean) {
		return fmt.Errorf("%w: forecast has %d means and %d stds", ml.ErrInputShape, len(forecast.Mean), len(forecast.Std))
	}
	if len(candidate) != len(forecast.Mean) {
		return fmt.Errorf("%w: candidate has %d values, forecast horizon is %d", ml.ErrInputShape, len(candidate), len(forecast.Mean))
	}
	for i, v := range candidate {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: candidate value %d is not finite", ml.ErrInputShape, i)
		}
	}
	return nil
}
