package ml

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Forecast holds per-step predictive means and standard deviations.
type Forecast struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Len returns the forecast horizon.
func (f Forecast) Len() int { return len(f.Mean) }

// Forecaster rolls a Predictor forward by feeding predicted means back into
// its context window.
type Forecaster struct {
	predictor Predictor
	metrics   MetricsInterface
}

// NewForecaster wraps p. metrics may be nil.
func NewForecaster(p Predictor, metrics MetricsInterface) *Forecaster {
	return &Forecaster{predictor: p, metrics: metrics}
}

// WindowSize returns the context length of the underlying predictor.
func (f *Forecaster) WindowSize() int { return f.predictor.WindowSize() }

// Forecast predicts horizon steps after seed. Only the last WindowSize values
// of seed are used. Step i conditions on the predicted means of steps before
// it, never on sampled values, so the result is deterministic for a fixed
// model and seed.
func (f *Forecaster) Forecast(ctx context.Context, seed []float64, horizon int) (Forecast, error) {
	w := f.predictor.WindowSize()
	if len(seed) < w {
		return Forecast{}, fmt.Errorf("%w: seed has %d values, need at least %d", ErrInputShape, len(seed), w)
	}
	if horizon < 1 {
		return Forecast{}, fmt.Errorf("%w: horizon must be at least 1, got %d", ErrInputShape, horizon)
	}

	start := time.Now()

	window := make([]float64, w, w+horizon)
	copy(window, seed[len(seed)-w:])

	out := Forecast{
		Mean: make([]float64, horizon),
		Std:  make([]float64, horizon),
	}
	for i := 0; i < horizon; i++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && f.metrics != nil {
				f.metrics.MLTimeoutsInc()
			}
			return Forecast{}, fmt.Errorf("forecast step %d: %w", i, err)
		}

		mean, std, err := f.predictor.Predict(window[i : i+w])
		if err != nil {
			return Forecast{}, fmt.Errorf("forecast step %d: %w", i, err)
		}
		out.Mean[i] = mean
		out.Std[i] = std
		window = append(window, mean)
	}

	if f.metrics != nil {
		f.metrics.MLForecastLatencyObserve(time.Since(start).Seconds())
	}
	return out, nil
}
