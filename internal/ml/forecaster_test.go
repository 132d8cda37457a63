package ml

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecaster_RollsMeansForward(t *testing.T) {
	stub := &stubPredictor{w: 3, step: 0.1, std: 0.05}
	metrics := &MockMetrics{}
	f := NewForecaster(stub, metrics)

	out, err := f.Forecast(context.Background(), []float64{0.9, 0.1, 0.2, 0.3}, 4)
	require.NoError(t, err)
	require.Equal(t, 4, out.Len())
	require.Len(t, out.Std, 4)

	assert.InDeltaSlice(t, []float64{0.4, 0.5, 0.6, 0.7}, out.Mean, 1e-12)
	assert.Equal(t, []float64{0.05, 0.05, 0.05, 0.05}, out.Std)

	// Only the trailing window of the seed is used, then predicted means.
	require.Len(t, stub.seen, 4)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, stub.seen[0])
	assert.InDeltaSlice(t, []float64{0.2, 0.3, 0.4}, stub.seen[1], 1e-12)
	assert.InDeltaSlice(t, []float64{0.4, 0.5, 0.6}, stub.seen[3], 1e-12)
	assert.Equal(t, 1, metrics.forecasts)
}

func TestForecaster_DoesNotMutateSeed(t *testing.T) {
	stub := &stubPredictor{w: 2, step: 1}
	f := NewForecaster(stub, nil)
	seed := []float64{0.1, 0.2}

	_, err := f.Forecast(context.Background(), seed, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, seed)
}

func TestForecaster_InputErrors(t *testing.T) {
	f := NewForecaster(&stubPredictor{w: 4}, nil)

	_, err := f.Forecast(context.Background(), []float64{0.1, 0.2, 0.3}, 2)
	assert.ErrorIs(t, err, ErrInputShape)

	_, err = f.Forecast(context.Background(), []float64{0.1, 0.2, 0.3, 0.4}, 0)
	assert.ErrorIs(t, err, ErrInputShape)
}

func TestForecaster_UntrainedRegressor(t *testing.T) {
	r, _ := testRegressor(t, 4)
	f := NewForecaster(r, nil)

	_, err := f.Forecast(context.Background(), []float64{0.1, 0.2, 0.3, 0.4}, 2)
	assert.ErrorIs(t, err, ErrModelNotTrained)
}

func TestForecaster_DeadlineExceeded(t *testing.T) {
	metrics := &MockMetrics{}
	f := NewForecaster(&stubPredictor{w: 2}, metrics)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.Forecast(ctx, []float64{0.1, 0.2}, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, metrics.timeouts)
}

func TestForecaster_DeterministicWithTrainedModel(t *testing.T) {
	r, _ := testRegressor(t, 4)
	_, err := r.Train(context.Background(), melodyCorpus(3, 12), TrainOptions{BatchSize: 100, Epochs: 1, Seed: 42})
	require.NoError(t, err)

	f := NewForecaster(r, nil)
	seed := []float64{0.2, 0.4, 0.6, 0.5, 0.4}

	first, err := f.Forecast(context.Background(), seed, 6)
	require.NoError(t, err)
	second, err := f.Forecast(context.Background(), seed, 6)
	require.NoError(t, err)

	assert.Equal(t, 6, first.Len())
	assert.Equal(t, first, second)
	for _, s := range first.Std {
		assert.GreaterOrEqual(t, s, 0.0)
	}
}
