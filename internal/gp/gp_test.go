package gp

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineData(n, dim int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, dim)
		for j := range row {
			row[j] = 0.5 + 0.4*math.Sin(float64(i+j)*0.3)
		}
		x[i] = row
		y[i] = 0.5 + 0.4*math.Sin(float64(i+dim)*0.3)
	}
	return x, y
}

func TestRegressor_PredictBeforeFit(t *testing.T) {
	r := New(DefaultKernelConfig())
	_, _, err := r.Predict([]float64{0.1, 0.2})
	assert.True(t, errors.Is(err, ErrNotFitted))
	assert.False(t, r.Fitted())
}

func TestRegressor_FitEmpty(t *testing.T) {
	r := New(DefaultKernelConfig())
	err := r.Fit(nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyData))
}

func TestRegressor_FitRaggedRows(t *testing.T) {
	r := New(DefaultKernelConfig())
	err := r.Fit([][]float64{{0.1, 0.2}, {0.3}}, []float64{0.1, 0.2})
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestRegressor_InterpolatesTrainingPoints(t *testing.T) {
	x, y := sineData(30, 4)
	r := New(DefaultKernelConfig())
	require.NoError(t, r.Fit(x, y))
	assert.True(t, r.Fitted())
	assert.Equal(t, 30, r.NumPoints())
	assert.Equal(t, 4, r.Dim())

	for i := 0; i < len(x); i += 7 {
		mean, std, err := r.Predict(x[i])
		require.NoError(t, err)
		assert.InDelta(t, y[i], mean, 1e-3, "row %d", i)
		assert.GreaterOrEqual(t, std, 0.0)
		assert.Less(t, std, 0.05)
	}
}

func TestRegressor_UncertaintyGrowsAwayFromData(t *testing.T) {
	x, y := sineData(20, 3)
	r := New(DefaultKernelConfig())
	require.NoError(t, r.Fit(x, y))

	_, nearStd, err := r.Predict(x[5])
	require.NoError(t, err)
	_, farStd, err := r.Predict([]float64{50, -50, 50})
	require.NoError(t, err)
	assert.Greater(t, farStd, nearStd)
}

func TestRegressor_DimensionMismatch(t *testing.T) {
	x, y := sineData(10, 3)
	r := New(DefaultKernelConfig())
	require.NoError(t, r.Fit(x, y))
	_, _, err := r.Predict([]float64{0.1})
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestRegressor_ConstantTargets(t *testing.T) {
	x := [][]float64{{0.5, 0.5}, {0.5, 0.5}, {0.4, 0.5}}
	y := []float64{0.5, 0.5, 0.5}
	r := New(DefaultKernelConfig())
	require.NoError(t, r.Fit(x, y))

	mean, _, err := r.Predict([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mean, 1e-9)
}

func TestRegressor_FitReplacesPreviousFit(t *testing.T) {
	x, y := sineData(12, 2)
	r := New(DefaultKernelConfig())
	require.NoError(t, r.Fit(x, y))
	require.NoError(t, r.Fit(x[:3], y[:3]))
	assert.Equal(t, 3, r.NumPoints())
}

func TestRegressor_LengthScaleWithinBounds(t *testing.T) {
	cfg := DefaultKernelConfig()
	cfg.LengthScaleBounds = [2]float64{0.05, 2}
	cfg.LengthScale = 0.2
	x, y := sineData(25, 4)
	r := New(cfg)
	require.NoError(t, r.Fit(x, y))
	assert.GreaterOrEqual(t, r.LengthScale(), 0.05-1e-12)
	assert.LessOrEqual(t, r.LengthScale(), 2+1e-12)
	assert.False(t, math.IsInf(r.LogMarginalLikelihood(), 0))
}

func TestRegressor_StateRoundTrip(t *testing.T) {
	x, y := sineData(18, 4)
	r := New(DefaultKernelConfig())
	require.NoError(t, r.Fit(x, y))

	state, err := r.State()
	require.NoError(t, err)
	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	restored, err := Restore(decoded)
	require.NoError(t, err)

	probe := []float64{0.31, 0.52, 0.77, 0.4}
	m1, s1, err := r.Predict(probe)
	require.NoError(t, err)
	m2, s2, err := restored.Predict(probe)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
	assert.Equal(t, s1, s2)
}

func TestRestore_InvalidState(t *testing.T) {
	_, err := Restore(State{})
	assert.True(t, errors.Is(err, ErrEmptyData))

	_, err = Restore(State{X: [][]float64{{0.1}}, YNorm: []float64{0.1, 0.2}})
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestKernelConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *KernelConfig)
		wantErr bool
	}{
		{"default", func(c *KernelConfig) {}, false},
		{"inverted bounds", func(c *KernelConfig) { c.LengthScaleBounds = [2]float64{10, 1} }, true},
		{"zero lower bound", func(c *KernelConfig) { c.LengthScaleBounds[0] = 0 }, true},
		{"initial outside bounds", func(c *KernelConfig) { c.LengthScale = 1e3 }, true},
		{"negative alpha", func(c *KernelConfig) { c.Alpha = -1 }, true},
		{"negative restarts", func(c *KernelConfig) { c.Restarts = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultKernelConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
