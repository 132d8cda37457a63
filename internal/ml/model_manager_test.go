package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelManager_AddActivateRollback(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	assert.Nil(t, mm.GetCurrentVersion())
	assert.Equal(t, "fallback.json", mm.ActivePath("fallback.json"))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v1, p1 := mm.NewVersionPath(now)
	_, err = mm.AddVersion(v1, p1, ModelMetrics{TrainingPairs: 10, WindowSize: 32})
	require.NoError(t, err)

	v2, p2 := mm.NewVersionPath(now)
	assert.NotEqual(t, v1, v2)
	_, err = mm.AddVersion(v2, p2, ModelMetrics{TrainingPairs: 20, WindowSize: 32})
	require.NoError(t, err)

	require.NoError(t, mm.ActivateVersion(v2))
	require.NotNil(t, mm.GetCurrentVersion())
	assert.Equal(t, v2, mm.GetCurrentVersion().Version)
	assert.Equal(t, p2, mm.ActivePath("fallback.json"))

	require.NoError(t, mm.Rollback())
	assert.Equal(t, v1, mm.GetCurrentVersion().Version)

	assert.Error(t, mm.Rollback())

	versions := mm.ListVersions()
	require.Len(t, versions, 2)
	assert.Equal(t, v2, versions[0].Version)
	assert.True(t, versions[1].IsActive)
	assert.False(t, versions[0].IsActive)
}

func TestModelManager_Persists(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)

	v, p := mm.NewVersionPath(time.Now())
	_, err = mm.AddVersion(v, p, ModelMetrics{FittedPoints: 200, LengthScale: 0.2})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion(v))

	reopened, err := NewModelManager(dir)
	require.NoError(t, err)
	current := reopened.GetCurrentVersion()
	require.NotNil(t, current)
	assert.Equal(t, v, current.Version)
	assert.Equal(t, 200, current.Metrics.FittedPoints)
}

func TestModelManager_Errors(t *testing.T) {
	mm, err := NewModelManager(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, mm.ActivateVersion("missing"))
	assert.Error(t, mm.Rollback())

	_, err = mm.AddVersion("v1", "a.json", ModelMetrics{})
	require.NoError(t, err)
	_, err = mm.AddVersion("v1", "b.json", ModelMetrics{})
	assert.Error(t, err)
}

func TestLoadActive(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "fallback.json")

	r, _ := testRegressor(t, 3)
	cfg := RegressorConfig{WindowSize: 3, Kernel: r.cfg.Kernel}

	_, _, err := LoadActive(dir, fallback, cfg, nil)
	assert.ErrorIs(t, err, ErrModelNotTrained)

	_, err = r.Train(context.Background(), melodyCorpus(2, 12), TrainOptions{BatchSize: 20, Epochs: 1, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, r.Save(fallback))

	loaded, version, err := LoadActive(dir, fallback, cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, version)
	assert.True(t, loaded.Trained())

	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	v, p := mm.NewVersionPath(time.Now())
	require.NoError(t, r.Save(p))
	_, err = mm.AddVersion(v, p, ModelMetrics{WindowSize: 3})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion(v))

	loaded, version, err = LoadActive(dir, fallback, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, v, version)
	assert.Equal(t, r.Info().LengthScale, loaded.Info().LengthScale)

	// A mismatched window size is a configuration problem, not a missing model
	_, _, err = LoadActive(dir, fallback, RegressorConfig{WindowSize: 4, Kernel: r.cfg.Kernel}, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestReloadActive(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "fallback.json")
	window := []float64{0.2, 0.5, 0.8}

	first, _ := testRegressor(t, 3)
	_, err := first.Train(context.Background(), melodyCorpus(2, 12), TrainOptions{BatchSize: 20, Epochs: 1, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, first.Save(fallback))

	serving, version, err := LoadActive(dir, fallback, RegressorConfig{WindowSize: 3, Kernel: first.cfg.Kernel}, nil)
	require.NoError(t, err)
	assert.Empty(t, version)

	second, _ := testRegressor(t, 3)
	_, err = second.Train(context.Background(), melodyCorpus(3, 7), TrainOptions{BatchSize: 6, Epochs: 1, Seed: 2})
	require.NoError(t, err)
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	v, p := mm.NewVersionPath(time.Now())
	require.NoError(t, second.Save(p))
	_, err = mm.AddVersion(v, p, ModelMetrics{WindowSize: 3})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion(v))

	version, err = ReloadActive(serving, dir, fallback)
	require.NoError(t, err)
	assert.Equal(t, v, version)
	want, _, err := second.Predict(window)
	require.NoError(t, err)
	got, _, err := serving.Predict(window)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A missing artifact leaves the serving model in place
	require.NoError(t, os.Remove(p))
	_, err = ReloadActive(serving, dir, fallback)
	assert.ErrorIs(t, err, ErrModelNotTrained)
	got, _, err = serving.Predict(window)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
