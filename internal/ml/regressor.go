package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/gp"

	"github.com/rs/zerolog/log"
)

const artifactFormatVersion = 1

// RegressorConfig is fixed at construction. Kernel hyperparameters are not
// changed by training.
type RegressorConfig struct {
	WindowSize int
	Kernel     gp.KernelConfig
}

// TrainOptions controls the epoch/batch protocol.
type TrainOptions struct {
	BatchSize int
	Epochs    int
	Seed      int64
}

// TrainStats describes a completed training run.
type TrainStats struct {
	Pairs            int           `json:"pairs"`
	Sequences        int           `json:"sequences"`
	DroppedSequences int           `json:"dropped_sequences"`
	Epochs           int           `json:"epochs"`
	Batches          int           `json:"batches"`
	EmptyBatches     int           `json:"empty_batches"`
	FittedPoints     int           `json:"fitted_points"`
	Duration         time.Duration `json:"duration"`
}

// ModelInfo summarises the currently fitted model.
type ModelInfo struct {
	Trained               bool      `json:"trained"`
	WindowSize            int       `json:"window_size"`
	LengthScale           float64   `json:"length_scale"`
	LogMarginalLikelihood float64   `json:"log_marginal_likelihood"`
	FittedPoints          int       `json:"fitted_points"`
	TrainedAt             time.Time `json:"trained_at"`
}

type modelArtifact struct {
	FormatVersion int       `json:"format_version"`
	WindowSize    int       `json:"window_size"`
	TrainedAt     time.Time `json:"trained_at"`
	State         gp.State  `json:"state"`
}

// Regressor is a Gaussian-process next-value model over fixed-size windows.
type Regressor struct {
	mu        sync.RWMutex
	cfg       RegressorConfig
	model     *gp.Regressor
	trainedAt time.Time
	metrics   MetricsInterface
}

// NewRegressor validates cfg and returns an untrained regressor. metrics may be nil.
func NewRegressor(cfg RegressorConfig, metrics MetricsInterface) (*Regressor, error) {
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrConfiguration, cfg.WindowSize)
	}
	if err := cfg.Kernel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &Regressor{cfg: cfg, metrics: metrics}, nil
}

// WindowSize returns the context length the regressor was built for.
func (r *Regressor) WindowSize() int {
	return r.cfg.WindowSize
}

// Trained reports whether a fit or load has occurred.
func (r *Regressor) Trained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model != nil
}

// Info returns a summary of the fitted model.
func (r *Regressor) Info() ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := ModelInfo{WindowSize: r.cfg.WindowSize, LengthScale: r.cfg.Kernel.LengthScale}
	if r.model == nil {
		return info
	}
	info.Trained = true
	info.LengthScale = r.model.LengthScale()
	info.LogMarginalLikelihood = r.model.LogMarginalLikelihood()
	info.FittedPoints = r.model.NumPoints()
	info.TrainedAt = r.trainedAt
	return info
}

// Train windows the corpus and runs the batched refit protocol: each epoch
// shuffles the pairs with a generator seeded by opts.Seed, splits them into
// contiguous batches and fits the model to each batch in turn.
//
// Every batch fit fully replaces the previous one. The resulting model is the
// fit of the final batch of the final epoch; earlier batches only matter
// through the shuffle order. This is intentional and must be kept when
// retuning batch size or epochs.
//
// On error the previously fitted model, if any, is left in place.
func (r *Regressor) Train(ctx context.Context, corpus []dataset.Sequence, opts TrainOptions) (TrainStats, error) {
	if opts.BatchSize <= 0 {
		return TrainStats{}, fmt.Errorf("%w: batch size must be positive, got %d", ErrConfiguration, opts.BatchSize)
	}
	if opts.Epochs <= 0 {
		return TrainStats{}, fmt.Errorf("%w: epochs must be positive, got %d", ErrConfiguration, opts.Epochs)
	}

	pairs, wstats, err := dataset.BuildPairs(corpus, r.cfg.WindowSize)
	if err != nil {
		return TrainStats{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if wstats.Dropped > 0 {
		log.Warn().
			Int("dropped", wstats.Dropped).
			Int("sequences", wstats.Sequences).
			Int("window_size", r.cfg.WindowSize).
			Msg("Sequences too short for window were dropped")
	}

	stats := TrainStats{
		Pairs:            len(pairs),
		Sequences:        wstats.Sequences,
		DroppedSequences: wstats.Dropped,
	}
	if len(pairs) == 0 {
		return stats, fmt.Errorf("%w: no training pairs from %d sequences with window size %d",
			ErrInsufficientData, wstats.Sequences, r.cfg.WindowSize)
	}

	start := time.Now()
	model := gp.New(r.cfg.Kernel)
	totalBatches := (len(pairs) + opts.BatchSize - 1) / opts.BatchSize

	log.Info().
		Int("pairs", len(pairs)).
		Int("batch_size", opts.BatchSize).
		Int("epochs", opts.Epochs).
		Int64("seed", opts.Seed).
		Msg("Training started")

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		log.Info().Int("epoch", epoch+1).Int("epochs", opts.Epochs).Msg("Epoch started")

		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })

		for b := 0; b < totalBatches; b++ {
			if err := ctx.Err(); err != nil {
				return stats, fmt.Errorf("training cancelled at epoch %d batch %d: %w", epoch+1, b+1, err)
			}

			lo := b * opts.BatchSize
			hi := lo + opts.BatchSize
			if hi > len(pairs) {
				hi = len(pairs)
			}
			batch := pairs[lo:hi]
			stats.Batches++

			if len(batch) == 0 {
				stats.EmptyBatches++
				log.Warn().Int("epoch", epoch+1).Int("batch", b+1).Msg("Skipping empty batch")
				continue
			}

			x := make([][]float64, len(batch))
			y := make([]float64, len(batch))
			for i, p := range batch {
				x[i] = p.Window
				y[i] = p.Next
			}
			if err := model.Fit(x, y); err != nil {
				return stats, fmt.Errorf("fit epoch %d batch %d: %w", epoch+1, b+1, err)
			}
			if r.metrics != nil {
				r.metrics.MLTrainingBatchesInc()
			}

			if (b+1)%100 == 0 {
				log.Info().
					Int("epoch", epoch+1).
					Int("batch", b+1).
					Int("batches", totalBatches).
					Msg("Batch completed")
			}
		}
		stats.Epochs++
	}

	if !model.Fitted() {
		return stats, fmt.Errorf("%w: every batch was empty", ErrInsufficientData)
	}

	r.mu.Lock()
	r.model = model
	r.trainedAt = time.Now().UTC()
	r.mu.Unlock()
	stats.FittedPoints = model.NumPoints()
	stats.Duration = time.Since(start)

	if r.metrics != nil {
		r.metrics.MLModelAgeSet(0)
	}

	log.Info().
		Int("pairs", stats.Pairs).
		Int("batches", stats.Batches).
		Int("fitted_points", stats.FittedPoints).
		Float64("length_scale", model.LengthScale()).
		Float64("log_marginal_likelihood", model.LogMarginalLikelihood()).
		Dur("duration", stats.Duration).
		Msg("Training completed")

	return stats, nil
}

// Predict returns the predictive mean and standard deviation for window.
func (r *Regressor) Predict(window []float64) (float64, float64, error) {
	if r == nil {
		return 0, 0, fmt.Errorf("%w: regressor is nil", ErrModelNotTrained)
	}

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	r.mu.RLock()
	model := r.model
	r.mu.RUnlock()

	if model == nil {
		r.recordFailure()
		return 0, 0, ErrModelNotTrained
	}
	if len(window) != r.cfg.WindowSize {
		r.recordFailure()
		return 0, 0, fmt.Errorf("%w: window has %d values, expected %d", ErrInputShape, len(window), r.cfg.WindowSize)
	}
	for i, v := range window {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			r.recordFailure()
			return 0, 0, fmt.Errorf("%w: window value %d is not finite", ErrInputShape, i)
		}
	}

	mean, std, err := model.Predict(window)
	if err != nil {
		r.recordFailure()
		return 0, 0, fmt.Errorf("gaussian process predict: %w", err)
	}

	if r.metrics != nil {
		r.metrics.MLPredictionsInc()
		r.metrics.MLUncertaintyObserve(std)
	}
	return mean, std, nil
}

// Save writes the fitted model to path atomically.
func (r *Regressor) Save(path string) error {
	r.mu.RLock()
	model := r.model
	trainedAt := r.trainedAt
	r.mu.RUnlock()

	if model == nil {
		return ErrModelNotTrained
	}

	state, err := model.State()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelPersistence, err)
	}
	data, err := json.Marshal(modelArtifact{
		FormatVersion: artifactFormatVersion,
		WindowSize:    r.cfg.WindowSize,
		TrainedAt:     trainedAt,
		State:         state,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal model: %v", ErrModelPersistence, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create model directory: %v", ErrModelPersistence, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: write model: %v", ErrModelPersistence, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename model: %v", ErrModelPersistence, err)
	}

	log.Info().Str("model_path", path).Int("bytes", len(data)).Msg("Model saved")
	return nil
}

// Load restores a model saved by Save. It returns false with no error when
// nothing exists at path, leaving the regressor untouched.
func (r *Regressor) Load(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("model_path", path).Msg("Model not found")
			return false, nil
		}
		return false, fmt.Errorf("%w: read model: %v", ErrModelPersistence, err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return false, fmt.Errorf("%w: decode model: %v", ErrModelPersistence, err)
	}
	if artifact.FormatVersion != artifactFormatVersion {
		return false, fmt.Errorf("%w: unsupported format version %d", ErrModelPersistence, artifact.FormatVersion)
	}
	if artifact.WindowSize != r.cfg.WindowSize {
		return false, fmt.Errorf("%w: model window size %d does not match configured %d",
			ErrConfiguration, artifact.WindowSize, r.cfg.WindowSize)
	}

	model, err := gp.Restore(artifact.State)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrModelPersistence, err)
	}
	if model.Dim() != r.cfg.WindowSize {
		return false, fmt.Errorf("%w: model input dimension %d does not match window size %d",
			ErrModelPersistence, model.Dim(), r.cfg.WindowSize)
	}

	r.mu.Lock()
	r.model = model
	r.trainedAt = artifact.TrainedAt
	r.mu.Unlock()

	if r.metrics != nil && !artifact.TrainedAt.IsZero() {
		r.metrics.MLModelAgeSet(time.Since(artifact.TrainedAt).Seconds())
	}

	log.Info().
		Str("model_path", path).
		Int("fitted_points", model.NumPoints()).
		Float64("length_scale", model.LengthScale()).
		Msg("Model loaded")
	return true, nil
}

func (r *Regressor) recordFailure() {
	if r.metrics != nil {
		r.metrics.MLFailuresInc()
	}
}
