// Package selection picks the candidate continuation that best matches the
// model's own forecast for a seed window.
//
// One forecast is computed per (seed window, horizon) and shared by every
// candidate in a request. Concurrent requests for the same seed share a single
// in-flight forecast, and recent forecasts are cached until Reset is called.
// The shared forecast runs detached from any one caller's context, so a
// cancelled request never fails the others waiting on it.
package selection

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/scoring"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Forecaster is satisfied by *ml.Forecaster.
type Forecaster interface {
	Forecast(ctx context.Context, seed []float64, horizon int) (ml.Forecast, error)
	WindowSize() int
}

// MetricsInterface defines the metrics recorded per selection.
type MetricsInterface interface {
	SelectionsInc(strategy string)
	SelectionLatencyObserve(float64)
	ForecastCacheHitsInc()
	ForecastCacheMissesInc()
}

type Config struct {
	CacheSize int
	Workers   int
	Weights   scoring.Weights
	// ForecastTimeout bounds a shared forecast. Zero means no bound beyond
	// the callers' own deadlines.
	ForecastTimeout time.Duration
}

// Request is one selection problem. Horizon 0 means the candidate length.
type Request struct {
	SeedWindow []float64
	Candidates [][]float64
	Horizon    int
	Strategy   string
}

// CandidateScore is the score of the candidate at Index.
type CandidateScore struct {
	Index     int               `json:"index"`
	Score     float64           `json:"score"`
	Breakdown scoring.Breakdown `json:"breakdown"`
}

// Result of a selection. Scores are in candidate order.
type Result struct {
	BestIndex int              `json:"best_index"`
	Strategy  string           `json:"strategy"`
	Scores    []CandidateScore `json:"scores"`
	Forecast  ml.Forecast      `json:"forecast"`
	CacheHit  bool             `json:"cache_hit"`
}

type Selector struct {
	forecaster Forecaster
	cfg        Config
	cache      *forecastCache
	inflight   singleflight.Group
	generation atomic.Uint64
	metrics    MetricsInterface
}

// New returns a Selector. metrics may be nil. Workers <= 0 uses GOMAXPROCS.
func New(f Forecaster, cfg Config, metrics MetricsInterface) *Selector {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Selector{
		forecaster: f,
		cfg:        cfg,
		cache:      newForecastCache(cfg.CacheSize),
		metrics:    metrics,
	}
}

// Reset drops cached forecasts. Call it after the model is retrained or
// reloaded. Forecasts already in flight are not cached and are not shared
// with requests made after Reset.
func (s *Selector) Reset() {
	s.generation.Add(1)
	s.cache.clear()
}

// CachedForecasts returns the number of cached forecasts.
func (s *Selector) CachedForecasts() int {
	return s.cache.len()
}

// SelectBest forecasts once for the request's seed, scores every candidate
// against that forecast and returns the index with the lowest score. Ties go
// to the lower index. Inputs are not modified.
func (s *Selector) SelectBest(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	strategy, err := scoring.Parse(req.Strategy, s.cfg.Weights)
	if err != nil {
		return Result{}, err
	}
	horizon, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	forecast, hit, err := s.forecast(ctx, req.SeedWindow, horizon)
	if err != nil {
		return Result{}, err
	}

	scores := make([]CandidateScore, len(req.Candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, candidate := range req.Candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := strategy.Score(candidate, forecast)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", i, err)
			}
			scores[i] = CandidateScore{Index: i, Score: b.Combined, Breakdown: b}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Score < scores[best].Score {
			best = i
		}
	}

	for _, cs := range scores {
		log.Debug().
			Int("candidate", cs.Index).
			Float64("score", cs.Score).
			Float64("prediction_error", cs.Breakdown.PredictionError).
			Float64("variance_diff", cs.Breakdown.VarianceDiff).
			Float64("contour_similarity", cs.Breakdown.ContourSimilarity).
			Float64("confidence_score", cs.Breakdown.ConfidenceScore).
			Float64("uncertainty_penalty", cs.Breakdown.UncertaintyPenalty).
			Float64("moving_average", cs.Breakdown.MovingAverage).
			Msg("Candidate scored")
	}

	elapsed := time.Since(start)
	log.Debug().
		Str("strategy", strategy.Name()).
		Int("candidates", len(scores)).
		Int("horizon", horizon).
		Int("best_index", best).
		Bool("cache_hit", hit).
		Dur("elapsed", elapsed).
		Msg("Selection completed")

	if s.metrics != nil {
		s.metrics.SelectionsInc(strategy.Name())
		s.metrics.SelectionLatencyObserve(elapsed.Seconds())
	}

	return Result{
		BestIndex: best,
		Strategy:  strategy.Name(),
		Scores:    scores,
		Forecast:  cloneForecast(forecast),
		CacheHit:  hit,
	}, nil
}

func (s *Selector) forecast(ctx context.Context, seed []float64, horizon int) (ml.Forecast, bool, error) {
	w := s.forecaster.WindowSize()
	if len(seed) < w {
		return ml.Forecast{}, false, fmt.Errorf("%w: seed window has %d values, need at least %d", ml.ErrInputShape, len(seed), w)
	}
	key := forecastKey(seed[len(seed)-w:], horizon)

	if f, ok := s.cache.get(key); ok {
		if s.metrics != nil {
			s.metrics.ForecastCacheHitsInc()
		}
		return f, true, nil
	}
	gen := s.generation.Load()
	window := append([]float64(nil), seed[len(seed)-w:]...)
	ch := s.inflight.DoChan(strconv.FormatUint(gen, 10)+"/"+key, func() (interface{}, error) {
		if s.metrics != nil {
			s.metrics.ForecastCacheMissesInc()
		}
		flightCtx := context.WithoutCancel(ctx)
		if s.cfg.ForecastTimeout > 0 {
			var cancel context.CancelFunc
			flightCtx, cancel = context.WithTimeout(flightCtx, s.cfg.ForecastTimeout)
			defer cancel()
		}
		f, err := s.forecaster.Forecast(flightCtx, window, horizon)
		if err != nil {
			return nil, err
		}
		if s.generation.Load() == gen {
			s.cache.put(key, f)
		}
		return f, nil
	})

	select {
	case <-ctx.Done():
		return ml.Forecast{}, false, fmt.Errorf("waiting for forecast: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return ml.Forecast{}, false, res.Err
		}
		return res.Val.(ml.Forecast), false, nil
	}
}

func validate(req Request) (int, error) {
	if len(req.Candidates) == 0 {
		return 0, fmt.Errorf("%w: no candidates", ml.ErrInputShape)
	}
	if err := checkUnit("seed window", req.SeedWindow); err != nil {
		return 0, err
	}

	length := len(req.Candidates[0])
	if length == 0 {
		return 0, fmt.Errorf("%w: candidate 0 is empty", ml.ErrInputShape)
	}
	for i, c := range req.Candidates {
		if len(c) != length {
			return 0, fmt.Errorf("%w: candidate %d has %d values, candidate 0 has %d", ml.ErrInputShape, i, len(c), length)
		}
		if err := checkUnit(fmt.Sprintf("candidate %d", i), c); err != nil {
			return 0, err
		}
	}

	horizon := req.Horizon
	if horizon == 0 {
		horizon = length
	}
	if horizon != length {
		return 0, fmt.Errorf("%w: horizon %d does not match candidate length %d", ml.ErrInputShape, horizon, length)
	}
	return horizon, nil
}

func checkUnit(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s value %d (%v) is outside [0,1]", ml.ErrInputShape, name, i, v)
		}
	}
	return nil
}

func cloneForecast(f ml.Forecast) ml.Forecast {
	return ml.Forecast{
		Mean: append([]float64(nil), f.Mean...),
		Std:  append([]float64(nil), f.Std...),
	}
}
