package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bayesian-melody-predictor/internal/cfg"
	"bayesian-melody-predictor/internal/metrics"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/selection"
	"bayesian-melody-predictor/internal/server"
	"bayesian-melody-predictor/internal/storage"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const modelAgeInterval = 30 * time.Second

func main() {
	var (
		port     = flag.Int("port", 0, "Selection service port (overrides config)")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		jsonLogs = flag.Bool("json-logs", false, "Write JSON logs instead of console output")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !*jsonLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *port != 0 {
		c.ServerPort = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	regressor, version, err := ml.LoadActive(c.ModelsDir, c.ModelPath, c.RegressorConfig(), mw)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model")
	}
	info := regressor.Info()
	log.Info().
		Str("version", version).
		Int("window_size", info.WindowSize).
		Int("fitted_points", info.FittedPoints).
		Float64("length_scale", info.LengthScale).
		Msg("model loaded")

	selector := selection.New(ml.NewForecaster(regressor, mw), selection.Config{
		CacheSize:       c.ForecastCacheSize,
		Workers:         c.ScoringWorkers,
		Weights:         c.Weights,
		ForecastTimeout: c.RequestTimeout,
	}, mw)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	// A nil *storage.Store must not become a non-nil interface
	var audit server.AuditStore
	if store != nil {
		audit = store
	}

	srv := server.New(server.Config{
		Port:           c.ServerPort,
		RequestTimeout: c.RequestTimeout,
		PitchRange:     c.PitchRange,
		ModelVersion:   version,
	}, selector, regressor, audit, mw)

	var wg sync.WaitGroup
	startMetricsServer(ctx, &wg, c)
	startModelAgeReporter(ctx, &wg, regressor, m, mw)
	startReloadWatcher(ctx, &wg, c, regressor, selector, srv)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("selection server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, srv, &wg)
}

// initializeStorage opens the audit store if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without selection audit")
		return nil
	}
	return store
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := metricsServer.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()
	go func() {
		defer wg.Done()
		log.Info().Str("addr", metricsServer.Addr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, regressor *ml.Regressor, m *metrics.Metrics, mw *metrics.MetricsWrapper) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(modelAgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if trainedAt := regressor.Info().TrainedAt; !trainedAt.IsZero() {
					mw.MLModelAgeSet(time.Since(trainedAt).Seconds())
				}
				log.Debug().Float64("forecast_cache_hit_rate", m.CacheHitRate(prometheus.DefaultGatherer)).Msg("Selection cache stats")
			}
		}
	}()
}

// startReloadWatcher reloads the active model version on SIGHUP, so a model
// trained and activated by cmd/train can be served without a restart.
func startReloadWatcher(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings, regressor *ml.Regressor, selector *selection.Selector, srv *server.Server) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				version, err := ml.ReloadActive(regressor, c.ModelsDir, c.ModelPath)
				if err != nil {
					log.Error().Err(err).Msg("model reload failed, keeping current model")
					continue
				}
				selector.Reset()
				srv.SetModelVersion(version)
				log.Info().Str("version", version).Msg("model reloaded")
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, srv *server.Server, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown selection server")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
