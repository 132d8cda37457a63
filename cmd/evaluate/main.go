package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bayesian-melody-predictor/internal/cfg"
	"bayesian-melody-predictor/internal/client"
	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/evaluate"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/scoring"
	"bayesian-melody-predictor/internal/selection"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		testCases = flag.String("test-cases", "", "Test case CSV path (overrides config)")
		strategy  = flag.String("strategy", "", "Scoring strategy: composite or moving-average (overrides config)")
		outputDir = flag.String("output", "", "Output directory for results (overrides config)")
		remote    = flag.Bool("remote", false, "Send selections to a running selection service")
		serverURL = flag.String("server", "", "Selection service URL for -remote (overrides config)")
		workers   = flag.Int("workers", 0, "Concurrent test cases (overrides config)")
		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	applyFlags(&config, *testCases, *strategy, *outputDir, *serverURL, *workers)

	// The strategy is an explicit operator choice; there is no fallback.
	if _, err := scoring.Parse(config.Strategy, config.Weights); err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring strategy, set -strategy or SCORING_STRATEGY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cases, err := dataset.ReadTestCasesFile(config.TestCasesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read test cases")
	}
	log.Info().Str("path", config.TestCasesPath).Int("cases", len(cases)).Msg("Test cases loaded")

	var selector evaluate.Selector
	if *remote {
		selector, err = remoteSelector(ctx, config)
	} else {
		selector, err = localSelector(config)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize selector")
	}

	results, err := evaluate.NewRunner(selector, config.Strategy, config.EvalWorkers).Run(ctx, cases)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}

	reporter := evaluate.NewReporter(results, config.ResultsDir)
	if err := reporter.GenerateReport(); err != nil {
		log.Fatal().Err(err).Msg("Failed to write reports")
	}
	reporter.PrintSummary()
	fmt.Printf("Results saved to %s\n", config.ResultsDir)
}

func applyFlags(config *cfg.Settings, testCases, strategy, outputDir, serverURL string, workers int) {
	if testCases != "" {
		config.TestCasesPath = testCases
	}
	if strategy != "" {
		config.Strategy = strategy
	}
	if outputDir != "" {
		config.ResultsDir = outputDir
	}
	if serverURL != "" {
		config.ServerURL = serverURL
	}
	if workers > 0 {
		config.EvalWorkers = workers
	}
}

func localSelector(config cfg.Settings) (evaluate.Selector, error) {
	regressor, version, err := ml.LoadActive(config.ModelsDir, config.ModelPath, config.RegressorConfig(), nil)
	if err != nil {
		return nil, err
	}
	log.Info().Str("version", version).Interface("model", regressor.Info()).Msg("Model ready")

	forecaster := ml.NewForecaster(regressor, nil)
	return selection.New(forecaster, selection.Config{
		CacheSize: config.ForecastCacheSize,
		Workers:   config.ScoringWorkers,
		Weights:   config.Weights,
	}, nil), nil
}

func remoteSelector(ctx context.Context, config cfg.Settings) (evaluate.Selector, error) {
	c := client.New(config.ServerURL, config.ClientTimeout)
	health, err := c.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("selection service at %s is not ready: %w", config.ServerURL, err)
	}
	log.Info().Str("server", config.ServerURL).Str("model_version", health.ModelVersion).Msg("Using remote selection service")
	return evaluate.NewRemoteSelector(c, "eval"), nil
}
