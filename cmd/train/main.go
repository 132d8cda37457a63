package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bayesian-melody-predictor/internal/cfg"
	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		corpusPath = flag.String("corpus", "", "Corpus CSV path (overrides config)")
		source     = flag.String("source", "csv", "Corpus source: csv or store")
		importRows = flag.Bool("import", false, "Import the CSV corpus into the data store before training")
		output     = flag.String("output", "", "Also write the trained model to this path")
		noActivate = flag.Bool("no-activate", false, "Register the new version without activating it")
		rollback   = flag.Bool("rollback", false, "Reactivate the previous model version and exit")
		list       = flag.Bool("list-versions", false, "List recorded model versions and exit")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	setupLogging(*logLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *corpusPath != "" {
		config.CorpusPath = *corpusPath
	}

	if *rollback || *list {
		manageVersions(config.ModelsDir, *rollback)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := loadCorpus(config, *source, *importRows)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load corpus")
	}

	regressor, err := ml.NewRegressor(config.RegressorConfig(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create regressor")
	}

	opts := config.TrainOptions()
	log.Info().
		Str("preset", config.Preset).
		Int("sequences", len(rows)).
		Int("window_size", config.WindowSize).
		Int("batch_size", opts.BatchSize).
		Int("epochs", opts.Epochs).
		Int64("seed", opts.Seed).
		Msg("Starting training")

	stats, err := regressor.Train(ctx, dataset.Sequences(rows), opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	manager, err := ml.NewModelManager(config.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open models directory")
	}

	version, path := manager.NewVersionPath(time.Now())
	if err := regressor.Save(path); err != nil {
		log.Fatal().Err(err).Msg("Failed to save model")
	}

	info := regressor.Info()
	if _, err := manager.AddVersion(version, path, ml.ModelMetrics{
		TrainingPairs:         stats.Pairs,
		FittedPoints:          info.FittedPoints,
		LengthScale:           info.LengthScale,
		LogMarginalLikelihood: info.LogMarginalLikelihood,
		WindowSize:            info.WindowSize,
		BatchSize:             opts.BatchSize,
		Epochs:                opts.Epochs,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register model version")
	}
	if !*noActivate {
		if err := manager.ActivateVersion(version); err != nil {
			log.Fatal().Err(err).Msg("Failed to activate model version")
		}
	}

	if *output != "" {
		if err := regressor.Save(*output); err != nil {
			log.Fatal().Err(err).Msg("Failed to save model copy")
		}
	}

	fmt.Println("\n=== TRAINING RESULTS ===")
	fmt.Printf("Version: %s (active: %t)\n", version, !*noActivate)
	fmt.Printf("Model Path: %s\n", path)
	fmt.Printf("Sequences: %d (dropped %d shorter than %d)\n", stats.Sequences, stats.DroppedSequences, config.WindowSize+1)
	fmt.Printf("Training Pairs: %d\n", stats.Pairs)
	fmt.Printf("Batches: %d over %d epochs\n", stats.Batches, stats.Epochs)
	fmt.Printf("Fitted Points: %d\n", info.FittedPoints)
	fmt.Printf("Length Scale: %.6g\n", info.LengthScale)
	fmt.Printf("Log Marginal Likelihood: %.4f\n", info.LogMarginalLikelihood)
	fmt.Printf("Duration: %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Println("========================")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadCorpus reads the corpus from CSV or from the data store. With
// importRows the CSV rows are also written to the store.
func loadCorpus(config cfg.Settings, source string, importRows bool) ([]dataset.Row, error) {
	switch source {
	case "csv":
		rows, err := dataset.ReadCorpusFile(config.CorpusPath, config.PitchRange)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", config.CorpusPath).Int("sequences", len(rows)).Msg("Corpus loaded from CSV")

		if importRows {
			store, err := openStore(config)
			if err != nil {
				return nil, err
			}
			defer store.Close()
			n, err := store.ImportRows(rows)
			if err != nil {
				return nil, fmt.Errorf("import corpus: %w", err)
			}
			total, err := store.CountSequences()
			if err != nil {
				return nil, fmt.Errorf("count stored sequences: %w", err)
			}
			log.Info().Int("imported", n).Int("stored", total).Str("data_path", config.DataPath).Msg("Corpus imported into store")
		}
		return rows, nil

	case "store":
		store, err := openStore(config)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		rows, err := store.Rows()
		if err != nil {
			return nil, fmt.Errorf("read corpus from store: %w", err)
		}
		log.Info().Str("data_path", config.DataPath).Int("sequences", len(rows)).Msg("Corpus loaded from store")
		return rows, nil

	default:
		return nil, fmt.Errorf("%w: unknown corpus source %q (csv or store)", ml.ErrConfiguration, source)
	}
}

func openStore(config cfg.Settings) (*storage.Store, error) {
	if config.DataPath == "" {
		return nil, fmt.Errorf("%w: DATA_PATH must be set to use the data store", ml.ErrConfiguration)
	}
	return storage.New(config.DataPath)
}

func manageVersions(modelsDir string, rollback bool) {
	manager, err := ml.NewModelManager(modelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open models directory")
	}
	if rollback {
		if err := manager.Rollback(); err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		log.Info().Str("version", manager.GetCurrentVersion().Version).Msg("Rolled back model version")
	}

	for _, v := range manager.ListVersions() {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  pairs=%d  lml=%.4f\n", marker, v.Version, v.CreatedAt.Format(time.RFC3339), v.Metrics.TrainingPairs, v.Metrics.LogMarginalLikelihood)
	}
}
