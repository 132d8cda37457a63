package main

import (
	"flag"
	"fmt"
	"os"

	"bayesian-melody-predictor/internal/cfg"
	"bayesian-melody-predictor/internal/dataset"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	defaults := dataset.DefaultGeneratorConfig()
	var (
		corpusPath   = flag.String("corpus", "", "Corpus CSV path (overrides config)")
		outputPath   = flag.String("output", "", "Output test case CSV (overrides config)")
		inputLength  = flag.Int("input-length", 0, "Seed phrase length (default: configured window size)")
		optionLength = flag.Int("option-length", defaults.OptionLength, "Notes per option")
		options      = flag.Int("options", defaults.Options, "Options per test case, including the true ending")
		seed         = flag.Int64("seed", defaults.Seed, "Random seed for generated options")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *corpusPath != "" {
		config.CorpusPath = *corpusPath
	}
	if *outputPath != "" {
		config.TestCasesPath = *outputPath
	}
	if *inputLength <= 0 {
		*inputLength = config.WindowSize
	}

	fmt.Printf("Generating test cases from %s...\n", config.CorpusPath)
	fmt.Printf("  Input Length: %d\n", *inputLength)
	fmt.Printf("  Option Length: %d\n", *optionLength)
	fmt.Printf("  Options: %d\n", *options)

	rows, err := dataset.ReadCorpusFile(config.CorpusPath, config.PitchRange)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read corpus")
	}

	cases, err := dataset.BuildTestCases(dataset.Sequences(rows), dataset.GeneratorConfig{
		InputLength:  *inputLength,
		OptionLength: *optionLength,
		Options:      *options,
		Seed:         *seed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build test cases")
	}
	if len(cases) == 0 {
		log.Fatal().Int("need", *inputLength+*optionLength).Msg("No corpus sequence is long enough")
	}

	file, err := os.Create(config.TestCasesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer file.Close()

	if err := dataset.WriteTestCasesCSV(file, cases); err != nil {
		log.Fatal().Err(err).Msg("Failed to write test cases")
	}

	fmt.Printf("Generated %d test cases from %d sequences into %s\n", len(cases), len(rows), config.TestCasesPath)
}
