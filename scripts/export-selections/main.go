package main

import (
	"encoding/json"
	"flag"
	"os"
	"sort"
	"time"

	"bayesian-melody-predictor/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath   = flag.String("data", "data", "Data directory path")
		outputPath = flag.String("output", "selections.jsonl", "Output JSON lines file")
		days       = flag.Int("days", 7, "Number of days to export (0 for all)")
		strategy   = flag.String("strategy", "", "Strategy to export (empty for all)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	end := time.Now()
	start := time.Unix(0, 0)
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
	}

	records, err := store.GetSelections(start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read selections")
	}

	outputFile, err := os.Create(*outputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer outputFile.Close()

	encoder := json.NewEncoder(outputFile)
	byStrategy := make(map[string]int)
	picks := make(map[int]int)
	exported := 0
	for _, rec := range records {
		if *strategy != "" && rec.Strategy != *strategy {
			continue
		}
		if err := encoder.Encode(rec); err != nil {
			log.Fatal().Err(err).Msg("Failed to write record")
		}
		byStrategy[rec.Strategy]++
		picks[rec.BestIndex+1]++
		exported++
	}

	if exported == 0 {
		log.Warn().Msg("No records found matching criteria")
		return
	}

	log.Info().
		Int("records", exported).
		Str("output", *outputPath).
		Time("from", records[0].Timestamp).
		Time("to", records[len(records)-1].Timestamp).
		Msg("Selections exported")

	for s, n := range byStrategy {
		log.Info().Str("strategy", s).Int("records", n).Msg("Records by strategy")
	}

	options := make([]int, 0, len(picks))
	for opt := range picks {
		options = append(options, opt)
	}
	sort.Ints(options)
	for _, opt := range options {
		log.Info().Int("option", opt).Int("selections", picks[opt]).Msg("Selections by option")
	}
}
