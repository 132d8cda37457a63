package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ResultsFile = "results.csv"
	SummaryFile = "summary.txt"
	ReportFile  = "report.json"
)

// Reporter generates evaluation reports
type Reporter struct {
	results    *Results
	outputPath string
}

func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateResultsCSV(); err != nil {
		return err
	}
	if err := r.generateSummary(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

// generateResultsCSV writes one row per test case: test_case, selected_option.
func (r *Reporter) generateResultsCSV() error {
	csvPath := filepath.Join(r.outputPath, ResultsFile)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"test_case", "selected_option"}); err != nil {
		return err
	}
	for _, c := range r.results.Cases {
		record := []string{strconv.Itoa(c.TestCase), strconv.Itoa(c.SelectedOption)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Results file generated")
	return nil
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	fmt.Fprintf(w, "EVALUATION RESULTS SUMMARY\n")
	fmt.Fprintf(w, "==========================\n\n")
	fmt.Fprintf(w, "Strategy: %s\n", r.results.Strategy)
	fmt.Fprintf(w, "Started: %s\n", r.results.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n\n", r.results.Duration.Round(time.Millisecond))

	fmt.Fprintf(w, "Total test cases: %d\n", r.results.TotalCases)
	for i, n := range r.results.OptionCounts {
		fmt.Fprintf(w, "Option %d selections: %d\n", i+1, n)
	}
	fmt.Fprintf(w, "Probability of selecting Option 1: %.2f%%\n", r.results.Option1Probability*100)
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, ReportFile)

	report := map[string]interface{}{
		"summary": map[string]interface{}{
			"strategy":            r.results.Strategy,
			"start_time":          r.results.StartTime,
			"end_time":            r.results.EndTime,
			"duration_seconds":    r.results.Duration.Seconds(),
			"total_cases":         r.results.TotalCases,
			"option_counts":       r.results.OptionCounts,
			"option1_probability": r.results.Option1Probability,
		},
		"cases":        r.results.Cases,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	fmt.Println()
	r.writeSummary(os.Stdout)
}
