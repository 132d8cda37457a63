// Package evaluate runs the option selector over a file of test cases and
// reports how often each option was chosen. By convention option 1 is the
// true continuation, so its selection rate is the headline accuracy.
package evaluate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/selection"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Selector is satisfied by *selection.Selector and by RemoteSelector.
type Selector interface {
	SelectBest(ctx context.Context, req selection.Request) (selection.Result, error)
}

// CaseResult uses 1-based case and option numbers, matching the CSV columns.
type CaseResult struct {
	TestCase       int     `json:"test_case"`
	SelectedOption int     `json:"selected_option"`
	Score          float64 `json:"score"`
}

// Results of one evaluation run
type Results struct {
	Strategy           string        `json:"strategy"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	TotalCases         int           `json:"total_cases"`
	OptionCounts       []int         `json:"option_counts"`
	Option1Probability float64       `json:"option1_probability"`
	Cases              []CaseResult  `json:"cases"`
	Duration           time.Duration `json:"duration"`
}

type Runner struct {
	selector Selector
	strategy string
	workers  int
}

func NewRunner(selector Selector, strategy string, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{selector: selector, strategy: strategy, workers: workers}
}

// Run selects an option for every case. Cases run concurrently, up to the
// configured number of workers; the first failure cancels the rest.
func (r *Runner) Run(ctx context.Context, cases []dataset.TestCase) (*Results, error) {
	results := &Results{
		Strategy:   r.strategy,
		StartTime:  time.Now(),
		TotalCases: len(cases),
		Cases:      make([]CaseResult, len(cases)),
	}

	maxOptions := 0
	for _, tc := range cases {
		if len(tc.Options) > maxOptions {
			maxOptions = len(tc.Options)
		}
	}
	results.OptionCounts = make([]int, maxOptions)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, tc := range cases {
		i, tc := i, tc
		g.Go(func() error {
			candidates := make([][]float64, len(tc.Options))
			for j, opt := range tc.Options {
				candidates[j] = opt
			}
			res, err := r.selector.SelectBest(gctx, selection.Request{
				SeedWindow: tc.Input,
				Candidates: candidates,
				Strategy:   r.strategy,
			})
			if err != nil {
				return fmt.Errorf("test case %d: %w", tc.Index+1, err)
			}
			results.Cases[i] = CaseResult{
				TestCase:       tc.Index + 1,
				SelectedOption: res.BestIndex + 1,
				Score:          res.Scores[res.BestIndex].Score,
			}

			if n := done.Add(1); n%100 == 0 {
				log.Info().Int64("done", n).Int("total", len(cases)).Msg("Evaluation progress")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range results.Cases {
		results.OptionCounts[c.SelectedOption-1]++
	}
	if results.TotalCases > 0 && maxOptions > 0 {
		results.Option1Probability = float64(results.OptionCounts[0]) / float64(results.TotalCases)
	}
	results.EndTime = time.Now()
	results.Duration = results.EndTime.Sub(results.StartTime)

	log.Info().
		Str("strategy", r.strategy).
		Int("cases", results.TotalCases).
		Float64("option1_probability", results.Option1Probability).
		Dur("duration", results.Duration).
		Msg("Evaluation completed")

	return results, nil
}
