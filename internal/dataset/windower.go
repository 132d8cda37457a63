// Package dataset turns normalized pitch sequences into regressor training
// pairs and reads the CSV formats used for training corpora and test cases.
package dataset

import (
	"errors"
	"fmt"
)

// ErrWindowSize is returned for non-positive window sizes.
var ErrWindowSize = errors.New("window size must be positive")

// Sequence is one melodic phrase of pitch values normalized into [0,1].
type Sequence []float64

// Row is a corpus entry as delivered by upstream collaborators.
type Row struct {
	ID       string   `json:"id"`
	Sequence Sequence `json:"sequence"`
}

// TrainingPair is a context window and the value that followed it.
type TrainingPair struct {
	Window []float64
	Next   float64
}

// WindowStats summarises a windowing pass.
type WindowStats struct {
	Sequences int // sequences seen
	Used      int // sequences that produced at least one pair
	Dropped   int // sequences with length <= window size
	Pairs     int
}

// BuildPairs slides a window of size w with stride 1 over every sequence.
// Sequences of length <= w contribute nothing and are counted as dropped.
// An empty corpus yields no pairs and no error.
func BuildPairs(corpus []Sequence, w int) ([]TrainingPair, WindowStats, error) {
	if w <= 0 {
		return nil, WindowStats{}, fmt.Errorf("%w, got %d", ErrWindowSize, w)
	}

	stats := WindowStats{Sequences: len(corpus)}
	var pairs []TrainingPair
	for _, s := range corpus {
		if len(s) <= w {
			stats.Dropped++
			continue
		}
		stats.Used++
		for i := 0; i < len(s)-w; i++ {
			window := make([]float64, w)
			copy(window, s[i:i+w])
			pairs = append(pairs, TrainingPair{Window: window, Next: s[i+w]})
		}
	}
	stats.Pairs = len(pairs)
	return pairs, stats, nil
}

// Sequences extracts the pitch sequences from corpus rows.
func Sequences(rows []Row) []Sequence {
	out := make([]Sequence, len(rows))
	for i, r := range rows {
		out[i] = r.Sequence
	}
	return out
}
