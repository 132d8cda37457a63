package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
)

// maxContext is the longest note context the option generator conditions on.
const maxContext = 3

type contextKey struct {
	order int
	notes [maxContext]float64
}

// OptionGenerator writes distractor continuations by walking note-context
// tables built from a corpus. It tries the longest context first and falls
// back to shorter ones, then to random corpus notes, so it always returns the
// requested length when the corpus is non-empty.
//
// An OptionGenerator is not safe for concurrent use.
type OptionGenerator struct {
	next  map[contextKey][]float64
	notes []float64
	rng   *rand.Rand
}

func NewOptionGenerator(corpus []Sequence, seed int64) *OptionGenerator {
	g := &OptionGenerator{
		next: make(map[contextKey][]float64),
		rng:  rand.New(rand.NewSource(seed)),
	}
	seen := make(map[contextKey]map[float64]bool)
	for _, seq := range corpus {
		g.notes = append(g.notes, seq...)
		for order := 1; order <= maxContext; order++ {
			for i := 0; i+order < len(seq); i++ {
				key := makeKey(seq[i : i+order])
				note := seq[i+order]
				if seen[key] == nil {
					seen[key] = make(map[float64]bool)
				}
				if !seen[key][note] {
					seen[key][note] = true
					g.next[key] = append(g.next[key], note)
				}
			}
		}
	}
	return g
}

func makeKey(ctx []float64) contextKey {
	k := contextKey{order: len(ctx)}
	copy(k.notes[:], ctx)
	return k
}

// Continue generates length notes following start.
func (g *OptionGenerator) Continue(start []float64, length int) []float64 {
	history := append([]float64(nil), start...)
	out := make([]float64, 0, length)
	for len(out) < length {
		note, ok := g.step(history)
		if !ok {
			if len(g.notes) == 0 {
				break
			}
			note = g.notes[g.rng.Intn(len(g.notes))]
		}
		out = append(out, note)
		history = append(history, note)
	}
	return out
}

func (g *OptionGenerator) step(history []float64) (float64, bool) {
	for order := maxContext; order >= 1; order-- {
		if len(history) < order {
			continue
		}
		choices := g.next[makeKey(history[len(history)-order:])]
		if len(choices) > 0 {
			return choices[g.rng.Intn(len(choices))], true
		}
	}
	return 0, false
}

// GeneratorConfig shapes generated test cases.
type GeneratorConfig struct {
	InputLength  int
	OptionLength int
	Options      int
	Seed         int64
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{InputLength: 32, OptionLength: 8, Options: 10, Seed: 42}
}

// BuildTestCases turns each long enough corpus sequence into a test case.
// The input is the InputLength values before the final OptionLength values,
// option 1 is the true ending and the remaining options are generated.
func BuildTestCases(corpus []Sequence, cfg GeneratorConfig) ([]TestCase, error) {
	if cfg.InputLength <= 0 || cfg.OptionLength <= 0 {
		return nil, fmt.Errorf("input and option lengths must be positive, got %d and %d", cfg.InputLength, cfg.OptionLength)
	}
	if cfg.Options < 2 {
		return nil, fmt.Errorf("need at least 2 options, got %d", cfg.Options)
	}

	gen := NewOptionGenerator(corpus, cfg.Seed)
	need := cfg.InputLength + cfg.OptionLength

	var cases []TestCase
	for _, seq := range corpus {
		if len(seq) < need {
			continue
		}
		end := len(seq)
		input := append(Sequence(nil), seq[end-need:end-cfg.OptionLength]...)
		tc := TestCase{
			Index:   len(cases),
			Input:   input,
			Options: []Sequence{append(Sequence(nil), seq[end-cfg.OptionLength:]...)},
		}
		for i := 1; i < cfg.Options; i++ {
			tc.Options = append(tc.Options, Sequence(gen.Continue(input, cfg.OptionLength)))
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// WriteTestCasesCSV writes cases in the format read by ReadTestCasesCSV.
func WriteTestCasesCSV(w io.Writer, cases []TestCase) error {
	options := 0
	for _, tc := range cases {
		if len(tc.Options) > options {
			options = len(tc.Options)
		}
	}

	writer := csv.NewWriter(w)
	header := []string{ColumnInputPitch}
	for i := 1; i <= options; i++ {
		header = append(header, optionColumnPrefix+strconv.Itoa(i))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, tc := range cases {
		record := make([]string, len(header))
		record[0] = FormatSequence(tc.Input)
		for i, opt := range tc.Options {
			record[i+1] = FormatSequence(opt)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
