package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Column names understood by the readers.
const (
	ColumnID                 = "id"
	ColumnSequenceID         = "sequence_id"
	ColumnNormalizedSequence = "normalized_pitch_sequence"
	ColumnPitchSequence      = "pitch_sequence"
	ColumnInputPitch         = "input_pitch"
	optionColumnPrefix       = "option_"
)

// CorpusPrecision is the number of decimals kept for normalized corpus values.
const CorpusPrecision = 4

// TestCase is a seed phrase plus the candidate continuations to choose from.
// By convention Options[0] is the ground-truth continuation.
type TestCase struct {
	Index   int
	Input   Sequence
	Options []Sequence
}

// ReadCorpusFile opens path and reads it with ReadCorpusCSV.
func ReadCorpusFile(path string, pitchRange PitchRange) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	rows, err := ReadCorpusCSV(f, pitchRange)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", path).
		Int("sequences", len(rows)).
		Msg("Corpus loaded")
	return rows, nil
}

// ReadCorpusCSV reads corpus rows. Values of a normalized_pitch_sequence
// column are rounded to CorpusPrecision decimals; otherwise a pitch_sequence column of MIDI numbers is normalized with
// pitchRange. Rows that fail to parse are skipped with a warning.
func ReadCorpusCSV(r io.Reader, pitchRange PitchRange) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	indices := headerIndices(header)

	normIdx, hasNorm := indices[ColumnNormalizedSequence]
	rawIdx, hasRaw := indices[ColumnPitchSequence]
	if !hasNorm && !hasRaw {
		return nil, fmt.Errorf("corpus needs a %q or %q column", ColumnNormalizedSequence, ColumnPitchSequence)
	}
	idIdx, hasID := indices[ColumnSequenceID]
	if !hasID {
		idIdx, hasID = indices[ColumnID]
	}

	var rows []Row
	skipped := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id := strconv.Itoa(line - 1)
		if hasID && idIdx < len(record) && record[idIdx] != "" {
			id = record[idIdx]
		}

		var seq Sequence
		if hasNorm {
			seq, err = ParseSequence(field(record, normIdx))
			if err == nil {
				roundSequence(seq, CorpusPrecision)
			}
		} else {
			var pitches []int
			pitches, err = parseInts(field(record, rawIdx))
			if err == nil {
				seq, err = pitchRange.Normalize(pitches)
			}
		}
		if err != nil {
			skipped++
			log.Warn().Err(err).Int("line", line).Str("id", id).Msg("Skipping malformed corpus row")
			continue
		}
		rows = append(rows, Row{ID: id, Sequence: seq})
	}

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("kept", len(rows)).Msg("Corpus rows skipped")
	}
	return rows, nil
}

// ReadTestCasesFile opens path and reads it with ReadTestCasesCSV.
func ReadTestCasesFile(path string) ([]TestCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open test case file: %w", err)
	}
	defer f.Close()
	return ReadTestCasesCSV(f)
}

// ReadTestCasesCSV reads an input_pitch column and option_1..option_N columns.
func ReadTestCasesCSV(r io.Reader) ([]TestCase, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	indices := headerIndices(header)

	inputIdx, ok := indices[ColumnInputPitch]
	if !ok {
		return nil, fmt.Errorf("test cases need an %q column", ColumnInputPitch)
	}

	type optionCol struct{ n, idx int }
	var options []optionCol
	for name, idx := range indices {
		if !strings.HasPrefix(name, optionColumnPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, optionColumnPrefix))
		if err != nil || n < 1 {
			continue
		}
		options = append(options, optionCol{n: n, idx: idx})
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("test cases need at least one %s<n> column", optionColumnPrefix)
	}
	sort.Slice(options, func(i, j int) bool { return options[i].n < options[j].n })

	var cases []TestCase
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		input, err := ParseSequence(field(record, inputIdx))
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, ColumnInputPitch, err)
		}
		tc := TestCase{Index: len(cases), Input: input}
		for _, opt := range options {
			seq, err := ParseSequence(field(record, opt.idx))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s%d: %w", line, optionColumnPrefix, opt.n, err)
			}
			tc.Options = append(tc.Options, seq)
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// ParseSequence parses "[0.1, 0.2]" or "0.1,0.2" into a sequence, rejecting
// values outside [0,1].
func ParseSequence(s string) (Sequence, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	out := make(Sequence, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, fmt.Errorf("value %d (%g) outside [0,1]", i, v)
		}
		out[i] = v
	}
	return out, nil
}

// roundSequence rounds every value of seq in place to the given decimals.
func roundSequence(seq Sequence, decimals int) {
	scale := math.Pow(10, float64(decimals))
	for i, v := range seq {
		seq[i] = math.Round(v*scale) / scale
	}
}

// FormatSequence renders a sequence in the bracketed list form read by ParseSequence.
func FormatSequence(s []float64) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty pitch sequence")
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("pitch %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func headerIndices(header []string) map[string]int {
	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(col)] = i
	}
	return indices
}

func field(record []string, idx int) string {
	if idx < len(record) {
		return record[idx]
	}
	return ""
}
