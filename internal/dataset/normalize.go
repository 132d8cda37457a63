package dataset

import (
	"fmt"
	"math"
)

// PitchRange is the fixed MIDI range used to map pitches into [0,1]. It is
// passed explicitly to whatever needs it rather than held globally.
type PitchRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// DefaultPitchRange covers the full piano keyboard (A0..C8).
func DefaultPitchRange() PitchRange {
	return PitchRange{Min: 21, Max: 108}
}

// Validate ensures the range is non-empty.
func (p PitchRange) Validate() error {
	if p.Max <= p.Min {
		return fmt.Errorf("pitch range max (%d) must be greater than min (%d)", p.Max, p.Min)
	}
	return nil
}

// Normalize maps MIDI pitches to (p-min)/(max-min). Pitches outside the range
// are an error since they would leave [0,1].
func (p PitchRange) Normalize(pitches []int) (Sequence, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	span := float64(p.Max - p.Min)
	out := make(Sequence, len(pitches))
	for i, v := range pitches {
		if v < p.Min || v > p.Max {
			return nil, fmt.Errorf("pitch %d at position %d outside range [%d, %d]", v, i, p.Min, p.Max)
		}
		out[i] = float64(v-p.Min) / span
	}
	return out, nil
}

// Denormalize maps normalized values back to the nearest MIDI pitch.
func (p PitchRange) Denormalize(values []float64) []int {
	span := float64(p.Max - p.Min)
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(math.Round(v*span + float64(p.Min)))
	}
	return out
}
