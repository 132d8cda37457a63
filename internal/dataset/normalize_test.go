package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPitchRange_Normalize(t *testing.T) {
	pr := PitchRange{Min: 55, Max: 83}
	seq, err := pr.Normalize([]int{55, 69, 83})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, seq[0], 1e-12)
	assert.InDelta(t, 0.5, seq[1], 1e-12)
	assert.InDelta(t, 1.0, seq[2], 1e-12)
}

func TestPitchRange_NormalizeOutOfRange(t *testing.T) {
	pr := DefaultPitchRange()
	_, err := pr.Normalize([]int{60, 120})
	assert.Error(t, err)
}

func TestPitchRange_Invalid(t *testing.T) {
	pr := PitchRange{Min: 60, Max: 60}
	assert.Error(t, pr.Validate())
	_, err := pr.Normalize([]int{60})
	assert.Error(t, err)
}

func TestPitchRange_RoundTrip(t *testing.T) {
	pr := DefaultPitchRange()
	pitches := []int{21, 57, 60, 62, 64, 108}
	seq, err := pr.Normalize(pitches)
	require.NoError(t, err)
	assert.Equal(t, pitches, pr.Denormalize(seq))
}
