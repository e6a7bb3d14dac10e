package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-rack/internal/testutil"
)

const testRate = 44100.0

func clickTrack(bpm, seconds float64) []float64 {
	return testutil.ClickTrack(bpm, seconds, testRate)
}

func TestTempoDetectsClickTrack(t *testing.T) {
	tests := []struct {
		name string
		bpm  float64
		want float64
	}{
		{"120 BPM", 120, 120},
		{"100 BPM", 100, 100},
		{"140 BPM", 140, 140},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Tempo(clickTrack(tt.bpm, 10), testRate)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.BPM, 2)
			assert.Greater(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestTempoFoldsIntoDisplayRange(t *testing.T) {
	// 60 BPM sits below the display range and doubles to 120.
	res, err := Tempo(clickTrack(60, 12), testRate)
	require.NoError(t, err)
	assert.InDelta(t, 120, res.BPM, 2)
}

func TestTempoShortInput(t *testing.T) {
	_, err := Tempo(clickTrack(120, 0.5), testRate)
	assert.ErrorIs(t, err, ErrShortInput)

	_, err = Tempo(make([]float64, 100), testRate)
	assert.ErrorIs(t, err, ErrShortInput)
}

func TestTempoSilence(t *testing.T) {
	_, err := Tempo(make([]float64, int(5*testRate)), testRate)
	assert.ErrorIs(t, err, ErrNoSignal)
}

func TestTempoInvalidRate(t *testing.T) {
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Tempo(clickTrack(120, 3), rate)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrShortInput))
	}
}
