// Package meter provides RMS and peak level extraction for UI feedback.
// Meters observe blocks on the control path; reading levels has no side
// effects and may happen at arbitrary polling rates.
package meter

import (
	"math"

	"github.com/cwbudde/algo-rack/dsp/core"
	"github.com/cwbudde/algo-vecmath"
)

// Levels is a snapshot of a meter's state.
type Levels struct {
	RMS    float64
	Peak   float64 // decaying peak for ballistics
	PeakDB float64
	RMSDB  float64
}

// peakFallPerObserve is the multiplicative peak decay applied per observed
// block, approximating conventional meter ballistics at a 60 Hz feed.
const peakFallPerObserve = 0.92

// Meter accumulates windowed RMS and a decaying peak from sample blocks.
type Meter struct {
	rms   float64
	peak  float64
	power []float64 // scratch
	zeros []float64 // scratch imaginary part for the vector kernels
}

// New creates a meter.
func New() *Meter {
	return &Meter{}
}

// Observe folds one block into the meter.
func (m *Meter) Observe(block []float64) {
	if len(block) == 0 {
		m.peak *= peakFallPerObserve
		return
	}

	m.power = core.EnsureLen(m.power, len(block))
	m.zeros = core.EnsureLen(m.zeros, len(block))
	power := m.power

	// power[i] = block[i]^2 via the SIMD power kernel (imaginary part zero).
	vecmath.Power(power, block, m.zeros)

	sum := 0.0
	blockPeak := 0.0
	for i, p := range power {
		sum += p
		if a := math.Abs(block[i]); a > blockPeak {
			blockPeak = a
		}
	}

	m.rms = math.Sqrt(sum / float64(len(block)))

	m.peak *= peakFallPerObserve
	if blockPeak > m.peak {
		m.peak = blockPeak
	}
}

// Levels returns the current meter snapshot.
func (m *Meter) Levels() Levels {
	return Levels{
		RMS:    m.rms,
		Peak:   m.peak,
		RMSDB:  core.LevelToDB(m.rms),
		PeakDB: core.LevelToDB(m.peak),
	}
}

// Reset clears meter state.
func (m *Meter) Reset() {
	m.rms = 0
	m.peak = 0
}
