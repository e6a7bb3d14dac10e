// Package envelope provides control-rate level detection and the gate
// state machine used by detector loops.
package envelope

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rack/dsp/core"
)

// Mode selects how a Follower summarizes the analysis window.
type Mode int

const (
	// ModePeak tracks the peak absolute value over the window. Fast
	// detectors (compressor sidechain, ducking) use peak.
	ModePeak Mode = iota
	// ModeRMS tracks the root-mean-square over the window. Gates and
	// denoisers use RMS for smoother threshold behavior.
	ModeRMS
)

// Follower derives a windowed level estimate from blocks of time-domain
// samples. It is fed at the control rate (the detector tick), not per audio
// sample, and applies distinct attack and release one-pole coefficients so
// rising levels are tracked faster than falling ones.
type Follower struct {
	mode Mode

	attackCoeff  float64
	releaseCoeff float64

	level float64
}

// NewFollower creates a follower. attackSec and releaseSec are the time
// constants applied at tick rate tickHz.
func NewFollower(mode Mode, attackSec, releaseSec, tickHz float64) (*Follower, error) {
	if mode != ModePeak && mode != ModeRMS {
		return nil, fmt.Errorf("follower mode is invalid: %d", mode)
	}
	if !core.IsFinitePositive(tickHz) {
		return nil, fmt.Errorf("follower tick rate must be positive and finite: %f", tickHz)
	}
	if attackSec <= 0 || releaseSec <= 0 || !core.IsFinite(attackSec) || !core.IsFinite(releaseSec) {
		return nil, fmt.Errorf("follower time constants must be positive and finite: attack=%f release=%f",
			attackSec, releaseSec)
	}

	return &Follower{
		mode:         mode,
		attackCoeff:  1 - math.Exp(-1/(attackSec*tickHz)),
		releaseCoeff: 1 - math.Exp(-1/(releaseSec*tickHz)),
	}, nil
}

// SetTimes updates the attack and release time constants. The current level
// estimate is preserved.
func (f *Follower) SetTimes(attackSec, releaseSec, tickHz float64) error {
	if attackSec <= 0 || releaseSec <= 0 || !core.IsFinite(attackSec) || !core.IsFinite(releaseSec) {
		return fmt.Errorf("follower time constants must be positive and finite: attack=%f release=%f",
			attackSec, releaseSec)
	}
	if !core.IsFinitePositive(tickHz) {
		return fmt.Errorf("follower tick rate must be positive and finite: %f", tickHz)
	}

	f.attackCoeff = 1 - math.Exp(-1/(attackSec*tickHz))
	f.releaseCoeff = 1 - math.Exp(-1/(releaseSec*tickHz))

	return nil
}

// Observe folds one analysis window into the follower and returns the
// updated level estimate.
func (f *Follower) Observe(window []float64) float64 {
	raw := 0.0

	switch f.mode {
	case ModePeak:
		for _, v := range window {
			if a := math.Abs(v); a > raw {
				raw = a
			}
		}
	case ModeRMS:
		if len(window) > 0 {
			sum := 0.0
			for _, v := range window {
				sum += v * v
			}
			raw = math.Sqrt(sum / float64(len(window)))
		}
	}

	if raw > f.level {
		f.level += (raw - f.level) * f.attackCoeff
	} else {
		f.level += (raw - f.level) * f.releaseCoeff
	}
	f.level = core.FlushDenormals(f.level)

	return f.level
}

// Level returns the current estimate without observing new samples.
func (f *Follower) Level() float64 { return f.level }

// LevelDB returns the current estimate in decibels with an epsilon floor.
func (f *Follower) LevelDB() float64 { return core.LevelToDB(f.level) }

// Reset clears the follower state.
func (f *Follower) Reset() { f.level = 0 }
