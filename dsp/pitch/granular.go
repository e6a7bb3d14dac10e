package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rack/dsp/core"
	"github.com/cwbudde/algo-rack/dsp/delay"
)

const (
	// Ratio bounds guard against runaway shifts on detection glitches.
	MinRatio = 0.5
	MaxRatio = 2.0

	defaultGrainSamples = 2048
	historySamples      = 8192
)

// GrainShifter resamples audio by a continuously variable ratio using two
// overlapping read pointers into a circular history buffer. The grains are
// cross-faded by a triangular window synchronized to a wrapping phase
// accumulator, so a grain never audibly jumps when its read pointer wraps
// back toward the write head.
type GrainShifter struct {
	history *delay.Line

	ratio    float64
	grainLen float64
	phase    float64 // wrapping accumulator in [0, 1)
}

// NewGrainShifter creates a granular shifter at unity ratio.
func NewGrainShifter() *GrainShifter {
	line, _ := delay.New(historySamples)

	return &GrainShifter{
		history:  line,
		ratio:    1.0,
		grainLen: defaultGrainSamples,
	}
}

// SetRatio updates the resampling ratio, clamped into [MinRatio, MaxRatio].
// Non-finite values are rejected.
func (g *GrainShifter) SetRatio(ratio float64) error {
	if !core.IsFinite(ratio) {
		return fmt.Errorf("grain shifter ratio must be finite: %f", ratio)
	}

	g.ratio = core.Clamp(ratio, MinRatio, MaxRatio)

	return nil
}

// Ratio returns the active ratio.
func (g *GrainShifter) Ratio() float64 { return g.ratio }

// ProcessInPlace writes input into the history and replaces buf with the
// pitch-shifted output.
func (g *GrainShifter) ProcessInPlace(buf []float64) {
	for i, s := range buf {
		g.history.Write(s)
		buf[i] = g.next()
	}
}

// next produces one output sample from the two grain read heads.
//
// Each head reads through history at the shift ratio, which makes its delay
// against the write head a ramp changing at (1 - ratio) per sample. The ramp
// wraps over the grain length; the second head runs half a grain out of
// phase, and a triangular window tied to each head's ramp position silences
// a head exactly when its delay wraps.
func (g *GrainShifter) next() float64 {
	g.phase += (1 - g.ratio) / g.grainLen
	g.phase -= math.Floor(g.phase)

	phaseA := g.phase
	phaseB := g.phase + 0.5
	phaseB -= math.Floor(phaseB)

	delayA := 1 + g.grainLen*phaseA
	delayB := 1 + g.grainLen*phaseB

	fadeA := 1 - math.Abs(2*phaseA-1)
	fadeB := 1 - math.Abs(2*phaseB-1)

	a := g.history.ReadFractional(delayA)
	b := g.history.ReadFractional(delayB)

	return a*fadeA + b*fadeB
}

// Reset clears history and grain phase.
func (g *GrainShifter) Reset() {
	g.history.Reset()
	g.phase = 0
}
