package shape

import (
	"math"

	"github.com/cwbudde/algo-rack/dsp/window"
)

// halfbandTaps is the FIR length for the 2x anti-alias filter. Odd length
// keeps the filter linear-phase with an integer group delay.
const halfbandTaps = 31

// Oversampler2x runs a waveshaping curve at twice the working sample rate.
//
// Shaping adds harmonics above the original Nyquist frequency; processing at
// 2x and band-limiting on the way down folds far less of that energy back
// into the audible band. The upsample and decimate stages share one
// windowed-sinc halfband lowpass.
type Oversampler2x struct {
	taps []float64

	upState   []float64
	downState []float64
	work      []float64
}

// NewOversampler2x creates a 2x oversampling wrapper.
func NewOversampler2x() *Oversampler2x {
	o := &Oversampler2x{
		taps:      designHalfband(halfbandTaps),
		upState:   make([]float64, halfbandTaps-1),
		downState: make([]float64, halfbandTaps-1),
	}

	return o
}

// ProcessInPlace shapes buf through curve at 2x rate and writes the
// decimated result back into buf.
func (o *Oversampler2x) ProcessInPlace(buf []float64, curve *Curve) {
	n := len(buf)
	if n == 0 || curve == nil {
		return
	}

	if cap(o.work) < 2*n {
		o.work = make([]float64, 2*n)
	}
	up := o.work[:2*n]

	// Zero-stuff and lowpass. The 2x gain compensates the energy spread
	// across the inserted zeros.
	for i, s := range buf {
		up[2*i] = o.filterStep(o.upState, 2*s)
		up[2*i+1] = o.filterStep(o.upState, 0)
	}

	curve.ApplyInPlace(up)

	// Lowpass again and keep every second sample.
	for i := 0; i < n; i++ {
		buf[i] = o.filterStep(o.downState, up[2*i])
		o.filterStep(o.downState, up[2*i+1])
	}
}

// Reset clears filter state.
func (o *Oversampler2x) Reset() {
	for i := range o.upState {
		o.upState[i] = 0
	}
	for i := range o.downState {
		o.downState[i] = 0
	}
}

// filterStep pushes one sample through the halfband FIR using state as the
// input history (most recent first) and returns the filtered output.
func (o *Oversampler2x) filterStep(state []float64, in float64) float64 {
	out := o.taps[0] * in
	for k := 1; k < len(o.taps); k++ {
		out += o.taps[k] * state[k-1]
	}

	for i := len(state) - 1; i > 0; i-- {
		state[i] = state[i-1]
	}
	state[0] = in

	return out
}

// designHalfband builds a Hann-windowed sinc lowpass at a quarter of the
// oversampled rate (half of the original Nyquist band edge with margin).
func designHalfband(taps int) []float64 {
	const cutoff = 0.25 // fraction of the 2x sample rate

	coeffs := window.Generate(window.TypeHann, taps)
	mid := float64(taps-1) / 2
	sum := 0.0

	for i := range coeffs {
		t := float64(i) - mid
		var s float64
		if t == 0 {
			s = 2 * cutoff
		} else {
			s = math.Sin(2*math.Pi*cutoff*t) / (math.Pi * t)
		}
		coeffs[i] *= s
		sum += coeffs[i]
	}

	// Normalize to unity DC gain.
	for i := range coeffs {
		coeffs[i] /= sum
	}

	return coeffs
}
