package graph

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-rack/dsp/convolve"
	"github.com/cwbudde/algo-rack/dsp/core"
	"github.com/cwbudde/algo-rack/dsp/delay"
	"github.com/cwbudde/algo-rack/dsp/shape"
)

// Gain scales a block by a smoothed coefficient. The coefficient approaches
// its target exponentially and is ramped linearly inside each block, so a
// target change never steps the signal.
type Gain struct {
	sampleRate float64
	limit      float64
	sm         *core.Smoothed
}

// NewGain creates a gain stage. limit caps the coefficient magnitude; a
// limit below 1 makes the stage a legal feedback source.
func NewGain(sampleRate, initial, limit float64) (*Gain, error) {
	return NewGainAsymmetric(sampleRate, initial, limit, core.SmoothTimeGain, core.SmoothTimeGain)
}

// NewGainAsymmetric creates a gain stage with distinct rise and fall time
// constants, for detector-driven gains where attack and release differ.
func NewGainAsymmetric(sampleRate, initial, limit, riseTau, fallTau float64) (*Gain, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("gain stage sample rate must be positive and finite: %f", sampleRate)
	}
	if !core.IsFinitePositive(limit) {
		return nil, fmt.Errorf("gain stage limit must be positive and finite: %f", limit)
	}
	if !core.IsFinitePositive(riseTau) || !core.IsFinitePositive(fallTau) {
		return nil, fmt.Errorf("gain stage time constants must be positive and finite: rise=%f fall=%f",
			riseTau, fallTau)
	}

	g := &Gain{
		sampleRate: sampleRate,
		limit:      limit,
		sm:         core.NewSmoothedAsymmetric(clampAbs(initial, limit), riseTau, fallTau),
	}

	return g, nil
}

// SetSmoothing replaces the rise and fall time constants, preserving the
// current value and target.
func (g *Gain) SetSmoothing(riseTau, fallTau float64) error {
	if !core.IsFinitePositive(riseTau) || !core.IsFinitePositive(fallTau) {
		return fmt.Errorf("gain stage time constants must be positive and finite: rise=%f fall=%f",
			riseTau, fallTau)
	}

	g.sm.SetTaus(riseTau, fallTau)

	return nil
}

// SetTarget sets the coefficient target, clamped to the stage limit.
// Non-finite values are ignored.
func (g *Gain) SetTarget(v float64) {
	if !core.IsFinite(v) {
		return
	}

	g.sm.SetTarget(clampAbs(v, g.limit))
}

// Value returns the current smoothed coefficient.
func (g *Gain) Value() float64 { return g.sm.Value() }

// Target returns the coefficient target.
func (g *Gain) Target() float64 { return g.sm.Target() }

// MaxGain returns the coefficient magnitude cap.
func (g *Gain) MaxGain() float64 { return g.limit }

// Process scales the block, ramping from the previous coefficient to the
// next smoothed step.
func (g *Gain) Process(block []float64) {
	if len(block) == 0 {
		return
	}

	start := g.sm.Value()
	end := g.sm.Step(float64(len(block)) / g.sampleRate)
	step := (end - start) / float64(len(block))

	coeff := start
	for i := range block {
		coeff += step
		block[i] *= coeff
	}
}

// Reset snaps the coefficient to its target.
func (g *Gain) Reset() {
	g.sm.Snap(g.sm.Target())
}

func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// FilterShape selects the biquad response.
type FilterShape int

const (
	ShapeLowpass FilterShape = iota
	ShapeHighpass
	ShapeBandpass
)

// Biquad is a second-order IIR filter with RBJ cookbook coefficients,
// processed in transposed direct form II.
//
// Shape and Q are fixed at construction. The cutoff/center frequency is the
// runtime axis: SetFrequency retargets a smoothed value that Process steps
// once per block, recomputing coefficients on the audio side, so a frequency
// change glides instead of stepping and the control thread never writes a
// coefficient the audio thread is reading.
type Biquad struct {
	sampleRate float64
	shape      FilterShape
	q          float64

	sm   *core.Smoothed
	freq float64 // frequency the coefficients currently reflect

	b0, b1, b2 float64
	a1, a2     float64

	z1, z2 float64
}

// NewBiquad creates a biquad filter stage.
func NewBiquad(sampleRate float64, filterShape FilterShape, freq, q float64) (*Biquad, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("biquad sample rate must be positive and finite: %f", sampleRate)
	}
	if filterShape < ShapeLowpass || filterShape > ShapeBandpass {
		return nil, fmt.Errorf("biquad shape out of range: %d", filterShape)
	}
	if !core.IsFinitePositive(freq) || freq >= sampleRate/2 {
		return nil, fmt.Errorf("biquad frequency must be in (0, nyquist): %f", freq)
	}
	if !core.IsFinitePositive(q) {
		return nil, fmt.Errorf("biquad Q must be positive and finite: %f", q)
	}

	b := &Biquad{
		sampleRate: sampleRate,
		shape:      filterShape,
		q:          q,
		sm:         core.NewSmoothed(freq, core.SmoothTimeFilter),
		freq:       freq,
	}
	b.updateCoefficients()

	return b, nil
}

// SetFrequency sets the target cutoff/center frequency in Hz. The filter
// glides toward it as blocks are processed. Safe to call from the control
// goroutine while Process runs.
func (b *Biquad) SetFrequency(freq float64) error {
	if !core.IsFinitePositive(freq) || freq >= b.sampleRate/2 {
		return fmt.Errorf("biquad frequency must be in (0, nyquist): %f", freq)
	}

	b.sm.SetTarget(freq)

	return nil
}

// Frequency returns the current smoothed cutoff/center frequency in Hz.
func (b *Biquad) Frequency() float64 { return b.sm.Value() }

// FrequencyTarget returns the frequency the filter is gliding toward.
func (b *Biquad) FrequencyTarget() float64 { return b.sm.Target() }

func (b *Biquad) updateCoefficients() {
	w0 := 2 * math.Pi * b.freq / b.sampleRate
	cosw := math.Cos(w0)
	sinw := math.Sin(w0)
	alpha := sinw / (2 * b.q)

	a0 := 1 + alpha

	switch b.shape {
	case ShapeLowpass:
		b.b0 = (1 - cosw) / 2
		b.b1 = 1 - cosw
		b.b2 = (1 - cosw) / 2
	case ShapeHighpass:
		b.b0 = (1 + cosw) / 2
		b.b1 = -(1 + cosw)
		b.b2 = (1 + cosw) / 2
	case ShapeBandpass:
		b.b0 = alpha
		b.b1 = 0
		b.b2 = -alpha
	}

	b.b0 /= a0
	b.b1 /= a0
	b.b2 /= a0
	b.a1 = (-2 * cosw) / a0
	b.a2 = (1 - alpha) / a0
}

// Process filters the block in place, stepping the smoothed frequency and
// recomputing coefficients when it moves.
func (b *Biquad) Process(block []float64) {
	if len(block) == 0 {
		return
	}

	if next := b.sm.Step(float64(len(block)) / b.sampleRate); next != b.freq {
		b.freq = next
		b.updateCoefficients()
	}

	for i, x := range block {
		y := b.b0*x + b.z1
		b.z1 = b.b1*x - b.a1*y + b.z2
		b.z2 = b.b2*x - b.a2*y
		block[i] = y
	}

	b.z1 = core.FlushDenormals(b.z1)
	b.z2 = core.FlushDenormals(b.z2)
}

// Reset clears filter state and snaps the frequency to its target.
func (b *Biquad) Reset() {
	b.z1 = 0
	b.z2 = 0

	b.sm.Snap(b.sm.Target())
	if f := b.sm.Value(); f != b.freq {
		b.freq = f
		b.updateCoefficients()
	}
}

// DelayTap delays its input by a smoothed fractional time. The delay time
// ramps across each block, so time changes glide instead of clicking.
type DelayTap struct {
	sampleRate float64
	line       *delay.Line
	sm         *core.Smoothed
	maxSamples float64
}

// NewDelayTap creates a delay stage with the given maximum delay in seconds.
func NewDelayTap(sampleRate, maxSeconds, initialSeconds float64) (*DelayTap, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("delay stage sample rate must be positive and finite: %f", sampleRate)
	}
	if !core.IsFinitePositive(maxSeconds) {
		return nil, fmt.Errorf("delay stage maximum must be positive and finite: %f", maxSeconds)
	}
	if initialSeconds < 0 || initialSeconds > maxSeconds || !core.IsFinite(initialSeconds) {
		return nil, fmt.Errorf("delay stage time out of range [0, %f]: %f", maxSeconds, initialSeconds)
	}

	// Headroom for the interpolator's four-point neighborhood.
	size := int(math.Ceil(maxSeconds*sampleRate)) + 4
	line, err := delay.New(size)
	if err != nil {
		return nil, err
	}

	return &DelayTap{
		sampleRate: sampleRate,
		line:       line,
		sm:         core.NewSmoothed(initialSeconds*sampleRate, core.SmoothTimeDelay),
		maxSamples: maxSeconds * sampleRate,
	}, nil
}

// SetTime sets the target delay time in seconds, clamped to the maximum.
// Non-finite values are ignored.
func (d *DelayTap) SetTime(seconds float64) {
	if !core.IsFinite(seconds) || seconds < 0 {
		return
	}

	samples := seconds * d.sampleRate
	if samples > d.maxSamples {
		samples = d.maxSamples
	}
	d.sm.SetTarget(samples)
}

// Time returns the current smoothed delay time in seconds.
func (d *DelayTap) Time() float64 { return d.sm.Value() / d.sampleRate }

// Process writes each input sample and replaces it with the delayed read.
func (d *DelayTap) Process(block []float64) {
	if len(block) == 0 {
		return
	}

	start := d.sm.Value()
	end := d.sm.Step(float64(len(block)) / d.sampleRate)
	step := (end - start) / float64(len(block))

	delaySamples := start
	for i, s := range block {
		delaySamples += step
		d.line.Write(s)
		block[i] = d.line.ReadFractional(delaySamples)
	}
}

// Reset clears the delay line and snaps the time to its target.
func (d *DelayTap) Reset() {
	d.line.Reset()
	d.sm.Snap(d.sm.Target())
}

// Shaper applies a waveshaping curve at 2x oversampling.
type Shaper struct {
	curve *shape.Curve
	os    *shape.Oversampler2x
}

// NewShaper creates a waveshaping stage.
func NewShaper(mode shape.Mode, drive float64) (*Shaper, error) {
	curve, err := shape.NewCurve(mode, drive)
	if err != nil {
		return nil, err
	}

	return &Shaper{curve: curve, os: shape.NewOversampler2x()}, nil
}

// SetDrive updates the curve drive.
func (s *Shaper) SetDrive(drive float64) error { return s.curve.SetDrive(drive) }

// SetMode switches the curve shape.
func (s *Shaper) SetMode(mode shape.Mode) error { return s.curve.SetMode(mode) }

// Process shapes the block in place.
func (s *Shaper) Process(block []float64) {
	s.os.ProcessInPlace(block, s.curve)
}

// Reset clears the oversampler filter state.
func (s *Shaper) Reset() {
	s.os.Reset()
}

// Convolver convolves the block with an impulse-response kernel. The engine
// is swapped wholesale through an atomic pointer, so a new impulse response
// takes effect at a block boundary without a half-updated kernel being heard.
type Convolver struct {
	engine atomic.Pointer[convolve.Engine]
	out    []float64
}

// NewConvolver creates a convolver stage with no kernel; it passes input
// through until SwapEngine installs one.
func NewConvolver(blockSize int) (*Convolver, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("convolver block size must be positive: %d", blockSize)
	}

	return &Convolver{out: make([]float64, blockSize)}, nil
}

// SwapEngine installs a new convolution engine. A nil engine makes the stage
// a passthrough. The engine's block size must match the graph's.
func (c *Convolver) SwapEngine(e *convolve.Engine) error {
	if e != nil && e.BlockSize() != len(c.out) {
		return fmt.Errorf("convolver engine block size %d, want %d", e.BlockSize(), len(c.out))
	}

	c.engine.Store(e)

	return nil
}

// Engine returns the currently installed engine, or nil.
func (c *Convolver) Engine() *convolve.Engine { return c.engine.Load() }

// Process convolves the block in place.
func (c *Convolver) Process(block []float64) {
	e := c.engine.Load()
	if e == nil {
		return
	}

	if err := e.ProcessTo(c.out, block); err != nil {
		return
	}
	copy(block, c.out)
}

// Reset clears the engine's overlap tail.
func (c *Convolver) Reset() {
	if e := c.engine.Load(); e != nil {
		e.Reset()
	}
}

// Tap passes its input through unchanged and keeps a copy of the last block
// for control-side inspection (detectors, meters).
type Tap struct {
	mu   sync.Mutex
	last []float64
}

// NewTap creates a tap stage for the given block size.
func NewTap(blockSize int) *Tap {
	return &Tap{last: make([]float64, blockSize)}
}

// Process copies the block and passes it through.
func (t *Tap) Process(block []float64) {
	t.mu.Lock()
	copy(t.last, block)
	t.mu.Unlock()
}

// Read copies the most recent block into dst and returns the number of
// samples copied. Safe to call from the control goroutine.
func (t *Tap) Read(dst []float64) int {
	t.mu.Lock()
	n := copy(dst, t.last)
	t.mu.Unlock()

	return n
}

// Reset clears the stored block.
func (t *Tap) Reset() {
	t.mu.Lock()
	clear(t.last)
	t.mu.Unlock()
}
