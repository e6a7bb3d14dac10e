package shape

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-rack/dsp/core"
)

const (
	// curveResolution is the lookup table size spanning inputs [-1, 1].
	curveResolution = 32768

	// Ceiling is the maximum output magnitude of every curve mode. It sits
	// below full scale so shaped signals can never reach the digital clip
	// point.
	Ceiling = 0.92

	defaultShapeDrive = 1.0

	// MinDrive and MaxDrive bound the drive parameter for every mode.
	MinDrive = 0.01
	MaxDrive = 20.0
)

// Mode selects the transfer function synthesized into a Curve.
type Mode int

const (
	// ModeTape is a hyperbolic-tangent soft clip scaled by a
	// drive-dependent factor, emulating tape-style compression of peaks.
	ModeTape Mode = iota
	// ModeSoft is a rational soft-knee curve with a gentler onset.
	ModeSoft
	// ModeWarm is an asymmetric exponential curve that saturates positive
	// excursions earlier than negative ones, adding even harmonics.
	ModeWarm
)

func validMode(m Mode) bool {
	return m >= ModeTape && m <= ModeWarm
}

// Curve is a precomputed waveshaping lookup table over inputs [-1, 1].
//
// The table is synthesized once per drive/mode change rather than evaluating
// the transfer function per sample. Synthesis fills a fresh table and
// publishes it through an atomic pointer, so a goroutine shaping audio never
// reads a half-rewritten table. Every mode produces a continuous curve
// through the origin with |output| <= Ceiling.
type Curve struct {
	mode  Mode
	drive float64
	table atomic.Pointer[[]float64]
}

// NewCurve synthesizes a lookup curve for the given mode and drive.
// Drive must be in [0.01, 20].
func NewCurve(mode Mode, drive float64) (*Curve, error) {
	if !validMode(mode) {
		return nil, fmt.Errorf("shape mode is invalid: %d", mode)
	}
	if drive < MinDrive || drive > MaxDrive || !core.IsFinite(drive) {
		return nil, fmt.Errorf("shape drive must be in [%g, %g]: %f",
			MinDrive, MaxDrive, drive)
	}

	c := &Curve{
		mode:  mode,
		drive: drive,
	}
	c.synthesize()

	return c, nil
}

// Mode returns the curve mode.
func (c *Curve) Mode() Mode { return c.mode }

// Drive returns the curve drive.
func (c *Curve) Drive() float64 { return c.drive }

// Resolution returns the lookup table length.
func (c *Curve) Resolution() int { return curveResolution }

// SetDrive synthesizes and publishes a new table for a new drive value.
// Safe to call while another goroutine is shaping.
func (c *Curve) SetDrive(drive float64) error {
	if drive < MinDrive || drive > MaxDrive || !core.IsFinite(drive) {
		return fmt.Errorf("shape drive must be in [%g, %g]: %f",
			MinDrive, MaxDrive, drive)
	}

	c.drive = drive
	c.synthesize()

	return nil
}

// SetMode synthesizes and publishes a new table for a new mode.
// Safe to call while another goroutine is shaping.
func (c *Curve) SetMode(mode Mode) error {
	if !validMode(mode) {
		return fmt.Errorf("shape mode is invalid: %d", mode)
	}

	c.mode = mode
	c.synthesize()

	return nil
}

// Apply shapes one sample. Inputs outside [-1, 1] are clamped to the table
// edges, so the output magnitude never exceeds Ceiling.
func (c *Curve) Apply(x float64) float64 {
	return lookup(*c.table.Load(), x)
}

// ApplyInPlace shapes buf in place against one table snapshot, so a
// concurrent SetDrive or SetMode takes effect only between buffers.
func (c *Curve) ApplyInPlace(buf []float64) {
	table := *c.table.Load()
	for i := range buf {
		buf[i] = lookup(table, buf[i])
	}
}

func lookup(table []float64, x float64) float64 {
	pos := (core.Clamp(x, -1, 1) + 1) * 0.5 * float64(len(table)-1)
	idx := int(pos)
	if idx >= len(table)-1 {
		return table[len(table)-1]
	}

	frac := pos - float64(idx)

	return table[idx] + frac*(table[idx+1]-table[idx])
}

func (c *Curve) synthesize() {
	table := make([]float64, curveResolution)
	for i := range table {
		x := 2*float64(i)/float64(curveResolution-1) - 1
		table[i] = c.transfer(x)
	}
	c.table.Store(&table)
}

func (c *Curve) transfer(x float64) float64 {
	var y float64

	switch c.mode {
	case ModeTape:
		// tanh soft clip normalized so drive changes character, not level.
		y = math.Tanh(c.drive*x) / math.Tanh(c.drive)
	case ModeSoft:
		// Rational soft knee: x / (1 + |dx|) rescaled to unity at x = 1.
		d := c.drive * x
		y = d / (1 + math.Abs(d)) * (1 + c.drive) / c.drive
	case ModeWarm:
		// Asymmetric exponential: positive side saturates earlier.
		if x >= 0 {
			y = 1 - math.Exp(-c.drive*x)
		} else {
			y = -(1 - math.Exp(c.drive*x*0.7)) / 0.7
		}
		y /= 1 - math.Exp(-c.drive)
	}

	return core.Clamp(y*Ceiling, -Ceiling, Ceiling)
}
