package envelope

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rack/dsp/core"
)

// GateState is the discrete state of a gate/denoiser control loop.
type GateState int

const (
	// GateOpen passes signal at unity gain.
	GateOpen GateState = iota
	// GateHolding keeps unity gain while the hold timer runs down after
	// the level drops below threshold.
	GateHolding
	// GateClosed attenuates to the configured range floor.
	GateClosed
)

// String returns the state name for status reporting.
func (s GateState) String() string {
	switch s {
	case GateOpen:
		return "open"
	case GateHolding:
		return "holding"
	case GateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// GateMachine implements the open/holding/closed gate state machine driven
// by one level observation per detector tick. It has no wall-clock
// dependency: hold time is converted to tick counts at construction, and
// each Observe call is one tick.
//
// In flipped (duck) mode the threshold comparison direction is inverted:
// the gate is open while the level is below threshold.
type GateMachine struct {
	thresholdDB float64
	holdTicks   int
	rangeDB     float64
	flipped     bool

	state     GateState
	holdLeft  int
	rangeGain float64
}

// NewGateMachine creates a gate state machine.
// holdSec is converted to ticks at tickHz; rangeDB in [-120, 0] is the
// closed-state attenuation.
func NewGateMachine(thresholdDB, holdSec, rangeDB, tickHz float64, flipped bool) (*GateMachine, error) {
	if !core.IsFinite(thresholdDB) {
		return nil, fmt.Errorf("gate threshold must be finite: %f", thresholdDB)
	}
	if holdSec < 0 || !core.IsFinite(holdSec) {
		return nil, fmt.Errorf("gate hold must be >= 0 seconds: %f", holdSec)
	}
	if rangeDB < -120 || rangeDB > 0 || !core.IsFinite(rangeDB) {
		return nil, fmt.Errorf("gate range must be in [-120, 0] dB: %f", rangeDB)
	}
	if !core.IsFinitePositive(tickHz) {
		return nil, fmt.Errorf("gate tick rate must be positive and finite: %f", tickHz)
	}

	return &GateMachine{
		thresholdDB: thresholdDB,
		holdTicks:   int(math.Round(holdSec * tickHz)),
		rangeDB:     rangeDB,
		flipped:     flipped,
		state:       GateClosed,
		rangeGain:   core.DBToLinear(rangeDB),
	}, nil
}

// SetThreshold updates the threshold in dB.
func (g *GateMachine) SetThreshold(dB float64) error {
	if !core.IsFinite(dB) {
		return fmt.Errorf("gate threshold must be finite: %f", dB)
	}
	g.thresholdDB = dB

	return nil
}

// SetHold updates the hold duration, converted to ticks at tickHz.
func (g *GateMachine) SetHold(holdSec, tickHz float64) error {
	if holdSec < 0 || !core.IsFinite(holdSec) || !core.IsFinitePositive(tickHz) {
		return fmt.Errorf("gate hold must be >= 0 seconds at a positive tick rate: hold=%f rate=%f",
			holdSec, tickHz)
	}
	g.holdTicks = int(math.Round(holdSec * tickHz))

	return nil
}

// SetRange updates the closed-state attenuation in dB.
func (g *GateMachine) SetRange(dB float64) error {
	if dB < -120 || dB > 0 || !core.IsFinite(dB) {
		return fmt.Errorf("gate range must be in [-120, 0] dB: %f", dB)
	}
	g.rangeDB = dB
	g.rangeGain = core.DBToLinear(dB)

	return nil
}

// SetFlipped toggles duck mode (inverted threshold comparison).
func (g *GateMachine) SetFlipped(flipped bool) { g.flipped = flipped }

// State returns the current machine state.
func (g *GateMachine) State() GateState { return g.state }

// Observe advances the machine one tick with the detected level in dB and
// returns the target gain multiplier: 1.0 while open or holding, the range
// gain while closed.
func (g *GateMachine) Observe(levelDB float64) float64 {
	above := levelDB > g.thresholdDB
	if g.flipped {
		above = !above
	}

	switch {
	case above:
		g.state = GateOpen
		g.holdLeft = g.holdTicks
	case g.state == GateOpen:
		g.state = GateHolding
		g.holdLeft = g.holdTicks
		if g.holdLeft == 0 {
			g.state = GateClosed
		}
	case g.state == GateHolding:
		g.holdLeft--
		if g.holdLeft <= 0 {
			g.state = GateClosed
		}
	}

	if g.state == GateClosed {
		return g.rangeGain
	}

	return 1.0
}

// Reset returns the machine to the closed state with no hold pending.
func (g *GateMachine) Reset() {
	g.state = GateClosed
	g.holdLeft = 0
}
