package fx

import (
	"fmt"

	"github.com/cwbudde/algo-rack/dsp/envelope"
)

// Ducking is a linear approximation of sidechain compression: the wet gain
// is pulled down in proportion to the detected input peak, capped at a
// maximum depth. Delay and reverb share this behavior.
const (
	maxDuckDepth = 0.9
	duckScale    = 2.0

	duckAttackSec  = 0.005
	duckReleaseSec = 0.150
)

// ducker derives a wet-gain multiplier from the dry input level.
type ducker struct {
	amount   float64
	follower *envelope.Follower
}

func newDucker() (*ducker, error) {
	f, err := envelope.NewFollower(envelope.ModePeak, duckAttackSec, duckReleaseSec, DetectorRate)
	if err != nil {
		return nil, err
	}

	return &ducker{follower: f}, nil
}

// setAmount sets the ducking depth in [0, 1].
func (d *ducker) setAmount(amount float64) error {
	if amount < 0 || amount > 1 {
		return fmt.Errorf("duck amount must be in [0, 1]: %f", amount)
	}
	d.amount = amount

	return nil
}

// gainTarget folds one detector window and returns the wet-gain multiplier.
func (d *ducker) gainTarget(window []float64) float64 {
	level := d.follower.Observe(window)

	duck := d.amount * level * duckScale
	if duck > maxDuckDepth {
		duck = maxDuckDepth
	}

	return 1 - duck
}

func (d *ducker) reset() {
	d.follower.Reset()
}
