package fx

import (
	"sync"

	"github.com/cwbudde/algo-rack/dsp/meter"
)

// meterTap wraps a meter for concurrent use: the audio goroutine observes
// blocks, the UI polls levels at arbitrary rates without side effects.
type meterTap struct {
	mu sync.Mutex
	m  *meter.Meter
}

func newMeterTap() *meterTap {
	return &meterTap{m: meter.New()}
}

func (t *meterTap) observe(block []float64) {
	t.mu.Lock()
	t.m.Observe(block)
	t.mu.Unlock()
}

func (t *meterTap) levels() meter.Levels {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.m.Levels()
}

func (t *meterTap) reset() {
	t.mu.Lock()
	t.m.Reset()
	t.mu.Unlock()
}
