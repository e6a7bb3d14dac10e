package fx

import (
	"fmt"
	"sync"
	"time"
)

// DetectorRate is the detector loop rate in Hz. Envelope followers and gate
// hold times are calibrated against this rate.
const DetectorRate = 60.0

// Ticker invokes a function at a fixed rate on its own goroutine, off the
// audio path. The tick source is injectable so detector loops can be driven
// without wall-clock waiting in tests.
type Ticker struct {
	fn     func()
	source <-chan time.Time
	owned  *time.Ticker

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// TickerOption configures a Ticker.
type TickerOption func(*Ticker)

// WithTickSource replaces the wall-clock ticker with an external channel.
func WithTickSource(ch <-chan time.Time) TickerOption {
	return func(t *Ticker) {
		t.source = ch
	}
}

// NewTicker creates a stopped ticker that will call fn at rateHz.
func NewTicker(rateHz float64, fn func(), opts ...TickerOption) (*Ticker, error) {
	if rateHz <= 0 {
		return nil, fmt.Errorf("ticker rate must be positive: %f", rateHz)
	}
	if fn == nil {
		return nil, fmt.Errorf("ticker function must not be nil")
	}

	t := &Ticker{fn: fn}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	if t.source == nil {
		t.owned = time.NewTicker(time.Duration(float64(time.Second) / rateHz))
		t.source = t.owned.C
	}

	return t, nil
}

// Start launches the tick goroutine. Starting a running ticker is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.running = true

	go func(stop, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-t.source:
				t.fn()
			}
		}
	}(t.stop, t.done)
}

// Stop halts the tick goroutine and waits for it to exit. Stopping a stopped
// ticker is a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}

	close(t.stop)
	<-t.done
	t.running = false

	if t.owned != nil {
		t.owned.Stop()
	}
}

// Running reports whether the tick goroutine is live.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}
