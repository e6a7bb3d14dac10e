package fx

import (
	"math"
	"testing"
	"time"
)

const (
	testRate  = 44100.0
	testBlock = 128
)

// testOptions builds instances with an idle detector source so tests drive
// tick() deterministically.
func testOptions() []Option {
	return []Option{
		WithSampleRate(testRate),
		WithBlockSize(testBlock),
		WithDetectorSource(make(chan time.Time)),
	}
}

// constBlock returns a block of a constant value.
func constBlock(v float64) []float64 {
	out := make([]float64, testBlock)
	for i := range out {
		out[i] = v
	}
	return out
}

// sineBlocks returns n consecutive blocks of a sine wave.
func sineBlocks(freq float64, n int) [][]float64 {
	out := make([][]float64, n)
	for b := range out {
		block := make([]float64, testBlock)
		for i := range block {
			k := b*testBlock + i
			block[i] = math.Sin(2 * math.Pi * freq * float64(k) / testRate)
		}
		out[b] = block
	}
	return out
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}
