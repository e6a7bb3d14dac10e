// Package pitch provides autocorrelation pitch detection, musical scale
// mapping, and granular pitch shifting for real-time pitch correction.
package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rack/dsp/core"
)

const (
	// AnalysisSize is the rolling analysis buffer length in samples.
	AnalysisSize = 1024

	// Fundamental search range in Hz.
	minDetectHz = 70.0
	maxDetectHz = 1100.0

	// rmsFloor suppresses detection on near-silence so low-confidence
	// locks never escape the detector.
	rmsFloor = 0.01

	detectTiny = 1e-12
)

// Detector estimates the fundamental frequency of a rolling sample stream by
// normalized autocorrelation over the lag range corresponding to 70-1100 Hz.
type Detector struct {
	sampleRate float64

	buffer []float64
	write  int
	filled int

	minLag int
	maxLag int

	frame  []float64 // scratch
	scores []float64 // scratch, indexed by lag
}

// NewDetector creates a pitch detector for the given sample rate.
func NewDetector(sampleRate float64) (*Detector, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("pitch detector sample rate must be positive and finite: %f", sampleRate)
	}

	minLag := int(sampleRate / maxDetectHz)
	if minLag < 2 {
		minLag = 2
	}
	// Keep at least a quarter of the buffer overlapping at the longest lag
	// so the correlation estimate stays meaningful.
	maxLag := int(sampleRate / minDetectHz)
	if maxLag > AnalysisSize*3/4 {
		maxLag = AnalysisSize * 3 / 4
	}
	if minLag >= maxLag {
		return nil, fmt.Errorf("pitch detector lag range is empty at sample rate %f", sampleRate)
	}

	return &Detector{
		sampleRate: sampleRate,
		buffer:     make([]float64, AnalysisSize),
		minLag:     minLag,
		maxLag:     maxLag,
		frame:      make([]float64, AnalysisSize),
		scores:     make([]float64, maxLag+1),
	}, nil
}

// SampleRate returns the detector sample rate.
func (d *Detector) SampleRate() float64 { return d.sampleRate }

// Feed appends samples to the rolling analysis buffer.
func (d *Detector) Feed(samples []float64) {
	for _, s := range samples {
		d.buffer[d.write] = s
		d.write++
		if d.write >= len(d.buffer) {
			d.write = 0
		}
	}

	d.filled += len(samples)
	if d.filled > len(d.buffer) {
		d.filled = len(d.buffer)
	}
}

// Detect returns the estimated fundamental frequency in Hz and true, or
// (0, false) when the buffer is not yet full, near-silent, or no periodic
// lag correlates well enough.
func (d *Detector) Detect() (float64, bool) {
	if d.filled < len(d.buffer) {
		return 0, false
	}

	// Linearize the ring so lag indexing is direct.
	frame := d.frame
	for i := range frame {
		frame[i] = d.buffer[(d.write+i)%len(d.buffer)]
	}

	energy := 0.0
	for _, v := range frame {
		energy += v * v
	}
	rms := math.Sqrt(energy / float64(len(frame)))
	if rms < rmsFloor {
		return 0, false
	}

	bestScore := 0.0
	for lag := d.minLag; lag <= d.maxLag; lag++ {
		score := d.correlate(frame, lag)
		d.scores[lag] = score
		if score > bestScore {
			bestScore = score
		}
	}

	// Weak correlation means noise, not pitch.
	if bestScore < 0.5 {
		return 0, false
	}

	// A periodic signal correlates at every multiple of its period; take
	// the smallest lag within a margin of the peak to avoid octave errors.
	for lag := d.minLag; lag <= d.maxLag; lag++ {
		if d.scores[lag] >= bestScore*0.99 {
			return d.sampleRate / float64(lag), true
		}
	}

	return 0, false
}

// correlate computes the normalized autocorrelation of frame at one lag.
func (d *Detector) correlate(frame []float64, lag int) float64 {
	n := len(frame) - lag
	dot := 0.0
	e0 := detectTiny
	e1 := detectTiny
	for i := 0; i < n; i++ {
		a := frame[i]
		b := frame[i+lag]
		dot += a * b
		e0 += a * a
		e1 += b * b
	}

	return dot / math.Sqrt(e0*e1)
}

// Reset clears the analysis buffer.
func (d *Detector) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.write = 0
	d.filled = 0
}
