// Package analysis provides offline musical analysis: tempo estimation from
// onset autocorrelation and key detection from chroma profiles. All functions
// operate on plain sample slices and return plain values, so callers running
// them on background goroutines can simply discard results they no longer
// need.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-rack/dsp/graph"
)

// ErrShortInput is returned when the input is too short for a meaningful
// estimate.
var ErrShortInput = errors.New("analysis: input too short")

// Tempo estimation constants. The onset signal is autocorrelated over lags
// covering 60-200 BPM and the winning lag is folded into the canonical
// 70-180 BPM display range.
const (
	tempoBandLowHz  = 40.0
	tempoBandHighHz = 200.0

	tempoFrameSize = 1024
	tempoHopSize   = 512

	tempoSearchMinBPM = 60.0
	tempoSearchMaxBPM = 200.0
	tempoFoldMinBPM   = 70.0
	tempoFoldMaxBPM   = 180.0
)

// TempoResult is an offline tempo estimate.
type TempoResult struct {
	// BPM is the estimated tempo, folded into 70-180 BPM.
	BPM float64
	// Confidence is the normalized autocorrelation peak in [0, 1].
	Confidence float64
}

// Tempo estimates the tempo of samples at the given sample rate. The signal
// is band-passed to the kick/bass range, reduced to a short-frame energy
// envelope, differentiated into an onset-strength signal, and autocorrelated
// over the 60-200 BPM lag range. Roughly two seconds of audio are required;
// shorter input returns ErrShortInput.
func Tempo(samples []float64, sampleRate float64) (TempoResult, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return TempoResult{}, fmt.Errorf("analysis: invalid sample rate %f", sampleRate)
	}
	if len(samples) < tempoFrameSize {
		return TempoResult{}, ErrShortInput
	}

	onset, envRate, err := onsetSignal(samples, sampleRate)
	if err != nil {
		return TempoResult{}, err
	}

	lagMin := int(math.Round(envRate * 60 / tempoSearchMaxBPM))
	lagMax := int(math.Round(envRate * 60 / tempoSearchMinBPM))
	if lagMin < 1 {
		lagMin = 1
	}
	if len(onset) < 2*lagMax {
		return TempoResult{}, ErrShortInput
	}

	bestLag, bestCorr := bestOnsetLag(onset, lagMin, lagMax)
	if bestLag == 0 {
		return TempoResult{}, ErrNoSignal
	}

	bpm := 60 * envRate / float64(bestLag)
	for bpm < tempoFoldMinBPM {
		bpm *= 2
	}
	for bpm > tempoFoldMaxBPM {
		bpm /= 2
	}

	return TempoResult{BPM: bpm, Confidence: clampUnit(bestCorr)}, nil
}

// onsetSignal band-passes the input and returns the rectified first
// difference of its short-frame energy envelope, plus the envelope rate in
// frames per second.
func onsetSignal(samples []float64, sampleRate float64) ([]float64, float64, error) {
	center := math.Sqrt(tempoBandLowHz * tempoBandHighHz)
	q := center / (tempoBandHighHz - tempoBandLowHz)
	band, err := graph.NewBiquad(sampleRate, graph.ShapeBandpass, center, q)
	if err != nil {
		return nil, 0, err
	}

	filtered := make([]float64, len(samples))
	copy(filtered, samples)
	band.Process(filtered)

	frames := 1 + (len(filtered)-tempoFrameSize)/tempoHopSize
	envelope := make([]float64, frames)
	for i := 0; i < frames; i++ {
		frame := filtered[i*tempoHopSize : i*tempoHopSize+tempoFrameSize]
		envelope[i] = floats.Dot(frame, frame) / tempoFrameSize
	}

	onset := make([]float64, frames-1)
	for i := 1; i < frames; i++ {
		if d := envelope[i] - envelope[i-1]; d > 0 {
			onset[i-1] = d
		}
	}

	return onset, sampleRate / tempoHopSize, nil
}

// bestOnsetLag returns the lag with the highest normalized autocorrelation
// of the onset signal, and that correlation value.
func bestOnsetLag(onset []float64, lagMin, lagMax int) (int, float64) {
	bestLag := 0
	bestCorr := 0.0
	for lag := lagMin; lag <= lagMax && lag < len(onset); lag++ {
		head := onset[:len(onset)-lag]
		tail := onset[lag:]
		norm := math.Sqrt(floats.Dot(head, head) * floats.Dot(tail, tail))
		if norm == 0 {
			continue
		}
		corr := floats.Dot(head, tail) / norm
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	return bestLag, bestCorr
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
