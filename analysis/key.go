package analysis

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-rack/dsp/spectrum"
	"github.com/cwbudde/algo-rack/dsp/window"
)

// ErrNoSignal is returned when the input carries no usable energy.
var ErrNoSignal = errors.New("analysis: no usable signal")

// Key analysis constants. Spectra are taken over Hann-windowed overlapping
// frames and folded into 12 pitch-class bins.
const (
	keyFrameSize = 4096
	keyHopSize   = 2048

	chromaMinHz = 55.0
	chromaMaxHz = 5000.0

	referenceA4Hz   = 440.0
	referenceA4Note = 69
)

// Krumhansl-Kessler tonal hierarchy profiles, indexed by semitone distance
// from the root.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

var pitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Mode distinguishes major from minor tonality.
type Mode int

const (
	ModeMajor Mode = iota
	ModeMinor
)

func (m Mode) String() string {
	if m == ModeMinor {
		return "minor"
	}
	return "major"
}

// KeyResult is a detected musical key.
type KeyResult struct {
	// Root is the pitch class of the tonic, 0 = C through 11 = B.
	Root int
	// Mode is major or minor.
	Mode Mode
	// Correlation is the Pearson correlation of the chroma vector with the
	// winning profile rotation.
	Correlation float64
}

func (k KeyResult) String() string {
	return fmt.Sprintf("%s %s", pitchClassNames[k.Root%12], k.Mode)
}

// Key detects the musical key of samples at the given sample rate. Magnitude
// spectra over Hann-windowed overlapping frames are folded into 12 chroma
// bins, and the normalized chroma vector is correlated against all 24
// rotations of the Krumhansl major and minor profiles. At least one analysis
// frame of audio is required.
func Key(samples []float64, sampleRate float64) (KeyResult, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return KeyResult{}, fmt.Errorf("analysis: invalid sample rate %f", sampleRate)
	}
	if len(samples) < keyFrameSize {
		return KeyResult{}, ErrShortInput
	}

	chroma, err := chromaVector(samples, sampleRate)
	if err != nil {
		return KeyResult{}, err
	}

	return KeyFromChroma(chroma)
}

// chromaVector accumulates spectral magnitude into 12 normalized pitch-class
// bins.
func chromaVector(samples []float64, sampleRate float64) ([]float64, error) {
	plan, err := algofft.NewPlan64(keyFrameSize)
	if err != nil {
		return nil, err
	}

	hann := window.Generate(window.TypeHann, keyFrameSize)
	frame := make([]float64, keyFrameSize)
	freq := make([]complex128, keyFrameSize)

	chroma := make([]float64, 12)
	for start := 0; start+keyFrameSize <= len(samples); start += keyHopSize {
		copy(frame, samples[start:start+keyFrameSize])
		if err := window.ApplyCoefficientsInPlace(frame, hann); err != nil {
			return nil, err
		}
		for i, v := range frame {
			freq[i] = complex(v, 0)
		}
		if err := plan.Forward(freq, freq); err != nil {
			return nil, err
		}

		mag := spectrum.Magnitude(freq[:keyFrameSize/2])
		for bin := 1; bin < len(mag); bin++ {
			f := float64(bin) * sampleRate / keyFrameSize
			if f < chromaMinHz || f > chromaMaxHz {
				continue
			}
			chroma[pitchClass(f)] += mag[bin]
		}
	}

	total := 0.0
	for _, v := range chroma {
		total += v
	}
	if total == 0 {
		return nil, ErrNoSignal
	}
	for i := range chroma {
		chroma[i] /= total
	}

	return chroma, nil
}

// pitchClass maps a frequency to its nearest equal-tempered pitch class,
// 0 = C through 11 = B.
func pitchClass(freq float64) int {
	note := referenceA4Note + 12*math.Log2(freq/referenceA4Hz)
	pc := int(math.Round(note)) % 12
	if pc < 0 {
		pc += 12
	}
	return pc
}

// KeyFromChroma detects the key of a 12-bin chroma vector by Pearson
// correlation against all 24 rotations of the major and minor profiles.
func KeyFromChroma(chroma []float64) (KeyResult, error) {
	if len(chroma) != 12 {
		return KeyResult{}, fmt.Errorf("analysis: chroma must have 12 bins, got %d", len(chroma))
	}

	best := KeyResult{Correlation: math.Inf(-1)}
	rotated := make([]float64, 12)
	for root := 0; root < 12; root++ {
		for _, mode := range []Mode{ModeMajor, ModeMinor} {
			profile := majorProfile
			if mode == ModeMinor {
				profile = minorProfile
			}
			for i := range rotated {
				rotated[i] = profile[((i-root)%12+12)%12]
			}

			corr := stat.Correlation(rotated, chroma, nil)
			if math.IsNaN(corr) {
				continue
			}
			if corr > best.Correlation {
				best = KeyResult{Root: root, Mode: mode, Correlation: corr}
			}
		}
	}

	if math.IsInf(best.Correlation, -1) {
		return KeyResult{}, ErrNoSignal
	}

	return best, nil
}
