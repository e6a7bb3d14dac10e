package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-rack/dsp/core"
)

// Scale selects the set of pitch classes a corrected note may land on.
type Scale int

const (
	ScaleChromatic Scale = iota
	ScaleMajor
	ScaleMinor
	ScaleHarmonicMinor
	ScalePentatonic
	ScaleCustom
)

// scale degree templates as semitone offsets from the root.
var scaleDegrees = map[Scale][]int{
	ScaleChromatic:     {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	ScaleMajor:         {0, 2, 4, 5, 7, 9, 11},
	ScaleMinor:         {0, 2, 3, 5, 7, 8, 10},
	ScaleHarmonicMinor: {0, 2, 3, 5, 7, 8, 11},
	ScalePentatonic:    {0, 2, 4, 7, 9},
}

// NoteMapper projects detected frequencies onto the nearest member of a
// configured scale.
type NoteMapper struct {
	scale   Scale
	root    int // pitch class 0-11, 0 = C
	degrees []int
}

// NewNoteMapper creates a mapper for the given scale and root pitch class.
// Custom scales are configured afterward with SetCustomDegrees.
func NewNoteMapper(scale Scale, root int) (*NoteMapper, error) {
	if scale < ScaleChromatic || scale > ScaleCustom {
		return nil, fmt.Errorf("scale is invalid: %d", scale)
	}
	if root < 0 || root > 11 {
		return nil, fmt.Errorf("scale root must be a pitch class in [0, 11]: %d", root)
	}

	m := &NoteMapper{scale: scale, root: root}
	if scale == ScaleCustom {
		m.degrees = scaleDegrees[ScaleChromatic]
	} else {
		m.degrees = scaleDegrees[scale]
	}

	return m, nil
}

// SetCustomDegrees installs a custom degree set (semitone offsets in
// [0, 11], at least one entry). Only valid for ScaleCustom mappers.
func (m *NoteMapper) SetCustomDegrees(degrees []int) error {
	if m.scale != ScaleCustom {
		return fmt.Errorf("custom degrees require a custom scale mapper")
	}
	if len(degrees) == 0 {
		return fmt.Errorf("custom scale needs at least one degree")
	}
	for _, d := range degrees {
		if d < 0 || d > 11 {
			return fmt.Errorf("custom scale degree must be in [0, 11]: %d", d)
		}
	}

	m.degrees = append([]int(nil), degrees...)

	return nil
}

// Scale returns the configured scale.
func (m *NoteMapper) Scale() Scale { return m.scale }

// Root returns the configured root pitch class.
func (m *NoteMapper) Root() int { return m.root }

// Target returns the corrected frequency for a detected frequency: the scale
// member nearest to the detection in MIDI space, candidate constrained to
// +/-6 semitones by shifting whole octaves when the nearest degree wraps
// past the octave boundary.
func (m *NoteMapper) Target(detectedHz float64) (float64, error) {
	if !core.IsFinitePositive(detectedHz) {
		return 0, fmt.Errorf("detected frequency must be positive and finite: %f", detectedHz)
	}

	midi := hzToMIDI(detectedHz)

	best := 0.0
	bestDist := math.Inf(1)
	for _, deg := range m.degrees {
		pc := float64((m.root + deg) % 12)

		// Candidate in the octave around the detection.
		cand := pc + 12*math.Round((midi-pc)/12)
		dist := math.Abs(cand - midi)
		if dist > 6 {
			// Wrapped past the octave boundary; take the other side.
			if cand > midi {
				cand -= 12
			} else {
				cand += 12
			}
			dist = math.Abs(cand - midi)
		}

		if dist < bestDist {
			bestDist = dist
			best = cand
		}
	}

	return midiToHz(best), nil
}

func hzToMIDI(hz float64) float64 {
	return 69 + 12*math.Log2(hz/440)
}

func midiToHz(midi float64) float64 {
	return 440 * math.Pow(2, (midi-69)/12)
}
