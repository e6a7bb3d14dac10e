// Package irgen synthesizes stereo room impulse responses by stochastic
// sparse-impulse placement, for use as convolution reverb kernels.
package irgen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-rack/dsp/core"
)

const (
	// MaxDecaySeconds bounds the generated response length.
	MaxDecaySeconds = 15.0

	minDecaySeconds = 0.05
	minSize         = 0.0
	maxSize         = 1.0

	freezeSeconds = 4.0
)

// RoomMode selects the character of the synthesized room.
type RoomMode int

const (
	// RoomHall is a dense, slowly decaying response.
	RoomHall RoomMode = iota
	// RoomChamber is a medium-density response with a faster decay shape.
	RoomChamber
	// RoomPlate is a very dense response with a sharp decay exponent.
	RoomPlate
)

func validRoomMode(m RoomMode) bool {
	return m >= RoomHall && m <= RoomPlate
}

// density returns the mean impulses per second for the mode; the cursor's
// mean step is inversely proportional to this.
func (m RoomMode) density() float64 {
	switch m {
	case RoomChamber:
		return 2400
	case RoomPlate:
		return 6000
	default:
		return 1200
	}
}

// decayExponent returns the envelope shape exponent p in (1 - t/decay)^p.
// Sharper rooms decay with a larger exponent.
func (m RoomMode) decayExponent() float64 {
	switch m {
	case RoomChamber:
		return 3.0
	case RoomPlate:
		return 4.5
	default:
		return 2.0
	}
}

// Config describes one synthetic impulse response.
type Config struct {
	SampleRate   float64
	DecaySeconds float64
	Size         float64 // diffusion in [0, 1]; larger spreads impulses further apart
	Mode         RoomMode
	Seed         int64
}

func (cfg Config) validate() error {
	if !core.IsFinitePositive(cfg.SampleRate) {
		return fmt.Errorf("ir sample rate must be positive and finite: %f", cfg.SampleRate)
	}
	if cfg.DecaySeconds < minDecaySeconds || !core.IsFinite(cfg.DecaySeconds) {
		return fmt.Errorf("ir decay must be >= %g seconds: %f", minDecaySeconds, cfg.DecaySeconds)
	}
	if cfg.Size < minSize || cfg.Size > maxSize || !core.IsFinite(cfg.Size) {
		return fmt.Errorf("ir size must be in [%g, %g]: %f", minSize, maxSize, cfg.Size)
	}
	if !validRoomMode(cfg.Mode) {
		return fmt.Errorf("ir room mode is invalid: %d", cfg.Mode)
	}

	return nil
}

// Generate synthesizes a two-channel impulse response of length
// round(sampleRate * min(decay, MaxDecaySeconds)) per channel.
//
// Impulses are placed by advancing a write cursor in randomized steps whose
// mean is inversely proportional to the mode density (stretched by Size),
// scaled by the decay envelope, with independent per-channel sign and
// amplitude jitter to decorrelate the stereo pair. Generation is
// deterministic for a given Config including Seed.
func Generate(cfg Config) ([][]float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	decay := math.Min(cfg.DecaySeconds, MaxDecaySeconds)
	length := int(math.Round(cfg.SampleRate * decay))
	if length < 1 {
		length = 1
	}

	out := [][]float64{
		make([]float64, length),
		make([]float64, length),
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	meanStep := cfg.SampleRate / cfg.Mode.density() * (1 + 2*cfg.Size)
	if meanStep < 1 {
		meanStep = 1
	}
	p := cfg.Mode.decayExponent()

	// Direct sound.
	out[0][0] = 1
	out[1][0] = 1

	cursor := 0.0
	for {
		cursor += rng.Float64() * 2 * meanStep
		idx := int(cursor)
		if idx >= length {
			break
		}

		t := float64(idx) / float64(length)
		env := math.Pow(1-t, p)

		base := env * (0.25 + 0.75*rng.Float64())
		sign := 1.0
		if rng.Float64() < 0.5 {
			sign = -1
		}

		// Channel variation: shared impulse, independent amplitude and
		// occasional sign flips for stereo width.
		out[0][idx] += sign * base * (0.7 + 0.3*rng.Float64())
		if rng.Float64() < 0.25 {
			sign = -sign
		}
		out[1][idx] += sign * base * (0.7 + 0.3*rng.Float64())
	}

	normalize(out)

	return out, nil
}

// GenerateFreeze builds a dense looping noise buffer used while a reverb is
// frozen. Its level is flat rather than decaying, so the tail sustains
// indefinitely when looped.
func GenerateFreeze(sampleRate float64, seed int64) ([][]float64, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("ir sample rate must be positive and finite: %f", sampleRate)
	}

	length := int(math.Round(sampleRate * freezeSeconds))
	rng := rand.New(rand.NewSource(seed))

	out := [][]float64{
		make([]float64, length),
		make([]float64, length),
	}
	for ch := range out {
		for i := range out[ch] {
			out[ch][i] = rng.Float64()*2 - 1
		}
	}

	normalize(out)

	return out, nil
}

// normalize scales all channels by a shared factor so the loudest sample has
// unit magnitude, preserving inter-channel balance.
func normalize(chans [][]float64) {
	peak := 0.0
	for _, ch := range chans {
		for _, v := range ch {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	if peak == 0 {
		return
	}

	inv := 1 / peak
	for _, ch := range chans {
		for i := range ch {
			ch[i] *= inv
		}
	}
}
