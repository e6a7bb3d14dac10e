package fx

import "fmt"

// Preset is a named parameter bundle for one effect kind.
type Preset struct {
	Name   string
	Values Params
}

// presetTables holds the built-in presets per kind.
var presetTables = map[Kind][]Preset{
	KindDelay: {
		{Name: "slapback", Values: Params{"time": 0.09, "feedback": 0.12, "mix": 0.3, "pingpong": 0}},
		{Name: "eighth-sync", Values: Params{"sync": 1, "division": 0.5, "feedback": 0.45, "mix": 0.35}},
		{Name: "pingpong-wide", Values: Params{"pingpong": 1, "time": 0.4, "feedback": 0.55, "mix": 0.4}},
		{Name: "dub-tape", Values: Params{"time": 0.5, "feedback": 0.7, "damping": 1800, "drive": 5, "mix": 0.45}},
	},
	KindReverb: {
		{Name: "small-chamber", Values: Params{"mode": 1, "decay": 0.9, "size": 0.3, "mix": 0.25}},
		{Name: "large-hall", Values: Params{"mode": 0, "decay": 4.5, "size": 0.8, "mix": 0.35}},
		{Name: "bright-plate", Values: Params{"mode": 2, "decay": 2.2, "damping": 12000, "mix": 0.3}},
		{Name: "ducked-wash", Values: Params{"mode": 0, "decay": 6, "duck": 0.7, "mix": 0.5}},
	},
	KindCompressor: {
		{Name: "gentle-glue", Values: Params{"threshold": -18, "ratio": 2, "knee": 12, "attack": 0.03, "release": 0.3}},
		{Name: "vocal-level", Values: Params{"threshold": -24, "ratio": 4, "knee": 6, "attack": 0.01, "release": 0.15}},
		{Name: "drum-smash", Values: Params{"threshold": -30, "ratio": 10, "knee": 2, "attack": 0.002, "release": 0.08, "makeup": 6}},
	},
	KindGate: {
		{Name: "noise-cut", Values: Params{"threshold": -50, "hold": 0.05, "range": -60}},
		{Name: "drum-tight", Values: Params{"threshold": -35, "hold": 0.02, "range": -80, "release": 0.04}},
		{Name: "duck-voice", Values: Params{"threshold": -30, "flip": 1, "range": -12, "hold": 0.2}},
	},
	KindPitchCorrector: {
		{Name: "chromatic-soft", Values: Params{"scale": 0, "retune": 0.12}},
		{Name: "major-hard", Values: Params{"scale": 1, "retune": 0.01}},
		{Name: "minor-natural", Values: Params{"scale": 2, "retune": 0.06}},
	},
}

// PresetsFor returns the built-in presets for a kind.
func PresetsFor(kind Kind) []Preset {
	presets := presetTables[kind]
	out := make([]Preset, len(presets))
	for i, p := range presets {
		out[i] = Preset{Name: p.Name, Values: p.Values.Clone()}
	}

	return out
}

// ApplyPreset looks up a preset by name for the instance's kind and applies
// it as a normal parameter update.
func ApplyPreset(inst Instance, name string) error {
	for _, p := range presetTables[inst.Kind()] {
		if p.Name == name {
			return inst.Update(p.Values.Clone())
		}
	}

	return fmt.Errorf("fx: no %s preset named %q", inst.Kind(), name)
}
