package fx

import (
	"sync/atomic"

	"github.com/cwbudde/algo-rack/dsp/convolve"
	"github.com/cwbudde/algo-rack/dsp/graph"
	"github.com/cwbudde/algo-rack/dsp/irgen"
)

// Reverb parameter ranges and defaults.
const (
	minReverbDecay     = 0.1
	maxReverbDecay     = 15.0
	defaultReverbDecay = 2.5

	defaultReverbSize     = 0.5
	defaultReverbPredelay = 0.02
	maxReverbPredelay     = 0.25
	defaultReverbMix      = 0.3
	defaultReverbDamping  = 6000.0
)

func reverbParamDefs() ParamDefs {
	return ParamDefs{
		"decay":    {Min: minReverbDecay, Max: maxReverbDecay, Default: defaultReverbDecay},
		"size":     {Min: 0, Max: 1, Default: defaultReverbSize},
		"mode":     {Min: 0, Max: 2, Default: 0},
		"predelay": {Min: 0, Max: maxReverbPredelay, Default: defaultReverbPredelay},
		"mix":      {Min: 0, Max: 1, Default: defaultReverbMix},
		"damping":  {Min: 200, Max: 16000, Default: defaultReverbDamping},
		"freeze":   {Min: 0, Max: 1, Default: 0},
		"duck":     {Min: 0, Max: 1, Default: 0},
	}
}

// Reverb convolves the wet path with a synthetic impulse response. The IR is
// regenerated off the control thread when decay, size, or mode changes and
// handed to the convolver as a complete engine swap between blocks. Freeze
// substitutes a dense looping noise response while preserving the previous
// IR, so unfreezing restores the exact pre-freeze decay.
//
// Stereo tracks run one instance per channel: construct the pair with a
// shared WithSeed and WithChannel(0)/WithChannel(1), so each side consumes
// its half of the decorrelated impulse response pair the generator produces.
type Reverb struct {
	*baseInstance

	tapIn    *graph.Tap
	predelay *graph.DelayTap
	conv     *graph.Convolver
	damp     *graph.Biquad
	dry, wet *graph.Gain

	duck   *ducker
	window []float64

	seed    int64
	channel int
	ir      []float64 // active (non-freeze) kernel, kept for unfreeze restore
	frozen  bool

	// generation discards late results from superseded regenerations.
	generation atomic.Uint64
}

// NewReverb creates a reverb effect instance.
func NewReverb(opts ...Option) (*Reverb, error) {
	cfg := applyOptions(opts)

	b, err := newBaseInstance(KindReverb, reverbParamDefs(), cfg)
	if err != nil {
		return nil, err
	}

	channel := cfg.channel
	if channel > 1 {
		channel = 1 // the generator synthesizes a stereo pair
	}

	r := &Reverb{
		baseInstance: b,
		window:       make([]float64, cfg.proc.BlockSize),
		seed:         cfg.seed,
		channel:      channel,
	}

	if err := r.buildStages(); err != nil {
		return nil, err
	}

	b.build = r.connect
	b.apply = r.applyChanged
	b.detail = r.statusDetail

	// Applying the full default set also kicks off the first IR generation
	// (decay/size/mode are present in the snapshot).
	if err := r.connect(); err != nil {
		r.recordFault(err)
	} else if err := r.applyChanged(r.store.snapshot()); err != nil {
		r.recordFault(err)
	}

	if err := r.startTicker(cfg, r.tick); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Reverb) buildStages() error {
	rate := r.cfg.SampleRate

	var err error
	if r.predelay, err = graph.NewDelayTap(rate, maxReverbPredelay, defaultReverbPredelay); err != nil {
		return err
	}
	if r.conv, err = graph.NewConvolver(r.cfg.BlockSize); err != nil {
		return err
	}
	if r.damp, err = graph.NewBiquad(rate, graph.ShapeLowpass, defaultReverbDamping, 0.707); err != nil {
		return err
	}
	if r.dry, err = graph.NewGain(rate, 1-defaultReverbMix, 1); err != nil {
		return err
	}
	if r.wet, err = graph.NewGain(rate, defaultReverbMix, 1); err != nil {
		return err
	}
	r.tapIn = graph.NewTap(r.cfg.BlockSize)

	if r.duck, err = newDucker(); err != nil {
		return err
	}

	stages := map[string]graph.Stage{
		"tapIn":    r.tapIn,
		"predelay": r.predelay,
		"conv":     r.conv,
		"damp":     r.damp,
		"dry":      r.dry,
		"wet":      r.wet,
	}
	for name, stage := range stages {
		if err := r.g.AddStage(name, stage); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reverb) connect() error {
	return r.g.Connect([]graph.Edge{
		{From: graph.InputID, To: "tapIn"},
		{From: graph.InputID, To: "dry"},
		{From: "dry", To: graph.OutputID},
		{From: graph.InputID, To: "predelay"},
		{From: "predelay", To: "conv"},
		{From: "conv", To: "damp"},
		{From: "damp", To: "wet"},
		{From: "wet", To: graph.OutputID},
	})
}

func (r *Reverb) applyChanged(changed Params) error {
	if v, ok := changed["freeze"]; ok {
		if err := r.setFrozen(v != 0); err != nil {
			return err
		}
	}

	_, decayChanged := changed["decay"]
	_, sizeChanged := changed["size"]
	_, modeChanged := changed["mode"]
	if decayChanged || sizeChanged || modeChanged {
		// Frozen reverbs keep playing the freeze buffer; the new settings
		// take effect on unfreeze via regeneration.
		if !r.frozen {
			r.regenerate()
		} else {
			r.ir = nil
		}
	}

	if v, ok := changed["predelay"]; ok {
		r.predelay.SetTime(v)
	}
	if v, ok := changed["damping"]; ok {
		if err := r.damp.SetFrequency(v); err != nil {
			return err
		}
	}
	if v, ok := changed["duck"]; ok {
		if err := r.duck.setAmount(v); err != nil {
			return err
		}
	}
	if v, ok := changed["mix"]; ok {
		r.dry.SetTarget(1 - v)
		r.wet.SetTarget(v)
	}

	return nil
}

// regenerate synthesizes a new IR and swaps the convolver engine. Synthesis
// runs off the control thread; a result that arrives after a newer request
// is discarded.
func (r *Reverb) regenerate() {
	gen := r.generation.Add(1)

	cfg := irgen.Config{
		SampleRate:   r.cfg.SampleRate,
		DecaySeconds: r.store.get("decay"),
		Size:         r.store.get("size"),
		Mode:         irgen.RoomMode(int(r.store.get("mode"))),
		Seed:         r.seed,
	}
	blockSize := r.cfg.BlockSize
	channel := r.channel

	go func() {
		channels, err := irgen.Generate(cfg)
		if err != nil {
			return
		}
		kernel := channels[channel]

		engine, err := convolve.New(kernel, blockSize)
		if err != nil {
			return
		}

		if r.generation.Load() != gen {
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.generation.Load() != gen || r.frozen || r.disposed.Load() {
			return
		}
		r.ir = kernel
		_ = r.conv.SwapEngine(engine)
	}()
}

// setFrozen toggles freeze mode. The active IR is retained across a freeze
// so unfreezing restores it exactly; if decay/size/mode changed while
// frozen, the IR is regenerated instead.
func (r *Reverb) setFrozen(frozen bool) error {
	if frozen == r.frozen {
		return nil
	}
	r.frozen = frozen

	if frozen {
		r.generation.Add(1) // invalidate in-flight regenerations
		channels, err := irgen.GenerateFreeze(r.cfg.SampleRate, r.seed)
		if err != nil {
			return err
		}
		engine, err := convolve.New(channels[r.channel], r.cfg.BlockSize)
		if err != nil {
			return err
		}
		return r.conv.SwapEngine(engine)
	}

	if r.ir != nil {
		engine, err := convolve.New(r.ir, r.cfg.BlockSize)
		if err != nil {
			return err
		}
		return r.conv.SwapEngine(engine)
	}

	r.regenerate()

	return nil
}

// FrozenKernel returns the retained pre-freeze impulse response, or nil.
func (r *Reverb) FrozenKernel() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ir
}

func (r *Reverb) statusDetail() string {
	if r.frozen {
		return "frozen"
	}
	return ""
}

func (r *Reverb) tick() {
	n := r.tapIn.Read(r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	duckGain := r.duck.gainTarget(r.window[:n])

	if !r.enabled.Load() {
		r.dry.SetTarget(1)
		r.wet.SetTarget(0)
		return
	}

	mix := r.store.get("mix")
	r.dry.SetTarget(1 - mix)
	r.wet.SetTarget(mix * duckGain)
}
