package fx

import (
	"github.com/cwbudde/algo-rack/dsp/envelope"
	"github.com/cwbudde/algo-rack/dsp/graph"
)

// Gate parameter ranges and defaults.
const (
	defaultGateThresholdDB = -40.0
	defaultGateHold        = 0.05
	defaultGateRangeDB     = -40.0
	defaultGateAttack      = 0.002
	defaultGateRelease     = 0.1

	// The RMS window estimate tracks quickly in both directions; the gate's
	// audible ballistics come from the gain smoothing, not the detector.
	gateDetectorAttack  = 0.005
	gateDetectorRelease = 0.005
)

func gateParamDefs() ParamDefs {
	return ParamDefs{
		"threshold": {Min: -80, Max: 0, Default: defaultGateThresholdDB},
		"hold":      {Min: 0, Max: 2, Default: defaultGateHold},
		"range":     {Min: -120, Max: 0, Default: defaultGateRangeDB},
		"attack":    {Min: 0.0005, Max: 0.1, Default: defaultGateAttack},
		"release":   {Min: 0.01, Max: 2, Default: defaultGateRelease},
		"flip":      {Min: 0, Max: 1, Default: 0},
	}
}

// Gate is a noise gate/denoiser: an RMS detector drives the open/holding/
// closed state machine, whose gain target is applied through asymmetric
// smoothing (fast attack on open, slow release on close). Flip mode inverts
// the threshold comparison for duck-style use.
type Gate struct {
	*baseInstance

	tapIn *graph.Tap
	gain  *graph.Gain

	follower *envelope.Follower
	machine  *envelope.GateMachine
	window   []float64
}

// NewGate creates a gate effect instance.
func NewGate(opts ...Option) (*Gate, error) {
	cfg := applyOptions(opts)

	b, err := newBaseInstance(KindGate, gateParamDefs(), cfg)
	if err != nil {
		return nil, err
	}

	g := &Gate{
		baseInstance: b,
		window:       make([]float64, cfg.proc.BlockSize),
	}

	if err := g.buildStages(); err != nil {
		return nil, err
	}

	b.build = g.connect
	b.apply = g.applyChanged
	b.detail = func() string { return g.machine.State().String() }

	if err := g.connect(); err != nil {
		g.recordFault(err)
	} else if err := g.applyChanged(g.store.snapshot()); err != nil {
		g.recordFault(err)
	}

	if err := g.startTicker(cfg, g.tick); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *Gate) buildStages() error {
	rate := g.cfg.SampleRate

	var err error
	if g.gain, err = graph.NewGainAsymmetric(rate, 1, 1, defaultGateAttack, defaultGateRelease); err != nil {
		return err
	}
	g.tapIn = graph.NewTap(g.cfg.BlockSize)

	if g.follower, err = envelope.NewFollower(envelope.ModeRMS, gateDetectorAttack, gateDetectorRelease, DetectorRate); err != nil {
		return err
	}
	if g.machine, err = envelope.NewGateMachine(defaultGateThresholdDB, defaultGateHold,
		defaultGateRangeDB, DetectorRate, false); err != nil {
		return err
	}

	if err := g.g.AddStage("tapIn", g.tapIn); err != nil {
		return err
	}

	return g.g.AddStage("gain", g.gain)
}

func (g *Gate) connect() error {
	return g.g.Connect([]graph.Edge{
		{From: graph.InputID, To: "tapIn"},
		{From: graph.InputID, To: "gain"},
		{From: "gain", To: graph.OutputID},
	})
}

func (g *Gate) applyChanged(changed Params) error {
	if v, ok := changed["threshold"]; ok {
		if err := g.machine.SetThreshold(v); err != nil {
			return err
		}
	}
	if v, ok := changed["hold"]; ok {
		if err := g.machine.SetHold(v, DetectorRate); err != nil {
			return err
		}
	}
	if v, ok := changed["range"]; ok {
		if err := g.machine.SetRange(v); err != nil {
			return err
		}
	}
	if v, ok := changed["flip"]; ok {
		g.machine.SetFlipped(v != 0)
	}

	_, attackChanged := changed["attack"]
	_, releaseChanged := changed["release"]
	if attackChanged || releaseChanged {
		if err := g.gain.SetSmoothing(g.store.get("attack"), g.store.get("release")); err != nil {
			return err
		}
	}

	return nil
}

// State returns the current gate machine state.
func (g *Gate) State() envelope.GateState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.machine.State()
}

// tick advances the detector and state machine one step and retargets the
// gain. A disabled gate is forced back to unity through the same smoothing.
func (g *Gate) tick() {
	n := g.tapIn.Read(g.window)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.follower.Observe(g.window[:n])
	target := g.machine.Observe(g.follower.LevelDB())

	if !g.enabled.Load() {
		target = 1
	}
	g.gain.SetTarget(target)
}
