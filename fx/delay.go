package fx

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-rack/dsp/graph"
	"github.com/cwbudde/algo-rack/dsp/shape"
)

// Delay parameter ranges and defaults.
const (
	minDelayTime     = 0.001
	maxDelayTime     = 2.0
	defaultDelayTime = 0.35

	maxDelayFeedback     = 0.95
	defaultDelayFeedback = 0.4

	defaultDelayMix      = 0.35
	defaultDelayDamping  = 4000.0
	defaultDelayDrive    = 1.5
	defaultDelayDivision = 0.5

	defaultHostTempo = 120.0
)

func delayParamDefs() ParamDefs {
	return ParamDefs{
		"time":     {Min: minDelayTime, Max: maxDelayTime, Default: defaultDelayTime},
		"feedback": {Min: 0, Max: maxDelayFeedback, Default: defaultDelayFeedback},
		"mix":      {Min: 0, Max: 1, Default: defaultDelayMix},
		"damping":  {Min: 200, Max: 16000, Default: defaultDelayDamping},
		"drive":    {Min: shape.MinDrive, Max: shape.MaxDrive, Default: defaultDelayDrive},
		"pingpong": {Min: 0, Max: 1, Default: 0},
		"sync":     {Min: 0, Max: 1, Default: 0},
		"division": {Min: 0.125, Max: 4, Default: defaultDelayDivision},
		"duck":     {Min: 0, Max: 1, Default: 0},
	}
}

// Delay is a feedback delay with damping, tape saturation in the loop, an
// optional ping-pong dual-line topology, tempo sync, and input ducking.
//
// Two delay lines are always constructed. In the normal topology only line A
// runs, feeding back onto itself; ping-pong cross-feeds A into B and B back
// into A. Toggling reconnects only the edges that differ, so line contents
// survive the switch.
type Delay struct {
	*baseInstance

	tapIn        *graph.Tap
	lineA, lineB *graph.DelayTap
	dampA, dampB *graph.Biquad
	satA, satB   *graph.Shaper
	fbA, fbB     *graph.Gain
	dry, wet     *graph.Gain

	duck   *ducker
	window []float64

	tempoBits atomic.Uint64
	pingpong  bool
}

// NewDelay creates a delay effect instance.
func NewDelay(opts ...Option) (*Delay, error) {
	cfg := applyOptions(opts)

	b, err := newBaseInstance(KindDelay, delayParamDefs(), cfg)
	if err != nil {
		return nil, err
	}

	d := &Delay{
		baseInstance: b,
		window:       make([]float64, cfg.proc.BlockSize),
	}
	d.tempoBits.Store(math.Float64bits(defaultHostTempo))

	if err := d.buildStages(); err != nil {
		return nil, err
	}

	b.build = d.connect
	b.apply = d.applyChanged

	if err := d.connect(); err != nil {
		// Construction failure leaves the instance in pass-through with
		// the fault visible; Retry rebuilds.
		d.recordFault(err)
	} else if err := d.applyChanged(d.store.snapshot()); err != nil {
		d.recordFault(err)
	}

	if err := d.startTicker(cfg, d.tick); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Delay) buildStages() error {
	rate := d.cfg.SampleRate

	var err error
	if d.lineA, err = graph.NewDelayTap(rate, maxDelayTime, defaultDelayTime); err != nil {
		return err
	}
	if d.lineB, err = graph.NewDelayTap(rate, maxDelayTime, defaultDelayTime); err != nil {
		return err
	}
	if d.dampA, err = graph.NewBiquad(rate, graph.ShapeLowpass, defaultDelayDamping, 0.707); err != nil {
		return err
	}
	if d.dampB, err = graph.NewBiquad(rate, graph.ShapeLowpass, defaultDelayDamping, 0.707); err != nil {
		return err
	}
	if d.satA, err = graph.NewShaper(shape.ModeTape, defaultDelayDrive); err != nil {
		return err
	}
	if d.satB, err = graph.NewShaper(shape.ModeTape, defaultDelayDrive); err != nil {
		return err
	}
	if d.fbA, err = graph.NewGain(rate, defaultDelayFeedback, maxDelayFeedback); err != nil {
		return err
	}
	if d.fbB, err = graph.NewGain(rate, defaultDelayFeedback, maxDelayFeedback); err != nil {
		return err
	}
	if d.dry, err = graph.NewGain(rate, 1-defaultDelayMix, 1); err != nil {
		return err
	}
	if d.wet, err = graph.NewGain(rate, defaultDelayMix, 1); err != nil {
		return err
	}
	d.tapIn = graph.NewTap(d.cfg.BlockSize)

	if d.duck, err = newDucker(); err != nil {
		return err
	}

	stages := map[string]graph.Stage{
		"tapIn": d.tapIn,
		"lineA": d.lineA, "lineB": d.lineB,
		"dampA": d.dampA, "dampB": d.dampB,
		"satA": d.satA, "satB": d.satB,
		"fbA": d.fbA, "fbB": d.fbB,
		"dry": d.dry, "wet": d.wet,
	}
	for name, stage := range stages {
		if err := d.g.AddStage(name, stage); err != nil {
			return err
		}
	}

	return nil
}

// edges returns the connection table for a topology.
func (d *Delay) edges(pingpong bool) []graph.Edge {
	edges := []graph.Edge{
		{From: graph.InputID, To: "tapIn"},
		{From: graph.InputID, To: "dry"},
		{From: "dry", To: graph.OutputID},
		{From: graph.InputID, To: "lineA"},
		{From: "lineA", To: "dampA"},
		{From: "dampA", To: "satA"},
		{From: "satA", To: "fbA"},
		{From: "lineA", To: "wet"},
		{From: "wet", To: graph.OutputID},
	}

	if !pingpong {
		return append(edges, graph.Edge{From: "fbA", To: "lineA", Feedback: true})
	}

	return append(edges,
		graph.Edge{From: "fbA", To: "lineB"},
		graph.Edge{From: "lineB", To: "dampB"},
		graph.Edge{From: "dampB", To: "satB"},
		graph.Edge{From: "satB", To: "fbB"},
		graph.Edge{From: "fbB", To: "lineA", Feedback: true},
		graph.Edge{From: "lineB", To: "wet"},
	)
}

func (d *Delay) connect() error {
	return d.g.Connect(d.edges(d.pingpong))
}

// applyChanged maps changed parameters onto stage coefficients. The topology
// switch sequences before coefficient updates.
func (d *Delay) applyChanged(changed Params) error {
	if v, ok := changed["pingpong"]; ok {
		want := v != 0
		if want != d.pingpong {
			if _, _, err := d.g.Rewire(d.edges(want)); err != nil {
				return err
			}
			d.pingpong = want
		}
	}

	if _, ok := changed["time"]; ok {
		d.updateTime()
	}
	if _, ok := changed["sync"]; ok {
		d.updateTime()
	}
	if _, ok := changed["division"]; ok {
		d.updateTime()
	}

	if v, ok := changed["feedback"]; ok {
		d.fbA.SetTarget(v)
		d.fbB.SetTarget(v)
	}
	if v, ok := changed["damping"]; ok {
		if err := d.dampA.SetFrequency(v); err != nil {
			return err
		}
		if err := d.dampB.SetFrequency(v); err != nil {
			return err
		}
	}
	if v, ok := changed["drive"]; ok {
		if err := d.satA.SetDrive(v); err != nil {
			return err
		}
		if err := d.satB.SetDrive(v); err != nil {
			return err
		}
	}
	if v, ok := changed["duck"]; ok {
		if err := d.duck.setAmount(v); err != nil {
			return err
		}
	}
	if v, ok := changed["mix"]; ok {
		d.dry.SetTarget(1 - v)
		d.wet.SetTarget(v)
	}

	return nil
}

// updateTime resolves the effective delay time from free-running or synced
// mode and retargets both lines.
func (d *Delay) updateTime() {
	t := d.store.get("time")

	if d.store.get("sync") != 0 {
		bpm := math.Float64frombits(d.tempoBits.Load())
		t = d.store.get("division") * 60 / bpm
		if t < minDelayTime {
			t = minDelayTime
		}
		if t > maxDelayTime {
			t = maxDelayTime
		}
	}

	d.lineA.SetTime(t)
	d.lineB.SetTime(t)
}

// SetHostTempo supplies the host tempo in BPM for sync mode.
func (d *Delay) SetHostTempo(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("host tempo must be positive and finite: %f", bpm)
	}

	d.tempoBits.Store(math.Float64bits(bpm))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateTime()

	return nil
}

// tick is the 60 Hz detector loop: input ducking of the wet path, and the
// disabled override pulling the blend back to dry unity.
func (d *Delay) tick() {
	n := d.tapIn.Read(d.window)

	d.mu.Lock()
	defer d.mu.Unlock()

	duckGain := d.duck.gainTarget(d.window[:n])

	if !d.enabled.Load() {
		d.dry.SetTarget(1)
		d.wet.SetTarget(0)
		return
	}

	mix := d.store.get("mix")
	d.dry.SetTarget(1 - mix)
	d.wet.SetTarget(mix * duckGain)
}
