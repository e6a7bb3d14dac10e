package fx

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-rack/dsp/core"
	"github.com/cwbudde/algo-rack/dsp/envelope"
	"github.com/cwbudde/algo-rack/dsp/graph"
)

// Compressor parameter ranges and defaults.
const (
	defaultCompThreshold = -24.0
	defaultCompRatio     = 4.0
	defaultCompKnee      = 6.0
	defaultCompAttack    = 0.01
	defaultCompRelease   = 0.2

	maxCompMakeupDB = 24.0
)

func compressorParamDefs() ParamDefs {
	return ParamDefs{
		"threshold": {Min: -60, Max: 0, Default: defaultCompThreshold},
		"ratio":     {Min: 1, Max: 20, Default: defaultCompRatio},
		"knee":      {Min: 0, Max: 24, Default: defaultCompKnee},
		"attack":    {Min: 0.001, Max: 0.5, Default: defaultCompAttack},
		"release":   {Min: 0.01, Max: 2, Default: defaultCompRelease},
		"makeup":    {Min: 0, Max: maxCompMakeupDB, Default: 0},
		"duck":      {Min: 0, Max: 1, Default: 0},
	}
}

// Compressor is a peak-detecting downward compressor with a log-domain
// threshold/ratio/knee gain computer running at the detector rate, plus a
// linear duck amount layered on top of the computed gain.
type Compressor struct {
	*baseInstance

	tapIn *graph.Tap
	gain  *graph.Gain

	follower *envelope.Follower
	duck     *ducker
	window   []float64

	reductionBits atomic.Uint64 // current gain reduction in dB
}

// NewCompressor creates a compressor effect instance.
func NewCompressor(opts ...Option) (*Compressor, error) {
	cfg := applyOptions(opts)

	b, err := newBaseInstance(KindCompressor, compressorParamDefs(), cfg)
	if err != nil {
		return nil, err
	}

	c := &Compressor{
		baseInstance: b,
		window:       make([]float64, cfg.proc.BlockSize),
	}

	if err := c.buildStages(); err != nil {
		return nil, err
	}

	b.build = c.connect
	b.apply = c.applyChanged

	if err := c.connect(); err != nil {
		c.recordFault(err)
	} else if err := c.applyChanged(c.store.snapshot()); err != nil {
		c.recordFault(err)
	}

	if err := c.startTicker(cfg, c.tick); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Compressor) buildStages() error {
	rate := c.cfg.SampleRate

	// Headroom above the largest makeup gain.
	gainLimit := core.DBToLinear(maxCompMakeupDB) * 1.1

	var err error
	// Rising gain is the release move, falling gain is the attack move.
	if c.gain, err = graph.NewGainAsymmetric(rate, 1, gainLimit, defaultCompRelease, defaultCompAttack); err != nil {
		return err
	}
	c.tapIn = graph.NewTap(c.cfg.BlockSize)

	if c.follower, err = envelope.NewFollower(envelope.ModePeak, defaultCompAttack, defaultCompRelease, DetectorRate); err != nil {
		return err
	}
	if c.duck, err = newDucker(); err != nil {
		return err
	}

	if err := c.g.AddStage("tapIn", c.tapIn); err != nil {
		return err
	}

	return c.g.AddStage("gain", c.gain)
}

func (c *Compressor) connect() error {
	return c.g.Connect([]graph.Edge{
		{From: graph.InputID, To: "tapIn"},
		{From: graph.InputID, To: "gain"},
		{From: "gain", To: graph.OutputID},
	})
}

func (c *Compressor) applyChanged(changed Params) error {
	_, attackChanged := changed["attack"]
	_, releaseChanged := changed["release"]
	if attackChanged || releaseChanged {
		attack := c.store.get("attack")
		release := c.store.get("release")
		if err := c.follower.SetTimes(attack, release, DetectorRate); err != nil {
			return err
		}
		if err := c.gain.SetSmoothing(release, attack); err != nil {
			return err
		}
	}

	if v, ok := changed["duck"]; ok {
		if err := c.duck.setAmount(v); err != nil {
			return err
		}
	}

	// Threshold, ratio, knee, and makeup are read by the next tick.
	return nil
}

// Reduction returns the current gain reduction in dB (>= 0).
func (c *Compressor) Reduction() float64 {
	return math.Float64frombits(c.reductionBits.Load())
}

// tick runs the sidechain: peak detection, gain computation, smoothed
// application.
func (c *Compressor) tick() {
	n := c.tapIn.Read(c.window)
	win := c.window[:n]

	c.mu.Lock()
	defer c.mu.Unlock()

	level := c.follower.Observe(win)
	duckGain := c.duck.gainTarget(win)

	if !c.enabled.Load() {
		c.gain.SetTarget(1)
		c.reductionBits.Store(math.Float64bits(0))
		return
	}

	grDB := computeGainDB(
		core.LevelToDB(level),
		c.store.get("threshold"),
		c.store.get("ratio"),
		c.store.get("knee"),
	)

	target := core.DBToLinear(grDB+c.store.get("makeup")) * duckGain
	c.gain.SetTarget(target)
	c.reductionBits.Store(math.Float64bits(-grDB))
}

// computeGainDB is the log-domain gain computer: no reduction below the
// knee, a quadratic transition inside it, and ratio-sloped reduction above
// threshold. The result is <= 0.
func computeGainDB(levelDB, thresholdDB, ratio, kneeDB float64) float64 {
	over := levelDB - thresholdDB
	slope := 1/ratio - 1

	switch {
	case kneeDB > 0 && math.Abs(over) <= kneeDB/2:
		t := over + kneeDB/2
		return slope * t * t / (2 * kneeDB)
	case over > 0:
		return slope * over
	default:
		return 0
	}
}
