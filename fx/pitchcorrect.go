package fx

import (
	"sync"

	"github.com/cwbudde/algo-rack/dsp/core"
	"github.com/cwbudde/algo-rack/dsp/graph"
	"github.com/cwbudde/algo-rack/dsp/pitch"
)

// Pitch corrector parameter ranges and defaults.
const (
	minRetuneSec     = 0.005
	maxRetuneSec     = 1.0
	defaultRetuneSec = 0.05
)

func pitchParamDefs() ParamDefs {
	return ParamDefs{
		"scale":  {Min: 0, Max: float64(pitch.ScaleCustom), Default: float64(pitch.ScaleChromatic)},
		"root":   {Min: 0, Max: 11, Default: 0},
		"retune": {Min: minRetuneSec, Max: maxRetuneSec, Default: defaultRetuneSec},
		"mix":    {Min: 0, Max: 1, Default: 1},
	}
}

// analyzeStage feeds the pitch detector from the audio path and passes the
// block through unchanged. Detection itself runs on the control tick.
type analyzeStage struct {
	mu  sync.Mutex
	det *pitch.Detector
	fed int
}

func (a *analyzeStage) Process(block []float64) {
	a.mu.Lock()
	a.det.Feed(block)
	if a.fed < pitch.AnalysisSize {
		a.fed += len(block)
	}
	a.mu.Unlock()
}

func (a *analyzeStage) Reset() {
	a.mu.Lock()
	a.det.Reset()
	a.fed = 0
	a.mu.Unlock()
}

func (a *analyzeStage) detect() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.det.Detect()
}

func (a *analyzeStage) primed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.fed >= pitch.AnalysisSize
}

// shiftStage wraps the granular shifter for graph use. The ratio setter is
// called from the control tick while the audio thread processes, so both
// paths lock.
type shiftStage struct {
	mu sync.Mutex
	g  *pitch.GrainShifter
}

func (s *shiftStage) Process(block []float64) {
	s.mu.Lock()
	s.g.ProcessInPlace(block)
	s.mu.Unlock()
}

func (s *shiftStage) Reset() {
	s.mu.Lock()
	s.g.Reset()
	s.mu.Unlock()
}

func (s *shiftStage) setRatio(r float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.g.SetRatio(r)
}

// PitchCorrector detects the input's fundamental, snaps it to the nearest
// degree of the configured scale, and shifts by the smoothed correction
// ratio through a dual-grain granular resampler.
//
// Construction is two-phase: the instance is immediately processable but
// correction only engages once the analysis buffer has primed; Ready()
// closes at that point.
type PitchCorrector struct {
	*baseInstance

	analyze  *analyzeStage
	shifter  *shiftStage
	dry, wet *graph.Gain

	mapper *pitch.NoteMapper
	ratio  *core.Smoothed

	ready     chan struct{}
	readyOnce sync.Once
}

// NewPitchCorrector creates a pitch corrector effect instance.
func NewPitchCorrector(opts ...Option) (*PitchCorrector, error) {
	cfg := applyOptions(opts)

	b, err := newBaseInstance(KindPitchCorrector, pitchParamDefs(), cfg)
	if err != nil {
		return nil, err
	}

	p := &PitchCorrector{
		baseInstance: b,
		ratio:        core.NewSmoothed(1, defaultRetuneSec),
		ready:        make(chan struct{}),
	}

	if err := p.buildStages(); err != nil {
		return nil, err
	}

	b.build = p.connect
	b.apply = p.applyChanged

	if err := p.connect(); err != nil {
		p.recordFault(err)
	} else if err := p.applyChanged(p.store.snapshot()); err != nil {
		p.recordFault(err)
	}

	if err := p.startTicker(cfg, p.tick); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *PitchCorrector) buildStages() error {
	rate := p.cfg.SampleRate

	det, err := pitch.NewDetector(rate)
	if err != nil {
		return err
	}
	p.analyze = &analyzeStage{det: det}
	p.shifter = &shiftStage{g: pitch.NewGrainShifter()}

	if p.mapper, err = pitch.NewNoteMapper(pitch.ScaleChromatic, 0); err != nil {
		return err
	}

	if p.dry, err = graph.NewGain(rate, 0, 1); err != nil {
		return err
	}
	if p.wet, err = graph.NewGain(rate, 1, 1); err != nil {
		return err
	}

	stages := map[string]graph.Stage{
		"analyze": p.analyze,
		"shift":   p.shifter,
		"dry":     p.dry,
		"wet":     p.wet,
	}
	for name, stage := range stages {
		if err := p.g.AddStage(name, stage); err != nil {
			return err
		}
	}

	return nil
}

func (p *PitchCorrector) connect() error {
	return p.g.Connect([]graph.Edge{
		{From: graph.InputID, To: "analyze"},
		{From: "analyze", To: "shift"},
		{From: "shift", To: "wet"},
		{From: "wet", To: graph.OutputID},
		{From: graph.InputID, To: "dry"},
		{From: "dry", To: graph.OutputID},
	})
}

func (p *PitchCorrector) applyChanged(changed Params) error {
	_, scaleChanged := changed["scale"]
	_, rootChanged := changed["root"]
	if scaleChanged || rootChanged {
		mapper, err := pitch.NewNoteMapper(
			pitch.Scale(int(p.store.get("scale"))),
			int(p.store.get("root")),
		)
		if err != nil {
			return err
		}
		p.mapper = mapper
	}

	if v, ok := changed["retune"]; ok {
		p.ratio.SetTaus(v, v)
	}
	if v, ok := changed["mix"]; ok {
		p.dry.SetTarget(1 - v)
		p.wet.SetTarget(v)
	}

	return nil
}

// SetCustomDegrees installs custom scale degrees; valid only while the
// scale parameter selects the custom scale.
func (p *PitchCorrector) SetCustomDegrees(degrees []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mapper.SetCustomDegrees(degrees)
}

// Ready closes once the analysis buffer has primed and correction is live.
func (p *PitchCorrector) Ready() <-chan struct{} { return p.ready }

// tick detects pitch, maps it onto the scale, and advances the smoothed
// correction ratio. Detection dropouts glide the ratio back to unity
// instead of releasing the shift abruptly.
func (p *PitchCorrector) tick() {
	if p.analyze.primed() {
		p.readyOnce.Do(func() { close(p.ready) })
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := 1.0
	if hz, ok := p.analyze.detect(); ok {
		if want, err := p.mapper.Target(hz); err == nil {
			target = want / hz
			if target < pitch.MinRatio {
				target = pitch.MinRatio
			}
			if target > pitch.MaxRatio {
				target = pitch.MaxRatio
			}
		}
	}

	if !p.enabled.Load() {
		target = 1
		p.dry.SetTarget(1)
		p.wet.SetTarget(0)
	} else {
		mix := p.store.get("mix")
		p.dry.SetTarget(1 - mix)
		p.wet.SetTarget(mix)
	}

	p.ratio.SetTarget(target)
	_ = p.shifter.setRatio(p.ratio.Step(1 / DetectorRate))
}
