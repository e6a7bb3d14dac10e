// Package fx implements the effect rack: live effect instances (delay,
// reverb, compressor, gate, pitch corrector) built on dsp/graph topologies,
// a validated parameter model with smoothed coefficient application, a
// 60 Hz detector loop, and shared metering/ducking capabilities.
//
// Each instance processes mono blocks; stereo tracks run one instance per
// channel, the way the underlying DSP processors are written.
package fx

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-rack/dsp/core"
	"github.com/cwbudde/algo-rack/dsp/graph"
	"github.com/cwbudde/algo-rack/dsp/meter"
)

// Kind identifies an effect type.
type Kind int

const (
	KindDelay Kind = iota
	KindReverb
	KindCompressor
	KindGate
	KindPitchCorrector
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDelay:
		return "delay"
	case KindReverb:
		return "reverb"
	case KindCompressor:
		return "compressor"
	case KindGate:
		return "gate"
	case KindPitchCorrector:
		return "pitchcorrector"
	default:
		return "unknown"
	}
}

// ErrDisposed is returned by operations on a disposed instance.
var ErrDisposed = errors.New("fx: instance disposed")

// Status is an instance's externally visible state for UI polling.
type Status struct {
	Enabled  bool
	Bypassed bool
	Fault    string
	Detail   string // effect-specific: gate state, "frozen", ...
}

// Instance is one live effect processor.
//
// Process is called by the host's audio goroutine; every other method
// belongs to the control thread (UI polling of levels and status is safe
// from any goroutine).
type Instance interface {
	Kind() Kind

	// Input and Output name the instance's graph endpoints for host chain
	// wiring.
	Input() string
	Output() string

	// Process runs one audio block through the effect. Input and output
	// must be the configured block size. A faulted or disposed instance
	// passes input through so the track never goes silent.
	Process(input, output []float64) error

	// Update merges a sparse parameter set. Non-finite values retain the
	// previous value per parameter; unknown names and out-of-range values
	// reject the update.
	Update(partial Params) error

	// Params returns a read-only snapshot of the full parameter set.
	Params() Params

	SetEnabled(enabled bool)
	Enabled() bool

	InputLevel() meter.Levels
	OutputLevel() meter.Levels
	Status() Status

	// Retry rebuilds the signal graph after a fault.
	Retry() error

	// Dispose stops the detector loop and disconnects all owned stages.
	// Dispose is idempotent.
	Dispose()
}

// TempoAware is implemented by instances whose timing can sync to the host
// tempo (delay musical divisions).
type TempoAware interface {
	SetHostTempo(bpm float64) error
}

// Readier is implemented by instances that need asynchronous one-time setup
// before parameter application is meaningful (pitch corrector analysis
// priming). The channel closes once the instance is ready.
type Readier interface {
	Ready() <-chan struct{}
}

// Option configures effect construction.
type Option func(*config)

type config struct {
	proc       core.ProcessorConfig
	tickSource <-chan time.Time
	channel    int
	seed       int64
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(c *config) {
		if sampleRate > 0 {
			c.proc.SampleRate = sampleRate
		}
	}
}

// WithBlockSize sets the audio block size.
func WithBlockSize(blockSize int) Option {
	return func(c *config) {
		if blockSize > 0 {
			c.proc.BlockSize = blockSize
		}
	}
}

// WithDetectorSource replaces the detector loop's wall clock with an
// external tick channel.
func WithDetectorSource(ch <-chan time.Time) Option {
	return func(c *config) {
		c.tickSource = ch
	}
}

// WithChannel selects which channel of multi-channel synthesized material an
// instance consumes; the reverb reads this side of its decorrelated impulse
// response pair. The per-channel instances of a stereo track pass 0 and 1.
func WithChannel(channel int) Option {
	return func(c *config) {
		if channel >= 0 {
			c.channel = channel
		}
	}
}

// WithSeed keys stochastic synthesis (reverb impulse placement). Paired
// per-channel instances share a seed so they render the same room.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

func applyOptions(opts []Option) config {
	c := config{proc: core.DefaultProcessorConfig(), seed: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	return c
}

// baseInstance carries the plumbing every effect shares: the graph, the
// parameter store, meters, the detector ticker, and fault/bypass handling.
// Concrete effects embed it and supply build/apply/tick behavior.
type baseInstance struct {
	kind Kind
	cfg  core.ProcessorConfig

	store *paramStore
	g     *graph.Graph

	inMeter  *meterTap
	outMeter *meterTap
	ticker   *Ticker

	enabled  atomic.Bool
	bypassed atomic.Bool
	disposed atomic.Bool

	mu     sync.Mutex
	fault  error
	build  func() error               // full topology (re)build
	apply  func(changed Params) error // coefficient application
	detail func() string              // effect-specific status detail
}

func newBaseInstance(kind Kind, defs ParamDefs, cfg config) (*baseInstance, error) {
	g, err := graph.New(cfg.proc.BlockSize)
	if err != nil {
		return nil, err
	}

	b := &baseInstance{
		kind:     kind,
		cfg:      cfg.proc,
		store:    newParamStore(defs),
		g:        g,
		inMeter:  newMeterTap(),
		outMeter: newMeterTap(),
	}
	b.enabled.Store(true)

	return b, nil
}

// startTicker wires the detector loop. Must be called once after the
// concrete effect has set its tick function.
func (b *baseInstance) startTicker(cfg config, tick func()) error {
	var opts []TickerOption
	if cfg.tickSource != nil {
		opts = append(opts, WithTickSource(cfg.tickSource))
	}

	t, err := NewTicker(DetectorRate, tick, opts...)
	if err != nil {
		return err
	}

	b.ticker = t
	t.Start()

	return nil
}

func (b *baseInstance) Kind() Kind { return b.kind }

func (b *baseInstance) Input() string { return graph.InputID }

func (b *baseInstance) Output() string { return graph.OutputID }

func (b *baseInstance) Params() Params { return b.store.snapshot() }

func (b *baseInstance) SetEnabled(enabled bool) { b.enabled.Store(enabled) }

func (b *baseInstance) Enabled() bool { return b.enabled.Load() }

func (b *baseInstance) InputLevel() meter.Levels { return b.inMeter.levels() }

func (b *baseInstance) OutputLevel() meter.Levels { return b.outMeter.levels() }

func (b *baseInstance) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Status{
		Enabled:  b.enabled.Load(),
		Bypassed: b.bypassed.Load(),
	}
	if b.fault != nil {
		s.Fault = b.fault.Error()
	}
	if b.detail != nil {
		s.Detail = b.detail()
	}

	return s
}

// Process runs one block. Faulted, bypassed, and disposed instances copy
// input to output.
func (b *baseInstance) Process(input, output []float64) error {
	if len(input) != b.cfg.BlockSize || len(output) != b.cfg.BlockSize {
		return fmt.Errorf("fx: block length mismatch: in=%d out=%d want %d",
			len(input), len(output), b.cfg.BlockSize)
	}

	b.inMeter.observe(input)

	if b.bypassed.Load() || b.disposed.Load() {
		copy(output, input)
		b.outMeter.observe(output)
		return nil
	}

	if err := b.g.Process(input, output); err != nil {
		b.recordFault(err)
		copy(output, input)
	}

	b.outMeter.observe(output)

	return nil
}

// Update merges a sparse parameter set and applies changed coefficients.
// Topology changes sequence before coefficient updates inside apply.
func (b *baseInstance) Update(partial Params) error {
	if b.disposed.Load() {
		return ErrDisposed
	}

	changed, err := b.store.merge(partial)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.apply == nil {
		return nil
	}

	return b.apply(changed)
}

// Retry rebuilds the graph after a fault and reapplies the full parameter
// set. A non-faulted instance returns nil.
func (b *baseInstance) Retry() error {
	if b.disposed.Load() {
		return ErrDisposed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault == nil {
		return nil
	}
	if b.build == nil {
		return b.fault
	}

	if err := b.build(); err != nil {
		return err
	}

	b.fault = nil
	b.bypassed.Store(false)

	if b.apply != nil {
		return b.apply(b.store.snapshot())
	}

	return nil
}

// Dispose stops the detector loop and disconnects all stages.
func (b *baseInstance) Dispose() {
	if !b.disposed.CompareAndSwap(false, true) {
		return
	}

	if b.ticker != nil {
		b.ticker.Stop()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Drop every connection so owned stages stop feeding the output.
	_ = b.g.Connect(nil)
}

// recordFault flips the instance to bypass and keeps the first fault for
// Status and Retry.
func (b *baseInstance) recordFault(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault == nil {
		b.fault = err
	}
	b.bypassed.Store(true)
}

// faulted reports whether a fault is pending.
func (b *baseInstance) faulted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.fault != nil
}

// Graph exposes the instance's signal graph endpoints for host wiring.
func (b *baseInstance) Graph() *graph.Graph { return b.g }
