package core

import (
	"math"
	"sync/atomic"
)

// Smoothing time constants per parameter class, in seconds. Gain-like
// parameters move quickly; delay times move slowly to avoid pitch artifacts
// from rapid delay-length changes.
const (
	SmoothTimeGain   = 0.015
	SmoothTimeFilter = 0.030
	SmoothTimeDelay  = 0.050
)

// Smoothed is a scalar that approaches its target exponentially over a
// configurable time constant.
//
// Single-writer discipline: one goroutine advances the value via Step (or
// Snap); any goroutine may call SetTarget, Value, or Target. Values are
// stored as atomic bit patterns so the control thread can retarget a
// coefficient the audio thread is stepping.
//
// Non-finite targets are discarded in favor of the last valid target, so a
// bad parameter update can never propagate NaN or Inf into a signal graph
// coefficient.
type Smoothed struct {
	current atomic.Uint64
	target  atomic.Uint64

	riseTau atomic.Uint64
	fallTau atomic.Uint64
}

// NewSmoothed creates a smoothed scalar with equal rise and fall time
// constants, initialized (snapped) to value.
func NewSmoothed(value, tau float64) *Smoothed {
	return NewSmoothedAsymmetric(value, tau, tau)
}

// NewSmoothedAsymmetric creates a smoothed scalar with distinct time
// constants for rising and falling moves. Detector gains use a fast rise
// (attack) and a slow fall (release).
func NewSmoothedAsymmetric(value, riseTau, fallTau float64) *Smoothed {
	if !IsFinite(value) {
		value = 0
	}
	if riseTau <= 0 || !IsFinite(riseTau) {
		riseTau = SmoothTimeGain
	}
	if fallTau <= 0 || !IsFinite(fallTau) {
		fallTau = riseTau
	}

	s := &Smoothed{}
	s.current.Store(math.Float64bits(value))
	s.target.Store(math.Float64bits(value))
	s.riseTau.Store(math.Float64bits(riseTau))
	s.fallTau.Store(math.Float64bits(fallTau))

	return s
}

// SetTaus replaces the rise and fall time constants. Non-positive or
// non-finite values are ignored.
func (s *Smoothed) SetTaus(riseTau, fallTau float64) {
	if IsFinitePositive(riseTau) {
		s.riseTau.Store(math.Float64bits(riseTau))
	}
	if IsFinitePositive(fallTau) {
		s.fallTau.Store(math.Float64bits(fallTau))
	}
}

// SetTarget updates the approach target. A non-finite value is ignored and
// the previous target is retained.
func (s *Smoothed) SetTarget(target float64) {
	if !IsFinite(target) {
		return
	}

	s.target.Store(math.Float64bits(target))
}

// Snap forces the current value and target to value immediately, bypassing
// smoothing. Non-finite values are ignored.
func (s *Smoothed) Snap(value float64) {
	if !IsFinite(value) {
		return
	}

	s.current.Store(math.Float64bits(value))
	s.target.Store(math.Float64bits(value))
}

// Step advances the value by dt seconds toward the target and returns the
// new value. The approach is exponential and never overshoots.
func (s *Smoothed) Step(dt float64) float64 {
	cur := s.Value()
	if dt <= 0 || !IsFinite(dt) {
		return cur
	}

	target := s.Target()
	tau := math.Float64frombits(s.riseTau.Load())
	if target < cur {
		tau = math.Float64frombits(s.fallTau.Load())
	}

	alpha := 1.0 - math.Exp(-dt/tau)
	cur += (target - cur) * alpha
	cur = FlushDenormals(cur)
	s.current.Store(math.Float64bits(cur))

	return cur
}

// Value returns the current smoothed value without advancing it.
func (s *Smoothed) Value() float64 {
	return math.Float64frombits(s.current.Load())
}

// Target returns the current approach target.
func (s *Smoothed) Target() float64 {
	return math.Float64frombits(s.target.Load())
}

// Settled reports whether the value has effectively reached its target.
func (s *Smoothed) Settled() bool {
	return NearlyEqual(s.Value(), s.Target(), 1e-6)
}
