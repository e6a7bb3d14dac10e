package fx

import (
	"testing"
	"time"

	"github.com/cwbudde/algo-rack/internal/testutil"
)

func newTestReverb(t *testing.T) *Reverb {
	t.Helper()

	r, err := NewReverb(testOptions()...)
	if err != nil {
		t.Fatalf("NewReverb() error = %v", err)
	}
	t.Cleanup(r.Dispose)

	if !waitFor(t, 5*time.Second, func() bool { return r.conv.Engine() != nil }) {
		t.Fatal("initial impulse response never arrived")
	}

	return r
}

func TestReverbGeneratesInitialIR(t *testing.T) {
	r := newTestReverb(t)

	engine := r.conv.Engine()
	wantLen := int(testRate * defaultReverbDecay)
	if got := engine.KernelLen(); got < wantLen-1 || got > wantLen+1 {
		t.Errorf("kernel length = %d, want ~%d", got, wantLen)
	}
}

func TestReverbRegeneratesOnDecayChange(t *testing.T) {
	r := newTestReverb(t)

	if err := r.Update(Params{"decay": 0.5}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	wantLen := int(testRate * 0.5)
	ok := waitFor(t, 5*time.Second, func() bool {
		e := r.conv.Engine()
		return e != nil && e.KernelLen() == wantLen
	})
	if !ok {
		t.Errorf("kernel length = %d after decay change, want %d", r.conv.Engine().KernelLen(), wantLen)
	}
}

func TestReverbFreezeRestoresExactIR(t *testing.T) {
	r := newTestReverb(t)

	if !waitFor(t, 5*time.Second, func() bool { return r.FrozenKernel() != nil }) {
		t.Fatal("active kernel never recorded")
	}

	before := append([]float64(nil), r.FrozenKernel()...)
	beforeEngine := r.conv.Engine()

	if err := r.Update(Params{"freeze": 1}); err != nil {
		t.Fatalf("Update(freeze) error = %v", err)
	}
	if r.conv.Engine() == beforeEngine {
		t.Error("freeze did not swap the convolution engine")
	}
	if got := r.Status().Detail; got != "frozen" {
		t.Errorf("status detail = %q while frozen, want frozen", got)
	}

	if err := r.Update(Params{"freeze": 0}); err != nil {
		t.Fatalf("Update(unfreeze) error = %v", err)
	}

	after := r.FrozenKernel()
	testutil.RequireSliceNearlyEqual(t, after, before, 0)
	if got := r.conv.Engine().KernelLen(); got != len(before) {
		t.Errorf("engine kernel length = %d after unfreeze, want %d", got, len(before))
	}
}

func TestReverbFrozenParameterChangeRegeneratesOnUnfreeze(t *testing.T) {
	r := newTestReverb(t)

	if !waitFor(t, 5*time.Second, func() bool { return r.FrozenKernel() != nil }) {
		t.Fatal("active kernel never recorded")
	}

	if err := r.Update(Params{"freeze": 1}); err != nil {
		t.Fatalf("Update(freeze) error = %v", err)
	}
	if err := r.Update(Params{"decay": 1.0}); err != nil {
		t.Fatalf("Update(decay) error = %v", err)
	}
	if err := r.Update(Params{"freeze": 0}); err != nil {
		t.Fatalf("Update(unfreeze) error = %v", err)
	}

	wantLen := int(testRate * 1.0)
	ok := waitFor(t, 5*time.Second, func() bool {
		e := r.conv.Engine()
		return e != nil && e.KernelLen() == wantLen
	})
	if !ok {
		t.Errorf("kernel length = %d after unfreeze, want %d", r.conv.Engine().KernelLen(), wantLen)
	}
}

// newTestReverbWith is newTestReverb plus extra construction options.
func newTestReverbWith(t *testing.T, extra ...Option) *Reverb {
	t.Helper()

	r, err := NewReverb(append(testOptions(), extra...)...)
	if err != nil {
		t.Fatalf("NewReverb() error = %v", err)
	}
	t.Cleanup(r.Dispose)

	if !waitFor(t, 5*time.Second, func() bool { return r.FrozenKernel() != nil }) {
		t.Fatal("initial impulse response never arrived")
	}

	return r
}

func TestReverbStereoPairDecorrelated(t *testing.T) {
	left := newTestReverbWith(t, WithSeed(7), WithChannel(0))
	right := newTestReverbWith(t, WithSeed(7), WithChannel(1))

	l := left.FrozenKernel()
	r := right.FrozenKernel()
	if len(l) != len(r) {
		t.Fatalf("kernel lengths differ: %d vs %d", len(l), len(r))
	}

	diff, err := testutil.MaxAbsDiff(l, r)
	if err != nil {
		t.Fatalf("MaxAbsDiff error: %v", err)
	}
	if diff == 0 {
		t.Error("left and right impulse responses are identical; no stereo width")
	}
}

func TestReverbSameChannelAndSeedDeterministic(t *testing.T) {
	a := newTestReverbWith(t, WithSeed(7), WithChannel(1))
	b := newTestReverbWith(t, WithSeed(7), WithChannel(1))

	testutil.RequireSliceNearlyEqual(t, a.FrozenKernel(), b.FrozenKernel(), 0)
}

func TestReverbWetSignalAppears(t *testing.T) {
	r := newTestReverb(t)

	if err := r.Update(Params{"mix": 0.5, "predelay": 0}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	out := make([]float64, testBlock)
	silent := constBlock(0)
	for i := 0; i < 50; i++ {
		if err := r.Process(silent, out); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	impulse := constBlock(0)
	impulse[0] = 1
	if err := r.Process(impulse, out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// The synthetic IR has a unit direct impulse; wet energy shows up
	// within the first blocks.
	energy := 0.0
	for i := 0; i < 20; i++ {
		if err := r.Process(silent, out); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		for _, v := range out {
			energy += v * v
		}
	}
	if energy == 0 {
		t.Error("no wet signal after an impulse")
	}
}
