package envelope

import (
	"math"
	"testing"
)

func TestNewFollowerValidation(t *testing.T) {
	tests := []struct {
		name            string
		mode            Mode
		attack, release float64
		tickHz          float64
		wantErr         bool
	}{
		{"valid peak", ModePeak, 0.01, 0.1, 60, false},
		{"valid rms", ModeRMS, 0.02, 0.2, 60, false},
		{"bad mode", Mode(5), 0.01, 0.1, 60, true},
		{"zero attack", ModePeak, 0, 0.1, 60, true},
		{"negative release", ModePeak, 0.01, -1, 60, true},
		{"zero tick rate", ModePeak, 0.01, 0.1, 0, true},
		{"NaN tick rate", ModePeak, 0.01, 0.1, math.NaN(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFollower(tt.mode, tt.attack, tt.release, tt.tickHz)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFollower() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFollowerPeakTracksFasterThanItReleases(t *testing.T) {
	f, err := NewFollower(ModePeak, 0.005, 0.2, 60)
	if err != nil {
		t.Fatalf("NewFollower() error = %v", err)
	}

	loud := make([]float64, 64)
	for i := range loud {
		loud[i] = 0.8
	}
	quiet := make([]float64, 64)

	var riseTicks int
	for riseTicks = 0; riseTicks < 100; riseTicks++ {
		if f.Observe(loud) > 0.7 {
			break
		}
	}

	var fallTicks int
	for fallTicks = 0; fallTicks < 1000; fallTicks++ {
		if f.Observe(quiet) < 0.1 {
			break
		}
	}

	if riseTicks >= fallTicks {
		t.Errorf("attack (%d ticks) not faster than release (%d ticks)", riseTicks, fallTicks)
	}
}

func TestFollowerRMSOfConstant(t *testing.T) {
	f, err := NewFollower(ModeRMS, 0.001, 0.001, 60)
	if err != nil {
		t.Fatalf("NewFollower() error = %v", err)
	}

	window := make([]float64, 128)
	for i := range window {
		window[i] = 0.5
	}

	var level float64
	for i := 0; i < 200; i++ {
		level = f.Observe(window)
	}

	if math.Abs(level-0.5) > 0.01 {
		t.Errorf("RMS of constant 0.5 = %f, want ~0.5", level)
	}
}

func TestFollowerLevelDBFiniteOnSilence(t *testing.T) {
	f, err := NewFollower(ModeRMS, 0.01, 0.1, 60)
	if err != nil {
		t.Fatalf("NewFollower() error = %v", err)
	}

	f.Observe(make([]float64, 32))
	db := f.LevelDB()
	if math.IsInf(db, 0) || math.IsNaN(db) {
		t.Errorf("LevelDB() on silence = %f, want finite floor", db)
	}
}

func TestGateMachineHoldThenClose(t *testing.T) {
	// Threshold -30 dB, hold 0.05 s at 60 Hz = 3 ticks.
	g, err := NewGateMachine(-30, 0.05, -40, 60, false)
	if err != nil {
		t.Fatalf("NewGateMachine() error = %v", err)
	}

	// Signal at -10 dB: gate opens.
	if gain := g.Observe(-10); gain != 1.0 {
		t.Fatalf("gain above threshold = %f, want 1", gain)
	}
	if g.State() != GateOpen {
		t.Fatalf("state = %v, want open", g.State())
	}

	// Drop to -50 dB: unity holds for the hold duration.
	holdTicks := 0
	for i := 0; i < 10; i++ {
		gain := g.Observe(-50)
		if gain != 1.0 {
			break
		}
		holdTicks++
	}
	if holdTicks < 3 || holdTicks > 4 {
		t.Errorf("held unity for %d ticks, want 3-4 at 0.05s/60Hz", holdTicks)
	}
	if g.State() != GateClosed {
		t.Errorf("state after hold = %v, want closed", g.State())
	}

	// Closed gain is the range floor, never below it.
	want := math.Pow(10, -40.0/20)
	gain := g.Observe(-50)
	if math.Abs(gain-want) > 1e-12 {
		t.Errorf("closed gain = %f, want %f", gain, want)
	}

	// Level returns: reopen immediately.
	if gain := g.Observe(-10); gain != 1.0 {
		t.Errorf("gain after reopen = %f, want 1", gain)
	}
	if g.State() != GateOpen {
		t.Errorf("state after reopen = %v, want open", g.State())
	}
}

func TestGateMachineZeroHoldClosesImmediately(t *testing.T) {
	g, err := NewGateMachine(-30, 0, -80, 60, false)
	if err != nil {
		t.Fatalf("NewGateMachine() error = %v", err)
	}

	g.Observe(-10)
	if gain := g.Observe(-50); gain == 1.0 {
		t.Error("zero-hold gate stayed open after level dropped")
	}
}

func TestGateMachineFlippedMode(t *testing.T) {
	g, err := NewGateMachine(-30, 0, -60, 60, true)
	if err != nil {
		t.Fatalf("NewGateMachine() error = %v", err)
	}

	// Flipped: open while below threshold, attenuate while above.
	if gain := g.Observe(-50); gain != 1.0 {
		t.Errorf("flipped gate below threshold: gain = %f, want 1", gain)
	}

	g.Observe(-10)
	if gain := g.Observe(-10); gain == 1.0 {
		t.Error("flipped gate above threshold stayed at unity")
	}
}

func TestGateMachineValidation(t *testing.T) {
	if _, err := NewGateMachine(math.NaN(), 0.05, -40, 60, false); err == nil {
		t.Error("NaN threshold accepted")
	}
	if _, err := NewGateMachine(-30, -1, -40, 60, false); err == nil {
		t.Error("negative hold accepted")
	}
	if _, err := NewGateMachine(-30, 0.05, 5, 60, false); err == nil {
		t.Error("positive range accepted")
	}
	if _, err := NewGateMachine(-30, 0.05, -40, 0, false); err == nil {
		t.Error("zero tick rate accepted")
	}
}
