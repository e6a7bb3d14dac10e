package graph

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-rack/dsp/convolve"
	"github.com/cwbudde/algo-rack/dsp/shape"
)

func TestGainClampsAndSmoothes(t *testing.T) {
	g, err := NewGain(44100, 0, 0.95)
	if err != nil {
		t.Fatalf("NewGain() error = %v", err)
	}

	g.SetTarget(2.0)
	block := make([]float64, 4410) // 100 ms
	for i := range block {
		block[i] = 1
	}
	for b := 0; b < 10; b++ {
		g.Process(block)
		for i := range block {
			block[i] = 1
		}
	}

	if g.Value() > 0.95+1e-9 {
		t.Errorf("gain exceeded its limit: %f", g.Value())
	}
	if g.Value() < 0.9 {
		t.Errorf("gain did not approach its clamped target after 1 s: %f", g.Value())
	}

	g.SetTarget(math.NaN())
	if math.IsNaN(g.sm.Target()) {
		t.Error("NaN target accepted")
	}
}

func TestGainRampsWithinBlock(t *testing.T) {
	g, err := NewGain(44100, 1.0, 1.0)
	if err != nil {
		t.Fatalf("NewGain() error = %v", err)
	}
	g.SetTarget(0)

	block := make([]float64, 512)
	for i := range block {
		block[i] = 1
	}
	g.Process(block)

	// Each successive output sample carries a smaller coefficient.
	for i := 1; i < len(block); i++ {
		if block[i] > block[i-1]+1e-12 {
			t.Fatalf("gain ramp not monotonic at %d: %g > %g", i, block[i], block[i-1])
		}
	}
}

func TestBiquadValidation(t *testing.T) {
	tests := []struct {
		name    string
		shape   FilterShape
		freq    float64
		q       float64
		wantErr bool
	}{
		{"valid lowpass", ShapeLowpass, 1000, 0.707, false},
		{"valid bandpass", ShapeBandpass, 500, 2.0, false},
		{"zero freq", ShapeLowpass, 0, 0.707, true},
		{"above nyquist", ShapeLowpass, 30000, 0.707, true},
		{"zero q", ShapeLowpass, 1000, 0, true},
		{"bad shape", FilterShape(9), 1000, 0.707, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBiquad(44100, tt.shape, tt.freq, tt.q)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewBiquad() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBiquadLowpassAttenuatesHighFrequency(t *testing.T) {
	b, err := NewBiquad(44100, ShapeLowpass, 500, 0.707)
	if err != nil {
		t.Fatalf("NewBiquad() error = %v", err)
	}

	rms := func(freq float64) float64 {
		b.Reset()
		block := make([]float64, 44100)
		for i := range block {
			block[i] = math.Sin(2 * math.Pi * freq * float64(i) / 44100)
		}
		b.Process(block)

		sum := 0.0
		for _, v := range block[22050:] {
			sum += v * v
		}
		return math.Sqrt(sum / 22050)
	}

	low := rms(100)
	high := rms(8000)
	if high > low*0.05 {
		t.Errorf("lowpass barely attenuated 8 kHz: low rms %f, high rms %f", low, high)
	}
}

func TestBiquadHighpassAttenuatesLowFrequency(t *testing.T) {
	b, err := NewBiquad(44100, ShapeHighpass, 2000, 0.707)
	if err != nil {
		t.Fatalf("NewBiquad() error = %v", err)
	}

	block := make([]float64, 44100)
	for i := range block {
		block[i] = math.Sin(2 * math.Pi * 50 * float64(i) / 44100)
	}
	b.Process(block)

	peak := 0.0
	for _, v := range block[22050:] {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 0.05 {
		t.Errorf("highpass passed 50 Hz at peak %f", peak)
	}
}

func TestBiquadFrequencyGlides(t *testing.T) {
	b, err := NewBiquad(44100, ShapeLowpass, 1000, 0.707)
	if err != nil {
		t.Fatalf("NewBiquad() error = %v", err)
	}

	if err := b.SetFrequency(8000); err != nil {
		t.Fatalf("SetFrequency() error = %v", err)
	}

	// Retargeting alone moves nothing; the glide happens as blocks process.
	if got := b.Frequency(); got != 1000 {
		t.Errorf("frequency moved before processing: %f", got)
	}
	if got := b.FrequencyTarget(); got != 8000 {
		t.Errorf("frequency target = %f, want 8000", got)
	}

	block := make([]float64, 128)
	b.Process(block)
	after := b.Frequency()
	if after <= 1000 || after >= 8000 {
		t.Errorf("frequency after one block = %f, want between 1000 and 8000", after)
	}

	prev := after
	for i := 0; i < 500; i++ { // ~1.45 s
		b.Process(block)
		f := b.Frequency()
		if f < prev-1e-9 {
			t.Fatalf("frequency glide not monotonic: %f -> %f", prev, f)
		}
		prev = f
	}
	if math.Abs(prev-8000) > 1 {
		t.Errorf("frequency = %f after settling, want ~8000", prev)
	}
}

func TestBiquadSetFrequencyValidation(t *testing.T) {
	b, err := NewBiquad(44100, ShapeLowpass, 1000, 0.707)
	if err != nil {
		t.Fatalf("NewBiquad() error = %v", err)
	}

	for _, freq := range []float64{0, -100, 30000, math.NaN(), math.Inf(1)} {
		if err := b.SetFrequency(freq); err == nil {
			t.Errorf("SetFrequency(%f) accepted", freq)
		}
	}
	if got := b.FrequencyTarget(); got != 1000 {
		t.Errorf("rejected frequency moved the target: %f", got)
	}
}

func TestBiquadRetargetWhileProcessing(t *testing.T) {
	b, err := NewBiquad(44100, ShapeLowpass, 4000, 0.707)
	if err != nil {
		t.Fatalf("NewBiquad() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			_ = b.SetFrequency(200 + float64(i%2)*15000)
		}
	}()

	block := make([]float64, 128)
	for i := 0; ; i++ {
		for j := range block {
			block[j] = math.Sin(2 * math.Pi * 440 * float64(i*128+j) / 44100)
		}
		b.Process(block)
		for j, v := range block {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite output %f at sample %d", v, j)
			}
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

func TestDelayTapDelaysImpulse(t *testing.T) {
	d, err := NewDelayTap(100, 1.0, 0.2) // 20 samples
	if err != nil {
		t.Fatalf("NewDelayTap() error = %v", err)
	}

	block := make([]float64, 100)
	block[0] = 1
	d.Process(block)

	// Write-then-read places the impulse near sample 19.
	peakAt := 0
	peak := 0.0
	for i, v := range block {
		if a := math.Abs(v); a > peak {
			peak = a
			peakAt = i
		}
	}
	if peakAt < 17 || peakAt > 21 {
		t.Errorf("delayed impulse at sample %d, want ~19", peakAt)
	}
	if peak < 0.9 {
		t.Errorf("delayed impulse attenuated to %f", peak)
	}
}

func TestDelayTapValidation(t *testing.T) {
	if _, err := NewDelayTap(0, 1, 0.5); err == nil {
		t.Error("zero sample rate accepted")
	}
	if _, err := NewDelayTap(44100, 0, 0); err == nil {
		t.Error("zero maximum accepted")
	}
	if _, err := NewDelayTap(44100, 1, 2); err == nil {
		t.Error("initial beyond maximum accepted")
	}
}

func TestShaperKeepsOutputBounded(t *testing.T) {
	s, err := NewShaper(shape.ModeTape, 8)
	if err != nil {
		t.Fatalf("NewShaper() error = %v", err)
	}

	block := make([]float64, 2048)
	for i := range block {
		block[i] = 1.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}
	s.Process(block)

	for i, v := range block {
		if math.Abs(v) > 1.0 {
			t.Fatalf("shaped sample %d out of range: %f", i, v)
		}
	}
}

func TestConvolverPassthroughWithoutEngine(t *testing.T) {
	c, err := NewConvolver(8)
	if err != nil {
		t.Fatalf("NewConvolver() error = %v", err)
	}

	block := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	want := append([]float64(nil), block...)
	c.Process(block)

	for i := range block {
		if block[i] != want[i] {
			t.Errorf("passthrough altered sample %d", i)
		}
	}
}

func TestConvolverSwapEngine(t *testing.T) {
	c, err := NewConvolver(8)
	if err != nil {
		t.Fatalf("NewConvolver() error = %v", err)
	}

	wrong, err := convolve.New([]float64{1}, 16)
	if err != nil {
		t.Fatalf("convolve.New() error = %v", err)
	}
	if err := c.SwapEngine(wrong); err == nil {
		t.Error("mismatched block size accepted")
	}

	half, err := convolve.New([]float64{0.5}, 8)
	if err != nil {
		t.Fatalf("convolve.New() error = %v", err)
	}
	if err := c.SwapEngine(half); err != nil {
		t.Fatalf("SwapEngine() error = %v", err)
	}

	block := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	c.Process(block)
	for i, v := range block {
		if math.Abs(v-0.5) > 1e-9 {
			t.Errorf("sample %d = %f, want 0.5", i, v)
		}
	}
}

func TestTapReadsLastBlock(t *testing.T) {
	tap := NewTap(4)

	block := []float64{1, 2, 3, 4}
	tap.Process(block)

	got := make([]float64, 4)
	if n := tap.Read(got); n != 4 {
		t.Fatalf("Read() = %d, want 4", n)
	}
	for i := range got {
		if got[i] != block[i] {
			t.Errorf("tap[%d] = %f, want %f", i, got[i], block[i])
		}
	}

	tap.Reset()
	tap.Read(got)
	for i, v := range got {
		if v != 0 {
			t.Errorf("tap not cleared at %d: %f", i, v)
		}
	}
}
