package shape

import (
	"math"
	"testing"
)

func TestNewCurveValidation(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		drive   float64
		wantErr bool
	}{
		{"tape default", ModeTape, 1.0, false},
		{"soft high drive", ModeSoft, 20.0, false},
		{"warm low drive", ModeWarm, 0.01, false},
		{"invalid mode", Mode(99), 1.0, true},
		{"drive too low", ModeTape, 0.001, true},
		{"drive too high", ModeTape, 21.0, true},
		{"drive NaN", ModeTape, math.NaN(), true},
		{"drive Inf", ModeTape, math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.mode, tt.drive)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCurve() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestCurveBoundedBelowCeiling sweeps every mode across the full input range
// and the full drive range, asserting outputs never reach the hard clip
// point.
func TestCurveBoundedBelowCeiling(t *testing.T) {
	for _, mode := range []Mode{ModeTape, ModeSoft, ModeWarm} {
		for _, drive := range []float64{0.01, 0.5, 1, 5, 20} {
			c, err := NewCurve(mode, drive)
			if err != nil {
				t.Fatalf("NewCurve(%d, %f) error = %v", mode, drive, err)
			}

			for x := -1.0; x <= 1.0; x += 1.0 / 4096 {
				y := c.Apply(x)
				if math.Abs(y) > Ceiling+1e-12 {
					t.Fatalf("mode %d drive %f: |Apply(%f)| = %f exceeds ceiling %f",
						mode, drive, x, math.Abs(y), Ceiling)
				}
			}
		}
	}
}

func TestCurvePassesThroughOrigin(t *testing.T) {
	for _, mode := range []Mode{ModeTape, ModeSoft, ModeWarm} {
		c, err := NewCurve(mode, 3.0)
		if err != nil {
			t.Fatalf("NewCurve() error = %v", err)
		}

		y := c.Apply(0)
		if math.Abs(y) > 1e-3 {
			t.Errorf("mode %d: Apply(0) = %f, want ~0", mode, y)
		}
	}
}

func TestCurveContinuity(t *testing.T) {
	// Adjacent table entries must differ by a bounded step; a jump would be
	// an audible discontinuity.
	for _, mode := range []Mode{ModeTape, ModeSoft, ModeWarm} {
		c, err := NewCurve(mode, 10.0)
		if err != nil {
			t.Fatalf("NewCurve() error = %v", err)
		}

		prev := c.Apply(-1)
		for x := -1.0; x <= 1.0; x += 1.0 / 8192 {
			y := c.Apply(x)
			if math.Abs(y-prev) > 0.01 {
				t.Fatalf("mode %d: discontinuity at x=%f: %f -> %f", mode, x, prev, y)
			}
			prev = y
		}
	}
}

func TestCurveClampsOutOfRangeInput(t *testing.T) {
	c, err := NewCurve(ModeTape, 2.0)
	if err != nil {
		t.Fatalf("NewCurve() error = %v", err)
	}

	if got, want := c.Apply(3.5), c.Apply(1.0); got != want {
		t.Errorf("Apply(3.5) = %f, want edge value %f", got, want)
	}
	if got, want := c.Apply(-3.5), c.Apply(-1.0); got != want {
		t.Errorf("Apply(-3.5) = %f, want edge value %f", got, want)
	}
}

func TestSetDriveResynthesizes(t *testing.T) {
	c, err := NewCurve(ModeTape, 1.0)
	if err != nil {
		t.Fatalf("NewCurve() error = %v", err)
	}

	before := c.Apply(0.5)
	if err := c.SetDrive(10.0); err != nil {
		t.Fatalf("SetDrive() error = %v", err)
	}
	after := c.Apply(0.5)

	if before == after {
		t.Error("SetDrive(10) did not change the curve")
	}
	if err := c.SetDrive(math.NaN()); err == nil {
		t.Error("SetDrive(NaN) did not error")
	}
}

func TestSetDriveConcurrentWithShaping(t *testing.T) {
	c, err := NewCurve(ModeTape, 1.0)
	if err != nil {
		t.Fatalf("NewCurve() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if err := c.SetDrive(1 + float64(i%2)*15); err != nil {
				return
			}
			if err := c.SetMode(Mode(i % 3)); err != nil {
				return
			}
		}
	}()

	buf := make([]float64, 256)
	for {
		for i := range buf {
			buf[i] = math.Sin(2 * math.Pi * float64(i) / 64)
		}
		c.ApplyInPlace(buf)

		// Every published table is a complete synthesis, so outputs stay
		// within the ceiling no matter when the swap lands.
		for i, v := range buf {
			if math.IsNaN(v) || math.Abs(v) > Ceiling+1e-12 {
				t.Fatalf("output %f at %d during concurrent retuning", v, i)
			}
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

func TestOversampler2xReducesNothingOnSilence(t *testing.T) {
	c, err := NewCurve(ModeTape, 5.0)
	if err != nil {
		t.Fatalf("NewCurve() error = %v", err)
	}

	o := NewOversampler2x()
	buf := make([]float64, 256)
	o.ProcessInPlace(buf, c)

	for i, v := range buf {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("silence shaped to %f at %d", v, i)
		}
	}
}

func TestOversampler2xStaysBounded(t *testing.T) {
	c, err := NewCurve(ModeSoft, 20.0)
	if err != nil {
		t.Fatalf("NewCurve() error = %v", err)
	}

	o := NewOversampler2x()
	buf := make([]float64, 512)
	for i := range buf {
		buf[i] = math.Sin(2 * math.Pi * 997 * float64(i) / 44100)
	}

	o.ProcessInPlace(buf, c)

	for i, v := range buf {
		// Filter ringing can slightly exceed the static ceiling but must
		// remain below full scale.
		if math.Abs(v) > 1.0 {
			t.Fatalf("oversampled output clipped: %f at %d", v, i)
		}
	}
}
