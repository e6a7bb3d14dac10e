package interp

import (
	"math"
	"testing"
)

func TestHermite4Endpoints(t *testing.T) {
	xm1, x0, x1, x2 := 0.2, 0.5, 0.9, 0.4

	if got := Hermite4(0, xm1, x0, x1, x2); got != x0 {
		t.Fatalf("Hermite4(0) = %v, want %v", got, x0)
	}
	if got := Hermite4(1, xm1, x0, x1, x2); math.Abs(got-x1) > 1e-12 {
		t.Fatalf("Hermite4(1) = %v, want %v", got, x1)
	}
}

func TestHermite4ExactOnLinearRamp(t *testing.T) {
	// Points of x[n] = 2n + 1.
	xm1, x0, x1, x2 := 1.0, 3.0, 5.0, 7.0

	for _, frac := range []float64{0, 0.25, 0.5, 0.75, 1} {
		want := 3 + 2*frac
		if got := Hermite4(frac, xm1, x0, x1, x2); math.Abs(got-want) > 1e-12 {
			t.Fatalf("Hermite4(%v) = %v, want %v", frac, got, want)
		}
	}
}

func TestHermite4Bounded(t *testing.T) {
	// On a smooth sine the interpolant stays close to the true curve.
	f := func(x float64) float64 { return math.Sin(x * 0.7) }

	for n := 1; n < 20; n++ {
		xm1, x0, x1, x2 := f(float64(n-1)), f(float64(n)), f(float64(n+1)), f(float64(n+2))
		got := Hermite4(0.5, xm1, x0, x1, x2)
		want := f(float64(n) + 0.5)
		if math.Abs(got-want) > 0.05 {
			t.Fatalf("midpoint at n=%d: got %v, want ~%v", n, got, want)
		}
	}
}
