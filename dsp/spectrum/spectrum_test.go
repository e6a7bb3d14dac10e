package spectrum

import (
	"math"
	"testing"
)

func TestMagnitudePhasePower(t *testing.T) {
	bins := []complex128{3 + 4i, -1 - 1i, 0}

	mag := Magnitude(bins)
	if len(mag) != len(bins) {
		t.Fatalf("Magnitude length mismatch: got=%d want=%d", len(mag), len(bins))
	}

	if math.Abs(mag[0]-5) > 1e-12 {
		t.Fatalf("Magnitude[0]=%f want=5", mag[0])
	}

	pow := Power(bins)
	if math.Abs(pow[0]-25) > 1e-12 {
		t.Fatalf("Power[0]=%f want=25", pow[0])
	}

	phase := Phase(bins)
	if math.Abs(phase[0]-math.Atan2(4, 3)) > 1e-12 {
		t.Fatalf("Phase[0]=%f mismatch", phase[0])
	}
}

func TestComplexBinsAdapter(t *testing.T) {
	bins := SliceBins([]complex128{1 + 0i, 0 + 2i})

	mag := MagnitudeBins(bins)
	if len(mag) != 2 || math.Abs(mag[0]-1) > 1e-12 || math.Abs(mag[1]-2) > 1e-12 {
		t.Fatalf("unexpected MagnitudeBins output: %v", mag)
	}

	pow := PowerBins(bins)
	if len(pow) != 2 || math.Abs(pow[1]-4) > 1e-12 {
		t.Fatalf("unexpected PowerBins output: %v", pow)
	}
}

func TestEmptyInputs(t *testing.T) {
	if Magnitude(nil) != nil {
		t.Fatal("Magnitude(nil) should be nil")
	}
	if Power(nil) != nil {
		t.Fatal("Power(nil) should be nil")
	}
	if MagnitudeBins(nil) != nil {
		t.Fatal("MagnitudeBins(nil) should be nil")
	}
}

func TestMagnitudeFromParts(t *testing.T) {
	re := []float64{3, -1, 0}
	im := []float64{4, -1, 0}
	dst := make([]float64, 3)
	MagnitudeFromParts(dst, re, im)

	if math.Abs(dst[0]-5) > 1e-12 {
		t.Fatalf("MagnitudeFromParts[0]=%f want=5", dst[0])
	}

	if math.Abs(dst[1]-math.Sqrt(2)) > 1e-12 {
		t.Fatalf("MagnitudeFromParts[1]=%f want=%f", dst[1], math.Sqrt(2))
	}

	if math.Abs(dst[2]-0) > 1e-12 {
		t.Fatalf("MagnitudeFromParts[2]=%f want=0", dst[2])
	}
}

func TestPowerFromParts(t *testing.T) {
	re := []float64{3, -1, 0}
	im := []float64{4, -1, 0}
	dst := make([]float64, 3)
	PowerFromParts(dst, re, im)

	if math.Abs(dst[0]-25) > 1e-12 {
		t.Fatalf("PowerFromParts[0]=%f want=25", dst[0])
	}

	if math.Abs(dst[1]-2) > 1e-12 {
		t.Fatalf("PowerFromParts[1]=%f want=2", dst[1])
	}

	if math.Abs(dst[2]-0) > 1e-12 {
		t.Fatalf("PowerFromParts[2]=%f want=0", dst[2])
	}
}
