package spectrum

import "testing"

var benchSizes = []struct {
	name string
	size int
}{
	{"64", 64},
	{"256", 256},
	{"1K", 1024},
	{"4K", 4096},
	{"16K", 16384},
}

func benchInput(size int) []complex128 {
	in := make([]complex128, size)
	for i := range in {
		in[i] = complex(float64(i)/10.0, float64(size-i)/10.0)
	}
	return in
}

func BenchmarkMagnitude(b *testing.B) {
	for _, bc := range benchSizes {
		b.Run(bc.name, func(b *testing.B) {
			in := benchInput(bc.size)

			b.SetBytes(int64(bc.size * 16)) // complex128 = 16 bytes
			b.ResetTimer()

			for range b.N {
				_ = Magnitude(in)
			}
		})
	}
}

func BenchmarkPower(b *testing.B) {
	for _, bc := range benchSizes {
		b.Run(bc.name, func(b *testing.B) {
			in := benchInput(bc.size)

			b.SetBytes(int64(bc.size * 16)) // complex128 = 16 bytes
			b.ResetTimer()

			for range b.N {
				_ = Power(in)
			}
		})
	}
}

func BenchmarkPhase(b *testing.B) {
	for _, bc := range benchSizes {
		b.Run(bc.name, func(b *testing.B) {
			in := benchInput(bc.size)

			b.SetBytes(int64(bc.size * 16))
			b.ResetTimer()

			for range b.N {
				_ = Phase(in)
			}
		})
	}
}

func BenchmarkMagnitudeFromParts(b *testing.B) {
	for _, bc := range benchSizes {
		b.Run(bc.name, func(b *testing.B) {
			re := make([]float64, bc.size)
			im := make([]float64, bc.size)
			dst := make([]float64, bc.size)

			for i := range re {
				re[i] = float64(i) / 10.0
				im[i] = float64(bc.size-i) / 10.0
			}

			b.SetBytes(int64(bc.size * 16)) // re+im = 16 bytes per element
			b.ResetTimer()

			for range b.N {
				MagnitudeFromParts(dst, re, im)
			}
		})
	}
}

func BenchmarkPowerFromParts(b *testing.B) {
	for _, bc := range benchSizes {
		b.Run(bc.name, func(b *testing.B) {
			re := make([]float64, bc.size)
			im := make([]float64, bc.size)
			dst := make([]float64, bc.size)

			for i := range re {
				re[i] = float64(i) / 10.0
				im[i] = float64(bc.size-i) / 10.0
			}

			b.SetBytes(int64(bc.size * 16)) // re+im = 16 bytes per element
			b.ResetTimer()

			for range b.N {
				PowerFromParts(dst, re, im)
			}
		})
	}
}
