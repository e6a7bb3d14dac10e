// Package convolve implements streaming FFT-based convolution for applying
// impulse-response kernels to block-oriented audio.
package convolve

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// ErrEmptyKernel is returned when a convolver is built from no samples.
var ErrEmptyKernel = errors.New("convolve: empty kernel")

// ErrBlockSize is returned when a processed block does not match the
// configured block size.
var ErrBlockSize = errors.New("convolve: block length mismatch")

// Engine convolves fixed-size input blocks with a kernel using overlap-add.
// State carries the convolution tail between blocks, so consecutive calls
// produce a continuous stream.
//
// The kernel is fixed at construction; replacing an impulse response means
// building a new Engine and swapping it in wholesale between blocks, which
// keeps a half-updated kernel from ever being heard.
type Engine struct {
	kernelFFT []complex128
	kernelLen int
	blockSize int
	fftSize   int

	plan *algofft.Plan[complex128]

	inputPadded  []complex128
	outputPadded []complex128
	tail         []float64
}

// New creates a convolution engine for one kernel channel and a fixed block
// size.
func New(kernel []float64, blockSize int) (*Engine, error) {
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("convolve: block size must be positive: %d", blockSize)
	}

	fftSize := nextPowerOf2(blockSize + len(kernel) - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("convolve: failed to create FFT plan: %w", err)
	}

	e := &Engine{
		kernelFFT:    make([]complex128, fftSize),
		kernelLen:    len(kernel),
		blockSize:    blockSize,
		fftSize:      fftSize,
		plan:         plan,
		inputPadded:  make([]complex128, fftSize),
		outputPadded: make([]complex128, fftSize),
		tail:         make([]float64, len(kernel)-1),
	}

	kernelPadded := make([]complex128, fftSize)
	for i, v := range kernel {
		kernelPadded[i] = complex(v, 0)
	}
	if err := plan.Forward(e.kernelFFT, kernelPadded); err != nil {
		return nil, fmt.Errorf("convolve: failed to transform kernel: %w", err)
	}

	return e, nil
}

// BlockSize returns the fixed block size.
func (e *Engine) BlockSize() int { return e.blockSize }

// KernelLen returns the kernel length in samples.
func (e *Engine) KernelLen() int { return e.kernelLen }

// ProcessTo convolves input into output; both must be blockSize long.
func (e *Engine) ProcessTo(output, input []float64) error {
	if len(input) != e.blockSize || len(output) != e.blockSize {
		return fmt.Errorf("%w: in=%d out=%d want %d", ErrBlockSize, len(input), len(output), e.blockSize)
	}

	for i := range e.inputPadded {
		e.inputPadded[i] = 0
	}
	for i, v := range input {
		e.inputPadded[i] = complex(v, 0)
	}

	if err := e.plan.Forward(e.inputPadded, e.inputPadded); err != nil {
		return fmt.Errorf("convolve: forward FFT failed: %w", err)
	}

	for i := range e.outputPadded {
		e.outputPadded[i] = e.inputPadded[i] * e.kernelFFT[i]
	}

	if err := e.plan.Inverse(e.outputPadded, e.outputPadded); err != nil {
		return fmt.Errorf("convolve: inverse FFT failed: %w", err)
	}

	// First blockSize samples plus the previous tail are this block's
	// output; the remainder becomes the next tail.
	for i := 0; i < e.blockSize; i++ {
		v := real(e.outputPadded[i])
		if i < len(e.tail) {
			v += e.tail[i]
		}
		output[i] = v
	}

	resultLen := e.blockSize + e.kernelLen - 1
	for i := range e.tail {
		v := 0.0
		if e.blockSize+i < resultLen {
			v = real(e.outputPadded[e.blockSize+i])
		}
		if e.blockSize+i < len(e.tail) {
			v += e.tail[e.blockSize+i]
		}
		e.tail[i] = v
	}

	return nil
}

// Reset clears the overlap tail.
func (e *Engine) Reset() {
	for i := range e.tail {
		e.tail[i] = 0
	}
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
