// SPDX-License-Identifier: MIT
/*
Package fft implements a recursive radix-2 decimation-in-time FFT over
single-precision complex samples.

The transform works in place: the input slice receives the spectrum. A
scratch slice of at least the same length is used as working storage, with
the roles of input and scratch swapped at every recursion level, so a
transform never allocates.

	X[m]       = E[m] + W^m · O[m]
	X[m + n/2] = E[m] - W^m · O[m]      W = e^(-2πi/n), m in [0, n/2)

Twiddle factors are evaluated in float64 and narrowed to float32, the
butterflies run in float32.
*/
package fft

import (
	"errors"
	"fmt"
	"math"

	"ppgbpm/pkg/bitint"
)

// ErrSizeNotPowerOfTwo is returned when a transform size is not a power of 2.
var ErrSizeNotPowerOfTwo = errors.New("fft size must be a power of 2")

// Transform computes the DFT of v in place. len(v) must be a power of 2 and
// scratch must hold at least len(v) elements; the result is unspecified
// otherwise. Callers validate sizes once at configuration time (see NewPlan).
func Transform(v, scratch []complex64) {
	n := len(v)
	if n <= 1 {
		return
	}
	half := n / 2
	even := scratch[:half]
	odd := scratch[half:n]

	for k := range half {
		even[k] = v[2*k]
		odd[k] = v[2*k+1]
	}

	// v is free while the halves live in scratch, so it becomes their scratch.
	Transform(even, v[:half])
	Transform(odd, v[:half])

	for m := range half {
		angle := 2 * math.Pi * float64(m) / float64(n)
		w := complex(float32(math.Cos(angle)), float32(-math.Sin(angle)))
		z := w * odd[m]
		v[m] = even[m] + z
		v[m+half] = even[m] - z
	}
}

// Inverse computes the inverse DFT of v in place using the
// conjugate-transform-conjugate identity, scaled by 1/n.
func Inverse(v, scratch []complex64) {
	n := len(v)
	if n == 0 {
		return
	}
	for i, c := range v {
		v[i] = complex(real(c), -imag(c))
	}
	Transform(v, scratch)
	scale := 1 / float32(n)
	for i, c := range v {
		v[i] = complex(real(c)*scale, -imag(c)*scale)
	}
}

// Plan owns the scratch storage for transforms of a fixed size. A Plan is not
// safe for concurrent use; each worker owns its own.
type Plan struct {
	size    int
	stages  int // Recursion depth, log2(size).
	scratch []complex64
}

// NewPlan allocates a plan for n-point transforms.
func NewPlan(n int) (*Plan, error) {
	if !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w, got %d", ErrSizeNotPowerOfTwo, n)
	}
	return &Plan{
		size:    n,
		stages:  bitint.Log2(n),
		scratch: make([]complex64, n),
	}, nil
}

// Stages returns the number of butterfly stages, log2 of the plan size.
func (p *Plan) Stages() int {
	return p.stages
}

// Size returns the number of points of the plan.
func (p *Plan) Size() int {
	return p.size
}

// Transform runs the forward FFT of frame in place. The frame length must
// equal the plan size.
func (p *Plan) Transform(frame []complex64) error {
	if len(frame) != p.size {
		return fmt.Errorf("frame length %d does not match plan size %d", len(frame), p.size)
	}
	Transform(frame, p.scratch)
	return nil
}

// Inverse runs the inverse FFT of frame in place.
func (p *Plan) Inverse(frame []complex64) error {
	if len(frame) != p.size {
		return fmt.Errorf("frame length %d does not match plan size %d", len(frame), p.size)
	}
	Inverse(frame, p.scratch)
	return nil
}
