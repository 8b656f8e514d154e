// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"

	"ppgbpm/internal/fft"
	"ppgbpm/pkg/bitint"
)

// Physiological search range used when none is configured.
const (
	DefaultMinBPM = 30
	DefaultMaxBPM = 180
)

var (
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidBinRange   = errors.New("bpm range does not map to a usable bin range")
)

// Estimate is the outcome of one peak search.
type Estimate struct {
	BPM   int     // Heart rate derived from the winning bin, truncated.
	Bin   int     // Index of the PSD maximum within the search range.
	Power float32 // PSD value at Bin.
}

// BinIndex maps a BPM value to its FFT bin, truncating toward zero.
//
//	bin = bpm · N / (60 · Fs)
func BinIndex(bpm float64, fftSize int, sampleRate float64) int {
	return int(bpm * float64(fftSize) / (60 * sampleRate))
}

// BPMForBin maps an FFT bin back to BPM, truncating toward zero.
//
//	bpm = bin · 60 · Fs / N
func BPMForBin(bin int, fftSize int, sampleRate float64) int {
	return int(float64(bin) * 60 * sampleRate / float64(fftSize))
}

// Estimator converts an N-point spectrum into a BPM value by locating the
// power spectral density maximum inside [minIdx, maxIdx).
//
// An Estimator keeps its PSD vector between calls and is therefore owned by a
// single worker.
type Estimator struct {
	fftSize    int
	sampleRate float64
	minIdx     int
	maxIdx     int
	scale      float32   // Fs / N normalization applied to |X[k]|².
	psd        []float32 // Per-bin power of the last spectrum.
}

// NewEstimator validates the configuration and precomputes the bin range.
// The range must satisfy minIdx < maxIdx <= fftSize/2.
func NewEstimator(fftSize int, sampleRate float64, minBPM, maxBPM float64) (*Estimator, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("%w, got %d", fft.ErrSizeNotPowerOfTwo, fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidSampleRate, sampleRate)
	}

	minIdx := BinIndex(minBPM, fftSize, sampleRate)
	maxIdx := BinIndex(maxBPM, fftSize, sampleRate)
	if minIdx < 0 || minIdx >= maxIdx || maxIdx > fftSize/2 {
		return nil, fmt.Errorf("%w: %.0f-%.0f bpm gives bins [%d, %d) for N=%d at %.2f Hz",
			ErrInvalidBinRange, minBPM, maxBPM, minIdx, maxIdx, fftSize, sampleRate)
	}

	return &Estimator{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		minIdx:     minIdx,
		maxIdx:     maxIdx,
		scale:      float32(sampleRate / float64(fftSize)),
		psd:        make([]float32, fftSize),
	}, nil
}

// Estimate computes the PSD of spectrum and returns the BPM of its strongest
// bin in the search range. Ties go to the lowest bin. When the range is empty
// the BPM of minIdx is returned. The spectrum length must equal N.
func (e *Estimator) Estimate(spectrum []complex64) (Estimate, error) {
	if len(spectrum) != e.fftSize {
		return Estimate{}, fmt.Errorf("spectrum length %d does not match fft size %d", len(spectrum), e.fftSize)
	}
	for k := range spectrum {
		re, im := real(spectrum[k]), imag(spectrum[k])
		e.psd[k] = e.scale * (re*re + im*im)
	}

	peak := e.minIdx
	for k := e.minIdx; k < e.maxIdx; k++ {
		if e.psd[k] > e.psd[peak] {
			peak = k
		}
	}

	return Estimate{
		BPM:   BPMForBin(peak, e.fftSize, e.sampleRate),
		Bin:   peak,
		Power: e.psd[peak],
	}, nil
}

// BinRange returns the half-open bin range [minIdx, maxIdx) that is searched.
func (e *Estimator) BinRange() (minIdx, maxIdx int) {
	return e.minIdx, e.maxIdx
}

// FrequencyForBin returns the frequency (Hz) of an FFT bin index.
func (e *Estimator) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= e.fftSize {
		return 0
	}
	return float64(bin) * e.sampleRate / float64(e.fftSize)
}

// FFTSize returns N.
func (e *Estimator) FFTSize() int {
	return e.fftSize
}

// SampleRate returns Fs in Hz.
func (e *Estimator) SampleRate() float64 {
	return e.sampleRate
}
