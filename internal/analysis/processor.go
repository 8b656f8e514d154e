// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"ppgbpm/internal/fft"
)

// FrameProcessor turns one completed frame into a heart rate estimate.
// Implementations may transform the frame in place and are not required to be
// safe for concurrent use; the estimation worker owns its processor.
type FrameProcessor interface {
	Process(frame []complex64) (Estimate, error)
}

// Pipeline runs the FFT and the PSD peak search over a frame. It owns the
// transform scratch and the PSD vector, so Process does not allocate.
type Pipeline struct {
	plan      *fft.Plan
	estimator *Estimator
}

// Compile-time check for interface implementation.
var _ FrameProcessor = (*Pipeline)(nil)

// NewPipeline builds the FFT plan and the estimator for frames of fftSize
// samples taken at sampleRate Hz.
func NewPipeline(fftSize int, sampleRate float64, minBPM, maxBPM float64) (*Pipeline, error) {
	plan, err := fft.NewPlan(fftSize)
	if err != nil {
		return nil, err
	}
	estimator, err := NewEstimator(fftSize, sampleRate, minBPM, maxBPM)
	if err != nil {
		return nil, err
	}
	return &Pipeline{plan: plan, estimator: estimator}, nil
}

// Process overwrites frame with its spectrum and returns the estimate.
func (p *Pipeline) Process(frame []complex64) (Estimate, error) {
	if err := p.plan.Transform(frame); err != nil {
		return Estimate{}, fmt.Errorf("transform frame: %w", err)
	}
	est, err := p.estimator.Estimate(frame)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimate: %w", err)
	}
	return est, nil
}

// Plan exposes the FFT plan.
func (p *Pipeline) Plan() *fft.Plan {
	return p.plan
}

// Estimator exposes the configured estimator (bin range, sample rate).
func (p *Pipeline) Estimator() *Estimator {
	return p.estimator
}
