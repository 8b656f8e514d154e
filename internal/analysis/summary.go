// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNotEnoughSamples is returned when a recording is shorter than one frame.
var ErrNotEnoughSamples = errors.New("not enough samples for one frame")

// Analyze runs p over consecutive frames of samples, starting a new frame
// every hop samples. hop == frame size gives non-overlapping frames. Samples
// that do not fill a final frame are ignored.
func Analyze(p *Pipeline, samples []int32, hop int) ([]Estimate, error) {
	n := p.Estimator().FFTSize()
	if hop <= 0 {
		return nil, fmt.Errorf("hop must be positive, got %d", hop)
	}
	if len(samples) < n {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughSamples, len(samples), n)
	}

	frame := make([]complex64, n)
	estimates := make([]Estimate, 0, (len(samples)-n)/hop+1)
	for start := 0; start+n <= len(samples); start += hop {
		for i, v := range samples[start : start+n] {
			frame[i] = complex(float32(v), 0)
		}
		est, err := p.Process(frame)
		if err != nil {
			return nil, err
		}
		estimates = append(estimates, est)
	}
	return estimates, nil
}

// Summary describes the BPM values of a series of estimates.
type Summary struct {
	Frames int
	Mean   float64
	StdDev float64
	Median float64
	Min    float64
	Max    float64
}

// Summarize computes summary statistics over the estimates' BPM values.
// The zero Summary is returned for an empty series.
func Summarize(estimates []Estimate) Summary {
	if len(estimates) == 0 {
		return Summary{}
	}

	bpm := make([]float64, len(estimates))
	for i, e := range estimates {
		bpm[i] = float64(e.BPM)
	}

	s := Summary{Frames: len(bpm)}
	s.Mean, s.StdDev = stat.MeanStdDev(bpm, nil)
	if len(bpm) == 1 {
		s.StdDev = 0 // Sample deviation is undefined for one value.
	}

	slices.Sort(bpm)
	s.Median = stat.Quantile(0.5, stat.Empirical, bpm, nil)
	s.Min = floats.Min(bpm)
	s.Max = floats.Max(bpm)
	return s
}
