// SPDX-License-Identifier: MIT
package acquire

import (
	"math"
	"sync"
)

// Defaults for the synthetic pulse wave, in raw sensor units.
const (
	DefaultSyntheticBaseline  = 2048
	DefaultSyntheticAmplitude = 400
)

// SyntheticSource generates a PPG-like pulse train at a fixed heart rate:
// a systolic peak followed by a smaller diastolic wave, both gaussian,
// riding on a constant baseline. It is meant for demos and tests, not as a
// physiological model.
type SyntheticSource struct {
	mu         sync.Mutex
	sampleRate float64
	bpm        float64
	baseline   float64
	amplitude  float64
	noise      float64 // Peak deterministic noise, in raw units.
	phase      float64 // Position within the current beat, [0, 1).
	n          uint64
	closed     bool
}

// Compile-time check for interface implementation.
var _ Source = (*SyntheticSource)(nil)

// NewSyntheticSource returns a generator sampled at sampleRate Hz.
func NewSyntheticSource(sampleRate, bpm, noise float64) *SyntheticSource {
	return &SyntheticSource{
		sampleRate: sampleRate,
		bpm:        bpm,
		baseline:   DefaultSyntheticBaseline,
		amplitude:  DefaultSyntheticAmplitude,
		noise:      noise,
	}
}

// ReadSample returns the next generated sample.
func (s *SyntheticSource) ReadSample() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	t := s.phase
	systolic := gauss(t, 0.25, 0.07)
	diastolic := 0.35 * gauss(t, 0.55, 0.09)
	n := s.noise * (2*fract(math.Sin(float64(s.n)*12.9898)*43758.5453) - 1)

	s.phase += s.bpm / 60 / s.sampleRate
	s.phase -= math.Floor(s.phase)
	s.n++

	return int32(s.baseline + s.amplitude*(systolic+diastolic) + n), nil
}

// Close marks the source closed.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
