// SPDX-License-Identifier: MIT
package utils

import (
	"io"
	"math"
	"sync"
	"time"

	"ppgbpm/internal/transport"
)

// MockTransport implements the Transport interface for testing.
type MockTransport struct {
	mu       sync.Mutex
	readings []transport.Reading
	notify   chan struct{}
	SendErr  error // Returned by every Send when set.
	Closed   int   // Number of Close calls.
}

// NewMockTransport returns an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{notify: make(chan struct{}, 1)}
}

// Send stores readings for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	switch r := data.(type) {
	case transport.Reading:
		m.readings = append(m.readings, r)
	case *transport.Reading:
		m.readings = append(m.readings, *r)
	}
	err := m.SendErr
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return err
}

// Close counts the call.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}

// Readings returns a copy of everything sent so far.
func (m *MockTransport) Readings() []transport.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Reading(nil), m.readings...)
}

// WaitFor blocks until at least n readings arrived or timeout elapsed, and
// reports whether they did.
func (m *MockTransport) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		got := len(m.readings)
		m.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-m.notify:
		case <-deadline.C:
			return false
		}
	}
}

// SliceSource replays a fixed slice of samples, then returns io.EOF.
type SliceSource struct {
	mu      sync.Mutex
	samples []int32
	pos     int
	Closed  bool
}

// NewSliceSource returns a source yielding samples in order.
func NewSliceSource(samples []int32) *SliceSource {
	return &SliceSource{samples: samples}
}

// ReadSample returns the next sample.
func (s *SliceSource) ReadSample() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	v := s.samples[s.pos]
	s.pos++
	return v, nil
}

// Close marks the source closed.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (s *SliceSource) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given peak amplitude, sampled at sampleRate Hz.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int32(math.Round(math.Sin(2*math.Pi*frequency*t) * amplitude))
	}
	return buffer
}

// GenerateHeartbeat returns size samples of a sine at bpm beats per minute
// riding on a constant baseline, the shape of a clean PPG signal.
func GenerateHeartbeat(size int, sampleRate, bpm, baseline, amplitude float64) []int32 {
	buffer := GenerateSineWave(size, sampleRate, bpm/60, amplitude)
	for i := range buffer {
		buffer[i] += int32(baseline)
	}
	return buffer
}
