// SPDX-License-Identifier: MIT
/*
Package sampler implements the periodic sample producer: on every trigger
tick it reads one sample from the acquisition source and appends it to the
shared frame buffer.

Performance Critical:
  - Runs on a locked OS thread for the lifetime of Run
  - One read and one Append per tick, no allocations on the success path
  - Never waits on the estimation worker
*/
package sampler

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"ppgbpm/internal/acquire"
	"ppgbpm/internal/frame"
	applog "ppgbpm/internal/log"
)

// ReadErrorPolicy decides what a failed sample read does to the pipeline.
type ReadErrorPolicy int

const (
	// PolicyFatal stops sampling and reports the error. A gap in the sample
	// stream would otherwise corrupt the frame.
	PolicyFatal ReadErrorPolicy = iota
	// PolicyDiscard drops the partially filled frame and keeps sampling.
	PolicyDiscard
)

// String returns the string representation of the ReadErrorPolicy.
func (p ReadErrorPolicy) String() string {
	switch p {
	case PolicyFatal:
		return "fatal"
	case PolicyDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// ParseReadErrorPolicy converts a policy name (case-insensitive).
func ParseReadErrorPolicy(name string) (ReadErrorPolicy, error) {
	switch strings.ToLower(name) {
	case "", "fatal":
		return PolicyFatal, nil
	case "discard", "skip":
		return PolicyDiscard, nil
	default:
		return PolicyFatal, fmt.Errorf("unknown read error policy: '%s'", name)
	}
}

// Sampler is the producer side of the frame buffer.
type Sampler struct {
	source  acquire.Source
	buffer  *frame.Buffer
	trigger Trigger
	policy  ReadErrorPolicy

	samples    atomic.Uint64
	frames     atomic.Uint64
	readErrors atomic.Uint64
}

// New wires a source, buffer and trigger together. Nothing runs until Run.
func New(source acquire.Source, buffer *frame.Buffer, trigger Trigger, policy ReadErrorPolicy) (*Sampler, error) {
	if source == nil {
		return nil, fmt.Errorf("sampler: source cannot be nil")
	}
	if buffer == nil {
		return nil, fmt.Errorf("sampler: frame buffer cannot be nil")
	}
	if trigger == nil {
		return nil, fmt.Errorf("sampler: trigger cannot be nil")
	}
	return &Sampler{
		source:  source,
		buffer:  buffer,
		trigger: trigger,
		policy:  policy,
	}, nil
}

// Run samples once per tick until ctx is cancelled or, under PolicyFatal, a
// read fails. It returns nil on cancellation.
func (s *Sampler) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticks := s.trigger.C()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			if err := s.Sample(); err != nil {
				return err
			}
		}
	}
}

// Sample performs one producer step: read, then append.
func (s *Sampler) Sample() error {
	v, err := s.source.ReadSample()
	if err != nil {
		s.readErrors.Add(1)
		if s.policy == PolicyFatal {
			return fmt.Errorf("sampler: %w", err)
		}
		dropped := s.buffer.Discard()
		applog.Warnf("Sampler: Read failed, dropped %d buffered samples: %v", dropped, err)
		return nil
	}

	s.samples.Add(1)
	if s.buffer.Append(v) == frame.FrameReady {
		s.frames.Add(1)
	}
	return nil
}

// Samples returns the number of samples appended so far.
func (s *Sampler) Samples() uint64 {
	return s.samples.Load()
}

// Frames returns the number of frames completed so far.
func (s *Sampler) Frames() uint64 {
	return s.frames.Load()
}

// ReadErrors returns the number of failed reads.
func (s *Sampler) ReadErrors() uint64 {
	return s.readErrors.Load()
}
