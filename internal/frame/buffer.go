// SPDX-License-Identifier: MIT
/*
Package frame holds the single piece of state shared between the sampling
goroutine and the estimation worker: a fixed-size frame of raw samples and
its fill cursor. Frames are handed out either raw or widened to complex64
for the FFT.

Thread Safety:
  - One mutex guards the cursor and both frame slots, for the producer and
    the consumer alike
  - The buffer is double buffered: a completed frame moves to the ready slot
    and filling restarts immediately, so the producer never waits on the FFT
  - Readiness is signalled on a 1-slot channel, the worker blocks on it
    instead of polling
  - Append, TakeIfReady and TakeRawIfReady do not allocate
*/
package frame

import (
	"fmt"
	"sync"

	"ppgbpm/pkg/bitint"
)

// Status reports what an Append did to the active frame.
type Status int

const (
	// Filling means the active frame still has free slots.
	Filling Status = iota
	// FrameReady means the append completed a frame, which is now waiting in
	// the ready slot.
	FrameReady
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case Filling:
		return "filling"
	case FrameReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Buffer is a double-buffered frame of N raw samples.
type Buffer struct {
	mu       sync.Mutex
	size     int
	active   []int32 // Frame being filled by Append.
	ready    []int32 // Last completed frame, valid while hasReady.
	cursor   int     // Next write position in active, in [0, size).
	hasReady bool
	overruns uint64 // Completed frames replaced before they were taken.

	readyCh chan struct{}
}

// NewBuffer allocates both frame slots. size must be a power of 2.
func NewBuffer(size int) (*Buffer, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("frame size must be a power of 2, got %d (nearest valid: %d)",
			size, bitint.NextPowerOfTwo(size))
	}
	return &Buffer{
		size:    size,
		active:  make([]int32, size),
		ready:   make([]int32, size),
		readyCh: make(chan struct{}, 1),
	}, nil
}

// Append stores sample at the cursor. When the
// cursor reaches the frame size the active and ready slots swap, the cursor
// wraps to 0 and readiness is signalled. A completed frame that was never
// taken is replaced by the newer one and counted as an overrun.
//
// Append never blocks beyond the buffer mutex.
func (b *Buffer) Append(sample int32) Status {
	b.mu.Lock()
	b.active[b.cursor] = sample
	b.cursor++
	if b.cursor < b.size {
		b.mu.Unlock()
		return Filling
	}

	b.active, b.ready = b.ready, b.active
	if b.hasReady {
		b.overruns++
	}
	b.hasReady = true
	b.cursor = 0
	b.mu.Unlock()

	select {
	case b.readyCh <- struct{}{}:
	default:
		// A notification is already pending.
	}
	return FrameReady
}

// TakeIfReady copies the completed frame into dst as complex samples with a
// zero imaginary part and clears the ready slot. It returns false, leaving
// everything untouched, when no frame is ready. dst must hold exactly Size()
// samples. Samples beyond ±2^24 lose precision in float32.
func (b *Buffer) TakeIfReady(dst []complex64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasReady || len(dst) != b.size {
		return false
	}
	for i, v := range b.ready {
		dst[i] = complex(float32(v), 0)
	}
	b.hasReady = false
	return true
}

// TakeRawIfReady is TakeIfReady for callers that need the samples exactly as
// they were read.
func (b *Buffer) TakeRawIfReady(dst []int32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasReady || len(dst) != b.size {
		return false
	}
	copy(dst, b.ready)
	b.hasReady = false
	return true
}

// Ready returns the channel that receives a value after a frame completes.
// A receive is a hint; TakeIfReady is authoritative.
func (b *Buffer) Ready() <-chan struct{} {
	return b.readyCh
}

// Discard drops the partially filled active frame so the next Append starts
// a new frame at index 0. A completed frame in the ready slot is kept.
func (b *Buffer) Discard() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := b.cursor
	b.cursor = 0
	return dropped
}

// Cursor returns the fill position of the active frame.
func (b *Buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Overruns returns how many completed frames were replaced before the worker
// took them.
func (b *Buffer) Overruns() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overruns
}

// Size returns N.
func (b *Buffer) Size() int {
	return b.size
}
