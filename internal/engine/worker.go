// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ppgbpm/internal/analysis"
	"ppgbpm/internal/frame"
	applog "ppgbpm/internal/log"
	"ppgbpm/internal/transport"
)

// worker is the consumer side of the frame buffer. It owns its frame storage
// and the FFT plan inside the processor, so nothing is allocated per frame.
type worker struct {
	buffer    *frame.Buffer
	processor analysis.FrameProcessor
	out       transport.Transport
	record    func(raw []int32)
	now       func() time.Time

	raw   []int32
	frame []complex64
	seq   uint64

	mu     sync.Mutex // Protects latest
	latest transport.Reading

	estimates  atomic.Uint64
	sendErrors atomic.Uint64
}

func newWorker(buffer *frame.Buffer, processor analysis.FrameProcessor, out transport.Transport, record func([]int32)) *worker {
	return &worker{
		buffer:    buffer,
		processor: processor,
		out:       out,
		record:    record,
		now:       time.Now,
		raw:       make([]int32, buffer.Size()),
		frame:     make([]complex64, buffer.Size()),
	}
}

// run blocks on the ready notification until ctx is cancelled. A frame that
// is being processed when ctx is cancelled is finished first.
func (w *worker) run(ctx context.Context) {
	ready := w.buffer.Ready()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			w.processReady()
		}
	}
}

// processReady takes the ready frame, if any, and reports its estimate.
func (w *worker) processReady() bool {
	if !w.buffer.TakeRawIfReady(w.raw) {
		return false
	}
	if w.record != nil {
		w.record(w.raw)
	}
	for i, v := range w.raw {
		w.frame[i] = complex(float32(v), 0)
	}

	est, err := w.processor.Process(w.frame)
	if err != nil {
		applog.Errorf("Worker: Processing frame %d: %v", w.seq+1, err)
		return false
	}

	w.seq++
	w.estimates.Add(1)
	reading := transport.Reading{
		Seq:       w.seq,
		BPM:       est.BPM,
		Bin:       est.Bin,
		Power:     est.Power,
		Timestamp: w.now(),
	}

	w.mu.Lock()
	w.latest = reading
	w.mu.Unlock()

	if err := w.out.Send(reading); err != nil {
		w.sendErrors.Add(1)
		applog.Warnf("Worker: Delivering reading %d: %v", reading.Seq, err)
	}
	return true
}

func (w *worker) latestReading() (transport.Reading, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.latest.Seq > 0
}
