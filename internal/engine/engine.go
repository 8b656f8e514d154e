// SPDX-License-Identifier: MIT
/*
Package engine implements the real-time heart rate pipeline with:
- A ticker-driven sampler filling a double-buffered frame
- An estimation worker running the FFT and PSD peak search per frame
- Fan-out of every reading to the configured transports
- Optional WAV recording of the frames handed to the estimator

Thread Safety:
- The sampler and the worker share only the frame buffer, which guards every
  access with its own mutex
- The worker blocks on the buffer's ready notification and never spins
- Lifecycle state is atomic and readable from any goroutine
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"ppgbpm/internal/acquire"
	"ppgbpm/internal/analysis"
	"ppgbpm/internal/config"
	"ppgbpm/internal/frame"
	applog "ppgbpm/internal/log"
	"ppgbpm/internal/sampler"
	"ppgbpm/internal/transport"
)

// ErrAlreadyStarted is returned by Run when the engine has already run.
var ErrAlreadyStarted = errors.New("engine already started")

// State is the lifecycle state of an Engine.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateTerminating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Samples    uint64 // Samples appended to the frame buffer.
	Frames     uint64 // Frames completed by the sampler.
	Estimates  uint64 // Frames processed by the worker.
	Overruns   uint64 // Ready frames replaced before the worker took them.
	ReadErrors uint64 // Failed source reads.
	SendErrors uint64 // Readings a transport failed to deliver.
}

type Engine struct {
	// Core configuration and state.
	config *config.Config
	state  atomic.Int32

	// Acquisition side.
	source  acquire.Source
	trigger sampler.Trigger
	buffer  *frame.Buffer
	sampler *sampler.Sampler

	// Estimation side.
	worker    *worker
	transport transport.Multi

	// Lifecycle.
	sourceOnce    sync.Once
	sourceErr     error
	started       atomic.Bool
	stopOnce      sync.Once
	mu            sync.Mutex // Protects cancel and stopRequested
	cancel        context.CancelFunc
	stopRequested bool
	done          chan struct{}

	// Recording state and buffers.
	isRecording atomic.Bool
	recMu       sync.Mutex // Protects the encoder while a frame is written
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
}

// New validates the pipeline configuration and allocates every buffer the
// hot path needs. Nothing runs until Run. The engine owns source and the
// transports from here on and closes them during teardown.
func New(cfg *config.Config, source acquire.Source, trigger sampler.Trigger, transports ...transport.Transport) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: config cannot be nil")
	}

	policy, err := sampler.ParseReadErrorPolicy(cfg.Acquisition.OnReadError)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	pipeline, err := analysis.NewPipeline(cfg.Sampling.FrameSize, cfg.SampleRate(), cfg.Estimator.MinBPM, cfg.Estimator.MaxBPM)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	buffer, err := frame.NewBuffer(cfg.Sampling.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	smp, err := sampler.New(source, buffer, trigger, policy)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		config:    cfg,
		source:    source,
		trigger:   trigger,
		buffer:    buffer,
		sampler:   smp,
		transport: transport.Multi(transports),
		done:      make(chan struct{}),
	}
	e.worker = newWorker(buffer, pipeline, e.transport, e.recordFrame)

	minIdx, maxIdx := pipeline.Estimator().BinRange()
	applog.Infof("Engine: Initialized (N=%d, %d FFT stages, Fs=%.2f Hz, bins [%d, %d), read errors: %s, transports: %d)",
		cfg.Sampling.FrameSize, pipeline.Plan().Stages(), cfg.SampleRate(), minIdx, maxIdx, policy, len(transports))
	return e, nil
}

// Run starts the sampler and the worker and blocks until ctx is cancelled,
// Stop is called or the sampler fails. Teardown always runs: the trigger is
// disarmed, the worker finishes the frame in progress, then recording, the
// source and the transports are closed. A fatal read error is returned.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	if e.stopRequested {
		cancel()
	}
	e.mu.Unlock()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		e.worker.run(ctx)
	}()

	samplerErr := make(chan error, 1)
	go func() {
		samplerErr <- e.sampler.Run(ctx)
	}()

	e.state.Store(int32(StateRunning))
	applog.Infof("Engine: Running, first estimate in %s", e.config.FrameDuration())

	var runErr error
	select {
	case <-ctx.Done():
		// A read blocked on the device only returns once the source is closed.
		e.state.Store(int32(StateTerminating))
		applog.Infof("Engine: Interrupted, shutting down")
		e.trigger.Stop()
		if err := e.closeSource(); err != nil {
			applog.Warnf("Engine: Closing source: %v", err)
		}
		if err := <-samplerErr; err != nil {
			applog.Debugf("Engine: Sampler after interruption: %v", err)
		}
	case runErr = <-samplerErr:
		e.state.Store(int32(StateTerminating))
		if runErr != nil {
			applog.Errorf("Engine: Sampler stopped: %v", runErr)
		} else {
			applog.Infof("Engine: Interrupted, shutting down")
		}
		e.trigger.Stop()
	}

	cancel()
	<-workerDone

	if err := e.teardown(); err != nil {
		applog.Warnf("Engine: Teardown: %v", err)
	}

	stats := e.Stats()
	applog.Infof("Engine: Stopped (samples: %d, frames: %d, estimates: %d, overruns: %d, read errors: %d, send errors: %d)",
		stats.Samples, stats.Frames, stats.Estimates, stats.Overruns, stats.ReadErrors, stats.SendErrors)

	e.state.Store(int32(StateStopped))
	close(e.done)
	return runErr
}

// teardown releases everything the engine owns, in pipeline order.
func (e *Engine) teardown() error {
	var errs []error
	if err := e.StopRecording(); err != nil {
		errs = append(errs, fmt.Errorf("recording: %w", err))
	}
	if err := e.closeSource(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}
	if err := e.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	return errors.Join(errs...)
}

// closeSource closes the acquisition source exactly once.
func (e *Engine) closeSource() error {
	e.sourceOnce.Do(func() {
		e.sourceErr = e.source.Close()
	})
	return e.sourceErr
}

// Stop requests termination. It returns immediately; use Done to wait.
// Calling Stop more than once, or before Run, is safe.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.stopRequested = true
		if e.cancel != nil {
			e.cancel()
		}
	})
}

// Done is closed once Run has finished tearing down.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Stats returns a snapshot of the pipeline counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Samples:    e.sampler.Samples(),
		Frames:     e.sampler.Frames(),
		Estimates:  e.worker.estimates.Load(),
		Overruns:   e.buffer.Overruns(),
		ReadErrors: e.sampler.ReadErrors(),
		SendErrors: e.worker.sendErrors.Load(),
	}
}

// Latest returns the most recent reading, if any frame has been processed.
func (e *Engine) Latest() (transport.Reading, bool) {
	return e.worker.latestReading()
}
