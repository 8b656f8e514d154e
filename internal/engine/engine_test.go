// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ppgbpm/internal/acquire"
	"ppgbpm/internal/analysis"
	"ppgbpm/internal/config"
	"ppgbpm/internal/sampler"
	"ppgbpm/pkg/utils"
)

const (
	testFrameSize  = 2048
	testSampleRate = 50.0
	testTimeout    = 10 * time.Second
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sampling.FrameSize = testFrameSize
	cfg.Sampling.Period = 20 * time.Millisecond
	return &cfg
}

func waitStopped(t *testing.T, e *Engine, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		if e.State() != StateStopped {
			t.Errorf("State() after Run = %v, want stopped", e.State())
		}
		return err
	case <-time.After(testTimeout):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestEngineEndToEndSeventyFiveBPM(t *testing.T) {
	samples := utils.GenerateHeartbeat(testFrameSize, testSampleRate, 75, 2048, 400)
	src := utils.NewSliceSource(samples)
	trig := sampler.NewManualTrigger(testFrameSize)
	mock := utils.NewMockTransport()

	e, err := New(testConfig(), src, trig, mock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.State() != StateUninitialized {
		t.Errorf("State() before Run = %v", e.State())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()

	trig.Fire(testFrameSize)
	if !mock.WaitFor(1, testTimeout) {
		t.Fatal("no reading reported")
	}
	if e.State() != StateRunning {
		t.Errorf("State() while running = %v", e.State())
	}

	got := mock.Readings()[0]
	if got.BPM < 73 || got.BPM > 77 {
		t.Errorf("BPM = %d, want 75±2", got.BPM)
	}
	if got.Seq != 1 {
		t.Errorf("Seq = %d, want 1", got.Seq)
	}
	if latest, ok := e.Latest(); !ok || latest.BPM != got.BPM {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}

	e.Stop()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Errorf("Run() = %v, want nil after Stop", err)
	}

	if !src.IsClosed() {
		t.Error("source not closed during teardown")
	}
	if mock.Closed != 1 {
		t.Errorf("transport closed %d times, want 1", mock.Closed)
	}

	stats := e.Stats()
	if stats.Samples != testFrameSize || stats.Frames != 1 || stats.Estimates != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestEngineSyntheticSource(t *testing.T) {
	src := acquire.NewSyntheticSource(testSampleRate, 75, 0)
	trig := sampler.NewManualTrigger(testFrameSize)
	mock := utils.NewMockTransport()

	e, err := New(testConfig(), src, trig, mock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	trig.Fire(testFrameSize)
	if !mock.WaitFor(1, testTimeout) {
		t.Fatal("no reading reported")
	}
	if bpm := mock.Readings()[0].BPM; bpm < 73 || bpm > 77 {
		t.Errorf("BPM = %d, want 75±2", bpm)
	}

	cancel()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Errorf("Run() = %v, want nil on cancel", err)
	}
}

func TestEngineFatalReadError(t *testing.T) {
	// Ten samples, then io.EOF on the eleventh read.
	src := utils.NewSliceSource(make([]int32, 10))
	trig := sampler.NewManualTrigger(16)
	mock := utils.NewMockTransport()

	e, err := New(testConfig(), src, trig, mock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()

	trig.Fire(11)
	err = waitStopped(t, e, errCh)
	if !errors.Is(err, io.EOF) {
		t.Errorf("Run() = %v, want io.EOF", err)
	}
	if !src.IsClosed() {
		t.Error("source not closed after fatal read error")
	}
	if got := e.Stats().ReadErrors; got != 1 {
		t.Errorf("ReadErrors = %d, want 1", got)
	}
	if len(mock.Readings()) != 0 {
		t.Error("no frame was complete, nothing should be reported")
	}
}

func TestEngineDiscardPolicyKeepsRunning(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.FrameSize = 64
	cfg.Estimator.MinBPM, cfg.Estimator.MaxBPM = 30, 180

	src := utils.NewSliceSource(make([]int32, 10))
	trig := sampler.NewManualTrigger(16)
	cfg.Acquisition.OnReadError = "discard"

	e, err := New(cfg, src, trig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	trig.Fire(15)
	deadline := time.Now().Add(testTimeout)
	for e.Stats().ReadErrors < 5 {
		if time.Now().After(deadline) {
			t.Fatal("read errors were not counted")
		}
		time.Sleep(time.Millisecond)
	}
	if e.State() != StateRunning {
		t.Errorf("State() = %v, want running under the discard policy", e.State())
	}

	cancel()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestEngineInterruptUnblocksDeviceRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := acquire.NewDeviceSource(pr, "pipe", binary.LittleEndian)
	trig := sampler.NewManualTrigger(1)

	e, err := New(testConfig(), src, trig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	// One tick with no bytes ever written leaves the sampler blocked in a read.
	trig.Fire(1)
	time.Sleep(20 * time.Millisecond)
	if e.State() != StateRunning {
		t.Fatalf("State() = %v, want running", e.State())
	}

	cancel()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Errorf("Run() = %v, want nil on interruption", err)
	}
	if _, err := src.ReadSample(); !errors.Is(err, acquire.ErrClosed) {
		t.Errorf("ReadSample() after Run = %v, want the device released", err)
	}
	if got := e.Stats().Samples; got != 0 {
		t.Errorf("Samples = %d, want 0", got)
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	e, err := New(testConfig(), utils.NewSliceSource(nil), sampler.NewManualTrigger(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Stop before Run makes Run tear down immediately.
	e.Stop()
	e.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Errorf("Run() = %v", err)
	}
	e.Stop()

	select {
	case <-e.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}

	if err := e.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run() = %v, want ErrAlreadyStarted", err)
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{"frame size", func(c *config.Config) { c.Sampling.FrameSize = 1000 }, nil},
		{"bin range", func(c *config.Config) { c.Estimator.MinBPM, c.Estimator.MaxBPM = 90, 90 }, analysis.ErrInvalidBinRange},
		{"policy", func(c *config.Config) { c.Acquisition.OnReadError = "ignore" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := New(cfg, utils.NewSliceSource(nil), sampler.NewManualTrigger(0))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("New() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(nil, utils.NewSliceSource(nil), sampler.NewManualTrigger(0)); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(testConfig(), nil, sampler.NewManualTrigger(0)); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestEngineSendErrorsDoNotStopEstimation(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.FrameSize = 64

	src := utils.NewSliceSource(make([]int32, 128))
	trig := sampler.NewManualTrigger(128)
	mock := utils.NewMockTransport()
	mock.SendErr = errors.New("collector offline")

	e, err := New(cfg, src, trig, mock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	// Fire one frame at a time so the worker never sees an overrun.
	trig.Fire(64)
	if !mock.WaitFor(1, testTimeout) {
		t.Fatal("first frame not reported")
	}
	trig.Fire(64)
	if !mock.WaitFor(2, testTimeout) {
		t.Fatal("second frame not reported")
	}

	cancel()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Errorf("Run() = %v", err)
	}
	if got := e.Stats().SendErrors; got != 2 {
		t.Errorf("SendErrors = %d, want 2", got)
	}
}

func TestRecordingWritesFrames(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.FrameSize = 64

	samples := utils.GenerateHeartbeat(128, testSampleRate, 75, 2048, 400)
	src := utils.NewSliceSource(samples)
	trig := sampler.NewManualTrigger(128)
	mock := utils.NewMockTransport()

	e, err := New(cfg, src, trig, mock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "frames.wav")
	if err := e.StartRecording(path); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := e.StartRecording(path); err == nil {
		t.Error("expected error when already recording")
	}
	if !e.IsRecording() {
		t.Error("IsRecording() = false after StartRecording")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	trig.Fire(64)
	if !mock.WaitFor(1, testTimeout) {
		t.Fatal("first frame not reported")
	}
	trig.Fire(64)
	if !mock.WaitFor(2, testTimeout) {
		t.Fatal("second frame not reported")
	}
	cancel()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if e.IsRecording() {
		t.Error("recording still active after teardown")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()
	buf, err := acquire.DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if buf.Format.SampleRate != 50 || buf.Format.NumChannels != 1 {
		t.Errorf("format = %+v, want 50 Hz mono", buf.Format)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("recorded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, v := range buf.Data {
		if int32(v) != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, v, samples[i])
		}
	}
}

func TestRecordingKeepsFullPrecisionSamples(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling.FrameSize = 64

	// Odd values above 2^24 are not representable in float32.
	samples := make([]int32, 64)
	for i := range samples {
		samples[i] = 1<<28 + int32(2*i+1)
		if i%2 == 1 {
			samples[i] = -samples[i]
		}
	}
	src := utils.NewSliceSource(samples)
	trig := sampler.NewManualTrigger(64)
	mock := utils.NewMockTransport()

	e, err := New(cfg, src, trig, mock)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wide.wav")
	if err := e.StartRecording(path); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	trig.Fire(64)
	if !mock.WaitFor(1, testTimeout) {
		t.Fatal("frame not reported")
	}
	cancel()
	if err := waitStopped(t, e, errCh); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()
	buf, err := acquire.DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("recorded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i, v := range buf.Data {
		if int32(v) != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, v, samples[i])
		}
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateRunning:       "running",
		StateTerminating:   "terminating",
		StateStopped:       "stopped",
		State(9):           "State(9)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), s.String(), want)
		}
	}
}
