// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"ppgbpm/internal/transport"
)

const (
	testSize       = 2048
	testSampleRate = 50.0
)

func TestMockTransport(t *testing.T) {
	mt := NewMockTransport()

	if err := mt.Send(transport.Reading{Seq: 1, BPM: 70}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := mt.Send(&transport.Reading{Seq: 2, BPM: 71}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	_ = mt.Send("ignored")

	got := mt.Readings()
	if len(got) != 2 || got[0].BPM != 70 || got[1].BPM != 71 {
		t.Errorf("Readings() = %+v", got)
	}

	// The returned slice is a copy.
	got[0].BPM = 999
	if mt.Readings()[0].BPM != 70 {
		t.Error("Readings() returned a reference to internal state")
	}

	mt.SendErr = errors.New("offline")
	if err := mt.Send(transport.Reading{Seq: 3}); err == nil {
		t.Error("expected SendErr to be returned")
	}

	mt.Close()
	if mt.Closed != 1 {
		t.Errorf("Closed = %d, want 1", mt.Closed)
	}
}

func TestMockTransportWaitFor(t *testing.T) {
	mt := NewMockTransport()
	go func() {
		for i := range 3 {
			mt.Send(transport.Reading{Seq: uint64(i + 1)})
		}
	}()
	if !mt.WaitFor(3, 5*time.Second) {
		t.Fatal("WaitFor timed out")
	}
	if mt.WaitFor(4, 10*time.Millisecond) {
		t.Error("WaitFor(4) succeeded with 3 readings")
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource([]int32{5, -3})
	for _, want := range []int32{5, -3} {
		got, err := src.ReadSample()
		if err != nil || got != want {
			t.Fatalf("ReadSample() = %d, %v; want %d", got, err, want)
		}
	}
	if _, err := src.ReadSample(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadSample() past end = %v, want io.EOF", err)
	}
	src.Close()
	if !src.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		frequency  float64
	}{
		{"75 BPM", testSampleRate, 1.25},
		{"Resting", testSampleRate, 1.0},
		{"Fast Sampling", 100, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(testSize, tt.sampleRate, tt.frequency, 1000)

			if len(result) != testSize {
				t.Fatalf("GenerateSineWave() buffer size = %d, want %d", len(result), testSize)
			}

			crossCount := 0
			for i := 1; i < testSize; i++ {
				if (result[i-1] < 0 && result[i] >= 0) || (result[i-1] >= 0 && result[i] < 0) {
					crossCount++
				}
			}

			// Two crossings per cycle, allow 5% for phase alignment.
			expected := 2 * tt.frequency * testSize / tt.sampleRate
			if math.Abs(float64(crossCount)-expected) > 0.05*expected+1 {
				t.Errorf("zero crossings = %d, expected approximately %.1f", crossCount, expected)
			}
		})
	}
}

func TestGenerateHeartbeat(t *testing.T) {
	result := GenerateHeartbeat(testSize, testSampleRate, 75, 2048, 400)
	lo, hi := result[0], result[0]
	for _, v := range result {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo < 2048-400 || hi > 2048+400 {
		t.Errorf("range [%d, %d] outside baseline±amplitude", lo, hi)
	}
	if hi-lo < 700 {
		t.Errorf("peak to peak %d, want close to 800", hi-lo)
	}
}

func BenchmarkGenerateSineWave(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		GenerateSineWave(testSize, testSampleRate, 1.25, 1000)
	}
}
