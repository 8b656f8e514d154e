// SPDX-License-Identifier: MIT
package acquire

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays the first channel of a WAV capture one sample at a time.
type WAVSource struct {
	mu         sync.Mutex
	samples    []int
	channels   int
	sampleRate int
	pos        int // Index of the next frame (not sample) to return.
	loop       bool
	closed     bool
}

// Compile-time check for interface implementation.
var _ Source = (*WAVSource)(nil)

// OpenWAV decodes the whole file up front; PPG captures are small.
func OpenWAV(path string, loop bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	buf, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewWAVSource(buf, loop), nil
}

// DecodeWAV reads a complete PCM WAV stream into memory.
func DecodeWAV(r io.ReadSeeker) (*audio.IntBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("WAV file has no channels")
	}
	return buf, nil
}

// NewWAVSource replays an already decoded buffer.
func NewWAVSource(buf *audio.IntBuffer, loop bool) *WAVSource {
	return &WAVSource{
		samples:    buf.Data,
		channels:   buf.Format.NumChannels,
		sampleRate: buf.Format.SampleRate,
		loop:       loop,
	}
}

// ReadSample returns the next first-channel sample. At the end of the data it
// rewinds when looping and returns io.EOF otherwise.
func (w *WAVSource) ReadSample() (int32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	idx := w.pos * w.channels
	if idx >= len(w.samples) {
		if !w.loop || len(w.samples) == 0 {
			return 0, io.EOF
		}
		w.pos, idx = 0, 0
	}
	w.pos++
	return int32(w.samples[idx]), nil
}

// Close marks the source closed.
func (w *WAVSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// SampleRate returns the sample rate recorded in the WAV header.
func (w *WAVSource) SampleRate() int {
	return w.sampleRate
}

// Len returns the number of samples per channel.
func (w *WAVSource) Len() int {
	return len(w.samples) / w.channels
}
