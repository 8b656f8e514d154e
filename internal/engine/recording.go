// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "ppgbpm/internal/log"
)

const (
	recordingBitDepth = 32 // Samples are 4-byte integers end to end.
	recordingChannels = 1
	wavFormatPCM      = 1
)

// StartRecording writes every frame handed to the estimator to filename as
// mono 32-bit PCM at the sampling rate (rounded to whole Hz).
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.isRecording.Load() {
		return errors.New("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	e.outputFile = file

	sampleRate := max(1, int(math.Round(e.config.SampleRate())))
	e.wavEncoder = wav.NewEncoder(file, sampleRate, recordingBitDepth, recordingChannels, wavFormatPCM)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: recordingChannels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: recordingBitDepth,
		Data:           make([]int, e.config.Sampling.FrameSize),
	}

	e.isRecording.Store(true)
	applog.Infof("Engine: Recording frames to %s (%d Hz)", filename, sampleRate)
	return nil
}

// StopRecording finalizes the WAV header and closes the file. It is a no-op
// when not recording.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if !e.isRecording.Load() {
		return nil
	}
	e.isRecording.Store(false)

	var errs []error
	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			errs = append(errs, err)
		}
		e.wavEncoder = nil
	}
	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			errs = append(errs, err)
		}
		e.outputFile = nil
	}
	return errors.Join(errs...)
}

// IsRecording reports whether frames are being written.
func (e *Engine) IsRecording() bool {
	return e.isRecording.Load()
}

// recordFrame runs on the worker goroutine with the samples as read.
func (e *Engine) recordFrame(raw []int32) {
	if !e.isRecording.Load() {
		return
	}

	e.recMu.Lock()
	defer e.recMu.Unlock()
	if e.wavEncoder == nil {
		return
	}

	for i, sample := range raw {
		e.sampleBuf.Data[i] = int(sample)
	}
	e.sampleBuf.Data = e.sampleBuf.Data[:len(raw)]

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("Engine: Error writing to WAV file: %v", err)
	}
}
