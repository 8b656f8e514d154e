// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the acquisition and estimation pipeline.
const (
	// Acquisition defaults
	DefaultSource         = SourceDevice
	DefaultDevicePath     = "dev/ppgmod_dev" // Character device exposed by the PPG module
	DefaultByteOrder      = "little"         // Byte order of the 4-byte samples
	DefaultOnReadError    = "fatal"          // fatal or discard
	DefaultSyntheticBPM   = 75.0             // Demo heart rate for the synthetic source
	DefaultSyntheticNoise = 20.0             // Peak noise in raw sample units

	// Sampling and estimation defaults
	DefaultSamplePeriod  = 20 * time.Millisecond
	DefaultFrameSize     = 2048 // Power of 2, ~41 s of signal at 50 Hz
	DefaultMinBPM        = 30.0
	DefaultMaxBPM        = 180.0
	DefaultRecordingFile = "ppg_frames.wav"

	// Transport defaults
	DefaultWSAddr      = ":8080"
	DefaultUDPTarget   = "127.0.0.1:9090"
	DefaultNATSURL     = "nats://127.0.0.1:4222"
	DefaultNATSSubject = "ppg.bpm"
	DefaultTUILogFile  = "ppgbpm.log"

	// Limits
	MinFrameSize    = 16
	MaxFrameSize    = 1 << 16
	MinSamplePeriod = time.Millisecond
)

// Acquisition source names.
const (
	SourceDevice    = "device"
	SourceWAV       = "wav"
	SourceSynthetic = "synthetic"
)

// SampleRate returns the sampling rate in Hz implied by the sampling period.
func (c *Config) SampleRate() float64 {
	if c.Sampling.Period <= 0 {
		return 0
	}
	return float64(time.Second) / float64(c.Sampling.Period)
}

// FrameDuration returns the time it takes to fill one frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.Sampling.FrameSize) * c.Sampling.Period
}
