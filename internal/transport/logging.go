// SPDX-License-Identifier: MIT
package transport

import (
	applog "ppgbpm/internal/log"
)

// LoggingTransport reports readings through the application logger. It is
// the default reporting collaborator.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a Reading as "bpm: N", anything else with its Go representation.
func (lt *LoggingTransport) Send(data any) error {
	switch r := data.(type) {
	case Reading:
		applog.Infof("bpm: %d (frame %d, bin %d)", r.BPM, r.Seq, r.Bin)
	case *Reading:
		applog.Infof("bpm: %d (frame %d, bin %d)", r.BPM, r.Seq, r.Bin)
	default:
		applog.Infof("Transport: %+v", data)
	}
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
