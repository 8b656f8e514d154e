// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"time"
)

// Transport defines a generic interface for delivering heart rate readings
// to a reporting collaborator. Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Reading is the payload produced once per completed frame.
type Reading struct {
	Seq       uint64    `json:"seq"`       // Frame sequence number, starting at 1.
	BPM       int       `json:"bpm"`       // Estimated heart rate.
	Bin       int       `json:"bin"`       // Winning FFT bin.
	Power     float32   `json:"power"`     // PSD value at Bin.
	Timestamp time.Time `json:"timestamp"` // Time the estimate was produced.
}

// Multi fans a reading out to several transports. A failing transport does
// not prevent delivery to the others.
type Multi []Transport

// Send delivers data to every transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure Multi satisfies the interface at compile time.
var _ Transport = Multi(nil)
