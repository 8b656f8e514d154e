// SPDX-License-Identifier: MIT
/*
Package acquire provides the sample sources the sampler reads from: the PPG
character device, WAV replays of earlier captures and a synthetic pulse
generator for running without hardware.
*/
package acquire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// SampleSize is the number of bytes of one raw device sample.
const SampleSize = 4

// ErrClosed is returned by ReadSample after Close.
var ErrClosed = errors.New("source is closed")

// Source yields one integer PPG sample per call.
type Source interface {
	// ReadSample returns the next sample. A short or failed read is an error;
	// callers decide whether it is fatal.
	ReadSample() (int32, error)
	Close() error
}

// ParseByteOrder converts "little" or "big" (case-insensitive) to a byte order.
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch strings.ToLower(name) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order: '%s'", name)
	}
}

// DeviceSource reads fixed-size integer samples from a device node or any
// other byte stream opened read/write. Close may be called while a read is
// blocked; the read then returns an error wrapping ErrClosed.
type DeviceSource struct {
	readMu sync.Mutex // Serializes readers; never taken by Close
	file   io.ReadCloser
	path   string
	order  binary.ByteOrder
	buf    [SampleSize]byte
	closed atomic.Bool
}

// Compile-time check for interface implementation.
var _ Source = (*DeviceSource)(nil)

// OpenDevice opens path in read/write mode.
func OpenDevice(path string, order binary.ByteOrder) (*DeviceSource, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	return NewDeviceSource(file, path, order), nil
}

// NewDeviceSource wraps an already opened stream.
func NewDeviceSource(r io.ReadCloser, name string, order binary.ByteOrder) *DeviceSource {
	if order == nil {
		order = binary.LittleEndian
	}
	return &DeviceSource{file: r, path: name, order: order}
}

// ReadSample reads exactly SampleSize bytes.
func (d *DeviceSource) ReadSample() (int32, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	if d.closed.Load() {
		return 0, ErrClosed
	}
	if _, err := io.ReadFull(d.file, d.buf[:]); err != nil {
		if d.closed.Load() {
			return 0, fmt.Errorf("read sample from %s: %w", d.path, ErrClosed)
		}
		return 0, fmt.Errorf("read sample from %s: %w", d.path, err)
	}
	return int32(d.order.Uint32(d.buf[:])), nil
}

// Close releases the device handle and unblocks a pending read. Closing
// twice is a no-op.
func (d *DeviceSource) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}

// Path returns the device path the source was opened with.
func (d *DeviceSource) Path() string {
	return d.path
}
