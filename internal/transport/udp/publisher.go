// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	applog "ppgbpm/internal/log"
	"ppgbpm/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Frame sequence number   |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| BPM               | uint16         | 2            | Estimated heart rate    |
| Bin               | uint16         | 2            | Winning FFT bin         |
| Power             | float32        | 4            | PSD value at the bin    |
+-----------------------------------------------------------------------------+

Visual Layout:

|<-- 4 Bytes -->|<---- 8 Bytes ---->|<- 2 B ->|<- 2 B ->|<-- 4 Bytes -->|
+---------------+-------------------+---------+---------+---------------+
|   Sequence    |     Timestamp     |   BPM   |   Bin   |     Power     |
+---------------+-------------------+---------+---------+---------------+
*/

// PacketSize is the size of one encoded reading.
const PacketSize = 20

// Publisher sends one datagram per reading.
type Publisher struct {
	sender *Sender
	mu     sync.Mutex
	packet [PacketSize]byte // Reused for every reading.
	sent   uint64
}

// NewPublisher wraps a connected sender.
func NewPublisher(sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	return &Publisher{sender: sender}, nil
}

// Dial resolves and connects targetAddress and returns a publisher for it.
func Dial(targetAddress string) (*Publisher, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return NewPublisher(sender)
}

// EncodePacket writes r into dst using the layout above.
func EncodePacket(dst []byte, r transport.Reading) {
	binary.BigEndian.PutUint32(dst[0:4], uint32(r.Seq))
	binary.BigEndian.PutUint64(dst[4:12], uint64(r.Timestamp.UnixNano()))
	binary.BigEndian.PutUint16(dst[12:14], uint16(r.BPM))
	binary.BigEndian.PutUint16(dst[14:16], uint16(r.Bin))
	binary.BigEndian.PutUint32(dst[16:20], math.Float32bits(r.Power))
}

// DecodePacket parses a datagram produced by EncodePacket.
func DecodePacket(b []byte) (transport.Reading, error) {
	if len(b) != PacketSize {
		return transport.Reading{}, fmt.Errorf("packet length %d, want %d", len(b), PacketSize)
	}
	return transport.Reading{
		Seq:       uint64(binary.BigEndian.Uint32(b[0:4])),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		BPM:       int(binary.BigEndian.Uint16(b[12:14])),
		Bin:       int(binary.BigEndian.Uint16(b[14:16])),
		Power:     math.Float32frombits(binary.BigEndian.Uint32(b[16:20])),
	}, nil
}

// Send encodes a transport.Reading and transmits it.
func (p *Publisher) Send(data any) error {
	var r transport.Reading
	switch v := data.(type) {
	case transport.Reading:
		r = v
	case *transport.Reading:
		r = *v
	default:
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	EncodePacket(p.packet[:], r)
	if err := p.sender.Send(p.packet[:]); err != nil {
		return err
	}
	p.sent++
	applog.Debugf("UDPPublisher: Sent reading %d (%d bytes)", r.Seq, PacketSize)
	return nil
}

// Sent returns the number of packets sent.
func (p *Publisher) Sent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

// Ensure Publisher satisfies the interface at compile time.
var _ transport.Transport = (*Publisher)(nil)
