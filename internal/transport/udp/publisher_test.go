// SPDX-License-Identifier: MIT
package udp

import (
	"net"
	"testing"
	"time"

	"ppgbpm/internal/transport"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEncodeDecodePacket(t *testing.T) {
	want := transport.Reading{
		Seq:       42,
		BPM:       74,
		Bin:       51,
		Power:     1234.5,
		Timestamp: time.Unix(1700000000, 123456789),
	}
	buf := make([]byte, PacketSize)
	EncodePacket(buf, want)

	// Sequence number is the first big-endian word.
	if buf[0] != 0 || buf[1] != 0 || buf[2] != 0 || buf[3] != 42 {
		t.Errorf("sequence bytes = % x, want 00 00 00 2a", buf[0:4])
	}

	got, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if got.Seq != want.Seq || got.BPM != want.BPM || got.Bin != want.Bin || got.Power != want.Power {
		t.Errorf("DecodePacket() = %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
}

func TestDecodePacketRejectsShortInput(t *testing.T) {
	if _, err := DecodePacket(make([]byte, PacketSize-1)); err == nil {
		t.Error("expected error for short packet")
	}
}

func TestPublisherSend(t *testing.T) {
	conn := listen(t)
	pub, err := Dial(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer pub.Close()

	if err := pub.Send(transport.Reading{Seq: 7, BPM: 89, Bin: 61, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if n != PacketSize {
		t.Fatalf("received %d bytes, want %d", n, PacketSize)
	}
	got, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if got.Seq != 7 || got.BPM != 89 || got.Bin != 61 {
		t.Errorf("received %+v", got)
	}
	if pub.Sent() != 1 {
		t.Errorf("Sent() = %d, want 1", pub.Sent())
	}
}

func TestPublisherRejectsUnknownPayload(t *testing.T) {
	conn := listen(t)
	pub, err := Dial(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer pub.Close()

	if err := pub.Send("bpm: 70"); err == nil {
		t.Error("expected error for string payload")
	}
}

func TestPublisherAfterClose(t *testing.T) {
	conn := listen(t)
	pub, err := Dial(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := pub.Send(&transport.Reading{Seq: 1}); err == nil {
		t.Error("expected error sending on a closed publisher")
	}
}

func TestNewPublisherNilSender(t *testing.T) {
	if _, err := NewPublisher(nil); err == nil {
		t.Error("expected error for nil sender")
	}
}

func TestNewSenderBadAddress(t *testing.T) {
	if _, err := NewSender("not-an-address"); err == nil {
		t.Error("expected error for unresolvable address")
	}
}

func BenchmarkPublisherSend(b *testing.B) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		b.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	pub, err := Dial(conn.LocalAddr().String())
	if err != nil {
		b.Fatalf("Dial: %v", err)
	}
	defer pub.Close()

	r := transport.Reading{Seq: 1, BPM: 72, Bin: 49, Timestamp: time.Now()}
	b.ReportAllocs()
	for b.Loop() {
		_ = pub.Send(r)
	}
}
