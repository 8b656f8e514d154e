// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	applog "ppgbpm/internal/log"
)

// DefaultNATSSubject is the subject readings are published on.
const DefaultNATSSubject = "ppg.bpm"

// Publisher is the subset of *nats.Conn used by NATSTransport.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSTransport publishes each reading as a JSON message.
type NATSTransport struct {
	conn    Publisher
	subject string
}

// ConnectNATS dials url with reconnects enabled and returns a transport
// publishing on subject.
func ConnectNATS(url, subject string) (*NATSTransport, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("ppgbpm"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				applog.Warnf("NATSTransport: Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			applog.Infof("NATSTransport: Reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect to %s: %w", url, err)
	}
	applog.Infof("NATSTransport: Connected to %s, publishing on '%s'", nc.ConnectedUrl(), subject)
	return NewNATSTransport(nc, subject), nil
}

// NewNATSTransport wraps an existing connection.
func NewNATSTransport(conn Publisher, subject string) *NATSTransport {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSTransport{conn: conn, subject: subject}
}

// Send marshals data to JSON and publishes it.
func (n *NATSTransport) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("nats: marshal reading: %w", err)
	}
	if err := n.conn.Publish(n.subject, b); err != nil {
		return fmt.Errorf("nats: publish on %s: %w", n.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *NATSTransport) Close() error {
	if err := n.conn.Drain(); err != nil {
		return fmt.Errorf("nats: drain: %w", err)
	}
	return nil
}

// Subject returns the publish subject.
func (n *NATSTransport) Subject() string {
	return n.subject
}

// Ensure NATSTransport satisfies the interface at compile time.
var _ Transport = (*NATSTransport)(nil)
var _ Publisher = (*nats.Conn)(nil)
