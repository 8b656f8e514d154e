// SPDX-License-Identifier: MIT
package sampler

import (
	"fmt"
	"sync"
	"time"
)

// Trigger delivers one tick per sampling period until it is stopped.
type Trigger interface {
	C() <-chan time.Time
	Stop()
}

// TickerTrigger is the production trigger backed by a time.Ticker.
type TickerTrigger struct {
	ticker *time.Ticker
	period time.Duration
}

// NewTickerTrigger arms a repeating trigger with the given period.
func NewTickerTrigger(period time.Duration) (*TickerTrigger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sampling period must be positive, got %s", period)
	}
	return &TickerTrigger{
		ticker: time.NewTicker(period),
		period: period,
	}, nil
}

// C returns the tick channel.
func (t *TickerTrigger) C() <-chan time.Time {
	return t.ticker.C
}

// Stop disarms the ticker. No ticks are delivered afterwards.
func (t *TickerTrigger) Stop() {
	t.ticker.Stop()
}

// Period returns the configured sampling period.
func (t *TickerTrigger) Period() time.Duration {
	return t.period
}

// ManualTrigger is fired explicitly by the caller. Used for replaying
// recordings faster than real time and for deterministic tests.
type ManualTrigger struct {
	ch       chan time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManualTrigger returns a trigger that buffers up to depth pending ticks.
func NewManualTrigger(depth int) *ManualTrigger {
	return &ManualTrigger{
		ch:   make(chan time.Time, depth),
		stop: make(chan struct{}),
	}
}

// C returns the tick channel.
func (m *ManualTrigger) C() <-chan time.Time {
	return m.ch
}

// Fire queues n ticks. It blocks while the queue is full and returns false
// once the trigger has been stopped.
func (m *ManualTrigger) Fire(n int) bool {
	for range n {
		select {
		case m.ch <- time.Now():
		case <-m.stop:
			return false
		}
	}
	return true
}

// Stop disarms the trigger. Safe to call more than once.
func (m *ManualTrigger) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
