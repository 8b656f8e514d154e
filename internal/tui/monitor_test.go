// SPDX-License-Identifier: MIT
package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"ppgbpm/internal/transport"
)

func sized(t *testing.T, m MonitorModel) MonitorModel {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(MonitorModel)
}

func TestMonitorModelShowsLatestReading(t *testing.T) {
	m := sized(t, NewMonitorModel("device dev/ppgmod_dev, N=2048, 50 Hz"))
	if !strings.Contains(m.View(), "waiting for first frame") {
		t.Errorf("View() before readings = %q", m.View())
	}

	for i, bpm := range []int{72, 74, 89} {
		next, _ := m.Update(readingMsg{Seq: uint64(i + 1), BPM: bpm, Bin: 61, Timestamp: time.Now()})
		m = next.(MonitorModel)
	}

	view := m.View()
	if !strings.Contains(view, "89 BPM") {
		t.Errorf("View() missing latest BPM: %q", view)
	}
	if !strings.Contains(view, "frame 3, bin 61") {
		t.Errorf("View() missing frame details: %q", view)
	}
	if !strings.Contains(view, "dev/ppgmod_dev") {
		t.Errorf("View() missing info line: %q", view)
	}
	if len(m.history) != 3 {
		t.Errorf("history length = %d, want 3", len(m.history))
	}
}

func TestMonitorModelHistoryBounded(t *testing.T) {
	m := sized(t, NewMonitorModel(""))
	for i := range HistorySize + 10 {
		next, _ := m.Update(readingMsg{Seq: uint64(i + 1), BPM: 60 + i%20})
		m = next.(MonitorModel)
	}
	if len(m.history) != HistorySize {
		t.Fatalf("history length = %d, want %d", len(m.history), HistorySize)
	}
	if m.history[0].Seq != 11 {
		t.Errorf("oldest reading seq = %d, want 11", m.history[0].Seq)
	}
}

func TestMonitorModelKeys(t *testing.T) {
	m := sized(t, NewMonitorModel(""))
	next, _ := m.Update(readingMsg{Seq: 1, BPM: 70})
	m = next.(MonitorModel)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = next.(MonitorModel)
	if len(m.history) != 0 {
		t.Errorf("history length after clear = %d, want 0", len(m.history))
	}
	if m.latest == nil || m.latest.BPM != 70 {
		t.Error("clear must keep the latest reading")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not produce tea.QuitMsg")
	}
}

func TestSparkline(t *testing.T) {
	readings := []transport.Reading{{BPM: 60}, {BPM: 90}, {BPM: 75}}
	if got, want := Sparkline(readings), "▁█▄"; got != want {
		t.Errorf("Sparkline() = %q, want %q", got, want)
	}
	flat := []transport.Reading{{BPM: 70}, {BPM: 70}}
	if got, want := Sparkline(flat), "▁▁"; got != want {
		t.Errorf("Sparkline(flat) = %q, want %q", got, want)
	}
	if Sparkline(nil) != "" {
		t.Error("Sparkline(nil) should be empty")
	}
}

func TestMonitorSendAfterClose(t *testing.T) {
	m := NewMonitor("", tea.WithInput(nil), tea.WithOutput(&strings.Builder{}))
	if err := m.Send(transport.Reading{Seq: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := m.Send("not a reading"); err == nil {
		t.Error("expected error for unsupported payload")
	}
	m.Close()
	m.Close()
	if err := m.Send(transport.Reading{Seq: 2}); err == nil {
		t.Error("expected error after Close")
	}
}

func TestMonitorCloseWaitsForRun(t *testing.T) {
	m := NewMonitor("", tea.WithInput(nil), tea.WithOutput(&strings.Builder{}))
	runErr := make(chan error, 1)
	go func() { runErr <- m.Run() }()

	deadline := time.Now().Add(5 * time.Second)
	for !m.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("Run never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := m.Send(transport.Reading{Seq: 1, BPM: 75}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	// Close only returns once the program has shut down.
	select {
	case <-m.exited:
	default:
		t.Error("Close returned while the program was still running")
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
