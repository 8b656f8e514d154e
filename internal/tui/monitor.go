// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	applog "ppgbpm/internal/log"
	"ppgbpm/internal/transport"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#C0392B")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	bpmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E74C3C")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7F8C8D"))
)

const (
	// HistorySize is the number of readings kept on screen.
	HistorySize = 60

	monitorQueueSize = 16
)

var (
	quitKeys = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	clearKey = key.NewBinding(key.WithKeys("c"))
)

type readingMsg transport.Reading

// MonitorModel is the Bubble Tea model showing the latest BPM and a short
// history of readings.
type MonitorModel struct {
	info     string
	latest   *transport.Reading
	history  []transport.Reading
	viewport viewport.Model
	ready    bool
}

// NewMonitorModel creates a model; info is shown under the title (source,
// frame size, sample rate).
func NewMonitorModel(info string) MonitorModel {
	return MonitorModel{info: info}
}

// Init has nothing to fetch; readings arrive as messages.
func (m MonitorModel) Init() tea.Cmd {
	return nil
}

// Update handles readings, resizes and key presses.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-8)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 8
		}
		m.viewport.SetContent(m.renderHistory())

	case readingMsg:
		r := transport.Reading(msg)
		m.latest = &r
		m.history = append(m.history, r)
		if len(m.history) > HistorySize {
			m.history = m.history[len(m.history)-HistorySize:]
		}
		if m.ready {
			m.viewport.SetContent(m.renderHistory())
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKeys):
			return m, tea.Quit
		case key.Matches(msg, clearKey):
			m.history = m.history[:0]
			if m.ready {
				m.viewport.SetContent(m.renderHistory())
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the UI.
func (m MonitorModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("PPG Heart Rate Monitor")
	help := infoStyle.Render("↑/↓: Scroll • c: Clear history • q: Quit")

	current := dimStyle.Render("waiting for first frame...")
	if m.latest != nil {
		current = fmt.Sprintf("%s  %s",
			bpmStyle.Render(fmt.Sprintf("%d BPM", m.latest.BPM)),
			dimStyle.Render(fmt.Sprintf("frame %d, bin %d", m.latest.Seq, m.latest.Bin)))
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s\n\n%s",
		title, dimStyle.Render(m.info), current, Sparkline(m.history), m.viewport.View(), help)
}

// renderHistory lists readings newest first.
func (m MonitorModel) renderHistory() string {
	if len(m.history) == 0 {
		return "No readings yet."
	}
	var sb strings.Builder
	for i := len(m.history) - 1; i >= 0; i-- {
		r := m.history[i]
		fmt.Fprintf(&sb, "%s  #%-6d %3d BPM  (bin %d)\n",
			r.Timestamp.Format("15:04:05"), r.Seq, r.BPM, r.Bin)
	}
	return sb.String()
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws one glyph per reading, scaled between the smallest and
// largest BPM in readings.
func Sparkline(readings []transport.Reading) string {
	if len(readings) == 0 {
		return ""
	}
	lo, hi := readings[0].BPM, readings[0].BPM
	for _, r := range readings[1:] {
		lo = min(lo, r.BPM)
		hi = max(hi, r.BPM)
	}

	out := make([]rune, len(readings))
	top := len(sparkLevels) - 1
	for i, r := range readings {
		level := 0
		if hi > lo {
			level = (r.BPM - lo) * top / (hi - lo)
		}
		out[i] = sparkLevels[level]
	}
	return string(out)
}

// Monitor runs the model as a Bubble Tea program and receives readings as a
// transport. Send never blocks the estimation worker; readings are dropped
// when the UI falls behind.
type Monitor struct {
	program   *tea.Program
	msgs      chan transport.Reading
	closeOnce sync.Once
	done      chan struct{}
	running   atomic.Bool
	exited    chan struct{} // Closed when Run returns
}

// NewMonitor creates a monitor using the alternate screen.
func NewMonitor(info string, opts ...tea.ProgramOption) *Monitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	m := &Monitor{
		program: tea.NewProgram(NewMonitorModel(info), opts...),
		msgs:    make(chan transport.Reading, monitorQueueSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go m.forward()
	return m
}

func (m *Monitor) forward() {
	for {
		select {
		case <-m.done:
			m.program.Quit()
			return
		case r := <-m.msgs:
			m.program.Send(readingMsg(r))
		}
	}
}

// Run blocks until the user quits or Close is called. The terminal has been
// restored when it returns.
func (m *Monitor) Run() error {
	m.running.Store(true)
	defer close(m.exited)
	if _, err := m.program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// Send queues a transport.Reading for display.
func (m *Monitor) Send(data any) error {
	var r transport.Reading
	switch v := data.(type) {
	case transport.Reading:
		r = v
	case *transport.Reading:
		r = *v
	default:
		return fmt.Errorf("tui: unsupported payload %T", data)
	}

	select {
	case <-m.done:
		return fmt.Errorf("tui monitor is closed")
	default:
	}

	select {
	case m.msgs <- r:
	default:
		applog.Debugf("Monitor: Queue full, dropping reading %d", r.Seq)
	}
	return nil
}

// Close asks the program to quit and, if Run was called, waits until the
// terminal has been restored. Closing twice is a no-op.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	if m.running.Load() {
		<-m.exited
	}
	return nil
}

// Ensure Monitor satisfies the interface at compile time.
var _ transport.Transport = (*Monitor)(nil)
