package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-hotreload/build"
	"github.com/wippyai/wasm-hotreload/host"
)

const (
	refreshInterval = 100 * time.Millisecond
	maxEvents       = 8
	maxGuestLines   = 6
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	guestStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type (
	tickMsg  time.Time
	eventMsg host.Event
	guestMsg string
	doneMsg  struct{}
)

// rebuildStatus reports the rebuilder's state; nil when no source is watched.
type rebuildStatus func() (inFlight bool, last build.Result)

type dashboardModel struct {
	spinner  spinner.Model
	stats    func() host.Stats
	rebuild  rebuildStatus
	events   <-chan host.Event
	guest    <-chan string
	done     <-chan struct{}
	cancel   context.CancelFunc
	artifact string
	logPath  string

	current   host.Stats
	recent    []host.Event
	lines     []string
	inFlight  bool
	lastBuild build.Result
	stopping  bool
	finished  bool
}

func newDashboardModel(artifact, logPath string, stats func() host.Stats, rebuild rebuildStatus,
	events <-chan host.Event, guest <-chan string, done <-chan struct{}, cancel context.CancelFunc) *dashboardModel {
	return &dashboardModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))),
		),
		stats:    stats,
		rebuild:  rebuild,
		events:   events,
		guest:    guest,
		done:     done,
		cancel:   cancel,
		artifact: artifact,
		logPath:  logPath,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *dashboardModel) waitEvent() tea.Msg {
	select {
	case ev := <-m.events:
		return eventMsg(ev)
	case <-m.done:
		return doneMsg{}
	}
}

func (m *dashboardModel) waitGuest() tea.Msg {
	select {
	case line := <-m.guest:
		return guestMsg(line)
	case <-m.done:
		return nil
	}
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.waitEvent, m.waitGuest)
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
		}
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case eventMsg:
		m.recent = append(m.recent, host.Event(msg))
		if len(m.recent) > maxEvents {
			m.recent = m.recent[len(m.recent)-maxEvents:]
		}
		m.refresh()
		return m, m.waitEvent

	case guestMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > maxGuestLines {
			m.lines = m.lines[len(m.lines)-maxGuestLines:]
		}
		return m, m.waitGuest

	case doneMsg:
		m.finished = true
		m.refresh()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *dashboardModel) refresh() {
	m.current = m.stats()
	if m.rebuild != nil {
		m.inFlight, m.lastBuild = m.rebuild()
	}
}

func (m *dashboardModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Hot Reload"))
	b.WriteString(" ")
	b.WriteString(m.artifact)
	b.WriteString("\n\n")

	s := m.current
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	status := "starting"
	switch {
	case m.finished:
		status = "stopped"
	case m.stopping:
		status = "stopping " + m.spinner.View()
	case s.Running:
		status = "running"
	}
	row("status", status)
	row("session", s.Session)
	row("version", fmt.Sprintf("v%d", s.Version))
	row("frames", fmt.Sprintf("%d", s.Frames))
	row("state", fmt.Sprintf("%d bytes", s.MemorySize))
	row("reloads", fmt.Sprintf("%d (%d resets)", s.Reloads, s.Resets))
	row("retired", fmt.Sprintf("%d", s.Retired))
	row("queue", fmt.Sprintf("%d pending", s.QueuePending))
	if s.LoadFailures > 0 || s.Traps > 0 {
		b.WriteString(labelStyle.Render("failures"))
		b.WriteString(errorStyle.Render(fmt.Sprintf("%d load, %d trap", s.LoadFailures, s.Traps)))
		b.WriteString("\n")
	}

	if m.rebuild != nil {
		switch {
		case m.inFlight:
			row("rebuild", m.spinner.View()+" compiling")
		case m.lastBuild.Seq == 0:
			row("rebuild", "watching")
		case m.lastBuild.Err != nil:
			b.WriteString(labelStyle.Render("rebuild"))
			b.WriteString(errorStyle.Render(fmt.Sprintf("#%d failed: %v", m.lastBuild.Seq, m.lastBuild.Err)))
			b.WriteString("\n")
		default:
			row("rebuild", fmt.Sprintf("#%d ok in %s", m.lastBuild.Seq, m.lastBuild.Duration.Round(time.Millisecond)))
		}
	}

	if len(m.recent) > 0 {
		b.WriteString("\nEvents:\n")
		for _, ev := range m.recent {
			line := fmt.Sprintf("  %s %-11s v%d", ev.Time.Format("15:04:05"), ev.Kind, ev.Version)
			if ev.Err != nil {
				b.WriteString(errorStyle.Render(line + "  " + ev.Err.Error()))
			} else {
				b.WriteString(line)
			}
			b.WriteString("\n")
		}
	}

	if len(m.lines) > 0 {
		b.WriteString("\nGuest:\n")
		for _, l := range m.lines {
			b.WriteString("  ")
			b.WriteString(guestStyle.Render(l))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q quit • logs in " + m.logPath))
	return b.String()
}

// runDashboard runs the host in the background and the dashboard in the
// foreground until the host stops.
func (r *runner) runDashboard(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = r.host.Run(ctx)
	}()

	var rebuild rebuildStatus
	if r.rebuilder != nil {
		rebuild = func() (bool, build.Result) {
			return r.rebuilder.InFlight(), r.rebuilder.Last()
		}
	}

	m := newDashboardModel(r.cfg.Artifact, filepath.Join(r.cfg.ReloadDir, LogFileName), r.host.Stats, rebuild, r.events, r.guest, done, cancel)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		cancel()
		<-done
		return err
	}

	cancel()
	<-done
	return runErr
}
