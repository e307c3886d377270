package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// monitorHistory is how many probe results the monitor keeps on screen.
const monitorHistory = 10

// ProbeFunc performs one liveness probe.
type ProbeFunc func(ctx context.Context) (status string, rtt time.Duration, err error)

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	At     time.Time
	Status string
	RTT    time.Duration
	Err    error
}

type probeTickMsg struct{}

type probeDoneMsg ProbeResult

type monitorKeyMap struct {
	Probe key.Binding
	Pause key.Binding
	Quit  key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Probe, k.Pause, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// monitorModel probes the link on a timer and shows the recent results.
// At most one probe is in flight.
type monitorModel struct {
	ctx      context.Context
	target   string
	interval time.Duration
	count    int
	probe    ProbeFunc

	spinner spinner.Model
	help    help.Model
	keys    monitorKeyMap

	history  []ProbeResult
	sent     int
	failed   int
	inFlight bool
	paused   bool
}

func newMonitorModel(ctx context.Context, target string, interval time.Duration, count int, probe ProbeFunc) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = NoteStyle
	return monitorModel{
		ctx:      ctx,
		target:   target,
		interval: interval,
		count:    count,
		probe:    probe,
		spinner:  sp,
		help:     help.New(),
		keys: monitorKeyMap{
			Probe: key.NewBinding(key.WithKeys("p", "enter"), key.WithHelp("p", "probe now")),
			Pause: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "pause")),
			Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
		},
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return probeTickMsg{} })
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return probeTickMsg{} })
}

func (m monitorModel) startProbe() (monitorModel, tea.Cmd) {
	if m.inFlight || m.done() {
		return m, nil
	}
	m.inFlight = true
	m.sent++
	ctx, probe := m.ctx, m.probe
	return m, func() tea.Msg {
		status, rtt, err := probe(ctx)
		return probeDoneMsg{At: time.Now(), Status: status, RTT: rtt, Err: err}
	}
}

func (m monitorModel) done() bool {
	return m.count > 0 && m.sent >= m.count
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Probe):
			return m.startProbe()
		}

	case probeTickMsg:
		next := m.tick()
		if m.paused {
			return m, next
		}
		var cmd tea.Cmd
		m, cmd = m.startProbe()
		return m, tea.Batch(cmd, next)

	case probeDoneMsg:
		m.inFlight = false
		if msg.Err != nil {
			m.failed++
		}
		m.history = append(m.history, ProbeResult(msg))
		if len(m.history) > monitorHistory {
			m.history = m.history[len(m.history)-monitorHistory:]
		}
		if m.done() || errors.Is(msg.Err, context.Canceled) {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Monitoring " + m.target))
	b.WriteString("\n")
	state := fmt.Sprintf("every %s, %d sent, %d failed", m.interval, m.sent, m.failed)
	if m.paused {
		state += ", paused"
	}
	b.WriteString(SubtitleStyle.Render(state))
	b.WriteString("\n\n")

	for _, r := range m.history {
		b.WriteString("  ")
		b.WriteString(formatProbe(r, true))
		b.WriteString("\n")
	}
	if m.inFlight {
		b.WriteString("  " + m.spinner.View() + " probing\n")
	}
	b.WriteString("\n  ")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

// formatProbe renders one result on a single line.
func formatProbe(r ProbeResult, styled bool) string {
	stamp := r.At.Format("15:04:05")
	if r.Err != nil {
		line := fmt.Sprintf("%s %s %v", stamp, MarkFail, r.Err)
		if styled {
			return FailTextStyle.Render(line)
		}
		return line
	}
	rtt := r.RTT.Round(time.Microsecond).String()
	if styled {
		return fmt.Sprintf("%s %s %s  %s", NoteStyle.Render(stamp), OKStyle.Render(MarkOK), r.Status, NoteStyle.Render(rtt))
	}
	return fmt.Sprintf("%s %s %s  %s", stamp, MarkOK, r.Status, rtt)
}

// RunMonitor probes every interval until ctx ends, the user quits or count
// probes have been sent (count 0 means no limit). It returns the number of
// failed probes. Unstyled printers write one line per probe.
func (p *Printer) RunMonitor(ctx context.Context, target string, interval time.Duration, count int, probe ProbeFunc) (failed int, err error) {
	if !p.styled {
		return p.monitorPlain(ctx, interval, count, probe)
	}

	prog := tea.NewProgram(newMonitorModel(ctx, target, interval, count, probe),
		tea.WithOutput(p.out),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	if m, ok := final.(monitorModel); ok {
		failed = m.failed
	}
	return failed, err
}

func (p *Printer) monitorPlain(ctx context.Context, interval time.Duration, count int, probe ProbeFunc) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failed := 0
	for sent := 0; count == 0 || sent < count; sent++ {
		if sent > 0 {
			select {
			case <-ctx.Done():
				return failed, nil
			case <-ticker.C:
			}
		}
		status, rtt, err := probe(ctx)
		if ctx.Err() != nil {
			return failed, nil
		}
		if err != nil {
			failed++
		}
		p.Println(formatProbe(ProbeResult{At: time.Now(), Status: status, RTT: rtt, Err: err}, false))
	}
	return failed, nil
}
