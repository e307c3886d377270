package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// ReportFunc reports the bytes moved so far.
type ReportFunc func(done int64)

type transferProgressMsg int64

type transferDoneMsg struct{ err error }

// transferModel renders one file transfer. It quits when the work reports
// completion.
type transferModel struct {
	label   string
	total   int64
	done    int64
	bar     progress.Model
	started time.Time
	err     error
	over    bool
}

func newTransferModel(label string, total int64) transferModel {
	return transferModel{
		label:   label,
		total:   total,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		started: time.Now(),
	}
}

func (m transferModel) Init() tea.Cmd { return nil }

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case transferProgressMsg:
		m.done = int64(msg)
	case transferDoneMsg:
		m.err = msg.err
		m.over = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		w := msg.Width - 40
		if w < 20 {
			w = 20
		}
		if w > 50 {
			w = 50
		}
		m.bar.Width = w
	}
	return m, nil
}

func (m transferModel) percent() float64 {
	if m.total <= 0 {
		return 1
	}
	p := float64(m.done) / float64(m.total)
	if p > 1 {
		p = 1
	}
	return p
}

func (m transferModel) View() string {
	var b strings.Builder
	b.WriteString(ValueStyle.PaddingLeft(2).Render(m.label))
	b.WriteString("\n\n  ")
	b.WriteString(m.bar.ViewAs(m.percent()))
	fmt.Fprintf(&b, "  %3.0f%%  %s / %s", m.percent()*100, FormatBytes(m.done), FormatBytes(m.total))
	if rate := m.rate(); rate > 0 {
		b.WriteString("  ")
		b.WriteString(NoteStyle.Render(FormatBytes(int64(rate)) + "/s"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m transferModel) rate() float64 {
	elapsed := time.Since(m.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.done) / elapsed
}

// RunTransfer runs work while showing its progress. work runs on its own
// goroutine and RunTransfer returns only after it has finished, so the
// caller may keep using whatever work used. Unstyled printers run work
// without a display.
func (p *Printer) RunTransfer(ctx context.Context, label string, total int64, work func(ctx context.Context, report ReportFunc) error) error {
	if !p.styled {
		return work(ctx, func(int64) {})
	}

	prog := tea.NewProgram(newTransferModel(label, total),
		tea.WithOutput(p.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	finished := make(chan error, 1)
	go func() {
		err := work(ctx, func(done int64) { prog.Send(transferProgressMsg(done)) })
		finished <- err
		prog.Send(transferDoneMsg{err: err})
	}()

	// A failed display does not fail the transfer.
	_, _ = prog.Run()
	return <-finished
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
