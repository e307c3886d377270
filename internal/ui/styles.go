package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette. LinkColor frames neutral output; the others follow severity.
var (
	LinkColor  = lipgloss.Color("#2E9BD6")
	OKColor    = lipgloss.Color("#4CB963")
	FailColor  = lipgloss.Color("#E5484D")
	WarnColor  = lipgloss.Color("#F2A93B")
	DimColor   = lipgloss.Color("#7A7A7A")
	PlainColor = lipgloss.Color("#EDEDED")
)

const (
	minWidth = 60
	maxWidth = 100
	keyWidth = 18
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	TitleStyle    = fg(PlainColor).Bold(true).PaddingLeft(2)
	SubtitleStyle = fg(DimColor).PaddingLeft(2)
	KeyStyle      = fg(DimColor)
	ValueStyle    = fg(PlainColor)
	NoteStyle     = fg(DimColor).Italic(true)

	OKStyle       = fg(OKColor).Bold(true)
	WarnStyle     = fg(WarnColor).Bold(true)
	FailStyle     = fg(FailColor).Bold(true)
	FailTextStyle = fg(FailColor)
)

// Status marks.
const (
	MarkOK   = "✓"
	MarkFail = "✗"
	MarkWarn = "⚠"
)

func stdoutFD() int { return int(os.Stdout.Fd()) }

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool { return term.IsTerminal(stdoutFD()) }

// TerminalWidth returns the stdout width clamped to [60, 100], or 60 when
// stdout has no size.
func TerminalWidth() int {
	w, _, err := term.GetSize(stdoutFD())
	if err != nil {
		return minWidth
	}
	return min(fitWidth(w), maxWidth)
}

func fitWidth(w int) int { return max(w, minWidth) }

// box frames content in a border of the given outer width.
func box(border lipgloss.Border, color lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Width(fitWidth(width) - 2)
}

// rule is a horizontal divider in the link color.
func rule(width int) string {
	return fg(LinkColor).Render(strings.Repeat("─", max(width, 10)))
}

// banner is the status line opening result and confirm boxes.
func banner(style lipgloss.Style, mark, word, title string) string {
	return style.Render("   " + mark + "  " + word + "  ─  " + title)
}
