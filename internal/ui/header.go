package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one key/value line. Slices keep display order stable.
type Detail struct {
	Key   string
	Value string
}

// Header is the banner printed before a command talks to the device.
type Header struct {
	Title  string   // e.g. "UPLOAD"
	Target string   // e.g. "tcp://127.0.0.1:7750"
	Params []Detail // e.g. {"Channel", "0"}
	Width  int
}

// NewHeader creates a header sized to the terminal.
func NewHeader(title, target string, params ...Detail) *Header {
	return &Header{Title: title, Target: target, Params: params, Width: TerminalWidth()}
}

// Render draws the title, the link target and any params in a rounded box.
func (h *Header) Render() string {
	parts := []string{
		TitleStyle.Render(strings.ToUpper(h.Title)),
		SubtitleStyle.Render(h.Target),
	}
	if len(h.Params) > 0 {
		parts = append(parts, rule(fitWidth(h.Width)-6))
		for _, p := range h.Params {
			parts = append(parts, KeyStyle.PaddingLeft(2).Render(p.Key+":")+" "+ValueStyle.Render(p.Value))
		}
	}
	return box(lipgloss.RoundedBorder(), LinkColor, h.Width).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (h *Header) String() string { return h.Render() }
