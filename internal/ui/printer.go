package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes headers and results either styled or as plain text.
type Printer struct {
	out    io.Writer
	styled bool
	width  int
}

// NewPrinter creates a Printer. If w is nil, os.Stdout is used and styling
// follows whether stdout is a terminal.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if w == nil {
		w = os.Stdout
		styled = IsTerminal()
	}
	return &Printer{out: w, styled: styled, width: TerminalWidth()}
}

// Styled forces styling on or off.
func (p *Printer) Styled(on bool) *Printer {
	p.styled = on
	return p
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header, or a single line when unstyled.
func (p *Printer) PrintHeader(h *Header) {
	if !p.styled {
		p.Println(h.Title + " " + h.Target)
		return
	}
	h.Width = p.width
	p.Println(h.Render())
}

// PrintResult prints a result box, or plain lines when unstyled.
func (p *Printer) PrintResult(r *Result) {
	if !p.styled {
		_, _ = fmt.Fprint(p.out, r.Plain())
		return
	}
	r.Width = p.width
	p.Println(r.Render())
}
