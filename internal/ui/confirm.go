package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm shows a warning box and reads one line from in. It returns true
// only if the line equals answer.
func (p *Printer) Confirm(in io.Reader, title string, warnings []string, answer string) bool {
	if p.styled {
		lines := []string{"", banner(WarnStyle, MarkWarn, "WARNING", title), ""}
		for _, w := range warnings {
			lines = append(lines, ValueStyle.Render("   • "+w))
		}
		lines = append(lines, "")
		p.Println(box(lipgloss.DoubleBorder(), WarnColor, p.width).
			Padding(0, 2).
			Render(strings.Join(lines, "\n")))
	} else {
		p.Println("WARNING: " + title)
		for _, w := range warnings {
			p.Println("  - " + w)
		}
	}

	prompt := fmt.Sprintf("To proceed, type %q and press Enter: ", answer)
	if p.styled {
		prompt = WarnStyle.Render(prompt)
	}
	_, _ = fmt.Fprint(p.out, prompt)

	input, err := bufio.NewReader(in).ReadString('\n')
	p.Println("")
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == answer {
		return true
	}
	p.Println(NoteStyle.Render("  Operation cancelled."))
	return false
}
