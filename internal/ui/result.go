package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType is the severity of a Result.
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

type severity struct {
	style lipgloss.Style
	color lipgloss.Color
	mark  string
	word  string
	plain string
}

var severities = map[ResultType]severity{
	ResultSuccess: {OKStyle, OKColor, MarkOK, "SUCCESS", "OK"},
	ResultFailure: {FailStyle, FailColor, MarkFail, "FAILED", "FAILED"},
	ResultWarning: {WarnStyle, WarnColor, MarkWarn, "WARNING", "WARNING"},
}

// Result is the box printed when a command finishes.
type Result struct {
	Type            ResultType
	Title           string
	Details         []Detail
	Error           error
	Troubleshooting []string
	Width           int
}

// NewSuccessResult creates a success result.
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: TerminalWidth()}
}

// NewFailureResult creates a failure result carrying err and hints for
// the operator.
func NewFailureResult(title string, err error, troubleshooting ...string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Troubleshooting: troubleshooting, Width: TerminalWidth()}
}

// NewWarningResult creates a warning result.
func NewWarningResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: TerminalWidth()}
}

// AddDetail appends a detail line.
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Detail{Key: key, Value: value})
	return r
}

// Render draws the result in a double border colored by severity.
func (r *Result) Render() string {
	sev := severities[r.Type]
	lines := []string{"", banner(sev.style, sev.mark, sev.word, r.Title), ""}
	for _, d := range r.Details {
		lines = append(lines, KeyStyle.Width(keyWidth).Render("   "+d.Key+":")+" "+ValueStyle.Render(d.Value))
	}
	if r.Error != nil {
		lines = append(lines, FailTextStyle.Render("   Error: "+r.Error.Error()))
	}
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, "", KeyStyle.Bold(true).Render("   Troubleshooting:"))
		for _, tip := range r.Troubleshooting {
			lines = append(lines, KeyStyle.Render("     • "+tip))
		}
	}
	lines = append(lines, "")
	return box(lipgloss.DoubleBorder(), sev.color, r.Width).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

// Plain renders the result without styling, one detail per line.
func (r *Result) Plain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", severities[r.Type].plain, r.Title)
	for _, d := range r.Details {
		fmt.Fprintf(&b, "  %s: %s\n", d.Key, d.Value)
	}
	if r.Error != nil {
		fmt.Fprintf(&b, "  error: %v\n", r.Error)
	}
	for _, tip := range r.Troubleshooting {
		fmt.Fprintf(&b, "  - %s\n", tip)
	}
	return b.String()
}

func (r *Result) String() string { return r.Render() }
