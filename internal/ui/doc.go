// Package ui renders fluxusbctl output with Lipgloss and Bubble Tea.
//
// Most commands follow a run once and exit pattern: a header naming the
// target link, then a result box. File transfers run a small Bubble Tea
// program that drives a progress bar from the acknowledged chunk count.
// When stdout is not a terminal, output falls back to plain lines.
package ui
