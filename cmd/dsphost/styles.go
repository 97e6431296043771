package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// styler renders report text, styled only when stdout is a terminal.
type styler struct {
	enabled bool
}

func newStyler() styler {
	return styler{enabled: term.IsTerminal(int(os.Stdout.Fd()))}
}

func (s styler) title(v string) string { return s.render(titleStyle, v) }
func (s styler) name(v string) string  { return s.render(nameStyle, v) }
func (s styler) value(v string) string { return s.render(valueStyle, v) }
func (s styler) err(v string) string   { return s.render(errorStyle, v) }

func (s styler) render(st lipgloss.Style, v string) string {
	if !s.enabled {
		return v
	}
	return st.Render(v)
}
