package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	StatusPassed lipgloss.Style
	StatusFailed lipgloss.Style
}

// DefaultStyles returns the styles for a color terminal.
func DefaultStyles() *Styles {
	return &Styles{
		Header1:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:      lipgloss.NewStyle().Bold(true).Underline(true),
		Bold:         lipgloss.NewStyle().Bold(true),
		Muted:        lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Warning:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Info:         lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		StatusPassed: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		StatusFailed: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() *Styles {
	plain := lipgloss.NewStyle()
	return &Styles{
		Header1:      plain,
		Header2:      plain,
		Bold:         plain,
		Muted:        plain,
		Success:      plain,
		Error:        plain,
		Warning:      plain,
		Info:         plain,
		StatusPassed: plain,
		StatusFailed: plain,
	}
}
