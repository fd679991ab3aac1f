package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles shared by the tuner and the watch view.
type Theme struct {
	OK     lipgloss.Style
	Busy   lipgloss.Style
	Failed lipgloss.Style

	Frame  lipgloss.Style
	Title  lipgloss.Style
	Header lipgloss.Style
	Dim    lipgloss.Style
	Accent lipgloss.Style

	Cursor   lipgloss.Style
	Selected lipgloss.Style

	// Pulse and Idle draw the activity dots.
	Pulse lipgloss.Style
	Idle  lipgloss.Style
}

func NewDefaultTheme() Theme {
	var (
		violet = lipgloss.Color("#874BFD")
		green  = lipgloss.Color("#00FF00")
	)
	fg := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}

	return Theme{
		OK:     lipgloss.NewStyle().Foreground(green),
		Busy:   fg("#FFFF00"),
		Failed: fg("#FF0000"),

		Frame:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(violet),
		Title:  fg("#FAFAFA").Bold(true).Padding(0, 1),
		Header: fg("#61AFEF").Bold(true),
		Dim:    fg("#888888"),
		Accent: fg("#E5C07B"),

		Cursor:   lipgloss.NewStyle().Bold(true).Foreground(violet),
		Selected: fg("229").Bold(true).Background(lipgloss.Color("57")),

		Pulse: lipgloss.NewStyle().Foreground(green),
		Idle:  fg("#444444"),
	}
}
