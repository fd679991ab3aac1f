package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/pqd/internal/pq"
)

func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	parts := []string{
		m.renderHeader(),
		m.renderRows(width),
		m.renderLog(width),
		m.help.View(m.keys),
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	status := m.theme.OK.Render("● ready")
	if m.busy {
		status = m.theme.Busy.Render("● calling")
	}
	digest := m.reg.Digest()
	if len(digest) > 19 {
		digest = digest[:19]
	}
	return fmt.Sprintf("%s %s %s %s",
		m.theme.Title.Render("PQ TUNER"),
		m.theme.Header.Render(m.reg.Revision().String()),
		m.theme.Dim.Render(digest),
		status,
	)
}

func (m Model) renderRows(width int) string {
	var lines []string
	for i, r := range m.rows {
		cursor := "  "
		name := fmt.Sprintf("%-30s", r.proc.Name)
		if i == m.cursor {
			cursor = m.theme.Cursor.Render("▸ ")
			name = m.theme.Cursor.Render(name)
		}

		value := fmt.Sprintf("%6s", formatValue(r))
		if r.dirty() {
			value = m.theme.Accent.Render(value)
		}

		lines = append(lines, fmt.Sprintf("%s%s %s  %s %s",
			cursor, name, value, outcomeMark(r.last, m.theme), m.theme.Dim.Render(r.proc.Usage)))
	}
	if len(lines) == 0 {
		lines = append(lines, m.theme.Dim.Render("  No settable controls in this revision"))
	}
	return m.theme.Frame.Width(width - 4).Render(strings.Join(lines, "\n"))
}

func formatValue(r row) string {
	if !r.known && r.value == 0 {
		return "?"
	}
	return strconv.FormatInt(r.value, 10)
}

func outcomeMark(out *pq.Outcome, theme Theme) string {
	switch {
	case out == nil:
		return " "
	case out.OK():
		return theme.OK.Render("✓")
	default:
		return theme.Failed.Render("✗")
	}
}

func (m Model) renderLog(width int) string {
	if len(m.log) == 0 {
		return m.theme.Frame.Width(width - 4).Render(m.theme.Dim.Render("No calls yet"))
	}
	lines := make([]string, 0, len(m.log))
	for _, out := range m.log {
		lines = append(lines, formatOutcome(out, m.theme))
	}
	return m.theme.Frame.Width(width - 4).Render(strings.Join(lines, "\n"))
}

func formatOutcome(out pq.Outcome, theme Theme) string {
	ts := theme.Dim.Render(out.At.Format("15:04:05"))
	kind := theme.OK.Render(fmt.Sprintf("%-12s", out.Kind))
	if !out.OK() {
		kind = theme.Failed.Render(fmt.Sprintf("%-12s", out.Kind))
	}
	args := make([]string, len(out.Args))
	for i, a := range out.Args {
		args[i] = a.String()
	}
	desc := fmt.Sprintf("%s(%s)", out.Name, strings.Join(args, ", "))
	if out.Value != nil {
		desc += " = " + out.Value.String()
	}
	if out.Error != "" {
		desc += " " + theme.Failed.Render(out.Error)
	}
	return fmt.Sprintf("%s %s %s", ts, kind, desc)
}
