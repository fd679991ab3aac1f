package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/tui"
)

// ProcedureState tracks calls of one procedure seen on the stream.
type ProcedureState struct {
	Name      string
	OK        int
	Failed    int
	LastKind  string
	LastArgs  string
	LastValue string
	LastError string
	LastRun   time.Time
	Duration  time.Duration
}

// updateProcedures folds a call entry into the per-procedure state.
func updateProcedures(procs map[string]*ProcedureState, e journal.Entry) {
	if e.Type != journal.TypeCallOK && e.Type != journal.TypeCallFailed {
		return
	}
	c, ok := decodeCall(e.Data)
	if !ok {
		return
	}

	p, ok := procs[c.Name]
	if !ok {
		p = &ProcedureState{Name: c.Name}
		procs[c.Name] = p
	}
	if e.Type == journal.TypeCallOK {
		p.OK++
		p.LastError = ""
	} else {
		p.Failed++
		p.LastError = c.Error
	}
	p.LastKind = c.Kind
	p.LastArgs = c.argList()
	p.LastValue = string(c.Value)
	p.LastRun = e.At
	p.Duration = time.Duration(c.Duration)
}

// sortedProcedureNames returns names in stable sorted order.
func sortedProcedureNames(procs map[string]*ProcedureState) []string {
	names := make([]string, 0, len(procs))
	for name := range procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func renderProcedures(procs map[string]*ProcedureState, selected int, theme tui.Theme, width int) string {
	innerWidth := width - 4

	if len(procs) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("PROCEDURES"),
			theme.Dim.Render("  No calls seen yet..."),
		)
		return theme.Frame.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, name := range sortedProcedureNames(procs) {
		lines = append(lines, renderProcedureRow(procs[name], i == selected, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{theme.Title.Render("PROCEDURES")}, lines...)...,
	)
	return theme.Frame.Width(innerWidth).Render(content)
}

func renderProcedureRow(p *ProcedureState, isSelected bool, theme tui.Theme) string {
	nameStyle := lipgloss.NewStyle()
	if isSelected {
		nameStyle = theme.Selected
	}

	counts := theme.OK.Render(fmt.Sprintf("%d ok", p.OK))
	if p.Failed > 0 {
		counts += " " + theme.Failed.Render(fmt.Sprintf("%d failed", p.Failed))
	}

	last := fmt.Sprintf("(%s)", p.LastArgs)
	if p.LastValue != "" {
		last += " = " + theme.Accent.Render(p.LastValue)
	}

	var line strings.Builder
	fmt.Fprintf(&line, " %s %s  %s  %s %s",
		kindIcon(p.LastKind, theme),
		nameStyle.Render(fmt.Sprintf("%-30s", p.Name)),
		counts,
		last,
		theme.Dim.Render(formatAgo(time.Since(p.LastRun).Round(time.Second))),
	)
	if isSelected && p.LastError != "" {
		line.WriteString("\n    └─ " + theme.Failed.Render(p.LastKind+": "+p.LastError))
	}
	return line.String()
}

func kindIcon(kind string, theme tui.Theme) string {
	switch kind {
	case pq.KindOK:
		return theme.OK.Render("✔")
	case pq.KindTimeout:
		return theme.Failed.Render("⏱")
	case "":
		return " "
	default:
		return theme.Failed.Render("✘")
	}
}

func formatAgo(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
