package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/tui"
)

const streamLines = 10

func renderEventStream(entries []journal.Entry, theme tui.Theme, width int) string {
	innerWidth := width - 4

	if len(entries) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Frame.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range entries {
		if i >= streamLines {
			break
		}
		lines = append(lines, formatEntry(e, theme))
	}

	text := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		text,
	)
	return theme.Frame.Width(innerWidth).Render(content)
}

func formatEntry(e journal.Entry, theme tui.Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case journal.TypeCallOK:
		typeStyle = theme.OK
	case journal.TypeCallFailed:
		typeStyle = theme.Failed
	case journal.TypeReplayDone:
		typeStyle = theme.Accent
	case journal.TypeSettingSeen:
		typeStyle = theme.Busy
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-16s", e.Type)), describe(e))
}

// describe renders a one-line summary of an entry's payload.
func describe(e journal.Entry) string {
	switch e.Type {
	case journal.TypeCallOK, journal.TypeCallFailed:
		c, ok := decodeCall(e.Data)
		if !ok {
			break
		}
		s := c.Name + "(" + c.argList() + ")"
		if c.Value != nil {
			s += " = " + string(c.Value)
		}
		if c.Error != "" {
			s += " " + c.Kind + ": " + c.Error
		}
		return s
	case journal.TypeSettingSeen:
		var ch struct {
			Key   string `json:"key"`
			Value int64  `json:"value"`
		}
		if err := json.Unmarshal(e.Data, &ch); err == nil && ch.Key != "" {
			return fmt.Sprintf("%s=%d", ch.Key, ch.Value)
		}
	case journal.TypeReplayDone:
		if r, ok := decodeReplay(e.Data); ok {
			return fmt.Sprintf("%d applied, %d failed, %d skipped", r.Applied, r.Failed, r.Skipped)
		}
	}

	raw := string(e.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return raw
}

// callData is the subset of a call outcome the view uses.
type callData struct {
	Name     string            `json:"name"`
	Args     []json.RawMessage `json:"args"`
	Value    json.RawMessage   `json:"value"`
	Kind     string            `json:"kind"`
	Error    string            `json:"error"`
	Duration int64             `json:"duration_ns"`
}

func (c callData) argList() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

func decodeCall(data json.RawMessage) (callData, bool) {
	var c callData
	if err := json.Unmarshal(data, &c); err != nil || c.Name == "" {
		return callData{}, false
	}
	return c, true
}
