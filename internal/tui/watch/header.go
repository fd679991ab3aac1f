package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/pqd/internal/tui"
)

// HealthState tracks daemon health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Revision      string
	Digest        string
	Procedures    int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, spin string, activity *Activity, theme tui.Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.OK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.Failed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.Failed.Render("DEGRADED")
	}

	lastEventStr := "never"
	if last := activity.LastEvent(); !last.IsZero() {
		lastEventStr = formatAgo(time.Since(last).Round(time.Second))
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" PQD WATCH %s", spin)
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	digest := health.Digest
	if len(digest) > 12 {
		digest = digest[:12]
	}
	statsLine := fmt.Sprintf(" %s  up %s  revision %s  %d procedures  %s",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		theme.Accent.Render(orDash(health.Revision)),
		health.Procedures,
		theme.Dim.Render(orDash(digest)),
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, activity.Render(theme))

	return theme.Frame.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
