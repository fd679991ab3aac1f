package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/tui"
)

const settingLines = 8

// ReplayState is the last replay summary seen on the stream.
type ReplayState struct {
	Total    int
	Applied  int
	Failed   int
	Skipped  int
	Duration time.Duration
	At       time.Time
	Failures []string
}

// SettingState is the latest value seen for one settings key.
type SettingState struct {
	Key      string
	Value    int64
	Changes  int
	LastSeen time.Time
}

type replayData struct {
	Total    int   `json:"total"`
	Applied  int   `json:"applied"`
	Failed   int   `json:"failed"`
	Skipped  int   `json:"skipped"`
	Duration int64 `json:"duration_ns"`
	Keys     []struct {
		Key   string `json:"key"`
		Error string `json:"error"`
	} `json:"keys"`
}

func decodeReplay(data json.RawMessage) (replayData, bool) {
	var r replayData
	if err := json.Unmarshal(data, &r); err != nil || r.Total == 0 {
		return replayData{}, false
	}
	return r, true
}

// updateSettings folds replay and setting-change entries into state.
func updateSettings(replay *ReplayState, settings map[string]*SettingState, e journal.Entry) {
	switch e.Type {
	case journal.TypeReplayDone:
		r, ok := decodeReplay(e.Data)
		if !ok {
			return
		}
		*replay = ReplayState{
			Total:    r.Total,
			Applied:  r.Applied,
			Failed:   r.Failed,
			Skipped:  r.Skipped,
			Duration: time.Duration(r.Duration),
			At:       e.At,
		}
		for _, k := range r.Keys {
			if k.Error != "" {
				replay.Failures = append(replay.Failures, k.Key)
			}
		}

	case journal.TypeSettingSeen:
		var ch struct {
			Key   string `json:"key"`
			Value int64  `json:"value"`
		}
		if err := json.Unmarshal(e.Data, &ch); err != nil || ch.Key == "" {
			return
		}
		s, ok := settings[ch.Key]
		if !ok {
			s = &SettingState{Key: ch.Key}
			settings[ch.Key] = s
		}
		s.Value = ch.Value
		s.Changes++
		s.LastSeen = e.At
	}
}

func renderSettings(replay ReplayState, settings map[string]*SettingState, theme tui.Theme, width int) string {
	innerWidth := width - 4

	replayLine := theme.Dim.Render("  No replay observed yet...")
	if replay.Total > 0 {
		status := theme.OK.Render("[clean]")
		if replay.Failed > 0 || replay.Skipped > 0 {
			status = theme.Failed.Render("[partial]")
		}
		replayLine = fmt.Sprintf(" Replay %s %d/%d applied, %d failed, %d skipped in %s %s",
			status,
			replay.Applied, replay.Total, replay.Failed, replay.Skipped,
			replay.Duration.Round(time.Millisecond),
			theme.Dim.Render(replay.At.Local().Format("15:04:05")),
		)
		if len(replay.Failures) > 0 {
			replayLine += "\n    └─ " + theme.Failed.Render(fmt.Sprint(replay.Failures))
		}
	}

	lines := []string{theme.Title.Render("SETTINGS"), replayLine}
	for i, s := range recentSettings(settings) {
		if i >= settingLines {
			break
		}
		lines = append(lines, fmt.Sprintf(" %-28s %s %s",
			s.Key,
			theme.Accent.Render(fmt.Sprintf("%6d", s.Value)),
			theme.Dim.Render(fmt.Sprintf("x%d, %s", s.Changes, formatAgo(time.Since(s.LastSeen).Round(time.Second)))),
		))
	}

	return theme.Frame.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// recentSettings orders settings by last change, newest first.
func recentSettings(settings map[string]*SettingState) []*SettingState {
	out := make([]*SettingState, 0, len(settings))
	for _, s := range settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Key < out[j].Key
	})
	return out
}
