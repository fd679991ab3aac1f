package watch

import (
	"strings"
	"time"

	"github.com/mattjoyce/pqd/internal/tui"
)

const (
	activityWindow = 10 * time.Second
	activityDots   = 5
)

// Activity counts recent events and renders them as a row of dots, one
// lit dot per event seen in the last ten seconds.
type Activity struct {
	seen []time.Time
	last time.Time
	now  func() time.Time
}

func NewActivity() Activity {
	return Activity{now: time.Now}
}

func (a *Activity) OnEvent() {
	a.last = a.now()
	a.seen = append(a.seen, a.last)
	a.prune()
}

func (a *Activity) prune() {
	cutoff := a.now().Add(-activityWindow)
	i := 0
	for i < len(a.seen) && a.seen[i].Before(cutoff) {
		i++
	}
	a.seen = a.seen[i:]
}

// Recent returns the number of events inside the window.
func (a *Activity) Recent() int {
	a.prune()
	return len(a.seen)
}

// LastEvent is zero until the first event.
func (a Activity) LastEvent() time.Time { return a.last }

func (a *Activity) Render(theme tui.Theme) string {
	lit := min(a.Recent(), activityDots)
	var b strings.Builder
	for i := range activityDots {
		if i < lit {
			b.WriteString(theme.Pulse.Render("●"))
		} else {
			b.WriteString(theme.Idle.Render("○"))
		}
	}
	return b.String()
}
