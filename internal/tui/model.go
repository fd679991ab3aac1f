// Package tui implements pqctl's interactive tuner: one row per settable
// PQ control, adjusted with the arrow keys and applied on enter.
package tui

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

const maxLog = 8

// Caller issues one call on the PQ service.
type Caller interface {
	Call(ctx context.Context, id registry.OperationID, args ...wire.Value) pq.Outcome
}

type row struct {
	proc    *registry.Procedure
	value   int64
	applied int64
	known   bool
	min     int64
	max     int64
	step    int64
	last    *pq.Outcome
}

func (r row) dirty() bool { return !r.known || r.value != r.applied }

// --- Message types ---

type readMsg struct {
	values map[int]int64
	failed []pq.Outcome
}

type appliedMsg struct {
	row int
	out pq.Outcome
}

// Model is the BubbleTea model for the tuner.
type Model struct {
	reg     *registry.Registry
	caller  Caller
	timeout time.Duration

	rows   []row
	cursor int
	log    []pq.Outcome
	busy   bool

	keys  keyMap
	help  help.Model
	theme Theme
	width int
}

// New creates a tuner over the key-bound setters of reg.
func New(reg *registry.Registry, caller Caller, timeout time.Duration) Model {
	if timeout <= 0 {
		timeout = pq.DefaultTimeout
	}
	m := Model{
		reg:     reg,
		caller:  caller,
		timeout: timeout,
		keys:    defaultKeys(),
		help:    help.New(),
		theme:   NewDefaultTheme(),
	}
	for _, p := range reg.Setters() {
		lo, hi, step := bounds(p)
		m.rows = append(m.rows, row{proc: p, min: lo, max: hi, step: step})
	}
	return m
}

// bounds picks the adjustment range of a setter from its argument lane and
// usage text.
func bounds(p *registry.Procedure) (lo, hi, step int64) {
	args := p.UserArgs()
	if len(args) == 1 && args[0].Type == wire.TypeBool {
		return 0, 1, 1
	}
	switch p.Usage {
	case "0-1000":
		return 0, 1000, 50
	case "0: disable, 1: enable", "0: standard mode, 1: vivid mode":
		return 0, 1, 1
	}
	return 0, math.MaxInt32, 1
}

func (m Model) Init() tea.Cmd {
	return m.readAll()
}

// readAll reads every row that has a getter. Calls run one after another
// because the handle is not safe for concurrent use.
func (m Model) readAll() tea.Cmd {
	type target struct {
		row    int
		getter *registry.Procedure
		args   []wire.Value
	}
	var targets []target
	for i, r := range m.rows {
		if g, args, ok := m.reg.ReadBack(r.proc); ok {
			targets = append(targets, target{row: i, getter: g, args: args})
		}
	}
	if len(targets) == 0 {
		return nil
	}
	caller, timeout := m.caller, m.timeout
	return func() tea.Msg {
		msg := readMsg{values: make(map[int]int64)}
		for _, t := range targets {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			out := caller.Call(ctx, t.getter.ID, t.args...)
			cancel()
			if !out.OK() || out.Value == nil {
				msg.failed = append(msg.failed, out)
				continue
			}
			msg.values[t.row] = out.Value.Int()
		}
		return msg
	}
}

func (m Model) apply(i int) tea.Cmd {
	p, v := m.rows[i].proc, m.rows[i].value
	caller, timeout := m.caller, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return appliedMsg{row: i, out: caller.Call(ctx, p.ID, wire.IntValue(v))}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Inc):
			m.adjust(1)
		case key.Matches(msg, m.keys.Dec):
			m.adjust(-1)
		case key.Matches(msg, m.keys.Apply):
			if m.busy || len(m.rows) == 0 {
				return m, nil
			}
			m.busy = true
			return m, m.apply(m.cursor)
		case key.Matches(msg, m.keys.Refresh):
			if m.busy {
				return m, nil
			}
			cmd := m.readAll()
			m.busy = cmd != nil
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case readMsg:
		m.busy = false
		for i, v := range msg.values {
			m.rows[i].value = v
			m.rows[i].applied = v
			m.rows[i].known = true
		}
		for _, out := range msg.failed {
			m.record(out)
		}

	case appliedMsg:
		m.busy = false
		out := msg.out
		r := &m.rows[msg.row]
		r.last = &out
		if out.OK() {
			r.applied = r.value
			r.known = true
		}
		m.record(out)
	}

	return m, nil
}

func (m *Model) adjust(dir int64) {
	if len(m.rows) == 0 {
		return
	}
	r := &m.rows[m.cursor]
	v := r.value + dir*r.step
	if v < r.min {
		v = r.min
	}
	if v > r.max {
		v = r.max
	}
	r.value = v
}

// record prepends out to the outcome log (newest first).
func (m *Model) record(out pq.Outcome) {
	m.log = append([]pq.Outcome{out}, m.log...)
	if len(m.log) > maxLog {
		m.log = m.log[:maxLog]
	}
}
