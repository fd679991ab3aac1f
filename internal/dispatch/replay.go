package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/wire"
)

// Layer is one named value source consulted during replay.
type Layer struct {
	Name   string
	Reader Reader
}

// Value sources reported in a replay summary.
const (
	SourceDefault = "default"
)

// KeyResult is the replay result of one key.
type KeyResult struct {
	Key    string `json:"key"`
	Value  int64  `json:"value"`
	Source string `json:"source"`
	CallID string `json:"call_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ReplaySummary reports one ReplayAll pass.
type ReplaySummary struct {
	Total    int           `json:"total"`
	Applied  int           `json:"applied"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
	Keys     []KeyResult   `json:"keys"`
}

// Replayer re-issues every key-bound setter at startup.
type Replayer struct {
	d      *Dispatcher
	layers []Layer
	logger *slog.Logger
}

// NewReplayer reads each key from layers in order; the procedure default
// is used when no layer has a value.
func NewReplayer(d *Dispatcher, layers ...Layer) *Replayer {
	return &Replayer{d: d, layers: layers, logger: log.WithComponent("replay")}
}

// ReplayAll issues one call per setter in table order. Failures are logged
// per key and never abort the pass. Keys left when ctx is cancelled are
// counted as skipped.
func (r *Replayer) ReplayAll(ctx context.Context) ReplaySummary {
	start := time.Now()
	setters := r.d.reg.Setters()
	sum := ReplaySummary{Total: len(setters)}

	for _, p := range setters {
		if ctx.Err() != nil {
			sum.Skipped++
			sum.Keys = append(sum.Keys, KeyResult{Key: p.Key, Error: ctx.Err().Error()})
			continue
		}
		value, source := r.read(ctx, p.Key, p.Default)
		r.logger.Info("replaying setting", "key", p.Key, "value", value, "source", source)

		out := r.d.apply(ctx, p.ID, p.Key, value, wire.IntValue(value))
		res := KeyResult{Key: p.Key, Value: value, Source: source, CallID: out.CallID}
		if out.OK() {
			sum.Applied++
		} else {
			sum.Failed++
			res.Error = out.Error
		}
		sum.Keys = append(sum.Keys, res)
	}

	sum.Duration = time.Since(start)
	r.logger.Info("replay complete",
		"total", sum.Total,
		"applied", sum.Applied,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration", sum.Duration,
	)
	return sum
}

func (r *Replayer) read(ctx context.Context, key string, def int64) (int64, string) {
	for _, l := range r.layers {
		if l.Reader == nil {
			continue
		}
		v, err := l.Reader.Int(ctx, key)
		if err == nil {
			return v, l.Name
		}
		r.logger.Debug("replay source miss", "key", key, "source", l.Name, "error", err)
	}
	return def, SourceDefault
}
