package gsettings

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/mattjoyce/pqd/internal/log"
)

// Change is one observed value change.
type Change struct {
	Alias string `json:"key"`
	Value int64  `json:"value"`
}

// Watcher runs one `gsettings monitor <schema>` subprocess per schema of
// its catalog and reports changes of catalogued keys.
type Watcher struct {
	catalog      *Catalog
	binary       string
	restartDelay time.Duration
	logger       *slog.Logger
}

func NewWatcher(catalog *Catalog, binary string) *Watcher {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Watcher{
		catalog:      catalog,
		binary:       binary,
		restartDelay: 2 * time.Second,
		logger:       log.WithComponent("gsettings"),
	}
}

// Run watches until ctx is cancelled, calling fn for each change. fn is
// called from the monitor goroutines and must hand work off quickly. A
// monitor that exits is restarted after a fixed delay.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) error {
	schemas := w.catalog.Schemas()
	if len(schemas) == 0 {
		return errors.New("gsettings: nothing to watch")
	}

	var wg sync.WaitGroup
	for _, schema := range schemas {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := w.monitor(ctx, schema, fn)
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn("monitor exited, restarting", "schema", schema, "error", err, "delay", w.restartDelay)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.restartDelay):
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Watcher) monitor(ctx context.Context, schema string, fn func(Change)) error {
	cmd := exec.CommandContext(ctx, w.binary, "monitor", schema)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("monitor %s: %w", schema, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("monitor %s: %w", schema, err)
	}
	w.logger.Info("watching schema", "schema", schema, "pid", cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		name, raw, ok := parseMonitorLine(scanner.Text())
		if !ok {
			continue
		}
		k, watched := w.catalog.Resolve(schema, name)
		if !watched {
			continue
		}
		v, err := ParseValue(raw)
		if err != nil {
			w.logger.Warn("unparseable change", "key", k.String(), "value", raw, "error", err)
			continue
		}
		w.logger.Debug("setting changed", "key", k.Alias, "value", v)
		fn(Change{Alias: k.Alias, Value: v})
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("monitor %s: read: %w", schema, err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("monitor %s: %w", schema, err)
	}
	return errors.New("monitor exited")
}
