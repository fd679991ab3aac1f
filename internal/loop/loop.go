// Package loop runs work items one at a time on a single goroutine.
//
// Settings notifications, D-Bus calls and HTTP calls all enter the daemon
// through a Loop, so the PQ channel and the settings store are only ever
// touched by one goroutine.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/pqd/internal/log"
)

// ErrStopped is returned by Do once the loop has stopped.
var ErrStopped = errors.New("loop: stopped")

type task struct {
	fn   func(context.Context) error
	done chan error
}

// Loop is a cooperative single-threaded executor.
type Loop struct {
	tasks   chan task
	stopped chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// New creates a loop whose queue holds depth pending tasks.
func New(depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	return &Loop{
		tasks:   make(chan task, depth),
		stopped: make(chan struct{}),
		logger:  log.WithComponent("loop"),
	}
}

// Run executes queued tasks until ctx is cancelled. Tasks still queued at
// that point are answered with ErrStopped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("event loop started")
	defer l.logger.Debug("event loop stopped")
	defer l.stop()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case t := <-l.tasks:
			t.done <- l.exec(ctx, t.fn)
		}
	}
}

func (l *Loop) exec(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
			err = fmt.Errorf("loop: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (l *Loop) stop() {
	l.once.Do(func() { close(l.stopped) })
}

func (l *Loop) drain() {
	for {
		select {
		case t := <-l.tasks:
			t.done <- ErrStopped
		default:
			return
		}
	}
}

// Do runs fn on the loop and waits for its result. It returns ctx.Err() if
// the caller gives up first; fn may still run later in that case.
func (l *Loop) Do(ctx context.Context, fn func(context.Context) error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- t:
	}
	select {
	case err := <-t.done:
		return err
	case <-l.stopped:
		// Run may have answered just before stopping.
		select {
		case err := <-t.done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. It returns false when the queue is full
// or the loop has stopped. Errors from fn are logged.
func (l *Loop) Post(fn func(context.Context) error) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	t := task{
		fn: func(ctx context.Context) error {
			if err := fn(ctx); err != nil {
				l.logger.Debug("posted task failed", "error", err)
			}
			return nil
		},
		done: make(chan error, 1),
	}
	select {
	case l.tasks <- t:
		return true
	default:
		return false
	}
}
