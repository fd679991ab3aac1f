package pq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/pqd/internal/hwbinder"
	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

const (
	DefaultService   = "vendor.mediatek.hardware.pq@2.0::IPictureQuality/default"
	DefaultInterface = "vendor.mediatek.hardware.pq@2.0::IPictureQuality"
	DefaultTimeout   = 2 * time.Second
)

// Observer sees every outcome produced by a handle.
type Observer func(Outcome)

type options struct {
	device   string
	service  string
	iface    string
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// Option configures Open.
type Option func(*options)

func WithDevice(device string) Option   { return func(o *options) { o.device = device } }
func WithService(fqName string) Option  { return func(o *options) { o.service = fqName } }
func WithInterface(iface string) Option { return func(o *options) { o.iface = iface } }
func WithLogger(l *slog.Logger) Option  { return func(o *options) { o.logger = l } }
func WithObserver(fn Observer) Option   { return func(o *options) { o.observer = fn } }

// WithTimeout bounds each transaction. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Handle owns one service manager, remote object and client. A Handle is
// not safe for concurrent use.
type Handle struct {
	reg     *registry.Registry
	manager ServiceManager
	remote  RemoteObject
	client  Client
	opts    options
	logger  *slog.Logger
	closed  bool
}

// Open acquires the service manager, the remote object and the client in
// that order. On failure everything already acquired is released and a
// *ConnectError names the failing stage.
func Open(ctx context.Context, drv Driver, reg *registry.Registry, opts ...Option) (*Handle, error) {
	o := options{
		device:  hwbinder.DefaultDevice,
		service: DefaultService,
		iface:   DefaultInterface,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.WithComponent("pq")
	}

	h := &Handle{reg: reg, opts: o, logger: logger}

	manager, err := drv.Open(ctx, o.device)
	if err != nil {
		return nil, &ConnectError{Stage: StageManager, Target: o.device, Err: err}
	}
	h.manager = manager

	remote, err := manager.GetService(ctx, o.service)
	if err != nil {
		h.release()
		return nil, &ConnectError{Stage: StageService, Target: o.service, Err: err}
	}
	h.remote = remote

	client, err := remote.NewClient(o.iface)
	if err != nil {
		h.release()
		return nil, &ConnectError{Stage: StageClient, Target: o.iface, Err: err}
	}
	h.client = client

	logger.Debug("channel open",
		"device", o.device,
		"service", o.service,
		"revision", reg.Revision().String(),
	)
	return h, nil
}

func (h *Handle) Registry() *registry.Registry { return h.reg }

// Close releases the client, the remote and the manager, in that order.
// Close is idempotent and safe on partially opened handles.
func (h *Handle) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	return h.release()
}

func (h *Handle) release() error {
	var errs []error
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
		h.client = nil
	}
	if h.remote != nil {
		if err := h.remote.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release remote: %w", err))
		}
		h.remote = nil
	}
	if h.manager != nil {
		if err := h.manager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close manager: %w", err))
		}
		h.manager = nil
	}
	return errors.Join(errs...)
}

// Call issues one synchronous transaction. It never returns a bare error:
// every failure is carried by the outcome.
func (h *Handle) Call(ctx context.Context, id registry.OperationID, args ...wire.Value) Outcome {
	out := Outcome{
		CallID: uuid.NewString(),
		Op:     id,
		Args:   args,
		At:     time.Now().UTC(),
	}
	start := time.Now()
	h.call(ctx, id, args, &out)
	out.Duration = time.Since(start)
	out.setError()
	h.report(out)
	return out
}

// CallByName resolves name in the active table and calls it.
func (h *Handle) CallByName(ctx context.Context, name string, args ...wire.Value) Outcome {
	p, err := h.reg.ByName(name)
	if err != nil {
		out := Outcome{CallID: uuid.NewString(), Name: name, Args: args, At: time.Now().UTC(), Err: err}
		out.setError()
		h.report(out)
		return out
	}
	return h.Call(ctx, p.ID, args...)
}

func (h *Handle) call(ctx context.Context, id registry.OperationID, args []wire.Value, out *Outcome) {
	p, err := h.reg.Lookup(id)
	if err != nil {
		out.Name = id.String()
		out.Err = err
		return
	}
	out.Name = p.Name

	if h.closed || h.client == nil {
		out.Status = wire.StatusDeadObject
		out.Err = &TransportError{Op: p.Name, Status: out.Status, Err: ErrClosed}
		return
	}

	payload, err := p.Encode(args...)
	if err != nil {
		out.Err = err
		return
	}

	reply, err := h.transact(ctx, p.Code, payload)
	if err != nil {
		status := transportStatus(err)
		if errors.Is(err, ErrTransportTimeout) {
			status = wire.StatusTimedOut
		}
		out.Status = status
		out.Err = &TransportError{Op: p.Name, Status: status, Err: err}
		return
	}

	out.Outcome = wire.Decode(p.Reply, reply)
	switch {
	case out.Status != wire.StatusOK:
		out.Err = &TransportError{Op: p.Name, Status: out.Status}
	case out.HasRetval && out.Retval != 0:
		out.Err = &ServiceRejectedError{Op: p.Name, Retval: out.Retval}
	}
}

type transactResult struct {
	reply []byte
	err   error
}

// transact runs one transaction bounded by the call timeout. A transaction
// that outlives the timeout is abandoned; the driver serializes it with the
// next one.
func (h *Handle) transact(ctx context.Context, code uint32, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.timeout)
	defer cancel()

	done := make(chan transactResult, 1)
	go func() {
		reply, err := h.client.Transact(ctx, code, payload)
		done <- transactResult{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTransportTimeout, h.opts.timeout)
		}
		return res.reply, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTransportTimeout, h.opts.timeout)
		}
		return nil, &TransportError{Op: "transact", Status: wire.StatusUnknownError, Err: ctx.Err()}
	}
}

func (h *Handle) report(out Outcome) {
	logger := h.logger.With("call_id", out.CallID, "operation", out.Name)
	if out.Err != nil {
		attrs := []any{"status", out.Status, "error", out.Err}
		if out.HasRetval {
			attrs = append(attrs, "retval", out.Retval)
		}
		logger.Warn("pq call failed", attrs...)
	} else {
		logger.Debug("pq call", "args", out.Args, "duration", out.Duration)
	}
	if h.opts.observer != nil {
		h.opts.observer(out)
	}
}
