// Package dbusapi exports the PQ procedures on D-Bus as io.FuriOS.PQ.
//
// Each single-argument setter becomes a method taking one int32, each
// argument-free getter a method returning one int32. Calls run on the event
// loop through the dispatcher so they are serialized with settings changes.
package dbusapi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

const (
	BusName   = "io.FuriOS.PQ"
	Interface = "io.FuriOS.PQ"
	Path      = dbus.ObjectPath("/io/FuriOS/PQ")

	errorPrefix = "io.FuriOS.PQ.Error."
)

// Error names returned to D-Bus callers.
const (
	ErrUnknownOperation = errorPrefix + "UnknownOperation"
	ErrTransport        = errorPrefix + "Transport"
	ErrTimeout          = errorPrefix + "Timeout"
	ErrRejected         = errorPrefix + "Rejected"
	ErrInvalidArgument  = errorPrefix + "InvalidArgument"
	ErrPersistence      = errorPrefix + "Persistence"
	ErrUnavailable      = errorPrefix + "Unavailable"
)

// Applier issues one procedure call.
type Applier interface {
	Apply(ctx context.Context, id registry.OperationID, args ...wire.Value) pq.Outcome
}

// Runner executes work on the event loop.
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Service holds the exported method table.
type Service struct {
	reg     *registry.Registry
	applier Applier
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a service over reg. timeout bounds how long a method call
// waits for the loop; zero means pq.DefaultTimeout plus a second.
func New(reg *registry.Registry, applier Applier, runner Runner, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = pq.DefaultTimeout + time.Second
	}
	return &Service{
		reg:     reg,
		applier: applier,
		runner:  runner,
		timeout: timeout,
		logger:  log.WithComponent("dbus"),
	}
}

// Exported reports whether p gets a D-Bus method.
func Exported(p *registry.Procedure) bool {
	args := p.UserArgs()
	if p.IsGetter() {
		return len(args) == 0
	}
	if len(args) != 1 {
		return false
	}
	t := args[0].Type
	return t == wire.TypeInt32 || t == wire.TypeBool
}

// Methods returns the method table keyed by D-Bus method name.
func (s *Service) Methods() map[string]any {
	m := map[string]any{
		"RegistryDigest": func() (string, *dbus.Error) { return s.reg.Digest(), nil },
		"Revision":       func() (string, *dbus.Error) { return s.reg.Revision().String(), nil },
	}
	for _, p := range s.reg.Procedures() {
		if !Exported(p) {
			continue
		}
		if p.IsGetter() {
			m[p.ExportName()] = s.getter(p)
		} else {
			m[p.ExportName()] = s.setter(p)
		}
	}
	return m
}

func (s *Service) setter(p *registry.Procedure) func(int32) *dbus.Error {
	return func(v int32) *dbus.Error {
		_, derr := s.invoke(p, wire.Int32(v))
		return derr
	}
}

func (s *Service) getter(p *registry.Procedure) func() (int32, *dbus.Error) {
	return func() (int32, *dbus.Error) {
		out, derr := s.invoke(p)
		if derr != nil {
			return 0, derr
		}
		if out.Value == nil {
			return 0, nil
		}
		return int32(out.Value.Int()), nil
	}
}

// invoke runs one call on the loop. A call still queued when the caller
// times out is dropped; one already running completes (and persists) even
// though the caller was answered Unavailable.
func (s *Service) invoke(p *registry.Procedure, args ...wire.Value) (pq.Outcome, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var out pq.Outcome
	err := s.runner.Do(ctx, func(loopCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = s.applier.Apply(loopCtx, p.ID, args...)
		return nil
	})
	if err != nil {
		// out may still be written by a late run; never read it here.
		s.logger.Warn("method call not run", "method", p.ExportName(), "error", err)
		return pq.Outcome{}, dbus.NewError(ErrUnavailable, []any{err.Error()})
	}
	if !out.OK() {
		return out, outcomeError(out)
	}
	return out, nil
}

func outcomeError(out pq.Outcome) *dbus.Error {
	name := ErrInvalidArgument
	switch out.Kind {
	case pq.KindUnknown:
		name = ErrUnknownOperation
	case pq.KindTransport:
		name = ErrTransport
	case pq.KindTimeout:
		name = ErrTimeout
	case pq.KindRejected:
		name = ErrRejected
	case pq.KindPersistence:
		name = ErrPersistence
	}
	return dbus.NewError(name, []any{fmt.Sprintf("%s: %s", out.Name, out.Error)})
}

// Introspection describes the exported interface.
func (s *Service) Introspection() *introspect.Node {
	var methods []introspect.Method
	for _, p := range s.reg.Procedures() {
		if !Exported(p) {
			continue
		}
		m := introspect.Method{Name: p.ExportName()}
		if p.IsGetter() {
			m.Args = []introspect.Arg{{Name: "value", Type: "i", Direction: "out"}}
		} else {
			m.Args = []introspect.Arg{{Name: p.UserArgs()[0].Name, Type: "i", Direction: "in"}}
		}
		methods = append(methods, m)
	}
	methods = append(methods,
		introspect.Method{Name: "RegistryDigest", Args: []introspect.Arg{{Name: "digest", Type: "s", Direction: "out"}}},
		introspect.Method{Name: "Revision", Args: []introspect.Arg{{Name: "revision", Type: "s", Direction: "out"}}},
	)
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

	return &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: methods},
		},
	}
}

// Connect opens the named bus: "session" or "system".
func Connect(bus string) (*dbus.Conn, error) {
	switch bus {
	case "", "session":
		return dbus.ConnectSessionBus()
	case "system":
		return dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", bus)
	}
}

// Export registers the object and its introspection data on conn and
// claims name.
func (s *Service) Export(conn *dbus.Conn, name string) error {
	if err := conn.ExportMethodTable(s.Methods(), Path, Interface); err != nil {
		return fmt.Errorf("export %s: %w", Interface, err)
	}
	node := s.Introspection()
	if err := conn.Export(introspect.NewIntrospectable(node), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("request name %s: already owned", name)
	}
	s.logger.Info("dbus service exported", "name", name, "path", Path, "methods", len(node.Interfaces[1].Methods))
	return nil
}
