package privacy

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	systemdDest    = "org.freedesktop.systemd1"
	systemdPath    = dbus.ObjectPath("/org/freedesktop/systemd1")
	systemdManager = "org.freedesktop.systemd1.Manager"
)

// Systemd manages units through the systemd D-Bus API on the system bus.
// The bus is connected on first use.
type Systemd struct {
	mu   sync.Mutex
	conn *dbus.Conn
	dial func() (*dbus.Conn, error)
}

func NewSystemd() *Systemd {
	return &Systemd{dial: func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }}
}

func (s *Systemd) Restart(ctx context.Context, unit string) error {
	return s.call(ctx, "RestartUnit", unit)
}

func (s *Systemd) Stop(ctx context.Context, unit string) error {
	return s.call(ctx, "StopUnit", unit)
}

func (s *Systemd) call(ctx context.Context, method, unit string) error {
	conn, err := s.bus()
	if err != nil {
		return err
	}
	var job dbus.ObjectPath
	obj := conn.Object(systemdDest, systemdPath)
	if err := obj.CallWithContext(ctx, systemdManager+"."+method, 0, unit, "replace").Store(&job); err != nil {
		return fmt.Errorf("systemd %s %s: %w", method, unit, err)
	}
	return nil
}

func (s *Systemd) bus() (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.conn.Connected() {
		return s.conn, nil
	}
	conn, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Close drops the bus connection if one was made.
func (s *Systemd) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
