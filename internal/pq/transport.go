package pq

import (
	"context"

	"github.com/mattjoyce/pqd/internal/hwbinder"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/mattjoyce/pqd/internal/pq Driver,ServiceManager,RemoteObject,Client

// Driver opens the service manager of a binder device.
type Driver interface {
	Open(ctx context.Context, device string) (ServiceManager, error)
}

// ServiceManager resolves fully-qualified service names.
type ServiceManager interface {
	GetService(ctx context.Context, fqName string) (RemoteObject, error)
	Close() error
}

// RemoteObject is a referenced service instance.
type RemoteObject interface {
	NewClient(iface string) (Client, error)
	Release() error
}

// Client issues transactions against one interface. The reply starts with
// the transport status word.
type Client interface {
	Transact(ctx context.Context, code uint32, payload []byte) ([]byte, error)
	Close() error
}

// HWBinder returns the kernel binder driver.
func HWBinder() Driver { return hwDriver{} }

type hwDriver struct{}

func (hwDriver) Open(_ context.Context, device string) (ServiceManager, error) {
	conn, err := hwbinder.Open(device)
	if err != nil {
		return nil, err
	}
	return hwManager{conn: conn}, nil
}

type hwManager struct {
	conn *hwbinder.Conn
}

func (m hwManager) GetService(ctx context.Context, fqName string) (RemoteObject, error) {
	remote, err := m.conn.GetService(ctx, fqName)
	if err != nil {
		return nil, err
	}
	return hwRemote{remote}, nil
}

func (m hwManager) Close() error { return m.conn.Close() }

type hwRemote struct {
	*hwbinder.Remote
}

func (r hwRemote) NewClient(iface string) (Client, error) {
	c, err := r.Remote.NewClient(iface)
	if err != nil {
		return nil, err
	}
	return c, nil
}
