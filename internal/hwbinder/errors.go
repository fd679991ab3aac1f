package hwbinder

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/pqd/internal/wire"
)

var (
	ErrClosed          = errors.New("hwbinder: connection closed")
	ErrReleased        = errors.New("hwbinder: remote object released")
	ErrServiceNotFound = errors.New("hwbinder: service not registered")
	ErrVersion         = errors.New("hwbinder: unsupported protocol version")
)

// StatusError carries a binder status word from the driver or the remote.
type StatusError struct {
	Op     string
	Status int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hwbinder: %s: %s (%d)", e.Op, wire.StatusText(e.Status), e.Status)
}

// TransportStatus exposes the status word to callers that classify
// failures without importing this package.
func (e *StatusError) TransportStatus() int32 { return e.Status }
