package pq

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

var (
	// ErrUnknownOperation is returned for ids outside the active table.
	ErrUnknownOperation = registry.ErrUnknownOperation
	// ErrTransportTimeout marks a transaction abandoned at the call timeout.
	ErrTransportTimeout = errors.New("pq: transport timeout")
	// ErrClosed is returned by calls on a closed handle.
	ErrClosed = errors.New("pq: handle closed")
)

// Stage names the step of Open that failed.
type Stage string

const (
	StageManager Stage = "manager"
	StageService Stage = "service"
	StageClient  Stage = "client"
)

// ConnectError reports a failed Open. Everything acquired before the failing
// stage has already been released.
type ConnectError struct {
	Stage  Stage
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("pq: connect %s %s: %v", e.Stage, e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError is a nonzero transport status: the call did not reach the
// service, or its reply could not be read.
type TransportError struct {
	Op     string
	Status int32
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pq: %s: transport %s (%d): %v", e.Op, wire.StatusText(e.Status), e.Status, e.Err)
	}
	return fmt.Sprintf("pq: %s: transport %s (%d)", e.Op, wire.StatusText(e.Status), e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) TransportStatus() int32 { return e.Status }

// ServiceRejectedError is a delivered call whose retval was nonzero.
type ServiceRejectedError struct {
	Op     string
	Retval int32
}

func (e *ServiceRejectedError) Error() string {
	return fmt.Sprintf("pq: %s: rejected by service (retval %d)", e.Op, e.Retval)
}

// transportStatus extracts a status word from a transport error.
func transportStatus(err error) int32 {
	var s interface{ TransportStatus() int32 }
	if errors.As(err, &s) {
		return s.TransportStatus()
	}
	return wire.StatusUnknownError
}
