package pq

import (
	"errors"
	"time"

	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

// Outcome is the result of one call on a handle.
type Outcome struct {
	wire.Outcome
	CallID   string               `json:"call_id"`
	Op       registry.OperationID `json:"op"`
	Name     string               `json:"name"`
	Args     []wire.Value         `json:"args"`
	At       time.Time            `json:"at"`
	Duration time.Duration        `json:"duration_ns"`
	Error    string               `json:"error,omitempty"`
	Kind     string               `json:"kind"`
	Err      error                `json:"-"`
}

// OK reports whether the call reached the service and was accepted.
func (o Outcome) OK() bool { return o.Err == nil }

// Kind values classify an outcome for logs and API clients.
const (
	KindOK              = "ok"
	KindUnknown         = "unknown_operation"
	KindTransport       = "transport"
	KindTimeout         = "timeout"
	KindRejected        = "rejected"
	KindInvalidArgument = "invalid_argument"
	KindPersistence     = "persistence"
)

func (o *Outcome) setError() {
	o.Kind = Classify(o.Err)
	if o.Err != nil {
		o.Error = o.Err.Error()
	}
}

// Classify names the failure class of err.
func Classify(err error) string {
	var te *TransportError
	var re *ServiceRejectedError
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrUnknownOperation):
		return KindUnknown
	case errors.Is(err, ErrTransportTimeout):
		return KindTimeout
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &re):
		return KindRejected
	default:
		return KindInvalidArgument
	}
}
