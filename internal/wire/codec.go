package wire

import "fmt"

// ReplySpec declares the fields that follow the status word of a reply.
// A zero ReplySpec decodes the status word only.
type ReplySpec struct {
	Retval bool
	Value  Type
}

// Outcome is the decoded result of one transaction.
//
// Status is the transport-level word; Retval is the service's own return
// code and is only meaningful when HasRetval is set. Value is non-nil only
// when both are zero and the spec declares a value field.
type Outcome struct {
	Status    int32  `json:"status"`
	Retval    int32  `json:"retval"`
	HasRetval bool   `json:"has_retval"`
	Value     *Value `json:"value,omitempty"`
}

// OK reports whether the call reached the service and the service accepted it.
func (o Outcome) OK() bool {
	return o.Status == StatusOK && (!o.HasRetval || o.Retval == 0)
}

// Encode serializes values in the order declared by types.
func Encode(types []Type, values []Value) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArity, len(types), len(values))
	}
	size := 0
	for _, t := range types {
		size += t.Size()
	}
	w := NewWriter(size)
	for i, t := range types {
		if values[i].Type != t {
			return nil, fmt.Errorf("%w: argument %d is %s, want %s", ErrTypeMismatch, i, values[i].Type, t)
		}
		w.Value(values[i])
	}
	return w.Bytes(), nil
}

// Decode reads a reply according to spec. Decoding stops at the first
// nonzero status or retval; a short buffer yields StatusNotEnoughData.
func Decode(spec ReplySpec, reply []byte) Outcome {
	r := NewReader(reply)

	status, err := r.Int32()
	if err != nil {
		return Outcome{Status: StatusNotEnoughData}
	}
	if status != StatusOK {
		return Outcome{Status: status}
	}

	var out Outcome
	if spec.Retval {
		rv, err := r.Int32()
		if err != nil {
			return Outcome{Status: StatusNotEnoughData}
		}
		out.HasRetval = true
		out.Retval = rv
		if rv != 0 {
			return out
		}
	}

	if spec.Value != TypeNone {
		v, err := r.Value(spec.Value)
		if err != nil {
			return Outcome{Status: StatusNotEnoughData}
		}
		out.Value = &v
	}
	return out
}

// EncodeReply builds the reply parcel a service would send for spec. It is
// the inverse of Decode and backs fake transports.
func EncodeReply(spec ReplySpec, status, retval int32, value *Value) []byte {
	w := NewWriter(16)
	w.Int32(status)
	if status != StatusOK {
		return w.Bytes()
	}
	if spec.Retval {
		w.Int32(retval)
		if retval != 0 {
			return w.Bytes()
		}
	}
	if spec.Value != TypeNone && value != nil {
		w.Value(value.As(spec.Value))
	}
	return w.Bytes()
}
