package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Type is the declared wire type of one argument or reply field.
type Type uint8

const (
	TypeNone Type = iota
	TypeInt32
	TypeBool
	TypeDouble
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeInt32:
		return "int32"
	case TypeBool:
		return "bool"
	case TypeDouble:
		return "double"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Size is the number of parcel bytes a value of this type occupies.
// Booleans use a full 4-byte lane.
func (t Type) Size() int {
	switch t {
	case TypeInt32, TypeBool:
		return 4
	case TypeDouble:
		return 8
	default:
		return 0
	}
}

// Value is one typed argument or decoded reply field.
type Value struct {
	Type Type
	I32  int32
	B    bool
	F64  float64
}

func Int32(v int32) Value { return Value{Type: TypeInt32, I32: v} }
func Bool(v bool) Value { return Value{Type: TypeBool, B: v} }
func Double(v float64) Value { return Value{Type: TypeDouble, F64: v} }
func IntValue(v int64) Value { return Int32(clampInt32(v)) }
func BoolValue(v int64) Value { return Bool(v != 0) }

// Int returns the numeric view of v: booleans are 0/1 and doubles are
// truncated toward zero.
func (v Value) Int() int64 {
	switch v.Type {
	case TypeBool:
		if v.B {
			return 1
		}
		return 0
	case TypeDouble:
		if math.IsNaN(v.F64) {
			return 0
		}
		return int64(v.F64)
	default:
		return int64(v.I32)
	}
}

// As converts v to the lane of type t.
func (v Value) As(t Type) Value {
	if v.Type == t {
		return v
	}
	switch t {
	case TypeInt32:
		return Int32(clampInt32(v.Int()))
	case TypeBool:
		if v.Type == TypeDouble {
			return Bool(v.F64 != 0)
		}
		return Bool(v.Int() != 0)
	case TypeDouble:
		return Double(float64(v.Int()))
	default:
		return Value{}
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeInt32:
		return strconv.FormatInt(int64(v.I32), 10)
	case TypeBool:
		return strconv.FormatBool(v.B)
	case TypeDouble:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	default:
		return "<none>"
	}
}

// MarshalJSON renders the value as a plain JSON number or boolean.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case TypeInt32:
		return json.Marshal(v.I32)
	case TypeBool:
		return json.Marshal(v.B)
	case TypeDouble:
		return json.Marshal(v.F64)
	default:
		return []byte("null"), nil
	}
}

// Parse reads s as a value of type t. Booleans accept true/false and
// integers (nonzero is true).
func Parse(t Type, s string) (Value, error) {
	switch t {
	case TypeInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse int32 %q: %w", s, err)
		}
		return Int32(int32(n)), nil
	case TypeBool:
		if b, err := strconv.ParseBool(s); err == nil {
			return Bool(b), nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return Bool(n != 0), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse double %q: %w", s, err)
		}
		return Double(f), nil
	default:
		return Value{}, fmt.Errorf("parse %q: unsupported type %s", s, t)
	}
}

func clampInt32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
