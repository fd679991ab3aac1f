package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrTruncated    = errors.New("wire: truncated parcel")
	ErrArity        = errors.New("wire: argument count mismatch")
	ErrTypeMismatch = errors.New("wire: argument type mismatch")
)

// Writer appends fields to a parcel buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Int32(v int32) { w.Uint32(uint32(v)) }

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Bool writes a one-byte boolean padded to a 4-byte lane.
func (w *Writer) Bool(v bool) {
	var b byte
	if v {
		b = 1
	}
	w.buf = append(w.buf, b, 0, 0, 0)
}

func (w *Writer) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// String8 writes s as a NUL-terminated byte string padded to 4 bytes.
func (w *Writer) String8(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	w.Align(4)
}

// Raw appends b unmodified.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Align pads the buffer with zeros up to a multiple of n.
func (w *Writer) Align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

// Value writes v in its declared lane.
func (w *Writer) Value(v Value) {
	switch v.Type {
	case TypeInt32:
		w.Int32(v.I32)
	case TypeBool:
		w.Bool(v.B)
	case TypeDouble:
		w.Float64(v.F64)
	}
}

func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Bytes() []byte { return w.buf }

// Reader consumes fields from a parcel buffer.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Offset() int    { return r.off }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) next(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.next(4)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// Value reads one field of type t.
func (r *Reader) Value(t Type) (Value, error) {
	switch t {
	case TypeInt32:
		v, err := r.Int32()
		return Int32(v), err
	case TypeBool:
		v, err := r.Bool()
		return Bool(v), err
	case TypeDouble:
		v, err := r.Float64()
		return Double(v), err
	default:
		return Value{}, ErrTypeMismatch
	}
}
