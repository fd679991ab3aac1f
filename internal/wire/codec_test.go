package wire

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLanes(t *testing.T) {
	tests := []struct {
		name   string
		types  []Type
		values []Value
		want   []byte
	}{
		{
			name:   "int32 then step",
			types:  []Type{TypeInt32, TypeInt32},
			values: []Value{Int32(150), Int32(5)},
			want:   []byte{150, 0, 0, 0, 5, 0, 0, 0},
		},
		{
			name:   "bool uses a 4-byte lane",
			types:  []Type{TypeBool, TypeInt32},
			values: []Value{Bool(true), Int32(5)},
			want:   []byte{1, 0, 0, 0, 5, 0, 0, 0},
		},
		{
			name:   "negative int32",
			types:  []Type{TypeInt32},
			values: []Value{Int32(-1)},
			want:   []byte{0xff, 0xff, 0xff, 0xff},
		},
		{
			name:   "no arguments",
			types:  nil,
			values: nil,
			want:   []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.types, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDouble(t *testing.T) {
	got, err := Encode([]Type{TypeDouble}, []Value{Double(0.3127)})
	require.NoError(t, err)
	require.Len(t, got, 8)
	assert.Equal(t, 0.3127, math.Float64frombits(binary.LittleEndian.Uint64(got)))
}

func TestEncodeRejectsMismatch(t *testing.T) {
	_, err := Encode([]Type{TypeInt32, TypeInt32}, []Value{Int32(1)})
	assert.ErrorIs(t, err, ErrArity)

	_, err = Encode([]Type{TypeInt32}, []Value{Bool(true)})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecodeStopsAtTransportStatus(t *testing.T) {
	spec := ReplySpec{Retval: true, Value: TypeInt32}
	// Trailing bytes after a failed status must not be interpreted.
	status := StatusFailedTransaction
	reply := []byte{}
	reply = binary.LittleEndian.AppendUint32(reply, uint32(status))
	reply = binary.LittleEndian.AppendUint32(reply, 0)
	reply = binary.LittleEndian.AppendUint32(reply, 42)

	out := Decode(spec, reply)
	assert.Equal(t, StatusFailedTransaction, out.Status)
	assert.False(t, out.HasRetval)
	assert.Nil(t, out.Value)
	assert.False(t, out.OK())
}

func TestDecodeStopsAtRetval(t *testing.T) {
	spec := ReplySpec{Retval: true, Value: TypeInt32}
	out := Decode(spec, EncodeReply(spec, StatusOK, 3, nil))

	assert.Equal(t, StatusOK, out.Status)
	assert.True(t, out.HasRetval)
	assert.Equal(t, int32(3), out.Retval)
	assert.Nil(t, out.Value)
	assert.False(t, out.OK())
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		spec  ReplySpec
		value *Value
	}{
		{name: "status only", spec: ReplySpec{}},
		{name: "status and retval", spec: ReplySpec{Retval: true}},
		{name: "int32 value", spec: ReplySpec{Retval: true, Value: TypeInt32}, value: ptr(Int32(700))},
		{name: "bool value", spec: ReplySpec{Retval: true, Value: TypeBool}, value: ptr(Bool(true))},
		{name: "double value", spec: ReplySpec{Retval: true, Value: TypeDouble}, value: ptr(Double(-2.5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decode(tt.spec, EncodeReply(tt.spec, StatusOK, 0, tt.value))
			assert.True(t, out.OK())
			assert.Equal(t, tt.spec.Retval, out.HasRetval)
			if tt.value == nil {
				assert.Nil(t, out.Value)
				return
			}
			require.NotNil(t, out.Value)
			assert.Equal(t, *tt.value, *out.Value)
		})
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	tests := []struct {
		name  string
		spec  ReplySpec
		reply []byte
	}{
		{name: "empty", spec: ReplySpec{}, reply: nil},
		{name: "partial status", spec: ReplySpec{}, reply: []byte{0, 0}},
		{name: "missing retval", spec: ReplySpec{Retval: true}, reply: []byte{0, 0, 0, 0}},
		{name: "missing value", spec: ReplySpec{Retval: true, Value: TypeDouble}, reply: []byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decode(tt.spec, tt.reply)
			assert.Equal(t, StatusNotEnoughData, out.Status)
			assert.Nil(t, out.Value)
		})
	}
}

func TestStatusOnlyReplyIgnoresTrailingBytes(t *testing.T) {
	out := Decode(ReplySpec{}, []byte{0, 0, 0, 0, 9, 9, 9, 9})
	assert.True(t, out.OK())
	assert.False(t, out.HasRetval)
	assert.Nil(t, out.Value)
}

func ptr(v Value) *Value { return &v }
