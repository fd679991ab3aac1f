package hwbinder

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/pqd/internal/wire"
)

func TestIocSize(t *testing.T) {
	tests := []struct {
		cmd  uint32
		want int
	}{
		{brNoop, 0},
		{brError, 4},
		{brReply, sizeTransactionData},
		{brIncRefs, 16},
		{bcTransactionSG, sizeTransactionDataSG},
		{bcFreeBuffer, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, iocSize(tt.cmd), "cmd %#x", tt.cmd)
	}
}

func TestTransactionDataRoundTrip(t *testing.T) {
	in := transactionData{
		Target:      3,
		Code:        27,
		Flags:       tfAcceptFDs,
		SenderPID:   -1,
		DataSize:    40,
		OffsetsSize: 8,
		Buffer:      0x7f0000001000,
		Offsets:     0x7f0000001028,
	}
	b := encodeTransactionData(in)
	require.Len(t, b, sizeTransactionData)
	assert.Equal(t, in, decodeTransactionData(b))
}

func TestPlainParcelUsesTransaction(t *testing.T) {
	p := newParcel("vendor.mediatek.hardware.pq@2.0::IPictureQuality")
	p.data.Int32(1)
	defer p.release()

	cmd := p.command(7, 3, tfAcceptFDs)
	require.Len(t, cmd, 4+sizeTransactionData)
	assert.Equal(t, bcTransaction, binary.LittleEndian.Uint32(cmd))

	td := decodeTransactionData(cmd[4:])
	assert.Equal(t, uint64(7), td.Target)
	assert.Equal(t, uint32(3), td.Code)
	assert.Equal(t, uint32(tfAcceptFDs), td.Flags)
	// 48 descriptor bytes + NUL, padded to 52, then one int32.
	assert.Equal(t, uint64(56), td.DataSize)
	assert.Zero(t, td.OffsetsSize)
}

func TestHIDLStringObjects(t *testing.T) {
	p := newParcel(ManagerInterface)
	p.writeHIDLString("vendor.mediatek.hardware.pq@2.0::IPictureQuality")
	p.writeHIDLString("default")
	defer p.release()

	require.Len(t, p.offsets, 4)
	data := p.data.Bytes()
	le := binary.LittleEndian

	header := func(i int) (typ, flags uint32, length, parent uint64) {
		off := p.offsets[i]
		obj := data[off : off+sizeBufferObject]
		return le.Uint32(obj[0:]), le.Uint32(obj[4:]), le.Uint64(obj[16:]), le.Uint64(obj[24:])
	}

	typ, flags, length, _ := header(0)
	assert.Equal(t, uint32(typePtr), typ)
	assert.Zero(t, flags)
	assert.Equal(t, uint64(sizeHIDLString), length)

	typ, flags, length, parent := header(1)
	assert.Equal(t, uint32(typePtr), typ)
	assert.Equal(t, uint32(bufferHasParent), flags)
	assert.Equal(t, uint64(len("vendor.mediatek.hardware.pq@2.0::IPictureQuality")+1), length)
	assert.Equal(t, uint64(0), parent)

	_, _, length, parent = header(3)
	assert.Equal(t, uint64(len("default")+1), length)
	assert.Equal(t, uint64(2), parent)

	// 16 + 56 (49 rounded) + 16 + 8.
	assert.Equal(t, uint64(96), p.buffersSize)

	cmd := p.command(managerHandle, managerGet, tfAcceptFDs)
	require.Len(t, cmd, 4+sizeTransactionDataSG)
	assert.Equal(t, bcTransactionSG, le.Uint32(cmd))
	assert.Equal(t, uint64(96), le.Uint64(cmd[4+sizeTransactionData:]))
	assert.Equal(t, uint64(4*8), decodeTransactionData(cmd[4:]).OffsetsSize)
}

func TestReplyObject(t *testing.T) {
	w := wire.NewWriter(32)
	w.Int32(0)
	w.Uint32(typeHandle)
	w.Uint32(0)
	w.Uint64(5)
	w.Uint64(0)
	r := &reply{data: w.Bytes(), offsets: []uint64{4}}

	obj, ok := r.object(0)
	require.True(t, ok)
	assert.Equal(t, uint32(typeHandle), obj.Type)
	assert.Equal(t, uint64(5), obj.Handle)

	_, ok = r.object(1)
	assert.False(t, ok)

	short := &reply{data: w.Bytes()[:12], offsets: []uint64{4}}
	_, ok = short.object(0)
	assert.False(t, ok)
}

func TestDrainStatusReturns(t *testing.T) {
	c := &Conn{}
	le := binary.LittleEndian

	pending := le.AppendUint32(nil, brNoop)
	pending = le.AppendUint32(pending, brTransactionComplete)
	_, done, err := c.drain(pending)
	assert.False(t, done)
	assert.NoError(t, err)

	tests := []struct {
		name   string
		buf    []byte
		status int32
	}{
		{"dead reply", le.AppendUint32(nil, brDeadReply), wire.StatusDeadObject},
		{"failed reply", le.AppendUint32(nil, brFailedReply), wire.StatusFailedTransaction},
		{"driver error", le.AppendUint32(le.AppendUint32(nil, brError), uint32(0xffffffea)), wire.StatusBadValue},
		{"truncated", le.AppendUint32(nil, brReply), wire.StatusNotEnoughData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, done, err := c.drain(tt.buf)
			assert.True(t, done)
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.TransportStatus())
		})
	}
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "hwbinder"))
	assert.Error(t, err)
}

func TestGetServiceRejectsMalformedName(t *testing.T) {
	c := &Conn{}
	_, err := c.GetService(context.Background(), "vendor.mediatek.hardware.pq@2.0::IPictureQuality")
	assert.Error(t, err)
}

func TestReleasedRemote(t *testing.T) {
	r := &Remote{conn: &Conn{closed: true}, handle: 4, name: "svc/default"}
	require.NoError(t, r.Release())
	require.NoError(t, r.Release())

	_, err := r.NewClient("iface")
	assert.ErrorIs(t, err, ErrReleased)
}

func TestClientOnClosedConn(t *testing.T) {
	r := &Remote{conn: &Conn{closed: true}, handle: 4}
	cl, err := r.NewClient("iface")
	require.NoError(t, err)
	_, err = cl.Transact(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrClosed)
}
