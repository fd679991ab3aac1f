package hwbinder

import (
	"encoding/binary"
	"runtime"
	"unsafe"

	"github.com/mattjoyce/pqd/internal/wire"
)

// parcel is an outgoing transaction body: flat data, the offsets of the
// objects embedded in it and the scatter-gather buffers those objects point
// at. Every buffer handed to the kernel is pinned until release.
type parcel struct {
	data        *wire.Writer
	offsets     []uint64
	buffersSize uint64
	pinner      runtime.Pinner
}

func newParcel(iface string) *parcel {
	p := &parcel{data: wire.NewWriter(128)}
	if iface != "" {
		p.data.String8(iface)
	}
	return p
}

func addr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func (p *parcel) pin(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	p.pinner.Pin(&b[0])
	return addr(b)
}

// writeBuffer embeds a binder_buffer_object referencing b and returns its
// object index.
func (p *parcel) writeBuffer(b []byte, parent int, parentOffset uint64) int {
	index := len(p.offsets)
	p.offsets = append(p.offsets, uint64(p.data.Len()))

	var flags uint32
	var parentIndex uint64
	if parent >= 0 {
		flags = bufferHasParent
		parentIndex = uint64(parent)
	}
	p.data.Uint32(typePtr)
	p.data.Uint32(flags)
	p.data.Uint64(p.pin(b))
	p.data.Uint64(uint64(len(b)))
	p.data.Uint64(parentIndex)
	p.data.Uint64(parentOffset)

	p.buffersSize += (uint64(len(b)) + 7) &^ 7
	return index
}

// writeHIDLString writes a hidl_string: the 16-byte header as a root buffer
// and its character data as a child buffer the kernel patches into the
// header's pointer field.
func (p *parcel) writeHIDLString(s string) {
	chars := append([]byte(s), 0)
	header := make([]byte, sizeHIDLString)
	binary.LittleEndian.PutUint64(header[0:8], p.pin(chars))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(s)))

	parent := p.writeBuffer(header, -1, 0)
	p.writeBuffer(chars, parent, 0)
}

func (p *parcel) scatterGather() bool { return len(p.offsets) > 0 }

// command renders the BC_TRANSACTION (or BC_TRANSACTION_SG) command for
// this parcel. The returned slice must be written before release.
func (p *parcel) command(handle, code, flags uint32) []byte {
	data := p.data.Bytes()
	offsets := wire.NewWriter(len(p.offsets) * 8)
	for _, off := range p.offsets {
		offsets.Uint64(off)
	}
	offsetBytes := offsets.Bytes()

	cmd := bcTransaction
	if p.scatterGather() {
		cmd = bcTransactionSG
	}
	w := wire.NewWriter(4 + sizeTransactionDataSG)
	w.Uint32(cmd)
	w.Raw(encodeTransactionData(transactionData{
		Target:      uint64(handle),
		Code:        code,
		Flags:       flags,
		DataSize:    uint64(len(data)),
		OffsetsSize: uint64(len(offsetBytes)),
		Buffer:      p.pin(data),
		Offsets:     p.pin(offsetBytes),
	}))
	if p.scatterGather() {
		w.Uint64(p.buffersSize)
	}
	return w.Bytes()
}

func (p *parcel) release() { p.pinner.Unpin() }

// transactionData mirrors struct binder_transaction_data.
type transactionData struct {
	Target      uint64 // handle for outgoing calls, binder pointer for incoming
	Cookie      uint64
	Code        uint32
	Flags       uint32
	SenderPID   int32
	SenderEUID  uint32
	DataSize    uint64
	OffsetsSize uint64
	Buffer      uint64
	Offsets     uint64
}

func encodeTransactionData(t transactionData) []byte {
	b := make([]byte, sizeTransactionData)
	le := binary.LittleEndian
	le.PutUint64(b[0:], t.Target)
	le.PutUint64(b[8:], t.Cookie)
	le.PutUint32(b[16:], t.Code)
	le.PutUint32(b[20:], t.Flags)
	le.PutUint32(b[24:], uint32(t.SenderPID))
	le.PutUint32(b[28:], t.SenderEUID)
	le.PutUint64(b[32:], t.DataSize)
	le.PutUint64(b[40:], t.OffsetsSize)
	le.PutUint64(b[48:], t.Buffer)
	le.PutUint64(b[56:], t.Offsets)
	return b
}

func decodeTransactionData(b []byte) transactionData {
	le := binary.LittleEndian
	return transactionData{
		Target:      le.Uint64(b[0:]),
		Cookie:      le.Uint64(b[8:]),
		Code:        le.Uint32(b[16:]),
		Flags:       le.Uint32(b[20:]),
		SenderPID:   int32(le.Uint32(b[24:])),
		SenderEUID:  le.Uint32(b[28:]),
		DataSize:    le.Uint64(b[32:]),
		OffsetsSize: le.Uint64(b[40:]),
		Buffer:      le.Uint64(b[48:]),
		Offsets:     le.Uint64(b[56:]),
	}
}

// flatObject mirrors struct flat_binder_object.
type flatObject struct {
	Type   uint32
	Flags  uint32
	Handle uint64 // handle or binder pointer, depending on Type
	Cookie uint64
}

func decodeFlatObject(b []byte) flatObject {
	le := binary.LittleEndian
	return flatObject{
		Type:   le.Uint32(b[0:]),
		Flags:  le.Uint32(b[4:]),
		Handle: le.Uint64(b[8:]),
		Cookie: le.Uint64(b[16:]),
	}
}

// reply is a received BR_REPLY copied out of the receive mapping. buffer
// stays owned by the driver until freed.
type reply struct {
	data    []byte
	offsets []uint64
	flags   uint32
	buffer  uint64
}

// object returns the flat binder object at the i-th offset.
func (r *reply) object(i int) (flatObject, bool) {
	if i >= len(r.offsets) {
		return flatObject{}, false
	}
	off := r.offsets[i]
	if off+sizeFlatObject > uint64(len(r.data)) {
		return flatObject{}, false
	}
	return decodeFlatObject(r.data[off : off+sizeFlatObject]), true
}

func handleCommand(cmd, handle uint32) []byte {
	w := wire.NewWriter(8)
	w.Uint32(cmd)
	w.Uint32(handle)
	return w.Bytes()
}

func freeBufferCommand(buffer uint64) []byte {
	w := wire.NewWriter(12)
	w.Uint32(bcFreeBuffer)
	w.Uint64(buffer)
	return w.Bytes()
}
