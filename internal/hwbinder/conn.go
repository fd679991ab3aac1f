package hwbinder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mattjoyce/pqd/internal/wire"
)

// writeRead mirrors struct binder_write_read.
type writeRead struct {
	writeSize     uint64
	writeConsumed uint64
	writeBuffer   uint64
	readSize      uint64
	readConsumed  uint64
	readBuffer    uint64
}

// Conn is an open binder device with its receive mapping. A Conn serializes
// its transactions.
type Conn struct {
	mu      sync.Mutex
	device  string
	fd      int
	mapping []byte
	closed  bool
}

// Open opens device, verifies the protocol version and maps the receive
// area.
func Open(device string) (*Conn, error) {
	if device == "" {
		device = DefaultDevice
	}
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("hwbinder: open %s: %w", device, err)
	}

	var version int32
	if err := ioctl(fd, ioctlVersion, unsafe.Pointer(&version)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("hwbinder: version %s: %w", device, err)
	}
	if version != protocolVersion {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s reports %d, want %d", ErrVersion, device, version, protocolVersion)
	}

	var maxThreads uint32
	if err := ioctl(fd, ioctlSetMaxThreads, unsafe.Pointer(&maxThreads)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("hwbinder: set max threads %s: %w", device, err)
	}

	size := 1024*1024 - 2*unix.Getpagesize()
	mapping, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("hwbinder: mmap %s: %w", device, err)
	}

	return &Conn{device: device, fd: fd, mapping: mapping}, nil
}

func (c *Conn) Device() string { return c.device }

// Close unmaps the receive area and closes the device. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	if err := unix.Munmap(c.mapping); err != nil {
		errs = append(errs, fmt.Errorf("hwbinder: munmap: %w", err))
	}
	if err := unix.Close(c.fd); err != nil {
		errs = append(errs, fmt.Errorf("hwbinder: close: %w", err))
	}
	c.mapping = nil
	return errors.Join(errs...)
}

// GetService resolves fqName ("package@version::IName/instance") through
// the HIDL service manager and takes a strong reference on the result.
func (c *Conn) GetService(ctx context.Context, fqName string) (*Remote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iface, instance, ok := strings.Cut(fqName, "/")
	if !ok || iface == "" || instance == "" {
		return nil, fmt.Errorf("hwbinder: service name %q must be interface/instance", fqName)
	}

	p := newParcel(ManagerInterface)
	p.writeHIDLString(iface)
	p.writeHIDLString(instance)
	defer p.release()

	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.transactLocked(managerHandle, managerGet, p)
	if err != nil {
		return nil, err
	}

	status := wire.Decode(wire.ReplySpec{}, r.data).Status
	obj, found := r.object(0)
	if status != wire.StatusOK || !found || obj.Type != typeHandle {
		if ferr := c.writeLocked(freeBufferCommand(r.buffer)); ferr != nil {
			return nil, ferr
		}
		if status != wire.StatusOK {
			return nil, &StatusError{Op: "get " + fqName, Status: status}
		}
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, fqName)
	}

	handle := uint32(obj.Handle)
	cmds := append(handleCommand(bcIncRefs, handle), handleCommand(bcAcquire, handle)...)
	cmds = append(cmds, freeBufferCommand(r.buffer)...)
	if err := c.writeLocked(cmds); err != nil {
		return nil, err
	}
	return &Remote{conn: c, handle: handle, name: fqName}, nil
}

func (c *Conn) transact(handle, code uint32, p *parcel) (*reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.transactLocked(handle, code, p)
	if err != nil {
		return nil, err
	}
	if err := c.writeLocked(freeBufferCommand(r.buffer)); err != nil {
		return nil, err
	}
	return r, nil
}

// transactLocked sends one synchronous transaction and waits for its reply.
// The caller frees the reply buffer.
func (c *Conn) transactLocked(handle, code uint32, p *parcel) (*reply, error) {
	if c.closed {
		return nil, ErrClosed
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	out := p.command(handle, code, tfAcceptFDs)
	in := make([]byte, 256)
	var pin runtime.Pinner
	pin.Pin(&out[0])
	pin.Pin(&in[0])
	defer pin.Unpin()

	bwr := writeRead{
		writeSize:   uint64(len(out)),
		writeBuffer: addr(out),
		readSize:    uint64(len(in)),
		readBuffer:  addr(in),
	}
	for {
		bwr.readConsumed = 0
		if err := ioctl(c.fd, ioctlWriteRead, unsafe.Pointer(&bwr)); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, &StatusError{Op: "write_read", Status: errnoStatus(err)}
		}
		if bwr.writeConsumed >= bwr.writeSize {
			bwr.writeSize, bwr.writeConsumed, bwr.writeBuffer = 0, 0, 0
		}

		r, done, err := c.drain(in[:bwr.readConsumed])
		if done {
			return r, err
		}
	}
}

// drain walks the returns read from the driver. done is set once the
// transaction has a final answer.
func (c *Conn) drain(buf []byte) (*reply, bool, error) {
	le := binary.LittleEndian
	for off := 0; off+4 <= len(buf); {
		cmd := le.Uint32(buf[off:])
		off += 4
		size := iocSize(cmd)
		if off+size > len(buf) {
			return nil, true, &StatusError{Op: "read", Status: wire.StatusNotEnoughData}
		}
		payload := buf[off : off+size]
		off += size

		switch cmd {
		case brNoop, brOK, brSpawnLooper, brTransactionComplete,
			brIncRefs, brAcquire, brRelease, brDecRefs:
		case brReply:
			rep, rerr := c.copyReply(decodeTransactionData(payload))
			return rep, true, rerr
		case brDeadReply:
			return nil, true, &StatusError{Op: "reply", Status: wire.StatusDeadObject}
		case brFailedReply:
			return nil, true, &StatusError{Op: "reply", Status: wire.StatusFailedTransaction}
		case brError:
			return nil, true, &StatusError{Op: "driver", Status: int32(le.Uint32(payload))}
		case brTransaction:
			// Nothing is hosted here; hand the buffer straight back.
			t := decodeTransactionData(payload)
			if err := c.writeLocked(freeBufferCommand(t.Buffer)); err != nil {
				return nil, true, err
			}
		}
	}
	return nil, false, nil
}

// copyReply copies a reply out of the receive mapping. A reply flagged as a
// status code carries only a status_t, surfaced as an error after the
// buffer is released.
func (c *Conn) copyReply(t transactionData) (*reply, error) {
	data, err := c.mapped(t.Buffer, t.DataSize)
	if err != nil {
		return nil, err
	}
	raw, err := c.mapped(t.Offsets, t.OffsetsSize)
	if err != nil {
		return nil, err
	}
	r := &reply{data: append([]byte(nil), data...), flags: t.Flags, buffer: t.Buffer}
	for i := 0; i+8 <= len(raw); i += 8 {
		r.offsets = append(r.offsets, binary.LittleEndian.Uint64(raw[i:]))
	}
	if t.Flags&tfStatusCode != 0 {
		status := wire.Decode(wire.ReplySpec{}, r.data).Status
		if ferr := c.writeLocked(freeBufferCommand(r.buffer)); ferr != nil {
			return nil, ferr
		}
		return nil, &StatusError{Op: "reply", Status: status}
	}
	return r, nil
}

func (c *Conn) mapped(ptr, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	base := addr(c.mapping)
	if ptr < base || ptr+size > base+uint64(len(c.mapping)) {
		return nil, &StatusError{Op: "reply", Status: wire.StatusBadValue}
	}
	off := ptr - base
	return c.mapping[off : off+size], nil
}

// writeLocked sends commands without reading.
func (c *Conn) writeLocked(cmds []byte) error {
	if c.closed {
		return ErrClosed
	}
	var pin runtime.Pinner
	pin.Pin(&cmds[0])
	defer pin.Unpin()
	bwr := writeRead{writeSize: uint64(len(cmds)), writeBuffer: addr(cmds)}
	for bwr.writeConsumed < bwr.writeSize {
		if err := ioctl(c.fd, ioctlWriteRead, unsafe.Pointer(&bwr)); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return &StatusError{Op: "write", Status: errnoStatus(err)}
		}
	}
	return nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// errnoStatus converts a syscall error into a negative status_t.
func errnoStatus(err error) int32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return wire.StatusUnknownError
}
