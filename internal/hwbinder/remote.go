package hwbinder

import (
	"context"
	"fmt"
)

// Remote is a strong reference on a service handle.
type Remote struct {
	conn     *Conn
	handle   uint32
	name     string
	released bool
}

func (r *Remote) Handle() uint32 { return r.handle }
func (r *Remote) Name() string   { return r.name }

// NewClient binds the remote to the interface descriptor written at the
// head of every request.
func (r *Remote) NewClient(iface string) (*Client, error) {
	if r.released {
		return nil, ErrReleased
	}
	if iface == "" {
		return nil, fmt.Errorf("hwbinder: empty interface descriptor for %s", r.name)
	}
	return &Client{remote: r, iface: iface}, nil
}

// Release drops the strong and weak references. Release is idempotent.
func (r *Remote) Release() error {
	if r.released {
		return nil
	}
	r.released = true
	cmds := append(handleCommand(bcRelease, r.handle), handleCommand(bcDecRefs, r.handle)...)
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	if r.conn.closed {
		return nil
	}
	return r.conn.writeLocked(cmds)
}

// Client issues transactions on one interface of a remote.
type Client struct {
	remote *Remote
	iface  string
	closed bool
}

func (c *Client) Interface() string { return c.iface }

// Transact sends payload as method code and returns the raw reply parcel,
// starting with the status word.
func (c *Client) Transact(ctx context.Context, code uint32, payload []byte) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.remote.released {
		return nil, ErrReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := newParcel(c.iface)
	p.data.Raw(payload)
	defer p.release()

	r, err := c.remote.conn.transact(c.remote.handle, code, p)
	if err != nil {
		return nil, err
	}
	return r.data, nil
}

// Close detaches the client. The remote stays referenced.
func (c *Client) Close() error {
	c.closed = true
	return nil
}
