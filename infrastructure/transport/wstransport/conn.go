// Package wstransport adapts Anemochory's framed transport onto
// WebSocket streams (an alternate binding to the TCP transport in
// infrastructure/transport), for deployments that need to blend in with
// ordinary HTTP traffic; it speaks plain ws:// and does not set up TLS. It
// wraps github.com/coder/websocket.Conn as a net.Conn so the same
// ReadFrame/WriteFrame wire format and the same accept loop serve both
// bindings.
package wstransport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

var _ net.Conn = (*Conn)(nil)

// Conn adapts one *websocket.Conn to net.Conn, presenting each binary
// WebSocket message as a contiguous Read, and batching each Write into one
// binary message.
type Conn struct {
	ws    *websocket.Conn
	ctx   context.Context
	cur   io.Reader
	wmu   sync.Mutex
	rdl   atomic.Value // time.Time
	wdl   atomic.Value // time.Time
	laddr net.Addr
	raddr net.Addr
}

// NewConn wraps ws, using ctx as the base context for reads and writes
// that have no explicit deadline set.
func NewConn(ctx context.Context, ws *websocket.Conn, local, remote net.Addr) *Conn {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Conn{ws: ws, ctx: ctx, laddr: local, raddr: remote}
	c.rdl.Store(time.Time{})
	c.wdl.Store(time.Time{})
	return c
}

func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if len(p) == 0 {
		return 0, nil
	}
	ctx, cancel := c.writeCtx()
	defer cancel()

	w, err := c.ws.Writer(ctx, websocket.MessageBinary)
	if err != nil {
		return 0, mapErr(err)
	}
	off := 0
	for off < len(p) {
		n, werr := w.Write(p[off:])
		off += n
		if werr != nil {
			_ = w.Close()
			return off, mapErr(werr)
		}
	}
	if cerr := w.Close(); cerr != nil {
		return off, mapErr(cerr)
	}
	return off, nil
}

func (c *Conn) Read(p []byte) (int, error) {
	for {
		if c.cur != nil {
			n, err := c.cur.Read(p)
			if err == io.EOF {
				c.cur = nil
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, mapErr(err)
		}
		ctx, cancel := c.readCtx()
		mt, r, err := c.ws.Reader(ctx)
		cancel()
		if err != nil {
			return 0, mapErr(err)
		}
		if mt != websocket.MessageBinary {
			_, _ = io.Copy(io.Discard, r)
			continue
		}
		c.cur = r
	}
}

func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "") }

func (c *Conn) LocalAddr() net.Addr {
	if c.laddr != nil {
		return c.laddr
	}
	return &net.TCPAddr{}
}

func (c *Conn) RemoteAddr() net.Addr {
	if c.raddr != nil {
		return c.raddr
	}
	return &net.TCPAddr{}
}

func (c *Conn) SetDeadline(t time.Time) error      { c.rdl.Store(t); c.wdl.Store(t); return nil }
func (c *Conn) SetReadDeadline(t time.Time) error  { c.rdl.Store(t); return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { c.wdl.Store(t); return nil }

func (c *Conn) readCtx() (context.Context, context.CancelFunc) {
	if t, _ := c.rdl.Load().(time.Time); !t.IsZero() {
		return context.WithDeadline(c.ctx, t)
	}
	return c.ctx, func() {}
}

func (c *Conn) writeCtx() (context.Context, context.CancelFunc) {
	if t, _ := c.wdl.Load().(time.Time); !t.IsZero() {
		return context.WithDeadline(c.ctx, t)
	}
	return c.ctx, func() {}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return io.EOF
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return err
}
