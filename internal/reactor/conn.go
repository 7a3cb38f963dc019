package reactor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/observability"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
	"github.com/danmuck/chathack/internal/protocol/session"
)

// Options configure the context behind every connection a listener accepts
// or a dial opens.
type Options struct {
	Session session.Config
	Reader  reader.Builder
}

// ChatOptions are the options for broker links and private channels.
func ChatOptions() Options {
	return Options{Session: session.DefaultConfig(), Reader: reader.NewChat}
}

// DirectoryOptions are the options for either end of the broker to
// directory link; build picks which frames that end reads.
func DirectoryOptions(build reader.Builder) Options {
	return Options{Session: session.DirectoryConfig(), Reader: build}
}

// Conn is one socket driven by the loop. All methods except Enqueue and
// WaitDrained must be called on the loop goroutine.
type Conn struct {
	loop *Loop
	nc   net.Conn
	ctx  *session.Context
	link string

	reading bool
	parsing bool
	writing bool
	closed  bool
	onClose []func(*Conn)

	readReq  chan []byte
	writeReq chan []byte
	quit     chan struct{}
}

func (l *Loop) attach(nc net.Conn, opts Options) *Conn {
	cfg := opts.Session.WithDefaults()
	c := &Conn{
		loop:     l,
		nc:       nc,
		ctx:      session.NewContext(cfg, nc.RemoteAddr().String(), opts.Reader, nil),
		link:     cfg.Link,
		readReq:  make(chan []byte, 1),
		writeReq: make(chan []byte, 1),
		quit:     make(chan struct{}),
	}
	l.conns[c] = struct{}{}
	observability.ConnectionOpened(c.link)
	go c.readPump()
	go c.writePump()
	return c
}

// Context exposes the protocol state.
func (c *Conn) Context() *session.Context { return c.ctx }
func (c *Conn) Loop() *Loop               { return c.loop }
func (c *Conn) Closed() bool              { return c.closed }

func (c *Conn) String() string { return c.ctx.Name() }

// RemoteAddr returns the peer address, unmapped.
func (c *Conn) RemoteAddr() netip.AddrPort {
	return addrPort(c.nc.RemoteAddr())
}

func addrPort(a net.Addr) netip.AddrPort {
	if tcp, ok := a.(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	ap, _ := netip.ParseAddrPort(a.String())
	return ap
}

// Handle installs the frame handler. Call before Start.
func (c *Conn) Handle(h session.Handler) {
	c.ctx.SetHandler(h)
}

// OnClose registers a hook run once when the connection is torn down.
func (c *Conn) OnClose(f func(*Conn)) {
	c.onClose = append(c.onClose, f)
}

// Start begins reading.
func (c *Conn) Start() {
	c.update()
}

// Send queues f and flushes. Loop goroutine only.
func (c *Conn) Send(f frame.Frame) {
	if err := c.ctx.Enqueue(f); err != nil {
		log.Debug().Str("conn", c.String()).Err(err).Msg("send on closed connection")
		return
	}
	c.update()
}

// Enqueue queues f from any goroutine and schedules a flush on the loop.
func (c *Conn) Enqueue(f frame.Frame) error {
	if err := c.ctx.Outbox().Push(f); err != nil {
		return err
	}
	return c.loop.Dispatch(c.update)
}

// WaitDrained blocks until every queued frame has moved to the socket
// buffer. Any goroutine except the loop.
func (c *Conn) WaitDrained(ctx context.Context) error {
	return c.ctx.Outbox().WaitDrained(ctx)
}

// update starts whichever operations the context now wants and closes the
// connection once it wants none.
func (c *Conn) update() {
	if c.closed {
		return
	}
	if !c.writing {
		c.ctx.FillOut()
		if p := c.ctx.Pending(); len(p) > 0 {
			c.writing = true
			c.writeReq <- p
		}
	}
	if !c.reading && !c.parsing && c.ctx.WantRead() {
		c.reading = true
		c.readReq <- c.ctx.ReadSpace()
	}
	// A read still parked in the pump is released by closing the socket.
	if !c.parsing && !c.writing && c.ctx.Idle() {
		log.Debug().Str("conn", c.String()).Msg("connection idle, closing")
		c.Close()
	}
}

func (c *Conn) onRead(n int, err error) {
	c.reading = false
	if c.closed {
		return
	}
	// parsing blocks a handler that sends on this connection from starting
	// a read into the buffer being parsed.
	if n > 0 {
		c.parsing = true
		c.ctx.Received(n)
		c.parsing = false
	}
	if c.closed {
		return
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.ctx.PeerClosed()
		} else {
			log.Debug().Str("conn", c.String()).Err(err).Msg("read failed")
			c.Close()
			return
		}
	}
	c.update()
}

func (c *Conn) onWritten(n int, err error) {
	c.writing = false
	if c.closed {
		return
	}
	if err != nil {
		log.Debug().Str("conn", c.String()).Err(err).Msg("write failed")
		c.Close()
		return
	}
	c.ctx.Flushed(n)
	c.update()
}

// Drain stops reading and closes the connection once everything queued has
// been written. Loop goroutine only.
func (c *Conn) Drain() {
	if c.closed {
		return
	}
	c.ctx.Drain()
	c.update()
}

// Close tears the connection down: socket, queue, pumps, and hooks.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.ctx.Close()
	close(c.quit)
	_ = c.nc.Close()
	delete(c.loop.conns, c)
	observability.ConnectionClosed(c.link)
	for _, f := range c.onClose {
		f(c)
	}
	c.onClose = nil
}

func (c *Conn) readPump() {
	for {
		select {
		case p := <-c.readReq:
			n, err := c.nc.Read(p)
			if c.loop.Dispatch(func() { c.onRead(n, err) }) != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case p := <-c.writeReq:
			n, err := c.nc.Write(p)
			if c.loop.Dispatch(func() { c.onWritten(n, err) }) != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}
