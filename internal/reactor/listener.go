package reactor

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// Listener accepts sockets on its own goroutine and attaches them on the
// loop.
type Listener struct {
	loop   *Loop
	ln     net.Listener
	opts   Options
	accept func(*Conn)
	closed bool
}

// Listen binds addr. accept runs on the loop for every new connection,
// before it starts reading. Safe from any goroutine except the loop; use
// ListenLocked from the loop.
func (l *Loop) Listen(addr string, opts Options, accept func(*Conn)) (*Listener, error) {
	var (
		out *Listener
		err error
	)
	if derr := l.Do(func() { out, err = l.ListenLocked(addr, opts, accept) }); derr != nil {
		return nil, derr
	}
	return out, err
}

// ListenLocked is Listen for callers already on the loop.
func (l *Loop) ListenLocked(addr string, opts Options, accept func(*Conn)) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	out := &Listener{loop: l, ln: ln, opts: opts, accept: accept}
	l.listeners[out] = struct{}{}
	go out.run()
	log.Info().Str("loop", l.name).Str("addr", ln.Addr().String()).Msg("listening")
	return out, nil
}

func (ln *Listener) Addr() netip.AddrPort {
	return addrPort(ln.ln.Addr())
}

func (ln *Listener) run() {
	for {
		nc, err := ln.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn().Str("loop", ln.loop.name).Err(err).Msg("accept failed")
			}
			return
		}
		if derr := ln.loop.Dispatch(func() { ln.admit(nc) }); derr != nil {
			_ = nc.Close()
			return
		}
	}
}

func (ln *Listener) admit(nc net.Conn) {
	if ln.closed {
		_ = nc.Close()
		return
	}
	c := ln.loop.attach(nc, ln.opts)
	log.Debug().Str("conn", c.String()).Msg("accepted")
	if ln.accept != nil {
		ln.accept(c)
	}
	c.Start()
}

// Close stops accepting. Loop goroutine only.
func (ln *Listener) Close() {
	if ln.closed {
		return
	}
	ln.closed = true
	_ = ln.ln.Close()
	delete(ln.loop.listeners, ln)
}

// DialAsync connects on a background goroutine and reports on the loop.
// setup runs before the connection starts reading. On failure setup gets a
// nil Conn and the error.
func (l *Loop) DialAsync(ctx context.Context, addr string, opts Options, setup func(*Conn, error)) {
	go func() {
		var d net.Dialer
		nc, err := d.DialContext(ctx, "tcp", addr)
		derr := l.Dispatch(func() {
			if err != nil {
				setup(nil, err)
				return
			}
			c := l.attach(nc, opts)
			setup(c, nil)
			c.Start()
		})
		if derr != nil && nc != nil {
			_ = nc.Close()
		}
	}()
}

// Dial connects and attaches synchronously. setup runs on the loop before
// the connection starts reading. Not callable from the loop.
func (l *Loop) Dial(ctx context.Context, addr string, opts Options, setup func(*Conn)) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	var c *Conn
	if derr := l.Do(func() {
		c = l.attach(nc, opts)
		if setup != nil {
			setup(c)
		}
		c.Start()
	}); derr != nil {
		_ = nc.Close()
		return nil, derr
	}
	return c, nil
}
