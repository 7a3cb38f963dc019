// Package wiretest drives a chat link from a plain socket so tests can
// speak the protocol without a reactor on their side.
package wiretest

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/chathack/internal/protocol/bytebuf"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
)

const Timeout = 3 * time.Second

type Conn struct {
	t   *testing.T
	nc  net.Conn
	buf *bytebuf.Buffer
	rd  reader.Reader
}

// Dial connects to addr and closes the socket when the test ends.
func Dial(t *testing.T, addr string) *Conn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, Timeout)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = nc.Close() })
	return Wrap(t, nc)
}

func Wrap(t *testing.T, nc net.Conn) *Conn {
	return &Conn{t: t, nc: nc, buf: bytebuf.New(8192), rd: reader.NewChat()}
}

func (c *Conn) Raw() net.Conn { return c.nc }

func (c *Conn) Send(frames ...frame.Frame) {
	c.t.Helper()
	var wire []byte
	for _, f := range frames {
		wire = f.AppendTo(wire)
	}
	if _, err := c.nc.Write(wire); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// Next returns the next frame, failing the test on timeout or a bad frame.
func (c *Conn) Next() frame.Frame {
	c.t.Helper()
	f, err := c.next()
	if err != nil {
		c.t.Fatalf("next frame: %v", err)
	}
	return f
}

// Expect reads until a frame of type T arrives, skipping others.
func Expect[T frame.Frame](c *Conn) T {
	c.t.Helper()
	for {
		f := c.Next()
		if out, ok := f.(T); ok {
			return out
		}
	}
}

// WaitClosed fails unless the peer closes the connection in time.
func (c *Conn) WaitClosed() {
	c.t.Helper()
	for {
		_, err := c.next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			c.t.Fatalf("waiting for close: %v", err)
		}
	}
}

func (c *Conn) next() (frame.Frame, error) {
	_ = c.nc.SetReadDeadline(time.Now().Add(Timeout))
	for {
		switch c.rd.Process(c.buf) {
		case reader.Done:
			f := c.rd.Get()
			c.rd.Reset()
			return f, nil
		case reader.Error:
			err := c.rd.Err()
			c.rd.Reset()
			return nil, err
		}
		n, err := c.nc.Read(c.buf.Tail())
		c.buf.Commit(n)
		if err != nil && n == 0 {
			return nil, err
		}
	}
}
