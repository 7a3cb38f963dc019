package session

import (
	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/observability"
	"github.com/danmuck/chathack/internal/protocol/bytebuf"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
)

// InvalidFrameNotice is queued back to a peer whose bytes failed to parse.
const InvalidFrameNotice = "Invalid frame received, it has been ignored."

// Handler receives every frame decoded on a connection.
type Handler func(f frame.Frame)

// Context is one connection's buffers, queue, parser, and flags. Every
// method except those on Outbox must run on the reactor loop.
type Context struct {
	cfg      Config
	name     string
	in       *bytebuf.Buffer
	out      *bytebuf.Buffer
	outbox   *Outbox
	reader   reader.Reader
	handler  Handler
	peerEOF  bool
	draining bool
	closed   bool
}

// NewContext builds a context whose inbound bytes are parsed by the reader
// build returns. The handler may be set later with SetHandler.
func NewContext(cfg Config, name string, build reader.Builder, handler Handler) *Context {
	cfg = cfg.WithDefaults()
	return &Context{
		cfg:     cfg,
		name:    name,
		in:      bytebuf.New(cfg.BufferSize),
		out:     bytebuf.New(cfg.BufferSize),
		outbox:  NewOutbox(cfg.Ordering),
		reader:  build(),
		handler: handler,
	}
}

func (c *Context) Name() string         { return c.name }
func (c *Context) Outbox() *Outbox      { return c.outbox }
func (c *Context) SetHandler(h Handler) { c.handler = h }

// Enqueue queues f for sending.
func (c *Context) Enqueue(f frame.Frame) error {
	return c.outbox.Push(f)
}

// ReadSpace is where the next socket read should land; follow with Received.
func (c *Context) ReadSpace() []byte {
	return c.in.Tail()
}

// Received commits n freshly read bytes and decodes every complete frame
// they finish. Reads are not frame aligned, so one call may dispatch zero,
// one, or many frames.
func (c *Context) Received(n int) {
	c.in.Commit(n)
	c.ProcessIn()
}

// ProcessIn runs the reader over the inbound buffer until it needs more
// bytes. A parse error queues an Info notice back to the peer, resets the
// reader, and drops the buffered bytes; the connection stays up.
func (c *Context) ProcessIn() {
	for !c.closed {
		switch c.reader.Process(c.in) {
		case reader.Refill:
			return
		case reader.Done:
			f := c.reader.Get()
			c.reader.Reset()
			observability.RecordFrameIn(c.cfg.Link, byte(f.Opcode()))
			if c.handler != nil {
				c.handler(f)
			}
		case reader.Error:
			err := c.reader.Err()
			c.reader.Reset()
			c.in.Reset()
			observability.RecordFrameRejected(c.cfg.Link)
			log.Warn().Str("conn", c.name).Str("link", c.cfg.Link).Err(err).Msg("invalid frame ignored")
			if c.cfg.Link == "chat" {
				_ = c.Enqueue(frame.Info{Code: frame.InfoInvalidFrame, Message: InvalidFrameNotice})
			}
			return
		}
	}
}

// FillOut moves queued frames into the outbound buffer while the next one
// fits whole.
func (c *Context) FillOut() {
	c.out.Compact()
	for {
		f, ok := c.outbox.Peek()
		if !ok || f.Size() > c.out.Free() {
			return
		}
		c.outbox.Pop()
		n := len(f.AppendTo(c.out.Tail()[:0]))
		c.out.Commit(n)
		observability.RecordFrameOut(c.cfg.Link, byte(f.Opcode()))
	}
}

// Pending returns the encoded bytes not yet written to the socket.
func (c *Context) Pending() []byte {
	return c.out.Bytes()
}

// Flushed marks n pending bytes as written and refills from the queue.
func (c *Context) Flushed(n int) {
	c.out.Next(n)
	c.FillOut()
}

// WantRead holds while the peer may still send and there is room for it.
func (c *Context) WantRead() bool {
	return !c.closed && !c.peerEOF && !c.draining && c.in.Free() > 0
}

// WantWrite holds while encoded or queued output remains.
func (c *Context) WantWrite() bool {
	return !c.closed && (c.out.Len() > 0 || c.outbox.Len() > 0)
}

// Idle reports that the connection wants neither direction and should be
// closed.
func (c *Context) Idle() bool {
	return !c.WantRead() && !c.WantWrite()
}

// PeerClosed records EOF from the peer; queued output still drains.
func (c *Context) PeerClosed() {
	c.peerEOF = true
}

// Drain stops reading; the connection closes once queued output is written.
func (c *Context) Drain() {
	c.draining = true
}

func (c *Context) Closed() bool { return c.closed }

// Close stops both directions and wakes any transfer waiting on the queue.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.outbox.Close()
}
