package reactor

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/testutil/testlog"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(t.Name())
	t.Cleanup(l.Shutdown)
	return l
}

func recvFrame(t *testing.T, ch <-chan frame.Frame) frame.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func TestEchoOverLoopback(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	ln, err := l.Listen("127.0.0.1:0", ChatOptions(), func(c *Conn) {
		c.Handle(func(f frame.Frame) {
			if m, ok := f.(frame.PublicMessage); ok {
				c.Send(frame.PublicBroadcast{Sender: "echo", Message: m.Message})
			}
		})
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	got := make(chan frame.Frame, 16)
	c, err := l.Dial(context.Background(), ln.Addr().String(), ChatOptions(), func(c *Conn) {
		c.Handle(func(f frame.Frame) { got <- f })
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	long := strings.Repeat("x", frame.MaxStringLen)
	for _, msg := range []string{"hi", long, "bye"} {
		if err := c.Enqueue(frame.PublicMessage{Message: msg}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for _, msg := range []string{"hi", long, "bye"} {
		f := recvFrame(t, got)
		if b, ok := f.(frame.PublicBroadcast); !ok || b.Message != msg {
			t.Fatalf("echo got=%#v want message len %d", f, len(msg))
		}
	}
}

func TestRawGarbageGetsInfoNotice(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	ln, err := l.Listen("127.0.0.1:0", ChatOptions(), nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()
	if _, err := nc.Write([]byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	head := make([]byte, 2)
	if _, err := nc.Read(head); err != nil {
		t.Fatalf("read notice: %v", err)
	}
	if frame.Opcode(head[0]) != frame.OpInfo || frame.InfoCode(head[1]) != frame.InfoInvalidFrame {
		t.Fatalf("notice header=% x", head)
	}
}

func TestPeerCloseRunsHooksAndUntracks(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	closed := make(chan struct{})
	ln, err := l.Listen("127.0.0.1:0", ChatOptions(), func(c *Conn) {
		c.OnClose(func(*Conn) { close(closed) })
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = nc.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close hook not run after peer eof")
	}
	var n int
	_ = l.Do(func() { n = len(l.Conns()) })
	if n != 0 {
		t.Fatalf("live conns=%d after close", n)
	}
}

// Output queued before the peer half-closes still reaches it.
func TestPeerEOFDrainsOutput(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	ln, err := l.Listen("127.0.0.1:0", ChatOptions(), func(c *Conn) {
		c.Handle(func(f frame.Frame) {
			for i := 0; i < 5; i++ {
				c.Send(frame.Info{Code: frame.InfoNotice, Message: strings.Repeat("n", 900)})
			}
		})
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	raw, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	nc := raw.(*net.TCPConn)
	defer nc.Close()
	_, _ = nc.Write(frame.Encode(frame.PublicMessage{Message: "go"}))
	_ = nc.CloseWrite()

	want := 5 * frame.Info{Message: strings.Repeat("n", 900)}.Size()
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	total := 0
	buf := make([]byte, 4096)
	for total < want {
		n, err := nc.Read(buf)
		total += n
		if err != nil {
			break
		}
	}
	if total != want {
		t.Fatalf("received %d bytes want %d", total, want)
	}
}

func TestLoopStopped(t *testing.T) {
	testlog.Start(t)
	l := NewLoop(t.Name())
	l.Shutdown()
	if err := l.Dispatch(func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("dispatch after shutdown err=%v", err)
	}
	if err := l.Do(func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("do after shutdown err=%v", err)
	}
}

func TestAfterRunsOnLoop(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	fired := make(chan struct{})
	_ = l.Do(func() {
		l.After(GroupDirectoryRedial, 10*time.Millisecond, func() { close(fired) })
	})
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestCloseWakesDrainWaiter(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	ln, err := l.Listen("127.0.0.1:0", ChatOptions(), nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	c, err := l.Dial(context.Background(), ln.Addr().String(), ChatOptions(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = l.Do(func() {
		// frames queued but not flushed while a write is in flight
		c.writing = true
		_ = c.ctx.Enqueue(frame.PublicMessage{Message: "stuck"})
	})
	done := make(chan error, 1)
	go func() { done <- c.WaitDrained(context.Background()) }()
	_ = l.Do(c.Close)
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("wait returned nil after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter not woken by close")
	}
}

func TestDrainFlushesThenCloses(t *testing.T) {
	testlog.Start(t)
	l := newTestLoop(t)
	notice := frame.Info{Code: frame.InfoNotice, Message: "bye"}
	ln, err := l.Listen("127.0.0.1:0", ChatOptions(), func(c *Conn) {
		c.Send(notice)
		c.Drain()
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(nc)
	if err != nil {
		t.Fatalf("read until close: %v", err)
	}
	if string(got) != string(frame.Encode(notice)) {
		t.Fatalf("got % x", got)
	}
}
