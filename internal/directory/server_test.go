package directory

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/chathack/internal/auth"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/reactor"
	"github.com/danmuck/chathack/internal/testutil/testlog"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	loop := reactor.NewLoop(t.Name())
	t.Cleanup(loop.Shutdown)
	s := NewServer(loop, auth.Static{"alice": "secret", "bob": "hunter2"})
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr, err := s.Addr()
	if err != nil {
		t.Fatalf("addr: %v", err)
	}
	return s, addr.String()
}

// readAnswers collects n answers keyed by correlation id.
func readAnswers(t *testing.T, nc net.Conn, n int) map[uint64]frame.Opcode {
	t.Helper()
	_ = nc.SetReadDeadline(time.Now().Add(3 * time.Second))
	out := make(map[uint64]frame.Opcode, n)
	buf := make([]byte, 9)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(nc, buf); err != nil {
			t.Fatalf("read answer %d: %v", i, err)
		}
		out[binary.BigEndian.Uint64(buf[1:])] = frame.Opcode(buf[0])
	}
	return out
}

func TestServerAnswersEveryRequest(t *testing.T) {
	testlog.Start(t)
	_, addr := startServer(t)
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()

	requests := []frame.Frame{
		frame.AuthCheck{ID: 1, Login: "alice", Password: "secret"},
		frame.AuthCheck{ID: 2, Login: "alice", Password: "wrong"},
		frame.LoginExists{ID: 3, Login: "bob"},
		frame.LoginExists{ID: 4, Login: "carol"},
		frame.AuthCheck{ID: 1 << 40, Login: "carol", Password: "secret"},
	}
	var wire []byte
	for _, f := range requests {
		wire = f.AppendTo(wire)
	}
	// Split the batch so requests straddle reads.
	for len(wire) > 0 {
		n := min(7, len(wire))
		if _, err := nc.Write(wire[:n]); err != nil {
			t.Fatalf("write: %v", err)
		}
		wire = wire[n:]
	}

	got := readAnswers(t, nc, len(requests))
	want := map[uint64]frame.Opcode{
		1:       frame.OpDirectoryPositive,
		2:       frame.OpDirectoryNegative,
		3:       frame.OpDirectoryPositive,
		4:       frame.OpDirectoryNegative,
		1 << 40: frame.OpDirectoryNegative,
	}
	for id, op := range want {
		if got[id] != op {
			t.Fatalf("id %d answered 0x%02x, want 0x%02x", id, byte(got[id]), byte(op))
		}
	}
}

func TestServerIgnoresGarbageWithoutAnswering(t *testing.T) {
	testlog.Start(t)
	_, addr := startServer(t)
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()

	if _, err := nc.Write([]byte{0x7F}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The failed parse drops whatever else was buffered with it.
	time.Sleep(100 * time.Millisecond)
	if _, err := nc.Write(frame.Encode(frame.LoginExists{ID: 9, Login: "alice"})); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readAnswers(t, nc, 1)
	if got[9] != frame.OpDirectoryPositive {
		t.Fatalf("expected positive answer for id 9 after garbage, got %v", got)
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	loop := reactor.NewLoop(t.Name())
	t.Cleanup(loop.Shutdown)
	s := NewServer(loop, auth.Static{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
