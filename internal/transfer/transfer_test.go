package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/session"
	"github.com/danmuck/chathack/internal/testutil/testlog"
)

type memFile struct {
	bytes.Buffer
	writes int
	closed bool
}

func (m *memFile) Write(p []byte) (int, error) {
	m.writes++
	return m.Buffer.Write(p)
}

func (m *memFile) Close() error {
	m.closed = true
	return nil
}

type memSink struct {
	files map[string]*memFile
	err   error
}

func (s *memSink) Create(name string) (io.WriteCloser, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	if s.files == nil {
		s.files = make(map[string]*memFile)
	}
	f := &memFile{}
	s.files[name] = f
	return f, name, nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func feed(r *Receiver, id uint32, data []byte, chunk int) {
	for len(data) > 0 {
		n := min(chunk, len(data))
		r.Chunk(frame.FileChunk{FileID: id, Data: data[:n]})
		data = data[n:]
	}
}

func TestReassemblyThreeBuffersPlusOne(t *testing.T) {
	testlog.Start(t)
	const capacity = 4096
	sink := &memSink{}
	var results []Result
	r := NewReceiver(sink, capacity, func(res Result) { results = append(results, res) })

	data := randomBytes(3*capacity + 1)
	r.Init(frame.FileInit{Name: "big.bin", Length: uint32(len(data)), FileID: 9})
	require.Equal(t, 1, r.Active())
	feed(r, 9, data, 1000)

	out := sink.files["big.bin"]
	require.NotNil(t, out)
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, 4, out.writes, "three full buffers plus the final byte")
	assert.True(t, out.closed)
	assert.Equal(t, 0, r.Active())
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestReassemblyChunkLargerThanBuffer(t *testing.T) {
	testlog.Start(t)
	sink := &memSink{}
	r := NewReceiver(sink, 100, nil)
	data := randomBytes(1000)
	r.Init(frame.FileInit{Name: "x", Length: 1000, FileID: 1})
	feed(r, 1, data, frame.MaxChunkLen)
	assert.Equal(t, data, sink.files["x"].Bytes())
	assert.Equal(t, 0, r.Active())
}

func TestReceiverIgnoresUnknownAndDuplicate(t *testing.T) {
	testlog.Start(t)
	sink := &memSink{}
	r := NewReceiver(sink, 16, nil)
	r.Chunk(frame.FileChunk{FileID: 5, Data: []byte("stray")})
	assert.Equal(t, 0, r.Active())

	r.Init(frame.FileInit{Name: "a", Length: 10, FileID: 1})
	first := sink.files["a"]
	r.Init(frame.FileInit{Name: "a", Length: 99, FileID: 1})
	assert.Same(t, first, sink.files["a"], "duplicate init must not reopen the file")
	feed(r, 1, []byte("0123456789"), 3)
	assert.Equal(t, "0123456789", first.String())
}

func TestReceiverOverrunAborts(t *testing.T) {
	testlog.Start(t)
	sink := &memSink{}
	var got Result
	r := NewReceiver(sink, 16, func(res Result) { got = res })
	r.Init(frame.FileInit{Name: "a", Length: 4, FileID: 1})
	r.Chunk(frame.FileChunk{FileID: 1, Data: []byte("toolong")})
	assert.ErrorIs(t, got.Err, ErrOverrun)
	assert.True(t, sink.files["a"].closed)
	assert.Equal(t, 0, r.Active())
}

func TestReceiverEmptyFileCompletesOnInit(t *testing.T) {
	testlog.Start(t)
	sink := &memSink{}
	var got []Result
	r := NewReceiver(sink, 16, func(res Result) { got = append(got, res) })
	r.Init(frame.FileInit{Name: "empty", Length: 0, FileID: 3})
	require.Len(t, got, 1)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, 0, r.Active())
}

func TestReceiverCreateFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("disk full")
	var got Result
	r := NewReceiver(&memSink{err: boom}, 16, func(res Result) { got = res })
	r.Init(frame.FileInit{Name: "a", Length: 4, FileID: 1})
	assert.ErrorIs(t, got.Err, boom)
	r.Chunk(frame.FileChunk{FileID: 1, Data: []byte("data")})
	assert.Equal(t, 0, r.Active())
}

func TestReceiverAbort(t *testing.T) {
	testlog.Start(t)
	sink := &memSink{}
	var got []Result
	r := NewReceiver(sink, 16, func(res Result) { got = append(got, res) })
	r.Init(frame.FileInit{Name: "a", Length: 40, FileID: 1})
	r.Init(frame.FileInit{Name: "b", Length: 40, FileID: 2})
	r.Abort()
	require.Len(t, got, 2)
	for _, res := range got {
		assert.ErrorIs(t, res.Err, ErrInterrupted)
	}
	assert.Equal(t, 0, r.Active())
}

// drainingOutlet pops its outbox on a background goroutine, standing in for
// the reactor's write path.
type drainingOutlet struct {
	box *session.Outbox
	mu  sync.Mutex
	got []frame.Frame
	max int
}

func newDrainingOutlet(ctx context.Context) *drainingOutlet {
	o := &drainingOutlet{box: session.NewOutbox(session.OrderChatFirst)}
	go func() {
		for ctx.Err() == nil {
			o.mu.Lock()
			f, ok := o.box.Pop()
			if ok {
				o.got = append(o.got, f)
			}
			o.mu.Unlock()
			if !ok {
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return o
}

func (o *drainingOutlet) Enqueue(f frame.Frame) error {
	if err := o.box.Push(f); err != nil {
		return err
	}
	o.mu.Lock()
	o.max = max(o.max, o.box.Len())
	o.mu.Unlock()
	return nil
}

func (o *drainingOutlet) WaitDrained(ctx context.Context) error {
	return o.box.WaitDrained(ctx)
}

func TestSendStreamsWithBoundedQueue(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := newDrainingOutlet(ctx)
	data := randomBytes(20*frame.MaxChunkLen + 17)
	cfg := SenderConfig{Window: 4}
	err := Send(ctx, out, cfg, Offer{FileID: 2, Name: "f.bin", Size: uint32(len(data)), Data: bytes.NewReader(data)})
	require.NoError(t, err)
	require.NoError(t, out.WaitDrained(ctx))

	out.mu.Lock()
	defer out.mu.Unlock()
	require.NotEmpty(t, out.got)
	init, ok := out.got[0].(frame.FileInit)
	require.True(t, ok)
	assert.Equal(t, uint32(len(data)), init.Length)

	sink := &memSink{}
	r := NewReceiver(sink, 8192, nil)
	r.Init(init)
	for _, f := range out.got[1:] {
		r.Chunk(f.(frame.FileChunk))
	}
	assert.Equal(t, data, sink.files["f.bin"].Bytes())
	assert.LessOrEqual(t, out.max, cfg.Window+1, "queue grew past the window")
}

func TestSendShortFile(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := newDrainingOutlet(ctx)
	err := Send(ctx, out, SenderConfig{}, Offer{FileID: 1, Name: "s", Size: 10, Data: bytes.NewReader([]byte("abc"))})
	assert.ErrorIs(t, err, ErrShortFile)
}

// A sender blocked on a full window gives up when the connection closes.
func TestSendAbortsWhenOutboxCloses(t *testing.T) {
	testlog.Start(t)
	box := session.NewOutbox(session.OrderChatFirst)
	out := &stuckOutlet{box: box}
	done := make(chan error, 1)
	data := randomBytes(8 * frame.MaxChunkLen)
	go func() {
		done <- Send(context.Background(), out, SenderConfig{Window: 2}, Offer{FileID: 1, Name: "s", Size: uint32(len(data)), Data: bytes.NewReader(data)})
	}()
	require.Eventually(t, func() bool { return box.Len() >= 3 }, time.Second, time.Millisecond)
	box.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, session.ErrOutboxClosed)
	case <-time.After(2 * time.Second):
		t.Fatalf("sender did not observe close")
	}
}

func TestSendCancelled(t *testing.T) {
	testlog.Start(t)
	box := session.NewOutbox(session.OrderChatFirst)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	data := randomBytes(8 * frame.MaxChunkLen)
	go func() {
		done <- Send(ctx, &stuckOutlet{box: box}, SenderConfig{Window: 1}, Offer{FileID: 1, Name: "s", Size: uint32(len(data)), Data: bytes.NewReader(data)})
	}()
	require.Eventually(t, func() bool { return box.Len() >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// stuckOutlet never drains, so WaitDrained blocks until close or cancel.
type stuckOutlet struct {
	box *session.Outbox
}

func (o *stuckOutlet) Enqueue(f frame.Frame) error           { return o.box.Push(f) }
func (o *stuckOutlet) WaitDrained(ctx context.Context) error { return o.box.WaitDrained(ctx) }
