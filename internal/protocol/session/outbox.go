package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/chathack/internal/protocol/frame"
)

var ErrOutboxClosed = errors.New("session: outbox closed")

// Ordering selects how queued frames are released.
type Ordering int

const (
	// OrderFIFO releases frames in enqueue order.
	OrderFIFO Ordering = iota
	// OrderChatFirst releases every non-chunk frame ahead of every file
	// chunk; within a class, by creation time.
	OrderChatFirst
)

type queued struct {
	f       frame.Frame
	created time.Time
	seq     uint64
}

// Outbox is a connection's outgoing frame queue. It is shared between the
// reactor, which pops while flushing, and transfer senders, which push and
// wait for the queue to drain.
type Outbox struct {
	mu      sync.Mutex
	order   Ordering
	items   []queued
	seq     uint64
	drained chan struct{}
	done    chan struct{}
	closed  bool
}

func NewOutbox(order Ordering) *Outbox {
	drained := make(chan struct{})
	close(drained)
	return &Outbox{
		order:   order,
		drained: drained,
		done:    make(chan struct{}),
	}
}

func (o *Outbox) less(a, b queued) bool {
	if o.order == OrderChatFirst {
		ac, bc := frame.IsChunk(a.f), frame.IsChunk(b.f)
		if ac != bc {
			return bc
		}
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
	}
	return a.seq < b.seq
}

// Push stamps f with its creation time and queues it.
func (o *Outbox) Push(f frame.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	o.seq++
	item := queued{f: f, created: time.Now(), seq: o.seq}
	at := sort.Search(len(o.items), func(i int) bool { return o.less(item, o.items[i]) })
	o.items = append(o.items, queued{})
	copy(o.items[at+1:], o.items[at:])
	o.items[at] = item
	if len(o.items) == 1 {
		o.drained = make(chan struct{})
	}
	return nil
}

// Peek returns the next frame without removing it.
func (o *Outbox) Peek() (frame.Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil, false
	}
	return o.items[0].f, true
}

// Pop removes the next frame and signals waiters once the queue is empty.
func (o *Outbox) Pop() (frame.Frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil, false
	}
	f := o.items[0].f
	o.items[0] = queued{}
	o.items = o.items[1:]
	if len(o.items) == 0 {
		o.items = nil
		close(o.drained)
	}
	return f, true
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// WaitDrained blocks until the queue is empty. It returns ErrOutboxClosed
// once the connection is gone and ctx.Err() on cancellation.
func (o *Outbox) WaitDrained(ctx context.Context) error {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return ErrOutboxClosed
		}
		if len(o.items) == 0 {
			o.mu.Unlock()
			return nil
		}
		drained := o.drained
		o.mu.Unlock()

		select {
		case <-drained:
		case <-o.done:
			return ErrOutboxClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed when the outbox is closed.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close drops queued frames and wakes every waiter.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.items = nil
	close(o.done)
}
