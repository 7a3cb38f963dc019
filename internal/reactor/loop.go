// Package reactor runs every connection of a process on one event loop.
//
// The loop goroutine owns all connection state and runs every semantic
// handler. Socket reads and writes happen on small per-connection pump
// goroutines that only start an operation when the loop asks for it, and
// post the result back with Dispatch. Other goroutines (file transfer
// senders, consoles, admin HTTP) reach loop state only through Dispatch or
// Do.
package reactor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Meander-Cloud/go-schedule/scheduler"
	"github.com/rs/zerolog/log"
)

var ErrLoopStopped = errors.New("reactor: loop stopped")

const eventChannelLength uint16 = 1024

// Group names timers scheduled on the loop so they can be cancelled.
type Group uint8

const (
	GroupInvalid         Group = 0
	GroupDirectoryRedial Group = 1
)

func (g Group) String() string {
	switch g {
	case GroupInvalid:
		return "Invalid Group"
	case GroupDirectoryRedial:
		return "Directory Redial"
	default:
		return "Unknown Group"
	}
}

type event struct {
	f  func()
	t0 time.Time
}

func (e *event) reset() {
	e.f = nil
	e.t0 = time.Time{}
}

// Loop is the single event loop of a process.
type Loop struct {
	name    string
	s       *scheduler.Scheduler[Group]
	eventpl sync.Pool
	eventch chan *event

	stopOnce sync.Once
	stopped  chan struct{}

	// loop goroutine only
	conns     map[*Conn]struct{}
	listeners map[*Listener]struct{}
}

// NewLoop starts a loop; Shutdown stops it.
func NewLoop(name string) *Loop {
	l := &Loop{
		name: name,
		s: scheduler.NewScheduler[Group](
			&scheduler.Options{
				EventChannelLength: eventChannelLength,
				LogPrefix:          name,
				LogDebug:           false,
			},
		),
		eventpl: sync.Pool{
			New: func() any { return &event{} },
		},
		eventch:   make(chan *event, eventChannelLength),
		stopped:   make(chan struct{}),
		conns:     make(map[*Conn]struct{}),
		listeners: make(map[*Listener]struct{}),
	}

	l.s.ProcessAsync(
		&scheduler.ScheduleAsyncEvent[Group]{
			AsyncVariant: scheduler.NewAsyncVariant(
				false,
				nil,
				l.eventch,
				func(_ *scheduler.Scheduler[Group], _ *scheduler.AsyncVariant[Group], recv interface{}) {
					l.handle(recv)
				},
				func(_ *scheduler.Scheduler[Group], v *scheduler.AsyncVariant[Group]) {
					log.Debug().Str("loop", name).Int("selects", int(v.SelectCount)).Msg("event channel released")
				},
			),
		},
	)
	l.s.RunAsync()
	return l
}

func (l *Loop) Name() string { return l.name }

// loop goroutine
func (l *Loop) handle(recv interface{}) {
	evt, ok := recv.(*event)
	if !ok {
		log.Error().Str("loop", l.name).Msgf("unexpected event %#v", recv)
		return
	}
	f, t0 := evt.f, evt.t0
	evt.reset()
	l.eventpl.Put(evt)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("loop", l.name).Msgf("handler recovered from panic: %+v", rec)
		}
	}()
	log.Trace().Str("loop", l.name).Dur("queue_wait", time.Since(t0)).Msg("event")
	f()
}

// Dispatch queues f to run on the loop. It blocks while the event channel
// is full, so the loop itself must never call it.
func (l *Loop) Dispatch(f func()) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	evt := l.eventpl.Get().(*event)
	evt.f = f
	evt.t0 = time.Now()
	select {
	case l.eventch <- evt:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Do runs f on the loop and waits for it to finish.
func (l *Loop) Do(f func()) error {
	done := make(chan struct{})
	if err := l.Dispatch(func() {
		defer close(done)
		f()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// After runs f on the loop once wait has elapsed, unless the group is
// cancelled first. Loop goroutine only.
func (l *Loop) After(group Group, wait time.Duration, f func()) {
	l.s.ProcessSync(
		&scheduler.ScheduleAsyncEvent[Group]{
			AsyncVariant: scheduler.TimerAsync(
				true,
				[]Group{group},
				wait,
				f,
				nil,
			),
		},
	)
}

// Cancel releases every pending timer of group. Loop goroutine only.
func (l *Loop) Cancel(group Group) {
	l.s.ProcessSync(
		&scheduler.ReleaseGroupEvent[Group]{
			Group: group,
		},
	)
}

// Conns returns the live connections. Loop goroutine only.
func (l *Loop) Conns() []*Conn {
	out := make([]*Conn, 0, len(l.conns))
	for c := range l.conns {
		out = append(out, c)
	}
	return out
}

// CloseAll closes every listener and connection. Loop goroutine only.
func (l *Loop) CloseAll() {
	for ln := range l.listeners {
		ln.Close()
	}
	for c := range l.conns {
		c.Close()
	}
}

// Shutdown closes everything the loop owns and stops it. Transfers waiting
// on a connection's queue observe the close and abort.
func (l *Loop) Shutdown() {
	l.stopOnce.Do(func() {
		if err := l.Do(l.CloseAll); err != nil {
			log.Warn().Str("loop", l.name).Err(err).Msg("close all on shutdown")
		}
		close(l.stopped)
		l.s.Shutdown()
		log.Info().Str("loop", l.name).Msg("loop stopped")
	})
}

// Stopped is closed once Shutdown has begun tearing the loop down.
func (l *Loop) Stopped() <-chan struct{} { return l.stopped }

func (l *Loop) String() string {
	return fmt.Sprintf("loop(%s)", l.name)
}
