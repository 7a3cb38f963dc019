// Package broker implements the public server: it authenticates clients
// against the directory, relays public messages, and mediates private
// channel rendezvous between clients.
package broker

import (
	"context"
	"math/rand"
	"net/netip"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/observability"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
	"github.com/danmuck/chathack/internal/protocol/session"
	"github.com/danmuck/chathack/internal/reactor"
)

const (
	noticeNotAuthenticated = "You must be authenticated to do that."
	noticeAuthInProgress   = "Authentication already in progress."
	noticeAlreadyAuthed    = "Already authenticated."
	noticeUnexpected       = "Unexpected frame, it has been ignored."
	noticeDirectoryDown    = "Authentication service unavailable, try again later."
	noticeTakenOver        = "Signed in from another connection."
)

type peerState uint8

const (
	stateConnected peerState = iota
	statePending
	stateAuthenticated
)

// peer is the broker's view of one client connection.
type peer struct {
	conn  *reactor.Conn
	state peerState
	login string
	guest bool
	id    uint64
}

// Broker owns its loop; every field below the loop is loop-owned.
type Broker struct {
	cfg     Config
	loop    *reactor.Loop
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	rng       *rand.Rand
	ln        *reactor.Listener
	dir       *reactor.Conn
	dialing   bool
	attempt   int
	nextID    uint64
	peers     map[*reactor.Conn]*peer
	pending   map[uint64]*peer
	reserved  map[string]int
	authed    map[string]*peer
	accepting bool
	stopped   bool
}

func New(cfg Config) *Broker {
	cfg.Session = cfg.Session.WithDefaults()
	cfg.Session.Ordering = session.OrderChatFirst
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		cfg:       cfg,
		loop:      reactor.NewLoop("broker"),
		ctx:       ctx,
		cancel:    cancel,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		peers:     make(map[*reactor.Conn]*peer),
		pending:   make(map[uint64]*peer),
		reserved:  make(map[string]int),
		authed:    make(map[string]*peer),
		accepting: true,
	}
}

// Start binds the client listener and begins dialing the directory. The
// directory link is retried in the background; only a bind failure is
// fatal.
func (b *Broker) Start() error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	var err error
	derr := b.loop.Do(func() {
		opts := reactor.Options{Session: b.cfg.Session, Reader: reader.NewChat}
		b.ln, err = b.loop.ListenLocked(b.cfg.ListenAddr, opts, b.accept)
		if err != nil {
			return
		}
		b.started = time.Now()
		b.dialDirectory()
	})
	if derr != nil {
		return derr
	}
	return err
}

// Addr is the bound client listener address.
func (b *Broker) Addr() netip.AddrPort {
	var out netip.AddrPort
	_ = b.loop.Do(func() {
		if b.ln != nil {
			out = b.ln.Addr()
		}
	})
	return out
}

// Logins lists authenticated logins in order.
func (b *Broker) Logins() []string {
	var out []string
	_ = b.loop.Do(func() {
		out = make([]string, 0, len(b.authed))
		for login := range b.authed {
			out = append(out, login)
		}
	})
	sort.Strings(out)
	return out
}

// StopOnboarding refuses every later connect attempt with
// ConnectNotAccepting. Existing sessions are untouched.
func (b *Broker) StopOnboarding() {
	_ = b.loop.Do(func() {
		if b.accepting {
			log.Info().Msg("broker no longer accepting new clients")
		}
		b.accepting = false
	})
}

func (b *Broker) Accepting() bool {
	var out bool
	_ = b.loop.Do(func() { out = b.accepting })
	return out
}

func (b *Broker) DirectoryConnected() bool {
	var out bool
	_ = b.loop.Do(func() { out = b.dir != nil })
	return out
}

func (b *Broker) Uptime() time.Duration {
	var t0 time.Time
	_ = b.loop.Do(func() { t0 = b.started })
	if t0.IsZero() {
		return 0
	}
	return time.Since(t0)
}

// Shutdown closes every connection and stops the loop.
func (b *Broker) Shutdown() {
	b.cancel()
	_ = b.loop.Do(func() {
		b.stopped = true
		b.loop.Cancel(reactor.GroupDirectoryRedial)
	})
	b.loop.Shutdown()
}

// Done is closed once Shutdown has begun.
func (b *Broker) Done() <-chan struct{} { return b.loop.Stopped() }

// loop goroutine
func (b *Broker) accept(c *reactor.Conn) {
	p := &peer{conn: c}
	b.peers[c] = p
	c.Handle(func(f frame.Frame) { b.handle(p, f) })
	c.OnClose(func(*reactor.Conn) { b.release(p) })
}

// release drops every reference the broker holds to p.
func (b *Broker) release(p *peer) {
	delete(b.peers, p.conn)
	switch p.state {
	case statePending:
		delete(b.pending, p.id)
		b.unreserve(p.login)
	case stateAuthenticated:
		if b.authed[p.login] == p {
			delete(b.authed, p.login)
			log.Info().Str("login", p.login).Msg("client left")
		}
	}
	p.state = stateConnected
}

func (b *Broker) unreserve(login string) {
	if b.reserved[login] <= 1 {
		delete(b.reserved, login)
		return
	}
	b.reserved[login]--
}

func (b *Broker) notify(p *peer, code frame.InfoCode, msg string) {
	p.conn.Send(frame.Info{Code: code, Message: msg})
}

func (b *Broker) handle(p *peer, f frame.Frame) {
	switch p.state {
	case stateConnected:
		switch f := f.(type) {
		case frame.Connect:
			b.connect(p, f)
		case frame.PublicMessage, frame.PrivateRequest, frame.PrivateReply:
			b.notify(p, frame.InfoNotAuthenticated, noticeNotAuthenticated)
		default:
			b.notify(p, frame.InfoUnexpectedFrame, noticeUnexpected)
		}
	case statePending:
		if _, ok := f.(frame.Connect); ok {
			b.notify(p, frame.InfoUnexpectedFrame, noticeAuthInProgress)
			return
		}
		b.notify(p, frame.InfoNotAuthenticated, noticeNotAuthenticated)
	case stateAuthenticated:
		switch f := f.(type) {
		case frame.PublicMessage:
			b.broadcast(frame.PublicBroadcast{Sender: p.login, Message: f.Message})
		case frame.PrivateRequest:
			b.privateRequest(p, f)
		case frame.PrivateReply:
			b.privateReply(p, f)
		case frame.Connect:
			b.notify(p, frame.InfoUnexpectedFrame, noticeAlreadyAuthed)
		default:
			b.notify(p, frame.InfoUnexpectedFrame, noticeUnexpected)
		}
	}
}

func (b *Broker) answerConnect(p *peer, code frame.ConnectCode, guest bool) {
	p.conn.Send(frame.ConnectAnswer{Code: code})
	observability.RecordAuthResult(guest, authLabel(code))
}

func authLabel(code frame.ConnectCode) string {
	switch code {
	case frame.ConnectAccepted:
		return "accepted"
	case frame.ConnectInvalid:
		return "invalid"
	case frame.ConnectLoginInUse:
		return "in_use"
	case frame.ConnectNotAccepting:
		return "not_accepting"
	default:
		return "unknown"
	}
}

func (b *Broker) connect(p *peer, f frame.Connect) {
	if !b.accepting {
		b.answerConnect(p, frame.ConnectNotAccepting, f.Guest)
		return
	}
	// Guests need the login free among live and pending sessions; password
	// logins may take over.
	if f.Guest && (b.authed[f.Login] != nil || b.reserved[f.Login] > 0) {
		b.answerConnect(p, frame.ConnectLoginInUse, true)
		return
	}
	if b.dir == nil {
		b.answerConnect(p, frame.ConnectNotAccepting, f.Guest)
		b.notify(p, frame.InfoNotice, noticeDirectoryDown)
		return
	}

	b.nextID++
	p.id = b.nextID
	p.login = f.Login
	p.guest = f.Guest
	p.state = statePending
	b.pending[p.id] = p
	b.reserved[p.login]++

	var req frame.Frame = frame.AuthCheck{ID: p.id, Login: f.Login, Password: f.Password}
	if f.Guest {
		req = frame.LoginExists{ID: p.id, Login: f.Login}
	}
	b.dir.Send(req)
	log.Debug().Uint64("id", p.id).Str("login", p.login).Bool("guest", p.guest).Msg("auth pending")
}

// resolve applies a directory verdict to the pending peer it correlates.
func (b *Broker) resolve(a frame.DirectoryAnswer) {
	p, ok := b.pending[a.ID]
	if !ok {
		log.Debug().Uint64("id", a.ID).Msg("directory answer without pending client")
		return
	}
	delete(b.pending, a.ID)
	b.unreserve(p.login)
	p.state = stateConnected

	switch {
	case p.guest && a.Positive:
		// registered logins are reserved for their owners
		b.answerConnect(p, frame.ConnectLoginInUse, true)
		return
	case p.guest && b.authed[p.login] != nil:
		b.answerConnect(p, frame.ConnectLoginInUse, true)
		return
	case !p.guest && !a.Positive:
		b.answerConnect(p, frame.ConnectInvalid, false)
		return
	}

	if old := b.authed[p.login]; old != nil && old != p {
		log.Info().Str("login", p.login).Str("old", old.conn.String()).Msg("session taken over")
		old.state = stateConnected
		b.notify(old, frame.InfoNotice, noticeTakenOver)
		old.conn.Drain()
	}
	p.state = stateAuthenticated
	b.authed[p.login] = p
	b.answerConnect(p, frame.ConnectAccepted, p.guest)
	log.Info().Str("login", p.login).Bool("guest", p.guest).Str("conn", p.conn.String()).Msg("client authenticated")
}

// failPending answers every pending client when the directory link drops.
func (b *Broker) failPending() {
	for id, p := range b.pending {
		delete(b.pending, id)
		b.unreserve(p.login)
		p.state = stateConnected
		b.answerConnect(p, frame.ConnectNotAccepting, p.guest)
		b.notify(p, frame.InfoNotice, noticeDirectoryDown)
	}
}

// broadcast reaches every authenticated client, the sender included.
func (b *Broker) broadcast(f frame.PublicBroadcast) {
	log.Debug().Str("sender", f.Sender).Int("recipients", len(b.authed)).Msg("broadcast")
	for _, p := range b.authed {
		p.conn.Send(f)
	}
}

func (b *Broker) privateRequest(from *peer, f frame.PrivateRequest) {
	to := b.authed[f.Login]
	switch {
	case to == nil:
		from.conn.Send(frame.PrivateAnswer{Code: frame.ReplyUnknownRecipient, Login: f.Login})
	case to == from:
		from.conn.Send(frame.PrivateAnswer{Code: frame.ReplyRefused, Login: f.Login})
	default:
		to.conn.Send(frame.PrivateRequest{Login: from.login})
		log.Debug().Str("from", from.login).Str("to", to.login).Msg("private request forwarded")
	}
}

// privateReply relays the addressee's answer, adding its address so the
// requester can dial the advertised port. A requester that has left is
// reported back as an unknown recipient so the replier drops its token.
func (b *Broker) privateReply(from *peer, f frame.PrivateReply) {
	to := b.authed[f.Login]
	if to == nil {
		from.conn.Send(frame.PrivateAnswer{Code: frame.ReplyUnknownRecipient, Login: f.Login})
		return
	}
	switch f.Code {
	case frame.ReplyAccepted:
		to.conn.Send(frame.PrivateAnswer{
			Code:  frame.ReplyAccepted,
			Login: from.login,
			Addr:  from.conn.RemoteAddr().Addr(),
			Port:  f.Port,
			Token: f.Token,
		})
	case frame.ReplyRefused:
		to.conn.Send(frame.PrivateAnswer{Code: frame.ReplyRefused, Login: from.login})
	default:
		b.notify(from, frame.InfoUnexpectedFrame, noticeUnexpected)
		return
	}
	log.Debug().Str("from", from.login).Str("to", to.login).Stringer("code", f.Code).Msg("private reply relayed")
}
