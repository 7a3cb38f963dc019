// Package client implements a chat participant: its broker session,
// private channel rendezvous on both sides, and the message and file queues
// held for peers whose channel is not up yet.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
	"github.com/danmuck/chathack/internal/reactor"
	"github.com/danmuck/chathack/internal/storage"
	"github.com/danmuck/chathack/internal/transfer"
)

var (
	ErrBlank        = errors.New("client: blank message or file name")
	ErrTooLong      = errors.New("client: text longer than 1024 bytes")
	ErrSelf         = errors.New("client: cannot open a private channel with yourself")
	ErrNoRequest    = errors.New("client: no pending request from that login")
	ErrNotConnected = errors.New("client: not connected to the broker")
)

// ConnectError is the broker's refusal of our login.
type ConnectError struct {
	Code frame.ConnectCode
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("client: broker refused login: %s", e.Code)
}

// pendingQueue holds traffic for a login until its channel opens.
type pendingQueue struct {
	messages []string
	files    []string
}

// Client owns its loop. Fields below notify are loop-owned.
type Client struct {
	cfg    Config
	loop   *reactor.Loop
	files  *storage.Dir
	notify Notifier
	ctx    context.Context
	cancel context.CancelFunc

	broker   *reactor.Conn
	answered chan frame.ConnectCode
	listener *reactor.Listener
	tokens   *TokenTable
	nextFile uint32
	asking   map[string]struct{}
	queues   map[string]*pendingQueue
	channels map[string]*channel
}

// New prepares a client; Start connects it. A nil notify logs events.
func New(cfg Config, notify Notifier) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := storage.Open(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if notify == nil {
		notify = LogNotifier{}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		loop:     reactor.NewLoop("client." + cfg.Login),
		files:    files,
		notify:   notify,
		ctx:      ctx,
		cancel:   cancel,
		tokens:   NewTokenTable(rng.Uint32, cfg.TokenAttempts),
		asking:   make(map[string]struct{}),
		queues:   make(map[string]*pendingQueue),
		channels: make(map[string]*channel),
	}, nil
}

func (c *Client) Login() string { return c.cfg.Login }

// Start dials the broker, logs in, and waits for its verdict. A refusal is
// returned as *ConnectError.
func (c *Client) Start(ctx context.Context) error {
	answered := make(chan frame.ConnectCode, 1)
	opts := reactor.Options{Session: c.cfg.Session, Reader: reader.NewChat}
	_, err := c.loop.Dial(ctx, c.cfg.BrokerAddr, opts, func(conn *reactor.Conn) {
		if c.broker != nil {
			conn.Close()
			return
		}
		c.broker = conn
		c.answered = answered
		conn.Handle(c.handleBroker)
		conn.OnClose(c.brokerClosed)
		conn.Send(frame.Connect{Login: c.cfg.Login, Password: c.cfg.Password, Guest: c.cfg.Guest()})
	})
	if err != nil {
		return fmt.Errorf("client: dial broker: %w", err)
	}
	select {
	case code := <-answered:
		if code != frame.ConnectAccepted {
			return &ConnectError{Code: code}
		}
		log.Info().Str("login", c.cfg.Login).Bool("guest", c.cfg.Guest()).Msg("authenticated")
		return nil
	case <-c.loop.Stopped():
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops every connection and stops the loop. Running transfers
// observe the closed connections and abort.
func (c *Client) Close() {
	c.cancel()
	c.loop.Shutdown()
}

// Done is closed once the client has shut down.
func (c *Client) Done() <-chan struct{} { return c.loop.Stopped() }

// loop goroutine
func (c *Client) brokerClosed(*reactor.Conn) {
	c.broker = nil
	c.notify.Disconnected()
	if c.answered != nil {
		select {
		case c.answered <- frame.ConnectNotAccepting:
		default:
		}
	}
	// without a broker there is nothing left to rendezvous through
	go c.Close()
}

func (c *Client) handleBroker(f frame.Frame) {
	switch f := f.(type) {
	case frame.ConnectAnswer:
		if c.answered == nil {
			log.Warn().Stringer("code", f.Code).Msg("unsolicited connect answer")
			return
		}
		c.answered <- f.Code
		c.answered = nil
		if f.Code != frame.ConnectAccepted {
			c.broker.Drain()
		}
	case frame.PublicBroadcast:
		c.notify.PublicMessage(f.Sender, f.Message)
	case frame.PrivateRequest:
		c.asking[f.Login] = struct{}{}
		c.notify.PrivateRequest(f.Login)
	case frame.PrivateAnswer:
		c.privateAnswer(f)
	case frame.Info:
		c.notify.Info(f.Code, f.Message)
	default:
		log.Warn().Stringer("opcode", f.Opcode()).Msg("unexpected frame from broker")
	}
}

func checkText(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrBlank
	}
	if len(s) > frame.MaxStringLen {
		return ErrTooLong
	}
	return nil
}

// do runs f on the loop and returns its error.
func (c *Client) do(f func() error) error {
	var err error
	if derr := c.loop.Do(func() { err = f() }); derr != nil {
		return ErrNotConnected
	}
	return err
}

// SendPublic broadcasts message through the broker.
func (c *Client) SendPublic(message string) error {
	if err := checkText(message); err != nil {
		return err
	}
	return c.do(func() error {
		if c.broker == nil {
			return ErrNotConnected
		}
		c.broker.Send(frame.PublicMessage{Message: message})
		return nil
	})
}

// SendPrivate delivers message to login over a private channel, asking the
// broker for one first if needed. If login asked us for a channel, message
// answers that request instead, even while our own request to login is
// pending: "no" refuses and anything else accepts.
func (c *Client) SendPrivate(login, message string) error {
	if err := c.checkPeer(login); err != nil {
		return err
	}
	if err := checkText(message); err != nil {
		return err
	}
	return c.do(func() error {
		if ch := c.channels[login]; ch != nil {
			ch.conn.Send(frame.PrivateMessage{Message: message})
			return nil
		}
		if _, ok := c.asking[login]; ok {
			return c.answer(login, !strings.EqualFold(strings.TrimSpace(message), "no"))
		}
		if q := c.queues[login]; q != nil {
			q.messages = append(q.messages, message)
			return nil
		}
		q, err := c.request(login)
		if err != nil {
			return err
		}
		q.messages = append(q.messages, message)
		return nil
	})
}

// SendFile sends the named file from the working directory to login. A
// pending request from login is accepted.
func (c *Client) SendFile(login, name string) error {
	if err := c.checkPeer(login); err != nil {
		return err
	}
	if err := checkText(name); err != nil {
		return err
	}
	clean, err := storage.CleanName(name)
	if err != nil {
		return err
	}
	return c.do(func() error {
		if ch := c.channels[login]; ch != nil {
			c.startFile(ch, clean)
			return nil
		}
		if _, ok := c.asking[login]; ok {
			if err := c.answer(login, true); err != nil {
				return err
			}
		}
		q := c.queues[login]
		if q == nil {
			if q, err = c.request(login); err != nil {
				return err
			}
		}
		q.files = append(q.files, clean)
		return nil
	})
}

// Answer accepts or refuses the private channel request from login.
func (c *Client) Answer(login string, accept bool) error {
	return c.do(func() error { return c.answer(login, accept) })
}

func (c *Client) checkPeer(login string) error {
	if !frame.ValidString(login) {
		return ErrInvalidLogin
	}
	if login == c.cfg.Login {
		return ErrSelf
	}
	return nil
}

// Channels lists logins with a live private channel.
func (c *Client) Channels() []string {
	var out []string
	_ = c.loop.Do(func() {
		for login := range c.channels {
			out = append(out, login)
		}
	})
	sort.Strings(out)
	return out
}

// Asking lists logins waiting for our answer.
func (c *Client) Asking() []string {
	var out []string
	_ = c.loop.Do(func() {
		for login := range c.asking {
			out = append(out, login)
		}
	})
	sort.Strings(out)
	return out
}

// Queued reports the messages and files held for login, and whether a
// queue exists at all.
func (c *Client) Queued(login string) (messages, files int, ok bool) {
	_ = c.loop.Do(func() {
		if q := c.queues[login]; q != nil {
			messages, files, ok = len(q.messages), len(q.files), true
		}
	})
	return messages, files, ok
}

// Tokens reports pending and bound rendezvous tokens.
func (c *Client) Tokens() (pending, bound int) {
	_ = c.loop.Do(func() {
		pending, bound = c.tokens.Pending(), c.tokens.Bound()
	})
	return pending, bound
}

// FileDir is the working directory.
func (c *Client) FileDir() *storage.Dir { return c.files }

var _ transfer.Sink = (*storage.Dir)(nil)
