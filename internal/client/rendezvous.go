package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
	"github.com/danmuck/chathack/internal/reactor"
	"github.com/danmuck/chathack/internal/transfer"
)

// channel is a live private connection to one login.
type channel struct {
	login  string
	conn   *reactor.Conn
	token  uint32
	owned  bool
	recv   *transfer.Receiver
	ctx    context.Context
	cancel context.CancelFunc
}

// request asks the broker for a channel to login and opens its queue.
// loop goroutine
func (c *Client) request(login string) (*pendingQueue, error) {
	if c.broker == nil {
		return nil, ErrNotConnected
	}
	c.broker.Send(frame.PrivateRequest{Login: login})
	q := &pendingQueue{}
	c.queues[login] = q
	log.Debug().Str("login", login).Msg("private channel requested")
	return q, nil
}

// answer replies to a pending request. Accepting opens our private listener
// if needed and hands the requester a fresh token through the broker.
func (c *Client) answer(login string, accept bool) error {
	if _, ok := c.asking[login]; !ok {
		return ErrNoRequest
	}
	if c.broker == nil {
		return ErrNotConnected
	}
	delete(c.asking, login)
	if !accept {
		c.broker.Send(frame.PrivateReply{Code: frame.ReplyRefused, Login: login})
		return nil
	}
	if err := c.ensureListener(); err != nil {
		c.broker.Send(frame.PrivateReply{Code: frame.ReplyRefused, Login: login})
		return err
	}
	token, err := c.tokens.Mint(login)
	if err != nil {
		c.broker.Send(frame.PrivateReply{Code: frame.ReplyRefused, Login: login})
		return err
	}
	c.broker.Send(frame.PrivateReply{
		Code:  frame.ReplyAccepted,
		Login: login,
		Port:  uint32(c.listener.Addr().Port()),
		Token: token,
	})
	if c.queues[login] == nil {
		c.queues[login] = &pendingQueue{}
	}
	log.Debug().Str("login", login).Uint32("token", token).Msg("private channel accepted")
	return nil
}

func (c *Client) ensureListener() error {
	if c.listener != nil {
		return nil
	}
	opts := reactor.Options{Session: c.cfg.Session, Reader: reader.NewChat}
	ln, err := c.loop.ListenLocked(c.cfg.PrivateListenAddr, opts, c.acceptPrivate)
	if err != nil {
		return err
	}
	c.listener = ln
	return nil
}

// privateAnswer handles the broker's relay of the addressee's verdict.
func (c *Client) privateAnswer(f frame.PrivateAnswer) {
	c.notify.PrivateAnswer(f.Login, f.Code)
	if f.Code != frame.ReplyAccepted {
		delete(c.queues, f.Login)
		if f.Code == frame.ReplyUnknownRecipient {
			// gone: tokens we minted for it and its request to us are void
			delete(c.asking, f.Login)
			c.tokens.ReleaseLogin(f.Login)
		}
		log.Debug().Str("login", f.Login).Stringer("code", f.Code).Msg("private queues dropped")
		return
	}
	if _, ok := c.queues[f.Login]; !ok {
		log.Warn().Str("login", f.Login).Msg("private answer without request")
		return
	}
	if c.channels[f.Login] != nil {
		log.Warn().Str("login", f.Login).Msg("private channel already open")
		return
	}
	addr := f.AddrPort().String()
	opts := reactor.Options{Session: c.cfg.Session, Reader: reader.NewChat}
	c.loop.DialAsync(c.ctx, addr, opts, func(conn *reactor.Conn, err error) {
		if err != nil {
			log.Warn().Str("login", f.Login).Str("addr", addr).Err(err).Msg("private dial failed")
			delete(c.queues, f.Login)
			c.notify.Info(frame.InfoNotice, "could not reach "+f.Login+": "+err.Error())
			return
		}
		conn.Send(frame.PrivateAuth{Login: c.cfg.Login, Token: f.Token})
		c.openChannel(f.Login, conn, f.Token, false)
	})
}

// acceptPrivate admits a raw connection on our listener; it becomes a
// channel once it authenticates with a pending token.
func (c *Client) acceptPrivate(conn *reactor.Conn) {
	conn.Handle(func(f frame.Frame) {
		auth, ok := f.(frame.PrivateAuth)
		if !ok {
			conn.Send(frame.Info{Code: frame.InfoNotAuthenticated, Message: "authenticate with your token first"})
			return
		}
		if !c.tokens.Consume(auth.Token, auth.Login) {
			log.Warn().Str("login", auth.Login).Str("conn", conn.String()).Msg("private auth rejected")
			return
		}
		// a repeated request may have left older tokens behind
		c.tokens.ReleaseLogin(auth.Login)
		c.openChannel(auth.Login, conn, auth.Token, true)
	})
}

// openChannel registers conn under login and drains the queue held for it.
// owned marks the side that minted the token.
func (c *Client) openChannel(login string, conn *reactor.Conn, token uint32, owned bool) {
	if old := c.channels[login]; old != nil {
		log.Warn().Str("login", login).Msg("replacing private channel")
		old.conn.Close()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	ch := &channel{login: login, conn: conn, token: token, owned: owned, ctx: ctx, cancel: cancel}
	ch.recv = transfer.NewReceiver(c.files, c.cfg.ReassemblySize, func(res transfer.Result) {
		c.notify.FileReceived(login, res)
	})
	conn.Handle(func(f frame.Frame) { c.handleChannel(ch, f) })
	conn.OnClose(func(*reactor.Conn) { c.closeChannel(ch) })
	c.channels[login] = ch
	// a crossed request from login is settled by this channel
	delete(c.asking, login)
	c.notify.ChannelOpened(login)
	log.Info().Str("login", login).Str("conn", conn.String()).Bool("owner", owned).Msg("private channel open")

	q := c.queues[login]
	delete(c.queues, login)
	if q == nil {
		return
	}
	for _, m := range q.messages {
		conn.Send(frame.PrivateMessage{Message: m})
	}
	for _, name := range q.files {
		c.startFile(ch, name)
	}
}

func (c *Client) closeChannel(ch *channel) {
	ch.cancel()
	ch.recv.Abort()
	if ch.owned {
		c.tokens.Release(ch.token)
	}
	if c.channels[ch.login] == ch {
		delete(c.channels, ch.login)
		c.notify.ChannelClosed(ch.login)
	}
}

func (c *Client) handleChannel(ch *channel, f frame.Frame) {
	switch f := f.(type) {
	case frame.PrivateMessage:
		c.notify.PrivateMessage(ch.login, f.Message)
	case frame.FileInit:
		ch.recv.Init(f)
	case frame.FileChunk:
		ch.recv.Chunk(f)
	case frame.Info:
		c.notify.Info(f.Code, f.Message)
	default:
		log.Warn().Str("login", ch.login).Stringer("opcode", f.Opcode()).Msg("unexpected frame on private channel")
	}
}
