// Package directory serves the registered-user database to brokers.
//
// A broker connects, sends AuthCheck and LoginExists requests tagged with
// its own correlation ids, and receives one positive or negative answer
// per id. Answers may come back in any order.
package directory

import (
	"context"
	"errors"
	"net/netip"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/auth"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
	"github.com/danmuck/chathack/internal/reactor"
)

var ErrNotListening = errors.New("directory: not listening")

// Server answers directory requests on the loop. Password checks run on
// their own goroutine so a slow hash never stalls the loop.
type Server struct {
	loop *reactor.Loop
	dir  auth.Directory
	ln   *reactor.Listener
}

func NewServer(loop *reactor.Loop, dir auth.Directory) *Server {
	return &Server{loop: loop, dir: dir}
}

// Listen binds addr. Not callable from the loop.
func (s *Server) Listen(addr string) error {
	ln, err := s.loop.Listen(addr, reactor.DirectoryOptions(reader.NewDirectoryRequests), s.accept)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

func (s *Server) Addr() (netip.AddrPort, error) {
	if s.ln == nil {
		return netip.AddrPort{}, ErrNotListening
	}
	return s.ln.Addr(), nil
}

// Run listens on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Close stops accepting brokers; live links stay up until the loop stops.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.loop.Do(s.ln.Close)
}

func (s *Server) accept(c *reactor.Conn) {
	log.Info().Str("broker", c.String()).Msg("broker connected")
	c.Handle(func(f frame.Frame) { s.handle(c, f) })
	c.OnClose(func(c *reactor.Conn) {
		log.Info().Str("broker", c.String()).Msg("broker disconnected")
	})
}

// loop goroutine
func (s *Server) handle(c *reactor.Conn, f frame.Frame) {
	switch req := f.(type) {
	case frame.LoginExists:
		ok := s.dir.Exists(req.Login)
		log.Debug().Uint64("id", req.ID).Str("login", req.Login).Bool("exists", ok).Msg("login lookup")
		c.Send(frame.DirectoryAnswer{ID: req.ID, Positive: ok})
	case frame.AuthCheck:
		go func() {
			ok := s.dir.IsRegistered(req.Login, req.Password)
			log.Debug().Uint64("id", req.ID).Str("login", req.Login).Bool("registered", ok).Msg("credential check")
			if err := c.Enqueue(frame.DirectoryAnswer{ID: req.ID, Positive: ok}); err != nil {
				log.Debug().Uint64("id", req.ID).Err(err).Msg("broker gone before answer")
			}
		}()
	default:
		log.Warn().Str("broker", c.String()).Stringer("opcode", f.Opcode()).Msg("unexpected directory frame")
	}
}
