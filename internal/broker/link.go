package broker

import (
	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/reader"
	"github.com/danmuck/chathack/internal/reactor"
)

// dialDirectory opens the directory link unless it is up or already being
// dialed. loop goroutine
func (b *Broker) dialDirectory() {
	if b.stopped || b.dir != nil || b.dialing {
		return
	}
	b.dialing = true
	opts := reactor.DirectoryOptions(reader.NewDirectoryAnswers)
	b.loop.DialAsync(b.ctx, b.cfg.DirectoryAddr, opts, b.directoryDialed)
}

func (b *Broker) directoryDialed(c *reactor.Conn, err error) {
	b.dialing = false
	if err != nil {
		b.scheduleRedial(err)
		return
	}
	if b.stopped {
		c.Close()
		return
	}
	b.attempt = 0
	b.dir = c
	c.Handle(func(f frame.Frame) {
		if a, ok := f.(frame.DirectoryAnswer); ok {
			b.resolve(a)
		}
	})
	c.OnClose(b.directoryLost)
	log.Info().Str("directory", b.cfg.DirectoryAddr).Msg("directory link up")
}

func (b *Broker) directoryLost(c *reactor.Conn) {
	if b.dir != c {
		return
	}
	b.dir = nil
	log.Warn().Str("directory", b.cfg.DirectoryAddr).Int("pending", len(b.pending)).Msg("directory link lost")
	b.failPending()
	b.scheduleRedial(nil)
}

func (b *Broker) scheduleRedial(err error) {
	if b.stopped {
		return
	}
	b.attempt++
	wait := b.cfg.Session.Backoff.Delay(b.attempt, b.rng)
	log.Warn().
		Str("directory", b.cfg.DirectoryAddr).
		Int("attempt", b.attempt).
		Dur("retry_in", wait).
		AnErr("err", err).
		Msg("directory link down")
	b.loop.After(reactor.GroupDirectoryRedial, wait, b.dialDirectory)
}
