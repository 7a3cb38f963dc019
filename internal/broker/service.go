package broker

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Run starts the broker and serves until ctx is done or Shutdown is
// called, e.g. by a console shutdownnow.
func (b *Broker) Run(ctx context.Context) error {
	if err := b.Start(); err != nil {
		b.Shutdown()
		return err
	}
	log.Info().Str("addr", b.Addr().String()).Str("directory", b.cfg.DirectoryAddr).Msg("broker started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-b.Done():
		}
		b.Shutdown()
		return nil
	})
	if strings.TrimSpace(b.cfg.AdminListenAddr) != "" {
		g.Go(func() error {
			adminCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				select {
				case <-b.Done():
					cancel()
				case <-adminCtx.Done():
				}
			}()
			return b.serveAdmin(adminCtx)
		})
	}
	return g.Wait()
}
