package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/chathack/internal/broker"
	"github.com/danmuck/chathack/internal/console"
	"github.com/danmuck/chathack/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "broker config file (toml)")
	addr := flag.String("addr", "", "client listen address, overrides the config")
	directoryAddr := flag.String("directory", "", "directory address, overrides the config")
	noConsole := flag.Bool("no-console", false, "do not read commands from stdin")
	flag.Parse()

	observability.InitLogger("chatbroker")
	observability.RegisterMetrics()

	cfg := broker.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadBrokerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chatbroker: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *directoryAddr != "" {
		cfg.DirectoryAddr = *directoryAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := broker.New(cfg)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return b.Run(gctx)
	})
	if !*noConsole {
		g.Go(func() error {
			return console.RunBroker(gctx, os.Stdin, os.Stdout, b)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("broker stopped")
		os.Exit(1)
	}
}
