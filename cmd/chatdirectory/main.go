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

	"github.com/danmuck/chathack/internal/auth"
	"github.com/danmuck/chathack/internal/config"
	"github.com/danmuck/chathack/internal/directory"
	"github.com/danmuck/chathack/internal/observability"
	"github.com/danmuck/chathack/internal/reactor"
)

func main() {
	configPath := flag.String("config", "cmd/chatdirectory/config.toml", "directory config file (toml)")
	addr := flag.String("addr", "", "listen address, overrides the config")
	hash := flag.String("hash", "", "print the bcrypt hash of a password and exit")
	flag.Parse()

	if *hash != "" {
		h, err := auth.Hash(*hash)
		if err != nil {
			fail(err)
		}
		fmt.Println(string(h))
		return
	}

	observability.InitLogger("chatdirectory")

	cfg, err := config.LoadDirectoryFile(*configPath)
	if err != nil {
		fail(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	store := auth.NewStore(cfg.Credentials())
	log.Info().Int("users", store.Len()).Str("config", *configPath).Msg("credentials loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := reactor.NewLoop("directory")
	defer loop.Shutdown()
	if err := directory.NewServer(loop, store).Run(ctx, cfg.Addr); err != nil && !errors.Is(err, context.Canceled) {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "chatdirectory: %v\n", err)
	os.Exit(1)
}
