package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/chathack/internal/client"
	"github.com/danmuck/chathack/internal/console"
	"github.com/danmuck/chathack/internal/observability"
)

const usage = `type a line to talk to everyone
  @login message   private message (answers a pending request: "no" refuses)
  /login file      send a file from the working directory`

func main() {
	configPath := flag.String("config", "", "client config file (toml)")
	addr := flag.String("addr", "", "broker address")
	login := flag.String("login", "", "login")
	password := flag.String("password", "", "password; empty connects as a guest")
	dir := flag.String("dir", "", "working directory for sent and received files")
	flag.Parse()

	observability.InitLogger("chatclient")

	cfg := client.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadClientConfig(*configPath)
		if err != nil {
			fail(err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.BrokerAddr = *addr
		case "login":
			cfg.Login = *login
		case "password":
			cfg.Password = *password
		case "dir":
			cfg.Dir = *dir
		}
	})

	printer := console.NewPrinter(os.Stdout)
	c, err := client.New(cfg, printer)
	if err != nil {
		fail(err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.Start(ctx); err != nil {
		var refused *client.ConnectError
		if errors.As(err, &refused) {
			fail(fmt.Errorf("login %q refused: %s", cfg.Login, refused.Code))
		}
		fail(err)
	}
	fmt.Fprintf(os.Stdout, "connected as %s\n%s\n", cfg.Login, usage)

	go func() {
		select {
		case <-c.Done():
			stop()
		case <-ctx.Done():
		}
	}()
	if err := console.RunClient(ctx, os.Stdin, os.Stdout, c); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
	os.Exit(1)
}
