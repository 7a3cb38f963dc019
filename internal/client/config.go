package client

import (
	"errors"
	"strings"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/protocol/session"
	"github.com/danmuck/chathack/internal/transfer"
)

var (
	ErrBrokerAddrRequired = errors.New("client: broker address required")
	ErrInvalidLogin       = errors.New("client: login must be 1..1024 bytes")
)

// Config configures one chat participant.
type Config struct {
	BrokerAddr string
	Login      string
	// Password selects a registered login; empty connects as a guest.
	Password string
	// Dir is the working directory files are sent from and received into.
	Dir string
	// PrivateListenAddr is bound on the first accepted private request.
	PrivateListenAddr string
	Session           session.Config
	Sender            transfer.SenderConfig
	ReassemblySize    int
	TokenAttempts     int
}

func DefaultConfig() Config {
	return Config{
		BrokerAddr:        "127.0.0.1:7777",
		Dir:               ".",
		PrivateListenAddr: ":0",
		Session:           session.DefaultConfig(),
		Sender:            transfer.DefaultSenderConfig(),
		ReassemblySize:    transfer.DefaultReassemblySize,
		TokenAttempts:     64,
	}
}

func (c Config) Guest() bool { return c.Password == "" }

func (c Config) Validate() error {
	if strings.TrimSpace(c.BrokerAddr) == "" {
		return ErrBrokerAddrRequired
	}
	if !frame.ValidString(c.Login) {
		return ErrInvalidLogin
	}
	if !c.Guest() && !frame.ValidString(c.Password) {
		return errors.New("client: password longer than 1024 bytes")
	}
	return c.Session.WithDefaults().Validate()
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.PrivateListenAddr == "" {
		c.PrivateListenAddr = def.PrivateListenAddr
	}
	if c.ReassemblySize <= 0 {
		c.ReassemblySize = def.ReassemblySize
	}
	if c.TokenAttempts <= 0 {
		c.TokenAttempts = def.TokenAttempts
	}
	c.Session = c.Session.WithDefaults()
	return c
}
