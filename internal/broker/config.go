package broker

import (
	"errors"
	"strings"

	"github.com/danmuck/chathack/internal/protocol/session"
)

var (
	ErrListenAddrRequired    = errors.New("broker: listen address required")
	ErrDirectoryAddrRequired = errors.New("broker: directory address required")
)

// Config configures a broker process.
type Config struct {
	ListenAddr    string
	DirectoryAddr string
	// AdminListenAddr enables the admin HTTP API when set.
	AdminListenAddr string
	AdminOrigins    []string
	// Session sizes client connections; its Backoff paces directory redials.
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":7777",
		DirectoryAddr: "127.0.0.1:7778",
		Session:       session.BrokerConfig(),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return ErrListenAddrRequired
	}
	if strings.TrimSpace(c.DirectoryAddr) == "" {
		return ErrDirectoryAddrRequired
	}
	return c.Session.WithDefaults().Validate()
}
