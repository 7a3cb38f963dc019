package session

import (
	"fmt"
	"time"

	"github.com/danmuck/chathack/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config sizes a connection context.
type Config struct {
	// BufferSize is the capacity of each of the inbound and outbound
	// buffers. It must hold the largest frame.
	BufferSize int
	Ordering   Ordering
	// Link labels the context in logs and metrics.
	Link    string
	Backoff BackoffConfig
}

const DefaultBufferSize = 4096

func DefaultConfig() Config {
	return Config{
		BufferSize: DefaultBufferSize,
		Ordering:   OrderFIFO,
		Link:       "chat",
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// BrokerConfig is the broker side of client links, where chunks queue
// behind every chat frame.
func BrokerConfig() Config {
	cfg := DefaultConfig()
	cfg.Ordering = OrderChatFirst
	return cfg
}

// DirectoryConfig is the broker-to-directory link: strict FIFO, no chunks.
func DirectoryConfig() Config {
	cfg := DefaultConfig()
	cfg.Link = "directory"
	return cfg
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
	if c.Link == "" {
		c.Link = def.Link
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.BufferSize < frame.MaxFrameSize {
		return fmt.Errorf("session: buffer size %d below max frame size %d", c.BufferSize, frame.MaxFrameSize)
	}
	switch c.Ordering {
	case OrderFIFO, OrderChatFirst:
	default:
		return fmt.Errorf("session: unknown ordering %d", c.Ordering)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("session: negative backoff delay")
	}
	return nil
}
