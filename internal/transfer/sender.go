// Package transfer moves files over a chat connection: a sender that
// splits a file into chunks and throttles on the connection's queue, and a
// receiver that reassembles chunks into output files.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/observability"
	"github.com/danmuck/chathack/internal/protocol/frame"
)

var (
	ErrShortFile   = errors.New("transfer: file shorter than announced")
	ErrOverrun     = errors.New("transfer: more bytes than announced")
	ErrInterrupted = errors.New("transfer: connection closed mid-transfer")
)

// Outlet is the sending side of a connection as seen from a transfer
// goroutine.
type Outlet interface {
	Enqueue(f frame.Frame) error
	WaitDrained(ctx context.Context) error
}

// SenderConfig tunes chunk production.
type SenderConfig struct {
	// ChunkSize is the payload of each FileChunk, at most frame.MaxChunkLen.
	ChunkSize int
	// Window is how many chunks are queued before waiting for the queue to
	// drain.
	Window int
}

func DefaultSenderConfig() SenderConfig {
	return SenderConfig{ChunkSize: frame.MaxChunkLen, Window: 64}
}

func (c SenderConfig) withDefaults() SenderConfig {
	def := DefaultSenderConfig()
	if c.ChunkSize <= 0 || c.ChunkSize > frame.MaxChunkLen {
		c.ChunkSize = def.ChunkSize
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

// Offer describes one outgoing file.
type Offer struct {
	FileID uint32
	Name   string
	Size   uint32
	Data   io.Reader
}

// Send announces the file and streams its chunks. It blocks; run it on its
// own goroutine. Cancelling ctx or closing the connection abandons the
// transfer without further writes.
func Send(ctx context.Context, out Outlet, cfg SenderConfig, offer Offer) error {
	cfg = cfg.withDefaults()
	err := send(ctx, out, cfg, offer)
	outcome := "complete"
	if err != nil {
		outcome = "aborted"
		log.Warn().Str("file", offer.Name).Uint32("file_id", offer.FileID).Err(err).Msg("send abandoned")
	} else {
		log.Debug().Str("file", offer.Name).Uint32("file_id", offer.FileID).Uint32("size", offer.Size).Msg("send complete")
	}
	observability.RecordTransfer("send", outcome)
	return err
}

func send(ctx context.Context, out Outlet, cfg SenderConfig, offer Offer) error {
	if err := out.Enqueue(frame.FileInit{Name: offer.Name, Length: offer.Size, FileID: offer.FileID}); err != nil {
		return err
	}
	remaining := int64(offer.Size)
	queued := 0
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(cfg.ChunkSize)
		if remaining < n {
			n = remaining
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(offer.Data, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %s", ErrShortFile, offer.Name)
			}
			return err
		}
		if err := out.Enqueue(frame.FileChunk{FileID: offer.FileID, Data: chunk}); err != nil {
			return err
		}
		observability.RecordTransferBytes("send", len(chunk))
		remaining -= n
		queued++
		if queued == cfg.Window {
			queued = 0
			if err := out.WaitDrained(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
