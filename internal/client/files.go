package client

import (
	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/transfer"
)

// startFile streams name to ch on its own goroutine. loop goroutine
func (c *Client) startFile(ch *channel, name string) {
	c.nextFile++
	id := c.nextFile
	go func() {
		src, size, err := c.files.Source(name)
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("cannot read file")
			c.fileSent(ch.login, name, err)
			return
		}
		defer src.Close()
		err = transfer.Send(ch.ctx, ch.conn, c.cfg.Sender, transfer.Offer{
			FileID: id,
			Name:   name,
			Size:   size,
			Data:   src,
		})
		c.fileSent(ch.login, name, err)
	}()
}

// fileSent reports on the loop, where notifiers run.
func (c *Client) fileSent(login, name string, err error) {
	_ = c.loop.Dispatch(func() { c.notify.FileSent(login, name, err) })
}
