package client

import (
	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/transfer"
)

// Notifier receives user-visible events. Methods run on the client's loop
// and must not block or call back into the Client.
type Notifier interface {
	PublicMessage(sender, message string)
	PrivateMessage(from, message string)
	PrivateRequest(from string)
	PrivateAnswer(login string, code frame.ReplyCode)
	ChannelOpened(login string)
	ChannelClosed(login string)
	Info(code frame.InfoCode, message string)
	FileReceived(from string, res transfer.Result)
	FileSent(to, name string, err error)
	Disconnected()
}

// LogNotifier reports every event as a log line.
type LogNotifier struct{}

func (LogNotifier) PublicMessage(sender, message string) {
	log.Info().Str("from", sender).Str("message", message).Msg("public")
}

func (LogNotifier) PrivateMessage(from, message string) {
	log.Info().Str("from", from).Str("message", message).Msg("private")
}

func (LogNotifier) PrivateRequest(from string) {
	log.Info().Str("from", from).Msg("private channel requested")
}

func (LogNotifier) PrivateAnswer(login string, code frame.ReplyCode) {
	log.Info().Str("login", login).Stringer("code", code).Msg("private channel answer")
}

func (LogNotifier) ChannelOpened(login string) {
	log.Info().Str("login", login).Msg("private channel open")
}

func (LogNotifier) ChannelClosed(login string) {
	log.Info().Str("login", login).Msg("private channel closed")
}

func (LogNotifier) Info(code frame.InfoCode, message string) {
	log.Info().Uint8("code", uint8(code)).Str("message", message).Msg("notice")
}

func (LogNotifier) FileReceived(from string, res transfer.Result) {
	log.Info().Str("from", from).Str("file", res.Name).Uint32("size", res.Size).AnErr("err", res.Err).Msg("file received")
}

func (LogNotifier) FileSent(to, name string, err error) {
	log.Info().Str("to", to).Str("file", name).AnErr("err", err).Msg("file sent")
}

func (LogNotifier) Disconnected() {
	log.Warn().Msg("broker connection lost")
}
