package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/chathack/internal/client"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/transfer"
)

// Printer writes client events for a human at a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

var _ client.Notifier = (*Printer)(nil)

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) PublicMessage(sender, message string) {
	p.printf("%s: %s", sender, message)
}

func (p *Printer) PrivateMessage(from, message string) {
	p.printf("[%s] %s", from, message)
}

func (p *Printer) PrivateRequest(from string) {
	p.printf("%s wants to open a private channel. Reply \"@%s no\" to refuse, anything else accepts.", from, from)
}

func (p *Printer) PrivateAnswer(login string, code frame.ReplyCode) {
	switch code {
	case frame.ReplyAccepted:
		p.printf("%s accepted, connecting", login)
	case frame.ReplyRefused:
		p.printf("%s refused the private channel; queued messages dropped", login)
	default:
		p.printf("%s is not connected; queued messages dropped", login)
	}
}

func (p *Printer) ChannelOpened(login string) {
	p.printf("private channel with %s open", login)
}

func (p *Printer) ChannelClosed(login string) {
	p.printf("private channel with %s closed", login)
}

func (p *Printer) Info(code frame.InfoCode, message string) {
	p.printf("* %s", message)
}

func (p *Printer) FileReceived(from string, res transfer.Result) {
	if res.Err != nil {
		p.printf("file %s from %s failed: %v", res.Name, from, res.Err)
		return
	}
	p.printf("received %s from %s (%d bytes)", res.Name, from, res.Size)
}

func (p *Printer) FileSent(to, name string, err error) {
	if err != nil {
		p.printf("sending %s to %s failed: %v", name, to, err)
		return
	}
	p.printf("sent %s to %s", name, to)
}

func (p *Printer) Disconnected() {
	p.printf("connection to the broker lost")
}
