package reader

import (
	"fmt"

	"github.com/danmuck/chathack/internal/protocol/bytebuf"
	"github.com/danmuck/chathack/internal/protocol/frame"
)

// Dispatcher reads one opcode byte and hands the rest of the frame to the
// parser registered for it. On every Refill it compacts the inbound buffer.
type Dispatcher struct {
	parsers map[frame.Opcode]Reader
	current Reader
	status  Status
	out     frame.Frame
	err     error
}

func newDispatcher(parsers map[frame.Opcode]Reader) *Dispatcher {
	return &Dispatcher{parsers: parsers}
}

func (d *Dispatcher) Process(buf *bytebuf.Buffer) Status {
	if d.status != Refill {
		d.err = ErrNotReset
		d.status = Error
		return Error
	}
	if d.current == nil {
		if buf.Len() < 1 {
			buf.Compact()
			return Refill
		}
		op := frame.Opcode(buf.Next(1)[0])
		p, ok := d.parsers[op]
		if !ok {
			d.err = fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, byte(op))
			d.status = Error
			return Error
		}
		d.current = p
	}
	switch st := d.current.Process(buf); st {
	case Refill:
		buf.Compact()
		return Refill
	case Done:
		d.out = d.current.Get()
		d.status = Done
	default:
		d.err = d.current.Err()
		d.status = Error
	}
	return d.status
}

func (d *Dispatcher) Get() frame.Frame { return d.out }
func (d *Dispatcher) Err() error       { return d.err }

func (d *Dispatcher) Reset() {
	if d.current != nil {
		d.current.Reset()
	}
	d.current = nil
	d.status = Refill
	d.out = nil
	d.err = nil
}

// Builder selects the parser set a connection uses. The set is fixed at
// construction; links that speak different protocols pass different builders.
type Builder func() Reader

// NewChat reads every frame exchanged with the broker or over a private
// channel.
func NewChat() Reader {
	return newDispatcher(map[frame.Opcode]Reader{
		frame.OpConnect:         connectParser(),
		frame.OpPublicMessage:   publicMessageParser(),
		frame.OpPrivateRequest:  privateRequestParser(),
		frame.OpPrivateReply:    privateReplyParser(),
		frame.OpPrivateAuth:     privateAuthParser(),
		frame.OpPrivateMessage:  privateMessageParser(),
		frame.OpFileInit:        fileInitParser(),
		frame.OpFileChunk:       fileChunkParser(),
		frame.OpConnectAnswer:   connectAnswerParser(),
		frame.OpPublicBroadcast: publicBroadcastParser(),
		frame.OpPrivateAnswer:   privateAnswerParser(),
		frame.OpInfo:            infoParser(),
	})
}

// NewDirectoryRequests reads what the broker sends to the directory.
func NewDirectoryRequests() Reader {
	return newDispatcher(map[frame.Opcode]Reader{
		frame.OpAuthCheck:   authCheckParser(),
		frame.OpLoginExists: loginExistsParser(),
	})
}

// NewDirectoryAnswers reads what the directory sends back to the broker.
func NewDirectoryAnswers() Reader {
	return newDispatcher(map[frame.Opcode]Reader{
		frame.OpDirectoryNegative: directoryAnswerParser(false),
		frame.OpDirectoryPositive: directoryAnswerParser(true),
	})
}
