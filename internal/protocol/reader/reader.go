// Package reader reconstructs frames from partial reads. Every frame variant
// has a resumable parser; a Dispatcher reads the opcode byte and delegates.
// Parsers keep their partial state across Refill results and must be Reset
// after Done or Error before they are used again.
package reader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/chathack/internal/protocol/bytebuf"
	"github.com/danmuck/chathack/internal/protocol/frame"
)

// Status is the outcome of one Process call.
type Status int

const (
	Refill Status = iota
	Done
	Error
)

func (s Status) String() string {
	switch s {
	case Refill:
		return "refill"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrNotReset        = errors.New("reader: process called without reset")
	ErrUnknownOpcode   = errors.New("reader: unknown opcode")
	ErrEmptyString     = errors.New("reader: empty string")
	ErrStringTooLong   = errors.New("reader: string exceeds max length")
	ErrChunkLength     = errors.New("reader: chunk length out of range")
	ErrConnectMode     = errors.New("reader: unknown connect mode")
	ErrUnknownIPFamily = errors.New("reader: unknown ip family")
)

// Reader is the contract shared by variant parsers and dispatchers.
type Reader interface {
	// Process consumes bytes already in buf and reports progress.
	Process(buf *bytebuf.Buffer) Status
	// Get returns the finished frame after Done.
	Get() frame.Frame
	// Err explains the last Error.
	Err() error
	Reset()
}

// step consumes one field. It reports done once the field is complete and a
// non-nil error if the bytes can never form a valid field.
type step func(buf *bytebuf.Buffer) (done bool, err error)

// parser runs a variant's steps in order. fresh returns new steps and the
// builder for the finished frame, so Reset discards every partial field.
type parser struct {
	fresh  func() ([]step, func() frame.Frame)
	steps  []step
	build  func() frame.Frame
	i      int
	status Status
	out    frame.Frame
	err    error
}

func newParser(fresh func() ([]step, func() frame.Frame)) *parser {
	p := &parser{fresh: fresh}
	p.Reset()
	return p
}

func (p *parser) Process(buf *bytebuf.Buffer) Status {
	if p.status != Refill {
		p.err = ErrNotReset
		p.status = Error
		return Error
	}
	for p.i < len(p.steps) {
		done, err := p.steps[p.i](buf)
		if err != nil {
			p.err = err
			p.status = Error
			return Error
		}
		if !done {
			return Refill
		}
		p.i++
	}
	p.out = p.build()
	p.status = Done
	return Done
}

func (p *parser) Get() frame.Frame { return p.out }
func (p *parser) Err() error       { return p.err }

func (p *parser) Reset() {
	p.steps, p.build = p.fresh()
	p.i = 0
	p.status = Refill
	p.out = nil
	p.err = nil
}

func readU8(dst *uint8) step {
	return func(buf *bytebuf.Buffer) (bool, error) {
		if buf.Len() < 1 {
			return false, nil
		}
		*dst = buf.Next(1)[0]
		return true, nil
	}
}

func readU32(dst *uint32) step {
	return func(buf *bytebuf.Buffer) (bool, error) {
		if buf.Len() < 4 {
			return false, nil
		}
		*dst = binary.BigEndian.Uint32(buf.Next(4))
		return true, nil
	}
}

func readU64(dst *uint64) step {
	return func(buf *bytebuf.Buffer) (bool, error) {
		if buf.Len() < 8 {
			return false, nil
		}
		*dst = binary.BigEndian.Uint64(buf.Next(8))
		return true, nil
	}
}

// readString parses [u32 length][bytes], accumulating the body across calls.
func readString(dst *string) step {
	var body []byte
	return readSized(func(n uint32) error {
		switch {
		case n == 0:
			return ErrEmptyString
		case n > frame.MaxStringLen:
			return fmt.Errorf("%w: %d", ErrStringTooLong, n)
		}
		return nil
	}, &body, func() { *dst = string(body) })
}

// readChunk parses a chunk payload with the same framing as strings.
func readChunk(dst *[]byte) step {
	return readSized(func(n uint32) error {
		if n == 0 || n > frame.MaxChunkLen {
			return fmt.Errorf("%w: %d", ErrChunkLength, n)
		}
		return nil
	}, dst, func() {})
}

func readSized(check func(uint32) error, body *[]byte, finish func()) step {
	var (
		n       uint32
		haveLen bool
	)
	return func(buf *bytebuf.Buffer) (bool, error) {
		if !haveLen {
			if buf.Len() < 4 {
				return false, nil
			}
			n = binary.BigEndian.Uint32(buf.Next(4))
			if err := check(n); err != nil {
				return false, err
			}
			haveLen = true
			*body = make([]byte, 0, n)
		}
		take := min(int(n)-len(*body), buf.Len())
		*body = append(*body, buf.Next(take)...)
		if len(*body) < int(n) {
			return false, nil
		}
		finish()
		return true, nil
	}
}

// when runs s only if cond holds at the time the step is reached.
func when(cond func() bool, s step) step {
	return func(buf *bytebuf.Buffer) (bool, error) {
		if !cond() {
			return true, nil
		}
		return s(buf)
	}
}
