package reader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/chathack/internal/protocol/bytebuf"
	"github.com/danmuck/chathack/internal/protocol/frame"
	"github.com/danmuck/chathack/internal/testutil/testlog"
)

func chatFrames() []frame.Frame {
	return []frame.Frame{
		frame.Connect{Login: "alice", Password: "secret"},
		frame.Connect{Login: "guest", Guest: true},
		frame.ConnectAnswer{Code: frame.ConnectNotAccepting},
		frame.PublicMessage{Message: "a"},
		frame.PublicMessage{Message: strings.Repeat("m", frame.MaxStringLen)},
		frame.PublicBroadcast{Sender: "alice", Message: "hi"},
		frame.PrivateRequest{Login: "bob"},
		frame.PrivateReply{Code: frame.ReplyAccepted, Login: "alice", Port: 40000, Token: 17},
		frame.PrivateReply{Code: frame.ReplyRefused, Login: "alice"},
		frame.PrivateAnswer{Code: frame.ReplyAccepted, Login: "bob", Addr: netip.MustParseAddr("127.0.0.1"), Port: 40000, Token: 17},
		frame.PrivateAnswer{Code: frame.ReplyAccepted, Login: "bob", Addr: netip.MustParseAddr("2001:db8::5"), Port: 2, Token: 3},
		frame.PrivateAnswer{Code: frame.ReplyUnknownRecipient, Login: "bob"},
		frame.PrivateAuth{Login: "alice", Token: 17},
		frame.PrivateMessage{Message: "secret stuff"},
		frame.FileInit{Name: "a.txt", Length: 5000, FileID: 3},
		frame.FileChunk{FileID: 3, Data: []byte("x")},
		frame.FileChunk{FileID: 3, Data: bytes.Repeat([]byte{7}, frame.MaxChunkLen)},
		frame.Info{Code: frame.InfoNotice, Message: "hello"},
	}
}

func loaded(frames ...frame.Frame) *bytebuf.Buffer {
	buf := bytebuf.New(len(frames) * frame.MaxFrameSize)
	for _, f := range frames {
		buf.Write(frame.Encode(f))
	}
	return buf
}

func TestRoundTripChatFrames(t *testing.T) {
	testlog.Start(t)
	r := NewChat()
	for _, want := range chatFrames() {
		buf := loaded(want)
		if st := r.Process(buf); st != Done {
			t.Fatalf("%T status=%v err=%v", want, st, r.Err())
		}
		if got := r.Get(); !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch:\n got=%#v\nwant=%#v", got, want)
		}
		if buf.Len() != 0 {
			t.Fatalf("%T left %d unread bytes", want, buf.Len())
		}
		r.Reset()
	}
}

func TestByteAtATimeYieldsRefillUntilLastByte(t *testing.T) {
	testlog.Start(t)
	r := NewChat()
	for _, want := range chatFrames() {
		enc := frame.Encode(want)
		buf := bytebuf.New(frame.MaxFrameSize)
		for i, b := range enc {
			buf.Write([]byte{b})
			st := r.Process(buf)
			if i < len(enc)-1 {
				if st != Refill {
					t.Fatalf("%T byte %d/%d status=%v err=%v", want, i, len(enc), st, r.Err())
				}
				continue
			}
			if st != Done {
				t.Fatalf("%T final status=%v err=%v", want, st, r.Err())
			}
		}
		if got := r.Get(); !reflect.DeepEqual(got, want) {
			t.Fatalf("byte-at-a-time mismatch:\n got=%#v\nwant=%#v", got, want)
		}
		r.Reset()
	}
}

func TestStringLengthBounds(t *testing.T) {
	testlog.Start(t)
	r := NewChat()

	empty := []byte{byte(frame.OpPublicMessage), 0, 0, 0, 0}
	buf := bytebuf.New(frame.MaxFrameSize)
	buf.Write(empty)
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrEmptyString) {
		t.Fatalf("empty string status=%v err=%v", st, r.Err())
	}
	r.Reset()

	long := frame.Encode(frame.PublicMessage{Message: strings.Repeat("x", frame.MaxStringLen+1)})
	buf = bytebuf.New(len(long))
	buf.Write(long)
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrStringTooLong) {
		t.Fatalf("oversized string status=%v err=%v", st, r.Err())
	}
}

func TestOversizedLengthIsErrorNotRefill(t *testing.T) {
	testlog.Start(t)
	r := NewChat()
	buf := bytebuf.New(16)
	hdr := []byte{byte(frame.OpPrivateMessage)}
	hdr = binary.BigEndian.AppendUint32(hdr, 1<<30)
	buf.Write(hdr)
	if st := r.Process(buf); st != Error {
		t.Fatalf("status=%v want error", st)
	}
}

func TestUnknownOpcodeThenRecovers(t *testing.T) {
	testlog.Start(t)
	r := NewChat()
	buf := bytebuf.New(frame.MaxFrameSize)
	buf.Write([]byte{0xFE})
	buf.Write(frame.Encode(frame.PublicMessage{Message: "after"}))
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrUnknownOpcode) {
		t.Fatalf("status=%v err=%v", st, r.Err())
	}
	r.Reset()
	if st := r.Process(buf); st != Done {
		t.Fatalf("recovery status=%v err=%v", st, r.Err())
	}
	if got := r.Get(); got != (frame.PublicMessage{Message: "after"}) {
		t.Fatalf("recovered frame=%#v", got)
	}
}

func TestProcessWithoutResetIsError(t *testing.T) {
	testlog.Start(t)
	r := NewChat()
	buf := loaded(frame.PublicMessage{Message: "one"}, frame.PublicMessage{Message: "two"})
	if st := r.Process(buf); st != Done {
		t.Fatalf("first status=%v", st)
	}
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrNotReset) {
		t.Fatalf("second status=%v err=%v", st, r.Err())
	}
}

func TestConnectRejectsUnknownMode(t *testing.T) {
	testlog.Start(t)
	r := NewChat()
	buf := bytebuf.New(8)
	buf.Write([]byte{byte(frame.OpConnect), 9})
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrConnectMode) {
		t.Fatalf("status=%v err=%v", st, r.Err())
	}
}

func TestChunkLengthBounds(t *testing.T) {
	testlog.Start(t)
	for _, n := range []uint32{0, frame.MaxChunkLen + 1} {
		r := NewChat()
		raw := []byte{byte(frame.OpFileChunk), 0, 0, 0, 1}
		raw = binary.BigEndian.AppendUint32(raw, n)
		buf := bytebuf.New(16)
		buf.Write(raw)
		if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrChunkLength) {
			t.Fatalf("len=%d status=%v err=%v", n, st, r.Err())
		}
	}
}

func TestPrivateAnswerRejectsUnknownFamily(t *testing.T) {
	testlog.Start(t)
	raw := frame.Encode(frame.PrivateAnswer{Code: frame.ReplyAccepted, Login: "b", Addr: netip.MustParseAddr("1.2.3.4")})
	raw[1+1+4+1] = 5
	buf := bytebuf.New(len(raw))
	buf.Write(raw)
	r := NewChat()
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrUnknownIPFamily) {
		t.Fatalf("status=%v err=%v", st, r.Err())
	}
}

// A stream longer than the inbound buffer only decodes if consumed bytes
// are compacted away on every refill.
func TestStreamThroughSmallBufferCompacts(t *testing.T) {
	testlog.Start(t)
	var stream []byte
	var want []frame.Frame
	for i := 0; i < 50; i++ {
		f := frame.PrivateMessage{Message: strings.Repeat("z", 100+i)}
		want = append(want, f)
		stream = append(stream, frame.Encode(f)...)
	}
	buf := bytebuf.New(frame.MaxFrameSize)
	r := NewChat()
	var got []frame.Frame
	for len(stream) > 0 || buf.Len() > 0 {
		n := buf.Write(stream)
		stream = stream[n:]
		for {
			st := r.Process(buf)
			if st == Refill {
				break
			}
			if st == Error {
				t.Fatalf("decode error: %v", r.Err())
			}
			got = append(got, r.Get())
			r.Reset()
		}
		if n == 0 && buf.Free() == 0 {
			t.Fatalf("buffer wedged with %d unread bytes", buf.Len())
		}
		if len(stream) == 0 && buf.Len() == 0 {
			break
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
}

func TestDirectoryReaders(t *testing.T) {
	testlog.Start(t)
	requests := []frame.Frame{
		frame.AuthCheck{ID: 99, Login: "alice", Password: "pw"},
		frame.LoginExists{ID: 100, Login: "bob"},
	}
	r := NewDirectoryRequests()
	buf := loaded(requests...)
	for _, want := range requests {
		if st := r.Process(buf); st != Done {
			t.Fatalf("request status=%v err=%v", st, r.Err())
		}
		if got := r.Get(); got != want {
			t.Fatalf("request got=%#v want=%#v", got, want)
		}
		r.Reset()
	}

	answers := []frame.Frame{
		frame.DirectoryAnswer{ID: 99, Positive: true},
		frame.DirectoryAnswer{ID: 100},
	}
	r = NewDirectoryAnswers()
	buf = loaded(answers...)
	for _, want := range answers {
		if st := r.Process(buf); st != Done {
			t.Fatalf("answer status=%v err=%v", st, r.Err())
		}
		if got := r.Get(); got != want {
			t.Fatalf("answer got=%#v want=%#v", got, want)
		}
		r.Reset()
	}
}

func TestChatReaderRejectsDirectoryOpcodeSpace(t *testing.T) {
	testlog.Start(t)
	r := NewDirectoryAnswers()
	buf := loaded(frame.PrivateAuth{Login: "a", Token: 1})
	if st := r.Process(buf); st != Error || !errors.Is(r.Err(), ErrUnknownOpcode) {
		t.Fatalf("status=%v err=%v", st, r.Err())
	}
}
