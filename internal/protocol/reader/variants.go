package reader

import (
	"fmt"
	"net/netip"

	"github.com/danmuck/chathack/internal/protocol/bytebuf"
	"github.com/danmuck/chathack/internal/protocol/frame"
)

func connectParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var (
			mode uint8
			f    frame.Connect
		)
		checkMode := func(*bytebuf.Buffer) (bool, error) {
			if mode > 1 {
				return false, fmt.Errorf("%w: %d", ErrConnectMode, mode)
			}
			f.Guest = mode == 1
			return true, nil
		}
		steps := []step{
			readU8(&mode),
			checkMode,
			readString(&f.Login),
			when(func() bool { return !f.Guest }, readString(&f.Password)),
		}
		return steps, func() frame.Frame {
			return f
		}
	})
}

func connectAnswerParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var code uint8
		return []step{readU8(&code)}, func() frame.Frame {
			return frame.ConnectAnswer{Code: frame.ConnectCode(code)}
		}
	})
}

func publicMessageParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.PublicMessage
		return []step{readString(&f.Message)}, func() frame.Frame { return f }
	})
}

func publicBroadcastParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.PublicBroadcast
		return []step{readString(&f.Sender), readString(&f.Message)}, func() frame.Frame { return f }
	})
}

func privateRequestParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.PrivateRequest
		return []step{readString(&f.Login)}, func() frame.Frame { return f }
	})
}

func privateReplyParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var (
			code uint8
			f    frame.PrivateReply
		)
		accepted := func() bool { return frame.ReplyCode(code) == frame.ReplyAccepted }
		steps := []step{
			readU8(&code),
			readString(&f.Login),
			when(accepted, readU32(&f.Port)),
			when(accepted, readU32(&f.Token)),
		}
		return steps, func() frame.Frame {
			f.Code = frame.ReplyCode(code)
			return f
		}
	})
}

func privateAnswerParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var (
			code   uint8
			family uint8
			ip     []byte
			f      frame.PrivateAnswer
		)
		accepted := func() bool { return frame.ReplyCode(code) == frame.ReplyAccepted }
		readIP := func(buf *bytebuf.Buffer) (bool, error) {
			var n int
			switch family {
			case 4:
				n = 4
			case 6:
				n = 16
			default:
				return false, fmt.Errorf("%w: %d", ErrUnknownIPFamily, family)
			}
			take := min(n-len(ip), buf.Len())
			ip = append(ip, buf.Next(take)...)
			if len(ip) < n {
				return false, nil
			}
			f.Addr, _ = netip.AddrFromSlice(ip)
			return true, nil
		}
		steps := []step{
			readU8(&code),
			readString(&f.Login),
			when(accepted, readU8(&family)),
			when(accepted, readIP),
			when(accepted, readU32(&f.Port)),
			when(accepted, readU32(&f.Token)),
		}
		return steps, func() frame.Frame {
			f.Code = frame.ReplyCode(code)
			return f
		}
	})
}

func privateAuthParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.PrivateAuth
		return []step{readString(&f.Login), readU32(&f.Token)}, func() frame.Frame { return f }
	})
}

func privateMessageParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.PrivateMessage
		return []step{readString(&f.Message)}, func() frame.Frame { return f }
	})
}

func fileInitParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.FileInit
		steps := []step{
			readString(&f.Name),
			readU32(&f.Length),
			readU32(&f.FileID),
		}
		return steps, func() frame.Frame {
			return f
		}
	})
}

func fileChunkParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.FileChunk
		return []step{readU32(&f.FileID), readChunk(&f.Data)}, func() frame.Frame { return f }
	})
}

func infoParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var (
			code uint8
			f    frame.Info
		)
		return []step{readU8(&code), readString(&f.Message)}, func() frame.Frame {
			f.Code = frame.InfoCode(code)
			return f
		}
	})
}

func authCheckParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.AuthCheck
		steps := []step{
			readU64(&f.ID),
			readString(&f.Login),
			readString(&f.Password),
		}
		return steps, func() frame.Frame {
			return f
		}
	})
}

func loginExistsParser() *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		var f frame.LoginExists
		return []step{readU64(&f.ID), readString(&f.Login)}, func() frame.Frame { return f }
	})
}

func directoryAnswerParser(positive bool) *parser {
	return newParser(func() ([]step, func() frame.Frame) {
		f := frame.DirectoryAnswer{Positive: positive}
		return []step{readU64(&f.ID)}, func() frame.Frame { return f }
	})
}
