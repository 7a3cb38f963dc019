package frame

import (
	"encoding/binary"
	"net/netip"
)

const (
	// MaxStringLen bounds every length-prefixed string on the wire.
	MaxStringLen = 1024
	// MaxChunkLen bounds the payload of one file chunk.
	MaxChunkLen = 1024

	stringHeaderLen = 4
	maxStringSize   = stringHeaderLen + MaxStringLen

	// MaxFrameSize is the largest encodable frame (an AuthCheck carrying
	// two maximal strings). Connection buffers must hold at least this.
	MaxFrameSize = 1 + 8 + 2*maxStringSize
)

// Kind separates interactive traffic from bulk file chunks.
type Kind int

const (
	KindChat Kind = iota
	KindChunk
	KindDirectory
)

// Frame is one complete typed protocol message. Size reports the exact
// encoded length without encoding; AppendTo appends the encoding to dst.
type Frame interface {
	Opcode() Opcode
	Kind() Kind
	Size() int
	AppendTo(dst []byte) []byte
}

// Encode returns the wire encoding of f.
func Encode(f Frame) []byte {
	return f.AppendTo(make([]byte, 0, f.Size()))
}

// ValidString reports whether s can be carried as a wire string.
func ValidString(s string) bool {
	return len(s) > 0 && len(s) <= MaxStringLen
}

func stringSize(s string) int {
	return stringHeaderLen + len(s)
}

func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// Connect asks the broker to admit a login, with a password or as a guest.
type Connect struct {
	Login    string
	Password string
	Guest    bool
}

func (Connect) Opcode() Opcode { return OpConnect }
func (Connect) Kind() Kind     { return KindChat }

func (f Connect) Size() int {
	n := 1 + 1 + stringSize(f.Login)
	if !f.Guest {
		n += stringSize(f.Password)
	}
	return n
}

func (f Connect) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(OpConnect))
	if f.Guest {
		dst = append(dst, 1)
		return appendString(dst, f.Login)
	}
	dst = append(dst, 0)
	dst = appendString(dst, f.Login)
	return appendString(dst, f.Password)
}

// ConnectAnswer carries the broker's verdict on a Connect.
type ConnectAnswer struct {
	Code ConnectCode
}

func (ConnectAnswer) Opcode() Opcode { return OpConnectAnswer }
func (ConnectAnswer) Kind() Kind     { return KindChat }
func (ConnectAnswer) Size() int      { return 2 }

func (f ConnectAnswer) AppendTo(dst []byte) []byte {
	return append(dst, byte(OpConnectAnswer), byte(f.Code))
}

// PublicMessage is a client's message for every connected login.
type PublicMessage struct {
	Message string
}

func (PublicMessage) Opcode() Opcode { return OpPublicMessage }
func (PublicMessage) Kind() Kind     { return KindChat }
func (f PublicMessage) Size() int    { return 1 + stringSize(f.Message) }

func (f PublicMessage) AppendTo(dst []byte) []byte {
	return appendString(append(dst, byte(OpPublicMessage)), f.Message)
}

// PublicBroadcast is a public message relayed by the broker.
type PublicBroadcast struct {
	Sender  string
	Message string
}

func (PublicBroadcast) Opcode() Opcode { return OpPublicBroadcast }
func (PublicBroadcast) Kind() Kind     { return KindChat }
func (f PublicBroadcast) Size() int    { return 1 + stringSize(f.Sender) + stringSize(f.Message) }

func (f PublicBroadcast) AppendTo(dst []byte) []byte {
	dst = appendString(append(dst, byte(OpPublicBroadcast)), f.Sender)
	return appendString(dst, f.Message)
}

// PrivateRequest names the target login when sent to the broker and the
// requesting login when forwarded by it.
type PrivateRequest struct {
	Login string
}

func (PrivateRequest) Opcode() Opcode { return OpPrivateRequest }
func (PrivateRequest) Kind() Kind     { return KindChat }
func (f PrivateRequest) Size() int    { return 1 + stringSize(f.Login) }

func (f PrivateRequest) AppendTo(dst []byte) []byte {
	return appendString(append(dst, byte(OpPrivateRequest)), f.Login)
}

// PrivateReply is the addressee's answer to a forwarded request. Port and
// Token are only on the wire when Code is ReplyAccepted.
type PrivateReply struct {
	Code  ReplyCode
	Login string
	Port  uint32
	Token uint32
}

func (PrivateReply) Opcode() Opcode { return OpPrivateReply }
func (PrivateReply) Kind() Kind     { return KindChat }

func (f PrivateReply) Size() int {
	n := 1 + 1 + stringSize(f.Login)
	if f.Code == ReplyAccepted {
		n += 8
	}
	return n
}

func (f PrivateReply) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(OpPrivateReply), byte(f.Code))
	dst = appendString(dst, f.Login)
	if f.Code == ReplyAccepted {
		dst = binary.BigEndian.AppendUint32(dst, f.Port)
		dst = binary.BigEndian.AppendUint32(dst, f.Token)
	}
	return dst
}

// PrivateAnswer is the broker's relay of a PrivateReply to the requester,
// completed with the addressee's address when accepted.
type PrivateAnswer struct {
	Code  ReplyCode
	Login string
	Addr  netip.Addr
	Port  uint32
	Token uint32
}

func (PrivateAnswer) Opcode() Opcode { return OpPrivateAnswer }
func (PrivateAnswer) Kind() Kind     { return KindChat }

func (f PrivateAnswer) Size() int {
	n := 1 + 1 + stringSize(f.Login)
	if f.Code == ReplyAccepted {
		n += 1 + addrLen(f.Addr) + 8
	}
	return n
}

func (f PrivateAnswer) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(OpPrivateAnswer), byte(f.Code))
	dst = appendString(dst, f.Login)
	if f.Code != ReplyAccepted {
		return dst
	}
	addr := wireAddr(f.Addr)
	if addr.Is4() {
		dst = append(dst, 4)
	} else {
		dst = append(dst, 6)
	}
	dst = append(dst, addr.AsSlice()...)
	dst = binary.BigEndian.AppendUint32(dst, f.Port)
	return binary.BigEndian.AppendUint32(dst, f.Token)
}

// AddrPort returns the advertised endpoint of an accepted answer.
func (f PrivateAnswer) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(f.Addr, uint16(f.Port))
}

// wireAddr maps an unset address to 0.0.0.0 so Size and AppendTo agree.
func wireAddr(a netip.Addr) netip.Addr {
	if !a.IsValid() {
		return netip.IPv4Unspecified()
	}
	return a.Unmap()
}

func addrLen(a netip.Addr) int {
	if wireAddr(a).Is4() {
		return 4
	}
	return 16
}

// PrivateAuth opens a private channel: the connecting login and the token
// it was handed by the broker.
type PrivateAuth struct {
	Login string
	Token uint32
}

func (PrivateAuth) Opcode() Opcode { return OpPrivateAuth }
func (PrivateAuth) Kind() Kind     { return KindChat }
func (f PrivateAuth) Size() int    { return 1 + stringSize(f.Login) + 4 }

func (f PrivateAuth) AppendTo(dst []byte) []byte {
	dst = appendString(append(dst, byte(OpPrivateAuth)), f.Login)
	return binary.BigEndian.AppendUint32(dst, f.Token)
}

// PrivateMessage travels only on a private channel.
type PrivateMessage struct {
	Message string
}

func (PrivateMessage) Opcode() Opcode { return OpPrivateMessage }
func (PrivateMessage) Kind() Kind     { return KindChat }
func (f PrivateMessage) Size() int    { return 1 + stringSize(f.Message) }

func (f PrivateMessage) AppendTo(dst []byte) []byte {
	return appendString(append(dst, byte(OpPrivateMessage)), f.Message)
}

// FileInit announces a transfer before its first chunk.
type FileInit struct {
	Name   string
	Length uint32
	FileID uint32
}

func (FileInit) Opcode() Opcode { return OpFileInit }
func (FileInit) Kind() Kind     { return KindChat }
func (f FileInit) Size() int    { return 1 + stringSize(f.Name) + 8 }

func (f FileInit) AppendTo(dst []byte) []byte {
	dst = appendString(append(dst, byte(OpFileInit)), f.Name)
	dst = binary.BigEndian.AppendUint32(dst, f.Length)
	return binary.BigEndian.AppendUint32(dst, f.FileID)
}

// FileChunk carries up to MaxChunkLen bytes of one transfer.
type FileChunk struct {
	FileID uint32
	Data   []byte
}

func (FileChunk) Opcode() Opcode { return OpFileChunk }
func (FileChunk) Kind() Kind     { return KindChunk }
func (f FileChunk) Size() int    { return 1 + 4 + 4 + len(f.Data) }

func (f FileChunk) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(OpFileChunk))
	dst = binary.BigEndian.AppendUint32(dst, f.FileID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Data)))
	return append(dst, f.Data...)
}

// Info is a human-readable notice, also used to report rejected frames.
type Info struct {
	Code    InfoCode
	Message string
}

func (Info) Opcode() Opcode { return OpInfo }
func (Info) Kind() Kind     { return KindChat }
func (f Info) Size() int    { return 1 + 1 + stringSize(f.Message) }

func (f Info) AppendTo(dst []byte) []byte {
	return appendString(append(dst, byte(OpInfo), byte(f.Code)), f.Message)
}

// IsChunk reports whether f is bulk file data.
func IsChunk(f Frame) bool {
	return f.Kind() == KindChunk
}
