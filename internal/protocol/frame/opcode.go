package frame

import "fmt"

// Opcode is the leading byte selecting a frame variant.
type Opcode byte

// Chat link opcodes, shared by broker and private channels.
const (
	OpConnect         Opcode = 0x00
	OpPublicMessage   Opcode = 0x01
	OpPrivateRequest  Opcode = 0x02
	OpPrivateReply    Opcode = 0x03
	OpPrivateAuth     Opcode = 0x04
	OpPrivateMessage  Opcode = 0x05
	OpFileInit        Opcode = 0x06
	OpFileChunk       Opcode = 0x07
	OpConnectAnswer   Opcode = 0x08
	OpPublicBroadcast Opcode = 0x09
	OpPrivateAnswer   Opcode = 0x0A
	OpInfo            Opcode = 0x0B
)

// Directory link opcodes. Requests and answers travel in opposite
// directions, so the answer opcodes may reuse request values.
const (
	OpDirectoryNegative Opcode = 0x00
	OpDirectoryPositive Opcode = 0x01
	OpAuthCheck         Opcode = 0x01
	OpLoginExists       Opcode = 0x02
)

var opcodeNames = map[Opcode]string{
	OpConnect:         "connect",
	OpPublicMessage:   "public_message",
	OpPrivateRequest:  "private_request",
	OpPrivateReply:    "private_reply",
	OpPrivateAuth:     "private_auth",
	OpPrivateMessage:  "private_message",
	OpFileInit:        "file_init",
	OpFileChunk:       "file_chunk",
	OpConnectAnswer:   "connect_answer",
	OpPublicBroadcast: "public_broadcast",
	OpPrivateAnswer:   "private_answer",
	OpInfo:            "info",
}

// String names chat link opcodes; directory opcodes overlap and are
// named by the frame Kind instead.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", byte(o))
}

// ConnectCode is the broker's answer to a connect attempt.
type ConnectCode uint8

const (
	ConnectAccepted     ConnectCode = 0
	ConnectInvalid      ConnectCode = 1
	ConnectLoginInUse   ConnectCode = 2
	ConnectNotAccepting ConnectCode = 3
)

func (c ConnectCode) String() string {
	switch c {
	case ConnectAccepted:
		return "accepted"
	case ConnectInvalid:
		return "invalid credentials"
	case ConnectLoginInUse:
		return "login already in use"
	case ConnectNotAccepting:
		return "not accepting new clients"
	default:
		return fmt.Sprintf("connect_code(%d)", uint8(c))
	}
}

// ReplyCode is the outcome of a private channel request.
type ReplyCode uint8

const (
	ReplyAccepted         ReplyCode = 0
	ReplyRefused          ReplyCode = 1
	ReplyUnknownRecipient ReplyCode = 2
)

func (c ReplyCode) String() string {
	switch c {
	case ReplyAccepted:
		return "accepted"
	case ReplyRefused:
		return "refused"
	case ReplyUnknownRecipient:
		return "unknown recipient"
	default:
		return fmt.Sprintf("reply_code(%d)", uint8(c))
	}
}

// InfoCode classifies informational notices.
type InfoCode uint8

const (
	InfoNotice           InfoCode = 0
	InfoInvalidFrame     InfoCode = 1
	InfoNotAuthenticated InfoCode = 2
	InfoUnexpectedFrame  InfoCode = 3
)
