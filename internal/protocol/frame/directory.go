package frame

import "encoding/binary"

// AuthCheck asks the directory whether login/password is registered.
type AuthCheck struct {
	ID       uint64
	Login    string
	Password string
}

func (AuthCheck) Opcode() Opcode { return OpAuthCheck }
func (AuthCheck) Kind() Kind     { return KindDirectory }
func (f AuthCheck) Size() int    { return 1 + 8 + stringSize(f.Login) + stringSize(f.Password) }

func (f AuthCheck) AppendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint64(append(dst, byte(OpAuthCheck)), f.ID)
	dst = appendString(dst, f.Login)
	return appendString(dst, f.Password)
}

// LoginExists asks the directory whether login is registered at all.
type LoginExists struct {
	ID    uint64
	Login string
}

func (LoginExists) Opcode() Opcode { return OpLoginExists }
func (LoginExists) Kind() Kind     { return KindDirectory }
func (f LoginExists) Size() int    { return 1 + 8 + stringSize(f.Login) }

func (f LoginExists) AppendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint64(append(dst, byte(OpLoginExists)), f.ID)
	return appendString(dst, f.Login)
}

// DirectoryAnswer answers either request for the correlation id ID.
type DirectoryAnswer struct {
	ID       uint64
	Positive bool
}

func (f DirectoryAnswer) Opcode() Opcode {
	if f.Positive {
		return OpDirectoryPositive
	}
	return OpDirectoryNegative
}

func (DirectoryAnswer) Kind() Kind { return KindDirectory }
func (DirectoryAnswer) Size() int  { return 1 + 8 }

func (f DirectoryAnswer) AppendTo(dst []byte) []byte {
	return binary.BigEndian.AppendUint64(append(dst, byte(f.Opcode())), f.ID)
}
