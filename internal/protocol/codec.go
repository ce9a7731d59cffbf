package protocol

import (
	"encoding/binary"
	"errors"
)

// maxFrameBytes bounds a single argument's declared length. Without a
// ceiling, a corrupt length field would stall the decoder forever waiting
// for bytes that will never arrive. Anything beyond this is Malformed
// instead.
const maxFrameBytes = 64 << 20 // 64MiB

// ErrMalformed is the sentinel for a frame whose header declares an
// argument length that can never be satisfied. Decode itself reports that
// case as the Malformed result; callers that need an error wrap this one.
var ErrMalformed = errors.New("protocol: malformed frame")

// Result classifies the outcome of a Decode attempt.
type Result int

const (
	// Decoded means a complete message was parsed from the front of the
	// buffer; Consumed bytes should be dropped by the caller.
	Decoded Result = iota
	// Incomplete means not enough bytes are present yet; the caller should
	// keep the buffer as-is and retry once more bytes arrive.
	Incomplete
	// Malformed means the buffer can never produce a valid message at this
	// prefix (e.g. arg_len exceeds maxFrameBytes). The caller should treat
	// this as a protocol violation.
	Malformed
)

// Encode appends the wire representation of msg to dst and returns the
// extended slice. Layout (little-endian):
//
//	u8   type
//	u8   nargs
//	repeat nargs times:
//	  u32  arg_len
//	  u8[arg_len] arg_bytes
func Encode(dst []byte, msg Message) []byte {
	dst = append(dst, byte(msg.Type), byte(len(msg.Args)))
	var lenBuf [4]byte
	for _, arg := range msg.Args {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(arg)))
		dst = append(dst, lenBuf[:]...)
		dst = append(dst, arg...)
	}
	return dst
}

// Decode attempts to parse one complete message from the front of buf. It
// never mutates buf; the caller is responsible for dropping the consumed
// prefix when Result is Decoded. On Incomplete or Malformed, consumed and
// msg are zero-valued and should be ignored.
func Decode(buf []byte) (msg Message, consumed int, result Result) {
	if len(buf) < 2 {
		return Message{}, 0, Incomplete
	}

	msgType := Type(buf[0])
	nargs := int(buf[1])
	pos := 2

	args := make([][]byte, 0, nargs)
	for i := 0; i < nargs; i++ {
		if pos+4 > len(buf) {
			return Message{}, 0, Incomplete
		}
		argLen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
		if argLen < 0 || argLen > maxFrameBytes {
			return Message{}, 0, Malformed
		}
		pos += 4
		if pos+argLen > len(buf) {
			return Message{}, 0, Incomplete
		}
		arg := make([]byte, argLen)
		copy(arg, buf[pos:pos+argLen])
		args = append(args, arg)
		pos += argLen
	}

	return Message{Type: msgType, Args: args}, pos, Decoded
}
