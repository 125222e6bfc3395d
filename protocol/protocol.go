// Package protocol implements the binary frame protocol spoken between a dec app and
// its router.
//
// A frame is a fixed 14-byte header followed by a body of the length the header
// announces, so the reader never has to guess where one post ends:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ dsg  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// All integers are big-endian.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MagicNumber byte = 0x64 // 'd'
	MagicByte2  byte = 0x73 // 's'
	MagicByte3  byte = 0x67 // 'g'
	Version     byte = 0x01
	HeaderSize  int  = 14

	// MaxBodyLen caps a single frame body.
	MaxBodyLen uint32 = 16 * 1024 * 1024
)

type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // dec app → router post
	MsgTypeResponse  MsgType = 1 // router → dec app reply
	MsgTypeHeartbeat MsgType = 2 // keepalive, no body
)

// Codec ids as carried in the header. The codec package owns the implementations;
// these are duplicated here so protocol stays a leaf package.
const (
	CodecTypeJSON    byte = 0
	CodecTypeBinary  byte = 1
	CodecTypeMsgpack byte = 2
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic number")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnsupportedCodec   = errors.New("protocol: unsupported codec type")
	ErrUnsupportedMsgType = errors.New("protocol: unsupported message type")
	ErrBodyTooLarge       = errors.New("protocol: body too large")
	ErrBodyLenMismatch    = errors.New("protocol: header body length does not match body")
)

// Header is the fixed part of a frame.
type Header struct {
	CodecType byte
	MsgType   MsgType
	Seq       uint32 // pairs a reply with its request on a shared connection
	BodyLen   uint32
}

// put writes h into the first HeaderSize bytes of buf.
func (h *Header) put(buf []byte) {
	buf[0], buf[1], buf[2] = MagicNumber, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
}

// ParseHeader validates a raw header and returns its fields.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("protocol: short header: %d bytes: %w", len(buf), io.ErrUnexpectedEOF)
	}
	if buf[0] != MagicNumber || buf[1] != MagicByte2 || buf[2] != MagicByte3 {
		return Header{}, fmt.Errorf("%w: %x", ErrInvalidMagic, buf[0:3])
	}
	if buf[3] != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, buf[3])
	}
	if buf[4] > CodecTypeMsgpack {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedCodec, buf[4])
	}
	if buf[5] > byte(MsgTypeHeartbeat) {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedMsgType, buf[5])
	}
	h := Header{
		CodecType: buf[4],
		MsgType:   MsgType(buf[5]),
		Seq:       binary.BigEndian.Uint32(buf[6:10]),
		BodyLen:   binary.BigEndian.Uint32(buf[10:14]),
	}
	if h.BodyLen > MaxBodyLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.BodyLen)
	}
	return h, nil
}

// Encode writes one frame to w with a single Write call. Writers shared between
// goroutines still need a lock so frames do not interleave.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	if h.BodyLen != uint32(len(body)) {
		return fmt.Errorf("%w: header %d, body %d", ErrBodyLenMismatch, h.BodyLen, len(body))
	}

	frame := make([]byte, HeaderSize+len(body))
	h.put(frame)
	copy(frame[HeaderSize:], body)
	_, err := w.Write(frame)
	return err
}

// Decode reads one frame from r. A stream that ends inside a frame yields
// io.ErrUnexpectedEOF; a stream that ends between frames yields io.EOF.
func Decode(r io.Reader) (*Header, []byte, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, nil, err
	}
	h, err := ParseHeader(raw[:])
	if err != nil {
		return nil, nil, err
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return &h, body, nil
}
