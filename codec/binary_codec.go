package codec

import (
	"dsg-rpc/message"
	"dsg-rpc/object"
	"encoding/binary"
	"math"
)

// BinaryCodec lays PostObject out as fixed ids plus length-prefixed variable fields:
//
//	reqPathLen u16 | reqPath | decID 32 | level u8 | hasTarget u8 | [target 32] |
//	objectID 32 | objectLen u32 | object | errLen u16 | err
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	// v must be *PostObject
	msg, ok := v.(*message.PostObject)
	if !ok {
		return nil, ErrNotPostObject
	}
	if len(msg.ReqPath) > math.MaxUint16 || len(msg.Error) > math.MaxUint16 || uint64(len(msg.Object)) > math.MaxUint32 {
		return nil, ErrFieldTooLong
	}
	target, hasTarget := msg.Target.Get()

	// Calculate the length of message
	total := 2 + len(msg.ReqPath) + object.IDLen + 1 + 1 + object.IDLen + 4 + len(msg.Object) + 2 + len(msg.Error)
	if hasTarget {
		total += object.IDLen
	}
	buf := make([]byte, total)

	offset := 0
	// ReqPath length -- 2 bytes, ReqPath -- n bytes
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.ReqPath)))
	offset += 2
	offset += copy(buf[offset:], msg.ReqPath)

	// DecID -- 32 bytes
	offset += copy(buf[offset:], msg.DecID[:])

	// Level -- 1 byte
	buf[offset] = byte(msg.Level)
	offset++

	// Target flag -- 1 byte, Target -- 32 bytes when set
	if hasTarget {
		buf[offset] = 1
		offset++
		offset += copy(buf[offset:], target[:])
	} else {
		offset++
	}

	// ObjectID -- 32 bytes
	offset += copy(buf[offset:], msg.ObjectID[:])

	// Object length -- 4 bytes, Object -- n bytes
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Object)))
	offset += 4
	offset += copy(buf[offset:], msg.Object)

	// Error length -- 2 bytes, Error -- n bytes
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Error)))
	offset += 2
	copy(buf[offset:], msg.Error)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	// v must be *PostObject
	msg, ok := v.(*message.PostObject)
	if !ok {
		return ErrNotPostObject
	}
	r := reader{data: data}

	*msg = message.PostObject{}
	msg.ReqPath = string(r.next(int(r.u16())))
	copy(msg.DecID[:], r.next(object.IDLen))
	msg.Level = message.Level(r.u8())
	if r.u8() == 1 {
		var target object.ID
		copy(target[:], r.next(object.IDLen))
		msg.Target = message.TargetDevice(target)
	}
	copy(msg.ObjectID[:], r.next(object.IDLen))
	if n := r.u32(); n > 0 {
		msg.Object = append([]byte(nil), r.next(int(n))...)
	}
	msg.Error = string(r.next(int(r.u16())))

	if r.short {
		return ErrTruncated
	}
	if r.off != len(data) {
		return ErrTrailingData
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// reader walks a buffer and remembers whether any read ran past the end,
// so Decode checks bounds once instead of after every field.
type reader struct {
	data  []byte
	off   int
	short bool
}

func (r *reader) next(n int) []byte {
	if r.short || n < 0 || len(r.data)-r.off < n {
		r.short = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
