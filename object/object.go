// Package object implements the self-describing binary object exchanged between a dec
// app and a device.
//
// An object is a descriptor (who created it, who it is for, what it means, and a hash of
// the body) followed by the body itself. The object id is the hash of the descriptor, so
// it commits to the body through ContentHash without hashing the body twice.
//
// Wire format (big-endian):
//
//	0     3  4        8      10        42        74   76           108      112
//	┌─────┬──┬────────┬──────┬─────────┬─────────┬────┬────────────┬────────┬─────────────┐
//	│magic│v │totalLen│ code │ creator │  owner  │type│contentHash │bodyLen │ body ...    │
//	│ dso │01│ uint32 │uint16│ 32 bytes│ 32 bytes│u16 │  32 bytes  │ uint32 │ bodyLen     │
//	└─────┴──┴────────┴──────┴─────────┴─────────┴────┴────────────┴────────┴─────────────┘
//	               └──────────────── descriptor (hashed → ID) ─────┘
package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	MagicByte1 byte = 0x64 // 'd'
	MagicByte2 byte = 0x73 // 's'
	MagicByte3 byte = 0x6f // 'o'
	Version    byte = 0x01

	// JSONObjectCode is the named-object type code of a JSON command object.
	JSONObjectCode uint16 = 50001

	descOffset = 8
	descLen    = 2 + IDLen + IDLen + 2 + IDLen // code + creator + owner + type + content hash
	HeaderSize = descOffset + descLen + 4     // 112

	// MaxBodyLen bounds a single body so a corrupt length cannot force a huge allocation.
	MaxBodyLen = 8 * 1024 * 1024
)

// ObjType is the discriminator selecting what a body means. On the wire it is a u16;
// the wider Go type lets Encode reject values callers computed out of range.
type ObjType int

const MaxObjType ObjType = 0xFFFF

// Valid reports whether t fits the wire discriminator.
func (t ObjType) Valid() bool {
	return t >= 0 && t <= MaxObjType
}

// Desc is the part of an object the id is derived from.
type Desc struct {
	Code        uint16
	Creator     ID
	Owner       ID
	Type        ObjType
	ContentHash ID
}

func (d *Desc) encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], d.Code)
	off := 2
	off += copy(buf[off:], d.Creator[:])
	off += copy(buf[off:], d.Owner[:])
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(d.Type))
	off += 2
	copy(buf[off:], d.ContentHash[:])
}

func (d *Desc) decode(buf []byte) {
	d.Code = binary.BigEndian.Uint16(buf[0:2])
	off := 2
	off += copy(d.Creator[:], buf[off:off+IDLen])
	off += copy(d.Owner[:], buf[off:off+IDLen])
	d.Type = ObjType(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	copy(d.ContentHash[:], buf[off:off+IDLen])
}

// Object is an immutable, decoded or freshly built envelope.
type Object struct {
	Desc Desc
	ID   ID
	body []byte
}

// Type returns the discriminator.
func (o *Object) Type() ObjType { return o.Desc.Type }

// Creator returns the authoring dec id.
func (o *Object) Creator() ID { return o.Desc.Creator }

// Owner returns the device id the object is addressed to.
func (o *Object) Owner() ID { return o.Desc.Owner }

// Body returns a copy of the body bytes.
func (o *Object) Body() []byte {
	return bytes.Clone(o.body)
}

// BodyLen returns the body length without copying.
func (o *Object) BodyLen() int { return len(o.body) }

// RawMeasure returns the exact number of bytes RawEncode writes.
func (o *Object) RawMeasure() int {
	return HeaderSize + len(o.body)
}

// RawEncode writes the object into buf, which must be at least RawMeasure bytes,
// and returns the number of bytes written.
func (o *Object) RawEncode(buf []byte) (int, error) {
	total := o.RawMeasure()
	if len(buf) < total {
		return 0, ErrShortBuffer
	}

	// Magic + version
	buf[0], buf[1], buf[2], buf[3] = MagicByte1, MagicByte2, MagicByte3, Version
	// Total length lets Decode reject truncated or padded buffers up front
	binary.BigEndian.PutUint32(buf[4:8], uint32(total))
	// Descriptor
	o.Desc.encode(buf[descOffset : descOffset+descLen])
	// Body length + body
	binary.BigEndian.PutUint32(buf[descOffset+descLen:HeaderSize], uint32(len(o.body)))
	n := HeaderSize + copy(buf[HeaderSize:], o.body)
	return n, nil
}

// Codec builds, encodes and decodes objects with a fixed Hasher.
// It has no mutable state and is safe for concurrent use.
type Codec struct {
	hasher Hasher
}

// NewCodec returns a codec using h, or DefaultHasher when h is nil.
func NewCodec(h Hasher) *Codec {
	if h == nil {
		h = DefaultHasher
	}
	return &Codec{hasher: h}
}

// Hasher returns the id function of this codec.
func (c *Codec) Hasher() Hasher { return c.hasher }

// New builds an object and derives its id.
func (c *Codec) New(creator, owner ID, objType ObjType, body []byte) (*Object, error) {
	if !objType.Valid() {
		return nil, encodeErr(fmt.Errorf("%w: %d", ErrObjTypeRange, objType))
	}
	if len(body) > MaxBodyLen {
		return nil, encodeErr(fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body)))
	}

	contentHash, err := c.hasher.Sum(body)
	if err != nil {
		return nil, encodeErr(err)
	}
	obj := &Object{
		Desc: Desc{
			Code:        JSONObjectCode,
			Creator:     creator,
			Owner:       owner,
			Type:        objType,
			ContentHash: contentHash,
		},
		body: bytes.Clone(body),
	}
	if obj.ID, err = c.descID(&obj.Desc); err != nil {
		return nil, encodeErr(err)
	}
	return obj, nil
}

// Encode builds the object and serializes it in one step.
func (c *Codec) Encode(creator, owner ID, objType ObjType, body []byte) (ID, []byte, error) {
	obj, err := c.New(creator, owner, objType, body)
	if err != nil {
		return ZeroID, nil, err
	}
	data, err := c.Marshal(obj)
	if err != nil {
		return ZeroID, nil, err
	}
	return obj.ID, data, nil
}

// Marshal measures obj, encodes it into a buffer of exactly that size and checks
// that the encoder filled it.
func (c *Codec) Marshal(obj *Object) ([]byte, error) {
	size := obj.RawMeasure()
	buf := make([]byte, size)
	n, err := obj.RawEncode(buf)
	if err != nil {
		return nil, encodeErr(err)
	}
	if n != size {
		return nil, encodeErr(fmt.Errorf("%w: measured %d, wrote %d", ErrSizeMismatch, size, n))
	}
	return buf, nil
}

// Decode parses data, which must hold exactly one object, and verifies the body
// against the descriptor's content hash.
func (c *Codec) Decode(data []byte) (*Object, error) {
	// Step 1: fixed header must be present
	if len(data) < HeaderSize {
		return nil, decodeErr(fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, len(data), HeaderSize))
	}

	// Step 2: magic + version
	if data[0] != MagicByte1 || data[1] != MagicByte2 || data[2] != MagicByte3 {
		return nil, decodeErr(fmt.Errorf("%w: %x", ErrInvalidMagic, data[0:3]))
	}
	if data[3] != Version {
		return nil, decodeErr(fmt.Errorf("%w: %d", ErrUnsupportedVer, data[3]))
	}

	// Step 3: self-declared length must match the buffer exactly
	total := binary.BigEndian.Uint32(data[4:8])
	if uint64(total) != uint64(len(data)) {
		if uint64(total) > uint64(len(data)) {
			return nil, decodeErr(fmt.Errorf("%w: declared %d, have %d", ErrTruncated, total, len(data)))
		}
		return nil, decodeErr(fmt.Errorf("%w: declared %d, have %d", ErrLengthMismatch, total, len(data)))
	}

	// Step 4: descriptor
	obj := &Object{}
	obj.Desc.decode(data[descOffset : descOffset+descLen])
	if obj.Desc.Code != JSONObjectCode {
		return nil, decodeErr(fmt.Errorf("%w: %d", ErrUnknownObjectCode, obj.Desc.Code))
	}

	// Step 5: body length must account for every remaining byte
	bodyLen := binary.BigEndian.Uint32(data[descOffset+descLen : HeaderSize])
	if bodyLen > MaxBodyLen {
		return nil, decodeErr(fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, bodyLen))
	}
	if uint64(bodyLen) != uint64(len(data)-HeaderSize) {
		return nil, decodeErr(fmt.Errorf("%w: body declares %d, have %d", ErrLengthMismatch, bodyLen, len(data)-HeaderSize))
	}
	obj.body = bytes.Clone(data[HeaderSize:])

	// Step 6: body integrity + id
	contentHash, err := c.hasher.Sum(obj.body)
	if err != nil {
		return nil, decodeErr(err)
	}
	if contentHash != obj.Desc.ContentHash {
		return nil, decodeErr(ErrBodyHashMismatch)
	}
	if obj.ID, err = c.descID(&obj.Desc); err != nil {
		return nil, decodeErr(err)
	}
	return obj, nil
}

// CalculateID recomputes the id of a descriptor.
func (c *Codec) CalculateID(d *Desc) (ID, error) {
	return c.descID(d)
}

func (c *Codec) descID(d *Desc) (ID, error) {
	var buf [descLen]byte
	d.encode(buf[:])
	return c.hasher.Sum(buf[:])
}
