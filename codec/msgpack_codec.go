package codec

import (
	"dsg-rpc/message"

	"github.com/vmihailenco/msgpack/v4"
)

// MsgpackCodec is a compact self-describing alternative to JSON: byte fields stay raw.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.PostObject)
	if !ok {
		return nil, ErrNotPostObject
	}
	return msgpack.Marshal(msg.ToWire())
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.PostObject)
	if !ok {
		return ErrNotPostObject
	}
	var w message.Wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return err
	}
	return msg.FromWire(&w)
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}
