package codec

import (
	"dsg-rpc/message"
	"encoding/json"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Pros: human-readable, easy to debug with a packet capture.
// Cons: byte fields are base64-inflated, so objects grow by a third on the wire.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.PostObject)
	if !ok {
		return nil, ErrNotPostObject
	}
	return json.Marshal(msg.ToWire())
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.PostObject)
	if !ok {
		return ErrNotPostObject
	}
	var w message.Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return msg.FromWire(&w)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
