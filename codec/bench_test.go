package codec

import (
	"dsg-rpc/message"
	"dsg-rpc/object"
	"testing"
)

func benchmarkCodec(b *testing.B, t CodecType) {
	cdc := GetCodec(t)
	msg := &message.PostObject{
		ReqPath:  "dsg_local_commands",
		DecID:    object.ID{0xdc},
		Level:    message.LevelRouter,
		ObjectID: object.ID{0x01, 0x02},
		Object:   make([]byte, object.HeaderSize+64),
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := cdc.Encode(msg)
		if err != nil {
			b.Fatal(err)
		}
		var out message.PostObject
		if err := cdc.Decode(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecJSON(b *testing.B)    { benchmarkCodec(b, CodecTypeJSON) }
func BenchmarkCodecBinary(b *testing.B)  { benchmarkCodec(b, CodecTypeBinary) }
func BenchmarkCodecMsgpack(b *testing.B) { benchmarkCodec(b, CodecTypeMsgpack) }
