package protocol

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which Codec is registered.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec frames protocol messages as JSON, on the gRPC stream and the channel port alike.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
