package workerrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec replaces grpc-go's built-in "proto" codec with plain JSON
// marshaling. It registers under the name "proto" (rather than a
// distinct content-subtype) because grpc-go falls back to that codec
// name whenever a call sets no explicit CallContentSubtype, so every
// client/server in this package gets it without extra wiring. This
// stands in for protoc-generated Marshal/Unmarshal on types that are
// plain Go structs, not protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "proto" }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
