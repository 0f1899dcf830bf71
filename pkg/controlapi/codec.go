package controlapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec mirrors pkg/workerrpc's codec: plain JSON in place of
// protobuf, registered under the "proto" content-subtype name grpc-go
// falls back to by default. Re-registering under the same name from a
// second package is harmless (both implementations are
// interchangeable; only the last init to run actually takes effect),
// but kept package-local so controlapi carries no import-order
// dependency on workerrpc.
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
