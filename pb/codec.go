package pb

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype under which this package's hand-written
// message types travel: "application/grpc+json" instead of the default
// "application/grpc+proto". None of PingRequest, ProveRequest, and friends
// implement proto.Message, so the default proto codec can't marshal them.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements grpc/encoding.Codec over encoding/json. Registering
// it globally (via RegisterCodec in init) makes the gRPC server pick it up
// automatically from the content-type header; clients opt in per call with
// grpc.CallContentSubtype(codecName).
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

// withJSONCodec prepends the json content-subtype to a call's options so it
// is the default, while still letting a caller-supplied CallOption override
// it (grpc applies CallOptions in order, later wins per field).
func withJSONCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
