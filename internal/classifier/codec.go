package classifier

import "encoding/json"

// jsonCodec lets the classifier bridge speak gRPC without a protoc-compiled
// message set: the external market-state worker is a small, independently
// evolving service, so a plain JSON payload over gRPC's HTTP/2 transport is
// a lighter fit than full protobuf codegen for this one bridge.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
