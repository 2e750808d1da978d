package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec replaces grpc-go's built-in "proto" codec with a JSON one.
// The retrieved corpus carries no .proto-derived generated Go (no
// *.pb.go ships alongside any example, teacher included), so rather
// than hand-write brittle protobuf-runtime plumbing this server wires
// google.golang.org/grpc's own pluggable codec to marshal the plain Go
// structs in messages.go directly. shardvm.proto documents the wire
// shape for anyone regenerating a stub client against it; this codec
// just means the server itself doesn't need one.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
