package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf stores proto messages as settings, e.g. a chain head record shared
// with an RPC layer. Marshalling is deterministic.
type Protobuf[T proto.Message] struct {
	alloc func() T
}

// NewProtobuf takes a constructor for empty messages, e.g.
// func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} }.
func NewProtobuf[T proto.Message](alloc func() T) Protobuf[T] {
	return Protobuf[T]{alloc: alloc}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.alloc == nil {
		var zero T
		return zero, errors.New("codec: protobuf codec built without NewProtobuf")
	}
	m := c.alloc()
	return m, proto.Unmarshal(b, m)
}
