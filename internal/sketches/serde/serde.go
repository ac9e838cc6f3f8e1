// Package serde serializes arrays of items into compact byte streams.
//
// Sketches that carry per-key payloads (summaries, item lists) do not know
// how to encode those payloads themselves. They delegate to an
// ArrayOfItemsSerDe, which turns a slice of items into bytes and back. The
// caller is responsible for remembering how many items were written; the
// byte stream itself carries no count.
//
// Byte Order
// ==========
//
// Multi-byte fields are written in the byte order configured on the SerDe.
// Little endian is the default. When the payload is embedded in a sketch
// whose preamble declares IS_BIG_ENDIAN, the SerDe must be built with
// binary.BigEndian so that both halves of the image agree.
package serde

import (
	"encoding/binary"
	"errors"
)

// ErrArgument is returned for items that cannot be encoded and for byte
// streams that cannot be decoded. The wrapped message always names the
// offending element index.
var ErrArgument = errors.New("serde: invalid argument")

// ArrayOfItemsSerDe is implemented by every array codec in this package.
type ArrayOfItemsSerDe[T any] interface {
	// SerializeToByteArray encodes items in order into a freshly allocated
	// slice of exactly the required size.
	SerializeToByteArray(items []T) ([]byte, error)

	// DeserializeFromMemory decodes exactly length items starting at the
	// beginning of mem.
	DeserializeFromMemory(mem []byte, length int) ([]T, error)
}

// orderOrDefault returns order, or little endian when order is nil.
func orderOrDefault(order binary.ByteOrder) binary.ByteOrder {
	if order == nil {
		return binary.LittleEndian
	}
	return order
}
