package serde

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// ArrayOfStringsSerDe encodes strings as a 4-byte length followed by the
// UTF-8 bytes:
//
//	+-------+---------+-------+---------+
//	| Len_0 | Bytes_0 | Len_1 | Bytes_1 | ...
//	+-------+---------+-------+---------+
//	  4B      Len_0B    4B      Len_1B
type ArrayOfStringsSerDe struct {
	order binary.ByteOrder
}

var _ ArrayOfItemsSerDe[string] = ArrayOfStringsSerDe{}

func NewArrayOfStringsSerDe(order binary.ByteOrder) ArrayOfStringsSerDe {
	return ArrayOfStringsSerDe{order: orderOrDefault(order)}
}

// SerializeToByteArray rejects strings that are not valid UTF-8, since they
// would not survive a round trip through other implementations.
func (s ArrayOfStringsSerDe) SerializeToByteArray(items []string) ([]byte, error) {
	length := 0
	for i, item := range items {
		if !utf8.ValidString(item) {
			return nil, fmt.Errorf("%w: item %d is not valid UTF-8", ErrArgument, i)
		}
		if len(item) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: item %d is too long (%d bytes)", ErrArgument, i, len(item))
		}
		length += 4 + len(item)
	}

	order := orderOrDefault(s.order)
	bytes := make([]byte, length)
	offset := 0
	for _, item := range items {
		order.PutUint32(bytes[offset:], uint32(len(item)))
		offset += 4
		offset += copy(bytes[offset:], item)
	}
	return bytes, nil
}

func (s ArrayOfStringsSerDe) DeserializeFromMemory(mem []byte, length int) ([]string, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrArgument, length)
	}

	order := orderOrDefault(s.order)
	items := make([]string, length)
	offset := 0
	for i := range items {
		if offset+4 > len(mem) {
			return nil, fmt.Errorf("%w: truncated length reading string entry %d", ErrArgument, i)
		}
		n := int(order.Uint32(mem[offset:]))
		offset += 4
		if n < 0 || offset+n > len(mem) {
			return nil, fmt.Errorf("%w: truncated payload reading string entry %d", ErrArgument, i)
		}
		items[i] = string(mem[offset : offset+n])
		offset += n
	}
	return items, nil
}
