package serde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind identifies the primitive type of a Number. Its value is the tag byte
// written in front of every encoded element.
//
// Tags are the first ASCII letter of the Java boxed type name masked with
// 0x8F. Only 3 bits would be needed to tell six kinds apart, but a whole
// byte keeps every payload byte aligned. The masked letters are distinct:
//
//	+--------+--------+------+---------+
//	| Letter | ASCII  | Tag  | Payload |
//	+--------+--------+------+---------+
//	| L      | 0x4C   | 0x0C | 8 bytes |
//	| I      | 0x49   | 0x09 | 4 bytes |
//	| S      | 0x53   | 0x03 | 2 bytes |
//	| B      | 0x42   | 0x02 | 1 byte  |
//	| D      | 0x44   | 0x04 | 8 bytes |
//	| F      | 0x46   | 0x06 | 4 bytes |
//	| N      | 0x4E   | 0x0E | none    |
//	+--------+--------+------+---------+
//
// The N (null) tag is reserved. It is never written and is rejected when
// read.
type Kind byte

const (
	KindInt64   Kind = 'L' & 0x8F
	KindInt32   Kind = 'I' & 0x8F
	KindInt16   Kind = 'S' & 0x8F
	KindInt8    Kind = 'B' & 0x8F
	KindFloat64 Kind = 'D' & 0x8F
	KindFloat32 Kind = 'F' & 0x8F

	kindNull Kind = 'N' & 0x8F
)

// Size returns the payload width in bytes, not counting the tag. It returns
// 0 for unknown kinds.
func (k Kind) Size() int {
	switch k {
	case KindInt64, KindFloat64:
		return 8
	case KindInt32, KindFloat32:
		return 4
	case KindInt16:
		return 2
	case KindInt8:
		return 1
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindInt32:
		return "int32"
	case KindInt16:
		return "int16"
	case KindInt8:
		return "int8"
	case KindFloat64:
		return "float64"
	case KindFloat32:
		return "float32"
	case kindNull:
		return "null"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Number is a boxed numeric value of one of the six supported kinds. The
// set of implementations is closed: Int64, Int32, Int16, Int8, Float64 and
// Float32. A nil Number stands for a null element.
type Number interface {
	Kind() Kind
	number()
}

type (
	Int64   int64
	Int32   int32
	Int16   int16
	Int8    int8
	Float64 float64
	Float32 float32
)

func (Int64) Kind() Kind   { return KindInt64 }
func (Int32) Kind() Kind   { return KindInt32 }
func (Int16) Kind() Kind   { return KindInt16 }
func (Int8) Kind() Kind    { return KindInt8 }
func (Float64) Kind() Kind { return KindFloat64 }
func (Float32) Kind() Kind { return KindFloat32 }

func (Int64) number()   {}
func (Int32) number()   {}
func (Int16) number()   {}
func (Int8) number()    {}
func (Float64) number() {}
func (Float32) number() {}

// ArrayOfNumbersSerDe encodes heterogeneous arrays of Number values. Each
// element is written as a one-byte Kind tag followed by its fixed-width
// payload, so the stream is self-describing and needs no schema:
//
//	+-----+-----------+-----+-----------+     +-----+-----------+
//	| T_0 | Payload_0 | T_1 | Payload_1 | ... | T_N | Payload_N |
//	+-----+-----------+-----+-----------+     +-----+-----------+
//
// The zero value is ready to use and writes little endian.
type ArrayOfNumbersSerDe struct {
	order binary.ByteOrder
}

var _ ArrayOfItemsSerDe[Number] = ArrayOfNumbersSerDe{}

// NewArrayOfNumbersSerDe returns a codec using the given byte order for
// payloads. A nil order selects little endian.
func NewArrayOfNumbersSerDe(order binary.ByteOrder) ArrayOfNumbersSerDe {
	return ArrayOfNumbersSerDe{order: orderOrDefault(order)}
}

// SerializeToByteArray encodes items in input order. It fails with
// ErrArgument if any item is nil or of an unsupported kind.
func (s ArrayOfNumbersSerDe) SerializeToByteArray(items []Number) ([]byte, error) {
	// The first pass validates every item and sizes the buffer exactly, so
	// the second pass can write without bounds checks or reallocations.
	length := 0
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: item %d is null; must be one of int64, int32, int16, int8, float64, float32", ErrArgument, i)
		}
		size := item.Kind().Size()
		if size == 0 {
			return nil, fmt.Errorf("%w: item %d has unsupported kind %v", ErrArgument, i, item.Kind())
		}
		length += 1 + size
	}

	order := orderOrDefault(s.order)
	bytes := make([]byte, length)
	offset := 0
	for i, item := range items {
		bytes[offset] = byte(item.Kind())
		offset++

		switch v := item.(type) {
		case Int64:
			order.PutUint64(bytes[offset:], uint64(v))
		case Int32:
			order.PutUint32(bytes[offset:], uint32(v))
		case Int16:
			order.PutUint16(bytes[offset:], uint16(v))
		case Int8:
			bytes[offset] = byte(v)
		case Float64:
			order.PutUint64(bytes[offset:], math.Float64bits(float64(v)))
		case Float32:
			order.PutUint32(bytes[offset:], math.Float32bits(float32(v)))
		default:
			return nil, fmt.Errorf("%w: item %d has unsupported type %T", ErrArgument, i, item)
		}
		offset += item.Kind().Size()
	}
	return bytes, nil
}

// DeserializeFromMemory decodes exactly length elements from the start of
// mem. Trailing bytes after the last element are ignored.
func (s ArrayOfNumbersSerDe) DeserializeFromMemory(mem []byte, length int) ([]Number, error) {
	items, _, err := s.Decode(mem, length)
	return items, err
}

// Decode is DeserializeFromMemory that also reports how many bytes were
// consumed, so a caller can keep reading whatever follows the array.
func (s ArrayOfNumbersSerDe) Decode(mem []byte, length int) ([]Number, int, error) {
	if length < 0 {
		return nil, 0, fmt.Errorf("%w: negative length %d", ErrArgument, length)
	}

	order := orderOrDefault(s.order)
	items := make([]Number, length)
	offset := 0
	for i := 0; i < length; i++ {
		if offset >= len(mem) {
			return nil, offset, fmt.Errorf("%w: truncated input reading Number array entry %d", ErrArgument, i)
		}
		kind := Kind(mem[offset])
		offset++

		size := kind.Size()
		if size == 0 {
			return nil, offset, fmt.Errorf("%w: unrecognized entry type reading Number array entry %d: %d", ErrArgument, i, byte(kind))
		}
		if offset+size > len(mem) {
			return nil, offset, fmt.Errorf("%w: truncated %v payload reading Number array entry %d", ErrArgument, kind, i)
		}

		payload := mem[offset : offset+size]
		switch kind {
		case KindInt64:
			items[i] = Int64(order.Uint64(payload))
		case KindInt32:
			items[i] = Int32(order.Uint32(payload))
		case KindInt16:
			items[i] = Int16(order.Uint16(payload))
		case KindInt8:
			items[i] = Int8(payload[0])
		case KindFloat64:
			items[i] = Float64(math.Float64frombits(order.Uint64(payload)))
		case KindFloat32:
			items[i] = Float32(math.Float32frombits(order.Uint32(payload)))
		}
		offset += size
	}
	return items, offset, nil
}
