package serde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ArrayOfLongsSerDe encodes int64 arrays as consecutive 8-byte words.
type ArrayOfLongsSerDe struct {
	order binary.ByteOrder
}

var _ ArrayOfItemsSerDe[int64] = ArrayOfLongsSerDe{}

func NewArrayOfLongsSerDe(order binary.ByteOrder) ArrayOfLongsSerDe {
	return ArrayOfLongsSerDe{order: orderOrDefault(order)}
}

func (s ArrayOfLongsSerDe) SerializeToByteArray(items []int64) ([]byte, error) {
	order := orderOrDefault(s.order)
	bytes := make([]byte, len(items)*8)
	for i, v := range items {
		order.PutUint64(bytes[i*8:], uint64(v))
	}
	return bytes, nil
}

func (s ArrayOfLongsSerDe) DeserializeFromMemory(mem []byte, length int) ([]int64, error) {
	if err := checkFixedWidth(mem, length, 8); err != nil {
		return nil, err
	}
	order := orderOrDefault(s.order)
	items := make([]int64, length)
	for i := range items {
		items[i] = int64(order.Uint64(mem[i*8:]))
	}
	return items, nil
}

// ArrayOfDoublesSerDe encodes float64 arrays as consecutive IEEE-754 words.
type ArrayOfDoublesSerDe struct {
	order binary.ByteOrder
}

var _ ArrayOfItemsSerDe[float64] = ArrayOfDoublesSerDe{}

func NewArrayOfDoublesSerDe(order binary.ByteOrder) ArrayOfDoublesSerDe {
	return ArrayOfDoublesSerDe{order: orderOrDefault(order)}
}

func (s ArrayOfDoublesSerDe) SerializeToByteArray(items []float64) ([]byte, error) {
	order := orderOrDefault(s.order)
	bytes := make([]byte, len(items)*8)
	for i, v := range items {
		order.PutUint64(bytes[i*8:], math.Float64bits(v))
	}
	return bytes, nil
}

func (s ArrayOfDoublesSerDe) DeserializeFromMemory(mem []byte, length int) ([]float64, error) {
	if err := checkFixedWidth(mem, length, 8); err != nil {
		return nil, err
	}
	order := orderOrDefault(s.order)
	items := make([]float64, length)
	for i := range items {
		items[i] = math.Float64frombits(order.Uint64(mem[i*8:]))
	}
	return items, nil
}

func checkFixedWidth(mem []byte, length, width int) error {
	if length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrArgument, length)
	}
	if need := length * width; len(mem) < need {
		return fmt.Errorf("%w: truncated input reading entry %d", ErrArgument, len(mem)/width)
	}
	return nil
}
