package tuple

import (
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// sampledEntries returns n entries with keys spread below theta.
func sampledEntries(n int, theta uint64, numValues int) []Entry {
	entries := make([]Entry, n)
	step := theta / uint64(n+1)
	for i := range entries {
		values := make([]float64, numValues)
		for j := range values {
			values[j] = float64(i*10 + j)
		}
		entries[i] = Entry{Key: step * uint64(i+1), Values: values}
	}
	return entries
}

func keysOf(s ArrayOfDoublesSketch) []uint64 {
	var keys []uint64
	for key := range s.All() {
		keys = append(keys, key)
	}
	return keys
}

func TestCompactSketchEstimation(t *testing.T) {
	theta := MaxTheta / 4
	s, err := NewCompactSketch(2, theta, false, sampledEntries(100, theta, 2))
	if err != nil {
		t.Fatalf("NewCompactSketch() returned error: %v", err)
	}

	if s.NumRetained() != 100 {
		t.Errorf("NumRetained() = %d, want 100", s.NumRetained())
	}
	if !s.IsEstimationMode() {
		t.Error("sketch must be in estimation mode")
	}
	if got := s.Estimate(); got != 400 {
		t.Errorf("Estimate() = %f, want 400", got)
	}

	lb1, _ := s.LowerBound(1)
	ub1, _ := s.UpperBound(1)
	lb2, _ := s.LowerBound(2)
	ub2, _ := s.UpperBound(2)
	if !(lb2 < lb1 && lb1 <= 400 && 400 <= ub1 && ub1 < ub2) {
		t.Errorf("bounds not nested: lb2=%f lb1=%f ub1=%f ub2=%f", lb2, lb1, ub1, ub2)
	}
}

func TestCompactSketchExactMode(t *testing.T) {
	s, err := NewCompactSketch(1, MaxTheta, false, sampledEntries(10, MaxTheta, 1))
	if err != nil {
		t.Fatal(err)
	}
	if s.IsEstimationMode() {
		t.Error("sketch with theta=1 must be in exact mode")
	}
	if s.Estimate() != 10 {
		t.Errorf("Estimate() = %f, want 10", s.Estimate())
	}
	ub, _ := s.UpperBound(3)
	lb, _ := s.LowerBound(3)
	if ub != 10 || lb != 10 {
		t.Errorf("bounds = [%f, %f], want [10, 10]", lb, ub)
	}
}

func TestCompactSketchAccessors(t *testing.T) {
	entries := sampledEntries(3, MaxTheta, 2)
	s, err := NewCompactSketch(2, MaxTheta, false, entries, WithSeed(42))
	if err != nil {
		t.Fatal(err)
	}

	if s.SeedHash() != 0x7DF8 {
		t.Errorf("SeedHash() = 0x%04x, want 0x7df8", s.SeedHash())
	}

	values := s.Values()
	if len(values) != 3 {
		t.Fatalf("Values() returned %d rows, want 3", len(values))
	}
	for i, row := range values {
		if !reflect.DeepEqual(row, entries[i].Values) {
			t.Errorf("Values()[%d] = %v, want %v", i, row, entries[i].Values)
		}
	}
	// Values must be a copy.
	values[0][0] = -1
	if s.Values()[0][0] == -1 {
		t.Error("Values() exposes internal storage")
	}

	it := s.Iterator()
	i := 0
	for it.Next() {
		if it.Key() != entries[i].Key || !reflect.DeepEqual(it.Values(), entries[i].Values) {
			t.Errorf("iterator entry %d = %d %v", i, it.Key(), it.Values())
		}
		i++
	}
	if i != 3 || it.Next() {
		t.Errorf("iterator visited %d entries", i)
	}
	// Each call starts over.
	if it := s.Iterator(); !it.Next() || it.Key() != entries[0].Key {
		t.Error("a new iterator must start at the first entry")
	}

	i = 0
	for key := range s.All() {
		if key != entries[i].Key {
			t.Errorf("All() key %d = %d, want %d", i, key, entries[i].Key)
		}
		i++
		if i == 2 {
			break
		}
	}
}

func TestCompactSketchSerializationRoundTrip(t *testing.T) {
	theta := MaxTheta / 8
	testCases := []struct {
		name    string
		empty   bool
		entries []Entry
		order   binary.ByteOrder
	}{
		{"Empty", true, nil, binary.LittleEndian},
		{"Non-empty without entries", false, nil, binary.LittleEndian},
		{"Entries little endian", false, sampledEntries(20, theta, 3), binary.LittleEndian},
		{"Entries big endian", false, sampledEntries(20, theta, 3), binary.BigEndian},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewCompactSketch(3, theta, tc.empty, tc.entries, WithByteOrder(tc.order))
			if err != nil {
				t.Fatal(err)
			}

			data := s.ToByteArray()
			h, err := ReadHeader(data)
			if err != nil {
				t.Fatalf("ReadHeader() returned error: %v", err)
			}
			if h.Flags.IsEmpty() != tc.empty {
				t.Errorf("IS_EMPTY = %t, want %t", h.Flags.IsEmpty(), tc.empty)
			}
			if h.Flags.HasEntries() != (len(tc.entries) > 0) {
				t.Errorf("HAS_ENTRIES = %t with %d entries", h.Flags.HasEntries(), len(tc.entries))
			}
			if h.Flags.IsBigEndian() != (tc.order == binary.BigEndian) {
				t.Errorf("IS_BIG_ENDIAN = %t", h.Flags.IsBigEndian())
			}
			if len(tc.entries) == 0 && len(data) != HeaderSize {
				t.Errorf("sketch without entries serialized to %d bytes, want %d", len(data), HeaderSize)
			}

			got, err := Heapify(data)
			if err != nil {
				t.Fatalf("Heapify() returned error: %v", err)
			}
			if got.IsEmpty() != s.IsEmpty() || got.Theta64() != s.Theta64() ||
				got.NumValues() != s.NumValues() || got.SeedHash() != s.SeedHash() {
				t.Errorf("state mismatch after round trip:\n%s\n%s", got.String(false), s.String(false))
			}
			if got.Estimate() != s.Estimate() {
				t.Errorf("Estimate() = %f, want %f", got.Estimate(), s.Estimate())
			}
			if !reflect.DeepEqual(keysOf(got), keysOf(s)) || !reflect.DeepEqual(got.Values(), s.Values()) {
				t.Error("entries differ after round trip")
			}
			if got.ByteOrder() != tc.order {
				t.Errorf("ByteOrder() = %v, want %v", got.ByteOrder(), tc.order)
			}
		})
	}
}

func TestCompactSketchLayout(t *testing.T) {
	s, err := NewCompactSketch(1, MaxTheta, false, []Entry{{Key: 7, Values: []float64{1}}})
	if err != nil {
		t.Fatal(err)
	}
	data := s.ToByteArray()

	if len(data) != entriesStart+sizeOfKeyBytes+sizeOfValueBytes {
		t.Fatalf("len = %d", len(data))
	}
	if data[familyIDByte] != FamilyTuple || SketchType(data[sketchTypeByte]) != ArrayOfDoublesCompactSketch {
		t.Errorf("identity bytes = % x", data[:4])
	}
	if Flags(data[flagsByte]) != FlagHasEntries {
		t.Errorf("flags = %v, want HAS_ENTRIES", Flags(data[flagsByte]))
	}
	if binary.LittleEndian.Uint32(data[retainedEntriesInt:]) != 1 {
		t.Error("retained count not at byte 16")
	}
	if binary.LittleEndian.Uint64(data[entriesStart:]) != 7 {
		t.Error("first key not at byte 24")
	}
	if binary.LittleEndian.Uint64(data[entriesStart+8:]) != 0x3FF0000000000000 {
		t.Error("first value not after the keys")
	}
}

func TestHeapifyErrors(t *testing.T) {
	s, err := NewCompactSketch(2, MaxTheta/2, false, sampledEntries(5, MaxTheta/2, 2))
	if err != nil {
		t.Fatal(err)
	}
	image := s.ToByteArray()

	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), image...))
	}

	testCases := []struct {
		name string
		data []byte
		opts []Option
		want error
	}{
		{"Too short", image[:8], nil, ErrInsufficientData},
		{"Wrong family", mutate(func(b []byte) []byte { b[familyIDByte] = 3; return b }), nil, ErrWrongFamily},
		{"Wrong type", mutate(func(b []byte) []byte { b[sketchTypeByte] = byte(ArrayOfDoublesUnion); return b }), nil, ErrWrongSketchType},
		{"Wrong version", mutate(func(b []byte) []byte { b[serialVersionByte] = 9; return b }), nil, ErrSerialVersion},
		{"Wrong seed", image, []Option{WithSeed(42)}, ErrSeedHashMismatch},
		{"Truncated entries", image[:len(image)-1], nil, ErrInsufficientData},
		{"Missing count", image[:20], nil, ErrInsufficientData},
		{"Zero count", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[retainedEntriesInt:], 0); return b }), nil, ErrCorrupted},
		{"Empty with entries", mutate(func(b []byte) []byte { b[flagsByte] |= byte(FlagEmpty); return b }), nil, ErrCorrupted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Heapify(tc.data, tc.opts...)
			if !errors.Is(err, tc.want) {
				t.Errorf("Heapify() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewCompactSketchErrors(t *testing.T) {
	theta := MaxTheta / 2
	testCases := []struct {
		name    string
		empty   bool
		theta   uint64
		entries []Entry
	}{
		{"Empty with entries", true, theta, []Entry{{Key: 1, Values: []float64{0}}}},
		{"Zero key", false, theta, []Entry{{Key: 0, Values: []float64{0}}}},
		{"Key above theta", false, theta, []Entry{{Key: theta, Values: []float64{0}}}},
		{"Wrong value count", false, theta, []Entry{{Key: 1, Values: []float64{0, 1}}}},
		{"Duplicate key", false, theta, []Entry{{Key: 1, Values: []float64{0}}, {Key: 1, Values: []float64{1}}}},
		{"Theta above maximum", false, MaxTheta + 1, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCompactSketch(1, tc.theta, tc.empty, tc.entries)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("NewCompactSketch() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCompactCopiesAnySketch(t *testing.T) {
	theta := MaxTheta / 3
	src, err := NewCompactSketch(2, theta, false, sampledEntries(4, theta, 2), WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}

	var asInterface ArrayOfDoublesSketch = src
	cp := Compact(asInterface)

	if cp.SeedHash() != src.SeedHash() || cp.Theta64() != src.Theta64() || cp.IsEmpty() != src.IsEmpty() {
		t.Error("Compact() lost sketch state")
	}
	if !reflect.DeepEqual(cp.Values(), src.Values()) {
		t.Error("Compact() lost values")
	}

	// The copy serializes identically and reads back with the source seed.
	if _, err := Heapify(cp.ToByteArray(), WithSeed(1)); err != nil {
		t.Errorf("Heapify(copy) returned error: %v", err)
	}
}

func TestCompactSketchString(t *testing.T) {
	s, err := NewCompactSketch(1, MaxTheta, false, []Entry{{Key: 5, Values: []float64{2.5}}})
	if err != nil {
		t.Fatal(err)
	}

	summary := s.String(false)
	if !strings.Contains(summary, "num retained entries : 1") || strings.Contains(summary, "### Retained entries") {
		t.Errorf("unexpected summary:\n%s", summary)
	}
	if full := s.String(true); !strings.Contains(full, "5: [2.5]") {
		t.Errorf("entries missing from summary:\n%s", full)
	}
}
