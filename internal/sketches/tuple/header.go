package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// HeaderSize is the size of the common preamble in bytes.
	HeaderSize = 16

	// SerialVersion is the format version written by this package.
	SerialVersion uint8 = 1

	// FamilyTuple identifies the tuple sketch family.
	FamilyTuple uint8 = 9
)

// Byte offsets within the preamble.
const (
	preambleLongsByte = 0
	serialVersionByte = 1
	familyIDByte      = 2
	sketchTypeByte    = 3
	flagsByte         = 4
	numValuesByte     = 5
	seedHashShort     = 6
	thetaLong         = 8
)

var (
	// ErrInsufficientData is returned when a byte slice is too short for
	// the structure it should contain.
	ErrInsufficientData = errors.New("tuple: insufficient data")

	// ErrInvalidPreamble is returned for a preamble that cannot describe a
	// valid sketch.
	ErrInvalidPreamble = errors.New("tuple: invalid preamble")

	// ErrWrongFamily is returned when the family id is not FamilyTuple.
	ErrWrongFamily = errors.New("tuple: wrong sketch family")

	// ErrWrongSketchType is returned when the sketch type is not the one
	// being deserialized.
	ErrWrongSketchType = errors.New("tuple: wrong sketch type")

	// ErrSerialVersion is returned for an unsupported serial version.
	ErrSerialVersion = errors.New("tuple: unsupported serial version")
)

// SketchType identifies the concrete variant within the tuple family.
type SketchType uint8

const (
	GenericQuickSelectSketch SketchType = iota
	GenericCompactSketch
	ArrayOfDoublesQuickSelectSketch
	ArrayOfDoublesCompactSketch
	ArrayOfDoublesUnion
)

func (t SketchType) String() string {
	switch t {
	case GenericQuickSelectSketch:
		return "QuickSelectSketch"
	case GenericCompactSketch:
		return "CompactSketch"
	case ArrayOfDoublesQuickSelectSketch:
		return "ArrayOfDoublesQuickSelectSketch"
	case ArrayOfDoublesCompactSketch:
		return "ArrayOfDoublesCompactSketch"
	case ArrayOfDoublesUnion:
		return "ArrayOfDoublesUnion"
	}
	return fmt.Sprintf("SketchType(%d)", uint8(t))
}

// Flags is the bitmask stored in byte 4 of the preamble. The four flags are
// independent of each other.
type Flags uint8

const (
	FlagBigEndian Flags = 1 << iota
	FlagInSamplingMode
	FlagEmpty
	FlagHasEntries
)

// IsBigEndian reports whether multi-byte fields are big endian.
func (f Flags) IsBigEndian() bool { return f&FlagBigEndian != 0 }

// IsInSamplingMode reports whether the sketch was built with an up-front
// sampling probability below 1.
func (f Flags) IsInSamplingMode() bool { return f&FlagInSamplingMode != 0 }

// IsEmpty reports whether the sketch represents the empty set.
func (f Flags) IsEmpty() bool { return f&FlagEmpty != 0 }

// HasEntries reports whether a payload of retained entries follows the
// preamble. A reader that only looks at the preamble needs this to know
// whether more bytes follow, which is why it is not derived from IsEmpty.
func (f Flags) HasEntries() bool { return f&FlagHasEntries != 0 }

// With returns f with flag set or cleared.
func (f Flags) With(flag Flags, on bool) Flags {
	if on {
		return f | flag
	}
	return f &^ flag
}

func (f Flags) String() string {
	var names []string
	if f.IsBigEndian() {
		names = append(names, "BIG_ENDIAN")
	}
	if f.IsInSamplingMode() {
		names = append(names, "IN_SAMPLING_MODE")
	}
	if f.IsEmpty() {
		names = append(names, "EMPTY")
	}
	if f.HasEntries() {
		names = append(names, "HAS_ENTRIES")
	}
	if rest := f &^ (FlagBigEndian | FlagInSamplingMode | FlagEmpty | FlagHasEntries); rest != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// Header is the 16-byte preamble written at the start of every serialized
// tuple sketch. Variants that need more header space declare it through
// PreambleLongs and write their extra words after these 16 bytes.
type Header struct {
	PreambleLongs uint8
	SerialVersion uint8
	FamilyID      uint8
	SketchType    SketchType
	Flags         Flags
	NumValues     uint8
	SeedHash      uint16
	Theta         uint64
}

// ByteOrder returns the byte order of the multi-byte fields, as declared by
// FlagBigEndian.
func (h Header) ByteOrder() binary.ByteOrder {
	if h.Flags.IsBigEndian() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Serialize returns the 16-byte representation of the header.
func (h Header) Serialize() []byte {
	buffer := make([]byte, HeaderSize)
	h.put(buffer)
	return buffer
}

// put writes the header into the first HeaderSize bytes of dst.
func (h Header) put(dst []byte) {
	//
	// DESIGN
	// ------
	//
	// The layout is shared with the other implementations of the library
	// and must be reproduced bit for bit:
	//
	// +------+---------------+------+------------------------------------+
	// | Byte | Field         | Size | Notes                              |
	// +------+---------------+------+------------------------------------+
	// | 0    | PreambleLongs | 1    | 8-byte words in the full preamble  |
	// | 1    | SerialVersion | 1    | Format version                     |
	// | 2    | FamilyID      | 1    | 9 for tuple sketches               |
	// | 3    | SketchType    | 1    | Variant within the family          |
	// | 4    | Flags         | 1    | See Flags                          |
	// | 5    | NumValues     | 1    | float64 values per key             |
	// | 6-7  | SeedHash      | 2    | Byte order per FlagBigEndian       |
	// | 8-15 | Theta         | 8    | Byte order per FlagBigEndian       |
	// +------+---------------+------+------------------------------------+
	//
	order := h.ByteOrder()

	dst[preambleLongsByte] = h.PreambleLongs
	dst[serialVersionByte] = h.SerialVersion
	dst[familyIDByte] = h.FamilyID
	dst[sketchTypeByte] = byte(h.SketchType)
	dst[flagsByte] = byte(h.Flags)
	dst[numValuesByte] = h.NumValues
	order.PutUint16(dst[seedHashShort:thetaLong], h.SeedHash)
	order.PutUint64(dst[thetaLong:HeaderSize], h.Theta)
}

// ReadHeader parses the preamble at the start of data. It only checks what
// the preamble alone can tell: the length and a non-zero preamble size.
// Family, type and version checks are left to the variant being read.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes for the preamble, got %d", ErrInsufficientData, HeaderSize, len(data))
	}

	h := Header{
		PreambleLongs: data[preambleLongsByte],
		SerialVersion: data[serialVersionByte],
		FamilyID:      data[familyIDByte],
		SketchType:    SketchType(data[sketchTypeByte]),
		Flags:         Flags(data[flagsByte]),
		NumValues:     data[numValuesByte],
	}
	if h.PreambleLongs == 0 {
		return Header{}, fmt.Errorf("%w: preamble longs is zero", ErrInvalidPreamble)
	}
	if len(data) < int(h.PreambleLongs)*8 {
		return Header{}, fmt.Errorf("%w: preamble declares %d longs, got %d bytes", ErrInsufficientData, h.PreambleLongs, len(data))
	}

	order := h.ByteOrder()
	h.SeedHash = order.Uint16(data[seedHashShort:thetaLong])
	h.Theta = order.Uint64(data[thetaLong:HeaderSize])
	if h.Theta > MaxTheta {
		return Header{}, fmt.Errorf("%w: theta %d exceeds %d", ErrInvalidPreamble, h.Theta, MaxTheta)
	}
	return h, nil
}

// check verifies the identity fields against the expected variant.
func (h Header) check(want SketchType) error {
	if h.FamilyID != FamilyTuple {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongFamily, h.FamilyID, FamilyTuple)
	}
	if h.SketchType != want {
		return fmt.Errorf("%w: got %v, want %v", ErrWrongSketchType, h.SketchType, want)
	}
	if h.SerialVersion != SerialVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSerialVersion, h.SerialVersion, SerialVersion)
	}
	return nil
}
