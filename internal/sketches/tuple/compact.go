package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
)

// Layout of the retained entries that follow the preamble of a compact
// sketch.
const (
	retainedEntriesInt = 16
	entriesStart       = 24

	sizeOfKeyBytes   = 8
	sizeOfValueBytes = 8
)

var (
	// ErrInvalidArgument is returned for entries that cannot form a valid
	// sketch.
	ErrInvalidArgument = errors.New("tuple: invalid argument")

	// ErrCorrupted is returned when a serialized sketch contradicts itself.
	ErrCorrupted = errors.New("tuple: corrupted sketch image")
)

// Entry is a retained key with its values.
type Entry struct {
	Key    uint64
	Values []float64
}

// Option configures how a CompactSketch is built or read.
type Option func(*options)

type options struct {
	seed  uint64
	order binary.ByteOrder
}

// WithSeed sets the hashing seed. The sketch stores its seed hash, and
// Heapify rejects images written with a different one.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithByteOrder sets the byte order used by ToByteArray. Heapify ignores it
// and follows the preamble.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) {
		o.order = order
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		seed:  DefaultSeed,
		order: binary.LittleEndian,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.order == nil {
		o.order = binary.LittleEndian
	}
	return o
}

// CompactSketch is the immutable, serializable form of an ArrayOfDoubles
// tuple sketch.
type CompactSketch struct {
	State
	seedHash uint16
	order    binary.ByteOrder
	keys     []uint64
	values   []float64 // NumValues per key, in key order
}

var _ ArrayOfDoublesSketch = (*CompactSketch)(nil)

// NewCompactSketch builds a compact sketch from already sampled entries.
// Every key must be non-zero, unique and below theta, and every entry must
// carry exactly numValues values. An empty sketch cannot have entries.
func NewCompactSketch(numValues uint8, theta uint64, empty bool, entries []Entry, opts ...Option) (*CompactSketch, error) {
	o := buildOptions(opts)
	seedHash, err := ComputeSeedHash(o.seed)
	if err != nil {
		return nil, err
	}
	if theta > MaxTheta {
		return nil, fmt.Errorf("%w: theta %d exceeds %d", ErrInvalidArgument, theta, MaxTheta)
	}
	if empty && len(entries) > 0 {
		return nil, fmt.Errorf("%w: empty sketch with %d entries", ErrInvalidArgument, len(entries))
	}
	if uint64(len(entries)) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: too many entries (%d)", ErrInvalidArgument, len(entries))
	}

	s := &CompactSketch{
		State:    State{numValues: numValues, theta: theta, empty: empty},
		seedHash: seedHash,
		order:    o.order,
		keys:     make([]uint64, 0, len(entries)),
		values:   make([]float64, 0, len(entries)*int(numValues)),
	}

	seen := make(map[uint64]struct{}, len(entries))
	for i, e := range entries {
		if e.Key == 0 || e.Key >= theta {
			return nil, fmt.Errorf("%w: entry %d key %d outside (0, theta=%d)", ErrInvalidArgument, i, e.Key, theta)
		}
		if len(e.Values) != int(numValues) {
			return nil, fmt.Errorf("%w: entry %d has %d values, want %d", ErrInvalidArgument, i, len(e.Values), numValues)
		}
		if _, dup := seen[e.Key]; dup {
			return nil, fmt.Errorf("%w: entry %d duplicates key %d", ErrInvalidArgument, i, e.Key)
		}
		seen[e.Key] = struct{}{}

		s.keys = append(s.keys, e.Key)
		s.values = append(s.values, e.Values...)
	}
	return s, nil
}

// Compact copies any ArrayOfDoubles sketch into a CompactSketch. The copy
// keeps the source's theta, emptiness and seed hash.
func Compact(src ArrayOfDoublesSketch) *CompactSketch {
	numValues := src.NumValues()
	s := &CompactSketch{
		State:    State{numValues: numValues, theta: src.Theta64(), empty: src.IsEmpty()},
		seedHash: src.SeedHash(),
		order:    binary.LittleEndian,
		keys:     make([]uint64, 0, src.NumRetained()),
		values:   make([]float64, 0, int(src.NumRetained())*int(numValues)),
	}
	for key, values := range src.All() {
		s.keys = append(s.keys, key)
		s.values = append(s.values, values...)
	}
	return s
}

// Estimate returns the estimated number of distinct keys presented.
func (s *CompactSketch) Estimate() float64 {
	return s.EstimateFor(s.NumRetained())
}

// UpperBound returns the approximate upper error bound for the given
// number of standard deviations.
func (s *CompactSketch) UpperBound(numStdDev uint8) (float64, error) {
	return s.UpperBoundFor(s.NumRetained(), numStdDev)
}

// LowerBound returns the approximate lower error bound for the given
// number of standard deviations.
func (s *CompactSketch) LowerBound(numStdDev uint8) (float64, error) {
	return s.LowerBoundFor(s.NumRetained(), numStdDev)
}

func (s *CompactSketch) NumRetained() uint32 {
	return uint32(len(s.keys))
}

func (s *CompactSketch) SeedHash() uint16 {
	return s.seedHash
}

// ByteOrder returns the byte order ToByteArray writes in.
func (s *CompactSketch) ByteOrder() binary.ByteOrder {
	return s.order
}

// Values returns a copy of the values of every retained key.
func (s *CompactSketch) Values() [][]float64 {
	out := make([][]float64, len(s.keys))
	for i := range s.keys {
		out[i] = append([]float64(nil), s.valuesAt(i)...)
	}
	return out
}

func (s *CompactSketch) valuesAt(i int) []float64 {
	n := int(s.numValues)
	return s.values[i*n : (i+1)*n : (i+1)*n]
}

// All returns an iterator over the retained keys and their values. The
// value slices are shared with the sketch and must not be modified.
func (s *CompactSketch) All() iter.Seq2[uint64, []float64] {
	return func(yield func(uint64, []float64) bool) {
		for i, key := range s.keys {
			if !yield(key, s.valuesAt(i)) {
				return
			}
		}
	}
}

// Iterator returns a fresh iterator positioned before the first entry.
func (s *CompactSketch) Iterator() ArrayOfDoublesSketchIterator {
	return &compactIterator{sketch: s, i: -1}
}

type compactIterator struct {
	sketch *CompactSketch
	i      int
}

func (it *compactIterator) Next() bool {
	if it.i < len(it.sketch.keys) {
		it.i++
	}
	return it.i < len(it.sketch.keys)
}

func (it *compactIterator) Key() uint64 {
	return it.sketch.keys[it.i]
}

func (it *compactIterator) Values() []float64 {
	return it.sketch.valuesAt(it.i)
}

// ToByteArray serializes the sketch.
func (s *CompactSketch) ToByteArray() []byte {
	//
	// DESIGN
	// ------
	//
	// The image starts with the common 16-byte preamble. A sketch without
	// retained entries ends there. Otherwise the entries follow, keys first
	// and then all values, so a reader can scan the keys without touching
	// the values:
	//
	//    +----------------+-----------+------------+----------------+------------------+
	//    | Preamble (16B) | Count (4B)| Unused (4B)| Keys (Count*8B)| Values           |
	//    +----------------+-----------+------------+----------------+------------------+
	//                                                                 Count*NumValues*8B
	//
	// HAS_ENTRIES is set exactly when Count > 0. IS_EMPTY is written
	// independently, since a non-empty sketch may retain nothing.
	//
	count := len(s.keys)

	var flags Flags
	flags = flags.With(FlagBigEndian, s.order == binary.BigEndian)
	flags = flags.With(FlagEmpty, s.empty)
	flags = flags.With(FlagHasEntries, count > 0)

	size := HeaderSize
	if count > 0 {
		size = entriesStart + count*(sizeOfKeyBytes+sizeOfValueBytes*int(s.numValues))
	}
	bytes := make([]byte, size)

	Header{
		PreambleLongs: 1,
		SerialVersion: SerialVersion,
		FamilyID:      FamilyTuple,
		SketchType:    ArrayOfDoublesCompactSketch,
		Flags:         flags,
		NumValues:     s.numValues,
		SeedHash:      s.seedHash,
		Theta:         s.theta,
	}.put(bytes)

	if count == 0 {
		return bytes
	}

	order := s.order
	order.PutUint32(bytes[retainedEntriesInt:], uint32(count))
	offset := entriesStart
	for _, key := range s.keys {
		order.PutUint64(bytes[offset:], key)
		offset += sizeOfKeyBytes
	}
	for _, v := range s.values {
		order.PutUint64(bytes[offset:], math.Float64bits(v))
		offset += sizeOfValueBytes
	}
	return bytes
}

// Heapify reconstructs a CompactSketch from its serialized form. The image
// must be an ArrayOfDoubles compact sketch written with the configured seed
// (DefaultSeed unless WithSeed is given). The result does not share memory
// with data.
func Heapify(data []byte, opts ...Option) (*CompactSketch, error) {
	o := buildOptions(opts)

	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if err := h.check(ArrayOfDoublesCompactSketch); err != nil {
		return nil, err
	}

	seedHash, err := ComputeSeedHash(o.seed)
	if err != nil {
		return nil, err
	}
	if err := CheckSeedHashes(seedHash, h.SeedHash); err != nil {
		return nil, err
	}

	s := &CompactSketch{
		State:    State{numValues: h.NumValues, theta: h.Theta, empty: h.Flags.IsEmpty()},
		seedHash: h.SeedHash,
		order:    h.ByteOrder(),
	}
	if !h.Flags.HasEntries() {
		return s, nil
	}
	if s.empty {
		return nil, fmt.Errorf("%w: empty flag set together with entries", ErrCorrupted)
	}

	if len(data) < entriesStart {
		return nil, fmt.Errorf("%w: need %d bytes for the entry count, got %d", ErrInsufficientData, entriesStart, len(data))
	}
	order := s.order
	count := uint64(order.Uint32(data[retainedEntriesInt:]))
	if count == 0 || count > math.MaxInt32 {
		return nil, fmt.Errorf("%w: retained entry count %d", ErrCorrupted, count)
	}

	need := uint64(entriesStart) + count*(sizeOfKeyBytes+sizeOfValueBytes*uint64(h.NumValues))
	if uint64(len(data)) < need {
		return nil, fmt.Errorf("%w: %d entries need %d bytes, got %d", ErrInsufficientData, count, need, len(data))
	}

	s.keys = make([]uint64, count)
	offset := entriesStart
	for i := range s.keys {
		s.keys[i] = order.Uint64(data[offset:])
		offset += sizeOfKeyBytes
	}
	s.values = make([]float64, int(count)*int(h.NumValues))
	for i := range s.values {
		s.values[i] = math.Float64frombits(order.Uint64(data[offset:]))
		offset += sizeOfValueBytes
	}
	return s, nil
}

// String returns a human-readable summary of the sketch. If printItems is
// true, the retained entries are listed too.
func (s *CompactSketch) String(printItems bool) string {
	return describe(s, printItems)
}

// describe renders the summary shared by all sketch variants.
func describe(s ArrayOfDoublesSketch, printItems bool) string {
	lb, _ := s.LowerBound(2)
	ub, _ := s.UpperBound(2)

	var sb strings.Builder
	sb.WriteString("### Tuple sketch summary:\n")
	sb.WriteString(fmt.Sprintf("   num values per key   : %d\n", s.NumValues()))
	sb.WriteString(fmt.Sprintf("   num retained entries : %d\n", s.NumRetained()))
	sb.WriteString(fmt.Sprintf("   seed hash            : 0x%04x\n", s.SeedHash()))
	sb.WriteString(fmt.Sprintf("   empty?               : %t\n", s.IsEmpty()))
	sb.WriteString(fmt.Sprintf("   estimation mode?     : %t\n", s.IsEstimationMode()))
	sb.WriteString(fmt.Sprintf("   theta (fraction)     : %f\n", s.Theta()))
	sb.WriteString(fmt.Sprintf("   theta (raw 64-bit)   : %d\n", s.Theta64()))
	sb.WriteString(fmt.Sprintf("   estimate             : %f\n", s.Estimate()))
	sb.WriteString(fmt.Sprintf("   lower bound 95%% conf : %f\n", lb))
	sb.WriteString(fmt.Sprintf("   upper bound 95%% conf : %f\n", ub))
	sb.WriteString("### End sketch summary\n")

	if printItems {
		sb.WriteString("### Retained entries\n")
		for key, values := range s.All() {
			sb.WriteString(fmt.Sprintf("%d: %v\n", key, values))
		}
		sb.WriteString("### End retained entries\n")
	}
	return sb.String()
}
