// Package tuple implements the estimation core shared by tuple sketches of
// the ArrayOfDoubles kind, where a fixed-length array of float64 values is
// attached to every retained key.
//
// A tuple sketch summarizes a stream of keys by keeping only the keys whose
// hash falls below a sampling threshold, theta. While every key presented
// so far has been kept (theta at its maximum) the sketch counts exactly.
// Once the table fills up, concrete sketches lower theta and evict keys
// above it; from then on the sketch is in estimation mode and the count of
// retained keys is scaled up by 1/theta.
//
// Theta
// =====
//
// Theta is stored as a 64-bit fixed-point fraction of MaxTheta
// (math.MaxInt64). MaxTheta means probability 1.0. Theta never increases
// during the lifetime of a sketch.
//
// Empty vs. No Entries
// ====================
//
// "Empty" means the sketch represents the empty set: no key was ever
// presented. This is not the same as having no retained entries. After
// sampling, a sketch can have seen data and still hold nothing, and its
// estimate is then 0 with a non-zero upper bound. Both facts are tracked,
// and serialized, independently.
//
// This package covers the estimation arithmetic, the 16-byte serialization
// preamble common to all variants, seed hashes, and an immutable
// CompactSketch. Hashing keys, resizing hash tables and set operations live
// in the update and union sketches built on top of it.
package tuple

import (
	"math"

	"sketches.lopezb.com/internal/sketches/binomialbounds"
)

// MaxTheta is the raw theta of a sketch in exact mode.
const MaxTheta uint64 = math.MaxInt64

// State is the estimation state shared by every concrete sketch: the
// number of values per key, theta, and whether any key has been presented.
// Concrete sketches embed it and pass their retained-entry count to the
// *For methods.
//
// State is not synchronized. Concurrent mutation must be guarded by the
// caller.
type State struct {
	numValues uint8
	theta     uint64
	empty     bool
}

// NewState returns the state of a fresh sketch: exact mode, empty.
func NewState(numValues uint8) State {
	return State{
		numValues: numValues,
		theta:     MaxTheta,
		empty:     true,
	}
}

// IsEmpty reports whether the sketch represents the empty set.
func (s *State) IsEmpty() bool {
	return s.empty
}

// NumValues returns the number of float64 values attached to each key.
func (s *State) NumValues() uint8 {
	return s.numValues
}

// IsEstimationMode reports whether the sketch has sampled its input, that
// is theta is below MaxTheta and the sketch is not empty.
func (s *State) IsEstimationMode() bool {
	return s.theta < MaxTheta && !s.empty
}

// Theta returns theta as a fraction in [0, 1].
func (s *State) Theta() float64 {
	return float64(s.theta) / float64(MaxTheta)
}

// Theta64 returns the raw theta.
func (s *State) Theta64() uint64 {
	return s.theta
}

// LowerTheta sets theta to t if t is lower than the current value. A
// higher value is ignored, so theta can only decrease.
func (s *State) LowerTheta(t uint64) {
	if t < s.theta {
		s.theta = t
	}
}

// MarkNotEmpty records that at least one key has been presented.
func (s *State) MarkNotEmpty() {
	s.empty = false
}

// EstimateFor returns the distinct count estimate for a sketch retaining
// numRetained keys. In exact mode it is numRetained itself.
func (s *State) EstimateFor(numRetained uint32) float64 {
	if !s.IsEstimationMode() {
		return float64(numRetained)
	}
	return float64(numRetained) / s.Theta()
}

// UpperBoundFor returns the approximate upper bound of the distinct count at
// numStdDev standard deviations (1, 2 or 3 for roughly 68%, 95% and 99.7%
// confidence). In exact mode it is numRetained and never fails.
func (s *State) UpperBoundFor(numRetained uint32, numStdDev uint8) (float64, error) {
	if !s.IsEstimationMode() {
		return float64(numRetained), nil
	}
	return binomialbounds.UpperBound(uint64(numRetained), s.Theta(), numStdDev, s.empty)
}

// LowerBoundFor is the lower counterpart of UpperBoundFor.
func (s *State) LowerBoundFor(numRetained uint32, numStdDev uint8) (float64, error) {
	if !s.IsEstimationMode() {
		return float64(numRetained), nil
	}
	return binomialbounds.LowerBound(uint64(numRetained), s.Theta(), numStdDev, s.empty)
}
