package tuple

import "iter"

// ArrayOfDoublesSketch is the surface every tuple sketch of the
// ArrayOfDoubles kind exposes. The estimation methods come for free by
// embedding State; the rest is supplied by the concrete variant.
type ArrayOfDoublesSketch interface {
	// Estimate returns the estimated number of distinct keys presented.
	Estimate() float64

	// UpperBound returns the approximate upper error bound for the given
	// number of standard deviations (1, 2 or 3).
	UpperBound(numStdDev uint8) (float64, error)

	// LowerBound returns the approximate lower error bound for the given
	// number of standard deviations (1, 2 or 3).
	LowerBound(numStdDev uint8) (float64, error)

	// IsEmpty reports whether the sketch represents the empty set. This is
	// not the same as having no retained entries.
	IsEmpty() bool

	// IsEstimationMode reports whether theta is below 1 and the sketch is
	// not empty.
	IsEstimationMode() bool

	// NumValues returns the number of float64 values attached to each key.
	NumValues() uint8

	// Theta returns theta as a fraction in [0, 1].
	Theta() float64

	// Theta64 returns the raw theta, a value in [0, MaxTheta].
	Theta64() uint64

	// NumRetained returns the number of keys currently retained.
	NumRetained() uint32

	// SeedHash returns the 16-bit hash of the seed keys were hashed with.
	SeedHash() uint16

	// Values returns a copy of the value arrays of all retained keys.
	Values() [][]float64

	// Iterator returns a fresh iterator over the retained entries.
	Iterator() ArrayOfDoublesSketchIterator

	// All returns an iterator over the retained key-values pairs.
	All() iter.Seq2[uint64, []float64]

	// ToByteArray serializes the sketch, preamble first.
	ToByteArray() []byte
}

// ArrayOfDoublesSketchIterator walks the retained entries of a sketch.
//
//	it := sketch.Iterator()
//	for it.Next() {
//		use(it.Key(), it.Values())
//	}
type ArrayOfDoublesSketchIterator interface {
	// Next advances to the next entry and reports whether there is one.
	Next() bool
	// Key returns the hashed key of the current entry.
	Key() uint64
	// Values returns the values of the current entry. The slice must not
	// be modified.
	Values() []float64
}
