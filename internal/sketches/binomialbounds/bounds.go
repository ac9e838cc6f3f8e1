// Package binomialbounds computes confidence bounds on the size of a set
// from a Bernoulli sample of it.
//
// A sketch in estimation mode has retained numSamples keys, each of which
// survived an independent coin flip with success probability theta. The
// unknown quantity is n, the number of distinct keys that were presented.
// numSamples is Binomial(n, theta), so n is estimated as numSamples/theta
// and bounded by inverting the binomial tail probabilities.
//
// The Algorithm
// =============
//
// numStdDev is translated into a one-sided tail probability delta using the
// standard normal distribution (1 -> 15.87%, 2 -> 2.275%, 3 -> 0.135%).
//
//   - 0 samples: the lower bound is 0 and the upper bound is the smallest n
//     with (1-theta)^n <= delta.
//   - 1 sample: the lower bound is the largest n with
//     1-(1-theta)^n <= 1-delta.
//   - Up to 120 samples with theta >= numSamples/360: the bounds are found by
//     walking the negative binomial distribution term by term until the
//     accumulated tail reaches delta. The walk is short in this region.
//   - Everything else: a continuity-corrected normal approximation, solved
//     exactly as a quadratic in n.
//
// Whatever the branch, the result is clamped so that
//
//	numSamples <= lower <= numSamples/theta <= upper
//
// which is the property callers rely on.
package binomialbounds

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is returned for theta outside (0, 1] or numStdDev
// outside 0..3.
var ErrInvalidArgument = errors.New("binomialbounds: invalid argument")

// Direction selects which side of the confidence interval Bound computes.
type Direction uint8

const (
	Lower Direction = iota
	Upper
)

func (d Direction) String() string {
	if d == Upper {
		return "upper"
	}
	return "lower"
}

// MaxNumStdDev is the widest confidence level supported.
const MaxNumStdDev = 3

// deltaOfNumStdDev holds the one-sided normal tail probability beyond the
// given number of standard deviations.
var deltaOfNumStdDev = [MaxNumStdDev + 1]float64{
	0.5000000000000000000,
	0.1586553191586026479,
	0.0227502618904135701,
	0.0013498126861731796,
}

const (
	// maxExactSamples is the largest sample count handled by the exact
	// negative binomial walk.
	maxExactSamples = 120
	// exactThetaRatio bounds the walk length: theta must be at least
	// numSamples/exactThetaRatio.
	exactThetaRatio = 360.0
)

// Bound returns LowerBound or UpperBound depending on dir.
func Bound(dir Direction, numSamples uint64, theta float64, numStdDev uint8, noDataSeen bool) (float64, error) {
	if dir == Upper {
		return UpperBound(numSamples, theta, numStdDev, noDataSeen)
	}
	return LowerBound(numSamples, theta, numStdDev, noDataSeen)
}

// LowerBound returns the approximate lower bound on the number of distinct
// keys presented, given numSamples retained keys sampled at rate theta.
// noDataSeen marks an empty sketch, for which the bound is 0.
func LowerBound(numSamples uint64, theta float64, numStdDev uint8, noDataSeen bool) (float64, error) {
	if noDataSeen {
		return 0, nil
	}
	if err := checkArgs(theta, numStdDev); err != nil {
		return 0, err
	}

	n := float64(numSamples)
	lb := approxLowerBound(numSamples, theta, numStdDev)
	est := n / theta
	return math.Min(est, math.Max(n, lb)), nil
}

// UpperBound returns the approximate upper bound on the number of distinct
// keys presented. See LowerBound.
func UpperBound(numSamples uint64, theta float64, numStdDev uint8, noDataSeen bool) (float64, error) {
	if noDataSeen {
		return 0, nil
	}
	if err := checkArgs(theta, numStdDev); err != nil {
		return 0, err
	}

	ub := approxUpperBound(numSamples, theta, numStdDev)
	est := float64(numSamples) / theta
	return math.Max(est, ub), nil
}

func checkArgs(theta float64, numStdDev uint8) error {
	if !(theta > 0 && theta <= 1) {
		return fmt.Errorf("%w: theta must be in (0, 1]: %v", ErrInvalidArgument, theta)
	}
	if numStdDev > MaxNumStdDev {
		return fmt.Errorf("%w: numStdDev must be at most %d: %d", ErrInvalidArgument, MaxNumStdDev, numStdDev)
	}
	return nil
}

func approxLowerBound(numSamples uint64, theta float64, numStdDev uint8) float64 {
	n := float64(numSamples)
	switch {
	case theta == 1:
		return n
	case numSamples == 0:
		return 0
	case numSamples == 1:
		delta := deltaOfNumStdDev[numStdDev]
		return math.Floor(math.Log1p(-delta) / math.Log1p(-theta))
	case numSamples > maxExactSamples:
		return normalLowerBound(n, theta, float64(numStdDev)) - 0.5
	case theta > 1-1e-5:
		return n
	case theta < n/exactThetaRatio:
		return normalLowerBound(n, theta, float64(numStdDev)) - 0.5
	default:
		return float64(exactLowerBound(numSamples, theta, deltaOfNumStdDev[numStdDev]))
	}
}

func approxUpperBound(numSamples uint64, theta float64, numStdDev uint8) float64 {
	n := float64(numSamples)
	switch {
	case theta == 1:
		return n
	case numSamples == 0:
		delta := deltaOfNumStdDev[numStdDev]
		return math.Ceil(math.Log(delta) / math.Log1p(-theta))
	case numSamples > maxExactSamples:
		return normalUpperBound(n, theta, float64(numStdDev)) + 0.5
	case theta > 1-1e-5:
		return n + 1
	case theta < n/exactThetaRatio:
		return normalUpperBound(n, theta, float64(numStdDev)) + 0.5
	default:
		return float64(exactUpperBound(numSamples, theta, deltaOfNumStdDev[numStdDev]))
	}
}

// normalLowerBound solves (k - n*theta)^2 = z^2 * n*theta*(1-theta) for the
// smaller root n, with k shifted by the continuity correction.
func normalLowerBound(k, theta, z float64) float64 {
	nHat := (k - 0.5) / theta
	b := z * math.Sqrt((1-theta)/theta)
	d := 0.5 * b * math.Sqrt(b*b+4*nHat)
	center := nHat + 0.5*b*b
	return center - d
}

// normalUpperBound is the larger root of the same quadratic.
func normalUpperBound(k, theta, z float64) float64 {
	nHat := (k + 0.5) / theta
	b := z * math.Sqrt((1-theta)/theta)
	d := 0.5 * b * math.Sqrt(b*b+4*nHat)
	center := nHat + 0.5*b*b
	return center + d
}

// exactLowerBound returns the smallest n for which P(Binomial(n, p) >= k)
// reaches delta.
func exactLowerBound(k uint64, p, delta float64) uint64 {
	//
	// P(Binomial(m, p) >= k) is the probability that the k-th success of a
	// Bernoulli(p) sequence happens at or before trial m. The negative
	// binomial terms C(m-1, k-1) p^k q^(m-k) are accumulated starting from
	// m = k, where the term is p^k. Each next term is the previous one
	// times q*m/(m+1-k).
	//
	q := 1 - p
	cur := math.Pow(p, float64(k))
	tot := cur
	m := k
	for tot < delta {
		cur = cur * q * float64(m) / float64(m+1-k)
		tot += cur
		m++
	}
	return m
}

// exactUpperBound returns the smallest n for which P(Binomial(n, p) <= k)
// drops to delta or below.
func exactUpperBound(k uint64, p, delta float64) uint64 {
	//
	// P(Binomial(m, p) <= k) = 1 - P((k+1)-th success at or before m). The
	// walk accumulates the negative binomial terms for k+1 successes,
	// starting at m = k+1 with p^(k+1), until the total reaches 1-delta.
	//
	q := 1 - p
	target := 1 - delta
	cur := math.Pow(p, float64(k+1))
	tot := cur
	m := k + 1
	for tot < target {
		cur = cur * q * float64(m) / float64(m-k)
		tot += cur
		m++
	}
	return m
}
