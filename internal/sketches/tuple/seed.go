package tuple

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/twmb/murmur3"
)

// DefaultSeed is the hashing seed used when none is configured.
const DefaultSeed uint64 = 9001

var (
	// ErrZeroSeedHash is returned for seeds whose seed hash is zero. Zero is
	// not a usable fingerprint; such a seed must be replaced.
	ErrZeroSeedHash = errors.New("tuple: seed produces a zero seed hash")

	// ErrSeedHashMismatch is returned when two sketches, or a sketch and
	// the reader, were built with incompatible seeds.
	ErrSeedHashMismatch = errors.New("tuple: incompatible seed hashes")
)

// ComputeSeedHash returns the 16-bit fingerprint of seed stored in the
// preamble: the low 16 bits of the first half of MurmurHash3 x64/128 over
// the 8 little-endian bytes of the seed, hashed with seed 0.
//
// The fingerprint detects accidental mixing of sketches built with
// different seeds. It is not meant to hide the seed.
func ComputeSeedHash(seed uint64) (uint16, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	h1, _ := murmur3.Sum128(buf[:])

	seedHash := uint16(h1)
	if seedHash == 0 {
		return 0, fmt.Errorf("%w: seed %d", ErrZeroSeedHash, seed)
	}
	return seedHash, nil
}

// CheckSeedHashes returns ErrSeedHashMismatch if a and b differ.
func CheckSeedHashes(a, b uint16) error {
	if a != b {
		return fmt.Errorf("%w: 0x%04x vs 0x%04x", ErrSeedHashMismatch, a, b)
	}
	return nil
}
