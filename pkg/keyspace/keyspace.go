// Package keyspace generates and advances the 32-byte seeds enumerated by a
// vanity search.
//
// A seed is split into two regions:
//
//	[ random high-order bytes .......... | counter (IterationBytes) ]
//
// The high-order bytes are filled from crypto/rand once per round per device.
// The trailing IterationBytes(bits) bytes start at zero and are advanced by
// Step(bits) = 2^bits after every dispatch, so a single dispatch covers the
// window [seed, seed+2^bits).
//
// Advancement is plain unsigned big-endian addition over all 32 bytes. A
// carry out of the counter region propagates into the random region, and a
// carry out of byte 0 is dropped (arithmetic is mod 2^256).
//
// Example:
//
//	w, err := keyspace.NewWindow(24)
//	if err != nil {
//		return err
//	}
//	for {
//		dispatch(w.Seed())
//		w.Next()
//	}
package keyspace

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// SeedSize is the size of an ed25519 private key seed.
const SeedSize = 32

// Iteration bit bounds accepted by Generate and NewWindow.
const (
	MinIterationBits = 8
	MaxIterationBits = 40
)

var (
	ErrIterationBits = fmt.Errorf("keyspace: iteration bits must be in [%d, %d]", MinIterationBits, MaxIterationBits)
	ErrShortRandom   = errors.New("keyspace: short read from random source")
)

// modulus is 2^256.
var modulus = new(big.Int).Lsh(big.NewInt(1), SeedSize*8)

// Seed is a 32-byte big-endian unsigned value.
type Seed [SeedSize]byte

// String returns the seed as lowercase hex.
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// Int returns the seed as a big integer.
func (s Seed) Int() *big.Int {
	return new(big.Int).SetBytes(s[:])
}

// SeedFromInt reduces v mod 2^256 and returns it as a Seed.
func SeedFromInt(v *big.Int) Seed {
	var s Seed
	m := new(big.Int).Mod(v, modulus)
	m.FillBytes(s[:])
	return s
}

// ValidateBits reports whether bits is an accepted iteration width.
func ValidateBits(bits int) error {
	if bits < MinIterationBits || bits > MaxIterationBits {
		return fmt.Errorf("%w: got %d", ErrIterationBits, bits)
	}
	return nil
}

// IterationBytes returns ceil(bits/8), the width of the counter region.
func IterationBytes(bits int) int {
	return (bits + 7) / 8
}

// Step returns 2^bits, the distance between consecutive dispatch seeds.
func Step(bits int) uint64 {
	return uint64(1) << uint(bits)
}

// Generate returns a fresh seed whose random region comes from crypto/rand.
func Generate(bits int) (Seed, error) {
	return GenerateFrom(rand.Reader, bits)
}

// GenerateFrom is Generate with an explicit random source.
func GenerateFrom(r io.Reader, bits int) (Seed, error) {
	var s Seed
	if err := ValidateBits(bits); err != nil {
		return s, err
	}
	n := SeedSize - IterationBytes(bits)
	if _, err := io.ReadFull(r, s[:n]); err != nil {
		return s, fmt.Errorf("%w: %v", ErrShortRandom, err)
	}
	return s, nil
}

// Advance returns (s + step) mod 2^256. step may be any non-negative value,
// including multiples of the window step larger than 64 bits.
func Advance(s Seed, step *big.Int) Seed {
	sum := s.Int()
	sum.Add(sum, step)
	return SeedFromInt(sum)
}

// AdvanceBy adds delta to s in place, propagating the carry leftward byte by
// byte and dropping any carry out of byte 0.
func AdvanceBy(s *Seed, delta uint64) {
	carry := delta
	for i := SeedSize - 1; i >= 0 && carry > 0; i-- {
		total := uint64(s[i]) + (carry & 0xFF)
		s[i] = byte(total)
		carry = (carry >> 8) + (total >> 8)
	}
}

// Window is the per-device view of the key space for one round. It is not
// safe for concurrent use; each worker owns its own.
type Window struct {
	bits     int
	step     uint64
	seed     Seed
	advances uint64
}

// NewWindow generates a random starting seed for the given iteration width.
func NewWindow(bits int) (*Window, error) {
	s, err := Generate(bits)
	if err != nil {
		return nil, err
	}
	return NewWindowAt(s, bits)
}

// NewWindowAt starts a window at a caller-provided seed.
func NewWindowAt(s Seed, bits int) (*Window, error) {
	if err := ValidateBits(bits); err != nil {
		return nil, err
	}
	return &Window{bits: bits, step: Step(bits), seed: s}, nil
}

// Seed returns the current dispatch seed.
func (w *Window) Seed() Seed { return w.seed }

// Bits returns the iteration width.
func (w *Window) Bits() int { return w.bits }

// Advances returns how many times Next has been called.
func (w *Window) Advances() uint64 { return w.advances }

// Next moves the window forward by one step.
func (w *Window) Next() {
	AdvanceBy(&w.seed, w.step)
	w.advances++
}
