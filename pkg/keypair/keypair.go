// Package keypair derives ed25519 public keys from search seeds and encodes
// them as base58 addresses.
package keypair

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ed25519"

	"github.com/orneryd/solvanity/pkg/keyspace"
)

// PublicKeySize is the size of an ed25519 public key.
const PublicKeySize = ed25519.PublicKeySize

var (
	ErrInvalidKeypair = errors.New("keypair: invalid keypair encoding")
	ErrKeyMismatch    = errors.New("keypair: public key does not match seed")
)

// Keypair is a seed together with its derived public key.
type Keypair struct {
	Seed      keyspace.Seed
	PublicKey [PublicKeySize]byte
}

// Derive computes the ed25519 public key for seed.
func Derive(seed keyspace.Seed) [PublicKeySize]byte {
	priv := ed25519.NewKeyFromSeed(seed[:])
	var pub [PublicKeySize]byte
	copy(pub[:], priv[ed25519.SeedSize:])
	return pub
}

// Encode returns the base58 form of a public key.
func Encode(pub [PublicKeySize]byte) string {
	return base58.Encode(pub[:])
}

// FromSeed derives the full keypair for seed.
func FromSeed(seed keyspace.Seed) Keypair {
	return Keypair{Seed: seed, PublicKey: Derive(seed)}
}

// Address returns the base58 public key.
func (k Keypair) Address() string {
	return Encode(k.PublicKey)
}

// Bytes returns seed||publicKey, the 64-byte ed25519 private key layout.
func (k Keypair) Bytes() []byte {
	out := make([]byte, 0, keyspace.SeedSize+PublicKeySize)
	out = append(out, k.Seed[:]...)
	return append(out, k.PublicKey[:]...)
}

// MarshalJSON encodes the keypair as a JSON array of 64 integers, the format
// read by the Solana CLI.
func (k Keypair) MarshalJSON() ([]byte, error) {
	raw := k.Bytes()
	ints := make([]int, len(raw))
	for i, b := range raw {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON decodes the 64-integer array and checks that the public key
// half matches the seed half.
func (k *Keypair) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	if len(ints) != keyspace.SeedSize+PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, keyspace.SeedSize+PublicKeySize, len(ints))
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
		}
		raw[i] = byte(v)
	}

	var seed keyspace.Seed
	copy(seed[:], raw[:keyspace.SeedSize])
	derived := Derive(seed)
	if !bytes.Equal(derived[:], raw[keyspace.SeedSize:]) {
		return ErrKeyMismatch
	}
	k.Seed = seed
	k.PublicKey = derived
	return nil
}

// Decode parses a base58 address back into a public key.
func Decode(address string) ([PublicKeySize]byte, error) {
	var pub [PublicKeySize]byte
	raw, err := base58.Decode(address)
	if err != nil {
		return pub, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	if len(raw) != PublicKeySize {
		return pub, fmt.Errorf("%w: address decodes to %d bytes", ErrInvalidKeypair, len(raw))
	}
	copy(pub[:], raw)
	return pub, nil
}
