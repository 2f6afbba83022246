// Package storage persists accepted vanity keypairs.
//
// Every sink implements ResultSink and is idempotent per address: saving the
// same keypair twice writes once, and saving a different keypair under an
// address that already exists fails with ErrConflict.
//
// Implementations:
//   - DirSink: one <address>.json file per keypair, in the Solana CLI format
//   - BadgerSink: CBOR records in BadgerDB, on disk or in memory
//   - MultiSink: fans a save out to several sinks
//
// Example:
//
//	sink, err := storage.NewDirSink("./keypairs")
//	if err != nil {
//		return err
//	}
//	written, err := sink.Save(storage.NewRecord(kp, 0, 1, time.Now()))
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/orneryd/solvanity/pkg/keypair"
	"github.com/orneryd/solvanity/pkg/keyspace"
)

// Storage errors
var (
	ErrConflict      = errors.New("storage: a different keypair is already stored under this address")
	ErrInvalidRecord = errors.New("storage: invalid record")
	ErrClosed        = errors.New("storage: sink closed")
)

// ResultSink persists matches.
type ResultSink interface {
	// Save stores rec. written is false when an identical keypair was
	// already present.
	Save(rec Record) (written bool, err error)
	Close() error
}

// Record is one accepted match.
type Record struct {
	Address   string    `cbor:"1,keyasint"`
	Seed      []byte    `cbor:"2,keyasint"`
	PublicKey []byte    `cbor:"3,keyasint"`
	Device    int       `cbor:"4,keyasint"`
	Round     int       `cbor:"5,keyasint"`
	FoundAt   time.Time `cbor:"6,keyasint"`
}

// NewRecord builds a record from a derived keypair.
func NewRecord(kp keypair.Keypair, device, round int, foundAt time.Time) Record {
	return Record{
		Address:   kp.Address(),
		Seed:      append([]byte(nil), kp.Seed[:]...),
		PublicKey: append([]byte(nil), kp.PublicKey[:]...),
		Device:    device,
		Round:     round,
		FoundAt:   foundAt.UTC(),
	}
}

// Keypair rebuilds the keypair and checks it against the stored address.
func (r Record) Keypair() (keypair.Keypair, error) {
	var kp keypair.Keypair
	if len(r.Seed) != keyspace.SeedSize || len(r.PublicKey) != keypair.PublicKeySize {
		return kp, fmt.Errorf("%w: seed %d bytes, public key %d bytes", ErrInvalidRecord, len(r.Seed), len(r.PublicKey))
	}
	var seed keyspace.Seed
	copy(seed[:], r.Seed)
	kp = keypair.FromSeed(seed)
	if !bytes.Equal(kp.PublicKey[:], r.PublicKey) || kp.Address() != r.Address {
		return kp, fmt.Errorf("%w: %s", keypair.ErrKeyMismatch, r.Address)
	}
	return kp, nil
}

// sameKeypair reports whether two records hold the same key material.
func sameKeypair(a, b Record) bool {
	return a.Address == b.Address && bytes.Equal(a.Seed, b.Seed) && bytes.Equal(a.PublicKey, b.PublicKey)
}
