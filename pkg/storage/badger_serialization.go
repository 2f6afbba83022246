// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const recordPrefix = "match:"

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	// Canonical encoding keeps stored bytes stable across versions.
	encOpts := cbor.CanonicalEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	if cborEnc, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("storage: cbor enc mode: %v", err))
	}
	if cborDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("storage: cbor dec mode: %v", err))
	}
}

func recordKey(address string) []byte {
	return []byte(recordPrefix + address)
}

// serializeRecord converts a Record to CBOR bytes for BadgerDB storage.
func serializeRecord(rec Record) ([]byte, error) {
	data, err := cborEnc.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// deserializeRecord converts CBOR bytes back to a Record.
func deserializeRecord(data []byte) (Record, error) {
	var rec Record
	if err := cborDec.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}
