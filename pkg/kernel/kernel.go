// Package kernel defines the contract between the host-side search and a
// compute kernel running on one device.
//
// A Device compiles a Program from pattern Constants once per round. The
// Program is then run repeatedly, each time over a window of candidate seeds
// starting at the seed it is given. A Program must never modify the seed it
// receives; the host advances the seed between runs.
//
// The result of a run is a MatchResult, whose wire form is 33 bytes:
//
//	[flag][32-byte seed]
//
// The seed bytes are only meaningful when the flag is non-zero. Result
// buffers are reused across runs, so stale seed bytes with a zero flag are
// expected and must be ignored.
package kernel

import (
	"errors"
	"fmt"

	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/pattern"
)

// ResultSize is the wire size of a MatchResult.
const ResultSize = 1 + keyspace.SeedSize

var ErrResultSize = fmt.Errorf("kernel: match result must be %d bytes", ResultSize)

// MatchResult is the output of one kernel run.
type MatchResult struct {
	Flag byte
	Seed keyspace.Seed
}

// NoMatch is the zero result.
var NoMatch = MatchResult{}

// Found reports whether the run produced a match.
func (r MatchResult) Found() bool { return r.Flag != 0 }

// Bytes returns the 33-byte wire form.
func (r MatchResult) Bytes() []byte {
	out := make([]byte, ResultSize)
	out[0] = r.Flag
	copy(out[1:], r.Seed[:])
	return out
}

// ParseMatchResult decodes the 33-byte wire form written by device kernels.
func ParseMatchResult(b []byte) (MatchResult, error) {
	var r MatchResult
	if len(b) != ResultSize {
		return r, fmt.Errorf("%w: got %d", ErrResultSize, len(b))
	}
	r.Flag = b[0]
	copy(r.Seed[:], b[1:])
	return r, nil
}

// Constants are the pattern values baked into a Program at build time.
type Constants struct {
	// Prefixes are zero-padded to PrefixWidth. A single empty row means
	// "any prefix".
	Prefixes      [][]byte
	PrefixWidth   int
	Suffix        []byte
	CaseSensitive bool
}

// ConstantsFor converts a validated pattern spec into kernel constants.
func ConstantsFor(spec pattern.Spec) Constants {
	return Constants{
		Prefixes:      spec.PaddedPrefixes(),
		PrefixWidth:   spec.PrefixWidth(),
		Suffix:        []byte(spec.Suffix),
		CaseSensitive: spec.CaseSensitive,
	}
}

// DispatchArgs are the per-run inputs besides the seed.
type DispatchArgs struct {
	// IterationBytes is the width of the seed's counter region.
	IterationBytes int
	// GlobalSize is the number of candidates this run checks, i.e.
	// 2^iterationBits / TotalParallelism.
	GlobalSize uint64
	// WorkerOffset and TotalParallelism interleave the candidate space
	// across devices: this run checks seed + i*TotalParallelism + WorkerOffset.
	WorkerOffset     int
	TotalParallelism int
}

// Candidate returns the offset from the dispatch seed of the i-th candidate.
func (a DispatchArgs) Candidate(i uint64) uint64 {
	return i*uint64(a.TotalParallelism) + uint64(a.WorkerOffset)
}

// Program is a kernel compiled for one device and one set of Constants.
type Program interface {
	// Run checks GlobalSize candidates starting from seed and writes the
	// outcome to out. It must not modify seed.
	Run(seed *keyspace.Seed, args DispatchArgs, out *MatchResult) error
	// Release frees device resources held by the program.
	Release()
}

// Device is one compute device able to build programs.
type Device interface {
	Index() int
	Name() string
	Backend() string
	Build(c Constants) (Program, error)
}

// ErrNotImplemented is returned by devices whose backend is compiled out.
var ErrNotImplemented = errors.New("kernel: backend not available in this build")
