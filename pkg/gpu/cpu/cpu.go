// Package cpu provides a pure-Go reference implementation of the vanity
// kernel. It exists so the search runs on hosts without a GPU and so the
// other backends have something to be checked against; it is not tuned.
//
// Each Run splits its candidates into Lanes contiguous ranges and checks them
// on separate goroutines. The first lane to find a match stops the others.
package cpu

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keypair"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/pattern"
	"github.com/orneryd/solvanity/pkg/pool"
)

// BackendName identifies this backend in logs and device listings.
const BackendName = "cpu"

// Device is a logical CPU device. Several can be created to model several
// compute devices on one host.
type Device struct {
	index int
	lanes int
}

// NewDevice creates a CPU device. lanes <= 0 uses GOMAXPROCS.
func NewDevice(index, lanes int) *Device {
	if lanes <= 0 {
		lanes = runtime.GOMAXPROCS(0)
	}
	return &Device{index: index, lanes: lanes}
}

// Devices creates n CPU devices sharing the host's cores evenly.
func Devices(n int) []*Device {
	if n <= 0 {
		n = 1
	}
	lanes := runtime.GOMAXPROCS(0) / n
	if lanes < 1 {
		lanes = 1
	}
	out := make([]*Device, n)
	for i := range out {
		out[i] = NewDevice(i, lanes)
	}
	return out
}

func (d *Device) Index() int      { return d.index }
func (d *Device) Backend() string { return BackendName }
func (d *Device) Lanes() int      { return d.lanes }

func (d *Device) Name() string {
	return fmt.Sprintf("CPU #%d (%d lanes)", d.index, d.lanes)
}

// Build captures the constants; there is nothing to compile.
func (d *Device) Build(c kernel.Constants) (kernel.Program, error) {
	return &Program{
		prefixes:      c.Prefixes,
		suffix:        c.Suffix,
		caseSensitive: c.CaseSensitive,
		lanes:         d.lanes,
	}, nil
}

// Program checks candidates on the host.
type Program struct {
	prefixes      [][]byte
	suffix        []byte
	caseSensitive bool
	lanes         int
}

// Run implements kernel.Program.
func (p *Program) Run(seed *keyspace.Seed, args kernel.DispatchArgs, out *kernel.MatchResult) error {
	if args.TotalParallelism <= 0 {
		return fmt.Errorf("cpu: total parallelism must be positive, got %d", args.TotalParallelism)
	}
	base := *seed
	lanes := uint64(p.lanes)
	if lanes > args.GlobalSize {
		lanes = args.GlobalSize
	}
	if lanes == 0 {
		return nil
	}
	per := (args.GlobalSize + lanes - 1) / lanes

	var found atomic.Bool
	results := pool.GetResultSlice(int(lanes))
	defer pool.PutResultSlice(results)

	g, _ := errgroup.WithContext(context.Background())
	for lane := uint64(0); lane < lanes; lane++ {
		start := lane * per
		end := start + per
		if end > args.GlobalSize {
			end = args.GlobalSize
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			candidate := base
			keyspace.AdvanceBy(&candidate, args.Candidate(start))
			stride := uint64(args.TotalParallelism)
			for i := start; i < end; i++ {
				if found.Load() {
					return nil
				}
				if p.matches(candidate) {
					if found.CompareAndSwap(false, true) {
						results[lane] = kernel.MatchResult{Flag: 1, Seed: candidate}
					}
					return nil
				}
				keyspace.AdvanceBy(&candidate, stride)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.Found() {
			*out = r
			return nil
		}
	}
	return nil
}

func (p *Program) matches(seed keyspace.Seed) bool {
	return pattern.MatchPadded(keypair.Encode(keypair.Derive(seed)), p.prefixes, p.suffix, p.caseSensitive)
}

// Release is a no-op.
func (p *Program) Release() {}
