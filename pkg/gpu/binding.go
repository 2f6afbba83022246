package gpu

import (
	"fmt"
	"sync"

	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/pattern"
)

// Binding is a kernel compiled for one device with one round's pattern.
// It is owned by a single worker and is not safe for concurrent Dispatch.
type Binding struct {
	device        kernel.Device
	program       kernel.Program
	iterationBits int

	// out is reused across dispatches; its flag is cleared before every run.
	out  kernel.MatchResult
	seed keyspace.Seed

	mu     sync.Mutex
	stats  BindingStats
	closed bool
}

// BindingStats counts the work a binding has done.
type BindingStats struct {
	Dispatches int64
	Candidates uint64
	Matches    int64
}

// Bind compiles the kernel for spec on dev. Build failures are wrapped in
// ErrDeviceBuild so the caller can exclude the device for this round.
func Bind(dev kernel.Device, spec pattern.Spec, iterationBits int) (b *Binding, err error) {
	if err := keyspace.ValidateBits(iterationBits); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("%w: device %d: panic: %v", ErrDeviceBuild, dev.Index(), r)
		}
	}()

	prog, err := dev.Build(kernel.ConstantsFor(spec))
	if err != nil {
		return nil, fmt.Errorf("%w: device %d (%s): %v", ErrDeviceBuild, dev.Index(), dev.Name(), err)
	}
	if prog == nil {
		return nil, fmt.Errorf("%w: device %d returned no program", ErrDeviceBuild, dev.Index())
	}

	return &Binding{
		device:        dev,
		program:       prog,
		iterationBits: iterationBits,
	}, nil
}

// Device returns the bound device.
func (b *Binding) Device() kernel.Device { return b.device }

// IterationBits returns the window width of each dispatch.
func (b *Binding) IterationBits() int { return b.iterationBits }

// Dispatch runs the kernel over the window starting at seed, checking the
// candidates that belong to workerOffset out of totalParallelism workers.
// Runtime failures, including panics inside the backend, are wrapped in
// ErrDeviceRuntime.
func (b *Binding) Dispatch(seed keyspace.Seed, workerOffset, totalParallelism int) (res kernel.MatchResult, err error) {
	if b.closed {
		return kernel.NoMatch, fmt.Errorf("%w: device %d: binding released", ErrDeviceRuntime, b.device.Index())
	}
	if totalParallelism <= 0 || workerOffset < 0 || workerOffset >= totalParallelism {
		return kernel.NoMatch, fmt.Errorf("%w: device %d: worker offset %d out of %d",
			ErrDeviceRuntime, b.device.Index(), workerOffset, totalParallelism)
	}

	args := kernel.DispatchArgs{
		IterationBytes:   keyspace.IterationBytes(b.iterationBits),
		GlobalSize:       keyspace.Step(b.iterationBits) / uint64(totalParallelism),
		WorkerOffset:     workerOffset,
		TotalParallelism: totalParallelism,
	}

	defer func() {
		if r := recover(); r != nil {
			res = kernel.NoMatch
			err = fmt.Errorf("%w: device %d: panic: %v", ErrDeviceRuntime, b.device.Index(), r)
		}
	}()

	b.out.Flag = 0
	b.seed = seed
	if err := b.program.Run(&b.seed, args, &b.out); err != nil {
		return kernel.NoMatch, fmt.Errorf("%w: device %d: %v", ErrDeviceRuntime, b.device.Index(), err)
	}

	b.mu.Lock()
	b.stats.Dispatches++
	b.stats.Candidates += args.GlobalSize
	if b.out.Found() {
		b.stats.Matches++
	}
	b.mu.Unlock()

	if !b.out.Found() {
		return kernel.NoMatch, nil
	}
	return b.out, nil
}

// Stats returns a snapshot of the binding's counters.
func (b *Binding) Stats() BindingStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Release frees the compiled program. It is safe to call more than once.
func (b *Binding) Release() {
	if b.closed {
		return
	}
	b.closed = true
	b.program.Release()
}
