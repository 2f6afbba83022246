// Package search orchestrates a vanity key search across compute devices.
//
// A search runs in rounds. Each round binds the kernel to every device,
// gives each device its own random seed window and a shared stop flag, and
// waits for all workers to return. True matches are verified, written to the
// result sink, and counted against the requested total. Rounds repeat until
// enough matches have been written.
//
//	orch := search.New(accel.Devices(), sink, search.WithLogger(logger))
//	report, err := orch.Run(ctx, search.Request{
//		Pattern:       pattern.Spec{Prefixes: []string{"abc"}, CaseSensitive: true},
//		IterationBits: 24,
//		Count:         1,
//	})
//
// State machine:
//
//	Idle -> RoundRunning -> RoundComplete -> Idle | Done
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/solvanity/pkg/coord"
	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keypair"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/logging"
	"github.com/orneryd/solvanity/pkg/pattern"
	"github.com/orneryd/solvanity/pkg/storage"
	"github.com/orneryd/solvanity/pkg/worker"
)

// Search errors
var (
	ErrConfiguration = errors.New("search: invalid configuration")
	ErrNoDevices     = errors.New("search: no usable devices")
	ErrCoordination  = errors.New("search: coordination failed")
	ErrRoundLimit    = errors.New("search: round limit reached")
	ErrSink          = errors.New("search: saving match failed")
)

// State is the orchestrator's position in its round cycle.
type State int

const (
	StateIdle State = iota
	StateRoundRunning
	StateRoundComplete
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRoundRunning:
		return "round_running"
	case StateRoundComplete:
		return "round_complete"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request describes what to search for.
type Request struct {
	Pattern       pattern.Spec
	IterationBits int
	Count         int
}

// Validate checks the request without touching any device.
func (r Request) Validate() error {
	if err := r.Pattern.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := keyspace.ValidateBits(r.IterationBits); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if r.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrConfiguration, r.Count)
	}
	return nil
}

// Match is an accepted search result.
type Match struct {
	Seed      keyspace.Seed
	PublicKey [keypair.PublicKeySize]byte
	Address   string
	Device    int
	Round     int
	FoundAt   time.Time
	// Written is false if the sink already held this keypair.
	Written bool
}

// Report summarizes a finished search.
type Report struct {
	Rounds     int
	Matches    []Match
	Written    int
	Duplicates int
	Rejected   int
}

// Orchestrator runs searches over a fixed set of devices. A single
// Orchestrator runs one search at a time.
type Orchestrator struct {
	devices []kernel.Device
	sink    storage.ResultSink

	newChannel    coord.Factory
	batchSize     int
	checkInterval time.Duration
	statsInterval time.Duration
	logger        *slog.Logger
	verify        bool
	maxRounds     int
	derive        func(keyspace.Seed) keypair.Keypair
	recorder      StatsRecorder
	now           func() time.Time

	mu    sync.RWMutex
	state State
}

// New creates an orchestrator for devices, writing matches to sink.
func New(devices []kernel.Device, sink storage.ResultSink, opts ...Option) *Orchestrator {
	o := defaultOrchestrator()
	o.devices = devices
	o.sink = sink
	for _, opt := range opts {
		opt(o)
	}
	if o.checkInterval < 0 {
		o.checkInterval = time.Duration(max(len(devices), 1)) * time.Second
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run searches until req.Count matches have been accepted.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{}
	defer o.setState(StateDone)

	if err := req.Validate(); err != nil {
		return report, err
	}
	if len(o.devices) == 0 {
		return report, ErrNoDevices
	}
	if o.sink == nil {
		return report, fmt.Errorf("%w: no result sink", ErrConfiguration)
	}

	o.logger.Info("search started",
		"pattern", req.Pattern.String(),
		"count", req.Count,
		"iteration_bits", req.IterationBits,
		"devices", len(o.devices),
	)

	remaining := req.Count
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if o.maxRounds > 0 && report.Rounds >= o.maxRounds {
			return report, fmt.Errorf("%w: %d rounds, %d matches still wanted", ErrRoundLimit, report.Rounds, remaining)
		}

		report.Rounds++
		round := report.Rounds
		results, err := o.RunRound(ctx, req, round)
		if err != nil {
			return report, err
		}

		accepted, err := o.accept(req, round, results, report)
		if err != nil {
			return report, err
		}
		remaining -= accepted

		if remaining > 0 {
			o.setState(StateIdle)
		}
	}

	o.logger.Info("search finished",
		"rounds", report.Rounds,
		"written", report.Written,
		"duplicates", report.Duplicates,
		"rejected", report.Rejected,
	)
	return report, nil
}

// RunRound runs a single round and returns every worker's result. Devices
// that fail to bind are excluded from the round.
func (o *Orchestrator) RunRound(ctx context.Context, req Request, round int) ([]worker.Result, error) {
	o.setState(StateRoundRunning)
	log := logging.WithRound(o.logger, round)

	ch, err := o.newChannel()
	if err != nil {
		return nil, fmt.Errorf("%w: creating channel: %w", ErrCoordination, err)
	}
	defer ch.Close()

	type lane struct {
		offset  int
		device  kernel.Device
		binding *gpu.Binding
		window  *keyspace.Window
	}

	var lanes []lane
	defer func() {
		for _, l := range lanes {
			l.binding.Release()
		}
	}()

	var lastBindErr error
	for i, dev := range o.devices {
		b, err := gpu.Bind(dev, req.Pattern, req.IterationBits)
		if err != nil {
			lastBindErr = err
			log.Warn("device excluded from round", logging.KeyDevice, dev.Index(), logging.KeyError, err)
			if o.recorder != nil {
				o.recorder.RecordBindFailure()
			}
			continue
		}
		w, err := keyspace.NewWindow(req.IterationBits)
		if err != nil {
			b.Release()
			return nil, fmt.Errorf("search: seeding device %d: %w", dev.Index(), err)
		}
		lanes = append(lanes, lane{offset: i, device: dev, binding: b, window: w})
	}
	if len(lanes) == 0 {
		if lastBindErr == nil {
			return nil, ErrNoDevices
		}
		return nil, fmt.Errorf("%w: %w", ErrNoDevices, lastBindErr)
	}

	log.Debug("round started", "devices", len(lanes))

	results := make([]worker.Result, len(lanes))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range lanes {
		g.Go(func() error {
			results[i] = worker.Run(gctx, worker.Config{
				Device:           l.device.Index(),
				Dispatcher:       l.binding,
				Window:           l.window,
				Channel:          ch,
				WorkerOffset:     l.offset,
				TotalParallelism: len(o.devices),
				BatchSize:        o.batchSize,
				CheckInterval:    o.checkInterval,
				StatsInterval:    o.statsInterval,
				Logger:           log,
			})
			return nil
		})
	}
	_ = g.Wait()
	o.setState(StateRoundComplete)

	failed := 0
	var coordErr error
	for i, r := range results {
		if o.recorder != nil {
			o.recorder.Record(lanes[i].binding.Stats(), r.Outcome == worker.OutcomeDeviceFailed)
		}
		switch r.Outcome {
		case worker.OutcomeDeviceFailed:
			failed++
		case worker.OutcomeCoordinationFailed:
			if coordErr == nil {
				coordErr = r.Err
			}
		}
	}
	if coordErr != nil {
		return results, fmt.Errorf("%w: %w", ErrCoordination, coordErr)
	}
	if failed == len(results) {
		return results, fmt.Errorf("%w: every device failed during round %d", ErrNoDevices, round)
	}

	log.Debug("round complete", "results", len(results), "failed", failed)
	return results, nil
}

// accept filters a round's results into the report and returns how many
// matches count towards the request.
func (o *Orchestrator) accept(req Request, round int, results []worker.Result, report *Report) (int, error) {
	seen := make(map[keyspace.Seed]struct{})
	accepted := 0
	for _, r := range results {
		if !r.Found() {
			continue
		}
		if _, dup := seen[r.Match.Seed]; dup {
			report.Duplicates++
			continue
		}
		seen[r.Match.Seed] = struct{}{}

		kp := o.derive(r.Match.Seed)
		address := kp.Address()
		if o.verify && !req.Pattern.Match(address) {
			report.Rejected++
			o.logger.Warn("device reported a seed that does not match",
				logging.KeyDevice, r.Device,
				logging.KeyRound, round,
				logging.KeyAddress, address,
			)
			continue
		}

		m := Match{
			Seed:      kp.Seed,
			PublicKey: kp.PublicKey,
			Address:   address,
			Device:    r.Device,
			Round:     round,
			FoundAt:   o.now(),
		}
		written, err := o.sink.Save(storage.NewRecord(kp, m.Device, m.Round, m.FoundAt))
		if err != nil {
			return accepted, fmt.Errorf("%w: %s: %w", ErrSink, address, err)
		}
		m.Written = written
		if written {
			report.Written++
		}
		report.Matches = append(report.Matches, m)
		accepted++

		o.logger.Info("match found",
			logging.KeyDevice, m.Device,
			logging.KeyRound, round,
			logging.KeyAddress, address,
			logging.KeyDispatches, r.Dispatches,
		)
	}
	return accepted, nil
}
