// Package worker drives one compute device for the duration of a round.
//
// A worker dispatches in batches, advancing its seed window on the host after
// every dispatch. Between batches, and at most once per check interval, it
// reads the round's stop flag. A true match is reported immediately: the
// worker raises the stop flag and returns without waiting for the interval.
//
// Device faults never escape a worker. They are logged and reported as
// OutcomeDeviceFailed so sibling workers keep running.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/orneryd/solvanity/pkg/coord"
	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/logging"
)

// Defaults applied by Run when the corresponding Config field is zero.
const (
	DefaultBatchSize     = 5
	DefaultCheckInterval = time.Second
	DefaultStatsInterval = 10 * time.Second
)

// Outcome is how a worker left its loop.
type Outcome int

const (
	// OutcomeStopped means a sibling raised the stop flag or the context ended.
	OutcomeStopped Outcome = iota
	// OutcomeMatch means this worker found a match.
	OutcomeMatch
	// OutcomeDeviceFailed means the device errored or panicked.
	OutcomeDeviceFailed
	// OutcomeCoordinationFailed means the round's channel could not be used.
	OutcomeCoordinationFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeMatch:
		return "match"
	case OutcomeDeviceFailed:
		return "device_failed"
	case OutcomeCoordinationFailed:
		return "coordination_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Dispatcher runs one kernel dispatch. *gpu.Binding implements it.
type Dispatcher interface {
	Dispatch(seed keyspace.Seed, workerOffset, totalParallelism int) (kernel.MatchResult, error)
}

// Config is everything a worker needs for one round.
type Config struct {
	Device           int
	Dispatcher       Dispatcher
	Window           *keyspace.Window
	Channel          coord.Channel
	WorkerOffset     int
	TotalParallelism int

	BatchSize     int
	CheckInterval time.Duration
	StatsInterval time.Duration

	Logger *slog.Logger
	// Now is the clock used for the check interval. Defaults to time.Now.
	Now func() time.Time
}

// Result is what a worker hands back to the orchestrator.
type Result struct {
	Device     int
	Outcome    Outcome
	Match      kernel.MatchResult
	Dispatches int64
	Err        error
}

// Found reports whether the result carries a true match.
func (r Result) Found() bool {
	return r.Outcome == OutcomeMatch && r.Match.Found()
}

// Run drives the device until a match, a stop signal, a context
// cancellation observed at a check boundary, or a fault.
func Run(ctx context.Context, cfg Config) (res Result) {
	cfg = withDefaults(cfg)
	log := logging.WithDevice(cfg.Logger, cfg.Device)

	// The last observed result is never undefined.
	last := kernel.NoMatch
	res = Result{Device: cfg.Device, Outcome: OutcomeStopped, Match: last}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: device %d: panic: %v", gpu.ErrDeviceRuntime, cfg.Device, r)
			log.Error("worker panicked", logging.KeyError, err)
			res.Outcome = OutcomeDeviceFailed
			res.Match = kernel.NoMatch
			res.Err = err
		}
	}()

	if cfg.Dispatcher == nil || cfg.Window == nil || cfg.Channel == nil {
		res.Outcome = OutcomeDeviceFailed
		res.Err = errors.New("worker: dispatcher, window and channel are required")
		return res
	}

	perDispatch := keyspace.Step(cfg.Window.Bits()) / uint64(max(cfg.TotalParallelism, 1))
	speed := rate.Sometimes{Interval: cfg.StatsInterval}
	started := cfg.Now()
	lastCheck := started

	for {
		for i := 0; i < cfg.BatchSize; i++ {
			m, err := cfg.Dispatcher.Dispatch(cfg.Window.Seed(), cfg.WorkerOffset, cfg.TotalParallelism)
			res.Dispatches++
			if err != nil {
				log.Error("dispatch failed", logging.KeyDispatches, res.Dispatches, logging.KeyError, err)
				res.Outcome = OutcomeDeviceFailed
				res.Match = kernel.NoMatch
				res.Err = err
				return res
			}
			cfg.Window.Next()
			last = m

			if m.Found() {
				if _, err := cfg.Channel.Signal(); err != nil {
					log.Error("signal stop failed", logging.KeyError, err)
					res.Outcome = OutcomeCoordinationFailed
					res.Err = err
					return res
				}
				log.Debug("match found", logging.KeyDispatches, res.Dispatches)
				res.Outcome = OutcomeMatch
				res.Match = m
				return res
			}
		}

		speed.Do(func() {
			elapsed := cfg.Now().Sub(started).Seconds()
			if elapsed <= 0 {
				return
			}
			log.Info("throughput",
				logging.KeyDispatches, res.Dispatches,
				"candidates_per_sec", float64(uint64(res.Dispatches)*perDispatch)/elapsed,
			)
		})

		now := cfg.Now()
		if now.Sub(lastCheck) < cfg.CheckInterval {
			continue
		}
		lastCheck = now

		if ctx.Err() != nil {
			log.Debug("context done", logging.KeyError, ctx.Err())
			res.Match = last
			return res
		}
		stopped, err := cfg.Channel.Stopped()
		if err != nil {
			log.Error("read stop flag failed", logging.KeyError, err)
			res.Outcome = OutcomeCoordinationFailed
			res.Err = err
			return res
		}
		if stopped {
			res.Match = last
			return res
		}
	}
}

func withDefaults(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CheckInterval < 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.TotalParallelism <= 0 {
		cfg.TotalParallelism = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}
