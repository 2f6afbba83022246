package search

import (
	"log/slog"
	"time"

	"github.com/orneryd/solvanity/pkg/coord"
	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/keypair"
	"github.com/orneryd/solvanity/pkg/keyspace"
	"github.com/orneryd/solvanity/pkg/logging"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// StatsRecorder receives per-round device accounting. *gpu.Accelerator
// implements it.
type StatsRecorder interface {
	Record(s gpu.BindingStats, runtimeFailed bool)
	RecordBindFailure()
}

// WithChannelFactory sets how each round's coordination channel is made.
func WithChannelFactory(f coord.Factory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newChannel = f
		}
	}
}

// WithBatchSize sets how many dispatches a worker runs between checks.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithCheckInterval sets the minimum time between stop flag reads.
// The default is one second per device.
func WithCheckInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.checkInterval = d }
}

// WithStatsInterval sets how often workers log throughput.
func WithStatsInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.statsInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithVerification toggles host-side re-derivation of every match.
func WithVerification(enabled bool) Option {
	return func(o *Orchestrator) { o.verify = enabled }
}

// WithMaxRounds bounds the number of rounds. Zero means unbounded.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) { o.maxRounds = n }
}

// WithDeriver replaces the key derivation used to turn a matched seed into
// a keypair.
func WithDeriver(f func(keyspace.Seed) keypair.Keypair) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.derive = f
		}
	}
}

// WithStatsRecorder forwards binding statistics after every round.
func WithStatsRecorder(r StatsRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func defaultOrchestrator() *Orchestrator {
	return &Orchestrator{
		newChannel:    coord.LocalFactory,
		logger:        logging.Discard(),
		verify:        true,
		derive:        keypair.FromSeed,
		now:           time.Now,
		checkInterval: -1,
	}
}
