package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/solvanity/pkg/coord"
	"github.com/orneryd/solvanity/pkg/gpu"
	"github.com/orneryd/solvanity/pkg/kernel"
	"github.com/orneryd/solvanity/pkg/keyspace"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// scriptedDispatcher matches on dispatch number matchOn (1-based) and
// advances the clock by tick per dispatch.
type scriptedDispatcher struct {
	matchOn int
	failOn  int
	panicOn int
	clock   *fakeClock
	tick    time.Duration
	seeds   []keyspace.Seed
}

func (d *scriptedDispatcher) Dispatch(seed keyspace.Seed, _, _ int) (kernel.MatchResult, error) {
	d.seeds = append(d.seeds, seed)
	n := len(d.seeds)
	if d.clock != nil {
		d.clock.Advance(d.tick)
	}
	if n == d.panicOn {
		panic("kernel fault")
	}
	if n == d.failOn {
		return kernel.NoMatch, gpu.ErrDeviceRuntime
	}
	if n == d.matchOn {
		return kernel.MatchResult{Flag: 1, Seed: seed}, nil
	}
	return kernel.NoMatch, nil
}

func newWindow(t *testing.T) *keyspace.Window {
	t.Helper()
	w, err := keyspace.NewWindowAt(keyspace.Seed{0xAB}, 8)
	require.NoError(t, err)
	return w
}

func TestRunReturnsMatchImmediately(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	d := &scriptedDispatcher{matchOn: 3, clock: clock}
	ch := coord.NewLocal()

	res := Run(context.Background(), Config{
		Dispatcher:    d,
		Window:        newWindow(t),
		Channel:       ch,
		BatchSize:     5,
		CheckInterval: time.Hour,
		Now:           clock.Now,
	})

	require.Equal(t, OutcomeMatch, res.Outcome)
	assert.True(t, res.Found())
	assert.Equal(t, int64(3), res.Dispatches)
	assert.Equal(t, d.seeds[2], res.Match.Seed)

	stopped, err := ch.Stopped()
	require.NoError(t, err)
	assert.True(t, stopped)
}

func TestRunAdvancesSeedBetweenDispatches(t *testing.T) {
	d := &scriptedDispatcher{matchOn: 4}
	w := newWindow(t)
	start := w.Seed()

	res := Run(context.Background(), Config{
		Dispatcher: d,
		Window:     w,
		Channel:    coord.NewLocal(),
		BatchSize:  2,
	})
	require.Equal(t, OutcomeMatch, res.Outcome)
	require.Len(t, d.seeds, 4)

	for k, s := range d.seeds {
		want := start
		keyspace.AdvanceBy(&want, uint64(k)*keyspace.Step(8))
		assert.Equal(t, want, s, "dispatch %d", k+1)
	}
	assert.Equal(t, uint64(4), w.Advances())
}

func TestRunStopsWhenSiblingSignalled(t *testing.T) {
	ch := coord.NewLocal()
	_, err := ch.Signal()
	require.NoError(t, err)

	d := &scriptedDispatcher{}
	res := Run(context.Background(), Config{
		Dispatcher: d,
		Window:     newWindow(t),
		Channel:    ch,
		BatchSize:  5,
	})

	assert.Equal(t, OutcomeStopped, res.Outcome)
	assert.False(t, res.Found())
	assert.Equal(t, kernel.NoMatch, res.Match)
	assert.Equal(t, int64(5), res.Dispatches, "flag is only read between batches")
}

func TestRunChecksOnlyAfterInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	ch := coord.NewLocal()
	_, err := ch.Signal()
	require.NoError(t, err)

	d := &scriptedDispatcher{clock: clock, tick: 100 * time.Millisecond}
	res := Run(context.Background(), Config{
		Dispatcher:    d,
		Window:        newWindow(t),
		Channel:       ch,
		BatchSize:     5,
		CheckInterval: time.Second,
		Now:           clock.Now,
	})

	assert.Equal(t, OutcomeStopped, res.Outcome)
	assert.Equal(t, int64(10), res.Dispatches)
}

func TestRunDeviceFailure(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		res := Run(context.Background(), Config{
			Dispatcher: &scriptedDispatcher{failOn: 2},
			Window:     newWindow(t),
			Channel:    coord.NewLocal(),
		})
		assert.Equal(t, OutcomeDeviceFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, gpu.ErrDeviceRuntime)
		assert.False(t, res.Found())
	})

	t.Run("panic", func(t *testing.T) {
		res := Run(context.Background(), Config{
			Dispatcher: &scriptedDispatcher{panicOn: 1},
			Window:     newWindow(t),
			Channel:    coord.NewLocal(),
		})
		assert.Equal(t, OutcomeDeviceFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, gpu.ErrDeviceRuntime)
		assert.Contains(t, res.Err.Error(), "kernel fault")
	})

	t.Run("missing dispatcher", func(t *testing.T) {
		res := Run(context.Background(), Config{Window: newWindow(t), Channel: coord.NewLocal()})
		assert.Equal(t, OutcomeDeviceFailed, res.Outcome)
		assert.Error(t, res.Err)
	})
}

func TestRunCoordinationFailure(t *testing.T) {
	t.Run("on check", func(t *testing.T) {
		ch := coord.NewLocal()
		require.NoError(t, ch.Close())
		res := Run(context.Background(), Config{
			Dispatcher: &scriptedDispatcher{},
			Window:     newWindow(t),
			Channel:    ch,
		})
		assert.Equal(t, OutcomeCoordinationFailed, res.Outcome)
		assert.True(t, errors.Is(res.Err, coord.ErrClosed))
	})

	t.Run("on signal", func(t *testing.T) {
		ch := coord.NewLocal()
		require.NoError(t, ch.Close())
		res := Run(context.Background(), Config{
			Dispatcher: &scriptedDispatcher{matchOn: 1},
			Window:     newWindow(t),
			Channel:    ch,
		})
		assert.Equal(t, OutcomeCoordinationFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, coord.ErrClosed)
	})
}

func TestRunObservesContextAtCheckBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &scriptedDispatcher{}
	res := Run(ctx, Config{
		Dispatcher: d,
		Window:     newWindow(t),
		Channel:    coord.NewLocal(),
		BatchSize:  3,
	})
	assert.Equal(t, OutcomeStopped, res.Outcome)
	assert.Equal(t, int64(3), res.Dispatches)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "stopped", OutcomeStopped.String())
	assert.Equal(t, "match", OutcomeMatch.String())
	assert.Equal(t, "device_failed", OutcomeDeviceFailed.String())
	assert.Equal(t, "coordination_failed", OutcomeCoordinationFailed.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
