// Package coord provides the per-round coordination channel shared by the
// workers of a search: one lock guarding one stop flag.
//
// The flag goes false to true at most once per channel. Signal reports
// whether the caller performed that transition, so exactly one worker per
// round observes transitioned == true.
package coord

import (
	"errors"
	"sync"
)

// ErrClosed is returned by every method of a closed channel.
var ErrClosed = errors.New("coord: channel closed")

// Channel is a round-scoped stop flag.
type Channel interface {
	// Signal sets the stop flag if it is not already set.
	Signal() (transitioned bool, err error)
	// Stopped reads the stop flag.
	Stopped() (bool, error)
	// Close releases the channel. Further calls return ErrClosed.
	Close() error
}

// Factory creates a fresh channel for each round.
type Factory func() (Channel, error)

// LocalFactory creates goroutine-local channels.
func LocalFactory() (Channel, error) { return NewLocal(), nil }

// SharedFactory creates channels that survive a fork.
func SharedFactory() (Channel, error) {
	c, err := NewShared()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Local is a Channel for workers running as goroutines in one process.
type Local struct {
	mu      sync.Mutex
	stopped bool
	closed  bool
}

// NewLocal creates an unset local channel.
func NewLocal() *Local {
	return &Local{}
}

func (c *Local) Signal() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if c.stopped {
		return false, nil
	}
	c.stopped = true
	return true, nil
}

func (c *Local) Stopped() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.stopped, nil
}

func (c *Local) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return nil
}
