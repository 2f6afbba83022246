//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package coord

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Layout of the shared page.
const (
	lockWord = 0
	flagWord = 1
	pageSize = 4096
)

// Shared is a Channel whose lock and flag live in an anonymous MAP_SHARED
// mapping, so children forked after creation see the same state.
type Shared struct {
	data  []byte
	words *[2]uint32

	// mu guards data against Close racing with Signal in this process.
	mu     sync.RWMutex
	closed bool
}

// NewShared maps one shared page.
func NewShared() (*Shared, error) {
	data, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("coord: mmap shared page: %w", err)
	}
	return &Shared{
		data:  data,
		words: (*[2]uint32)(unsafe.Pointer(&data[0])),
	}, nil
}

func (c *Shared) lock() {
	for !atomic.CompareAndSwapUint32(&c.words[lockWord], 0, 1) {
		runtime.Gosched()
	}
}

func (c *Shared) unlock() {
	atomic.StoreUint32(&c.words[lockWord], 0)
}

func (c *Shared) Signal() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, ErrClosed
	}
	c.lock()
	defer c.unlock()
	if atomic.LoadUint32(&c.words[flagWord]) != 0 {
		return false, nil
	}
	atomic.StoreUint32(&c.words[flagWord], 1)
	return true, nil
}

func (c *Shared) Stopped() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, ErrClosed
	}
	c.lock()
	defer c.unlock()
	return atomic.LoadUint32(&c.words[flagWord]) != 0, nil
}

func (c *Shared) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.words = nil
	if err := unix.Munmap(c.data); err != nil {
		return fmt.Errorf("coord: munmap shared page: %w", err)
	}
	c.data = nil
	return nil
}
