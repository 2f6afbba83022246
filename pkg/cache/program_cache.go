// Package cache provides a bounded LRU cache for rendered kernel programs.
//
// Rendering a kernel (substituting pattern constants into its source) and
// handing it to a device compiler is the expensive part of binding a device.
// Every round of a search binds every device again with the same constants,
// so the rendered program is cached under a hash of those constants.
//
// Usage:
//
//	c := cache.NewProgramCache(16, 0)
//	key := cache.Key(prefixes, suffix, caseSensitive)
//	if src, ok := c.Get(key); ok {
//		return src.(string)
//	}
//	src := render(...)
//	c.Put(key, src)
package cache

import (
	"container/list"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ProgramCache is a thread-safe LRU cache with optional TTL.
type ProgramCache struct {
	mu sync.RWMutex

	maxSize int
	ttl     time.Duration
	enabled bool

	list  *list.List
	items map[uint64]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       uint64
	value     any
	expiresAt time.Time
}

// NewProgramCache creates a cache holding at most maxSize entries. A zero
// ttl disables expiry.
func NewProgramCache(maxSize int, ttl time.Duration) *ProgramCache {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &ProgramCache{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		list:    list.New(),
		items:   make(map[uint64]*list.Element, maxSize),
	}
}

// Key hashes kernel constants into a cache key. Each part is prefixed with
// its uvarint length so that ("ab","c") and ("a","bc") hash differently at
// any part size.
func Key(prefixes [][]byte, suffix []byte, caseSensitive bool) uint64 {
	d := xxhash.New()
	var n []byte
	n = binary.AppendUvarint(n[:0], uint64(len(prefixes)))
	d.Write(n)
	for _, p := range prefixes {
		n = binary.AppendUvarint(n[:0], uint64(len(p)))
		d.Write(n)
		d.Write(p)
	}
	n = binary.AppendUvarint(n[:0], uint64(len(suffix)))
	d.Write(n)
	d.Write(suffix)
	if caseSensitive {
		d.Write([]byte{1})
	} else {
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// Get returns the cached value for key if present and not expired.
func (c *ProgramCache) Get(key uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	elem, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}

	c.list.MoveToFront(elem)
	atomic.AddUint64(&c.hits, 1)
	return entry.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *ProgramCache) Put(key uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{key: key, value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.items[key] = c.list.PushFront(entry)
}

// GetOrCreate returns the cached value for key or builds, stores and returns
// a new one. Builders may run concurrently for the same key; the last Put
// wins, which is fine for deterministic renders.
func (c *ProgramCache) GetOrCreate(key uint64, build func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := build()
	if err != nil {
		return nil, err
	}
	c.Put(key, v)
	return v, nil
}

// Remove drops key from the cache.
func (c *ProgramCache) Remove(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear drops every entry.
func (c *ProgramCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.items = make(map[uint64]*list.Element, c.maxSize)
}

// Len returns the number of cached entries.
func (c *ProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// SetEnabled toggles caching. Disabling also clears the cache.
func (c *ProgramCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.list.Init()
		c.items = make(map[uint64]*list.Element, c.maxSize)
	}
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64 // percent, 0-100
}

// Stats returns a snapshot of the cache counters.
func (c *ProgramCache) Stats() CacheStats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return CacheStats{
		Size:    size,
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *ProgramCache) evictOldest() {
	if elem := c.list.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from the cache.
// Caller must hold the lock.
func (c *ProgramCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
