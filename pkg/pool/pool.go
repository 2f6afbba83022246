// Package pool provides object pooling for the CPU kernel to reduce
// allocations on the dispatch path.
//
// A CPU dispatch runs thousands of times per round and each one needs a
// result slot per lane. Pooling the lane slices keeps the garbage collector
// out of the dispatch loop.
//
// Usage:
//
//	results := pool.GetResultSlice(lanes)
//	defer pool.PutResultSlice(results)
package pool

import (
	"sync"

	"github.com/orneryd/solvanity/pkg/kernel"
)

// maxPooledLanes is the largest result slice returned to the pool; bigger
// ones are left to the garbage collector.
const maxPooledLanes = 1024

// =============================================================================
// Result Slice Pool (one slot per CPU lane)
// =============================================================================

var resultSlicePool = sync.Pool{
	New: func() any {
		s := make([]kernel.MatchResult, 0, 64)
		return &s
	},
}

// GetResultSlice returns a zeroed slice of n results.
func GetResultSlice(n int) []kernel.MatchResult {
	p := resultSlicePool.Get().(*[]kernel.MatchResult)
	s := *p
	if cap(s) < n {
		s = make([]kernel.MatchResult, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// PutResultSlice returns a slice obtained from GetResultSlice.
func PutResultSlice(s []kernel.MatchResult) {
	if s == nil || cap(s) > maxPooledLanes {
		return
	}
	s = s[:0]
	resultSlicePool.Put(&s)
}
