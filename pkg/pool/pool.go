// Package pool provides object pooling for Comet's parse pipeline.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool built on sync.Pool with usage statistics.
type Pool[T any] struct {
	pool  sync.Pool
	gets  atomic.Int64
	puts  atomic.Int64
	news  atomic.Int64
	reset func(T) T
}

// NewPool creates a pool that allocates with newFn and optionally cleans
// returned objects with resetFn before reuse.
func NewPool[T any](newFn func() T, resetFn func(T) T) *Pool[T] {
	p := &Pool[T]{reset: resetFn}
	p.pool.New = func() interface{} {
		p.news.Add(1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		obj = p.reset(obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool usage statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Allocated: p.news.Load(),
	}
}

// PoolStats represents pool usage statistics
type PoolStats struct {
	Gets      int64
	Puts      int64
	Allocated int64
}

// HitRate returns the fraction of Gets served without a fresh allocation.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.Allocated) / float64(s.Gets)
}

const (
	defaultByteSliceCap   = 4096
	defaultUint64SliceCap = 1024
	defaultStringSliceCap = 64
)

var byteSlicePool = NewPool(
	func() []byte { return make([]byte, 0, defaultByteSliceCap) },
	func(b []byte) []byte { return b[:0] },
)

// GetByteSlice retrieves a byte slice from the global pool
func GetByteSlice() []byte {
	return byteSlicePool.Get()
}

// PutByteSlice returns a byte slice to the global pool. Oversized slices are
// dropped so the pool does not pin large buffers.
func PutByteSlice(b []byte) {
	if cap(b) > 1<<20 {
		return
	}
	byteSlicePool.Put(b)
}

var uint64SlicePool = NewPool(
	func() []uint64 { return make([]uint64, 0, defaultUint64SliceCap) },
	func(s []uint64) []uint64 { return s[:0] },
)

// GetUint64Slice retrieves a uint64 slice from the global pool. Tape merge and
// pool recode scratch vectors come from here.
func GetUint64Slice() []uint64 {
	return uint64SlicePool.Get()
}

// PutUint64Slice returns a uint64 slice to the global pool
func PutUint64Slice(s []uint64) {
	if cap(s) > 1<<18 {
		return
	}
	uint64SlicePool.Put(s)
}

var stringSlicePool = NewPool(
	func() []string { return make([]string, 0, defaultStringSliceCap) },
	func(s []string) []string { return s[:0] },
)

// GetStringSlice retrieves a string slice from the global pool
func GetStringSlice() []string {
	return stringSlicePool.Get()
}

// PutStringSlice returns a string slice to the global pool
func PutStringSlice(s []string) {
	for i := range s {
		s[i] = ""
	}
	stringSlicePool.Put(s)
}
