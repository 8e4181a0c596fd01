// Package alloc implements the engine's byte-buffer allocator contract
// (spec.md §5, §6: "two process-wide state slots hold function pointers
// for the allocator"). Grounded on the teacher's message/pool.Pool: a
// sync.Pool of reusable buffers with an atomic high-water count capping
// how many buffers are held ready for reuse.
package alloc

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/mbedcoap/core/message"
)

// Allocator is the host-provided buffer source every engine-owned buffer
// is obtained from and released to, per spec.md §5's shared resource
// policy.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

// PoolAllocator is a sync.Pool-backed Allocator bounded by both a buffer
// size ceiling and a maximum pool depth, matching the teacher's
// maxMessageBufferSize/maxNumMessages pair.
type PoolAllocator struct {
	pooled    atomic.Int64
	pool      sync.Pool
	maxSize   int
	maxPooled int64
}

// NewPoolAllocator constructs a PoolAllocator that refuses to hand out
// buffers larger than maxSize and keeps at most maxPooled buffers ready
// for reuse once released.
func NewPoolAllocator(maxSize int, maxPooled int64) *PoolAllocator {
	return &PoolAllocator{maxSize: maxSize, maxPooled: maxPooled}
}

// Alloc returns a buffer of exactly size bytes, reusing a pooled one when
// big enough or allocating fresh otherwise. Returns ErrAllocFailed when
// size exceeds maxSize.
func (p *PoolAllocator) Alloc(size int) ([]byte, error) {
	if p.maxSize > 0 && size > p.maxSize {
		return nil, message.ErrAllocFailed
	}
	v := p.pool.Get()
	if v == nil {
		return make([]byte, size, maxInt(size, p.maxSize)), nil
	}
	buf := v.([]byte)
	p.pooled.Dec()
	if cap(buf) < size {
		return make([]byte, size, maxInt(size, p.maxSize)), nil
	}
	return buf[:size], nil
}

// Free returns buf to the pool for reuse, unless the pool is already at
// maxPooled capacity, in which case it is dropped for the GC to reclaim.
func (p *PoolAllocator) Free(buf []byte) {
	if p.maxPooled > 0 {
		for {
			cur := p.pooled.Load()
			if cur >= p.maxPooled {
				return
			}
			if p.pooled.CompareAndSwap(cur, cur+1) {
				break
			}
		}
	}
	p.pool.Put(buf[:0])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
