package bucket

import "sync"

// Allocator is the per-pipeline memory allocator spec.md §3 assigns to
// every bucket ("an associated allocator"). All buckets created from one
// Allocator share its pool of scratch buffers. Allocator has no bulk
// release; buffers are handed back one at a time, and the pool goes away
// with the Allocator when the pipeline is torn down.
//
// Grounded in the teacher's pkg/buffer, which pools scratch memory for
// request/response bodies; here the same pooling idea is scoped to the
// small scratch buffers the bucket kinds need internally (flattening an
// iovec before a TLS write, assembling a headers block), not to buffer
// whole bodies — the Non-goal on "pool-based memory infrastructure"
// bounds this to buckets calling out to *sync.Pool* directly rather than
// owning a spill-to-disk buffer store.
type Allocator struct {
	pool *sync.Pool
}

// defaultChunkSize is the scratch buffer size handed out by Get when the
// caller doesn't need a specific capacity.
const defaultChunkSize = 16 * 1024

// NewAllocator returns a fresh per-pipeline allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		pool: &sync.Pool{
			New: func() any {
				b := make([]byte, defaultChunkSize)
				return &b
			},
		},
	}
}

// Get returns a scratch buffer of at least the requested size. Buffers
// returned by Get should be released with Put once the caller is done
// with them; forgetting to do so just forgoes reuse, it does not leak.
func (a *Allocator) Get(size int) []byte {
	ptr := a.pool.Get().(*[]byte)
	buf := *ptr
	if cap(buf) < size {
		return make([]byte, size)
	}
	return buf[:size]
}

// Put returns a scratch buffer to the pool for reuse.
func (a *Allocator) Put(buf []byte) {
	if cap(buf) < defaultChunkSize {
		return
	}
	buf = buf[:cap(buf)]
	a.pool.Put(&buf)
}

// Copy allocates a new owned slice holding a copy of p, used whenever a
// bucket must retain bytes borrowed from a caller past the current call
// (spec.md §4.2's "copy" ownership tag).
func (a *Allocator) Copy(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
