// Package ring provides the bounded buffers shared between an acquisition
// worker and a derived-metric processor.
//
// Buffer is a fixed-capacity ring with oldest-first eviction. Latest is a
// single-slot mailbox that keeps only the newest value, for consumers that
// care about freshness rather than completeness (e.g. pose estimation on
// video frames).
package ring

import "sync"

// Buffer is a mutex-guarded, fixed-capacity ring buffer.
//
// Push never blocks: once full, each push evicts the oldest element.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest element
	size  int
	total uint64
}

// New creates a buffer holding at most capacity elements.
// A capacity below 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the buffer is full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Last returns the newest element, if any.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}

// Len returns the number of buffered elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Total returns the number of elements ever pushed, including evicted ones.
func (b *Buffer[T]) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
