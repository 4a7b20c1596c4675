package ring

import "sync"

// Latest holds only the most recently stored value.
//
// Each stored value carries a sequence number so a consumer can tell
// whether it has already seen the current value.
type Latest[T any] struct {
	mu  sync.Mutex
	v   T
	seq uint64
}

// Store replaces the held value.
func (l *Latest[T]) Store(v T) {
	l.mu.Lock()
	l.v = v
	l.seq++
	l.mu.Unlock()
}

// Load returns the held value and its sequence number.
// The sequence is 0 if nothing was stored yet.
func (l *Latest[T]) Load() (T, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v, l.seq
}

// LoadAfter returns the held value only if it is newer than seq.
func (l *Latest[T]) LoadAfter(seq uint64) (T, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seq <= seq {
		var zero T
		return zero, seq, false
	}
	return l.v, l.seq, true
}
