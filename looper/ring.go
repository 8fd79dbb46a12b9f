package looper

import "sync/atomic"

// Ring is a bounded single-producer single-consumer queue.
//
// Push is only called from one goroutine and Pop from one other; neither
// side blocks, locks or allocates. Capacity is rounded up to a power of two.
type Ring[T any] struct {
	buf  []T
	mask uint64

	// head is written by the consumer, tail by the producer.
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
}

// NewRing allocates a ring holding at least size elements.
func NewRing[T any](size int) *Ring[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	return &Ring[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// Cap returns the number of slots.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns a snapshot of the number of queued elements.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Push appends v. It returns false without side effects when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Pop removes the oldest element.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}
