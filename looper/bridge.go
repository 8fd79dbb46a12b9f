package looper

import (
	"sync"
	"sync/atomic"
)

// Bridge carries intents from control goroutines to the audio thread.
//
// Producers are serialized by a mutex (the control side may block); the
// consumer never locks. When the ring is full the newest intent is dropped
// and counted.
type Bridge struct {
	ring *Ring[Intent]

	mu     sync.Mutex
	pushed uint64

	dropped atomic.Uint64

	// consumer-only scratch
	batch  []Intent
	latest [NumNotes]int32
	popped uint64
}

// NewBridge allocates a bridge for at least size pending intents.
func NewBridge(size int) *Bridge {
	b := &Bridge{ring: NewRing[Intent](size)}
	b.batch = make([]Intent, 0, b.ring.Cap())
	for i := range b.latest {
		b.latest[i] = -1
	}
	return b
}

// Send enqueues in and returns its sequence number (1-based).
func (b *Bridge) Send(in Intent) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ring.Push(in) {
		b.dropped.Add(1)
		return 0, ErrQueueSaturated
	}
	b.pushed++
	return b.pushed, nil
}

// Dropped returns how many intents were rejected because the ring was full.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// Pending returns the number of intents not yet drained.
func (b *Bridge) Pending() int { return b.ring.Len() }

// Drain pops every queued intent. Within the returned batch a transition is
// replaced by intentNone when a later transition targets the same note.
// The slice is reused by the next call. Audio thread only.
func (b *Bridge) Drain() []Intent {
	batch := b.batch[:0]
	for len(batch) < cap(batch) {
		in, ok := b.ring.Pop()
		if !ok {
			break
		}
		b.popped++
		if in.Kind.transition() && validNote(int(in.Note)) {
			if prev := b.latest[in.Note]; prev >= 0 {
				batch[prev].Kind = intentNone
			}
			b.latest[in.Note] = int32(len(batch))
		}
		batch = append(batch, in)
	}
	for i := range batch {
		if validNote(int(batch[i].Note)) {
			b.latest[batch[i].Note] = -1
		}
	}
	b.batch = batch
	return batch
}

// consumed counts every intent taken off the ring. Audio thread only.
func (b *Bridge) consumed() uint64 { return b.popped }
