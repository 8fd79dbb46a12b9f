package looper

import (
	"errors"
	"sync"
	"testing"
)

func TestRingRoundsUpAndWraps(t *testing.T) {
	r := NewRing[int](5)
	if r.Cap() != 8 {
		t.Fatalf("cap = %d, want 8", r.Cap())
	}
	for round := 0; round < 3; round++ {
		for i := 0; i < 8; i++ {
			if !r.Push(round*10 + i) {
				t.Fatalf("push %d failed", i)
			}
		}
		if r.Push(99) {
			t.Fatal("push into full ring succeeded")
		}
		for i := 0; i < 8; i++ {
			v, ok := r.Pop()
			if !ok || v != round*10+i {
				t.Fatalf("pop = %d, %v; want %d", v, ok, round*10+i)
			}
		}
		if _, ok := r.Pop(); ok {
			t.Fatal("pop from empty ring succeeded")
		}
	}
}

func TestRingConcurrent(t *testing.T) {
	const n = 100000
	r := NewRing[int](64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if r.Push(i) {
				i++
			}
		}
	}()
	for want := 0; want < n; {
		v, ok := r.Pop()
		if !ok {
			continue
		}
		if v != want {
			t.Fatalf("got %d, want %d", v, want)
		}
		want++
	}
	wg.Wait()
}

func TestBridgeSaturation(t *testing.T) {
	b := NewBridge(4)
	for i := 0; i < 4; i++ {
		seq, err := b.Send(Intent{Kind: IntentLoopVolume, Note: int16(i)})
		if err != nil || seq != uint64(i+1) {
			t.Fatalf("send %d: seq %d err %v", i, seq, err)
		}
	}
	if _, err := b.Send(Intent{Kind: IntentLoopVolume, Note: 9}); !errors.Is(err, ErrQueueSaturated) {
		t.Fatalf("expected ErrQueueSaturated, got %v", err)
	}
	if b.Dropped() != 1 || b.Pending() != 4 {
		t.Fatalf("dropped %d pending %d", b.Dropped(), b.Pending())
	}

	batch := b.Drain()
	if len(batch) != 4 || batch[3].Note != 3 {
		t.Fatalf("drained %v", batch)
	}
	if b.consumed() != 4 {
		t.Fatalf("consumed = %d", b.consumed())
	}
	if _, err := b.Send(Intent{Kind: IntentLoopVolume, Note: 9}); err != nil {
		t.Fatalf("send after drain: %v", err)
	}
}

func TestBridgeCoalescesTransitionsPerNote(t *testing.T) {
	b := NewBridge(16)
	b.Send(Intent{Kind: IntentPlaybackStart, Note: 60})
	b.Send(Intent{Kind: IntentLoopVolume, Note: 60, Value: 0.5})
	b.Send(Intent{Kind: IntentRecordStart, Note: 61})
	b.Send(Intent{Kind: IntentPlaybackStop, Note: 60})

	batch := b.Drain()
	kinds := make([]IntentKind, len(batch))
	for i, in := range batch {
		kinds[i] = in.Kind
	}
	want := []IntentKind{intentNone, IntentLoopVolume, IntentRecordStart, IntentPlaybackStop}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}

	// coalescing does not leak into the next batch
	b.Send(Intent{Kind: IntentPlaybackStart, Note: 60})
	batch = b.Drain()
	if len(batch) != 1 || batch[0].Kind != IntentPlaybackStart {
		t.Fatalf("second batch = %v", batch)
	}
}

func TestLooperReportsQueueSaturation(t *testing.T) {
	l := newTestLooper(t, func(c *Config) { c.QueueSize = 2 })
	l.SetLoopVolume(1, 1)
	l.SetLoopVolume(2, 1)
	if err := l.SetLoopVolume(3, 1); !errors.Is(err, ErrQueueSaturated) {
		t.Fatalf("expected ErrQueueSaturated, got %v", err)
	}
	if l.DroppedIntents() != 1 {
		t.Fatalf("dropped = %d", l.DroppedIntents())
	}
	if err := l.SetVolume(0.3); !errors.Is(err, ErrQueueSaturated) {
		t.Fatalf("expected ErrQueueSaturated, got %v", err)
	}
	if l.Volume() != 1 {
		t.Fatal("rejected setter changed the control-plane value")
	}
	run(l, 100, 0)
	if err := l.SetLoopVolume(3, 1); err != nil {
		t.Fatalf("after drain: %v", err)
	}
}
