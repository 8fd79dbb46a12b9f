package looper

import "testing"

func TestSyncPhaseAndBoundaries(t *testing.T) {
	s := newSync(100)
	if s.hasPulse() || s.gating() {
		t.Fatal("fresh sync should have no pulse")
	}
	if _, ok := s.untilBoundary(10); ok {
		t.Fatal("untilBoundary without pulse")
	}

	s.setPulse(60, 300, 1000)
	tests := []struct {
		frame    uint64
		phase    uint64
		until    int
		boundary bool
	}{
		{1000, 0, 300, false},
		{1001, 1, 299, false},
		{1270, 270, 30, false},
		{1300, 0, 300, true},
		{1900, 0, 300, true},
		{999, 299, 1, false},
		{700, 0, 300, true},
	}
	for _, tt := range tests {
		if got := s.phase(tt.frame); got != tt.phase {
			t.Errorf("phase(%d) = %d, want %d", tt.frame, got, tt.phase)
		}
		if got, _ := s.untilBoundary(tt.frame); got != tt.until {
			t.Errorf("untilBoundary(%d) = %d, want %d", tt.frame, got, tt.until)
		}
		if got := s.atBoundary(tt.frame); got != tt.boundary {
			t.Errorf("atBoundary(%d) = %v, want %v", tt.frame, got, tt.boundary)
		}
	}
	if p := s.progress(1270); p != 0.9 {
		t.Errorf("progress = %v, want 0.9", p)
	}
	if s.gating() {
		t.Error("gating without enabled")
	}
	s.enabled = true
	if !s.gating() {
		t.Error("gating should be on with pulse and enabled")
	}
}

func TestSyncQuantize(t *testing.T) {
	s := newSync(100)
	if got := s.quantize(123); got != 123 {
		t.Fatalf("quantize without pulse = %d", got)
	}
	s.setPulse(1, 100, 0)
	for _, tt := range []struct{ in, want int }{
		{10, 100},
		{49, 100},
		{149, 100},
		{150, 200},
		{260, 300},
	} {
		if got := s.quantize(tt.in); got != tt.want {
			t.Errorf("quantize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSyncAlignedPosition(t *testing.T) {
	s := newSync(100)
	s.setPulse(1, 300, 300)
	if got := s.alignedPosition(900, 200); got != 0 {
		t.Errorf("alignedPosition(900, 200) = %d", got)
	}
	if got := s.alignedPosition(950, 200); got != 50 {
		t.Errorf("alignedPosition(950, 200) = %d", got)
	}
	if got := s.alignedPosition(250, 200); got != 150 {
		t.Errorf("alignedPosition(250, 200) = %d", got)
	}
}

func TestSyncHoldCancelRelease(t *testing.T) {
	s := newSync(100)
	s.hold(64, IntentPlaybackStart)
	s.hold(64, IntentPlaybackStop)
	s.hold(10, IntentRecordStart)
	if s.ndeferred != 2 {
		t.Fatalf("ndeferred = %d, want 2", s.ndeferred)
	}
	if !s.cancel(10) || s.cancel(10) {
		t.Fatal("cancel should succeed exactly once")
	}
	var got []IntentKind
	s.release(func(note int, k IntentKind) {
		if note != 64 {
			t.Errorf("released note %d", note)
		}
		got = append(got, k)
	})
	if len(got) != 1 || got[0] != IntentPlaybackStop {
		t.Fatalf("released %v, want the latest intent only", got)
	}
	if s.ndeferred != 0 {
		t.Fatalf("ndeferred = %d after release", s.ndeferred)
	}
}

func TestBackfillTail(t *testing.T) {
	var b backfill
	b.buf = make([]float32, 8)
	b.push([]float32{1, 2, 3, 4, 5, 6})
	b.pushSilence(1)
	b.push([]float32{7, 8, 9})
	if b.avail != 8 {
		t.Fatalf("avail = %d, want 8", b.avail)
	}
	dst := make([]float32, 5)
	b.tail(dst)
	want := []float32{6, 0, 7, 8, 9}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("tail = %v, want %v", dst, want)
		}
	}
}

// syncedLooper records a 300-frame pulse on note 60 and a 200-frame loop
// on note 64, then enables sync. The pulse grid starts at frame 300 and
// the looper is left at frame 800.
func syncedLooper(t *testing.T) *Looper {
	t.Helper()
	l := newTestLooper(t, nil)
	recordTake(t, l, 60, 300, 0.5)
	recordTake(t, l, 64, 200, 0.25)
	if err := l.EnableSync(); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)
	if l.CurrentFrame() != 800 {
		t.Fatalf("frame = %d, want 800", l.CurrentFrame())
	}
	info := l.SyncInfo()
	if !info.Enabled || info.PulseNote != 60 || info.PulseFrames != 300 || info.PulseStartFrame != 300 {
		t.Fatalf("sync: %+v", info)
	}
	if mustLoop(t, l, 64).RecordedFrames != 200 {
		t.Fatalf("loop 64 = %+v", mustLoop(t, l, 64))
	}
	return l
}

func TestDeferredPlaybackStartScenarioC(t *testing.T) {
	l := syncedLooper(t)
	run(l, 70, 0) // progress 0.9
	if l.CurrentFrame() != 870 {
		t.Fatalf("frame = %d", l.CurrentFrame())
	}

	l.RequestPlaybackStart(64)
	out := run(l, 29, 0)
	if mustLoop(t, l, 64).State == LoopPlaying {
		t.Fatal("playback started before the pulse boundary")
	}
	if l.SyncInfo().DeferredCount != 1 {
		t.Fatalf("deferred = %d", l.SyncInfo().DeferredCount)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v before boundary", i, v)
		}
	}

	// frames 899 and 900; the boundary is the second one
	out = run(l, 2, 0)
	if out[0] != 0 || out[1] != 0.25 {
		t.Fatalf("boundary output = %v, want [0 0.25]", out)
	}
	info := mustLoop(t, l, 64)
	if info.State != LoopPlaying || info.Position != 1 {
		t.Fatalf("after boundary: %+v", info)
	}
	if l.SyncInfo().DeferredCount != 0 {
		t.Fatal("deferred intent not released")
	}
}

func TestEarlyPlaybackStartIsImmediateAndAligned(t *testing.T) {
	l := syncedLooper(t)
	run(l, 130, 0) // frame 930, progress 0.1
	l.RequestPlaybackStart(64)
	run(l, 10, 0)
	info := mustLoop(t, l, 64)
	if info.State != LoopPlaying {
		t.Fatalf("not playing: %+v", info)
	}
	// (930-300) mod 200 = 30, plus ten rendered frames
	if info.Position != 40 {
		t.Fatalf("position = %d, want 40", info.Position)
	}
}

func TestLaterRequestCancelsDeferred(t *testing.T) {
	l := syncedLooper(t)
	run(l, 70, 0) // frame 870
	l.RequestPlaybackStart(64)
	run(l, 10, 0)
	if l.SyncInfo().DeferredCount != 1 {
		t.Fatal("start not deferred")
	}
	l.RequestPlaybackStop(64)
	run(l, 100, 0)
	if l.SyncInfo().DeferredCount != 0 {
		t.Fatal("stop did not cancel the deferred start")
	}
	if mustLoop(t, l, 64).State == LoopPlaying {
		t.Fatal("cancelled start still applied")
	}
}

func TestDisableSyncFlushesDeferred(t *testing.T) {
	l := syncedLooper(t)
	run(l, 70, 0)
	l.RequestPlaybackStart(64)
	run(l, 10, 0)
	l.DisableSync()
	run(l, 5, 0)
	if mustLoop(t, l, 64).State != LoopPlaying {
		t.Fatal("deferred start not flushed when sync was disabled")
	}
}

func TestLateRecordStartBackfills(t *testing.T) {
	l := syncedLooper(t)
	run(l, 100, 0)  // frame 900, a boundary
	run(l, 60, 0.3) // phase 60
	l.RequestRecordStart(70)
	run(l, 40, 0.7)
	info := mustLoop(t, l, 70)
	if info.State != LoopRecording || info.RecordedFrames != 100 {
		t.Fatalf("after late start: %+v", info)
	}
	buf := l.engine.pool.slots[70].buf
	if buf[0] != 0.3 || buf[59] != 0.3 || buf[60] != 0.7 {
		t.Fatalf("backfill = %v %v %v", buf[0], buf[59], buf[60])
	}

	// 360 frames with remainder 60 (0.2 of a pulse): trimmed to 300
	run(l, 260, 0.7)
	l.RequestRecordStop(70)
	run(l, 10, 0)
	info = mustLoop(t, l, 70)
	if info.State != LoopIdle || !info.Ready || info.RecordedFrames != 300 {
		t.Fatalf("after trimmed stop: %+v", info)
	}
}

func TestLateRecordStartDeferred(t *testing.T) {
	l := syncedLooper(t)
	run(l, 100, 0)
	run(l, 200, 0) // phase 200, progress 0.67
	l.RequestRecordStart(70)
	run(l, 50, 0)
	if mustLoop(t, l, 70).State == LoopRecording {
		t.Fatal("record start should wait for the boundary")
	}
	run(l, 100, 0.4) // crosses 1200
	info := mustLoop(t, l, 70)
	if info.State != LoopRecording || info.RecordedFrames != 50 {
		t.Fatalf("after boundary: %+v", info)
	}
}

func TestLateRecordStopDeferredAndQuantized(t *testing.T) {
	l := syncedLooper(t)
	run(l, 100, 0) // frame 900
	l.RequestRecordStart(70)
	run(l, 500, 0.5) // 500 recorded, remainder 200 of 300
	l.RequestRecordStop(70)
	run(l, 10, 0)
	if mustLoop(t, l, 70).State != LoopRecording {
		t.Fatal("stop past the cutoff should wait for the boundary")
	}
	run(l, 100, 0) // crosses 1500
	info := mustLoop(t, l, 70)
	if info.State != LoopIdle || !info.Ready || info.RecordedFrames != 600 {
		t.Fatalf("after deferred stop: %+v", info)
	}
}

func TestRerecordingPulseDropsIt(t *testing.T) {
	l := syncedLooper(t)
	l.RequestRecordStart(60)
	run(l, 10, 0)
	if l.SyncInfo().PulseNote != NoNote {
		t.Fatal("re-recording the pulse loop should clear the pulse")
	}
}
