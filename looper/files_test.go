package looper

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go-looper/wavio"
)

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-3 }

func TestLoadLoopFile(t *testing.T) {
	l := newTestLooper(t, nil)
	samples := []float32{0.5, -0.5, 0.25, 0}
	if err := wavio.WriteMono(filepath.Join(l.Config().RecordingsDir, "beat.wav"), samples, 1000); err != nil {
		t.Fatal(err)
	}

	if err := l.LoadLoopFile(62, "beat.wav"); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)
	info := mustLoop(t, l, 62)
	if !info.Ready || info.RecordedFrames != 4 || info.Filename != "beat.wav" || info.SampleRate != 1000 {
		t.Fatalf("loaded loop: %+v", info)
	}
	got := l.engine.pool.slots[62].Samples()
	for i := range samples {
		if !near(got[i], samples[i]) {
			t.Fatalf("samples = %v, want %v", got, samples)
		}
	}

	if err := l.LoadLoopFile(62, "missing.wav"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if err := l.LoadLoopFile(-4, "beat.wav"); !errors.Is(err, ErrInvalidNote) {
		t.Fatalf("expected ErrInvalidNote, got %v", err)
	}
}

func TestLoadLoopFileTruncates(t *testing.T) {
	l := newTestLooper(t, nil)
	path := filepath.Join(t.TempDir(), "long.wav")
	if err := wavio.WriteMono(path, make([]float32, 1500), 1000); err != nil {
		t.Fatal(err)
	}
	if err := l.LoadLoopFile(1, path); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)
	if got := mustLoop(t, l, 1).RecordedFrames; got != l.Capacity() {
		t.Fatalf("recorded = %d, want %d", got, l.Capacity())
	}
}

func TestSnapshotReloadsFileBackedLoops(t *testing.T) {
	l := newTestLooper(t, nil)
	src := []float32{0.5, 0.5, 0.5, 0.5, 0.5}
	if err := wavio.WriteMono(filepath.Join(l.Config().RecordingsDir, "pad.wav"), src, 1000); err != nil {
		t.Fatal(err)
	}
	l.LoadLoopFile(62, "pad.wav")
	run(l, 100, 0)

	path := filepath.Join(t.TempDir(), "s.json")
	if err := l.SaveState(path); err != nil {
		t.Fatal(err)
	}

	// overwrite the slot with a fresh take
	recordTake(t, l, 62, 200, -0.9)
	if mustLoop(t, l, 62).Filename != "" {
		t.Fatal("recording should detach the file name")
	}

	if err := l.LoadState(path); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)
	info := mustLoop(t, l, 62)
	if !info.Ready || info.RecordedFrames != 5 || info.Filename != "pad.wav" {
		t.Fatalf("after load: %+v", info)
	}
	if s := l.engine.pool.slots[62].buf[0]; !near(s, 0.5) {
		t.Fatalf("sample 0 = %v, want file contents", s)
	}
}

func TestOutputCapture(t *testing.T) {
	l := newTestLooper(t, nil)
	recordTake(t, l, 60, 100, 0.5)
	l.RequestPlaybackStart(60)

	path := filepath.Join(t.TempDir(), "out.wav")
	if err := l.SetRecordingEnabled(true, path); err != nil {
		t.Fatal(err)
	}
	if !l.RecordingEnabled() || l.Params().RecordingFile != path {
		t.Fatal("capture not reported as enabled")
	}
	run(l, 300, 0)
	if err := l.SetRecordingEnabled(false, ""); err != nil {
		t.Fatal(err)
	}
	if l.RecordingEnabled() {
		t.Fatal("capture still enabled")
	}

	got, rate, err := wavio.ReadMono(path)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 1000 || len(got) != 300 {
		t.Fatalf("captured %d frames at %d Hz", len(got), rate)
	}
	if !near(got[0], 0.5) || !near(got[299], 0.5) {
		t.Fatalf("captured %v ... %v", got[0], got[299])
	}

	if err := l.SetRecordingEnabled(true, ""); err == nil {
		t.Fatal("enabling capture without a file should fail")
	}
}
