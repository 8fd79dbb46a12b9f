package main

import (
	"path/filepath"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-looper/looper"
	"go-looper/midi"
)

// writePerformance stores a take on note 36: hold for one beat, wait a
// beat, then trigger it for one beat. At 120 BPM a beat is half a second.
func writePerformance(t *testing.T) string {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(960)

	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(120))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		t.Fatal(err)
	}

	var track smf.Track
	track.Add(0, gomidi.NoteOn(0, 36, 100))
	track.Add(960, gomidi.NoteOff(0, 36))
	track.Add(960, gomidi.NoteOn(0, 36, 100))
	track.Add(960, gomidi.NoteOff(0, 36))
	track.Add(0, gomidi.ControlChange(0, 7, 127))
	track.Close(0)
	if err := sm.Add(track); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "take.mid")
	if err := sm.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadCues(t *testing.T) {
	cues, err := readCues(writePerformance(t), 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		frame int
		typ   uint8
	}{
		{0, midi.NoteOn},
		{500, midi.NoteOff},
		{1000, midi.NoteOn},
		{1500, midi.NoteOff},
		{1500, midi.CC},
	}
	if len(cues) != len(want) {
		t.Fatalf("%d cues, want %d", len(cues), len(want))
	}
	for i, w := range want {
		if cues[i].Frame != w.frame || cues[i].Event.Type != w.typ {
			t.Errorf("cue %d = %d %#x, want %d %#x", i, cues[i].Frame, cues[i].Event.Type, w.frame, w.typ)
		}
	}
}

func TestRenderPerformance(t *testing.T) {
	cues, err := readCues(writePerformance(t), 1000)
	if err != nil {
		t.Fatal(err)
	}
	l, err := looper.New(looper.Config{SampleRate: 1000, BlockSize: 100, MaxLoopSeconds: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	in := make([]float32, 500)
	for i := range in {
		in[i] = 0.5
	}
	r := newRenderer(l, looper.NewDispatcher(l, nil), cues)
	out := r.run(in, 2000)

	if len(r.errs) != 0 {
		t.Fatalf("errors: %v", r.errs)
	}
	info, _ := l.LoopByNote(36)
	if !info.Ready || info.RecordedFrames != 500 {
		t.Fatalf("take: %+v", info)
	}
	if info.State != looper.LoopStopped {
		t.Fatalf("state after release = %s", info.State)
	}
	if out[1250] < 0.25 {
		t.Errorf("loop not audible during the trigger: %v", out[1250])
	}
	if out[1750] != 0 {
		t.Errorf("output after release = %v", out[1750])
	}
	if len(r.notices) == 0 {
		t.Error("no notices collected")
	}
}
