package looper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSaveActiveOnlyEmptyScenarioD(t *testing.T) {
	l := newTestLooper(t, nil)
	path := filepath.Join(t.TempDir(), "empty_active.json")

	err := l.SaveActiveLoopsOnly(path)
	if r := ResultOf(err); r != ResultSuccess {
		t.Fatalf("SaveActiveLoopsOnly: %v (%v)", r, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	loops, ok := doc["memory_loops"].([]any)
	if !ok || len(loops) != 0 {
		t.Fatalf("memory_loops = %#v, want empty list", doc["memory_loops"])
	}
	if doc["version"] != SnapshotVersion {
		t.Fatalf("version = %v", doc["version"])
	}
	if err := ValidateConfigFile(path); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := l.LoadState(path); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestValidateMissingFileScenarioE(t *testing.T) {
	l := newTestLooper(t, nil)
	l.SetVolume(0.42)
	err := ValidateConfigFile(filepath.Join(t.TempDir(), "nope.json"))
	if r := ResultOf(err); r != ResultFileNotFound {
		t.Fatalf("result = %v, want FileNotFound", r)
	}
	if ResultFileNotFound.Message() != "Configuration file not found" {
		t.Fatalf("message = %q", ResultFileNotFound.Message())
	}
	if l.Volume() != 0.42 {
		t.Fatal("validation changed live state")
	}
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    Result
	}{
		{"garbage", "not json at all", ResultParseFailed},
		{"wrong version", `{"version":"2.0","global_state":{"version":"2.0"},"memory_loops":[]}`, ResultInvalidVersion},
		{"no version", `{"global_state":{},"memory_loops":[]}`, ResultInvalidVersion},
		{"loops not a list", `{"version":"1.0","global_state":{},"memory_loops":{}}`, ResultInvalidData},
		{"missing global", `{"version":"1.0","memory_loops":[]}`, ResultInvalidData},
		{"bad state", `{"version":"1.0","global_state":{},"memory_loops":[{"midi_note":1,"state":"DANCING"}]}`, ResultInvalidData},
		{"bad cutoff", `{"version":"1.0","global_state":{"sync_cutoff_percentage":3},"memory_loops":[]}`, ResultInvalidData},
		{"numeric version", `{"version":1.0,"global_state":{},"memory_loops":[]}`, ResultInvalidVersion},
		{"numeric global version", `{"global_state":{"version":1},"memory_loops":[]}`, ResultInvalidVersion},
		{"note out of range", `{"version":"1.0","global_state":{},"memory_loops":[{"midi_note":500}]}`, ResultInvalidData},
		{"negative note", `{"version":"1.0","global_state":{},"memory_loops":[{"midi_note":-1}]}`, ResultInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLooper(t, nil)
			l.SetVolume(0.3)
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			writeFile(t, path, tt.content)

			err := l.LoadState(path)
			if r := ResultOf(err); r != tt.want {
				t.Fatalf("result = %v (%v), want %v", r, err, tt.want)
			}
			if l.Volume() != 0.3 {
				t.Fatal("failed load changed live state")
			}
		})
	}
}

func TestVersionFromGlobalState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	writeFile(t, path, `{"global_state":{"version":"1.0","volume":0.5,"playback_mode":"NORMAL"},"memory_loops":[]}`)
	l := newTestLooper(t, nil)
	if err := l.LoadState(path); err != nil {
		t.Fatal(err)
	}
	if l.Volume() != 0.5 || l.PlaybackMode() != ModeNormal {
		t.Fatalf("volume %v mode %v", l.Volume(), l.PlaybackMode())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := newTestLooper(t, nil)
	recordTake(t, l, 60, 300, 0.5)
	recordTake(t, l, 64, 200, 0.25)
	l.SetLoopVolume(64, 0.5)
	l.SetVolume(0.7)
	l.SetPlaybackMode(ModeNormal)
	l.SetSyncCutoff(0.4)
	l.EnableSync()
	l.RequestPlaybackStart(64)
	run(l, 100, 0)
	if st := mustLoop(t, l, 64).State; st != LoopPlaying {
		t.Fatalf("loop 64 = %v before save", st)
	}

	path := filepath.Join(t.TempDir(), "session.json")
	if err := l.SaveState(path); err != nil {
		t.Fatal(err)
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.MemoryLoops) != 2 || snap.SessionID == "" {
		t.Fatalf("saved %d loops, session %q", len(snap.MemoryLoops), snap.SessionID)
	}
	if g := snap.GlobalState; g.PulseLoopNote != 60 || g.ActiveLoopCount != 2 || g.CurrentlyRecordingNote != NoNote {
		t.Fatalf("global state: %+v", g)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"state": "PLAYING"`) {
		t.Fatalf("states should be saved by name:\n%s", data)
	}

	l.SetVolume(0.1)
	l.ClearLoop(64)
	l.DisableSync()
	l.SetPlaybackMode(ModeTrigger)
	run(l, 100, 0)

	if err := l.LoadState(path); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)

	if l.Volume() != 0.7 || l.PlaybackMode() != ModeNormal || !l.SyncEnabled() {
		t.Fatalf("params after load: %+v", l.Params())
	}
	info := l.SyncInfo()
	if info.PulseNote != 60 || info.PulseFrames != 300 || info.Cutoff != 0.4 {
		t.Fatalf("sync after load: %+v", info)
	}
	loop := mustLoop(t, l, 64)
	if !loop.Ready || loop.RecordedFrames != 200 || loop.State != LoopPlaying || loop.Volume != 0.5 {
		t.Fatalf("loop 64 after load: %+v", loop)
	}
	if loop := mustLoop(t, l, 60); !loop.Ready || loop.RecordedFrames != 300 {
		t.Fatalf("loop 60 after load: %+v", loop)
	}
	if l.ActiveLoopCount() != 2 {
		t.Fatalf("active = %d", l.ActiveLoopCount())
	}
}

func TestRecordingStateLoadsAsIdle(t *testing.T) {
	l := newTestLooper(t, nil)
	recordTake(t, l, 60, 100, 0.5)
	path := filepath.Join(t.TempDir(), "rec.json")
	writeFile(t, path, `{"version":"1.0","global_state":{"version":"1.0","volume":1,"playback_speed":1,
		"current_state":"IDLE","playback_mode":"TRIGGER","pulse_loop_note":-1,"currently_recording_note":60},
		"memory_loops":[{"midi_note":60,"state":"RECORDING","volume":1,"recorded_frames":100,"loop_ready":false}]}`)
	if err := l.LoadState(path); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)
	if info := mustLoop(t, l, 60); info.State != LoopIdle || info.Ready {
		t.Fatalf("loop 60 = %+v", info)
	}
	if l.CurrentlyRecordingNote() != NoNote {
		t.Fatal("a snapshot must not resume a recording")
	}
}

func TestSaveWriteFailure(t *testing.T) {
	l := newTestLooper(t, nil)
	blocker := filepath.Join(t.TempDir(), "file")
	writeFile(t, blocker, "x")
	err := l.SaveState(filepath.Join(blocker, "session.json"))
	if r := ResultOf(err); r != ResultWriteFailed {
		t.Fatalf("result = %v (%v)", r, err)
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	l := newTestLooper(t, nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	writeFile(t, path, "old")
	if err := l.SaveState(path); err != nil {
		t.Fatal(err)
	}
	if err := ValidateConfigFile(path); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestResetToDefaults(t *testing.T) {
	l := newTestLooper(t, nil)
	recordTake(t, l, 60, 100, 0.5)
	l.SetVolume(0.2)
	l.EnableSync()
	l.SetPlaybackMode(ModeNormal)
	if err := l.ResetToDefaults(); err != nil {
		t.Fatal(err)
	}
	run(l, 100, 0)
	if p := l.Params(); p != DefaultParams() {
		t.Fatalf("params = %+v", p)
	}
	if l.ActiveLoopCount() != 0 || mustLoop(t, l, 60).Ready {
		t.Fatal("loops survived reset")
	}
	if l.SyncInfo().PulseNote != NoNote {
		t.Fatal("pulse survived reset")
	}
}

func TestCreateBackupAndSessionPath(t *testing.T) {
	l := newTestLooper(t, nil)
	dir := t.TempDir()
	path, err := l.CreateBackup(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(path), "looper_backup_") || filepath.Ext(path) != ".json" {
		t.Fatalf("backup path %s", path)
	}
	if err := ValidateConfigFile(path); err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name   string
		active bool
		want   string
	}{
		{"", false, "looper_session.json"},
		{"gig", false, "gig.json"},
		{"gig.json", false, "gig.json"},
		{"gig", true, "gig_active.json"},
		{"gig_active.json", true, "gig_active.json"},
	} {
		if got := SessionPath(dir, tt.name, tt.active); got != filepath.Join(dir, tt.want) {
			t.Errorf("SessionPath(%q, %v) = %s", tt.name, tt.active, got)
		}
	}
}
