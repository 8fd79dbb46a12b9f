package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-looper/looper"
	"go-looper/midi"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.MIDI.PadBaseNote != 36 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.json")
	cfg := DefaultConfig()
	cfg.Audio.Backend = "none"
	cfg.Looper.Resume = "retain"
	cfg.Looper.CCMap = map[int]string{20: "volume", 7: "none"}
	cfg.AddController(ControllerConfig{PortName: "Keystation", Type: ControllerKeyboard, AutoConnect: true, InputChannel: 2})
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Audio.Backend != "none" || got.Looper.CCMap[20] != "volume" {
		t.Fatalf("loaded %+v", got)
	}
	if kb := got.FindController("Keystation"); kb == nil || kb.InputChannel != 2 {
		t.Fatalf("keyboard controller = %+v", kb)
	}
	if len(got.AutoConnectControllers()) != 2 {
		t.Fatalf("controllers = %+v", got.Controllers)
	}

	rules := got.PortRules()
	want := []midi.PortRule{
		{Name: "Launchpad X LPX MIDI", Kind: midi.ControllerLaunchpad, Model: midi.LaunchpadX},
		{Name: "Keystation", Kind: midi.ControllerKeyboard, Channel: 2},
	}
	if len(rules) != len(want) {
		t.Fatalf("rules = %+v", rules)
	}
	for i := range want {
		if rules[i] != want[i] {
			t.Errorf("rule %d = %+v, want %+v", i, rules[i], want[i])
		}
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLooperConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.SampleRate = 44100
	cfg.Looper.Resume = "retain"
	cfg.Looper.Promote = "longer"
	lc, err := cfg.LooperConfig()
	if err != nil {
		t.Fatal(err)
	}
	if lc.SampleRate != 44100 || lc.Resume != looper.ResumeRetain || lc.Promote != looper.PromoteLonger {
		t.Fatalf("looper config = %+v", lc)
	}

	cfg.Looper.Promote = "sometimes"
	if _, err := cfg.LooperConfig(); err == nil {
		t.Fatal("expected an error for an unknown policy")
	}
}

func TestCCMapOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Looper.CCMap = map[int]string{20: "speed", 7: "none"}
	m, err := cfg.CCMap()
	if err != nil {
		t.Fatal(err)
	}
	if m[20] != looper.CCSpeed {
		t.Errorf("CC20 = %v", m[20])
	}
	if _, ok := m[7]; ok {
		t.Error("CC7 should be unbound")
	}
	if m[74] != looper.CCSpeed {
		t.Errorf("CC74 = %v", m[74])
	}

	cfg.Looper.CCMap = map[int]string{21: "explode"}
	if _, err := cfg.CCMap(); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	cfg.Looper.CCMap = map[int]string{200: "volume"}
	if _, err := cfg.CCMap(); err == nil {
		t.Fatal("expected an error for an out of range controller")
	}
}

func TestListSessions(t *testing.T) {
	dir := t.TempDir()
	files := []string{"gig.json", "gig_active.json", "looper_backup_20260101_120000.json", "notes.txt"}
	base := time.Now().Add(-time.Hour)
	for i, name := range files {
		path := filepath.Join(dir, name)
		os.WriteFile(path, []byte("{}"), 0644)
		mt := base.Add(time.Duration(i) * time.Minute)
		os.Chtimes(path, mt, mt)
	}

	sessions, err := ListSessions(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	if !sessions[0].Backup || sessions[1].Name != "gig" || !sessions[1].ActiveOnly {
		t.Fatalf("order/fields: %+v", sessions)
	}

	empty, err := ListSessions(filepath.Join(dir, "missing"))
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing dir: %v %v", empty, err)
	}
}

func TestParseCCFlag(t *testing.T) {
	cc, action, err := ParseCCFlag("74 = pitch")
	if err != nil || cc != 74 || action != "pitch" {
		t.Fatalf("got %d %q %v", cc, action, err)
	}
	if _, _, err := ParseCCFlag("volume"); err == nil {
		t.Fatal("expected an error")
	}
	if _, _, err := ParseCCFlag("x=volume"); err == nil {
		t.Fatal("expected an error")
	}
}
