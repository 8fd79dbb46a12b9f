package widgets

import (
	"strings"
	"testing"

	"go-looper/looper"
	"go-looper/theme"
)

func TestRenderSlotGrid(t *testing.T) {
	th := theme.New(nil)
	loops := []looper.LoopInfo{
		{Note: 0, State: looper.LoopPlaying, Ready: true},
		{Note: 17, State: looper.LoopRecording},
	}
	out := RenderSlotGrid(th, loops, 0, 17)
	lines := strings.Split(out, "\n")
	if len(lines) != looper.NumNotes/SlotColumns {
		t.Fatalf("%d rows", len(lines))
	}
	if !strings.Contains(lines[0], string(th.Symbols.SlotPulse)) {
		t.Errorf("row 0 lacks the pulse marker: %q", lines[0])
	}
	if !strings.Contains(lines[1], string(th.Symbols.SlotRecording)) || !strings.Contains(lines[1], string(th.Symbols.Cursor)) {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[7], "112") {
		t.Errorf("last row label: %q", lines[7])
	}
}

func TestRenderMeter(t *testing.T) {
	th := theme.New(nil)
	out := RenderMeter(th, 0.5, 10)
	if strings.Count(out, string(th.Symbols.Solid)) != 5 || strings.Count(out, string(th.Symbols.Empty)) != 5 {
		t.Fatalf("meter = %q", out)
	}
	if strings.Count(RenderMeter(th, 3, 4), string(th.Symbols.Solid)) != 4 {
		t.Fatal("meter should clamp")
	}
}

func TestKeyHelp(t *testing.T) {
	th := theme.New(nil)
	out := KeyHelp(th, []KeySection{
		{Title: "Transport", Keys: []KeyBinding{{Key: "space", Desc: "start/stop"}}},
		{Title: "Slots", Keys: []KeyBinding{{Key: "r", Desc: "record"}, {Key: "enter", Desc: "note-on"}}},
	})
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("%d lines: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "Transport") || !strings.Contains(lines[0], "Slots") {
		t.Errorf("sections not side by side: %q", lines[0])
	}
	if !strings.Contains(lines[1], "start/stop") || !strings.Contains(lines[2], "note-on") {
		t.Errorf("help = %q", out)
	}

	hint := KeyHint(th, []KeyBinding{{Key: "q", Desc: "quit"}, {Key: "?", Desc: "help"}})
	if !strings.Contains(hint, "q:quit  ?:help") {
		t.Errorf("hint = %q", hint)
	}
}

func TestPadMirror(t *testing.T) {
	th := theme.New(nil)
	empty := PadMirror(th, nil)
	if n := len(strings.Split(empty, "\n")); n != 9 {
		t.Fatalf("%d lines", n)
	}
	if n := strings.Count(empty, string(th.Symbols.Empty)); n != 9*9-1 {
		t.Fatalf("%d unlit pads", n)
	}

	out := PadMirror(th, []Pad{
		{Row: 0, Col: 0, Color: theme.RGB{255, 0, 0}},
		{Row: 8, Col: 3, Color: theme.RGB{0, 255, 0}},
		{Row: 2, Col: 2, Color: theme.RGB{0, 0, 255}, Blink: true},
		{Row: 4, Col: 4},
		{Row: 9, Col: 0, Color: theme.RGB{1, 1, 1}},
	})
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[8], string(th.Symbols.Solid)) {
		t.Errorf("bottom-left pad not lit: %q", lines[8])
	}
	if !strings.Contains(lines[0], string(th.Symbols.Solid)) {
		t.Errorf("control row not lit: %q", lines[0])
	}
	if !strings.Contains(lines[6], string(th.Symbols.SlotRecording)) {
		t.Errorf("blinking pad: %q", lines[6])
	}
	if n := strings.Count(out, string(th.Symbols.Empty)); n != 9*9-1-3 {
		t.Errorf("%d unlit pads", n)
	}
}

func TestStateLegend(t *testing.T) {
	out := StateLegend(theme.New(nil))
	if strings.Count(out, "\n") != 3 || !strings.Contains(out, "pulse") {
		t.Fatalf("legend = %q", out)
	}
}
