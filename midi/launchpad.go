package midi

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-looper/debug"
)

// LaunchpadModel is the SysEx device byte of a Launchpad MK3 family member.
type LaunchpadModel uint8

const (
	LaunchpadX    LaunchpadModel = 0x0C
	LaunchpadMini LaunchpadModel = 0x0D
	LaunchpadPro  LaunchpadModel = 0x0E
)

func (m LaunchpadModel) String() string {
	switch m {
	case LaunchpadX:
		return "Launchpad X"
	case LaunchpadMini:
		return "Launchpad Mini MK3"
	case LaunchpadPro:
		return "Launchpad Pro MK3"
	}
	return "Launchpad"
}

// LaunchpadModelOf recognises a Launchpad MIDI port by name. DAW ports are
// skipped: they carry the device's own session layout, not programmer mode.
func LaunchpadModelOf(port string) (LaunchpadModel, bool) {
	name := strings.ToLower(port)
	known := false
	for _, s := range []string{"launchpad", "lpx", "lpminimk3", "lppromk3"} {
		if strings.Contains(name, s) {
			known = true
		}
	}
	if !known || strings.Contains(name, "daw") {
		return 0, false
	}
	switch {
	case strings.Contains(name, "pro"):
		return LaunchpadPro, true
	case strings.Contains(name, "mini"):
		return LaunchpadMini, true
	}
	return LaunchpadX, true
}

// sysex wraps data in the Novation header for this model.
func (m LaunchpadModel) sysex(data ...byte) gomidi.Message {
	msg := append([]byte{0x00, 0x20, 0x29, 0x02, byte(m)}, data...)
	return gomidi.SysEx(msg)
}

// SysEx commands shared by the MK3 family
const (
	sysexLEDs       = 0x03
	sysexBrightness = 0x08
	sysexMode       = 0x0E // 0 = live, 1 = programmer

	ledSpecRGB = 0x03
)

// LaunchpadController drives a Launchpad in programmer mode: grid pads
// become PadDown/PadUp events, the scene column and top row become
// Buttons, and lights are set from RGB.
type LaunchpadController struct {
	id       string
	model    LaunchpadModel
	send     func(msg gomidi.Message) error
	stopFunc func()
	sent     atomic.Uint64

	mu     sync.Mutex
	closed bool
	events chan Event
}

// NewLaunchpadController opens the ports and switches the device to
// programmer mode. Either port may be nil.
func NewLaunchpadController(id string, model LaunchpadModel, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	lp := &LaunchpadController{
		id:     id,
		model:  model,
		events: make(chan Event, 64),
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: open output", id)
		}
		lp.send = send
		if err := lp.send(model.sysex(sysexMode, 0x01)); err != nil {
			return nil, errors.Wrapf(err, "%s: programmer mode", id)
		}
		if model != LaunchpadPro {
			lp.send(model.sysex(sysexBrightness, 0x7F))
		}
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			lp.handle(msg)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "%s: open input", id)
		}
		lp.stopFunc = stop
	}

	debug.Log("midi", "%s: %s in programmer mode", id, model)
	return lp, nil
}

// handle turns grid notes into pad events and the top row CCs into
// button presses. Pad releases are kept for trigger mode.
func (lp *LaunchpadController) handle(msg gomidi.Message) {
	e, ok := FromMessage(msg)
	if !ok {
		return
	}

	switch e.Type {
	case NoteOn, NoteOff:
		row, col := noteToRowCol(e.Note)
		if row < 0 {
			return
		}
		out := Event{Row: row, Col: col, Value: e.Value, Source: lp.id}
		switch {
		case col == 8 || row == 8:
			if e.Type == NoteOff {
				return
			}
			out.Type = Button
		case e.Type == NoteOn:
			out.Type = PadDown
		default:
			out.Type = PadUp
		}
		lp.emit(out)

	case CC:
		// releases carry value 0
		row, col := ccToRowCol(e.Note)
		if row < 0 || e.Value == 0 {
			return
		}
		lp.emit(Event{Type: Button, Row: row, Col: col, Value: e.Value, Source: lp.id})
	}
}

func (lp *LaunchpadController) emit(e Event) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.closed {
		return
	}
	if !send(lp.events, e) {
		debug.LogEvery(10, "midi", "%s: event queue full, dropping %s", lp.id, e)
	}
}

func (lp *LaunchpadController) ID() string { return lp.id }

func (lp *LaunchpadController) Type() ControllerType { return ControllerLaunchpad }

func (lp *LaunchpadController) Model() LaunchpadModel { return lp.model }

func (lp *LaunchpadController) Events() <-chan Event { return lp.events }

// SetLEDBatch writes every static light in one RGB SysEx message. Flashing
// and pulsing lights only exist for palette colors, so those are sent as
// notes on their channel with the nearest palette entry.
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	spec := make([]byte, 1, 1+5*len(updates))
	spec[0] = sysexLEDs
	for _, u := range updates {
		led := rowColToNote(u.Row, u.Col)
		if u.Channel == ChannelStatic {
			spec = append(spec, ledSpecRGB, led, u.Color[0]>>1, u.Color[1]>>1, u.Color[2]>>1)
			continue
		}
		keep(lp.send(gomidi.NoteOn(u.Channel, led, mapRGBToLaunchpad(u.Color))))
	}
	if len(spec) > 1 {
		keep(lp.send(lp.model.sysex(spec...)))
	}

	n := lp.sent.Add(uint64(len(updates)))
	debug.LogEvery(100, "lp-send", "%s: %d LED updates sent", lp.id, n)
	return firstErr
}

// ClearLEDs turns every light off.
func (lp *LaunchpadController) ClearLEDs() error {
	updates := make([]LEDUpdate, 0, 80)
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if row == 8 && col == 8 {
				continue // logo
			}
			updates = append(updates, LEDUpdate{Row: row, Col: col})
		}
	}
	return lp.SetLEDBatch(updates)
}

// Close clears the lights, hands the device back to live mode and closes
// Events.
func (lp *LaunchpadController) Close() error {
	if lp.send != nil {
		lp.ClearLEDs()
		lp.send(lp.model.sysex(sysexMode, 0x00))
	}
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if !lp.closed {
		lp.closed = true
		close(lp.events)
	}
	return nil
}

// padPalette approximates the Launchpad palette: {velocity, R, G, B}.
var padPalette = [][4]uint8{
	{0, 0, 0, 0},
	{5, 255, 0, 0},
	{6, 255, 80, 80},
	{7, 180, 60, 60},
	{9, 255, 100, 0},
	{11, 180, 80, 40},
	{13, 255, 200, 0},
	{17, 0, 180, 0},
	{19, 0, 100, 0},
	{21, 0, 255, 0},
	{37, 0, 200, 200},
	{43, 40, 60, 120},
	{45, 0, 100, 255},
	{47, 80, 150, 255},
	{49, 150, 0, 200},
	{53, 255, 80, 180},
	{78, 100, 100, 255},
	{84, 255, 150, 50},
	{87, 150, 255, 100},
	{97, 180, 180, 60},
	{119, 255, 255, 255},
}

// mapRGBToLaunchpad returns the palette velocity nearest to rgb.
func mapRGBToLaunchpad(rgb [3]uint8) uint8 {
	best, bestDist := uint8(0), -1
	for _, p := range padPalette {
		dist := 0
		for ch := 0; ch < 3; ch++ {
			d := int(rgb[ch]) - int(p[ch+1])
			dist += d * d
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = p[0], dist
		}
	}
	return best
}

// Programmer mode layout:
//
//	grid     row r, col c (0-7)  note (r+1)*10 + c+1, bottom-left is 11
//	scene    col 8               notes 19, 29 ... 89
//	top row  row 8               CC 91-98 in, LED index 91-98 out

func rowColToNote(row, col int) uint8 {
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}
