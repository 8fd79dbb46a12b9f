package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
)

// Options configures a Manager.
type Options struct {
	// PadBaseNote is the loop note of the bottom-left pad in bank 0.
	PadBaseNote int
	// ThruPort receives controller changes the looper has no mapping for.
	ThruPort string
	// SessionDir holds saved sessions and backups.
	SessionDir string
	// NoticeLines is how many recent notices are kept for display.
	NoticeLines int
}

// Top row button assignments.
const (
	ButtonTransport = iota
	ButtonMode
	ButtonSync
	ButtonStopAll
	ButtonStopRecording
	ButtonSave
	ButtonPulse
	ButtonClear
)

// Scene column rows used for bank selection, top first.
const (
	bankRow0 = 7
	bankRow1 = 6
	numBanks = 2
)

// Manager routes controller input into the looper and mirrors looper
// state back onto controller lights.
type Manager struct {
	looper *looper.Looper
	disp   *looper.Dispatcher
	theme  *theme.Theme
	opts   Options

	mu          sync.Mutex
	bank        int
	clearArmed  bool
	pulseArmed  bool
	controllers map[string]midi.Controller
	leds        midi.Controller
	notices     []string
	lastErr     error

	// Multi-port MIDI output
	senders   map[string]func(gomidi.Message) error
	sendersMu sync.RWMutex

	// LED rendering at fixed FPS
	ledDirty bool
	prevLEDs map[[2]int]LEDState

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// LEDState describes the state of a single LED
type LEDState struct {
	Row, Col int
	Color    [3]uint8 // RGB color - controller maps to its palette
	Channel  uint8    // 0=static, 2=pulse
}

// LED refresh rate
const ledFPS = 30

// NewManager wires d's unmapped controllers to opts.ThruPort.
func NewManager(l *looper.Looper, d *looper.Dispatcher, th *theme.Theme, opts Options) *Manager {
	if opts.NoticeLines <= 0 {
		opts.NoticeLines = 8
	}
	if th == nil {
		th = theme.New(nil)
	}
	m := &Manager{
		looper:      l,
		disp:        d,
		theme:       th,
		opts:        opts,
		controllers: make(map[string]midi.Controller),
		senders:     make(map[string]func(gomidi.Message) error),
		prevLEDs:    make(map[[2]int]LEDState),
		UpdateChan:  make(chan struct{}, 1),
	}
	d.SetForwarder(m.forwardCC)
	return m
}

// Run drives the LED loop and watches the looper until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.looper.Updates():
			m.markDirty()
		case <-ticker.C:
			m.mu.Lock()
			dirty := m.ledDirty
			m.ledDirty = false
			m.mu.Unlock()

			// playing and recording slots change without a signal
			if dirty || m.looper.ActiveLoopCount() > 0 || m.looper.CurrentlyRecordingNote() != looper.NoNote {
				m.flushLEDs()
			}
		}
	}
}

// HandleNotice records a notice from the audio thread for display.
func (m *Manager) HandleNotice(n looper.Notice) {
	m.mu.Lock()
	m.notices = append(m.notices, n.String())
	if over := len(m.notices) - m.opts.NoticeLines; over > 0 {
		m.notices = append(m.notices[:0], m.notices[over:]...)
	}
	m.mu.Unlock()
	m.markDirty()
}

// Notices returns the most recent notices, oldest first.
func (m *Manager) Notices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notices...)
}

// LastError returns the most recent rejected request, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) report(err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	if err != nil {
		debug.Log("ctrl", "%v", err)
	}
	m.markDirty()
	return err
}

// markDirty flags that LEDs need refresh and wakes the UI.
func (m *Manager) markDirty() {
	m.mu.Lock()
	m.ledDirty = true
	m.mu.Unlock()
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// AddController starts routing c's events. The first controller with
// lights receives LED output.
func (m *Manager) AddController(c midi.Controller) {
	m.mu.Lock()
	m.controllers[c.ID()] = c
	if m.leds == nil && c.Type() == midi.ControllerLaunchpad {
		debug.Log("ctrl", "LED output on %s, resetting diff state", c.ID())
		m.leds = c
		m.prevLEDs = make(map[[2]int]LEDState) // reset state - diff will handle clearing
	}
	m.mu.Unlock()
	m.markDirty()

	go func() {
		for e := range c.Events() {
			m.HandleEvent(e)
		}
	}()
}

// RemoveController stops using the controller with the given ID.
func (m *Manager) RemoveController(id string) {
	m.mu.Lock()
	delete(m.controllers, id)
	if m.leds != nil && m.leds.ID() == id {
		m.leds = nil
		for _, c := range m.controllers {
			if c.Type() == midi.ControllerLaunchpad {
				m.leds = c
				m.prevLEDs = make(map[[2]int]LEDState)
				break
			}
		}
	}
	m.mu.Unlock()
	m.markDirty()
}

// Controllers returns the IDs of connected controllers.
func (m *Manager) Controllers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		ids = append(ids, id)
	}
	return ids
}

// HandleEvent applies one controller event.
func (m *Manager) HandleEvent(e midi.Event) error {
	debug.Log("ctrl", "%s: %s", e.Source, e)
	switch e.Type {
	case midi.NoteOn:
		return m.report(m.disp.NoteOn(int(e.Note), int(e.Value)))
	case midi.NoteOff:
		return m.report(m.disp.NoteOff(int(e.Note)))
	case midi.CC:
		return m.report(m.disp.ControlChange(int(e.Note), int(e.Value)))
	case midi.PadDown:
		note, ok := m.PadNote(e.Row, e.Col)
		if !ok {
			return nil
		}
		return m.report(m.padDown(note, int(e.Value)))
	case midi.PadUp:
		note, ok := m.PadNote(e.Row, e.Col)
		if !ok {
			return nil
		}
		return m.report(m.disp.NoteOff(note))
	case midi.Button:
		if e.Row == 8 {
			return m.report(m.Press(e.Col))
		}
		m.selectBank(e.Row)
	}
	return nil
}

func (m *Manager) padDown(note, velocity int) error {
	m.mu.Lock()
	clearing, pulse := m.clearArmed, m.pulseArmed
	m.clearArmed, m.pulseArmed = false, false
	m.mu.Unlock()

	switch {
	case clearing:
		return m.looper.ClearLoop(note)
	case pulse:
		return m.looper.SetPulseLoop(note)
	}
	return m.disp.NoteOn(note, velocity)
}

// Press performs a top row button action.
func (m *Manager) Press(button int) error {
	l := m.looper
	switch button {
	case ButtonTransport:
		if l.SystemState() == looper.SystemPlaying {
			return l.Stop()
		}
		return l.Start()
	case ButtonMode:
		l.TogglePlaybackMode()
	case ButtonSync:
		_, err := l.ToggleSync()
		return err
	case ButtonStopAll:
		return l.StopAllPlayback()
	case ButtonStopRecording:
		return l.StopAllRecordings()
	case ButtonSave:
		_, err := m.Backup()
		return err
	case ButtonPulse:
		m.mu.Lock()
		m.pulseArmed = !m.pulseArmed
		m.clearArmed = false
		m.mu.Unlock()
	case ButtonClear:
		m.mu.Lock()
		m.clearArmed = !m.clearArmed
		m.pulseArmed = false
		m.mu.Unlock()
	}
	m.markDirty()
	return nil
}

// Armed reports whether the next pad press clears or sets the pulse.
func (m *Manager) Armed() (clearing, pulse bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearArmed, m.pulseArmed
}

func (m *Manager) selectBank(row int) {
	bank := -1
	switch row {
	case bankRow0:
		bank = 0
	case bankRow1:
		bank = 1
	}
	if bank < 0 {
		return
	}
	m.SetBank(bank)
}

// SetBank selects which 64 notes the grid addresses.
func (m *Manager) SetBank(bank int) {
	if bank < 0 || bank >= numBanks {
		return
	}
	m.mu.Lock()
	m.bank = bank
	m.mu.Unlock()
	debug.Log("ctrl", "bank %d", bank)
	m.markDirty()
}

// Bank returns the selected grid bank.
func (m *Manager) Bank() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bank
}

// PadNote maps a grid pad in the current bank to a loop note.
func (m *Manager) PadNote(row, col int) (int, bool) {
	idx := midi.PadIndex(row, col)
	if idx < 0 {
		return 0, false
	}
	note := m.opts.PadBaseNote + m.Bank()*midi.GridSize + idx
	if note < 0 || note >= looper.NumNotes {
		return 0, false
	}
	return note, true
}

// forwardCC sends an unmapped controller change to the thru port.
func (m *Manager) forwardCC(controller, value int) {
	sender := m.getSender(m.opts.ThruPort)
	if sender == nil {
		debug.LogEvery(20, "ctrl", "CC%d unmapped, no thru port", controller)
		return
	}
	if err := sender(gomidi.ControlChange(0, uint8(controller), uint8(value))); err != nil {
		debug.Log("ctrl", "forward CC%d: %v", controller, err)
	}
}

// getSender returns a sender for the given port name, lazily opening it
func (m *Manager) getSender(portName string) func(gomidi.Message) error {
	if portName == "" {
		return nil
	}

	m.sendersMu.RLock()
	if sender, ok := m.senders[portName]; ok {
		m.sendersMu.RUnlock()
		return sender
	}
	m.sendersMu.RUnlock()

	// Open port
	m.sendersMu.Lock()
	defer m.sendersMu.Unlock()

	// Double-check after acquiring write lock
	if sender, ok := m.senders[portName]; ok {
		return sender
	}

	// Find and open port
	for _, port := range gomidi.GetOutPorts() {
		if port.String() == portName {
			sender, err := gomidi.SendTo(port)
			if err != nil {
				return nil
			}
			m.senders[portName] = sender
			return sender
		}
	}
	return nil
}

// SetSender installs the output used for a port name.
func (m *Manager) SetSender(portName string, fn func(gomidi.Message) error) {
	m.sendersMu.Lock()
	m.senders[portName] = fn
	m.sendersMu.Unlock()
}

// RenderLEDs returns the lights for the current looper state.
func (m *Manager) RenderLEDs() []LEDState {
	pulse := m.looper.SyncInfo().PulseNote
	clearing, pulseArmed := m.Armed()
	bank := m.Bank()

	var leds []LEDState
	for idx := 0; idx < midi.GridSize; idx++ {
		row, col := midi.PadPosition(idx)
		note, ok := m.PadNote(row, col)
		if !ok {
			continue
		}
		info, _ := m.looper.LoopByNote(note)
		rgb := m.theme.LoopRGB(info, note == pulse)
		if rgb == (theme.RGB{}) {
			continue
		}
		ch := midi.ChannelStatic
		if info.State == looper.LoopRecording {
			ch = midi.ChannelPulse
		}
		leds = append(leds, LEDState{Row: row, Col: col, Color: rgb, Channel: ch})
	}

	top := func(col int, on bool, role float64) {
		if !on {
			return
		}
		leds = append(leds, LEDState{Row: 8, Col: col, Color: m.theme.RGB(role)})
	}
	p := m.looper.Params()
	top(ButtonTransport, p.System == looper.SystemPlaying, theme.RoleSuccess)
	top(ButtonMode, p.Mode == looper.ModeTrigger, theme.RoleWarning)
	top(ButtonSync, p.SyncEnabled, theme.RoleAccent)
	top(ButtonStopAll, m.looper.ActiveLoopCount() > 0, theme.RoleMuted)
	top(ButtonStopRecording, m.looper.CurrentlyRecordingNote() != looper.NoNote, theme.RoleActive)
	top(ButtonSave, true, theme.RoleMuted)
	top(ButtonPulse, pulseArmed, theme.RoleCursor)
	top(ButtonClear, clearing, theme.RoleActive)

	for b, row := range []int{bankRow0, bankRow1} {
		role := theme.RoleSurface
		if b == bank {
			role = theme.RoleFG
		}
		leds = append(leds, LEDState{Row: row, Col: 8, Color: m.theme.RGB(role)})
	}
	return leds
}

// flushLEDs sends only changed LEDs to the controller (diffing + batching)
func (m *Manager) flushLEDs() {
	m.mu.Lock()
	c := m.leds
	m.mu.Unlock()
	if c == nil {
		return
	}

	newLEDs := m.RenderLEDs()
	newMap := make(map[[2]int]LEDState, len(newLEDs))

	var updates []midi.LEDUpdate

	m.mu.Lock()
	prevLEDs := m.prevLEDs
	m.mu.Unlock()

	for _, led := range newLEDs {
		key := [2]int{led.Row, led.Col}
		newMap[key] = led

		// Only send if changed
		if prev, ok := prevLEDs[key]; !ok || prev != led {
			updates = append(updates, midi.LEDUpdate{
				Row:     led.Row,
				Col:     led.Col,
				Color:   led.Color,
				Channel: led.Channel,
			})
		}
	}

	// Clear LEDs that are no longer present
	for key := range prevLEDs {
		if _, ok := newMap[key]; !ok {
			updates = append(updates, midi.LEDUpdate{
				Row:   key[0],
				Col:   key[1],
				Color: [3]uint8{0, 0, 0},
			})
		}
	}

	if len(updates) > 0 {
		debug.Log("led", "flushLEDs: batch=%d prev=%d", len(updates), len(prevLEDs))
		if err := c.SetLEDBatch(updates); err != nil {
			debug.Log("led", "send: %v", err)
		}
	}

	m.mu.Lock()
	m.prevLEDs = newMap
	m.mu.Unlock()
}

// Describe summarizes a slot for status lines.
func Describe(info looper.LoopInfo) string {
	if !info.Ready && info.State != looper.LoopRecording {
		return fmt.Sprintf("%3d  empty", info.Note)
	}
	return fmt.Sprintf("%3d  %-9s %7d frames  vol %.2f", info.Note, info.State, info.RecordedFrames, info.Volume)
}
