package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-looper/control"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
	"go-looper/widgets"
)

type Model struct {
	Looper    *looper.Looper
	Control   *control.Manager
	DeviceMgr *midi.DeviceManager
	Theme     *theme.Theme

	// Session is the name used by save and load.
	Session string

	cursor   int
	message  string
	showHelp bool
	quitting bool
}

type UpdateMsg struct{}

type TickMsg time.Time

type DeviceEventMsg midi.DeviceEvent

func NewModel(l *looper.Looper, ctrl *control.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme, session string) Model {
	if session == "" {
		session = looper.DefaultSessionName
	}
	return Model{
		Looper:    l,
		Control:   ctrl,
		DeviceMgr: deviceMgr,
		Theme:     th,
		Session:   session,
		cursor:    36,
	}
}

func ListenForUpdates(manager *control.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	if deviceMgr == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Control),
		ListenForDevices(m.DeviceMgr),
		tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		m.message = m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Control)

	case TickMsg:
		return m, tick()

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			m.Control.AddController(event.Controller)
			m.message = "connected " + event.ID
		case midi.DeviceDisconnected:
			m.Control.RemoveController(event.ID)
			m.message = "disconnected " + event.ID
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

// handleKey applies a key and returns the status line to show.
func (m *Model) handleKey(key string) string {
	l := m.Looper
	p := l.Params()
	var err error
	switch key {
	case "left", "h":
		m.moveCursor(-1)
	case "right", "l":
		m.moveCursor(1)
	case "up", "k":
		m.moveCursor(-widgets.SlotColumns)
	case "down", "j":
		m.moveCursor(widgets.SlotColumns)
	case "?":
		m.showHelp = !m.showHelp

	case " ":
		err = m.Control.Press(control.ButtonTransport)
	case "m":
		return "mode: " + l.TogglePlaybackMode().String()
	case "y":
		on, err := l.ToggleSync()
		if err == nil {
			return fmt.Sprintf("sync: %v", on)
		}
		return err.Error()
	case "a":
		err = l.StopAllPlayback()
	case "A":
		err = l.StopAllRecordings()

	case "enter":
		err = m.Control.HandleEvent(midi.Event{Type: midi.NoteOn, Note: uint8(m.cursor), Value: 127, Source: "keys"})
	case "r":
		if l.CurrentlyRecordingNote() == m.cursor {
			err = l.RequestRecordStop(m.cursor)
		} else {
			err = l.RequestRecordStart(m.cursor)
		}
	case "p":
		info, _ := l.LoopByNote(m.cursor)
		if info.State == looper.LoopPlaying {
			err = l.RequestPlaybackStop(m.cursor)
		} else {
			err = l.RequestPlaybackStart(m.cursor)
		}
	case "x":
		err = l.ClearLoop(m.cursor)
	case "P":
		err = l.SetPulseLoop(m.cursor)

	case "+", "=":
		err = l.SetVolume(p.Volume + 0.05)
	case "-", "_":
		err = l.SetVolume(p.Volume - 0.05)
	case ".":
		err = l.SetPlaybackSpeed(p.Speed * 1.05)
	case ",":
		err = l.SetPlaybackSpeed(p.Speed / 1.05)
	case ">":
		err = l.SetPitchShift(p.Pitch + 1)
	case "<":
		err = l.SetPitchShift(p.Pitch - 1)
	case "0":
		if err = l.SetPlaybackSpeed(1); err == nil {
			err = l.SetPitchShift(0)
		}

	case "c":
		if l.RecordingEnabled() {
			err = l.SetRecordingEnabled(false, "")
			if err == nil {
				return "capture stopped: " + filepath.Base(p.RecordingFile)
			}
		} else {
			name := filepath.Join(l.Config().RecordingsDir, "capture_"+time.Now().Format("20060102_150405")+".wav")
			err = l.SetRecordingEnabled(true, name)
			if err == nil {
				return "capturing to " + name
			}
		}

	case "s", "S":
		path, err := m.Control.SaveSession(m.Session, key == "S")
		if err != nil {
			return err.Error()
		}
		return "saved " + path
	case "L":
		if err := m.Control.LoadSession(m.Session); err != nil {
			return err.Error()
		}
		return "loaded " + m.Session
	case "b":
		path, err := m.Control.Backup()
		if err != nil {
			return err.Error()
		}
		return "backup " + path
	case "R":
		err = m.Control.Reset()
	default:
		return m.message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func (m *Model) moveCursor(d int) {
	c := m.cursor + d
	if c < 0 || c >= looper.NumNotes {
		return
	}
	m.cursor = c
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	l := m.Looper
	p := l.Params()
	si := l.SyncInfo()

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	msgStyle := lipgloss.NewStyle().
		Foreground(m.Theme.FG()).
		Background(m.Theme.Muted()).
		Padding(0, 1)

	rec := "-"
	if n := l.CurrentlyRecordingNote(); n != looper.NoNote {
		rec = fmt.Sprint(n)
	}
	capture := ""
	if p.RecordingEnabled {
		capture = "  ● capture"
	}
	devices := ""
	if ids := m.Control.Controllers(); len(ids) > 0 {
		devices = "  [" + strings.Join(ids, ", ") + "]"
	}
	header := headerStyle.Render(fmt.Sprintf("go-looper  %s  %s  loops:%d  rec:%s%s%s",
		p.System, p.Mode, l.ActiveLoopCount(), rec, capture, devices))

	params := fgStyle.Render(fmt.Sprintf("vol %.2f  speed %.2fx  pitch %+.1f st  stretch %v",
		p.Volume, p.Speed, p.Pitch, p.Rubberband))

	syncLine := dimStyle.Render("sync off")
	if si.Enabled || si.PulseNote != looper.NoNote {
		state := "off"
		if si.Enabled {
			state = "on"
		}
		pulse := "none"
		if si.PulseNote != looper.NoNote {
			pulse = fmt.Sprintf("%d (%d frames)", si.PulseNote, si.PulseFrames)
		}
		syncLine = fmt.Sprintf("sync %s  pulse %s  %s  cutoff %.2f/%.2f",
			state, pulse, widgets.RenderMeter(m.Theme, si.Progress, 16), si.Cutoff, si.RecordingCutoff)
		if si.DeferredCount > 0 {
			syncLine += warnStyle.Render(fmt.Sprintf("  %d waiting", si.DeferredCount))
		}
	}

	grid := widgets.RenderSlotGrid(m.Theme, visibleLoops(l), si.PulseNote, m.cursor)
	pads := m.padMirror()
	body := lipgloss.JoinHorizontal(lipgloss.Top, grid, "    ", pads)

	info, _ := l.LoopByNote(m.cursor)
	detail := fgStyle.Render(control.Describe(info))
	if info.Filename != "" {
		detail += dimStyle.Render("  " + info.Filename)
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(params)
	out.WriteString("\n")
	out.WriteString(syncLine)
	out.WriteString("\n\n")
	out.WriteString(body)
	out.WriteString("\n\n")
	out.WriteString(detail)
	out.WriteString("\n")

	for _, n := range m.Control.Notices() {
		out.WriteString(dimStyle.Render("  " + n))
		out.WriteString("\n")
	}

	if err := m.Control.LastError(); err != nil {
		out.WriteString(warnStyle.Render(err.Error()))
		out.WriteString("\n")
	}
	if m.message != "" {
		out.WriteString(msgStyle.Render(m.message))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if m.showHelp {
		out.WriteString(widgets.KeyHelp(m.Theme, keySections()))
		out.WriteString("\n\n")
		out.WriteString(widgets.StateLegend(m.Theme))
	} else {
		out.WriteString(widgets.KeyHint(m.Theme, hint))
	}

	return out.String()
}

// visibleLoops is every ready slot plus the one being recorded.
func visibleLoops(l *looper.Looper) []looper.LoopInfo {
	loops := l.ReadyLoops()
	if n := l.CurrentlyRecordingNote(); n != looper.NoNote {
		if info, ok := l.LoopByNote(n); ok && !info.Ready {
			loops = append(loops, info)
		}
	}
	return loops
}

// padMirror shows what the Launchpad is displaying for the current bank.
func (m Model) padMirror() string {
	leds := m.Control.RenderLEDs()
	pads := make([]widgets.Pad, len(leds))
	for i, led := range leds {
		pads[i] = widgets.Pad{
			Row:   led.Row,
			Col:   led.Col,
			Color: theme.RGB(led.Color),
			Blink: led.Channel != midi.ChannelStatic,
		}
	}
	label := lipgloss.NewStyle().Foreground(m.Theme.Muted()).Render(fmt.Sprintf("bank %d", m.Control.Bank()+1))
	return widgets.PadMirror(m.Theme, pads) + "\n" + label
}

var hint = []widgets.KeyBinding{
	{Key: "hjkl", Desc: "move"},
	{Key: "enter", Desc: "note"},
	{Key: "r", Desc: "rec"},
	{Key: "p", Desc: "play"},
	{Key: "x", Desc: "clear"},
	{Key: "space", Desc: "transport"},
	{Key: "m", Desc: "mode"},
	{Key: "y", Desc: "sync"},
	{Key: "s", Desc: "save"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

func keySections() []widgets.KeySection {
	return []widgets.KeySection{
		{Title: "Slots", Keys: []widgets.KeyBinding{
			{Key: "hjkl/arrows", Desc: "move cursor"},
			{Key: "enter", Desc: "note-on for the cursor slot (mode dependent)"},
			{Key: "r", Desc: "start/stop recording"},
			{Key: "p", Desc: "start/stop playback"},
			{Key: "x", Desc: "clear slot"},
			{Key: "P", Desc: "make slot the pulse loop"},
		}},
		{Title: "Global", Keys: []widgets.KeyBinding{
			{Key: "space", Desc: "start/stop transport"},
			{Key: "m", Desc: "toggle NORMAL/TRIGGER"},
			{Key: "y", Desc: "toggle sync"},
			{Key: "a / A", Desc: "stop all playback / recordings"},
			{Key: "+ / -", Desc: "volume"},
			{Key: ", / .", Desc: "speed"},
			{Key: "< / >", Desc: "pitch"},
			{Key: "0", Desc: "reset speed and pitch"},
			{Key: "c", Desc: "toggle output capture"},
		}},
		{Title: "Session", Keys: []widgets.KeyBinding{
			{Key: "s / S", Desc: "save / save active loops only"},
			{Key: "L", Desc: "load"},
			{Key: "b", Desc: "timestamped backup"},
			{Key: "R", Desc: "reset to defaults"},
		}},
	}
}
