package control

import (
	"errors"
	"sync"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-looper/looper"
	"go-looper/midi"
)

type fakeController struct {
	id     string
	events chan midi.Event

	mu      sync.Mutex
	batches [][]midi.LEDUpdate
}

func newFakeController(id string) *fakeController {
	return &fakeController{id: id, events: make(chan midi.Event, 8)}
}

func (f *fakeController) ID() string { return f.id }
func (f *fakeController) Type() midi.ControllerType { return midi.ControllerLaunchpad }
func (f *fakeController) Events() <-chan midi.Event { return f.events }
func (f *fakeController) ClearLEDs() error { return nil }
func (f *fakeController) Close() error { close(f.events); return nil }

func (f *fakeController) SetLEDBatch(u []midi.LEDUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]midi.LEDUpdate(nil), u...))
	return nil
}

func (f *fakeController) last() []midi.LEDUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *fakeController) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newTestManager(t *testing.T, opts Options) (*Manager, *looper.Looper) {
	t.Helper()
	l, err := looper.New(looper.Config{
		SampleRate:     1000,
		BlockSize:      100,
		MaxLoopSeconds: 1,
		QueueSize:      64,
		RecordingsDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	if opts.SessionDir == "" {
		opts.SessionDir = t.TempDir()
	}
	return NewManager(l, looper.NewDispatcher(l, nil), nil, opts), l
}

func process(l *looper.Looper, frames int, v float32) {
	in := make([]float32, frames)
	for i := range in {
		in[i] = v
	}
	l.Process(in, make([]float32, frames))
}

func loop(t *testing.T, l *looper.Looper, note int) looper.LoopInfo {
	t.Helper()
	info, ok := l.LoopByNote(note)
	if !ok {
		t.Fatalf("no loop %d", note)
	}
	return info
}

func TestPadNoteBanks(t *testing.T) {
	m, _ := newTestManager(t, Options{PadBaseNote: 36})
	if n, ok := m.PadNote(0, 0); !ok || n != 36 {
		t.Fatalf("pad 0,0 = %d %v", n, ok)
	}
	if n, _ := m.PadNote(7, 7); n != 99 {
		t.Fatalf("pad 7,7 = %d", n)
	}
	if _, ok := m.PadNote(0, 8); ok {
		t.Fatal("scene button is not a pad")
	}

	m.HandleEvent(midi.Event{Type: midi.Button, Row: bankRow1, Col: 8})
	if m.Bank() != 1 {
		t.Fatalf("bank = %d", m.Bank())
	}
	if n, _ := m.PadNote(3, 3); n != 127 {
		t.Fatalf("bank 1 pad 3,3 = %d", n)
	}
	if _, ok := m.PadNote(3, 4); ok {
		t.Fatal("note 128 should not map")
	}
	m.SetBank(5)
	if m.Bank() != 1 {
		t.Fatal("out of range bank accepted")
	}
}

func TestPadsRecordAndTrigger(t *testing.T) {
	m, l := newTestManager(t, Options{PadBaseNote: 36})

	// trigger mode: hold to record, release to stop
	m.HandleEvent(midi.Event{Type: midi.PadDown, Row: 0, Col: 0, Value: 127})
	process(l, 300, 0.5)
	m.HandleEvent(midi.Event{Type: midi.PadUp, Row: 0, Col: 0})
	process(l, 100, 0)

	info := loop(t, l, 36)
	if !info.Ready || info.RecordedFrames != 300 {
		t.Fatalf("after take: %+v", info)
	}

	m.HandleEvent(midi.Event{Type: midi.PadDown, Row: 0, Col: 0, Value: 64})
	process(l, 100, 0)
	if loop(t, l, 36).State != looper.LoopPlaying {
		t.Fatal("pad press should play")
	}
	m.HandleEvent(midi.Event{Type: midi.PadUp, Row: 0, Col: 0})
	process(l, 100, 0)
	if loop(t, l, 36).State != looper.LoopStopped {
		t.Fatal("pad release should stop")
	}
}

func TestClearAndPulseArming(t *testing.T) {
	m, l := newTestManager(t, Options{})
	for _, note := range []int{0, 1} {
		if err := l.RequestRecordStart(note); err != nil {
			t.Fatal(err)
		}
		process(l, 200, 0.5)
		l.RequestRecordStop(note)
		process(l, 100, 0)
	}

	m.Press(ButtonPulse)
	if _, pulse := m.Armed(); !pulse {
		t.Fatal("pulse not armed")
	}
	m.HandleEvent(midi.Event{Type: midi.PadDown, Row: 0, Col: 1, Value: 100})
	process(l, 100, 0)
	if got := l.SyncInfo().PulseNote; got != 1 {
		t.Fatalf("pulse note = %d", got)
	}

	m.Press(ButtonClear)
	m.HandleEvent(midi.Event{Type: midi.PadDown, Row: 0, Col: 0, Value: 100})
	process(l, 100, 0)
	if loop(t, l, 0).Ready {
		t.Fatal("armed pad press should clear")
	}
	if clearing, pulse := m.Armed(); clearing || pulse {
		t.Fatal("arming should reset after one press")
	}
}

func TestTopRowButtons(t *testing.T) {
	m, l := newTestManager(t, Options{})

	m.HandleEvent(midi.Event{Type: midi.Button, Row: 8, Col: ButtonTransport, Value: 127})
	if l.SystemState() != looper.SystemPlaying {
		t.Fatal("transport should start")
	}
	m.Press(ButtonTransport)
	if l.SystemState() != looper.SystemStopped {
		t.Fatal("transport should stop")
	}

	mode := l.PlaybackMode()
	m.Press(ButtonMode)
	if l.PlaybackMode() == mode {
		t.Fatal("mode did not toggle")
	}
	m.Press(ButtonSync)
	if !l.SyncEnabled() {
		t.Fatal("sync did not toggle")
	}
}

func TestNotesAndControllersUseDispatcher(t *testing.T) {
	m, l := newTestManager(t, Options{ThruPort: "thru"})
	var sent []gomidi.Message
	m.SetSender("thru", func(msg gomidi.Message) error {
		sent = append(sent, msg)
		return nil
	})

	if err := m.HandleEvent(midi.Event{Type: midi.CC, Note: 7, Value: 0}); err != nil {
		t.Fatal(err)
	}
	if l.Volume() != 0 {
		t.Fatalf("volume = %v", l.Volume())
	}

	m.HandleEvent(midi.Event{Type: midi.CC, Note: 20, Value: 99})
	if len(sent) != 1 {
		t.Fatalf("forwarded %d messages", len(sent))
	}
	var ch, cc, val uint8
	if !sent[0].GetControlChange(&ch, &cc, &val) || cc != 20 || val != 99 {
		t.Fatalf("forwarded %v", sent[0])
	}

	if err := m.HandleEvent(midi.Event{Type: midi.NoteOn, Note: 200, Value: 100}); !errors.Is(err, looper.ErrInvalidNote) {
		t.Fatalf("expected ErrInvalidNote, got %v", err)
	}
	if !errors.Is(m.LastError(), looper.ErrInvalidNote) {
		t.Fatal("error not recorded")
	}
}

func TestFlushLEDsDiffs(t *testing.T) {
	m, l := newTestManager(t, Options{})
	lp := newFakeController("lp")
	m.AddController(lp)

	m.flushLEDs()
	initial := lp.count()
	if initial != 1 {
		t.Fatalf("first flush sent %d batches", initial)
	}

	m.flushLEDs()
	if lp.count() != initial {
		t.Fatal("unchanged state should send nothing")
	}

	l.RequestRecordStart(0)
	process(l, 100, 0.5)
	m.flushLEDs()
	var found bool
	for _, u := range lp.last() {
		if u.Row == 0 && u.Col == 0 {
			found = true
			if u.Channel != midi.ChannelPulse {
				t.Fatalf("recording pad channel = %d", u.Channel)
			}
		}
	}
	if !found {
		t.Fatalf("pad 0,0 not updated: %+v", lp.last())
	}

	l.RequestRecordStop(0)
	process(l, 100, 0)
	l.ClearLoop(0)
	process(l, 100, 0)
	m.flushLEDs()
	found = false
	for _, u := range lp.last() {
		if u.Row == 0 && u.Col == 0 && u.Color == [3]uint8{} {
			found = true
		}
	}
	if !found {
		t.Fatalf("cleared pad not turned off: %+v", lp.last())
	}

	m.RemoveController("lp")
	m.flushLEDs()
	if lp.count() != 3 {
		t.Fatalf("removed controller got %d batches", lp.count())
	}
}

func TestControllerEventsAreRouted(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	kb := newFakeController("pads")
	m.AddController(kb)
	kb.events <- midi.Event{Type: midi.Button, Row: bankRow1, Col: 8}

	deadline := time.Now().Add(2 * time.Second)
	for m.Bank() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("event never handled")
		}
		time.Sleep(time.Millisecond)
	}
	if ids := m.Controllers(); len(ids) != 1 || ids[0] != "pads" {
		t.Fatalf("controllers = %v", ids)
	}
	kb.Close()
}

func TestNotices(t *testing.T) {
	m, _ := newTestManager(t, Options{NoticeLines: 3})
	for i := 0; i < 5; i++ {
		m.HandleNotice(looper.Notice{Kind: looper.NoticeLoopCleared, Note: int16(i)})
	}
	got := m.Notices()
	if len(got) != 3 || got[0] != "note 2: cleared" || got[2] != "note 4: cleared" {
		t.Fatalf("notices = %q", got)
	}
}

func TestSessions(t *testing.T) {
	m, l := newTestManager(t, Options{})
	l.SetVolume(0.5)

	path, err := m.SaveSession("gig", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.SaveSession("gig", true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Backup(); err != nil {
		t.Fatal(err)
	}
	sessions, err := m.Sessions()
	if err != nil || len(sessions) != 3 {
		t.Fatalf("sessions = %+v, %v", sessions, err)
	}

	l.SetVolume(0.9)
	if err := m.LoadSession("gig"); err != nil {
		t.Fatal(err)
	}
	if l.Volume() != 0.5 {
		t.Fatalf("volume after load = %v", l.Volume())
	}
	if err := m.LoadSession(path); err != nil {
		t.Fatal(err)
	}

	if err := m.LoadSession("nope"); !errors.Is(err, looper.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	if err := m.Reset(); err != nil {
		t.Fatal(err)
	}
	if l.Volume() != 1 {
		t.Fatal("reset did not restore defaults")
	}
}
