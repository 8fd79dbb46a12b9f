package looper

import (
	"fmt"
	"strings"

	"go-looper/debug"
)

// CCAction is the effect bound to a MIDI controller number.
type CCAction int

const (
	CCNone CCAction = iota
	CCVolume
	CCSpeed
	CCPitch
	CCRecordPlayer
	CCPlaybackMode
	CCSyncMode
	CCSyncCutoff
	CCSyncRecordingCutoff
)

var ccActionNames = map[CCAction]string{
	CCNone:                "none",
	CCVolume:              "volume",
	CCSpeed:               "speed",
	CCPitch:               "pitch",
	CCRecordPlayer:        "record-player",
	CCPlaybackMode:        "playback-mode",
	CCSyncMode:            "sync",
	CCSyncCutoff:          "sync-cutoff",
	CCSyncRecordingCutoff: "sync-recording-cutoff",
}

func (a CCAction) String() string {
	if s, ok := ccActionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("CCAction(%d)", int(a))
}

// ParseCCAction looks an action up by name.
func ParseCCAction(name string) (CCAction, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range ccActionNames {
		if n == name {
			return a, true
		}
	}
	return CCNone, false
}

// DefaultCCMap returns the stock controller assignments.
func DefaultCCMap() map[int]CCAction {
	return map[int]CCAction{
		7:  CCVolume,
		74: CCSpeed,
		75: CCPitch,
		76: CCRecordPlayer,
		77: CCPlaybackMode,
		78: CCSyncMode,
		79: CCSyncCutoff,
		80: CCSyncRecordingCutoff,
	}
}

// ForwardFunc receives controller changes that have no mapping.
type ForwardFunc func(controller, value int)

// Dispatcher turns note and controller events into looper requests
// according to the current playback mode.
type Dispatcher struct {
	l       *Looper
	table   [128]CCAction
	forward ForwardFunc
}

// NewDispatcher binds a dispatcher to l. A nil ccMap uses DefaultCCMap.
func NewDispatcher(l *Looper, ccMap map[int]CCAction) *Dispatcher {
	if ccMap == nil {
		ccMap = DefaultCCMap()
	}
	d := &Dispatcher{l: l}
	for cc, a := range ccMap {
		if cc >= 0 && cc < len(d.table) {
			d.table[cc] = a
		}
	}
	return d
}

// SetForwarder installs fn for unmapped controllers.
func (d *Dispatcher) SetForwarder(fn ForwardFunc) { d.forward = fn }

// Action returns the effect bound to controller.
func (d *Dispatcher) Action(controller int) CCAction {
	if controller < 0 || controller >= len(d.table) {
		return CCNone
	}
	return d.table[controller]
}

// NoteOn handles a Note-On. Velocity sets the slot volume once the note
// is accepted; a rejected note leaves the slot untouched.
func (d *Dispatcher) NoteOn(note, velocity int) error {
	if !validNote(note) {
		return ErrInvalidNote
	}
	if velocity <= 0 {
		return d.NoteOff(note)
	}
	if velocity > 127 {
		velocity = 127
	}
	kind := IntentToggle
	if d.l.PlaybackMode() == ModeTrigger {
		kind = IntentTrigger
	}
	if err := d.l.noteEvent(note, kind); err != nil {
		debug.Log("dispatch", "note on %d: %v", note, err)
		return err
	}
	// both intents land in the same drain, ahead of rendering
	return d.l.SetLoopVolume(note, float64(velocity)/127)
}

// NoteOff handles a Note-Off; NORMAL mode ignores it.
func (d *Dispatcher) NoteOff(note int) error {
	if !validNote(note) {
		return ErrInvalidNote
	}
	if d.l.PlaybackMode() != ModeTrigger {
		return nil
	}
	return d.l.noteRequest(note, IntentRelease)
}

// ControlChange applies a mapped controller or forwards it.
func (d *Dispatcher) ControlChange(controller, value int) error {
	if controller < 0 || controller > 127 {
		return ErrInvalidController
	}
	if value < 0 || value > 127 {
		return ErrInvalidController
	}
	l := d.l
	switch d.table[controller] {
	case CCVolume:
		return l.SetVolume(float64(value) / 127)
	case CCSpeed:
		s := DetentScale(value)
		if err := l.SetPlaybackSpeed(s); err != nil {
			return err
		}
		if s != 1 {
			return l.SetRubberbandEnabled(true)
		}
	case CCPitch:
		p := PitchFromCC(value)
		if err := l.SetPitchShift(p); err != nil {
			return err
		}
		if p != 0 {
			return l.SetRubberbandEnabled(true)
		}
	case CCRecordPlayer:
		return l.SetRecordPlayerMode(DetentScale(value))
	case CCPlaybackMode:
		switch {
		case value >= 64:
			l.SetPlaybackMode(ModeTrigger)
		case value > 0:
			l.SetPlaybackMode(ModeNormal)
		default:
			l.TogglePlaybackMode()
		}
		debug.Log("dispatch", "CC%d: playback mode %s", controller, l.PlaybackMode())
	case CCSyncMode:
		var err error
		switch {
		case value >= 64:
			err = l.EnableSync()
		case value > 0:
			err = l.DisableSync()
		default:
			_, err = l.ToggleSync()
		}
		return err
	case CCSyncCutoff:
		return l.SetSyncCutoff(float64(value) / 127)
	case CCSyncRecordingCutoff:
		return l.SetSyncRecordingCutoff(float64(value) / 127)
	default:
		if d.forward != nil {
			d.forward(controller, value)
		}
	}
	return nil
}

// DetentScale maps 0-127 to 0.25-4.0 with 64 at exactly 1.0.
func DetentScale(value int) float64 {
	if value < 64 {
		return 0.25 + float64(value)/63*0.75
	}
	return 1 + float64(value-64)/63*3
}

// PitchFromCC maps 0-127 to -12..+12 semitones with 64 at 0.
func PitchFromCC(value int) float64 {
	if value < 64 {
		return -12 + float64(value)/63*12
	}
	return float64(value-64) / 63 * 12
}
