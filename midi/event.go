package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0

	// Grid controller events. Row/Col are set, Note is unused.
	PadDown uint8 = 0x01
	PadUp   uint8 = 0x02
	Button  uint8 = 0x03 // top row (row 8) or scene column (col 8)
)

// Event is one decoded input from a controller.
type Event struct {
	Type    uint8 // NoteOn, NoteOff, CC, PadDown, PadUp, Button
	Channel uint8
	Note    uint8 // note number or controller number
	Value   uint8 // velocity or controller value
	Row     int
	Col     int
	Source  string
}

// FromMessage decodes the channel messages the looper reacts to.
// A Note-On with velocity 0 is reported as a Note-Off.
func FromMessage(msg gomidi.Message) (Event, bool) {
	var channel, key, value uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &value):
		if value == 0 {
			return Event{Type: NoteOff, Channel: channel, Note: key}, true
		}
		return Event{Type: NoteOn, Channel: channel, Note: key, Value: value}, true
	case msg.GetNoteOff(&channel, &key, &value):
		return Event{Type: NoteOff, Channel: channel, Note: key, Value: value}, true
	case msg.GetControlChange(&channel, &key, &value):
		return Event{Type: CC, Channel: channel, Note: key, Value: value}, true
	}
	return Event{}, false
}

func (e Event) String() string {
	switch e.Type {
	case NoteOn:
		return fmt.Sprintf("note-on %d vel %d ch %d", e.Note, e.Value, e.Channel+1)
	case NoteOff:
		return fmt.Sprintf("note-off %d ch %d", e.Note, e.Channel+1)
	case CC:
		return fmt.Sprintf("cc %d = %d ch %d", e.Note, e.Value, e.Channel+1)
	case PadDown:
		return fmt.Sprintf("pad %d,%d down vel %d", e.Row, e.Col, e.Value)
	case PadUp:
		return fmt.Sprintf("pad %d,%d up", e.Row, e.Col)
	case Button:
		return fmt.Sprintf("button %d,%d = %d", e.Row, e.Col, e.Value)
	}
	return fmt.Sprintf("event(0x%02x)", e.Type)
}
