package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerKeyboard
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerKeyboard:
		return "keyboard"
	}
	return "unknown"
}

// LEDUpdate sets one pad or button light.
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
	Channel  uint8 // ChannelStatic, ChannelFlash or ChannelPulse
}

// Controller is the interface for MIDI input devices
type Controller interface {
	ID() string
	Type() ControllerType

	// Input events from the controller. Closed by Close.
	Events() <-chan Event

	// Output to the controller; no-ops for devices without lights.
	SetLEDBatch(updates []LEDUpdate) error
	ClearLEDs() error

	// Lifecycle
	Close() error
}

// Channel modes for LEDUpdate
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)

// GridSize is the number of pads in the main grid.
const GridSize = 64

// PadIndex returns the 0-63 index of a grid pad counted from the
// bottom-left, or -1 for buttons outside the grid.
func PadIndex(row, col int) int {
	if row < 0 || row > 7 || col < 0 || col > 7 {
		return -1
	}
	return row*8 + col
}

// PadPosition is the inverse of PadIndex.
func PadPosition(index int) (row, col int) {
	return index / 8, index % 8
}

// send delivers e without blocking; a full channel drops the event.
func send(ch chan Event, e Event) bool {
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}
