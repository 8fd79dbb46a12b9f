package midi

import (
	"sync"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-looper/debug"
)

// KeyboardController handles a standard MIDI keyboard or control surface.
type KeyboardController struct {
	id       string
	inPort   drivers.In
	channel  int // 1-16, 0 = omni
	stopFunc func()

	mu     sync.Mutex
	closed bool
	events chan Event
}

// NewKeyboardController creates a keyboard controller (input only).
// channel filters to one MIDI channel (1-16); 0 accepts all.
func NewKeyboardController(id string, inPort drivers.In, channel int) (*KeyboardController, error) {
	kb := &KeyboardController{
		id:      id,
		inPort:  inPort,
		channel: channel,
		events:  make(chan Event, 64),
	}

	// Open input
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			kb.handle(msg)
		})
		if err != nil {
			return nil, errors.Wrap(err, "open input")
		}
		kb.stopFunc = stop
	}

	return kb, nil
}

func (kb *KeyboardController) handle(msg gomidi.Message) {
	e, ok := FromMessage(msg)
	if !ok || !kb.accepts(e.Channel) {
		return
	}
	e.Source = kb.id

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.closed {
		return
	}
	if !send(kb.events, e) {
		debug.LogEvery(10, "midi", "%s: event queue full, dropping %s", kb.id, e)
	}
}

func (kb *KeyboardController) accepts(channel uint8) bool {
	return kb.channel == 0 || int(channel)+1 == kb.channel
}

func (kb *KeyboardController) ID() string {
	return kb.id
}

func (kb *KeyboardController) Type() ControllerType {
	return ControllerKeyboard
}

func (kb *KeyboardController) Events() <-chan Event {
	return kb.events
}

// SetLEDBatch is a no-op for keyboards
func (kb *KeyboardController) SetLEDBatch(updates []LEDUpdate) error {
	return nil
}

// ClearLEDs is a no-op for keyboards
func (kb *KeyboardController) ClearLEDs() error {
	return nil
}

func (kb *KeyboardController) Close() error {
	if kb.stopFunc != nil {
		kb.stopFunc()
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if !kb.closed {
		kb.closed = true
		close(kb.events)
	}
	return nil
}
