package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-looper/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// PortRule opens input ports whose name contains Name (case-insensitive)
// as the given kind of controller.
type PortRule struct {
	Name    string
	Kind    ControllerType
	Model   LaunchpadModel // Launchpads; 0 = from the port name
	Channel int            // keyboards: 1-16, 0 = omni
}

// portMatch is how one input port will be opened.
type portMatch struct {
	kind    ControllerType
	model   LaunchpadModel
	channel int
}

// scanTimeout bounds a port listing; CoreMIDI can hang while a device is
// being plugged in.
const scanTimeout = 3 * time.Second

// Ports lists the current MIDI ports, giving up after timeout.
func Ports(timeout time.Duration) ([]drivers.In, []drivers.Out, error) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()
	select {
	case r := <-ch:
		return r.ins, r.outs, nil
	case <-time.After(timeout):
		return nil, nil, errors.Errorf("midi: listing ports timed out after %s", timeout)
	}
}

// DeviceManager handles hot-plug detection of MIDI controllers
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration

	rules     []PortRule
	allInputs bool
}

// NewDeviceManager creates a device manager. Ports matching a rule are
// opened as the rule says; other Launchpads are recognised by name; with
// allInputs any remaining input becomes an omni keyboard.
func NewDeviceManager(rules []PortRule, allInputs bool) *DeviceManager {
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		rules:       rules,
		allInputs:   allInputs,
	}
}

// Events returns a channel of device connect/disconnect events. It is
// closed when Run returns.
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		out[k] = v
	}
	return out
}

// Run polls for devices until ctx is done, then closes every controller.
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan(ctx)
		}
	}
}

func (dm *DeviceManager) scan(ctx context.Context) {
	ins, outs, err := Ports(scanTimeout)
	if err != nil {
		debug.LogEvery(10, "midi", "%v", err)
		return
	}

	seen := make(map[string]bool)
	for _, in := range ins {
		id := in.String()
		m, ok := dm.classify(id)
		if !ok {
			continue
		}
		seen[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := open(id, m, in, outs)
		if err != nil {
			debug.Log("midi", "open %s: %v", id, err)
			continue
		}
		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()

		debug.Log("midi", "connected %s (%s)", id, m.kind)
		if !dm.emit(ctx, DeviceEvent{Type: DeviceConnected, Controller: c, ID: id}) {
			return
		}
	}

	dm.mu.Lock()
	var gone []string
	for id, c := range dm.controllers {
		if !seen[id] {
			c.Close()
			delete(dm.controllers, id)
			gone = append(gone, id)
		}
	}
	dm.mu.Unlock()

	for _, id := range gone {
		debug.Log("midi", "disconnected %s", id)
		if !dm.emit(ctx, DeviceEvent{Type: DeviceDisconnected, ID: id}) {
			return
		}
	}
}

// emit delivers e unless ctx ends first.
func (dm *DeviceManager) emit(ctx context.Context, e DeviceEvent) bool {
	select {
	case dm.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// classify decides whether and how an input port is opened.
func (dm *DeviceManager) classify(port string) (portMatch, bool) {
	name := strings.ToLower(port)
	for _, r := range dm.rules {
		if r.Name == "" || !strings.Contains(name, strings.ToLower(r.Name)) {
			continue
		}
		switch r.Kind {
		case ControllerLaunchpad:
			model := r.Model
			if model == 0 {
				model, _ = LaunchpadModelOf(port)
			}
			if model == 0 {
				model = LaunchpadX
			}
			return portMatch{kind: ControllerLaunchpad, model: model}, true
		case ControllerKeyboard:
			return portMatch{kind: ControllerKeyboard, channel: r.Channel}, true
		}
	}
	if model, ok := LaunchpadModelOf(port); ok {
		return portMatch{kind: ControllerLaunchpad, model: model}, true
	}
	if dm.allInputs && !strings.Contains(name, "launchpad") && !strings.Contains(name, "through") {
		return portMatch{kind: ControllerKeyboard}, true
	}
	return portMatch{}, false
}

func open(id string, m portMatch, in drivers.In, outs []drivers.Out) (Controller, error) {
	if m.kind == ControllerKeyboard {
		return NewKeyboardController(id, in, m.channel)
	}
	return NewLaunchpadController(id, m.model, in, matchingOut(id, outs))
}

// matchingOut finds the output port of the same device: the same name, or
// the same name once "in"/"out" words are dropped.
func matchingOut(in string, outs []drivers.Out) drivers.Out {
	key := portKey(in)
	var fallback drivers.Out
	for _, o := range outs {
		switch {
		case strings.EqualFold(o.String(), in):
			return o
		case fallback == nil && portKey(o.String()) == key:
			fallback = o
		}
	}
	return fallback
}

func portKey(name string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if w != "in" && w != "out" && w != "input" && w != "output" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
