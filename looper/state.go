package looper

import "fmt"

// NumNotes is the number of addressable loop slots, one per MIDI note.
const NumNotes = 128

// NoNote marks the absence of a note (no recording slot, no pulse loop).
const NoNote = -1

func validNote(note int) bool {
	return note >= 0 && note < NumNotes
}

// LoopState is the lifecycle state of a single loop slot.
// The integer values are stable; snapshots use the String form.
type LoopState int

const (
	LoopIdle      LoopState = 0
	LoopRecording LoopState = 1
	LoopPlaying   LoopState = 2
	LoopStopped   LoopState = 3
)

var loopStateNames = [...]string{"IDLE", "RECORDING", "PLAYING", "STOPPED"}

func (s LoopState) String() string {
	if s < 0 || int(s) >= len(loopStateNames) {
		return fmt.Sprintf("LoopState(%d)", int(s))
	}
	return loopStateNames[s]
}

func (s LoopState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoopState) UnmarshalText(b []byte) error {
	v, ok := ParseLoopState(string(b))
	if !ok {
		return fmt.Errorf("unknown loop state %q", b)
	}
	*s = v
	return nil
}

// ParseLoopState converts a state name back to its value.
func ParseLoopState(name string) (LoopState, bool) {
	for i, n := range loopStateNames {
		if n == name {
			return LoopState(i), true
		}
	}
	return LoopIdle, false
}

// SystemState is the global transport state.
type SystemState int

const (
	SystemIdle    SystemState = 0
	SystemPlaying SystemState = 1
	SystemStopped SystemState = 2
)

var systemStateNames = [...]string{"IDLE", "PLAYING", "STOPPED"}

func (s SystemState) String() string {
	if s < 0 || int(s) >= len(systemStateNames) {
		return fmt.Sprintf("SystemState(%d)", int(s))
	}
	return systemStateNames[s]
}

func (s SystemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SystemState) UnmarshalText(b []byte) error {
	for i, n := range systemStateNames {
		if n == string(b) {
			*s = SystemState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown system state %q", b)
}

// PlaybackMode selects how note events drive loop slots.
type PlaybackMode int

const (
	// ModeNormal toggles a slot on every Note-On and ignores Note-Off.
	ModeNormal PlaybackMode = 0
	// ModeTrigger acts on Note-On and releases on Note-Off.
	ModeTrigger PlaybackMode = 1
)

func (m PlaybackMode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeTrigger:
		return "TRIGGER"
	}
	return fmt.Sprintf("PlaybackMode(%d)", int(m))
}

func (m PlaybackMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *PlaybackMode) UnmarshalText(b []byte) error {
	v, ok := ParsePlaybackMode(string(b))
	if !ok {
		return fmt.Errorf("unknown playback mode %q", b)
	}
	*m = v
	return nil
}

// ParsePlaybackMode accepts "NORMAL" or "TRIGGER".
func ParsePlaybackMode(name string) (PlaybackMode, bool) {
	switch name {
	case "NORMAL":
		return ModeNormal, true
	case "TRIGGER":
		return ModeTrigger, true
	}
	return ModeTrigger, false
}

// ResumePolicy decides where a stopped loop restarts.
type ResumePolicy int

const (
	ResumeReset  ResumePolicy = iota // restart from frame 0
	ResumeRetain                     // continue from the stop position
)

// ParseResumePolicy accepts "reset" or "retain".
func ParseResumePolicy(name string) (ResumePolicy, bool) {
	switch name {
	case "", "reset":
		return ResumeReset, true
	case "retain":
		return ResumeRetain, true
	}
	return ResumeReset, false
}

// PromotePolicy decides whether a newly recorded loop longer than the
// current pulse loop takes over as the pulse.
type PromotePolicy int

const (
	PromoteNever PromotePolicy = iota
	PromoteLonger
)

// ParsePromotePolicy accepts "never" or "longer".
func ParsePromotePolicy(name string) (PromotePolicy, bool) {
	switch name {
	case "", "never":
		return PromoteNever, true
	case "longer":
		return PromoteLonger, true
	}
	return PromoteNever, false
}
