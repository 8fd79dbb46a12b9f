package looper

// IntentKind tags a state-change request crossing from the control side
// to the audio thread.
type IntentKind uint8

const (
	intentNone IntentKind = iota

	IntentRecordStart
	IntentRecordStop
	IntentPlaybackStart
	IntentPlaybackStop
	IntentClearLoop
	IntentRestoreLoop

	// Resolved against the slot's live state when applied.
	IntentToggle  // NORMAL-mode Note-On
	IntentTrigger // TRIGGER-mode Note-On
	IntentRelease // TRIGGER-mode Note-Off

	IntentLoopVolume
	IntentLoadAudio
	IntentStopAllPlayback
	IntentStopAllRecordings
	IntentResetAll
	IntentSystemState
	IntentGlobalVolume
	IntentSpeed
	IntentPitch
	IntentRubberband
	IntentSyncEnabled
	IntentSyncCutoff
	IntentSyncRecordingCutoff
	IntentPulseLoop
	IntentCapture
)

var intentNames = map[IntentKind]string{
	intentNone:                "none",
	IntentRecordStart:         "record-start",
	IntentRecordStop:          "record-stop",
	IntentPlaybackStart:       "playback-start",
	IntentPlaybackStop:        "playback-stop",
	IntentClearLoop:           "clear",
	IntentRestoreLoop:         "restore",
	IntentToggle:              "toggle",
	IntentTrigger:             "trigger",
	IntentRelease:             "release",
	IntentLoopVolume:          "loop-volume",
	IntentLoadAudio:           "load-audio",
	IntentStopAllPlayback:     "stop-all-playback",
	IntentStopAllRecordings:   "stop-all-recordings",
	IntentResetAll:            "reset",
	IntentSystemState:         "system-state",
	IntentGlobalVolume:        "volume",
	IntentSpeed:               "speed",
	IntentPitch:               "pitch",
	IntentRubberband:          "rubberband",
	IntentSyncEnabled:         "sync",
	IntentSyncCutoff:          "sync-cutoff",
	IntentSyncRecordingCutoff: "sync-recording-cutoff",
	IntentPulseLoop:           "pulse-loop",
	IntentCapture:             "capture",
}

func (k IntentKind) String() string {
	if s, ok := intentNames[k]; ok {
		return s
	}
	return "unknown"
}

// transition reports whether k changes a slot's lifecycle state. Only
// transitions take part in per-note coalescing and sync deferral.
func (k IntentKind) transition() bool {
	switch k {
	case IntentRecordStart, IntentRecordStop, IntentPlaybackStart, IntentPlaybackStop,
		IntentClearLoop, IntentRestoreLoop, IntentToggle, IntentTrigger, IntentRelease:
		return true
	}
	return false
}

// Intent is the fixed-size record carried by the command bridge.
type Intent struct {
	Kind  IntentKind
	Note  int16
	Flag  bool
	Value float64

	// Optional payloads, allocated on the control side.
	Audio *LoopAudio
	Meta  *LoopMeta
}

// LoopAudio is sample data destined for one slot's buffer.
type LoopAudio struct {
	Samples    []float32
	SampleRate int
}

// LoopMeta restores a slot's metadata without touching its sample data.
type LoopMeta struct {
	State          LoopState
	Ready          bool
	Volume         float64
	RecordedFrames int
	Position       int
	SampleRate     int
}
