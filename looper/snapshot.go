package looper

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-looper/debug"
	"go-looper/wavio"
)

// SnapshotVersion is the only document version LoadState accepts.
const SnapshotVersion = "1.0"

// Snapshot is the on-disk form of the looper's settings and loop metadata.
// Sample data is never included; file-backed loops are referenced by name.
type Snapshot struct {
	Version     string         `json:"version"`
	SessionID   string         `json:"session_id,omitempty"`
	SavedAt     string         `json:"saved_at"`
	GlobalState GlobalState    `json:"global_state"`
	MemoryLoops []LoopSnapshot `json:"memory_loops"`
}

type GlobalState struct {
	Version                       string       `json:"version"`
	Volume                        float64      `json:"volume"`
	PlaybackSpeed                 float64      `json:"playback_speed"`
	PitchShift                    float64      `json:"pitch_shift"`
	RubberbandEnabled             bool         `json:"rubberband_enabled"`
	CurrentState                  SystemState  `json:"current_state"`
	PlaybackMode                  PlaybackMode `json:"playback_mode"`
	SyncModeEnabled               bool         `json:"sync_mode_enabled"`
	PulseLoopNote                 int          `json:"pulse_loop_note"`
	PulseLoopDuration             uint64       `json:"pulse_loop_duration"`
	SyncCutoffPercentage          float64      `json:"sync_cutoff_percentage"`
	SyncRecordingCutoffPercentage float64      `json:"sync_recording_cutoff_percentage"`
	ActiveLoopCount               int          `json:"active_loop_count"`
	CurrentlyRecordingNote        int          `json:"currently_recording_note"`
}

type LoopSnapshot struct {
	MidiNote         int       `json:"midi_note"`
	State            LoopState `json:"state"`
	Volume           float64   `json:"volume"`
	Filename         string    `json:"filename"`
	RecordedFrames   int       `json:"recorded_frames"`
	PlaybackPosition int       `json:"playback_position"`
	BufferSize       int       `json:"buffer_size"`
	SampleRate       int       `json:"sample_rate"`
	LoopReady        bool      `json:"loop_ready"`
}

// configured reports whether a slot differs from its idle default.
func (s LoopSnapshot) configured() bool {
	return s.LoopReady || s.State != LoopIdle || s.Filename != "" || s.Volume != 1
}

// Snapshot captures the current control-plane settings and the loop state
// last published by the audio thread.
func (l *Looper) Snapshot(activeOnly bool) Snapshot {
	if l == nil {
		return Snapshot{Version: SnapshotVersion}
	}
	l.mu.Lock()
	p := l.params
	files := l.files
	l.mu.Unlock()

	st := l.status
	snap := Snapshot{
		Version:   SnapshotVersion,
		SessionID: l.sessionID(),
		SavedAt:   time.Now().Format(time.RFC3339),
		GlobalState: GlobalState{
			Version:                       SnapshotVersion,
			Volume:                        p.Volume,
			PlaybackSpeed:                 p.Speed,
			PitchShift:                    p.Pitch,
			RubberbandEnabled:             p.Rubberband,
			CurrentState:                  p.System,
			PlaybackMode:                  p.Mode,
			SyncModeEnabled:               p.SyncEnabled,
			PulseLoopNote:                 int(st.pulseNote.Load()),
			PulseLoopDuration:             st.pulseLen.Load(),
			SyncCutoffPercentage:          p.SyncCutoff,
			SyncRecordingCutoffPercentage: p.SyncRecordingCutoff,
			ActiveLoopCount:               int(st.active.Load()),
			CurrentlyRecordingNote:        int(st.recording.Load()),
		},
		MemoryLoops: []LoopSnapshot{},
	}
	for note := 0; note < NumNotes; note++ {
		info := st.loop(note)
		ls := LoopSnapshot{
			MidiNote:         note,
			State:            info.State,
			Volume:           info.Volume,
			Filename:         files[note],
			RecordedFrames:   info.RecordedFrames,
			PlaybackPosition: info.Position,
			BufferSize:       l.capacity,
			SampleRate:       info.SampleRate,
			LoopReady:        info.Ready,
		}
		if activeOnly && !ls.LoopReady {
			continue
		}
		if !activeOnly && !ls.configured() {
			continue
		}
		snap.MemoryLoops = append(snap.MemoryLoops, ls)
	}
	return snap
}

// SaveState writes the global settings and every configured loop to path.
func (l *Looper) SaveState(path string) error {
	return l.save(path, false)
}

// SaveActiveLoopsOnly writes only loops that hold a finished recording.
func (l *Looper) SaveActiveLoopsOnly(path string) error {
	return l.save(path, true)
}

func (l *Looper) save(path string, activeOnly bool) error {
	if l == nil {
		return ErrClosed
	}
	snap := l.Snapshot(activeOnly)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrWriteFailed, "encode: %v", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	debug.Log("snapshot", "saved %d loops to %s", len(snap.MemoryLoops), path)
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place, so readers never see a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(ErrWriteFailed, "%s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(ErrWriteFailed, "%s: %v", path, err)
	}
	name := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(name)
		return errors.Wrapf(ErrWriteFailed, "%s: %v", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrapf(ErrWriteFailed, "%s: %v", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrapf(ErrWriteFailed, "%s: %v", path, err)
	}
	return nil
}

// ReadSnapshot reads and validates the document at path without applying it.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, path)
		}
		return nil, errors.Wrapf(ErrParseFailed, "%s: %v", path, err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot checks the document shape and version, then decodes it.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(ErrParseFailed, "%v", err)
	}

	global := bytes.TrimSpace(raw["global_state"])
	if len(global) == 0 || global[0] != '{' {
		return nil, errors.Wrap(ErrInvalidData, "global_state must be an object")
	}
	loops := bytes.TrimSpace(raw["memory_loops"])
	if len(loops) == 0 || loops[0] != '[' {
		return nil, errors.Wrap(ErrInvalidData, "memory_loops must be an array")
	}

	version := ""
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return nil, errors.Wrapf(ErrInvalidVersion, "version must be a string: %s", v)
		}
	}
	if version == "" {
		var g struct {
			Version string `json:"version"`
		}
		if err := json.Unmarshal(global, &g); err != nil {
			return nil, errors.Wrapf(ErrInvalidVersion, "global_state version: %v", err)
		}
		version = g.Version
	}
	if version != SnapshotVersion {
		return nil, errors.Wrapf(ErrInvalidVersion, "got %q, want %q", version, SnapshotVersion)
	}

	// absent fields keep their reset values
	d := DefaultParams()
	snap := Snapshot{GlobalState: GlobalState{
		Volume:                        d.Volume,
		PlaybackSpeed:                 d.Speed,
		PlaybackMode:                  d.Mode,
		PulseLoopNote:                 NoNote,
		SyncCutoffPercentage:          d.SyncCutoff,
		SyncRecordingCutoffPercentage: d.SyncRecordingCutoff,
		CurrentlyRecordingNote:        NoNote,
	}}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "%v", err)
	}
	g := snap.GlobalState
	if g.Volume < 0 || g.SyncCutoffPercentage < 0 || g.SyncCutoffPercentage > 1 ||
		g.SyncRecordingCutoffPercentage < 0 || g.SyncRecordingCutoffPercentage > 1 {
		return nil, errors.Wrap(ErrInvalidData, "global value out of range")
	}
	for _, ls := range snap.MemoryLoops {
		if !validNote(ls.MidiNote) {
			return nil, errors.Wrapf(ErrInvalidData, "midi_note %d out of range", ls.MidiNote)
		}
		if ls.RecordedFrames < 0 || ls.Volume < 0 {
			return nil, errors.Wrapf(ErrInvalidData, "loop %d has negative values", ls.MidiNote)
		}
	}
	return &snap, nil
}

// ValidateConfigFile runs every LoadState check without changing anything.
func ValidateConfigFile(path string) error {
	_, err := ReadSnapshot(path)
	return err
}

// LoadState replaces the live settings and loop metadata with the
// document at path. Nothing changes if the document fails validation.
func (l *Looper) LoadState(path string) error {
	if l == nil {
		return ErrClosed
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		debug.Log("snapshot", "load %s: %v", path, err)
		return err
	}
	return l.applySnapshot(snap)
}

func (l *Looper) applySnapshot(snap *Snapshot) error {
	// Decode file-backed loops before touching live state.
	audio := make(map[int]*LoopAudio)
	for _, ls := range snap.MemoryLoops {
		if ls.Filename == "" || !validNote(ls.MidiNote) {
			continue
		}
		path, err := l.resolveLoopFile(ls.Filename)
		if err != nil {
			debug.Log("snapshot", "note %d: %v", ls.MidiNote, err)
			continue
		}
		a, err := l.readLoopAudio(path)
		if err != nil {
			debug.Log("snapshot", "note %d: %v", ls.MidiNote, err)
			continue
		}
		audio[ls.MidiNote] = a
	}

	g := snap.GlobalState
	p := Params{
		System:              g.CurrentState,
		Mode:                g.PlaybackMode,
		Volume:              g.Volume,
		Speed:               math.Max(MinSpeed, math.Min(MaxSpeed, g.PlaybackSpeed)),
		Pitch:               math.Max(-MaxPitch, math.Min(MaxPitch, g.PitchShift)),
		Rubberband:          g.RubberbandEnabled,
		SyncEnabled:         g.SyncModeEnabled,
		SyncCutoff:          g.SyncCutoffPercentage,
		SyncRecordingCutoff: g.SyncRecordingCutoffPercentage,
	}

	intents := []Intent{
		{Kind: IntentResetAll, Note: NoNote},
		{Kind: IntentGlobalVolume, Note: NoNote, Value: p.Volume},
		{Kind: IntentSpeed, Note: NoNote, Value: p.Speed},
		{Kind: IntentPitch, Note: NoNote, Value: p.Pitch},
		{Kind: IntentRubberband, Note: NoNote, Flag: p.Rubberband},
		{Kind: IntentSyncCutoff, Note: NoNote, Value: p.SyncCutoff},
		{Kind: IntentSyncRecordingCutoff, Note: NoNote, Value: p.SyncRecordingCutoff},
	}
	var files [NumNotes]string
	for _, ls := range snap.MemoryLoops {
		if !validNote(ls.MidiNote) {
			continue
		}
		note := int16(ls.MidiNote)
		if a, ok := audio[ls.MidiNote]; ok {
			intents = append(intents, Intent{Kind: IntentLoadAudio, Note: note, Audio: a})
			files[ls.MidiNote] = ls.Filename
			if ls.RecordedFrames == 0 || ls.RecordedFrames > len(a.Samples) {
				ls.RecordedFrames = len(a.Samples)
			}
		}
		intents = append(intents, Intent{Kind: IntentRestoreLoop, Note: note, Meta: &LoopMeta{
			State:          ls.State,
			Ready:          ls.LoopReady,
			Volume:         ls.Volume,
			RecordedFrames: ls.RecordedFrames,
			Position:       ls.PlaybackPosition,
			SampleRate:     ls.SampleRate,
		}})
	}
	if validNote(g.PulseLoopNote) {
		intents = append(intents, Intent{Kind: IntentPulseLoop, Note: int16(g.PulseLoopNote)})
	}
	intents = append(intents,
		Intent{Kind: IntentSyncEnabled, Note: NoNote, Flag: p.SyncEnabled},
		Intent{Kind: IntentSystemState, Note: NoNote, Value: float64(p.System)},
	)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if free := l.bridge.ring.Cap() - l.bridge.Pending(); free < len(intents) {
		return errors.Wrapf(ErrQueueSaturated, "snapshot needs %d intents, %d free", len(intents), free)
	}
	for _, in := range intents {
		if _, err := l.send(in); err != nil {
			return err
		}
	}
	p.RecordingEnabled = l.params.RecordingEnabled
	p.RecordingFile = l.params.RecordingFile
	l.params = p
	l.files = files
	l.claim = NoNote
	if snap.SessionID != "" {
		l.session = snap.SessionID
	}
	l.signal()
	debug.Log("snapshot", "loaded %d loops", len(snap.MemoryLoops))
	return nil
}

func (l *Looper) readLoopAudio(path string) (*LoopAudio, error) {
	samples, rate, err := wavio.ReadMono(path)
	if err != nil {
		return nil, err
	}
	if len(samples) > l.capacity {
		debug.Log("files", "%s: truncating %d frames to %d", path, len(samples), l.capacity)
		samples = samples[:l.capacity]
	}
	return &LoopAudio{Samples: samples, SampleRate: rate}, nil
}

// ResetToDefaults returns every global setting and every slot to its
// initial state. Loop sample data stays in memory.
func (l *Looper) ResetToDefaults() error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: IntentResetAll, Note: NoNote}); err != nil {
		return err
	}
	p := DefaultParams()
	p.RecordingEnabled = l.params.RecordingEnabled
	p.RecordingFile = l.params.RecordingFile
	l.params = p
	l.files = [NumNotes]string{}
	l.claim = NoNote
	l.signal()
	return nil
}

// CreateBackup saves the full state to a timestamped file in dir and
// returns its path.
func (l *Looper) CreateBackup(dir string) (string, error) {
	name := "looper_backup_" + time.Now().Format("20060102_150405") + ".json"
	path := filepath.Join(dir, name)
	return path, l.SaveState(path)
}

// DefaultSessionName is used when a session is saved without a name.
const DefaultSessionName = "looper_session"

// SessionPath resolves a session name inside dir, appending ".json" when
// missing. Active-only saves get an "_active" suffix.
func SessionPath(dir, name string, activeOnly bool) string {
	if name == "" {
		name = DefaultSessionName
	}
	name = strings.TrimSuffix(name, ".json")
	if activeOnly && !strings.HasSuffix(name, "_active") {
		name += "_active"
	}
	return filepath.Join(dir, name+".json")
}

func (l *Looper) sessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == "" {
		l.session = uuid.NewString()
	}
	return l.session
}
