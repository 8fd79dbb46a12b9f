package looper

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go-looper/debug"
)

// Config sizes a Looper. Zero fields take the DefaultConfig values.
type Config struct {
	SampleRate     int
	BlockSize      int
	MaxLoopSeconds float64
	QueueSize      int
	NoticeSize     int
	CaptureSeconds float64
	Resume         ResumePolicy
	Promote        PromotePolicy
	Stretcher      Stretcher
	// RecordingsDir is searched for file-backed loops given by relative name.
	RecordingsDir string
}

// maxSamples bounds the total slot allocation (128 slots plus backfill).
const maxSamples = 1 << 30

// DefaultConfig returns settings for a 48 kHz session with 8 second loops.
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		BlockSize:      1024,
		MaxLoopSeconds: 8,
		QueueSize:      1024,
		NoticeSize:     1024,
		CaptureSeconds: 2,
		Resume:         ResumeReset,
		Promote:        PromoteNever,
		RecordingsDir:  "recordings",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BlockSize == 0 {
		c.BlockSize = d.BlockSize
	}
	if c.MaxLoopSeconds == 0 {
		c.MaxLoopSeconds = d.MaxLoopSeconds
	}
	if c.QueueSize == 0 {
		c.QueueSize = d.QueueSize
	}
	if c.NoticeSize == 0 {
		c.NoticeSize = d.NoticeSize
	}
	if c.CaptureSeconds == 0 {
		c.CaptureSeconds = d.CaptureSeconds
	}
	return c
}

// capacity returns frames per slot.
func (c Config) capacity() (int, error) {
	if c.SampleRate <= 0 || c.BlockSize <= 0 || c.MaxLoopSeconds <= 0 ||
		c.QueueSize <= 0 || c.NoticeSize <= 0 || c.CaptureSeconds <= 0 {
		return 0, errors.Wrap(ErrInitializationFailed, "non-positive size in config")
	}
	frames := c.MaxLoopSeconds * float64(c.SampleRate)
	if frames < 1 || frames*float64(NumNotes+1) > maxSamples {
		return 0, errors.Wrapf(ErrInitializationFailed, "loop capacity of %.0f frames per slot", frames)
	}
	return int(frames), nil
}

// Params is the control-plane copy of the global settings. Setters update
// it immediately and forward the change to the audio thread.
type Params struct {
	System              SystemState
	Mode                PlaybackMode
	Volume              float64
	Speed               float64
	Pitch               float64
	Rubberband          bool
	SyncEnabled         bool
	SyncCutoff          float64
	SyncRecordingCutoff float64
	RecordingEnabled    bool
	RecordingFile       string
}

// DefaultParams returns the reset state of the global settings.
func DefaultParams() Params {
	return Params{
		System:              SystemIdle,
		Mode:                ModeTrigger,
		Volume:              1.0,
		Speed:               1.0,
		Pitch:               0,
		SyncCutoff:          defaultCutoff,
		SyncRecordingCutoff: defaultCutoff,
	}
}

// Looper is the control-side handle of one looper instance. Its methods
// may be called from any goroutine; Process must be called from exactly
// one audio goroutine.
type Looper struct {
	cfg      Config
	capacity int
	engine   *Engine
	bridge   *Bridge
	status   *Status

	mu       sync.Mutex
	params   Params
	files    [NumNotes]string
	claim    int
	claimSeq uint64
	capture  *captureWriter
	session  string
	closed   bool

	pollMu  sync.Mutex
	updates chan struct{}
}

// New allocates every buffer the audio thread will need.
func New(cfg Config) (*Looper, error) {
	cfg = cfg.withDefaults()
	capacity, err := cfg.capacity()
	if err != nil {
		return nil, err
	}
	status := newStatus()
	bridge := NewBridge(cfg.QueueSize)
	l := &Looper{
		cfg:      cfg,
		capacity: capacity,
		bridge:   bridge,
		status:   status,
		engine:   newEngine(cfg, bridge, status, capacity),
		params:   DefaultParams(),
		claim:    NoNote,
		updates:  make(chan struct{}, 1),
	}
	debug.Log("looper", "initialized: %d Hz, block %d, %d frames per slot", cfg.SampleRate, cfg.BlockSize, capacity)
	return l, nil
}

// Close stops output capture and rejects further requests. The audio
// backend must be stopped before Close.
func (l *Looper) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	cw := l.capture
	l.capture = nil
	l.mu.Unlock()

	if cw != nil {
		return cw.close()
	}
	return nil
}

// Process is the audio callback. It never blocks or allocates.
func (l *Looper) Process(in, out []float32) {
	if l == nil {
		clear(out)
		return
	}
	l.engine.Process(in, out)
}

// Config returns the effective configuration.
func (l *Looper) Config() Config {
	if l == nil {
		return Config{}
	}
	return l.cfg
}

// SampleRate returns the configured sample rate.
func (l *Looper) SampleRate() int { return l.Config().SampleRate }

// Capacity returns the maximum loop length in frames.
func (l *Looper) Capacity() int {
	if l == nil {
		return 0
	}
	return l.capacity
}

// send enqueues an intent; l.mu must be held.
func (l *Looper) send(in Intent) (uint64, error) {
	if l.closed {
		return 0, ErrClosed
	}
	seq, err := l.bridge.Send(in)
	if err != nil {
		debug.Log("looper", "queue saturated, dropped %s note=%d", in.Kind, in.Note)
	}
	return seq, err
}

func (l *Looper) sendLocked(in Intent) error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.send(in)
	return err
}

func (l *Looper) signal() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}

// Updates delivers a coalesced signal whenever state visible to the UI
// may have changed.
func (l *Looper) Updates() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.updates
}

// DroppedIntents returns how many requests were lost to a full queue.
func (l *Looper) DroppedIntents() uint64 {
	if l == nil {
		return 0
	}
	return l.bridge.Dropped()
}

// Start puts the system into PLAYING.
func (l *Looper) Start() error { return l.setSystem(SystemPlaying) }

// Stop silences output and freezes loop positions. Recording continues.
func (l *Looper) Stop() error { return l.setSystem(SystemStopped) }

func (l *Looper) setSystem(s SystemState) error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: IntentSystemState, Note: NoNote, Value: float64(s)}); err != nil {
		return err
	}
	l.params.System = s
	l.signal()
	return nil
}

// SystemState returns IDLE for an uninitialized looper.
func (l *Looper) SystemState() SystemState {
	if l == nil {
		return SystemIdle
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params.System
}

// Params returns a copy of the global settings.
func (l *Looper) Params() Params {
	if l == nil {
		return Params{Speed: 1}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

// SetVolume sets the master gain; negative values clamp to 0.
func (l *Looper) SetVolume(v float64) error {
	if v < 0 {
		v = 0
	}
	return l.setParam(IntentGlobalVolume, v, func(p *Params) { p.Volume = v })
}

// Volume returns 0 for an uninitialized looper.
func (l *Looper) Volume() float64 {
	if l == nil {
		return 0
	}
	return l.Params().Volume
}

const (
	MinSpeed = 0.25
	MaxSpeed = 4.0
	MaxPitch = 12.0
)

// SetPlaybackSpeed sets the speed multiplier, clamped to 0.25-4.
func (l *Looper) SetPlaybackSpeed(v float64) error {
	v = math.Max(MinSpeed, math.Min(MaxSpeed, v))
	return l.setParam(IntentSpeed, v, func(p *Params) { p.Speed = v })
}

// PlaybackSpeed returns 1.0 for an uninitialized looper.
func (l *Looper) PlaybackSpeed() float64 {
	if l == nil {
		return 1.0
	}
	return l.Params().Speed
}

// SetPitchShift sets the pitch offset in semitones, clamped to +/-12.
func (l *Looper) SetPitchShift(semitones float64) error {
	semitones = math.Max(-MaxPitch, math.Min(MaxPitch, semitones))
	return l.setParam(IntentPitch, semitones, func(p *Params) { p.Pitch = semitones })
}

func (l *Looper) PitchShift() float64 {
	if l == nil {
		return 0
	}
	return l.Params().Pitch
}

func (l *Looper) SetRubberbandEnabled(on bool) error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: IntentRubberband, Note: NoNote, Flag: on}); err != nil {
		return err
	}
	l.params.Rubberband = on
	l.signal()
	return nil
}

func (l *Looper) RubberbandEnabled() bool {
	if l == nil {
		return false
	}
	return l.Params().Rubberband
}

// SetRecordPlayerMode links speed and pitch like a turntable: factor 2
// plays twice as fast and an octave up.
func (l *Looper) SetRecordPlayerMode(factor float64) error {
	factor = math.Max(MinSpeed, math.Min(MaxSpeed, factor))
	if err := l.SetRubberbandEnabled(false); err != nil {
		return err
	}
	if err := l.SetPlaybackSpeed(factor); err != nil {
		return err
	}
	return l.SetPitchShift(12 * math.Log2(factor))
}

func (l *Looper) setParam(kind IntentKind, v float64, update func(*Params)) error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: kind, Note: NoNote, Value: v}); err != nil {
		return err
	}
	update(&l.params)
	l.signal()
	return nil
}

// SetPlaybackMode selects how note events are interpreted.
func (l *Looper) SetPlaybackMode(m PlaybackMode) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.params.Mode = m
	l.mu.Unlock()
	l.signal()
}

// TogglePlaybackMode flips between NORMAL and TRIGGER.
func (l *Looper) TogglePlaybackMode() PlaybackMode {
	if l == nil {
		return ModeTrigger
	}
	l.mu.Lock()
	if l.params.Mode == ModeTrigger {
		l.params.Mode = ModeNormal
	} else {
		l.params.Mode = ModeTrigger
	}
	m := l.params.Mode
	l.mu.Unlock()
	l.signal()
	return m
}

func (l *Looper) PlaybackMode() PlaybackMode {
	if l == nil {
		return ModeTrigger
	}
	return l.Params().Mode
}

// checkRecording fails when a different note is recording or has a record
// start in flight. l.mu must be held.
func (l *Looper) checkRecording(note int) error {
	if r := int(l.status.recording.Load()); r != NoNote && r != note {
		return ErrAlreadyRecording
	}
	if l.claim != NoNote && l.claim != note && l.status.consumed.Load() < l.claimSeq {
		return ErrAlreadyRecording
	}
	return nil
}

func (l *Looper) claimRecording(note int, seq uint64) {
	l.claim = note
	l.claimSeq = seq
}

func (l *Looper) releaseClaim(note int) {
	if l.claim == note {
		l.claim = NoNote
	}
}

// RequestRecordStart arms note for recording.
func (l *Looper) RequestRecordStart(note int) error {
	if l == nil {
		return ErrClosed
	}
	if !validNote(note) {
		return ErrInvalidNote
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkRecording(note); err != nil {
		return err
	}
	seq, err := l.send(Intent{Kind: IntentRecordStart, Note: int16(note)})
	if err != nil {
		return err
	}
	l.claimRecording(note, seq)
	l.files[note] = ""
	return nil
}

// RequestRecordStop finishes the take on note. It is a no-op unless the
// note is recording when the request is applied.
func (l *Looper) RequestRecordStop(note int) error {
	return l.noteRequest(note, IntentRecordStop)
}

// RequestPlaybackStart plays a ready loop. It is a no-op for a loop that
// holds no recording.
func (l *Looper) RequestPlaybackStart(note int) error {
	return l.noteRequest(note, IntentPlaybackStart)
}

// RequestPlaybackStop stops a playing loop; stopping a non-playing loop
// does nothing.
func (l *Looper) RequestPlaybackStop(note int) error {
	return l.noteRequest(note, IntentPlaybackStop)
}

// ClearLoop empties the slot.
func (l *Looper) ClearLoop(note int) error {
	return l.noteRequest(note, IntentClearLoop)
}

func (l *Looper) noteRequest(note int, kind IntentKind) error {
	if l == nil {
		return ErrClosed
	}
	if !validNote(note) {
		return ErrInvalidNote
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: kind, Note: int16(note)}); err != nil {
		return err
	}
	switch kind {
	case IntentRecordStop, IntentRelease:
		l.releaseClaim(note)
	case IntentClearLoop:
		l.releaseClaim(note)
		l.files[note] = ""
	}
	return nil
}

// noteEvent sends a state-resolved intent (toggle/trigger), claiming the
// recorder when the slot would start recording.
func (l *Looper) noteEvent(note int, kind IntentKind) error {
	if l == nil {
		return ErrClosed
	}
	if !validNote(note) {
		return ErrInvalidNote
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	info := l.status.loop(note)
	mayRecord := !info.Ready && info.State != LoopRecording
	if mayRecord {
		if err := l.checkRecording(note); err != nil {
			return err
		}
	}
	seq, err := l.send(Intent{Kind: kind, Note: int16(note)})
	if err != nil {
		return err
	}
	if mayRecord {
		l.claimRecording(note, seq)
		l.files[note] = ""
	}
	return nil
}

// SetLoopVolume sets a slot's gain.
func (l *Looper) SetLoopVolume(note int, v float64) error {
	if !validNote(note) {
		return ErrInvalidNote
	}
	if v < 0 {
		v = 0
	}
	return l.sendLocked(Intent{Kind: IntentLoopVolume, Note: int16(note), Value: v})
}

// StopAllPlayback stops every playing loop.
func (l *Looper) StopAllPlayback() error {
	return l.sendLocked(Intent{Kind: IntentStopAllPlayback, Note: NoNote})
}

// StopAllRecordings finishes whichever take is in progress.
func (l *Looper) StopAllRecordings() error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: IntentStopAllRecordings, Note: NoNote}); err != nil {
		return err
	}
	l.claim = NoNote
	return nil
}

// LoopByNote returns the slot for note; ok is false outside 0-127.
func (l *Looper) LoopByNote(note int) (LoopInfo, bool) {
	if l == nil || !validNote(note) {
		return LoopInfo{}, false
	}
	info := l.status.loop(note)
	l.mu.Lock()
	info.Filename = l.files[note]
	l.mu.Unlock()
	return info, true
}

// ReadyLoops returns every slot that holds a finished loop, by note.
func (l *Looper) ReadyLoops() []LoopInfo {
	if l == nil {
		return nil
	}
	var out []LoopInfo
	for note := 0; note < NumNotes; note++ {
		if info, _ := l.LoopByNote(note); info.Ready {
			out = append(out, info)
		}
	}
	return out
}

// ActiveLoopCount returns the number of ready loops.
func (l *Looper) ActiveLoopCount() int {
	if l == nil {
		return 0
	}
	return int(l.status.active.Load())
}

// CurrentlyRecordingNote returns the recording note or NoNote.
func (l *Looper) CurrentlyRecordingNote() int {
	if l == nil {
		return NoNote
	}
	return int(l.status.recording.Load())
}

// CurrentFrame returns the sample clock as of the last processed block.
func (l *Looper) CurrentFrame() uint64 {
	if l == nil {
		return 0
	}
	return l.status.frame.Load()
}

func (l *Looper) EnableSync() error { return l.setSync(true) }
func (l *Looper) DisableSync() error { return l.setSync(false) }

// ToggleSync flips sync mode and returns the new setting.
func (l *Looper) ToggleSync() (bool, error) {
	on := !l.SyncEnabled()
	return on, l.setSync(on)
}

func (l *Looper) setSync(on bool) error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.send(Intent{Kind: IntentSyncEnabled, Note: NoNote, Flag: on}); err != nil {
		return err
	}
	l.params.SyncEnabled = on
	l.signal()
	return nil
}

func (l *Looper) SyncEnabled() bool {
	if l == nil {
		return false
	}
	return l.Params().SyncEnabled
}

// SetSyncCutoff sets the pulse fraction after which playback starts wait
// for the next boundary.
func (l *Looper) SetSyncCutoff(v float64) error {
	v = clamp01(v)
	return l.setParam(IntentSyncCutoff, v, func(p *Params) { p.SyncCutoff = v })
}

// SetSyncRecordingCutoff is SetSyncCutoff for record starts and stops.
func (l *Looper) SetSyncRecordingCutoff(v float64) error {
	v = clamp01(v)
	return l.setParam(IntentSyncRecordingCutoff, v, func(p *Params) { p.SyncRecordingCutoff = v })
}

// SetPulseLoop designates a ready loop as the pulse; NoNote clears it.
func (l *Looper) SetPulseLoop(note int) error {
	if note != NoNote && !validNote(note) {
		return ErrInvalidNote
	}
	return l.sendLocked(Intent{Kind: IntentPulseLoop, Note: int16(note)})
}

// SyncInfo reports the grid as last published by the audio thread, with
// the control-plane cutoffs.
func (l *Looper) SyncInfo() SyncInfo {
	if l == nil {
		return SyncInfo{PulseNote: NoNote}
	}
	p := l.Params()
	st := l.status
	info := SyncInfo{
		Enabled:         p.SyncEnabled,
		PulseNote:       int(st.pulseNote.Load()),
		PulseFrames:     st.pulseLen.Load(),
		PulseStartFrame: st.pulseStart.Load(),
		CurrentFrame:    st.frame.Load(),
		LongestLoop:     int(st.longest.Load()),
		Cutoff:          p.SyncCutoff,
		RecordingCutoff: p.SyncRecordingCutoff,
		WaitingForPulse: st.waiting.Load(),
		DeferredCount:   int(st.deferred.Load()),
	}
	if info.PulseFrames > 0 && info.CurrentFrame >= info.PulseStartFrame {
		info.Progress = float64((info.CurrentFrame-info.PulseStartFrame)%info.PulseFrames) / float64(info.PulseFrames)
	}
	return info
}

// PollNotices drains the audio thread's notices, logging each and passing
// it to fn when fn is non-nil. It returns the number handled.
func (l *Looper) PollNotices(fn func(Notice)) int {
	if l == nil {
		return 0
	}
	l.pollMu.Lock()
	defer l.pollMu.Unlock()
	n := 0
	for {
		nt, ok := l.engine.notices.Pop()
		if !ok {
			break
		}
		n++
		debug.Log("audio", "%s", nt)
		if fn != nil {
			fn(nt)
		}
	}
	if drops := l.status.noticeDrops.Load(); drops > 0 {
		debug.LogEvery(100, "audio", "notice ring overflowed, %d dropped", drops)
	}
	if n > 0 {
		l.signal()
	}
	return n
}

// Run polls notices until ctx is cancelled.
func (l *Looper) Run(ctx context.Context, fn func(Notice)) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.PollNotices(fn)
			return
		case <-ticker.C:
			l.PollNotices(fn)
		}
	}
}

// waitApplied blocks until the audio thread has drained intent seq or the
// timeout passes. It reports whether the intent was seen.
func (l *Looper) waitApplied(seq uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for l.status.consumed.Load() < seq {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
