package looper

// apply executes one drained intent at frame. Audio thread only.
func (e *Engine) apply(in *Intent, frame uint64) {
	note := int(in.Note)
	if in.Kind.transition() {
		if !validNote(note) {
			return
		}
		e.sync.cancel(note)
		e.transition(note, in.Kind, in.Meta, frame, true)
		return
	}

	switch in.Kind {
	case IntentLoopVolume:
		if validNote(note) && in.Value >= 0 {
			e.pool.slots[note].volume = in.Value
		}
	case IntentLoadAudio:
		if validNote(note) && in.Audio != nil {
			e.sync.cancel(note)
			if note == e.sync.pulseNote {
				e.dropPulse(frame)
			}
			e.pool.loadSlot(note, in.Audio)
			e.sync.longest = e.pool.longest()
		}
	case IntentStopAllPlayback:
		for i := range e.pool.slots {
			e.sync.cancel(i)
			e.playbackStop(i)
		}
	case IntentStopAllRecordings:
		if r := e.pool.recording; r != NoNote {
			e.sync.cancel(r)
			e.finishRecording(frame)
		}
	case IntentResetAll:
		e.pool.reset()
		e.sync.reset()
		e.resetGlobals()
	case IntentSystemState:
		e.system = SystemState(int(in.Value))
	case IntentGlobalVolume:
		e.volume = in.Value
	case IntentSpeed:
		e.speed = in.Value
	case IntentPitch:
		e.pitch = in.Value
	case IntentRubberband:
		e.rubberband = in.Flag
	case IntentSyncEnabled:
		e.sync.enabled = in.Flag
		if !in.Flag {
			e.flushDeferred(frame)
		}
	case IntentSyncCutoff:
		e.sync.cutoff = clamp01(in.Value)
	case IntentSyncRecordingCutoff:
		e.sync.recCutoff = clamp01(in.Value)
	case IntentPulseLoop:
		e.designatePulse(note, frame)
	case IntentCapture:
		e.captureOn = in.Flag
	}
}

// transition resolves k against the slot's live state and applies it.
// When gated is false the sync engine has already picked the frame.
func (e *Engine) transition(note int, k IntentKind, meta *LoopMeta, frame uint64, gated bool) {
	switch e.resolve(note, k) {
	case IntentRecordStart:
		e.recordStart(note, frame, gated)
	case IntentRecordStop:
		e.recordStop(note, frame, gated)
	case IntentPlaybackStart:
		e.playbackStart(note, frame, gated)
	case IntentPlaybackStop:
		e.playbackStop(note)
	case IntentClearLoop:
		e.clearLoop(note, frame)
	case IntentRestoreLoop:
		if meta != nil {
			e.restore(note, meta, frame)
		}
	}
}

// resolve maps the note-driven kinds onto a concrete transition.
func (e *Engine) resolve(note int, k IntentKind) IntentKind {
	s := &e.pool.slots[note]
	switch k {
	case IntentToggle:
		switch {
		case s.state == LoopRecording:
			return IntentRecordStop
		case s.ready && s.state == LoopPlaying:
			return IntentPlaybackStop
		case s.ready:
			return IntentPlaybackStart
		}
		return IntentRecordStart
	case IntentTrigger:
		switch {
		case s.state == LoopRecording:
			return intentNone
		case s.ready:
			return IntentPlaybackStart
		}
		return IntentRecordStart
	case IntentRelease:
		switch s.state {
		case LoopRecording:
			return IntentRecordStop
		case LoopPlaying:
			return IntentPlaybackStop
		}
		return intentNone
	}
	return k
}

func (e *Engine) hold(note int, k IntentKind, frame uint64) {
	e.sync.hold(note, k)
	e.notify(Notice{Kind: NoticeDeferred, Note: int16(note), Intent: k, Frame: frame})
}

func (e *Engine) recordStart(note int, frame uint64, gated bool) {
	s := &e.pool.slots[note]
	if s.state == LoopRecording {
		return
	}
	if r := e.pool.recording; r != NoNote && r != note {
		e.notify(Notice{Kind: NoticeRejected, Note: int16(note), Intent: IntentRecordStart, Frame: frame})
		return
	}
	if note == e.sync.pulseNote {
		e.dropPulse(frame)
	}

	var lead int
	if e.sync.gating() {
		if gated && e.sync.progress(frame) >= e.sync.recCutoff {
			e.hold(note, IntentRecordStart, frame)
			return
		}
		lead = int(e.sync.phase(frame))
	}

	e.pool.startRecording(note, e.sampleRate)
	if lead > 0 {
		e.backfillInto(s, lead)
	}
	e.notify(Notice{Kind: NoticeRecordStarted, Note: int16(note), Frame: frame, Frames: lead})
}

// backfillInto seeds a late-started take with the input heard since the
// last boundary so the take lines up with the grid.
func (e *Engine) backfillInto(s *Slot, lead int) {
	if lead > len(s.buf) {
		lead = len(s.buf)
	}
	bf := &e.sync.backfill
	have := bf.avail
	if have > lead {
		have = lead
	}
	if gap := lead - have; gap > 0 {
		s.recordSilence(gap)
	}
	bf.tail(s.buf[s.recorded : s.recorded+have])
	s.recorded += have
}

func (e *Engine) recordStop(note int, frame uint64, gated bool) {
	if e.pool.recording != note {
		return
	}
	if gated && e.sync.gating() {
		s := &e.pool.slots[note]
		p := int(e.sync.pulseLen)
		whole, rem := s.recorded/p, s.recorded%p
		if rem != 0 {
			if whole >= 1 && float64(rem)/float64(p) < e.sync.recCutoff {
				s.setLength(whole * p)
			} else {
				e.hold(note, IntentRecordStop, frame)
				return
			}
		}
	}
	e.finishRecording(frame)
}

// finishRecording closes the current take at frame, establishing or
// promoting the pulse loop and snapping the length to the grid.
func (e *Engine) finishRecording(frame uint64) {
	s := e.pool.stopRecording()
	if s == nil {
		return
	}
	if s.ready {
		switch {
		case !e.sync.hasPulse():
			e.setPulse(s, frame)
		default:
			if e.sync.enabled {
				want := e.sync.quantize(s.recorded)
				if want > s.Capacity() {
					want = e.sync.quantize(s.Capacity()) - int(e.sync.pulseLen)
				}
				if want > 0 {
					s.setLength(want)
				}
			}
			if e.promote == PromoteLonger && uint64(s.recorded) > e.sync.pulseLen {
				e.setPulse(s, frame)
			}
		}
	}
	e.sync.longest = e.pool.longest()
	e.notify(Notice{Kind: NoticeRecordStopped, Note: int16(s.note), Frame: frame, Frames: s.recorded})
}

func (e *Engine) setPulse(s *Slot, start uint64) {
	e.sync.setPulse(s.note, s.recorded, start)
	e.notify(Notice{Kind: NoticePulseSet, Note: int16(s.note), Frame: start, Frames: s.recorded})
}

func (e *Engine) dropPulse(frame uint64) {
	if !e.sync.hasPulse() {
		return
	}
	e.sync.clearPulse()
	e.notify(Notice{Kind: NoticePulseCleared, Note: NoNote, Frame: frame})
	e.flushDeferred(frame)
}

// designatePulse makes a ready loop the pulse, anchoring the grid so that
// the loop's current position is in phase with it.
func (e *Engine) designatePulse(note int, frame uint64) {
	if !validNote(note) {
		e.dropPulse(frame)
		return
	}
	s := &e.pool.slots[note]
	if !s.ready {
		e.notify(Notice{Kind: NoticeRejected, Note: int16(note), Intent: IntentPulseLoop, Frame: frame})
		return
	}
	start := frame
	if s.state == LoopPlaying && uint64(s.position) <= frame {
		start = frame - uint64(s.position)
	}
	e.setPulse(s, start)
}

func (e *Engine) playbackStart(note int, frame uint64, gated bool) {
	s := &e.pool.slots[note]
	if !s.ready || s.state == LoopRecording || s.state == LoopPlaying {
		return
	}
	pos := 0
	if s.state == LoopStopped && e.resume == ResumeRetain {
		pos = s.position
	}
	if e.sync.gating() {
		if gated && e.sync.progress(frame) >= e.sync.cutoff {
			e.hold(note, IntentPlaybackStart, frame)
			return
		}
		pos = e.sync.alignedPosition(frame, s.recorded)
	}
	s.play(pos)
	e.notify(Notice{Kind: NoticePlaybackStarted, Note: int16(note), Frame: frame, Frames: s.position})
}

func (e *Engine) playbackStop(note int) {
	s := &e.pool.slots[note]
	if s.state != LoopPlaying {
		return
	}
	s.stop(e.resume)
	e.notify(Notice{Kind: NoticePlaybackStopped, Note: int16(note), Frame: e.frame})
}

func (e *Engine) clearLoop(note int, frame uint64) {
	if note == e.sync.pulseNote {
		e.dropPulse(frame)
	}
	e.pool.clearSlot(note)
	e.sync.longest = e.pool.longest()
	e.notify(Notice{Kind: NoticeLoopCleared, Note: int16(note), Frame: frame})
}

// restore applies snapshot metadata to a slot. Sample data already in the
// buffer is kept.
func (e *Engine) restore(note int, m *LoopMeta, frame uint64) {
	s := &e.pool.slots[note]
	if e.pool.recording == note {
		e.pool.recording = NoNote
	}
	frames := m.RecordedFrames
	if frames > len(s.buf) {
		frames = len(s.buf)
	}
	if frames < 0 {
		frames = 0
	}
	s.recorded = frames
	if m.Volume >= 0 {
		s.volume = m.Volume
	}
	if m.SampleRate > 0 {
		s.sampleRate = m.SampleRate
	}
	e.pool.setReady(s, m.Ready && frames > 0)
	s.position, s.frac = 0, 0
	if m.Position > 0 && m.Position < frames {
		s.position = m.Position
	}
	switch {
	case !s.ready:
		s.state = LoopIdle
	case m.State == LoopPlaying:
		s.state = LoopPlaying
	case m.State == LoopStopped:
		s.state = LoopStopped
	default:
		s.state = LoopIdle
	}
	e.sync.longest = e.pool.longest()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
