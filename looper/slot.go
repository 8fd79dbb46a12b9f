package looper

// Slot is one loop, addressed by its MIDI note. All fields are owned by
// the audio thread; the control side reads them through Status.
type Slot struct {
	note       int
	buf        []float32
	recorded   int
	position   int
	frac       float64 // sub-sample read offset when varispeed is active
	volume     float64
	state      LoopState
	ready      bool
	sampleRate int
}

func (s *Slot) Note() int { return s.note }
func (s *Slot) State() LoopState { return s.state }
func (s *Slot) Ready() bool { return s.ready }
func (s *Slot) Recorded() int { return s.recorded }
func (s *Slot) Position() int { return s.position }
func (s *Slot) Volume() float64 { return s.volume }
func (s *Slot) Capacity() int { return len(s.buf) }
func (s *Slot) Samples() []float32 { return s.buf[:s.recorded] }

func (s *Slot) beginRecording(sampleRate int) {
	s.recorded = 0
	s.position, s.frac = 0, 0
	s.ready = false
	s.state = LoopRecording
	s.sampleRate = sampleRate
}

// record appends src, returning false once the buffer is full.
func (s *Slot) record(src []float32) bool {
	n := copy(s.buf[s.recorded:], src)
	s.recorded += n
	return n == len(src) && s.recorded < len(s.buf)
}

func (s *Slot) recordSilence(n int) bool {
	end := s.recorded + n
	if end > len(s.buf) {
		end = len(s.buf)
	}
	clear(s.buf[s.recorded:end])
	s.recorded = end
	return s.recorded < len(s.buf)
}

// finishRecording closes the take. A take with no frames leaves the slot
// empty rather than ready.
func (s *Slot) finishRecording() {
	s.state = LoopIdle
	s.position, s.frac = 0, 0
	s.ready = s.recorded > 0
}

// setLength trims or zero-extends the take to frames (capped at capacity).
func (s *Slot) setLength(frames int) {
	if frames > len(s.buf) {
		frames = len(s.buf)
	}
	if frames > s.recorded {
		clear(s.buf[s.recorded:frames])
	}
	s.recorded = frames
	if s.position >= s.recorded {
		s.position, s.frac = 0, 0
	}
}

func (s *Slot) play(position int) {
	s.frac = 0
	if s.recorded > 0 {
		s.position = position % s.recorded
	} else {
		s.position = 0
	}
	s.state = LoopPlaying
}

func (s *Slot) stop(policy ResumePolicy) {
	s.state = LoopStopped
	if policy == ResumeReset {
		s.position, s.frac = 0, 0
	}
}

func (s *Slot) clear() {
	s.state = LoopIdle
	s.ready = false
	s.recorded = 0
	s.position, s.frac = 0, 0
}

// mix adds the loop into dst scaled by the slot volume, wrapping at the
// recorded length. rate is the read speed in samples per output frame;
// fractional positions are linearly interpolated, wrapping to the start.
func (s *Slot) mix(dst []float32, rate float64) {
	if s.recorded == 0 {
		return
	}
	vol := float32(s.volume)
	if rate == 1 && s.frac == 0 {
		pos := s.position
		for i := range dst {
			dst[i] += s.buf[pos] * vol
			pos++
			if pos >= s.recorded {
				pos = 0
			}
		}
		s.position = pos
		return
	}

	n := float64(s.recorded)
	pos := float64(s.position) + s.frac
	for i := range dst {
		i0 := int(pos)
		i1 := i0 + 1
		if i1 >= s.recorded {
			i1 = 0
		}
		t := float32(pos - float64(i0))
		a := s.buf[i0]
		dst[i] += (a + (s.buf[i1]-a)*t) * vol
		pos += rate
		for pos >= n {
			pos -= n
		}
	}
	s.position = int(pos)
	s.frac = pos - float64(s.position)
}

// load copies samples into the buffer, truncating at capacity.
func (s *Slot) load(a *LoopAudio) {
	s.recorded = copy(s.buf, a.Samples)
	s.position, s.frac = 0, 0
	s.sampleRate = a.SampleRate
	s.ready = s.recorded > 0
	if s.state == LoopRecording || s.state == LoopPlaying {
		s.state = LoopStopped
	}
}
