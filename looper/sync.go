package looper

// Sync keeps the pulse grid that quantized transitions snap to and holds
// transitions waiting for the next pulse boundary. Audio thread only.
type Sync struct {
	enabled    bool
	pulseNote  int
	pulseLen   uint64
	pulseStart uint64
	longest    int
	cutoff     float64
	recCutoff  float64
	waiting    bool

	deferred  [NumNotes]IntentKind
	ndeferred int

	backfill backfill
}

const defaultCutoff = 0.5

func newSync(capacity int) *Sync {
	s := &Sync{backfill: backfill{buf: make([]float32, capacity)}}
	s.reset()
	return s
}

func (s *Sync) reset() {
	s.enabled = false
	s.pulseNote = NoNote
	s.pulseLen = 0
	s.pulseStart = 0
	s.longest = 0
	s.cutoff = defaultCutoff
	s.recCutoff = defaultCutoff
	s.waiting = false
	s.deferred = [NumNotes]IntentKind{}
	s.ndeferred = 0
	s.backfill.reset()
}

func (s *Sync) hasPulse() bool { return s.pulseNote != NoNote && s.pulseLen > 0 }

// gating reports whether transitions are currently quantized.
func (s *Sync) gating() bool { return s.enabled && s.hasPulse() }

func (s *Sync) setPulse(note, frames int, start uint64) {
	s.pulseNote = note
	s.pulseLen = uint64(frames)
	s.pulseStart = start
	s.waiting = true
	s.backfill.reset()
}

func (s *Sync) clearPulse() {
	s.pulseNote = NoNote
	s.pulseLen = 0
	s.pulseStart = 0
	s.waiting = false
}

// phase is the offset of frame within the current pulse.
func (s *Sync) phase(frame uint64) uint64 {
	if !s.hasPulse() {
		return 0
	}
	if frame >= s.pulseStart {
		return (frame - s.pulseStart) % s.pulseLen
	}
	d := (s.pulseStart - frame) % s.pulseLen
	if d == 0 {
		return 0
	}
	return s.pulseLen - d
}

// progress is phase as a fraction of the pulse, in [0,1).
func (s *Sync) progress(frame uint64) float64 {
	if !s.hasPulse() {
		return 0
	}
	return float64(s.phase(frame)) / float64(s.pulseLen)
}

// untilBoundary returns the number of frames from frame to the next
// boundary strictly after it.
func (s *Sync) untilBoundary(frame uint64) (int, bool) {
	if !s.hasPulse() {
		return 0, false
	}
	return int(s.pulseLen - s.phase(frame)), true
}

// atBoundary reports whether frame starts a pulse other than the one the
// grid was anchored on.
func (s *Sync) atBoundary(frame uint64) bool {
	return s.hasPulse() && frame != s.pulseStart && s.phase(frame) == 0
}

// alignedPosition is where a loop of the given length should be when
// playing in step with the grid at frame.
func (s *Sync) alignedPosition(frame uint64, recorded int) int {
	if recorded <= 0 || !s.hasPulse() {
		return 0
	}
	n := uint64(recorded)
	if frame >= s.pulseStart {
		return int((frame - s.pulseStart) % n)
	}
	d := (s.pulseStart - frame) % n
	if d == 0 {
		return 0
	}
	return int(n - d)
}

// quantize rounds frames to the nearest whole number of pulses, at least one.
func (s *Sync) quantize(frames int) int {
	if !s.hasPulse() {
		return frames
	}
	p := int(s.pulseLen)
	m := (frames + p/2) / p
	if m == 0 {
		m = 1
	}
	return m * p
}

func (s *Sync) hold(note int, k IntentKind) {
	if s.deferred[note] == intentNone {
		s.ndeferred++
	}
	s.deferred[note] = k
}

// cancel drops a held transition for note.
func (s *Sync) cancel(note int) bool {
	if s.deferred[note] == intentNone {
		return false
	}
	s.deferred[note] = intentNone
	s.ndeferred--
	return true
}

// release hands every held transition to fn in note order and clears them.
func (s *Sync) release(fn func(note int, k IntentKind)) {
	if s.ndeferred == 0 {
		return
	}
	for note := range s.deferred {
		k := s.deferred[note]
		if k == intentNone {
			continue
		}
		s.deferred[note] = intentNone
		s.ndeferred--
		fn(note, k)
	}
}

// backfill is a ring of recent input used to pre-fill recordings that
// start after a pulse boundary.
type backfill struct {
	buf   []float32
	write int
	avail int
}

func (b *backfill) reset() {
	b.write = 0
	b.avail = 0
}

func (b *backfill) push(src []float32) {
	if len(b.buf) == 0 {
		return
	}
	for len(src) > 0 {
		n := copy(b.buf[b.write:], src)
		src = src[n:]
		b.write = (b.write + n) % len(b.buf)
		b.avail += n
	}
	if b.avail > len(b.buf) {
		b.avail = len(b.buf)
	}
}

func (b *backfill) pushSilence(n int) {
	if len(b.buf) == 0 {
		return
	}
	for n > 0 {
		end := b.write + n
		if end > len(b.buf) {
			end = len(b.buf)
		}
		clear(b.buf[b.write:end])
		n -= end - b.write
		b.avail += end - b.write
		b.write = end % len(b.buf)
	}
	if b.avail > len(b.buf) {
		b.avail = len(b.buf)
	}
}

// tail copies the most recent len(dst) frames into dst in time order.
// len(dst) must not exceed avail.
func (b *backfill) tail(dst []float32) {
	n := len(dst)
	start := b.write - n
	if start < 0 {
		start += len(b.buf)
	}
	k := copy(dst, b.buf[start:])
	if k < n {
		copy(dst[k:], b.buf[:n-k])
	}
}
