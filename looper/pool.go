package looper

// Pool owns the 128 loop slots and enforces that at most one of them
// records at a time.
type Pool struct {
	slots     [NumNotes]Slot
	recording int
	active    int
	capacity  int
}

// NewPool allocates every slot buffer up front with capacity frames each.
func NewPool(capacity int) *Pool {
	p := &Pool{recording: NoNote, capacity: capacity}
	backing := make([]float32, capacity*NumNotes)
	for i := range p.slots {
		p.slots[i] = Slot{
			note:   i,
			buf:    backing[i*capacity : (i+1)*capacity : (i+1)*capacity],
			volume: 1.0,
		}
	}
	return p
}

// Slot returns the slot for note, or nil outside 0-127.
func (p *Pool) Slot(note int) *Slot {
	if !validNote(note) {
		return nil
	}
	return &p.slots[note]
}

// Recording returns the note currently recording, or NoNote.
func (p *Pool) Recording() int { return p.recording }

// ActiveCount returns the number of slots holding a finished loop.
func (p *Pool) ActiveCount() int { return p.active }

func (p *Pool) Capacity() int { return p.capacity }

// startRecording claims the recording role for note.
func (p *Pool) startRecording(note int, sampleRate int) bool {
	if p.recording != NoNote && p.recording != note {
		return false
	}
	s := &p.slots[note]
	if s.ready {
		p.active--
	}
	s.beginRecording(sampleRate)
	p.recording = note
	return true
}

func (p *Pool) stopRecording() *Slot {
	if p.recording == NoNote {
		return nil
	}
	s := &p.slots[p.recording]
	p.recording = NoNote
	s.finishRecording()
	if s.ready {
		p.active++
	}
	return s
}

func (p *Pool) clearSlot(note int) {
	s := &p.slots[note]
	if p.recording == note {
		p.recording = NoNote
	}
	if s.ready {
		p.active--
	}
	s.clear()
}

func (p *Pool) loadSlot(note int, a *LoopAudio) {
	s := &p.slots[note]
	if p.recording == note {
		p.recording = NoNote
	}
	wasReady := s.ready
	s.load(a)
	if wasReady != s.ready {
		if s.ready {
			p.active++
		} else {
			p.active--
		}
	}
}

// setReady keeps the active count consistent when readiness changes
// outside record/clear.
func (p *Pool) setReady(s *Slot, ready bool) {
	if s.ready == ready {
		return
	}
	s.ready = ready
	if ready {
		p.active++
	} else {
		p.active--
	}
}

// longest returns the maximum recorded length among ready slots.
func (p *Pool) longest() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].ready && p.slots[i].recorded > n {
			n = p.slots[i].recorded
		}
	}
	return n
}

// reset returns every slot to its idle default. Sample data is kept so
// that a restored snapshot can point back at it.
func (p *Pool) reset() {
	for i := range p.slots {
		s := &p.slots[i]
		s.clear()
		s.volume = 1.0
	}
	p.recording = NoNote
	p.active = 0
}
