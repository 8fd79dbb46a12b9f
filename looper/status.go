package looper

import (
	"math"
	"sync/atomic"
)

// Status mirrors audio-thread state for lock-free reads from the control
// side. It is written once at the end of every block.
type Status struct {
	slots [NumNotes]slotStatus

	recording   atomic.Int32
	active      atomic.Int32
	frame       atomic.Uint64
	system      atomic.Int32
	syncEnabled atomic.Bool
	pulseNote   atomic.Int32
	pulseLen    atomic.Uint64
	pulseStart  atomic.Uint64
	longest     atomic.Int64
	waiting     atomic.Bool
	deferred    atomic.Int32
	consumed    atomic.Uint64
	noticeDrops atomic.Uint64
	blocks      atomic.Uint64
}

type slotStatus struct {
	state      atomic.Int32
	ready      atomic.Bool
	recorded   atomic.Int64
	position   atomic.Int64
	volume     atomic.Uint64
	sampleRate atomic.Int32
}

func newStatus() *Status {
	st := &Status{}
	st.recording.Store(NoNote)
	st.pulseNote.Store(NoNote)
	for i := range st.slots {
		st.slots[i].volume.Store(math.Float64bits(1.0))
	}
	return st
}

func (st *Status) publish(e *Engine) {
	p := e.pool
	for i := range p.slots {
		s := &p.slots[i]
		ss := &st.slots[i]
		ss.state.Store(int32(s.state))
		ss.ready.Store(s.ready)
		ss.recorded.Store(int64(s.recorded))
		ss.position.Store(int64(s.position))
		ss.volume.Store(math.Float64bits(s.volume))
		ss.sampleRate.Store(int32(s.sampleRate))
	}
	st.recording.Store(int32(p.recording))
	st.active.Store(int32(p.active))
	st.frame.Store(e.frame)
	st.system.Store(int32(e.system))

	sy := e.sync
	st.syncEnabled.Store(sy.enabled)
	st.pulseNote.Store(int32(sy.pulseNote))
	st.pulseLen.Store(sy.pulseLen)
	st.pulseStart.Store(sy.pulseStart)
	st.longest.Store(int64(sy.longest))
	st.waiting.Store(sy.waiting)
	st.deferred.Store(int32(sy.ndeferred))

	st.consumed.Store(e.bridge.consumed())
	st.noticeDrops.Store(e.noticeDrops)
	st.blocks.Add(1)
}

// LoopInfo is a read-only view of one slot.
type LoopInfo struct {
	Note           int
	State          LoopState
	Ready          bool
	RecordedFrames int
	Position       int
	Volume         float64
	SampleRate     int
	Filename       string
}

func (st *Status) loop(note int) LoopInfo {
	ss := &st.slots[note]
	return LoopInfo{
		Note:           note,
		State:          LoopState(ss.state.Load()),
		Ready:          ss.ready.Load(),
		RecordedFrames: int(ss.recorded.Load()),
		Position:       int(ss.position.Load()),
		Volume:         math.Float64frombits(ss.volume.Load()),
		SampleRate:     int(ss.sampleRate.Load()),
	}
}

// SyncInfo describes the pulse grid as last published.
type SyncInfo struct {
	Enabled         bool
	PulseNote       int
	PulseFrames     uint64
	PulseStartFrame uint64
	CurrentFrame    uint64
	LongestLoop     int
	Cutoff          float64
	RecordingCutoff float64
	WaitingForPulse bool
	DeferredCount   int
	Progress        float64
}
