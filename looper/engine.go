package looper

import "math"

// Engine is the audio-thread half of the looper. Process is its only entry
// point; everything it touches is preallocated and owned by it.
type Engine struct {
	pool    *Pool
	sync    *Sync
	bridge  *Bridge
	notices *Ring[Notice]
	status  *Status

	capture   *Ring[float32]
	captureOn bool

	stretcher Stretcher
	dry       []float32
	blockSize int

	sampleRate int
	resume     ResumePolicy
	promote    PromotePolicy

	system     SystemState
	volume     float64
	speed      float64
	pitch      float64
	rubberband bool

	frame       uint64
	noticeDrops uint64
}

func newEngine(cfg Config, bridge *Bridge, status *Status, capacity int) *Engine {
	e := &Engine{
		pool:       NewPool(capacity),
		sync:       newSync(capacity),
		bridge:     bridge,
		notices:    NewRing[Notice](cfg.NoticeSize),
		status:     status,
		capture:    NewRing[float32](int(cfg.CaptureSeconds * float64(cfg.SampleRate))),
		stretcher:  cfg.Stretcher,
		dry:        make([]float32, cfg.BlockSize),
		blockSize:  cfg.BlockSize,
		sampleRate: cfg.SampleRate,
		resume:     cfg.Resume,
		promote:    cfg.Promote,
	}
	if e.stretcher == nil {
		e.stretcher = Passthrough{}
	}
	e.resetGlobals()
	return e
}

func (e *Engine) resetGlobals() {
	e.system = SystemIdle
	e.volume = 1.0
	e.speed = 1.0
	e.pitch = 0
	e.rubberband = false
}

// Process renders one callback's worth of audio. in may be nil or shorter
// than out, in which case missing input is treated as silence. Buffers
// longer than the configured block size are split into blocks.
func (e *Engine) Process(in, out []float32) {
	for len(out) > 0 {
		n := len(out)
		if n > e.blockSize {
			n = e.blockSize
		}
		var blockIn []float32
		if len(in) >= n {
			blockIn, in = in[:n], in[n:]
		} else {
			in = nil
		}
		e.processBlock(blockIn, out[:n])
		out = out[n:]
	}
}

func (e *Engine) processBlock(in, out []float32) {
	clear(out)
	n := len(out)

	batch := e.bridge.Drain()
	for i := range batch {
		if batch[i].Kind != intentNone {
			e.apply(&batch[i], e.frame)
		}
	}

	if e.sync.atBoundary(e.frame) {
		e.crossBoundary(e.frame)
	}
	pos := 0
	for pos < n {
		end := n
		if d, ok := e.sync.untilBoundary(e.frame + uint64(pos)); ok && pos+d < n {
			end = pos + d
		}
		e.render(in, out, pos, end)
		pos = end
		if pos < n && e.sync.atBoundary(e.frame+uint64(pos)) {
			e.crossBoundary(e.frame + uint64(pos))
		}
	}

	if e.volume != 1 {
		g := float32(e.volume)
		for i := range out {
			out[i] *= g
		}
	}
	e.stretch(out)
	if e.captureOn {
		e.captureBlock(out)
	}

	e.frame += uint64(n)
	e.status.publish(e)
}

// render handles frames [from, to) of the current block, none of which
// lies on a pulse boundary except possibly from.
func (e *Engine) render(in, out []float32, from, to int) {
	var src []float32
	if len(in) >= to {
		src = in[from:to]
	}
	if e.sync.hasPulse() {
		if src != nil {
			e.sync.backfill.push(src)
		} else {
			e.sync.backfill.pushSilence(to - from)
		}
	}

	if r := e.pool.recording; r != NoNote {
		s := &e.pool.slots[r]
		var more bool
		if src != nil {
			more = s.record(src)
		} else {
			more = s.recordSilence(to - from)
		}
		if !more {
			e.finishRecording(e.frame + uint64(to))
		}
	}

	if e.system == SystemStopped {
		return
	}
	dst := out[from:to]
	rate := e.readRate()
	for i := range e.pool.slots {
		if e.pool.slots[i].state == LoopPlaying {
			e.pool.slots[i].mix(dst, rate)
		}
	}
}

func (e *Engine) crossBoundary(frame uint64) {
	e.sync.waiting = false
	e.sync.release(func(note int, k IntentKind) {
		e.transition(note, k, nil, frame, false)
	})
}

// flushDeferred applies held transitions immediately, used when the grid
// they were waiting for goes away.
func (e *Engine) flushDeferred(frame uint64) {
	e.sync.release(func(note int, k IntentKind) {
		e.transition(note, k, nil, frame, false)
	})
}

// readRate is the varispeed factor loops are read at. With rubberband on
// the stretcher owns tempo and loops are read at unit rate.
func (e *Engine) readRate() float64 {
	if e.rubberband {
		return 1
	}
	return e.speed
}

func (e *Engine) stretch(out []float32) {
	p := StretchParams{Speed: e.speed, Semitones: e.pitch, PreservePitch: e.rubberband}
	if !e.rubberband {
		// varispeed already moved pitch by the speed ratio; only the
		// remainder is left for the stretcher
		p.Speed = 1
		if e.speed != 1 {
			p.Semitones -= 12 * math.Log2(e.speed)
		}
		if math.Abs(p.Semitones) < 1e-9 {
			p.Semitones = 0
		}
	}
	if p.Neutral() && !e.rubberband {
		return
	}
	dry := e.dry[:len(out)]
	copy(dry, out)
	if err := e.stretcher.Process(out, p); err != nil {
		copy(out, dry)
		e.notify(Notice{Kind: NoticeStretchFailed, Note: NoNote, Frame: e.frame})
	}
}

func (e *Engine) captureBlock(out []float32) {
	dropped := 0
	for _, v := range out {
		if !e.capture.Push(v) {
			dropped++
		}
	}
	if dropped > 0 {
		e.notify(Notice{Kind: NoticeCaptureOverrun, Note: NoNote, Frame: e.frame, Frames: dropped})
	}
}

func (e *Engine) notify(n Notice) {
	if !e.notices.Push(n) {
		e.noticeDrops++
	}
}

// Frame returns the sample clock. Audio thread only; the control side
// reads Looper.CurrentFrame.
func (e *Engine) Frame() uint64 { return e.frame }
