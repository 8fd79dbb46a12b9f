package main

import (
	"sort"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-looper/audio"
	"go-looper/looper"
	"go-looper/midi"
)

// cue is a controller event placed on the sample timeline.
type cue struct {
	Frame int
	Event midi.Event
}

// readCues loads every channel event of a standard MIDI file, merged
// across tracks and converted to frames at sampleRate.
func readCues(path string, sampleRate int) ([]cue, error) {
	f, err := smf.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if _, ok := f.TimeFormat.(smf.MetricTicks); !ok {
		return nil, errors.Errorf("%s: only metric time is supported", path)
	}

	var cues []cue
	for _, track := range f.Tracks {
		var ticks int64
		for _, ev := range track {
			ticks += int64(ev.Delta)
			if !ev.Message.IsPlayable() {
				continue
			}
			e, ok := midi.FromMessage(gomidi.Message(ev.Message))
			if !ok {
				continue
			}
			micros := f.TimeAt(ticks)
			cues = append(cues, cue{
				Frame: int(micros * int64(sampleRate) / 1e6),
				Event: e,
			})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Frame < cues[j].Frame })
	return cues, nil
}

// renderer feeds cues into a dispatcher as an offline render reaches them.
type renderer struct {
	looper  *looper.Looper
	disp    *looper.Dispatcher
	cues    []cue
	next    int
	notices []looper.Notice
	errs    []error
}

func newRenderer(l *looper.Looper, d *looper.Dispatcher, cues []cue) *renderer {
	return &renderer{looper: l, disp: d, cues: cues}
}

// hook runs before the block starting at frame. Events that fall inside
// the previous block are applied here, at the next block boundary, the
// same as a live controller.
func (r *renderer) hook(frame int) {
	r.looper.PollNotices(func(n looper.Notice) { r.notices = append(r.notices, n) })
	for r.next < len(r.cues) && r.cues[r.next].Frame <= frame {
		if err := r.apply(r.cues[r.next].Event); err != nil {
			r.errs = append(r.errs, errors.Wrapf(err, "frame %d", r.cues[r.next].Frame))
		}
		r.next++
	}
}

func (r *renderer) apply(e midi.Event) error {
	switch e.Type {
	case midi.NoteOn:
		return r.disp.NoteOn(int(e.Note), int(e.Value))
	case midi.NoteOff:
		return r.disp.NoteOff(int(e.Note))
	case midi.CC:
		return r.disp.ControlChange(int(e.Note), int(e.Value))
	}
	return nil
}

// run renders frames of output for in and flushes the trailing notices.
func (r *renderer) run(in []float32, frames int) []float32 {
	out := audio.Render(r.looper, in, frames, r.looper.Config().BlockSize, r.hook)
	r.looper.PollNotices(func(n looper.Notice) { r.notices = append(r.notices, n) })
	return out
}
