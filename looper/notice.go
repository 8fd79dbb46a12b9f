package looper

import "fmt"

// NoticeKind tags an event reported by the audio thread.
type NoticeKind uint8

const (
	NoticeRecordStarted NoticeKind = iota
	NoticeRecordStopped
	NoticePlaybackStarted
	NoticePlaybackStopped
	NoticeLoopCleared
	NoticeDeferred
	NoticeRejected
	NoticePulseSet
	NoticePulseCleared
	NoticeStretchFailed
	NoticeCaptureOverrun
)

// Notice is the audio thread's only way to tell the control side what
// happened. It carries no pointers so pushing it never allocates.
type Notice struct {
	Kind   NoticeKind
	Note   int16
	Intent IntentKind
	Frame  uint64
	Frames int
}

func (n Notice) String() string {
	switch n.Kind {
	case NoticeRecordStarted:
		return fmt.Sprintf("note %d: recording started at frame %d", n.Note, n.Frame)
	case NoticeRecordStopped:
		return fmt.Sprintf("note %d: recording stopped, %d frames", n.Note, n.Frames)
	case NoticePlaybackStarted:
		return fmt.Sprintf("note %d: playback started at position %d", n.Note, n.Frames)
	case NoticePlaybackStopped:
		return fmt.Sprintf("note %d: playback stopped", n.Note)
	case NoticeLoopCleared:
		return fmt.Sprintf("note %d: cleared", n.Note)
	case NoticeDeferred:
		return fmt.Sprintf("note %d: %s deferred to next pulse", n.Note, n.Intent)
	case NoticeRejected:
		return fmt.Sprintf("note %d: %s rejected", n.Note, n.Intent)
	case NoticePulseSet:
		return fmt.Sprintf("pulse loop set to note %d, %d frames", n.Note, n.Frames)
	case NoticePulseCleared:
		return "pulse loop cleared"
	case NoticeStretchFailed:
		return "stretcher failed, passing dry signal"
	case NoticeCaptureOverrun:
		return fmt.Sprintf("capture overrun, %d samples dropped", n.Frames)
	}
	return fmt.Sprintf("notice %d", n.Kind)
}
