package looper

// StretchParams describes the requested time/pitch transformation.
type StretchParams struct {
	Speed     float64
	Semitones float64
	// PreservePitch is false in record-player mode, where speed and pitch
	// move together.
	PreservePitch bool
}

// Neutral reports whether the parameters leave the signal untouched.
func (p StretchParams) Neutral() bool {
	return p.Speed == 1 && p.Semitones == 0
}

// Stretcher transforms the rendered block in place. It runs on the audio
// thread and must not block or allocate. When it returns an error the
// engine discards its output and passes the dry signal.
type Stretcher interface {
	Process(buf []float32, p StretchParams) error
}

// Passthrough is the stretcher used when no DSP backend is configured.
type Passthrough struct{}

func (Passthrough) Process([]float32, StretchParams) error { return nil }
