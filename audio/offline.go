package audio

// Render runs p over frames of input in blocks of blockSize and returns the
// output. Input shorter than frames is padded with silence; hook, when set,
// runs before each block with the index of its first frame.
func Render(p Processor, in []float32, frames, blockSize int, hook func(frame int)) []float32 {
	if blockSize <= 0 {
		blockSize = 256
	}
	out := make([]float32, frames)
	silence := make([]float32, blockSize)
	for pos := 0; pos < frames; pos += blockSize {
		end := pos + blockSize
		if end > frames {
			end = frames
		}
		if hook != nil {
			hook(pos)
		}
		n := end - pos
		blockIn := silence[:n]
		if end <= len(in) {
			blockIn = in[pos:end]
		} else if pos < len(in) {
			blockIn = make([]float32, n)
			copy(blockIn, in[pos:])
		}
		p.Process(blockIn, out[pos:end])
	}
	return out
}
