// Package wavio reads and writes the mono float32 audio the looper works
// with as PCM WAV files.
package wavio

import (
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// BitDepth is used for every file this package writes.
const BitDepth = 16

// ReadMono decodes the file at path. Multi-channel files keep only their
// first channel.
func ReadMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	samples, rate, err := Decode(f)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "decode %s", path)
	}
	return samples, rate, nil
}

// Decode reads a PCM WAV stream into mono samples in [-1, 1].
func Decode(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.Wrap(err, "read PCM")
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, errors.New("missing format chunk")
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	if depth == 0 {
		return nil, 0, errors.New("unknown bit depth")
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	scale := float32(int64(1) << uint(depth-1))
	for i := 0; i < frames; i++ {
		v := buf.Data[i*channels]
		if depth == 8 {
			// 8-bit WAV is unsigned
			out[i] = float32(v-128) / 128
			continue
		}
		out[i] = float32(v) / scale
	}
	return out, buf.Format.SampleRate, nil
}

// Writer streams mono samples to a 16-bit WAV file. The header is
// finalized on Close.
type Writer struct {
	f   *os.File
	enc *wav.Encoder
	buf *audio.IntBuffer
}

// Create opens path for writing, truncating any existing file.
func Create(path string, sampleRate int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, BitDepth, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: BitDepth,
		},
	}, nil
}

// Write appends samples, clipping to [-1, 1].
func (w *Writer) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		w.buf.Data[i] = int(s * 32767)
	}
	return w.enc.Write(w.buf)
}

// Close writes the final header and closes the file.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return errors.Wrap(err, "finalize wav")
	}
	return w.f.Close()
}

// WriteMono writes samples to path in one go.
func WriteMono(path string, samples []float32, sampleRate int) error {
	w, err := Create(path, sampleRate)
	if err != nil {
		return err
	}
	if err := w.Write(samples); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
