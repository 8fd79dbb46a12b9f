package looper

import (
	"time"

	"github.com/pkg/errors"

	"go-looper/debug"
	"go-looper/wavio"
)

// captureWriter drains rendered output from the audio thread into a WAV
// file. It is the capture ring's only consumer.
type captureWriter struct {
	ring *Ring[float32]
	w    *wavio.Writer
	path string
	buf  []float32

	stop chan struct{}
	done chan error
}

const captureInterval = 20 * time.Millisecond

func startCapture(ring *Ring[float32], path string, sampleRate int) (*captureWriter, error) {
	w, err := wavio.Create(path, sampleRate)
	if err != nil {
		return nil, errors.Wrap(err, "create capture file")
	}
	// leftovers from a previous capture
	for {
		if _, ok := ring.Pop(); !ok {
			break
		}
	}
	c := &captureWriter{
		ring: ring,
		w:    w,
		path: path,
		buf:  make([]float32, 0, 4096),
		stop: make(chan struct{}),
		done: make(chan error, 1),
	}
	go c.run()
	return c, nil
}

func (c *captureWriter) run() {
	ticker := time.NewTicker(captureInterval)
	defer ticker.Stop()
	var werr error
	for {
		select {
		case <-c.stop:
			if err := c.drain(); err != nil && werr == nil {
				werr = err
			}
			c.done <- werr
			return
		case <-ticker.C:
			if err := c.drain(); err != nil && werr == nil {
				werr = err
				debug.Log("capture", "write %s: %v", c.path, err)
			}
		}
	}
}

func (c *captureWriter) drain() error {
	for {
		c.buf = c.buf[:0]
		for len(c.buf) < cap(c.buf) {
			v, ok := c.ring.Pop()
			if !ok {
				break
			}
			c.buf = append(c.buf, v)
		}
		if len(c.buf) == 0 {
			return nil
		}
		if err := c.w.Write(c.buf); err != nil {
			return err
		}
	}
}

func (c *captureWriter) close() error {
	close(c.stop)
	err := <-c.done
	if cerr := c.w.Close(); err == nil {
		err = cerr
	}
	debug.Log("capture", "closed %s", c.path)
	return err
}

// SetRecordingEnabled starts or stops writing the rendered output to
// filename as a WAV file.
func (l *Looper) SetRecordingEnabled(on bool, filename string) error {
	if l == nil {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	if cw := l.capture; cw != nil {
		seq, err := l.send(Intent{Kind: IntentCapture, Note: NoNote, Flag: false})
		if err != nil {
			return err
		}
		l.waitApplied(seq, l.blockTimeout())
		l.capture = nil
		l.params.RecordingEnabled = false
		if err := cw.close(); err != nil {
			return err
		}
	}
	if !on {
		l.signal()
		return nil
	}
	if filename == "" {
		return errors.New("recording enabled without a filename")
	}

	cw, err := startCapture(l.engine.capture, filename, l.cfg.SampleRate)
	if err != nil {
		return err
	}
	if _, err := l.send(Intent{Kind: IntentCapture, Note: NoNote, Flag: true}); err != nil {
		cw.close()
		return err
	}
	l.capture = cw
	l.params.RecordingEnabled = true
	l.params.RecordingFile = filename
	debug.Log("capture", "recording output to %s", filename)
	l.signal()
	return nil
}

// RecordingEnabled reports whether output capture is active.
func (l *Looper) RecordingEnabled() bool {
	if l == nil {
		return false
	}
	return l.Params().RecordingEnabled
}

// blockTimeout is long enough for a running audio thread to process a
// couple of blocks.
func (l *Looper) blockTimeout() time.Duration {
	block := time.Duration(float64(time.Second) * float64(l.cfg.BlockSize) / float64(l.cfg.SampleRate))
	return 2*block + 50*time.Millisecond
}
