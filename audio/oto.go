//go:build !headless

package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

func init() {
	register("oto", func(p Processor, opts Options) (Backend, error) {
		return NewOto(p, opts)
	})
}

// Oto plays the processor's output through oto. It has no input, so
// recording captures silence.
type Oto struct {
	ctx    *oto.Context
	player *oto.Player
	p      Processor

	block  []float32 // one processor block
	offset int       // frames of block already handed to oto

	mu      sync.Mutex
	started bool
}

// NewOto creates the oto context; only one may exist per process.
func NewOto(p Processor, opts Options) (*Oto, error) {
	op := &oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	o := &Oto{
		ctx:    ctx,
		p:      p,
		block:  make([]float32, opts.BlockSize),
		offset: opts.BlockSize,
	}
	o.player = ctx.NewPlayer(o)
	return o, nil
}

// Read is called by oto's mixer goroutine. It renders whole blocks and
// hands them out four bytes per frame.
func (o *Oto) Read(p []byte) (int, error) {
	n := 0
	for n+4 <= len(p) {
		if o.offset == len(o.block) {
			o.p.Process(nil, o.block)
			o.offset = 0
		}
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(o.block[o.offset]))
		o.offset++
		n += 4
	}
	return n, nil
}

func (o *Oto) Name() string { return "oto" }

func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		o.player.Play()
		o.started = true
	}
	return nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		o.player.Pause()
		o.started = false
	}
	return nil
}

func (o *Oto) Close() error {
	o.Stop()
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player.Close()
}
