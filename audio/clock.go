package audio

import (
	"sync"
	"time"
)

// Clock calls a Processor in real time with silent input and discards the
// output. It keeps the looper's timeline moving when no sound card is used.
type Clock struct {
	p      Processor
	period time.Duration
	in     []float32
	out    []float32

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewClock creates a stopped clock.
func NewClock(p Processor, opts Options) *Clock {
	return &Clock{
		p:      p,
		period: time.Duration(opts.BlockSize) * time.Second / time.Duration(opts.SampleRate),
		in:     make([]float32, opts.BlockSize),
		out:    make([]float32, opts.BlockSize),
	}
}

func (c *Clock) Name() string { return "none" }

func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	return nil
}

func (c *Clock) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.p.Process(c.in, c.out)
		}
	}
}

func (c *Clock) Stop() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (c *Clock) Close() error { return c.Stop() }
