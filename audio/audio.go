// Package audio connects a block processor to a sound card, a silent
// clock or an offline buffer.
package audio

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"go-looper/debug"
)

// Processor renders one block. in may be nil when there is no input.
type Processor interface {
	Process(in, out []float32)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(in, out []float32)

func (f ProcessorFunc) Process(in, out []float32) { f(in, out) }

// Backend drives a Processor from some clock.
type Backend interface {
	Name() string
	Start() error
	Stop() error
	Close() error
}

// Options describes the stream a backend should open.
type Options struct {
	SampleRate int
	BlockSize  int
	// InputDevice and OutputDevice select devices by name fragment; empty
	// uses the system default.
	InputDevice  string
	OutputDevice string
}

type factory func(p Processor, opts Options) (Backend, error)

var (
	registryMu sync.Mutex
	registry   = map[string]factory{
		"none": func(p Processor, opts Options) (Backend, error) {
			return NewClock(p, opts), nil
		},
	}
)

func register(name string, f factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Available lists the backend names compiled into this binary.
func Available() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New opens the named backend.
func New(name string, p Processor, opts Options) (Backend, error) {
	if opts.SampleRate <= 0 || opts.BlockSize <= 0 {
		return nil, errors.Errorf("audio: invalid stream %d Hz / %d frames", opts.SampleRate, opts.BlockSize)
	}
	registryMu.Lock()
	f, ok := registry[strings.ToLower(name)]
	registryMu.Unlock()
	if !ok {
		return nil, errors.Errorf("audio: backend %q not available (have %s)", name, strings.Join(Available(), ", "))
	}
	b, err := f(p, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "audio: open %s", name)
	}
	debug.Log("audio", "opened %s: %d Hz, %d frames per block", b.Name(), opts.SampleRate, opts.BlockSize)
	return b, nil
}
