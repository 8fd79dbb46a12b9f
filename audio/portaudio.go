//go:build !headless

package audio

import (
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"

	"go-looper/debug"
)

func init() {
	register("portaudio", func(p Processor, opts Options) (Backend, error) {
		return NewPortAudio(p, opts)
	})
}

// PortAudio runs a mono duplex stream; without an input device it opens
// output only and the processor sees nil input.
type PortAudio struct {
	stream *pa.Stream
	info   string

	mu      sync.Mutex
	started bool
}

// NewPortAudio initializes PortAudio and opens the stream.
func NewPortAudio(p Processor, opts Options) (*PortAudio, error) {
	if err := pa.Initialize(); err != nil {
		return nil, errors.Wrap(err, "portaudio init")
	}

	out, err := findDevice(opts.OutputDevice, false)
	if err != nil {
		pa.Terminate()
		return nil, err
	}
	in, err := findDevice(opts.InputDevice, true)
	if err != nil {
		debug.Log("audio", "no input device (%v), output only", err)
		in = nil
	}

	params := pa.LowLatencyParameters(in, out)
	params.SampleRate = float64(opts.SampleRate)
	params.FramesPerBuffer = opts.BlockSize
	params.Output.Channels = 1

	var stream *pa.Stream
	if in != nil {
		params.Input.Channels = 1
		stream, err = pa.OpenStream(params, func(in, out []float32) {
			p.Process(in, out)
		})
	} else {
		stream, err = pa.OpenStream(params, func(out []float32) {
			p.Process(nil, out)
		})
	}
	if err != nil {
		pa.Terminate()
		return nil, errors.Wrap(err, "portaudio open stream")
	}

	info := "out: " + out.Name
	if in != nil {
		info = "in: " + in.Name + ", " + info
	}
	debug.Log("audio", "portaudio %s (%s)", strings.Split(pa.VersionText(), ",")[0], info)
	return &PortAudio{stream: stream, info: info}, nil
}

func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	if name == "" {
		if input {
			return pa.DefaultInputDevice()
		}
		return pa.DefaultOutputDevice()
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if !strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			continue
		}
		if (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0) {
			return d, nil
		}
	}
	return nil, errors.Errorf("no audio device matching %q", name)
}

func (b *PortAudio) Name() string { return "portaudio (" + b.info + ")" }

func (b *PortAudio) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := b.stream.Start(); err != nil {
		return errors.Wrap(err, "portaudio start")
	}
	b.started = true
	return nil
}

func (b *PortAudio) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	return b.stream.Stop()
}

func (b *PortAudio) Close() error {
	b.Stop()
	err := b.stream.Close()
	if terr := pa.Terminate(); terr != nil && err == nil {
		err = terr
	}
	return err
}
