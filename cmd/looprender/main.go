// Command looprender plays a MIDI performance against a WAV input through
// the looper offline and writes the result, so takes can be reproduced
// without an audio device or controller.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/wavio"
)

type options struct {
	events    string
	input     string
	output    string
	blockSize int
	seconds   float64
	tail      float64
	mode      string
	sync      bool
	load      string
	save      string
	cc        []string
	verbose   bool
	debug     bool
}

func main() {
	var o options
	flag.StringVarP(&o.events, "events", "e", "", "standard MIDI file with the performance (required)")
	flag.StringVarP(&o.input, "input", "i", "", "mono WAV fed to the looper input (silence if empty)")
	flag.StringVarP(&o.output, "output", "o", "render.wav", "output WAV")
	flag.IntVar(&o.blockSize, "block", 256, "frames per processing block")
	flag.Float64Var(&o.seconds, "max-loop", 30, "maximum loop length in seconds")
	flag.Float64Var(&o.tail, "tail", 4, "seconds rendered after the input ends")
	flag.StringVar(&o.mode, "mode", "trigger", "playback mode: normal or trigger")
	flag.BoolVar(&o.sync, "sync", false, "enable pulse sync")
	flag.StringVar(&o.load, "load", "", "session snapshot to load before rendering")
	flag.StringVar(&o.save, "save", "", "write a session snapshot after rendering")
	flag.StringArrayVar(&o.cc, "cc", nil, "controller override CC=action, repeatable")
	flag.BoolVarP(&o.verbose, "verbose", "v", false, "print every notice")
	flag.BoolVar(&o.debug, "debug", false, "log to stderr")
	flag.Parse()

	if o.events == "" {
		fmt.Fprintln(os.Stderr, "usage: looprender -e performance.mid [-i input.wav] [-o out.wav]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := run(o); err != nil {
		fmt.Fprintln(os.Stderr, "looprender:", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.debug {
		debug.EnableWriter(os.Stderr)
	}

	var in []float32
	rate := 48000
	if o.input != "" {
		var err error
		if in, rate, err = wavio.ReadMono(o.input); err != nil {
			return err
		}
	}

	mode, ok := looper.ParsePlaybackMode(o.mode)
	if !ok {
		return errors.Errorf("unknown mode %q", o.mode)
	}
	ccMap := looper.DefaultCCMap()
	for _, s := range o.cc {
		cc, name, err := config.ParseCCFlag(s)
		if err != nil {
			return err
		}
		a, ok := looper.ParseCCAction(name)
		if !ok {
			return errors.Errorf("unknown action %q", name)
		}
		if a == looper.CCNone {
			delete(ccMap, cc)
			continue
		}
		ccMap[cc] = a
	}

	cfg := looper.DefaultConfig()
	cfg.SampleRate = rate
	cfg.BlockSize = o.blockSize
	cfg.MaxLoopSeconds = o.seconds
	l, err := looper.New(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	if o.load != "" {
		if err := l.LoadState(o.load); err != nil {
			return err
		}
	}
	l.SetPlaybackMode(mode)
	if o.sync {
		if err := l.EnableSync(); err != nil {
			return err
		}
	}

	cues, err := readCues(o.events, rate)
	if err != nil {
		return err
	}
	frames := len(in) + int(o.tail*float64(rate))
	if n := len(cues); n > 0 && cues[n-1].Frame >= frames {
		frames = cues[n-1].Frame + int(o.tail*float64(rate))
	}

	r := newRenderer(l, looper.NewDispatcher(l, ccMap), cues)
	out := r.run(in, frames)

	if o.verbose {
		for _, n := range r.notices {
			fmt.Println(n)
		}
	}
	for _, err := range r.errs {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if err := wavio.WriteMono(o.output, out, rate); err != nil {
		return err
	}
	if o.save != "" {
		if err := l.SaveState(o.save); err != nil {
			return err
		}
	}

	fmt.Printf("%s: %d cues, %d loops, %.2fs at %d Hz\n",
		o.output, len(cues), len(l.ReadyLoops()), float64(frames)/float64(rate), rate)
	return nil
}
