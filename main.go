package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"go-looper/audio"
	"go-looper/config"
	"go-looper/control"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
	"go-looper/tui"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default ~/.config/go-looper/config.json)")
		debugLog   = flag.Bool("debug", false, "write a debug log to ~/.config/go-looper/debug.log")
		backend    = flag.String("backend", "", "audio backend: "+fmt.Sprint(audio.Available()))
		inDevice   = flag.String("input", "", "audio input device (name fragment)")
		outDevice  = flag.String("output", "", "audio output device (name fragment)")
		session    = flag.String("session", "", "session name used by save and load")
		load       = flag.String("load", "", "session name or file to load at startup")
		palette    = flag.String("palette", "", "GIMP palette (.gpl) for the UI and pads")
		ccFlags    = flag.StringArray("cc", nil, "controller override CC=action, repeatable (e.g. 74=speed, 1=none)")
		thru       = flag.String("thru", "", "MIDI output for unmapped controllers")
		allInputs  = flag.Bool("all-inputs", false, "treat every non-Launchpad input as a keyboard")
		noTUI      = flag.Bool("no-tui", false, "run without the terminal UI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	if *debugLog {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	// Command line overrides
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	if *thru != "" {
		cfg.MIDI.ThruPort = *thru
	}
	if *palette != "" {
		cfg.UI.Palette = *palette
	}
	if *session == "" {
		*session = cfg.UI.LastSession
	}
	for _, s := range *ccFlags {
		cc, action, err := config.ParseCCFlag(s)
		if err != nil {
			fatal(err)
		}
		if cfg.Looper.CCMap == nil {
			cfg.Looper.CCMap = make(map[int]string)
		}
		cfg.Looper.CCMap[cc] = action
	}

	lc, err := cfg.LooperConfig()
	if err != nil {
		fatal(err)
	}
	ccMap, err := cfg.CCMap()
	if err != nil {
		fatal(err)
	}

	l, err := looper.New(lc)
	if err != nil {
		fatal(err)
	}
	defer l.Close()
	dispatcher := looper.NewDispatcher(l, ccMap)

	var pal *theme.Palette
	if cfg.UI.Palette != "" {
		if pal, err = theme.LoadGPL(cfg.UI.Palette); err != nil {
			fatal(err)
		}
	}
	th := theme.New(pal)

	ctrl := control.NewManager(l, dispatcher, th, control.Options{
		PadBaseNote: cfg.MIDI.PadBaseNote,
		ThruPort:    cfg.MIDI.ThruPort,
	})

	deviceMgr := midi.NewDeviceManager(cfg.PortRules(), *allInputs)

	stream, err := audio.New(cfg.Audio.Backend, l, audio.Options{
		SampleRate:   lc.SampleRate,
		BlockSize:    lc.BlockSize,
		InputDevice:  *inDevice,
		OutputDevice: *outDevice,
	})
	if err != nil {
		fatal(err)
	}
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx, ctrl.HandleNotice)
	go ctrl.Run(ctx)
	go deviceMgr.Run(ctx)

	if err := stream.Start(); err != nil {
		fatal(err)
	}
	defer stream.Stop()

	if *load != "" {
		if err := ctrl.LoadSession(*load); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *load, err)
		}
	}

	if *noTUI {
		runHeadless(ctx, ctrl, deviceMgr, stream.Name())
	} else {
		m := tui.NewModel(l, ctrl, deviceMgr, th, *session)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *session != "" && *session != cfg.UI.LastSession {
		cfg.UI.LastSession = *session
		if err := saveConfig(cfg, *configPath); err != nil {
			debug.Warn("config", "save: %v", err)
		}
	}
}

// runHeadless routes hot-plugged controllers until interrupted.
func runHeadless(ctx context.Context, ctrl *control.Manager, deviceMgr *midi.DeviceManager, backend string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("go-looper (%s) - connect MIDI devices any time, ctrl+c to quit\n", backend)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-deviceMgr.Events():
			if !ok {
				return
			}
			switch event.Type {
			case midi.DeviceConnected:
				ctrl.AddController(event.Controller)
				fmt.Println("connected", event.ID)
			case midi.DeviceDisconnected:
				ctrl.RemoveController(event.ID)
				fmt.Println("disconnected", event.ID)
			}
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func saveConfig(cfg *config.Config, path string) error {
	if path == "" {
		return cfg.Save()
	}
	return cfg.SaveTo(path)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "go-looper: %v\n", err)
	os.Exit(1)
}
