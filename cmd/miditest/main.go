package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "monitor":
		err = monitor(os.Args[2:])
	case "leds":
		err = testLEDs()
	case "poll":
		pollDevices()
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list             - List all MIDI ports")
	fmt.Println("  monitor [port]   - Print decoded events and the looper action for each")
	fmt.Println("  leds             - Show the loop state colors on a Launchpad")
	fmt.Println("  poll             - Watch controllers connect and disconnect")
}

func ports() ([]drivers.In, []drivers.Out, error) {
	ins, outs, err := midi.Ports(3 * time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("%v; CoreMIDI may be hung (sudo killall coreaudiod midiserver)", err)
	}
	return ins, outs, nil
}

func listPorts() error {
	ins, outs, err := ports()
	if err != nil {
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	return nil
}

// findIn picks an input by index or case-insensitive name fragment. An
// empty selector picks the first port.
func findIn(ins []drivers.In, sel string) (drivers.In, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI inputs")
	}
	if sel == "" {
		return ins[0], nil
	}
	if i, err := strconv.Atoi(sel); err == nil {
		if i < 0 || i >= len(ins) {
			return nil, fmt.Errorf("no input %d", i)
		}
		return ins[i], nil
	}
	for _, p := range ins {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(sel)) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no input matching %q", sel)
}

func monitor(args []string) error {
	ins, _, err := ports()
	if err != nil {
		return err
	}
	sel := ""
	if len(args) > 0 {
		sel = args[0]
	}
	in, err := findIn(ins, sel)
	if err != nil {
		return err
	}

	ccMap := looper.DefaultCCMap()
	fmt.Printf("Monitoring %s. Ctrl+C to exit.\n", in.String())
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		e, ok := midi.FromMessage(msg)
		if !ok {
			fmt.Printf("%8d  %s (ignored)\n", timestampms, msg)
			return
		}
		fmt.Printf("%8d  %-28s %s\n", timestampms, e, describe(e, ccMap))
	})
	if err != nil {
		return err
	}
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}

// describe names what the looper would do with e.
func describe(e midi.Event, ccMap map[int]looper.CCAction) string {
	switch e.Type {
	case midi.NoteOn:
		return fmt.Sprintf("-> loop %d, volume %.2f", e.Note, float64(e.Value)/127)
	case midi.NoteOff:
		return fmt.Sprintf("-> loop %d release (trigger mode)", e.Note)
	case midi.CC:
		if a, ok := ccMap[int(e.Note)]; ok {
			return "-> " + a.String()
		}
		return "-> forwarded"
	}
	return ""
}

func testLEDs() error {
	ins, outs, err := ports()
	if err != nil {
		return err
	}
	var in drivers.In
	var out drivers.Out
	var model midi.LaunchpadModel
	for _, p := range ins {
		if _, ok := midi.LaunchpadModelOf(p.String()); ok {
			in = p
			break
		}
	}
	for _, p := range outs {
		if m, ok := midi.LaunchpadModelOf(p.String()); ok {
			out, model = p, m
			break
		}
	}
	if out == nil {
		return fmt.Errorf("no Launchpad found")
	}
	fmt.Printf("%s on %s\n", model, out)

	lp, err := midi.NewLaunchpadController(out.String(), model, in, out)
	if err != nil {
		return err
	}
	defer lp.Close()

	th := theme.New(nil)
	states := []struct {
		name  string
		info  looper.LoopInfo
		pulse bool
	}{
		{"ready", looper.LoopInfo{State: looper.LoopStopped, Ready: true}, false},
		{"pulse (stopped)", looper.LoopInfo{State: looper.LoopStopped, Ready: true}, true},
		{"playing", looper.LoopInfo{State: looper.LoopPlaying, Ready: true}, false},
		{"pulse (playing)", looper.LoopInfo{State: looper.LoopPlaying, Ready: true}, true},
		{"recording", looper.LoopInfo{State: looper.LoopRecording}, false},
	}

	// one column per state on the bottom row
	var updates []midi.LEDUpdate
	for col, s := range states {
		ch := midi.ChannelStatic
		if s.info.State == looper.LoopRecording {
			ch = midi.ChannelPulse
		}
		updates = append(updates, midi.LEDUpdate{Row: 0, Col: col, Color: th.LoopRGB(s.info, s.pulse), Channel: ch})
		fmt.Printf("  pad %d: %s\n", col+1, s.name)
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		return err
	}

	fmt.Println("Press Enter to clear...")
	fmt.Scanln()
	return nil
}

func pollDevices() {
	fmt.Println("Watching for controllers. Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dm := midi.NewDeviceManager(nil, true)
	go dm.Run(ctx)

	for ev := range dm.Events() {
		ts := time.Now().Format("15:04:05")
		switch ev.Type {
		case midi.DeviceConnected:
			fmt.Printf("[%s] connected    %s (%s)\n", ts, ev.ID, ev.Controller.Type())
			go func(c midi.Controller) {
				for e := range c.Events() {
					fmt.Printf("           %s: %s\n", c.ID(), e)
				}
			}(ev.Controller)
		case midi.DeviceDisconnected:
			fmt.Printf("[%s] disconnected %s\n", ts, ev.ID)
		}
	}
}
