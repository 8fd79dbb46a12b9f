package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go-looper/looper"
	"go-looper/midi"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX    ControllerType = "launchpad-x"
	ControllerLaunchpadMini ControllerType = "launchpad-mini"
	ControllerLaunchpadPro  ControllerType = "launchpad-pro"
	ControllerKeyboard      ControllerType = "keyboard"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName     string         `json:"portName"`
	Type         ControllerType `json:"type"`
	AutoConnect  bool           `json:"autoConnect"`
	InputChannel int            `json:"inputChannel,omitempty"` // 1-16, 0 = omni
}

// AudioConfig selects the audio backend and stream format.
type AudioConfig struct {
	Backend        string  `json:"backend,omitempty"` // portaudio, oto, none
	SampleRate     int     `json:"sampleRate,omitempty"`
	BlockSize      int     `json:"blockSize,omitempty"`
	MaxLoopSeconds float64 `json:"maxLoopSeconds,omitempty"`
}

// LooperConfig holds policies the looper is created with.
type LooperConfig struct {
	Resume        string         `json:"resume,omitempty"`  // reset, retain
	Promote       string         `json:"promote,omitempty"` // never, longer
	QueueSize     int            `json:"queueSize,omitempty"`
	RecordingsDir string         `json:"recordingsDir,omitempty"`
	CCMap         map[int]string `json:"ccMap,omitempty"`
}

// MIDIConfig routes controller changes the looper does not handle.
type MIDIConfig struct {
	ThruPort string `json:"thruPort,omitempty"`
	// PadBaseNote is the loop note of the bottom-left Launchpad pad.
	PadBaseNote int `json:"padBaseNote,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette     string `json:"palette,omitempty"`
	LastSession string `json:"lastSession,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Controllers []ControllerConfig `json:"controllers,omitempty"`
	Audio       AudioConfig        `json:"audio,omitempty"`
	Looper      LooperConfig       `json:"looper,omitempty"`
	MIDI        MIDIConfig         `json:"midi,omitempty"`
	UI          UIConfig           `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
		Audio: AudioConfig{
			Backend:        "portaudio",
			SampleRate:     48000,
			BlockSize:      256,
			MaxLoopSeconds: 30,
		},
		Looper: LooperConfig{
			Resume:  "reset",
			Promote: "never",
		},
		MIDI: MIDIConfig{
			PadBaseNote: 36,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-looper"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// SessionsDir is where named session snapshots and backups live.
func SessionsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Missing fields keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LooperConfig converts the stored settings into a looper.Config.
func (c *Config) LooperConfig() (looper.Config, error) {
	lc := looper.DefaultConfig()
	if c.Audio.SampleRate > 0 {
		lc.SampleRate = c.Audio.SampleRate
	}
	if c.Audio.BlockSize > 0 {
		lc.BlockSize = c.Audio.BlockSize
	}
	if c.Audio.MaxLoopSeconds > 0 {
		lc.MaxLoopSeconds = c.Audio.MaxLoopSeconds
	}
	if c.Looper.QueueSize > 0 {
		lc.QueueSize = c.Looper.QueueSize
	}
	if c.Looper.RecordingsDir != "" {
		lc.RecordingsDir = c.Looper.RecordingsDir
	}

	resume, ok := looper.ParseResumePolicy(c.Looper.Resume)
	if !ok {
		return lc, errors.Errorf("unknown resume policy %q", c.Looper.Resume)
	}
	lc.Resume = resume
	promote, ok := looper.ParsePromotePolicy(c.Looper.Promote)
	if !ok {
		return lc, errors.Errorf("unknown promote policy %q", c.Looper.Promote)
	}
	lc.Promote = promote
	return lc, nil
}

// CCMap returns the controller table: the defaults with any overrides
// applied. An override of "none" unbinds a controller.
func (c *Config) CCMap() (map[int]looper.CCAction, error) {
	m := looper.DefaultCCMap()
	for cc, name := range c.Looper.CCMap {
		if cc < 0 || cc > 127 {
			return nil, errors.Errorf("ccMap: controller %d out of range", cc)
		}
		a, ok := looper.ParseCCAction(name)
		if !ok {
			return nil, errors.Errorf("ccMap: unknown action %q for CC%d", name, cc)
		}
		if a == looper.CCNone {
			delete(m, cc)
			continue
		}
		m[cc] = a
	}
	return m, nil
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}

// PortRules turns the auto-connect controllers into device manager rules.
func (c *Config) PortRules() []midi.PortRule {
	var rules []midi.PortRule
	for _, ctrl := range c.AutoConnectControllers() {
		r := midi.PortRule{Name: ctrl.PortName, Kind: midi.ControllerLaunchpad}
		switch ctrl.Type {
		case ControllerKeyboard:
			r.Kind = midi.ControllerKeyboard
			r.Channel = ctrl.InputChannel
		case ControllerLaunchpadMini:
			r.Model = midi.LaunchpadMini
		case ControllerLaunchpadPro:
			r.Model = midi.LaunchpadPro
		default:
			r.Model = midi.LaunchpadX
		}
		rules = append(rules, r)
	}
	return rules
}

// SessionInfo represents a saved session file (for listing)
type SessionInfo struct {
	Filename   string
	Name       string
	ActiveOnly bool
	Backup     bool
	Modified   time.Time
}

// ListSessions returns the snapshots in dir, newest first.
func ListSessions(dir string) ([]SessionInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionInfo{}, nil
		}
		return nil, err
	}

	var sessions []SessionInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		sessions = append(sessions, SessionInfo{
			Filename:   name,
			Name:       strings.TrimSuffix(base, "_active"),
			ActiveOnly: strings.HasSuffix(base, "_active"),
			Backup:     strings.HasPrefix(base, "looper_backup_"),
			Modified:   info.ModTime(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Modified.After(sessions[j].Modified)
	})
	return sessions, nil
}

// ParseCCFlag parses "74=speed" style overrides from the command line.
func ParseCCFlag(s string) (int, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return 0, "", errors.Errorf("cc override %q: want CC=action", s)
	}
	cc, err := strconv.Atoi(strings.TrimSpace(k))
	if err != nil {
		return 0, "", errors.Wrapf(err, "cc override %q", s)
	}
	return cc, strings.TrimSpace(v), nil
}
