// Package config holds runtime configuration for drumcam.
// Values are loaded from a JSON file and may be overridden by command-line flags.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Selection modes for choosing which detection drives the drum cycle.
const (
	SelectionFirst  = "first"
	SelectionRandom = "random"
)

// Default values.
const (
	DefaultAddr           = ":8080"
	DefaultFPS            = 15
	DefaultWidth          = 1280
	DefaultHeight         = 720
	DefaultScoreThreshold = 0.66
	DefaultMIDIChannel    = 9 // GM percussion (channel 10, zero-based)
	DefaultKit            = "gm"
	DefaultNoteDuration   = 250 * time.Millisecond
	DefaultLogLevel       = "info"
)

// Config holds runtime configuration.
type Config struct {
	Addr      string `json:"addr"`
	DataDir   string `json:"data_dir"`
	StaticDir string `json:"static_dir"`

	// Camera
	FrontDeviceID int `json:"front_device_id"`
	RearDeviceID  int `json:"rear_device_id"`
	FPS           int `json:"fps"`
	Width         int `json:"width"`
	Height        int `json:"height"`

	// Detection
	ScoreThreshold    float64 `json:"score_threshold"`
	Selection         string  `json:"selection"`
	ModelPath         string  `json:"model_path"`
	ModelConfigPath   string  `json:"model_config_path"`
	LabelsPath        string  `json:"labels_path"`
	RemoteDetectorURL string  `json:"remote_detector_url"`

	// Drums
	MIDIPort     string   `json:"midi_port"`
	MIDIChannel  int      `json:"midi_channel"`
	Kit          string   `json:"kit"`
	NoteDuration Duration `json:"note_duration"`

	LogLevel string `json:"log_level"`
	Tray     bool   `json:"tray"`
}

// Duration is a time.Duration that reads and writes as a string ("250ms").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are read as milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms float64
		if err := json.Unmarshal(b, &ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultDataDir returns ~/.drumcam, or ".drumcam" if the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drumcam"
	}
	return filepath.Join(home, ".drumcam")
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		Addr:           DefaultAddr,
		DataDir:        DefaultDataDir(),
		FrontDeviceID:  0,
		RearDeviceID:   1,
		FPS:            DefaultFPS,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		ScoreThreshold: DefaultScoreThreshold,
		Selection:      SelectionFirst,
		MIDIChannel:    DefaultMIDIChannel,
		Kit:            DefaultKit,
		NoteDuration:   Duration(DefaultNoteDuration),
		LogLevel:       DefaultLogLevel,
	}
}

// Normalize clamps out-of-range values back to their defaults.
func (c *Config) Normalize() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.ScoreThreshold <= 0 || c.ScoreThreshold >= 1 {
		c.ScoreThreshold = DefaultScoreThreshold
	}
	if c.Selection != SelectionFirst && c.Selection != SelectionRandom {
		c.Selection = SelectionFirst
	}
	if c.MIDIChannel < 0 || c.MIDIChannel > 15 {
		c.MIDIChannel = DefaultMIDIChannel
	}
	if c.Kit == "" {
		c.Kit = DefaultKit
	}
	if c.NoteDuration <= 0 {
		c.NoteDuration = Duration(DefaultNoteDuration)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = DefaultLogLevel
	}
}

// FrameInterval returns the delay between loop iterations for the configured FPS.
func (c *Config) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / DefaultFPS
	}
	return time.Second / time.Duration(c.FPS)
}

// DBPath returns the SQLite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "drumcam.db")
}

// Load reads configuration from the given JSON file. A missing file yields
// Default(). On a decode error the defaults are returned along with the error.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return Default(), err
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the configuration to path as indented JSON. The file is
// replaced only once it has been fully written.
func (c *Config) Save(path string) error {
	c.Normalize()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
