package drum

import (
	"log/slog"
	"time"
)

// LogVoice stands in for a sound device: each hit is logged.
// Used when no MIDI output is available.
type LogVoice struct {
	name   string
	logger *slog.Logger
}

// NewLogVoice creates a LogVoice for the named instrument.
func NewLogVoice(name string, logger *slog.Logger) *LogVoice {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogVoice{name: name, logger: logger}
}

// Trigger logs the hit.
func (v *LogVoice) Trigger(duration time.Duration) error {
	v.logger.Info("drum hit", "instrument", v.name, "duration", duration)
	return nil
}

// VoiceFunc adapts a function to the Voice interface.
type VoiceFunc func(duration time.Duration) error

// Trigger calls f.
func (f VoiceFunc) Trigger(duration time.Duration) error {
	return f(duration)
}
