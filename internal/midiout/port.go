// Package midiout sends drum hits to a MIDI output port.
package midiout

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ErrNoOutput is returned when no usable output port is found.
var ErrNoOutput = errors.New("no midi output")

// excludedPatterns are virtual ports never picked automatically.
var excludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

// Port is an open MIDI output.
type Port struct {
	mu     sync.Mutex
	drv    *rtmididrv.Driver
	out    drivers.Out
	send   func(msg midi.Message) error
	name   string
	logger *slog.Logger
}

// Open initialises the rtmidi driver and opens the first output whose name
// contains pattern (case-insensitive). An empty pattern picks the first
// non-virtual output.
func Open(pattern string, logger *slog.Logger) (*Port, error) {
	if logger == nil {
		logger = slog.Default()
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list outputs: %w", err)
	}

	names := make([]string, 0, len(outs))
	for _, o := range outs {
		names = append(names, o.String())
	}
	logger.Debug("midi: outputs found", "count", len(names), "devices", strings.Join(names, ", "))

	idx := pickOutput(names, pattern)
	if idx < 0 {
		drv.Close()
		return nil, fmt.Errorf("%w: pattern %q", ErrNoOutput, pattern)
	}
	out := outs[idx]
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", out.String(), err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		_ = out.Close()
		drv.Close()
		return nil, fmt.Errorf("send to %q: %w", out.String(), err)
	}

	logger.Info("midi: output connected", "device", out.String())
	return &Port{drv: drv, out: out, send: send, name: out.String(), logger: logger}, nil
}

// Name returns the connected device name.
func (p *Port) Name() string {
	return p.name
}

// Send writes msg to the port. It is safe for concurrent use.
func (p *Port) Send(msg midi.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.send == nil {
		return ErrNoOutput
	}
	return p.send(msg)
}

// Close releases the port and the driver.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.out != nil {
		err = p.out.Close()
		p.out = nil
	}
	p.send = nil
	if p.drv != nil {
		p.drv.Close()
		p.drv = nil
	}
	return err
}

// Voices builds one Voice per instrument name from kit, sending on channel.
// Names missing from the kit are skipped.
func (p *Port) Voices(kit Kit, channel uint8, names []string) map[string]*Voice {
	return NewVoices(p.Send, kit, channel, names)
}

// NewVoices builds one Voice per instrument name that the kit maps.
func NewVoices(send SendFunc, kit Kit, channel uint8, names []string) map[string]*Voice {
	voices := make(map[string]*Voice, len(names))
	for _, name := range names {
		note, ok := kit.Notes[name]
		if !ok {
			continue
		}
		voices[name] = NewVoice(send, channel, note, DefaultVelocity)
	}
	return voices
}

// pickOutput returns the index of the preferred output name, or -1.
func pickOutput(names []string, pattern string) int {
	for i, name := range names {
		if isExcluded(name) {
			continue
		}
		if pattern == "" || containsCI(name, pattern) {
			return i
		}
	}
	return -1
}

func isExcluded(name string) bool {
	for _, pat := range excludedPatterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
