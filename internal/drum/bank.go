// Package drum holds the drum voices and the probabilistic gate that decides
// whether a selected voice sounds.
package drum

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Standard voice names, in round-robin order.
const (
	Kick  = "kick"
	Snare = "snare"
	HiHat = "hi-hat"
	Tom   = "tom"
)

// Names lists the standard kit in cycling order.
var Names = []string{Kick, Snare, HiHat, Tom}

// Miss probability bounds.
const (
	MinMissProbability = 0.0
	MaxMissProbability = 100.0
)

// ErrUnknownInstrument is returned for an out-of-range index or unknown name.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Voice is the sound collaborator for one instrument. Trigger is
// fire-and-forget: it starts the sound and returns.
type Voice interface {
	Trigger(duration time.Duration) error
}

// Instrument is one drum voice with its miss probability.
type Instrument struct {
	Name            string
	MissProbability float64
	Voice           Voice
}

// Info is a read-only view of an instrument for UIs.
type Info struct {
	Index           int     `json:"index"`
	Name            string  `json:"name"`
	MissProbability float64 `json:"miss_probability"`
}

// Bank holds the instruments a session cycles through.
type Bank struct {
	mu          sync.RWMutex
	instruments []Instrument
	gate        *Gate
	duration    time.Duration
	logger      *slog.Logger
}

// NewBank creates a Bank. Each instrument's miss probability is clamped.
func NewBank(instruments []Instrument, gate *Gate, duration time.Duration, logger *slog.Logger) *Bank {
	if gate == nil {
		gate = NewGate()
	}
	if logger == nil {
		logger = slog.Default()
	}
	list := make([]Instrument, len(instruments))
	for i, inst := range instruments {
		inst.MissProbability = Clamp(inst.MissProbability)
		list[i] = inst
	}
	return &Bank{
		instruments: list,
		gate:        gate,
		duration:    duration,
		logger:      logger,
	}
}

// Clamp limits v to [0, 100].
func Clamp(v float64) float64 {
	if v < MinMissProbability {
		return MinMissProbability
	}
	if v > MaxMissProbability {
		return MaxMissProbability
	}
	return v
}

// Len returns the number of instruments.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.instruments)
}

// Name returns the name of the instrument at index i.
func (b *Bank) Name(i int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.instruments) {
		return "", fmt.Errorf("%w: index %d", ErrUnknownInstrument, i)
	}
	return b.instruments[i].Name, nil
}

// Index returns the position of the named instrument.
func (b *Bank) Index(name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, inst := range b.instruments {
		if inst.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
}

// Trigger sounds instrument i exactly once if the gate lets it through.
// It reports whether the voice was triggered.
func (b *Bank) Trigger(i int) (bool, error) {
	b.mu.RLock()
	if i < 0 || i >= len(b.instruments) {
		b.mu.RUnlock()
		return false, fmt.Errorf("%w: index %d", ErrUnknownInstrument, i)
	}
	inst := b.instruments[i]
	b.mu.RUnlock()

	if !b.gate.ShouldPlay(inst.MissProbability) {
		b.logger.Debug("drum muted", "instrument", inst.Name, "miss_probability", inst.MissProbability)
		return false, nil
	}
	if inst.Voice == nil {
		return false, nil
	}
	if err := inst.Voice.Trigger(b.duration); err != nil {
		return false, fmt.Errorf("trigger %s: %w", inst.Name, err)
	}
	return true, nil
}

// SetMissProbability clamps v, stores it for instrument i and returns the
// stored value. It affects the next gate evaluation only.
func (b *Bank) SetMissProbability(i int, v float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.instruments) {
		return 0, fmt.Errorf("%w: index %d", ErrUnknownInstrument, i)
	}
	v = Clamp(v)
	b.instruments[i].MissProbability = v
	return v, nil
}

// SetMissProbabilityByName is SetMissProbability keyed by instrument name.
func (b *Bank) SetMissProbabilityByName(name string, v float64) (Info, error) {
	i, err := b.Index(name)
	if err != nil {
		return Info{}, err
	}
	stored, err := b.SetMissProbability(i, v)
	if err != nil {
		return Info{}, err
	}
	return Info{Index: i, Name: name, MissProbability: stored}, nil
}

// MissProbability returns the stored value for instrument i.
func (b *Bank) MissProbability(i int) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.instruments) {
		return 0, fmt.Errorf("%w: index %d", ErrUnknownInstrument, i)
	}
	return b.instruments[i].MissProbability, nil
}

// Snapshot returns the current instrument settings.
func (b *Bank) Snapshot() []Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Info, len(b.instruments))
	for i, inst := range b.instruments {
		out[i] = Info{Index: i, Name: inst.Name, MissProbability: inst.MissProbability}
	}
	return out
}

// Apply sets miss probabilities from a name-keyed map, ignoring unknown names.
func (b *Bank) Apply(settings map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.instruments {
		if v, ok := settings[b.instruments[i].Name]; ok {
			b.instruments[i].MissProbability = Clamp(v)
		}
	}
}
