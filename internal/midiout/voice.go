package midiout

import (
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// DefaultVelocity is the note-on velocity used for every hit.
const DefaultVelocity uint8 = 100

// SendFunc delivers one MIDI message.
type SendFunc func(msg midi.Message) error

// Voice plays one drum note. Trigger sends note-on immediately and
// schedules the matching note-off after the requested duration.
type Voice struct {
	send     SendFunc
	channel  uint8
	note     uint8
	velocity uint8

	// afterFunc is time.AfterFunc; replaced in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewVoice creates a Voice that writes through send.
func NewVoice(send SendFunc, channel, note, velocity uint8) *Voice {
	return &Voice{
		send:      send,
		channel:   channel & 0x0f,
		note:      note & 0x7f,
		velocity:  velocity & 0x7f,
		afterFunc: time.AfterFunc,
	}
}

// Note returns the MIDI key this voice plays.
func (v *Voice) Note() uint8 {
	return v.note
}

// Trigger starts the note and returns without waiting for it to end.
func (v *Voice) Trigger(duration time.Duration) error {
	if err := v.send(midi.NoteOn(v.channel, v.note, v.velocity)); err != nil {
		return err
	}
	v.afterFunc(duration, func() {
		_ = v.send(midi.NoteOff(v.channel, v.note))
	})
	return nil
}
