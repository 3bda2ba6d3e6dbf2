package midiout

import (
	"sort"

	"github.com/ayusman/drumcam/internal/drum"
)

// Kit maps drum voice names to MIDI notes on the percussion channel.
type Kit struct {
	Name  string
	Notes map[string]uint8
}

// Kits are the supported note mappings. The General MIDI kit puts kick on
// C2 and tom on G2.
var Kits = map[string]Kit{
	"gm": {
		Name: "General MIDI",
		Notes: map[string]uint8{
			drum.Kick:  36,
			drum.Snare: 38,
			drum.HiHat: 42,
			drum.Tom:   43,
		},
	},
	"rd8": {
		Name: "Behringer RD-8",
		Notes: map[string]uint8{
			drum.Kick:  36,
			drum.Snare: 40, // RD-8 snare is on 40
			drum.HiHat: 42,
			drum.Tom:   48,
		},
	},
	"tr8s": {
		Name: "Roland TR-8S",
		Notes: map[string]uint8{
			drum.Kick:  36,
			drum.Snare: 38,
			drum.HiHat: 42,
			drum.Tom:   43,
		},
	},
}

// KitNames returns the available kit names, sorted.
func KitNames() []string {
	names := make([]string, 0, len(Kits))
	for name := range Kits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetKit returns a kit by name, falling back to General MIDI.
func GetKit(name string) Kit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits["gm"]
}
