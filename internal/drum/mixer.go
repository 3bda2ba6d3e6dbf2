package drum

import "sync"

// Mixer is the part-select plus single-slider control: one part is selected
// at a time and the slider edits that part's miss probability.
type Mixer struct {
	bank     *Bank
	mu       sync.Mutex
	selected string
}

// NewMixer creates a Mixer with the first instrument selected.
func NewMixer(bank *Bank) *Mixer {
	m := &Mixer{bank: bank}
	if name, err := bank.Name(0); err == nil {
		m.selected = name
	}
	return m
}

// Selected returns the selected part and its current value.
func (m *Mixer) Selected() (Info, error) {
	m.mu.Lock()
	name := m.selected
	m.mu.Unlock()

	i, err := m.bank.Index(name)
	if err != nil {
		return Info{}, err
	}
	v, err := m.bank.MissProbability(i)
	if err != nil {
		return Info{}, err
	}
	return Info{Index: i, Name: name, MissProbability: v}, nil
}

// Select makes name the selected part and returns its value for the slider.
func (m *Mixer) Select(name string) (Info, error) {
	if _, err := m.bank.Index(name); err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	m.selected = name
	m.mu.Unlock()
	return m.Selected()
}

// Set stores value for the selected part and returns the new setting.
func (m *Mixer) Set(value float64) (Info, error) {
	m.mu.Lock()
	name := m.selected
	m.mu.Unlock()
	return m.bank.SetMissProbabilityByName(name, value)
}
