package drum

import (
	"math/rand"
	"sync"
	"time"
)

// Gate decides per selection whether an instrument actually sounds.
// It is a per-voice probabilistic mute, not a rhythm gate.
type Gate struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGate creates a Gate seeded from the clock.
func NewGate() *Gate {
	return NewGateWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewGateWithSource creates a Gate drawing from src. Tests use a fixed seed.
func NewGateWithSource(src rand.Source) *Gate {
	return &Gate{rnd: rand.New(src)}
}

// ShouldPlay draws r uniformly from [0, 100) and reports r > missProbability.
// A miss probability of 100 never plays; 0 always plays.
func (g *Gate) ShouldPlay(missProbability float64) bool {
	if missProbability <= 0 {
		return true
	}
	g.mu.Lock()
	r := g.rnd.Float64() * 100
	g.mu.Unlock()
	return r > missProbability
}
