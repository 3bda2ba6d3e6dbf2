// Package session runs the detect-and-play loop and owns its lifecycle.
package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/detector"
)

// State is the per-session selection state. It is owned by the loop.
type State struct {
	Facing       capture.Facing
	Active       bool
	CurrentIndex int
	// LastClass is the class that last advanced the index; empty means none.
	LastClass string
}

// Policy picks the instrument to play for a frame. It returns the index and
// the state to carry into the next frame, and does not mutate its input.
type Policy interface {
	Select(dets []detector.Detection, state State) (int, State)
}

// advance moves to the next instrument when candidate differs from the
// last class.
func advance(candidate string, state State, n int) (int, State) {
	if candidate != state.LastClass && n > 0 {
		state.CurrentIndex = (state.CurrentIndex + 1) % n
		state.LastClass = candidate
	}
	return state.CurrentIndex, state
}

// FirstPolicy uses the first qualifying detection.
type FirstPolicy struct {
	N         int
	Threshold float64
}

func (p FirstPolicy) Select(dets []detector.Detection, state State) (int, State) {
	q := detector.Qualifying(dets, p.Threshold)
	if len(q) == 0 {
		return state.CurrentIndex, state
	}
	return advance(q[0].ClassName, state, p.N)
}

// RandomPolicy uses a uniformly random qualifying detection.
type RandomPolicy struct {
	N         int
	Threshold float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPolicy creates a RandomPolicy; a nil src seeds from the clock.
func NewRandomPolicy(n int, threshold float64, src rand.Source) *RandomPolicy {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &RandomPolicy{N: n, Threshold: threshold, rnd: rand.New(src)}
}

func (p *RandomPolicy) Select(dets []detector.Detection, state State) (int, State) {
	q := detector.Qualifying(dets, p.Threshold)
	if len(q) == 0 {
		return state.CurrentIndex, state
	}
	p.mu.Lock()
	i := p.rnd.Intn(len(q))
	p.mu.Unlock()
	return advance(q[i].ClassName, state, p.N)
}

// NewPolicy returns the policy for a selection mode: "random" or anything
// else for first.
func NewPolicy(mode string, n int, threshold float64) Policy {
	if mode == "random" {
		return NewRandomPolicy(n, threshold, nil)
	}
	return FirstPolicy{N: n, Threshold: threshold}
}
