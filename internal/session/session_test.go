package session

import (
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSurface records draw calls.
type fakeSurface struct {
	mu      sync.Mutex
	clears  int
	frames  int
	boxes   []string
	commits int
}

func (s *fakeSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.boxes = nil
}

func (s *fakeSurface) DrawFrame(*gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.boxes = nil
}

func (s *fakeSurface) DrawBox(x, y, w, h float64, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = append(s.boxes, label)
}

func (s *fakeSurface) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return nil
}

func (s *fakeSurface) snapshot() (clears, frames, commits int, boxes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears, s.frames, s.commits, append([]string(nil), s.boxes...)
}

// countingVoice counts triggers.
type countingVoice struct {
	mu   sync.Mutex
	hits int
}

func (v *countingVoice) Trigger(time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hits++
	return nil
}

func (v *countingVoice) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hits
}

type fixture struct {
	camera   *capture.MockCamera
	detector *detector.MockDetector
	surface  *fakeSurface
	voices   []*countingVoice
	bank     *drum.Bank
	frame    gocv.Mat
}

func newFixture(t *testing.T, miss float64) *fixture {
	t.Helper()
	f := &fixture{
		detector: detector.NewMockDetector(),
		surface:  &fakeSurface{},
		frame:    gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3),
	}
	t.Cleanup(func() { f.frame.Close() })
	f.camera = capture.NewMockCamera([]*gocv.Mat{&f.frame}, true)

	instruments := make([]drum.Instrument, len(drum.Names))
	for i, name := range drum.Names {
		v := &countingVoice{}
		f.voices = append(f.voices, v)
		instruments[i] = drum.Instrument{Name: name, MissProbability: miss, Voice: v}
	}
	f.bank = drum.NewBank(instruments, drum.NewGateWithSource(rand.NewSource(1)), 10*time.Millisecond, discardLogger)
	return f
}

func (f *fixture) loop() *Loop {
	return NewLoop(LoopConfig{
		Camera:   f.camera,
		Detector: f.detector,
		Surface:  f.surface,
		Bank:     f.bank,
		Logger:   discardLogger,
	}, State{Active: true})
}

func (f *fixture) controller(interval time.Duration) *Controller {
	return NewController(Config{
		Camera:   f.camera,
		Detector: f.detector,
		Surface:  f.surface,
		Bank:     f.bank,
		Interval: interval,
		Logger:   discardLogger,
	})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
