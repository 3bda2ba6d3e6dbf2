package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// Results can be a fixed list or a per-call script.
type MockDetector struct {
	mu      sync.Mutex
	dets    []Detection
	script  [][]Detection
	err     error
	ready   bool
	calls   int
	onCalls func(n int)
}

// NewMockDetector creates a ready MockDetector that finds nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{ready: true}
}

// SetDetections sets the detections returned by every Detect call.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dets = dets
	m.script = nil
}

// SetScript makes call N return script[N]; once exhausted, later calls
// return nothing.
func (m *MockDetector) SetScript(script [][]Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = script
	m.dets = nil
	m.calls = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetReady controls Ready.
func (m *MockDetector) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// OnCall registers f to be called with the call count after each Detect.
func (m *MockDetector) OnCall(f func(n int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCalls = f
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	hook := m.onCalls
	var dets []Detection
	err := m.err
	switch {
	case err != nil:
	case m.script != nil:
		if n-1 < len(m.script) {
			dets = m.script[n-1]
		}
	default:
		dets = m.dets
	}
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return nil, err
	}
	return dets, nil
}

func (m *MockDetector) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
