package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/render"
)

var (
	// ErrModelUnavailable is returned by Start while the detector is loading.
	ErrModelUnavailable = errors.New("detection model not loaded")
	// ErrCameraAccessDenied is returned by Start when the camera cannot be opened.
	ErrCameraAccessDenied = errors.New("camera access denied")
)

// ControllerState is the lifecycle state of a Controller.
type ControllerState int

const (
	StateIdle ControllerState = iota
	StateCapturing
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// Status is the user-facing indicator of a Controller.
type Status struct {
	State            string    `json:"state"`
	Ready            bool      `json:"ready"`
	SessionID        string    `json:"session_id,omitempty"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	Facing           string    `json:"facing"`
	ActiveInstrument string    `json:"active_instrument"`
	Detected         []string  `json:"detected"`
	Frames           uint64    `json:"frames"`
	Message          string    `json:"message"`
	LastError        string    `json:"last_error,omitempty"`
}

// Config holds the collaborators shared by every session.
type Config struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Surface   render.Surface
	Bank      *drum.Bank
	Policy    Policy
	Threshold float64
	Interval  time.Duration
	Facing    capture.Facing
	Logger    *slog.Logger
	Recorder  Recorder
}

// StateListener is called after each lifecycle transition.
type StateListener func(prev, next ControllerState)

// Controller starts, stops and switches capture sessions. At most one
// session runs at a time.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	state  ControllerState
	facing capture.Facing
	cancel context.CancelFunc
	done   chan struct{}
	loop   *Loop

	statusMu  sync.RWMutex
	status    Status
	onFrame   []func(FrameReport)
	listeners []StateListener
}

// NewController creates an idle Controller.
func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	c := &Controller{
		cfg:    cfg,
		logger: cfg.Logger,
		facing: cfg.Facing,
	}
	c.status = Status{
		State:            StateIdle.String(),
		Facing:           cfg.Facing.String(),
		ActiveInstrument: NoInstrument,
		Message:          "idle",
	}
	return c
}

// OnFrame registers f to receive every frame report.
func (c *Controller) OnFrame(f func(FrameReport)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.onFrame = append(c.onFrame, f)
}

// AddStateListener registers l for lifecycle transitions. Listeners run
// with the controller locked and must not call back into it.
func (c *Controller) AddStateListener(l StateListener) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// State returns the lifecycle state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Facing returns the facing mode the next or current session uses.
func (c *Controller) Facing() capture.Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

// Ready reports whether a session can be started.
func (c *Controller) Ready() bool {
	return c.cfg.Detector != nil && c.cfg.Detector.Ready()
}

// Status returns a copy of the status indicator.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	s := c.status
	s.Ready = c.Ready()
	s.Detected = append([]string(nil), c.status.Detected...)
	return s
}

// Start opens the camera and starts the loop. Starting a capturing
// controller is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	if c.state == StateCapturing {
		return nil
	}
	if !c.Ready() {
		c.setStatus(func(s *Status) {
			s.Message = "model is still loading"
			s.LastError = ErrModelUnavailable.Error()
		})
		return ErrModelUnavailable
	}

	if err := c.cfg.Camera.Open(c.facing); err != nil {
		err = fmt.Errorf("%w: %v", ErrCameraAccessDenied, err)
		c.logger.Error("camera open failed", "facing", c.facing.String(), "err", err)
		c.setStatus(func(s *Status) {
			s.Message = "camera unavailable"
			s.LastError = err.Error()
		})
		return err
	}

	id := uuid.NewString()
	started := time.Now()
	loop := NewLoop(LoopConfig{
		Camera:    c.cfg.Camera,
		Detector:  c.cfg.Detector,
		Surface:   c.cfg.Surface,
		Bank:      c.cfg.Bank,
		Policy:    c.cfg.Policy,
		Threshold: c.cfg.Threshold,
		Interval:  c.cfg.Interval,
		Logger:    c.logger.With("session", id),
		Recorder:  c.cfg.Recorder,
		OnFrame:   c.handleFrame,
	}, State{Facing: c.facing, Active: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.loop = loop
	c.cancel = cancel
	c.done = done
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	prev := c.state
	c.state = StateCapturing
	c.setStatus(func(s *Status) {
		s.State = StateCapturing.String()
		s.SessionID = id
		s.StartedAt = started
		s.Facing = c.facing.String()
		s.ActiveInstrument = NoInstrument
		s.Detected = nil
		s.Frames = 0
		s.Message = "capturing"
		s.LastError = ""
	})
	c.logger.Info("session started", "session", id, "facing", c.facing.String())
	c.notify(prev, StateCapturing)
	return nil
}

// Stop halts the loop, waits for it to exit and releases the camera.
// Stopping an idle controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if c.state != StateCapturing {
		return nil
	}

	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
	c.loop = nil

	err := c.cfg.Camera.Close()
	if err != nil {
		c.logger.Warn("camera close failed", "err", err)
	}

	prev := c.state
	c.state = StateIdle
	c.setStatus(func(s *Status) {
		c.logger.Info("session stopped", "session", s.SessionID, "frames", s.Frames)
		s.State = StateIdle.String()
		s.SessionID = ""
		s.StartedAt = time.Time{}
		s.ActiveInstrument = NoInstrument
		s.Detected = nil
		s.Message = "idle"
	})
	c.notify(prev, StateIdle)
	return err
}

// SwitchCamera flips the facing mode. A capturing session is stopped and
// restarted on the other camera; an idle controller only records the new
// preference.
func (c *Controller) SwitchCamera() (capture.Facing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.facing = c.facing.Opposite()
	c.setStatus(func(s *Status) { s.Facing = c.facing.String() })
	c.logger.Info("camera switched", "facing", c.facing.String())

	if c.state != StateCapturing {
		return c.facing, nil
	}
	if err := c.stopLocked(); err != nil {
		c.logger.Warn("stop before switch", "err", err)
	}
	return c.facing, c.startLocked()
}

// SelectionState returns the running loop's selection state, if any.
func (c *Controller) SelectionState() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return State{}, false
	}
	return c.loop.State(), true
}

func (c *Controller) handleFrame(r FrameReport) {
	c.statusMu.Lock()
	c.status.Frames++
	c.status.Detected = r.Detected
	c.status.ActiveInstrument = r.Instrument
	if r.Error != "" {
		c.status.LastError = r.Error
		c.status.Message = "detection error"
	} else if len(r.Detected) == 0 {
		c.status.Message = "no objects detected"
	} else {
		c.status.Message = "capturing"
	}
	hooks := append([]func(FrameReport)(nil), c.onFrame...)
	c.statusMu.Unlock()

	for _, h := range hooks {
		h(r)
	}
}

func (c *Controller) setStatus(f func(*Status)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	f(&c.status)
}

func (c *Controller) notify(prev, next ControllerState) {
	c.statusMu.RLock()
	ls := append([]StateListener(nil), c.listeners...)
	c.statusMu.RUnlock()
	for _, l := range ls {
		l(prev, next)
	}
}
