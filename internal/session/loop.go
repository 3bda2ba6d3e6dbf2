package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/render"
)

// NoInstrument is shown when a frame had nothing to play.
const NoInstrument = "none"

// Recorder receives per-frame counters. metrics.Metrics satisfies it.
type Recorder interface {
	FrameProcessed(qualifying int, latency time.Duration)
	FrameFailed()
	DetectFailed()
	DrumSelected(instrument string, played bool)
}

type nopRecorder struct{}

func (nopRecorder) FrameProcessed(int, time.Duration) {}
func (nopRecorder) FrameFailed()                      {}
func (nopRecorder) DetectFailed()                     {}
func (nopRecorder) DrumSelected(string, bool)         {}

// FrameReport describes one loop iteration.
type FrameReport struct {
	Seq        uint64               `json:"seq"`
	Time       time.Time            `json:"time"`
	Detections []detector.Detection `json:"detections"`
	Detected   []string             `json:"detected"`
	Index      int                  `json:"index"`
	LastClass  string               `json:"last_class,omitempty"`
	Instrument string               `json:"instrument"`
	Played     bool                 `json:"played"`
	Error      string               `json:"error,omitempty"`
}

// LoopConfig holds the collaborators of a Loop.
type LoopConfig struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Surface   render.Surface
	Bank      *drum.Bank
	Policy    Policy
	Threshold float64
	Interval  time.Duration
	Logger    *slog.Logger
	Recorder  Recorder
	// OnFrame, if set, is called from the loop goroutine after each iteration.
	OnFrame func(FrameReport)
}

// Loop reads, detects, draws, selects and plays, once per tick.
type Loop struct {
	cfg LoopConfig

	mu    sync.Mutex
	state State
	seq   uint64
}

// NewLoop creates a loop starting from initial.
func NewLoop(cfg LoopConfig, initial State) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = detector.DefaultScoreThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / time.Duration(capture.DefaultFPS)
	}
	if cfg.Policy == nil {
		cfg.Policy = FirstPolicy{N: cfg.Bank.Len(), Threshold: cfg.Threshold}
	}
	return &Loop{cfg: cfg, state: initial}
}

// State returns a copy of the current selection state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Run ticks until ctx is cancelled, then clears the surface. The
// cancellation check comes first in every iteration so a pending tick never
// runs after stop.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	defer l.cfg.Surface.Clear()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		report, err := l.Step(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.cfg.Logger.Warn("frame skipped", "err", err)
		}
		if l.cfg.OnFrame != nil {
			l.cfg.OnFrame(report)
		}
	}
}

// Step runs one iteration. Camera and detection failures are returned and
// also recorded in the report; the caller keeps looping.
func (l *Loop) Step(ctx context.Context) (FrameReport, error) {
	l.mu.Lock()
	l.seq++
	report := FrameReport{Seq: l.seq, Time: time.Now(), Index: l.state.CurrentIndex, LastClass: l.state.LastClass, Instrument: NoInstrument}
	l.mu.Unlock()

	frame, err := l.cfg.Camera.ReadFrame()
	if err != nil {
		l.cfg.Recorder.FrameFailed()
		err = fmt.Errorf("read frame: %w", err)
		report.Error = err.Error()
		return report, err
	}
	defer frame.Close()

	start := time.Now()
	dets, err := l.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		l.cfg.Recorder.DetectFailed()
		err = fmt.Errorf("detect: %w", err)
		report.Error = err.Error()
		return report, err
	}

	qualifying := detector.Qualifying(dets, l.cfg.Threshold)
	l.cfg.Recorder.FrameProcessed(len(qualifying), time.Since(start))

	l.cfg.Surface.DrawFrame(frame)
	for _, d := range qualifying {
		l.cfg.Surface.DrawBox(d.Box.X, d.Box.Y, d.Box.W, d.Box.H, d.ClassName)
	}
	if err := l.cfg.Surface.Commit(); err != nil {
		l.cfg.Logger.Debug("overlay commit failed", "err", err)
	}

	l.mu.Lock()
	index, next := l.cfg.Policy.Select(qualifying, l.state)
	l.state = next
	l.mu.Unlock()

	report.Detections = qualifying
	report.Detected = detector.ClassNames(qualifying)
	report.Index = index
	report.LastClass = next.LastClass

	if len(qualifying) == 0 {
		return report, nil
	}

	name, err := l.cfg.Bank.Name(index)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	report.Instrument = name

	played, err := l.cfg.Bank.Trigger(index)
	l.cfg.Recorder.DrumSelected(name, played)
	report.Played = played
	if err != nil {
		// Sound output failure does not stop the loop.
		l.cfg.Logger.Warn("drum trigger failed", "instrument", name, "err", err)
		report.Error = err.Error()
	}
	l.cfg.Logger.Debug("drum selected", "objects", report.Detected, "instrument", name, "played", played)

	return report, nil
}
