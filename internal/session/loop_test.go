package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLoop_StepTriggersSelectedInstrument(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.Open(0)
	f.detector.SetDetections([]detector.Detection{
		{ClassName: "person", Score: 0.9, Box: detector.Box{X: 1, Y: 2, W: 3, H: 4}},
		{ClassName: "dog", Score: 0.3},
	})
	l := f.loop()

	report, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if report.Index != 1 || report.Instrument != drum.Snare {
		t.Errorf("report = index %d instrument %q, want 1 snare", report.Index, report.Instrument)
	}
	if !report.Played {
		t.Error("expected snare to play with miss probability 0")
	}
	if f.voices[1].count() != 1 {
		t.Errorf("snare hits = %d, want 1", f.voices[1].count())
	}
	if len(report.Detected) != 1 || report.Detected[0] != "person" {
		t.Errorf("detected = %v, want [person]", report.Detected)
	}

	_, frames, commits, boxes := f.surface.snapshot()
	if frames != 1 || commits != 1 {
		t.Errorf("surface frames=%d commits=%d, want 1 and 1", frames, commits)
	}
	if len(boxes) != 1 || boxes[0] != "person" {
		t.Errorf("boxes = %v, want only the qualifying detection", boxes)
	}
}

func TestLoop_SameClassKeepsPlayingSameInstrument(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.Open(0)
	f.detector.SetDetections([]detector.Detection{{ClassName: "cup", Score: 0.8}})
	l := f.loop()

	for i := 0; i < 3; i++ {
		if _, err := l.Step(context.Background()); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}

	if got := f.voices[1].count(); got != 3 {
		t.Errorf("snare hits = %d, want 3", got)
	}
	if state := l.State(); state.CurrentIndex != 1 || state.LastClass != "cup" {
		t.Errorf("state = %+v, want index 1 last cup", state)
	}
}

func TestLoop_NoQualifyingSetsNone(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.Open(0)
	f.detector.SetDetections([]detector.Detection{{ClassName: "cup", Score: 0.5}})
	l := f.loop()

	report, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if report.Instrument != NoInstrument {
		t.Errorf("instrument = %q, want %q", report.Instrument, NoInstrument)
	}
	for i, v := range f.voices {
		if v.count() != 0 {
			t.Errorf("voice %d triggered with no qualifying detections", i)
		}
	}
	// The frame is still drawn.
	if _, frames, _, _ := f.surface.snapshot(); frames != 1 {
		t.Errorf("frames drawn = %d, want 1", frames)
	}
}

func TestLoop_DetectFailureSkipsFrame(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.Open(0)
	f.detector.SetError(errors.New("inference failed"))
	m := metrics.New()
	l := NewLoop(LoopConfig{
		Camera:   f.camera,
		Detector: f.detector,
		Surface:  f.surface,
		Bank:     f.bank,
		Logger:   discardLogger,
		Recorder: m,
	}, State{})

	report, err := l.Step(context.Background())
	if err == nil {
		t.Fatal("expected detect error")
	}
	if report.Error == "" {
		t.Error("report should carry the error")
	}
	if _, frames, commits, _ := f.surface.snapshot(); frames != 0 || commits != 0 {
		t.Errorf("surface drawn on failed frame: frames=%d commits=%d", frames, commits)
	}
	if m.DetectErrors.Load() != 1 {
		t.Errorf("DetectErrors = %d, want 1", m.DetectErrors.Load())
	}
}

func TestLoop_RunContinuesAfterDetectFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.Open(0)
	f.detector.SetError(errors.New("transient"))
	f.detector.OnCall(func(n int) {
		if n == 2 {
			f.detector.SetError(nil)
		}
	})
	f.detector.SetDetections([]detector.Detection{{ClassName: "cup", Score: 0.9}})

	reports := make(chan FrameReport, 64)
	l := NewLoop(LoopConfig{
		Camera:   f.camera,
		Detector: f.detector,
		Surface:  f.surface,
		Bank:     f.bank,
		Interval: time.Millisecond,
		Logger:   discardLogger,
		OnFrame: func(r FrameReport) {
			select {
			case reports <- r:
			default:
			}
		},
	}, State{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	var sawError, sawPlay bool
	deadline := time.After(2 * time.Second)
	for !(sawError && sawPlay) {
		select {
		case r := <-reports:
			if r.Error != "" {
				sawError = true
			}
			if r.Played {
				sawPlay = true
			}
		case <-deadline:
			t.Fatalf("loop did not recover: sawError=%v sawPlay=%v", sawError, sawPlay)
		}
	}

	cancel()
	<-done

	if clears, _, _, _ := f.surface.snapshot(); clears != 1 {
		t.Errorf("surface clears on stop = %d, want 1", clears)
	}
}

func TestLoop_RunStopsWithoutFurtherFrames(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.Open(0)
	l := NewLoop(LoopConfig{
		Camera:   f.camera,
		Detector: f.detector,
		Surface:  f.surface,
		Bank:     f.bank,
		Interval: time.Millisecond,
		Logger:   discardLogger,
	}, State{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	waitFor(t, func() bool { return f.detector.Calls() >= 3 })
	cancel()
	<-done

	calls := f.detector.Calls()
	time.Sleep(20 * time.Millisecond)
	if f.detector.Calls() != calls {
		t.Error("detector called after loop stopped")
	}
}

func TestLoop_RecordsMutedHits(t *testing.T) {
	f := newFixture(t, 100)
	f.camera.Open(0)
	f.detector.SetDetections([]detector.Detection{{ClassName: "cup", Score: 0.9}})
	m := metrics.New()
	l := NewLoop(LoopConfig{
		Camera:   f.camera,
		Detector: f.detector,
		Surface:  f.surface,
		Bank:     f.bank,
		Logger:   discardLogger,
		Recorder: m,
	}, State{})

	report, _ := l.Step(context.Background())
	if report.Played {
		t.Error("instrument at miss probability 100 played")
	}
	if got := testutil.ToFloat64(m.Hits().WithLabelValues(drum.Snare, "muted")); got != 1 {
		t.Errorf("muted snare count = %v, want 1", got)
	}
}
