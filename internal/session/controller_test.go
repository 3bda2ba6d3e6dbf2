package session

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/detector"
)

func TestControllerState_String(t *testing.T) {
	tests := []struct {
		state ControllerState
		want  string
	}{
		{StateIdle, "idle"},
		{StateCapturing, "capturing"},
		{ControllerState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestController_StartRequiresReadyDetector(t *testing.T) {
	f := newFixture(t, 0)
	f.detector.SetReady(false)
	c := f.controller(time.Millisecond)

	err := c.Start()
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("Start() error = %v, want ErrModelUnavailable", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if f.camera.IsOpen() {
		t.Error("camera opened while model unavailable")
	}
	if st := c.Status(); st.Ready || st.LastError == "" {
		t.Errorf("status = %+v, want not ready with error", st)
	}
}

func TestController_StartCameraDenied(t *testing.T) {
	f := newFixture(t, 0)
	f.camera.SetOpenError(errors.New("permission denied"))
	c := f.controller(time.Millisecond)

	err := c.Start()
	if !errors.Is(err, ErrCameraAccessDenied) {
		t.Fatalf("Start() error = %v, want ErrCameraAccessDenied", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if c.Status().Message != "camera unavailable" {
		t.Errorf("message = %q", c.Status().Message)
	}
}

func TestController_StartStop(t *testing.T) {
	f := newFixture(t, 0)
	f.detector.SetDetections([]detector.Detection{{ClassName: "cup", Score: 0.9}})
	c := f.controller(time.Millisecond)

	var transitions []string
	c.AddStateListener(func(prev, next ControllerState) {
		transitions = append(transitions, prev.String()+">"+next.String())
	})

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if c.State() != StateCapturing {
		t.Fatalf("state = %v, want capturing", c.State())
	}
	if !f.camera.IsOpen() {
		t.Error("camera not open after Start")
	}
	sessionID := c.Status().SessionID
	if sessionID == "" {
		t.Error("session ID not set")
	}

	// A second Start is a no-op and keeps the session.
	if err := c.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if c.Status().SessionID != sessionID {
		t.Error("second Start replaced the session")
	}

	waitFor(t, func() bool { return f.voices[1].count() > 0 })
	waitFor(t, func() bool { return c.Status().ActiveInstrument == "snare" })
	if got := c.Status().Detected; len(got) != 1 || got[0] != "cup" {
		t.Errorf("detected = %v, want [cup]", got)
	}
	if sel, ok := c.SelectionState(); !ok || sel.LastClass != "cup" || !sel.Active {
		t.Errorf("SelectionState() = %+v, %v; want last class cup", sel, ok)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if f.camera.IsOpen() {
		t.Error("camera still open after Stop")
	}
	if _, ok := c.SelectionState(); ok {
		t.Error("SelectionState() reported a loop after Stop")
	}
	if clears, _, _, _ := f.surface.snapshot(); clears != 1 {
		t.Errorf("surface clears = %d, want 1", clears)
	}
	st := c.Status()
	if st.ActiveInstrument != NoInstrument || st.SessionID != "" || len(st.Detected) != 0 {
		t.Errorf("status after stop = %+v", st)
	}

	calls := f.detector.Calls()
	time.Sleep(20 * time.Millisecond)
	if f.detector.Calls() != calls {
		t.Error("loop kept running after Stop")
	}

	want := []string{"idle>capturing", "capturing>idle"}
	if len(transitions) != len(want) || transitions[0] != want[0] || transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestController_StopWhenIdleIsNoop(t *testing.T) {
	f := newFixture(t, 0)
	c := f.controller(time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := c.Stop(); err != nil {
			t.Fatalf("Stop() on idle controller error = %v", err)
		}
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if clears, _, _, _ := f.surface.snapshot(); clears != 0 {
		t.Errorf("idle Stop touched the surface: clears = %d", clears)
	}
}

func TestController_SwitchCameraWhileCapturing(t *testing.T) {
	f := newFixture(t, 0)
	c := f.controller(time.Millisecond)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := c.Status().SessionID

	facing, err := c.SwitchCamera()
	if err != nil {
		t.Fatalf("SwitchCamera() error = %v", err)
	}
	if facing != capture.FacingRear {
		t.Errorf("facing = %v, want rear", facing)
	}
	if c.State() != StateCapturing {
		t.Errorf("state = %v, want capturing", c.State())
	}
	if f.camera.Facing() != capture.FacingRear {
		t.Errorf("camera facing = %v, want rear", f.camera.Facing())
	}
	if c.Status().SessionID == first {
		t.Error("switch should start a new session")
	}

	opens := f.camera.Opens()
	if len(opens) != 2 || opens[0] != capture.FacingFront || opens[1] != capture.FacingRear {
		t.Errorf("camera opens = %v, want [front rear]", opens)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestController_SwitchCameraWhileIdle(t *testing.T) {
	f := newFixture(t, 0)
	c := f.controller(time.Millisecond)

	facing, err := c.SwitchCamera()
	if err != nil {
		t.Fatalf("SwitchCamera() error = %v", err)
	}
	if facing != capture.FacingRear || c.Facing() != capture.FacingRear {
		t.Errorf("facing = %v, want rear", facing)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if len(f.camera.Opens()) != 0 {
		t.Error("idle switch opened the camera")
	}
	if c.Status().Facing != "environment" {
		t.Errorf("status facing = %q, want environment", c.Status().Facing)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()
	if f.camera.Facing() != capture.FacingRear {
		t.Error("next Start did not use the switched facing mode")
	}
}

func TestController_OnFrame(t *testing.T) {
	f := newFixture(t, 0)
	f.detector.SetScript([][]detector.Detection{
		{{ClassName: "person", Score: 0.9}},
		{{ClassName: "cup", Score: 0.7}},
		{{ClassName: "cup", Score: 0.5}},
	})
	c := f.controller(time.Millisecond)

	reports := make(chan FrameReport, 16)
	c.OnFrame(func(r FrameReport) {
		select {
		case reports <- r:
		default:
		}
	})

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	want := []struct {
		index int
		last  string
	}{
		{1, "person"},
		{2, "cup"},
		{2, "cup"},
	}
	for i, w := range want {
		select {
		case r := <-reports:
			if r.Index != w.index || r.LastClass != w.last {
				t.Errorf("frame %d: index=%d last=%q, want index=%d last=%q", i+1, r.Index, r.LastClass, w.index, w.last)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not reported", i+1)
		}
	}
}
