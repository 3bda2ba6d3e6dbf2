package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/metrics"
	"github.com/ayusman/drumcam/internal/render"
	"github.com/ayusman/drumcam/internal/session"
	"github.com/ayusman/drumcam/internal/store"
)

type testEnv struct {
	ts       *httptest.Server
	srv      *Server
	store    *store.Store
	bank     *drum.Bank
	detector *detector.MockDetector
	camera   *capture.MockCamera
	ctrl     *session.Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	instruments := make([]drum.Instrument, len(drum.Names))
	for i, name := range drum.Names {
		instruments[i] = drum.Instrument{Name: name, Voice: drum.NewLogVoice(name, discardLogger)}
	}
	bank := drum.NewBank(instruments, nil, time.Millisecond, discardLogger)

	det := detector.NewMockDetector()
	det.SetDetections([]detector.Detection{{ClassName: "cup", Score: 0.9, Box: detector.Box{X: 5, Y: 30, W: 10, H: 10}}})
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	overlay := render.NewOverlay(80)
	t.Cleanup(func() { overlay.Close() })
	m := metrics.New()

	ctrl := session.NewController(session.Config{
		Camera:   cam,
		Detector: det,
		Surface:  overlay,
		Bank:     bank,
		Interval: 5 * time.Millisecond,
		Logger:   discardLogger,
		Recorder: m,
	})
	t.Cleanup(func() { ctrl.Stop() })

	srv := New(Config{
		Store:      s,
		Controller: ctrl,
		Bank:       bank,
		Mixer:      drum.NewMixer(bank),
		Overlay:    overlay,
		Metrics:    m,
		Logger:     discardLogger,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, srv: srv, store: s, bank: bank, detector: det, camera: cam, ctrl: ctrl}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, _ := http.NewRequest(method, e.ts.URL+path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAPI_SessionWorkflow(t *testing.T) {
	env := newTestEnv(t)

	// 1. Idle status
	resp, st := env.do(t, http.MethodGet, "/api/session", "")
	if resp.StatusCode != http.StatusOK || st["state"] != "idle" || st["active_instrument"] != "none" {
		t.Fatalf("initial status = %d %v", resp.StatusCode, st)
	}

	// 2. Subscribe to detections before starting
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/detections"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// 3. Start
	resp, st = env.do(t, http.MethodPost, "/api/session/start", "")
	if resp.StatusCode != http.StatusOK || st["state"] != "capturing" {
		t.Fatalf("start = %d %v", resp.StatusCode, st)
	}

	// 4. A detection frame arrives with cup selecting the snare
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg detectionMessage
	for msg.Instrument != drum.Snare {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
	}
	if len(msg.Detected) != 1 || msg.Detected[0] != "cup" {
		t.Errorf("detected = %v, want [cup]", msg.Detected)
	}

	// 5. Switch camera restarts on the rear camera
	resp, st = env.do(t, http.MethodPost, "/api/session/switch", "")
	if resp.StatusCode != http.StatusOK || st["facing"] != "environment" || st["state"] != "capturing" {
		t.Fatalf("switch = %d %v", resp.StatusCode, st)
	}
	if env.camera.Facing() != capture.FacingRear {
		t.Errorf("camera facing = %v, want rear", env.camera.Facing())
	}
	if got, _ := env.store.Settings().Get(store.SettingFacing); got != "environment" {
		t.Errorf("stored facing = %q", got)
	}

	// 6. Stop
	resp, st = env.do(t, http.MethodPost, "/api/session/stop", "")
	if resp.StatusCode != http.StatusOK || st["state"] != "idle" || st["active_instrument"] != "none" {
		t.Fatalf("stop = %d %v", resp.StatusCode, st)
	}
	if env.camera.IsOpen() {
		t.Error("camera still open after stop")
	}
}

func TestAPI_StartWhileModelLoading(t *testing.T) {
	env := newTestEnv(t)
	env.detector.SetReady(false)

	resp, body := env.do(t, http.MethodPost, "/api/session/start", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if body["error"] == nil {
		t.Error("expected error message")
	}
	if env.ctrl.State() != session.StateIdle {
		t.Errorf("state = %v, want idle", env.ctrl.State())
	}
}

func TestAPI_MixerWorkflow(t *testing.T) {
	env := newTestEnv(t)

	resp, info := env.do(t, http.MethodPut, "/api/mixer/selected", `{"name": "hi-hat"}`)
	if resp.StatusCode != http.StatusOK || info["name"] != "hi-hat" {
		t.Fatalf("select = %d %v", resp.StatusCode, info)
	}

	resp, info = env.do(t, http.MethodPut, "/api/mixer/value", `{"value": 55}`)
	if resp.StatusCode != http.StatusOK || info["miss_probability"] != 55.0 {
		t.Fatalf("set value = %d %v", resp.StatusCode, info)
	}

	resp, info = env.do(t, http.MethodGet, "/api/instruments/hi-hat", "")
	if resp.StatusCode != http.StatusOK || info["miss_probability"] != 55.0 {
		t.Fatalf("get instrument = %d %v", resp.StatusCode, info)
	}

	stored, err := env.store.Instruments().Map()
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if stored[drum.HiHat] != 55 {
		t.Errorf("stored hi-hat = %v, want 55", stored[drum.HiHat])
	}
}
