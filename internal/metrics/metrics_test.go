package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_DrumSelected(t *testing.T) {
	m := New()

	m.DrumSelected("kick", true)
	m.DrumSelected("kick", true)
	m.DrumSelected("kick", false)
	m.DrumSelected("tom", false)

	tests := []struct {
		instrument string
		outcome    string
		want       float64
	}{
		{"kick", "played", 2},
		{"kick", "muted", 1},
		{"tom", "muted", 1},
		{"tom", "played", 0},
	}

	for _, tt := range tests {
		got := testutil.ToFloat64(m.Hits().WithLabelValues(tt.instrument, tt.outcome))
		if got != tt.want {
			t.Errorf("hits{%s,%s} = %v, want %v", tt.instrument, tt.outcome, got, tt.want)
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameProcessed(3, 40*time.Millisecond)
	m.FrameProcessed(0, 25*time.Millisecond)
	m.DetectFailed()
	m.FrameFailed()
	m.SessionChanged(true)

	if got := m.FramesProcessed.Load(); got != 2 {
		t.Errorf("FramesProcessed = %d, want 2", got)
	}
	if got := m.Detections.Load(); got != 3 {
		t.Errorf("Detections = %d, want 3", got)
	}
	if got := m.DetectLatencyMs.Load(); got != 25 {
		t.Errorf("DetectLatencyMs = %d, want 25", got)
	}
	if got := m.Capturing.Load(); got != 1 {
		t.Errorf("Capturing = %d, want 1", got)
	}

	m.SessionChanged(false)
	if got := m.Capturing.Load(); got != 0 {
		t.Errorf("Capturing after stop = %d, want 0", got)
	}
	if got := m.SessionsStarted.Load(); got != 1 {
		t.Errorf("SessionsStarted = %d, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FrameProcessed(1, time.Millisecond)
	m.DrumSelected("snare", true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"drumcam_frames_processed_total 1",
		`drumcam_drum_hits_total{instrument="snare",outcome="played"} 1`,
		"drumcam_capturing 0",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
