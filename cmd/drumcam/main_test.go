package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/session"
)

func TestUIURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080/"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/"},
	}
	for _, tt := range tests {
		if got := uiURL(tt.addr); got != tt.want {
			t.Errorf("uiURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestFindWebDir(t *testing.T) {
	dataDir := t.TempDir()
	if got := findWebDir(dataDir); got != "" {
		if _, err := os.Stat(got); err != nil {
			t.Errorf("findWebDir() = %q, which does not exist", got)
		}
	}

	web := filepath.Join(dataDir, "web")
	if err := os.Mkdir(web, 0755); err != nil {
		t.Fatal(err)
	}
	if got := findWebDir(dataDir); got == "" {
		t.Error("findWebDir() did not find the data dir web folder")
	}
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	if l := newLogger("debug"); !l.Enabled(ctx, -4) {
		t.Error("debug logger does not log debug")
	}
	if l := newLogger("warn"); l.Enabled(ctx, 0) {
		t.Error("warn logger logs info")
	}
	if l := newLogger("bogus"); !l.Enabled(ctx, 0) {
		t.Error("unknown level should default to info")
	}
}

func TestWaitReady(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetReady(false)
	ctrl := session.NewController(session.Config{Detector: det})

	go func() {
		time.Sleep(50 * time.Millisecond)
		det.SetReady(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := waitReady(ctx, ctrl); err != nil {
		t.Fatalf("waitReady() error = %v", err)
	}

	det.SetReady(false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if err := waitReady(ctx2, ctrl); err == nil {
		t.Error("waitReady() should fail when the context ends first")
	}
}
