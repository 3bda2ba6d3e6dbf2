package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/drumcam/internal/app"
	"github.com/ayusman/drumcam/internal/config"
	"github.com/ayusman/drumcam/internal/session"
	"github.com/ayusman/drumcam/internal/tray"
)

var (
	configPath   = flag.String("config", filepath.Join(config.DefaultDataDir(), "config.json"), "Config file path")
	addr         = flag.String("addr", "", "HTTP listen address")
	modelPath    = flag.String("model", "", "Object detection model (TensorFlow .pb, ONNX, ...)")
	modelConfig  = flag.String("model-config", "", "Model config file (.pbtxt)")
	labelsPath   = flag.String("labels", "", "Class labels file, one name per line")
	remoteURL    = flag.String("remote-detector", "", "WebSocket URL of a remote detection server")
	midiPort     = flag.String("midi-port", "", "MIDI output port name pattern")
	kit          = flag.String("kit", "", "Drum kit note map (gm, rd8, tr8s)")
	selection    = flag.String("selection", "", "Detection selection mode (first, random)")
	logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	withTray     = flag.Bool("tray", false, "Show a system tray menu")
	saveConfig   = flag.Bool("save-config", false, "Write the effective config to -config and exit")
	startCapture = flag.Bool("start", false, "Start capturing as soon as the model is ready")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config %s: %v (using defaults)\n", *configPath, err)
	}
	applyFlags(cfg)
	cfg.Normalize()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if *saveConfig {
		if err := cfg.Save(*configPath); err != nil {
			logger.Error("save config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		logger.Info("config saved", "path", *configPath)
		return
	}

	if cfg.StaticDir == "" {
		cfg.StaticDir = findWebDir(cfg.DataDir)
	}
	if cfg.StaticDir != "" {
		logger.Info("serving static files", "dir", cfg.StaticDir)
	}

	application, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.LoadModel(ctx)
	if *startCapture {
		go startWhenReady(ctx, application, logger)
	}

	if cfg.Tray || *withTray {
		t := newTray(application, cfg.Addr, stop, logger)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		go run(ctx, application, logger, stop)
		t.Run()
		stop()
	} else {
		run(ctx, application, logger, stop)
	}

	if err := application.Close(); err != nil {
		logger.Warn("shutdown", "err", err)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, application *app.App, logger *slog.Logger, stop context.CancelFunc) {
	defer stop()
	if err := application.Run(ctx); err != nil {
		logger.Error("server failed", "err", err)
	}
}

func applyFlags(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Addr, *addr)
	set(&cfg.ModelPath, *modelPath)
	set(&cfg.ModelConfigPath, *modelConfig)
	set(&cfg.LabelsPath, *labelsPath)
	set(&cfg.RemoteDetectorURL, *remoteURL)
	set(&cfg.MIDIPort, *midiPort)
	set(&cfg.Kit, *kit)
	set(&cfg.Selection, *selection)
	set(&cfg.LogLevel, *logLevel)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

// startWhenReady starts a session once the detector has loaded.
func startWhenReady(ctx context.Context, application *app.App, logger *slog.Logger) {
	ctrl := application.Controller()
	if err := waitReady(ctx, ctrl); err != nil {
		return
	}
	if err := ctrl.Start(); err != nil {
		logger.Error("auto start failed", "err", err)
	}
}

func newTray(application *app.App, addr string, quit context.CancelFunc, logger *slog.Logger) *tray.Tray {
	ctrl := application.Controller()
	t := tray.New()

	t.OnToggle(func(capturing bool) {
		var err error
		if capturing {
			err = ctrl.Start()
		} else {
			err = ctrl.Stop()
		}
		if err != nil {
			logger.Warn("tray toggle", "err", err)
		}
	})
	t.OnSwitchCamera(func() {
		if _, err := ctrl.SwitchCamera(); err != nil {
			logger.Warn("tray switch camera", "err", err)
		}
	})
	t.OnOpenUI(func() {
		if err := openBrowser(uiURL(addr)); err != nil {
			logger.Warn("open browser", "err", err)
		}
	})
	t.OnQuit(quit)

	ctrl.AddStateListener(func(prev, next session.ControllerState) {
		t.SetCapturing(next == session.StateCapturing)
	})
	ctrl.OnFrame(func(r session.FrameReport) {
		if r.Instrument != session.NoInstrument {
			t.SetDrum(r.Instrument)
		} else {
			t.SetDrum("")
		}
	})
	return t
}

func uiURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory next to the working directory
// and in the data directory.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func waitReady(ctx context.Context, ctrl *session.Controller) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for !ctrl.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
