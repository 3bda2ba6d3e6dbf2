// Package app wires the drumcam components together: storage, MIDI output,
// the detector, the session controller and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/config"
	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/metrics"
	"github.com/ayusman/drumcam/internal/midiout"
	"github.com/ayusman/drumcam/internal/render"
	"github.com/ayusman/drumcam/internal/server"
	"github.com/ayusman/drumcam/internal/session"
	"github.com/ayusman/drumcam/internal/store"
)

// JPEGQuality is the quality of the streamed overlay frames.
const JPEGQuality = 80

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Options configures New. Camera, Detector and Voices override the devices
// built from Config; tests use them to run without hardware.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Camera   capture.Camera
	Detector detector.Detector
	Voices   map[string]drum.Voice
}

// App is the assembled application.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	port     *midiout.Port
	camera   capture.Camera
	detector detector.Detector
	bank     *drum.Bank
	mixer    *drum.Mixer
	overlay  *render.Overlay
	metrics  *metrics.Metrics
	ctrl     *session.Controller
	server   *server.Server
}

// New builds the application. Detector loading is not started; call
// LoadModel.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Normalize()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, logger: logger}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = s

	voices := opts.Voices
	if voices == nil {
		voices = a.openVoices()
	}
	a.bank = buildBank(voices, time.Duration(cfg.NoteDuration), logger)
	a.mixer = drum.NewMixer(a.bank)

	a.camera = opts.Camera
	if a.camera == nil {
		a.camera = capture.NewCamera(capture.Devices{
			Front: cfg.FrontDeviceID,
			Rear:  cfg.RearDeviceID,
		}, cfg.Width, cfg.Height)
	}
	a.camera.SetFPS(cfg.FPS)

	a.detector = opts.Detector
	if a.detector == nil {
		a.detector, err = buildDetector(cfg, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	a.overlay = render.NewOverlay(JPEGQuality)
	a.metrics = metrics.New()

	facing := a.restoreSettings()

	a.ctrl = session.NewController(session.Config{
		Camera:    a.camera,
		Detector:  a.detector,
		Surface:   a.overlay,
		Bank:      a.bank,
		Policy:    session.NewPolicy(cfg.Selection, a.bank.Len(), cfg.ScoreThreshold),
		Threshold: cfg.ScoreThreshold,
		Interval:  cfg.FrameInterval(),
		Facing:    facing,
		Logger:    logger,
		Recorder:  a.metrics,
	})
	a.ctrl.AddStateListener(func(prev, next session.ControllerState) {
		a.metrics.SessionChanged(next == session.StateCapturing)
	})

	a.server = server.New(server.Config{
		StaticDir:  cfg.StaticDir,
		Store:      a.store,
		Controller: a.ctrl,
		Bank:       a.bank,
		Mixer:      a.mixer,
		Overlay:    a.overlay,
		Metrics:    a.metrics,
		Logger:     logger,
	})

	return a, nil
}

// openVoices opens the MIDI output and maps the kit onto the drum names.
// Without a MIDI device every drum is logged instead.
func (a *App) openVoices() map[string]drum.Voice {
	voices := make(map[string]drum.Voice, len(drum.Names))

	port, err := midiout.Open(a.cfg.MIDIPort, a.logger)
	if err != nil {
		a.logger.Warn("MIDI output unavailable, drums will be logged", "err", err)
		return voices
	}
	a.port = port

	kit := midiout.GetKit(a.cfg.Kit)
	for name, v := range port.Voices(kit, uint8(a.cfg.MIDIChannel), drum.Names) {
		voices[name] = v
	}
	a.logger.Info("MIDI output ready", "port", port.Name(), "kit", kit.Name, "channel", a.cfg.MIDIChannel+1)
	return voices
}

// restoreSettings applies stored miss probabilities, the mixer selection and
// the facing preference. It returns the facing mode to start with.
func (a *App) restoreSettings() capture.Facing {
	settings, err := a.store.Instruments().Map()
	if err != nil {
		a.logger.Warn("load instrument settings", "err", err)
	} else {
		a.bank.Apply(settings)
	}

	if name, err := a.store.Settings().Get(store.SettingMixerSelected); err == nil {
		if _, err := a.mixer.Select(name); err != nil {
			a.logger.Warn("restore mixer selection", "name", name, "err", err)
		}
	}

	facing := capture.FacingFront
	if v, err := a.store.Settings().Get(store.SettingFacing); err == nil {
		if f, err := capture.ParseFacing(v); err == nil {
			facing = f
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		a.logger.Warn("load facing mode", "err", err)
	}
	return facing
}

// LoadModel starts loading the detector in the background. The controller
// reports not ready until loading finishes. A remote detector keeps
// redialing until ctx ends.
func (a *App) LoadModel(ctx context.Context) {
	switch d := a.detector.(type) {
	case *detector.DNNDetector:
		go func() {
			start := time.Now()
			if err := d.Load(); err != nil {
				a.logger.Error("detection model failed to load", "err", err)
				return
			}
			a.logger.Info("detection model loaded", "elapsed", time.Since(start).Round(time.Millisecond))
		}()
	case *detector.RemoteDetector:
		go d.KeepConnected(ctx)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Addr)
		errCh <- a.server.ListenAndServe(a.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "err", err)
	}
	return <-errCh
}

// Close stops any session and releases every resource.
func (a *App) Close() error {
	var errs []error
	if err := a.ctrl.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := a.detector.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.port != nil {
		if err := a.port.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.overlay.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller {
	return a.ctrl
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Store returns the settings store.
func (a *App) Store() *store.Store {
	return a.store
}

// Bank returns the instrument bank.
func (a *App) Bank() *drum.Bank {
	return a.bank
}

// Mixer returns the part-select and slider control.
func (a *App) Mixer() *drum.Mixer {
	return a.mixer
}

// Metrics returns the metrics registry.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}
