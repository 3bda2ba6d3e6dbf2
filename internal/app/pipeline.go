package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ayusman/drumcam/internal/config"
	"github.com/ayusman/drumcam/internal/detector"
	"github.com/ayusman/drumcam/internal/drum"
)

// buildBank creates the four-drum bank in cycle order. Names without a
// voice fall back to a logging voice.
func buildBank(voices map[string]drum.Voice, duration time.Duration, logger *slog.Logger) *drum.Bank {
	instruments := make([]drum.Instrument, len(drum.Names))
	for i, name := range drum.Names {
		v, ok := voices[name]
		if !ok || v == nil {
			v = drum.NewLogVoice(name, logger)
		}
		instruments[i] = drum.Instrument{Name: name, Voice: v}
	}
	return drum.NewBank(instruments, drum.NewGate(), duration, logger)
}

// buildDetector picks the detector backend: a local DNN when a model path
// is configured, a remote inference server when a URL is configured, and
// otherwise a mock that never detects anything.
func buildDetector(cfg *config.Config, logger *slog.Logger) (detector.Detector, error) {
	switch {
	case cfg.ModelPath != "":
		labels := detector.DefaultLabels()
		if cfg.LabelsPath != "" {
			l, err := detector.LoadLabels(cfg.LabelsPath)
			if err != nil {
				return nil, fmt.Errorf("load labels: %w", err)
			}
			labels = l
		}
		logger.Info("using local detection model", "model", cfg.ModelPath)
		return detector.NewDNNDetector(cfg.ModelPath, cfg.ModelConfigPath, labels, logger), nil

	case cfg.RemoteDetectorURL != "":
		logger.Info("using remote detector", "url", cfg.RemoteDetectorURL)
		return detector.NewRemoteDetector(cfg.RemoteDetectorURL, logger), nil

	default:
		logger.Warn("no detection model configured, using mock detector")
		return detector.NewMockDetector(), nil
	}
}
