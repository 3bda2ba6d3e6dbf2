package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// SSD MobileNet input geometry.
const (
	ssdInputSize = 300
	ssdMean      = 127.5
	ssdScale     = 1.0 / 127.5
)

// DNNDetector runs an SSD MobileNet COCO model through OpenCV's dnn module.
// The model is loaded in the background; Ready reports when it can be used.
type DNNDetector struct {
	modelPath  string
	configPath string
	labels     Labels
	logger     *slog.Logger

	once    sync.Once
	mu      sync.Mutex
	net     *gocv.Net
	ready   bool
	loadErr error
	loaded  chan struct{}
}

// NewDNNDetector creates a detector for the given weights and graph config.
// Call Load (typically in a goroutine) before Detect.
func NewDNNDetector(modelPath, configPath string, labels Labels, logger *slog.Logger) *DNNDetector {
	if labels == nil {
		labels = DefaultLabels()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DNNDetector{
		modelPath:  modelPath,
		configPath: configPath,
		labels:     labels,
		logger:     logger,
		loaded:     make(chan struct{}),
	}
}

// Load reads the network. Only the first call loads; later calls wait for
// it and return its result.
func (d *DNNDetector) Load() error {
	d.once.Do(d.load)
	<-d.loaded
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadErr
}

func (d *DNNDetector) load() {
	d.logger.Info("loading detection model", "model", d.modelPath, "config", d.configPath)

	net := gocv.ReadNet(d.modelPath, d.configPath)
	var err error
	if net.Empty() {
		net.Close()
		err = fmt.Errorf("read net %s: empty network", d.modelPath)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	d.mu.Lock()
	if err == nil {
		d.net = &net
		d.ready = true
	} else {
		d.loadErr = err
	}
	d.mu.Unlock()
	close(d.loaded)
}

// Loaded is closed when Load finishes, successfully or not.
func (d *DNNDetector) Loaded() <-chan struct{} {
	return d.loaded
}

func (d *DNNDetector) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Detect runs one forward pass. Boxes are scaled to the frame size.
func (d *DNNDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.net == nil {
		return nil, ErrNotReady
	}

	blob := gocv.BlobFromImage(*frame, ssdScale, image.Pt(ssdInputSize, ssdInputSize),
		gocv.NewScalar(ssdMean, ssdMean, ssdMean, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	results := prob.Reshape(1, 1)
	defer results.Close()

	return parseSSD(results, d.labels, frame.Cols(), frame.Rows()), nil
}

// parseSSD decodes the [1,1,N,7] SSD output: image id, class id, score,
// then normalised left, top, right, bottom.
func parseSSD(results gocv.Mat, labels Labels, width, height int) []Detection {
	var dets []Detection
	total := results.Total()
	for i := 0; i+6 < total; i += 7 {
		score := float64(results.GetFloatAt(0, i+2))
		if score <= 0 {
			continue
		}
		classID := int(results.GetFloatAt(0, i+1))
		left := clamp01(float64(results.GetFloatAt(0, i+3))) * float64(width)
		top := clamp01(float64(results.GetFloatAt(0, i+4))) * float64(height)
		right := clamp01(float64(results.GetFloatAt(0, i+5))) * float64(width)
		bottom := clamp01(float64(results.GetFloatAt(0, i+6))) * float64(height)

		dets = append(dets, Detection{
			ClassName: labels.Name(classID),
			Score:     score,
			Box:       Box{X: left, Y: top, W: right - left, H: bottom - top},
		})
	}
	return dets
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = false
	if d.net != nil {
		err := d.net.Close()
		d.net = nil
		return err
	}
	return nil
}
