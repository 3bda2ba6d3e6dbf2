// Package detector finds COCO objects in camera frames.
package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// DefaultScoreThreshold is the minimum score, exclusive, for a detection to
// count.
const DefaultScoreThreshold = 0.66

// ErrNotReady is returned by Detect before the model has finished loading.
var ErrNotReady = errors.New("detector not ready")

// Box is a bounding box in pixel coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one object found in a frame.
type Detection struct {
	ClassName string  `json:"class"`
	Score     float64 `json:"score"`
	Box       Box     `json:"bbox"`
}

// Detector runs object detection on frames.
type Detector interface {
	// Detect returns the objects found in frame, in model order.
	Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error)

	// Ready reports whether the model is loaded and Detect can succeed.
	Ready() bool

	// Close releases any resources held by the detector.
	Close() error
}

// Qualifying returns the detections whose score is strictly above
// threshold, preserving order.
func Qualifying(dets []Detection, threshold float64) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.Score > threshold {
			out = append(out, d)
		}
	}
	return out
}

// ClassNames returns the class of each detection, in order.
func ClassNames(dets []Detection) []string {
	names := make([]string, len(dets))
	for i, d := range dets {
		names[i] = d.ClassName
	}
	return names
}
