// Package capture opens the front or rear camera and reads frames using GoCV.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings.
const (
	DefaultFPS    = 15
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// ErrCameraNotOpen is returned when reading from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// ErrOpenFailed is returned when the device cannot be opened, whether it is
// missing or access was denied.
var ErrOpenFailed = errors.New("camera open failed")

// Facing selects which camera a session uses.
type Facing int

const (
	FacingFront Facing = iota
	FacingRear
)

// String returns the browser-style facing mode name.
func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "user"
	case FacingRear:
		return "environment"
	default:
		return "unknown"
	}
}

// Opposite returns the other facing mode.
func (f Facing) Opposite() Facing {
	if f == FacingRear {
		return FacingFront
	}
	return FacingRear
}

// ParseFacing accepts "front"/"user" and "rear"/"back"/"environment".
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "front", "user":
		return FacingFront, nil
	case "rear", "back", "environment":
		return FacingRear, nil
	default:
		return FacingFront, fmt.Errorf("unknown facing mode %q", s)
	}
}

// Camera is a frame source bound to a facing mode while open.
type Camera interface {
	Open(facing Facing) error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
	Facing() Facing
}

// Devices maps facing modes to OpenCV device IDs.
type Devices struct {
	Front int
	Rear  int
}

// DeviceID returns the device for f.
func (d Devices) DeviceID(f Facing) int {
	if f == FacingRear {
		return d.Rear
	}
	return d.Front
}

// cameraImpl captures from a local device through gocv.VideoCapture.
type cameraImpl struct {
	devices Devices
	width   int
	height  int
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	fps     int
	facing  Facing
}

// NewCamera creates a Camera for the given devices and frame size.
// Non-positive sizes fall back to the defaults.
func NewCamera(devices Devices, width, height int) Camera {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &cameraImpl{
		devices: devices,
		width:   width,
		height:  height,
		fps:     DefaultFPS,
	}
}

// Open opens the device for facing. An already open camera is closed first
// if the facing mode differs.
func (c *cameraImpl) Open(facing Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		if c.facing == facing {
			return nil
		}
		c.capture.Close()
		c.capture = nil
		c.running = false
	}

	id := c.devices.DeviceID(facing)
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return fmt.Errorf("%w: device %d (%s): %v", ErrOpenFailed, id, facing, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: device %d (%s) not available", ErrOpenFailed, id, facing)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true
	c.facing = facing

	return nil
}

// Close releases the device. Closing a closed camera is a no-op.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads one frame. The caller owns the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the capture rate. Values <= 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Facing returns the facing mode of the last successful Open.
func (c *cameraImpl) Facing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}
