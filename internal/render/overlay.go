// Package render draws camera frames and detection boxes onto a surface
// that can be streamed to viewers.
package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// Label style.
const (
	labelScale     = 0.6
	labelThickness = 2
	boxThickness   = 2
)

// boxColor is the stroke and label color for detections.
var boxColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}

// ErrCleared is returned by Wait when the surface was cleared.
var ErrCleared = errors.New("surface cleared")

// Surface is where a session draws each frame. Commit publishes what has
// been drawn since the last DrawFrame.
type Surface interface {
	Clear()
	DrawFrame(frame *gocv.Mat)
	DrawBox(x, y, w, h float64, label string)
	Commit() error
}

// LabelOrigin returns where a label for a box at y is drawn: just above the
// box, or inside it when the box is near the top edge.
func LabelOrigin(x, y float64) image.Point {
	ly := y + 20
	if y > 20 {
		ly = y - 5
	}
	return image.Pt(int(x), int(ly))
}

// Overlay is a Surface backed by a Mat. Committed frames are kept as JPEG
// for streaming.
type Overlay struct {
	mu      sync.Mutex
	canvas  gocv.Mat
	hasDraw bool
	latest  []byte
	seq     uint64
	notify  chan struct{}
	quality int
}

// NewOverlay creates an empty overlay encoding JPEG at quality (1-100).
func NewOverlay(quality int) *Overlay {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Overlay{
		canvas:  gocv.NewMat(),
		notify:  make(chan struct{}),
		quality: quality,
	}
}

// Clear drops the canvas and the last committed frame. Waiting viewers are
// woken.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.canvas.Close()
	o.canvas = gocv.NewMat()
	o.hasDraw = false
	o.latest = nil
	o.seq++
	o.wakeLocked()
}

// DrawFrame replaces the canvas with a copy of frame.
func (o *Overlay) DrawFrame(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	frame.CopyTo(&o.canvas)
	o.hasDraw = true
}

// DrawBox strokes a box and writes label next to it.
func (o *Overlay) DrawBox(x, y, w, h float64, label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.hasDraw {
		return
	}
	rect := image.Rect(int(x), int(y), int(x+w), int(y+h))
	gocv.Rectangle(&o.canvas, rect, boxColor, boxThickness)
	if label != "" {
		gocv.PutText(&o.canvas, label, LabelOrigin(x, y), gocv.FontHersheySimplex, labelScale, boxColor, labelThickness)
	}
}

// Commit encodes the canvas and publishes it.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.hasDraw {
		return nil
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, o.canvas, []int{int(gocv.IMWriteJpegQuality), o.quality})
	if err != nil {
		return err
	}
	defer buf.Close()

	data := buf.GetBytes()
	o.latest = make([]byte, len(data))
	copy(o.latest, data)
	o.seq++
	o.wakeLocked()
	return nil
}

func (o *Overlay) wakeLocked() {
	close(o.notify)
	o.notify = make(chan struct{})
}

// Latest returns the last committed JPEG and its sequence number. The
// slice is nil when nothing has been committed since the last Clear.
func (o *Overlay) Latest() ([]byte, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest, o.seq
}

// Wait blocks until a frame newer than after is committed, or ctx ends.
func (o *Overlay) Wait(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		o.mu.Lock()
		if o.seq > after {
			data, seq := o.latest, o.seq
			o.mu.Unlock()
			if data == nil {
				return nil, seq, ErrCleared
			}
			return data, seq, nil
		}
		ch := o.notify
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-ch:
		}
	}
}

// Close releases the canvas.
func (o *Overlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canvas.Close()
}
