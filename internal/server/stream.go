package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ayusman/drumcam/internal/metrics"
	"github.com/ayusman/drumcam/internal/render"
)

// StreamHandler serves the annotated overlay as MJPEG.
type StreamHandler struct {
	overlay *render.Overlay
	metrics *metrics.Metrics
}

// NewStreamHandler creates a new StreamHandler. m may be nil.
func NewStreamHandler(overlay *render.Overlay, m *metrics.Metrics) *StreamHandler {
	return &StreamHandler{overlay: overlay, metrics: m}
}

// ServeHTTP streams each committed overlay frame until the client goes away.
// A cleared overlay keeps the connection open and waits for the next session.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if h.metrics != nil {
		h.metrics.ActiveViewers.Add(1)
		defer h.metrics.ActiveViewers.Add(-1)
	}

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	ctx := r.Context()
	var seq uint64
	for {
		buf, next, err := h.overlay.Wait(ctx, seq)
		if err != nil {
			if errors.Is(err, render.ErrCleared) {
				seq = next
				continue
			}
			return
		}
		seq = next

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(buf)); err != nil {
			return
		}
		if _, err := w.Write(buf); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
