package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
)

// remoteResult is the wire format returned by a detection server.
type remoteResult struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// RemoteDetector sends JPEG frames to a detection server over a WebSocket
// and reads back one JSON array of results per frame.
type RemoteDetector struct {
	url     string
	dialer  *websocket.Dialer
	timeout time.Duration
	logger  *slog.Logger

	// Redial delay starts at minBackoff and doubles up to maxBackoff.
	minBackoff time.Duration
	maxBackoff time.Duration

	ready   atomic.Bool
	dropped chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRemoteDetector creates a detector for a ws:// or wss:// URL.
func NewRemoteDetector(url string, logger *slog.Logger) *RemoteDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteDetector{
		url:     url,
		dialer:  websocket.DefaultDialer,
		timeout: 5 * time.Second,
		logger:  logger,

		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		dropped:    make(chan struct{}, 1),
	}
}

// Connect dials the server. Detect also dials lazily after a dropped
// connection.
func (d *RemoteDetector) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked(ctx)
}

func (d *RemoteDetector) connectLocked(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	d.logger.Debug("connecting to detector server", "url", d.url)
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, _, err := d.dialer.DialContext(dialCtx, d.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.url, err)
	}
	d.conn = conn
	d.ready.Store(true)
	d.logger.Info("connected to detector server", "url", d.url)
	return nil
}

// Ready reports whether a connection is established. It never blocks on
// network I/O.
func (d *RemoteDetector) Ready() bool {
	return d.ready.Load()
}

// KeepConnected dials until connected and redials whenever the connection
// drops, backing off between failed attempts. It returns when ctx ends.
func (d *RemoteDetector) KeepConnected(ctx context.Context) {
	backoff := d.minBackoff
	for {
		if !d.Ready() {
			if err := d.Connect(ctx); err != nil {
				d.logger.Warn("detector server unreachable", "err", err, "retry_in", backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > d.maxBackoff {
					backoff = d.maxBackoff
				}
				continue
			}
			backoff = d.minBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-d.dropped:
		}
	}
}

// Detect encodes frame as JPEG, sends it and waits for the reply. A failed
// exchange drops the connection so the next call redials.
func (d *RemoteDetector) Detect(ctx context.Context, frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connectLocked(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	d.conn.SetWriteDeadline(deadline)
	d.conn.SetReadDeadline(deadline)

	if err := d.conn.WriteMessage(websocket.BinaryMessage, buf.GetBytes()); err != nil {
		d.dropLocked()
		return nil, fmt.Errorf("send frame: %w", err)
	}

	_, message, err := d.conn.ReadMessage()
	if err != nil {
		d.dropLocked()
		return nil, fmt.Errorf("read result: %w", err)
	}

	return decodeRemote(message)
}

// decodeRemote converts server results; box is [x, y, w, h] in pixels.
func decodeRemote(message []byte) ([]Detection, error) {
	var results []remoteResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	dets := make([]Detection, 0, len(results))
	for _, r := range results {
		det := Detection{ClassName: r.Label, Score: float64(r.Confidence)}
		if len(r.Box) >= 4 {
			det.Box = Box{
				X: float64(r.Box[0]),
				Y: float64(r.Box[1]),
				W: float64(r.Box[2]),
				H: float64(r.Box[3]),
			}
		}
		dets = append(dets, det)
	}
	return dets, nil
}

func (d *RemoteDetector) dropLocked() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.ready.Store(false)
	select {
	case d.dropped <- struct{}{}:
	default:
	}
}

// Close closes the connection.
func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready.Store(false)
	if d.conn == nil {
		return nil
	}
	err := d.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	d.conn.Close()
	d.conn = nil
	return err
}
