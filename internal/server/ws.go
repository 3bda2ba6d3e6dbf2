package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/drumcam/internal/session"
)

const (
	writeWait     = 2 * time.Second
	clientBacklog = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// detectionMessage is the JSON frame pushed to WebSocket clients.
type detectionMessage struct {
	Seq        uint64           `json:"seq"`
	Timestamp  int64            `json:"timestamp"`
	Detections []detectionEntry `json:"detections"`
	Detected   []string         `json:"detected"`
	Instrument string           `json:"instrument"`
	Index      int              `json:"index"`
	Played     bool             `json:"played"`
	Error      string           `json:"error,omitempty"`
}

type detectionEntry struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	BBox  [4]int  `json:"bbox"`
}

func newDetectionMessage(r session.FrameReport) detectionMessage {
	msg := detectionMessage{
		Seq:        r.Seq,
		Timestamp:  r.Time.UnixMilli(),
		Detected:   r.Detected,
		Instrument: r.Instrument,
		Index:      r.Index,
		Played:     r.Played,
		Error:      r.Error,
		Detections: make([]detectionEntry, 0, len(r.Detections)),
	}
	if msg.Detected == nil {
		msg.Detected = []string{}
	}
	for _, d := range r.Detections {
		msg.Detections = append(msg.Detections, detectionEntry{
			Class: d.ClassName,
			Score: d.Score,
			BBox:  [4]int{int(d.Box.X), int(d.Box.Y), int(d.Box.W), int(d.Box.H)},
		})
	}
	return msg
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// DetectionsHandler pushes per-frame detection reports to WebSocket clients.
// Slow clients drop frames rather than stall the session loop.
type DetectionsHandler struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewDetectionsHandler creates an empty hub.
func NewDetectionsHandler(logger *slog.Logger) *DetectionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectionsHandler{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBacklog)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *DetectionsHandler) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", "err", err)
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *DetectionsHandler) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues r for every connected client.
func (h *DetectionsHandler) Broadcast(r session.FrameReport) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(newDetectionMessage(r))
	if err != nil {
		h.logger.Error("encode detection message", "err", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *DetectionsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *DetectionsHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
