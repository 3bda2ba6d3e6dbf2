package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/drumcam/internal/capture"
	"github.com/ayusman/drumcam/internal/session"
	"github.com/ayusman/drumcam/internal/store"
)

// SessionController is the part of session.Controller the handler drives.
type SessionController interface {
	Status() session.Status
	Start() error
	Stop() error
	SwitchCamera() (capture.Facing, error)
}

// SessionHandler serves /api/session and its start, stop and switch actions.
type SessionHandler struct {
	ctrl   SessionController
	store  *store.Store
	logger *slog.Logger
}

// NewSessionHandler creates a SessionHandler. s may be nil, in which case
// the facing preference is not persisted.
func NewSessionHandler(ctrl SessionController, s *store.Store, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{ctrl: ctrl, store: s, logger: logger}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/session")
	action = strings.Trim(action, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Status())
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "start":
		h.start(w)
	case "stop":
		h.stop(w)
	case "switch":
		h.switchCamera(w)
	default:
		writeError(w, http.StatusNotFound, "unknown session action")
	}
}

func (h *SessionHandler) start(w http.ResponseWriter) {
	if err := h.ctrl.Start(); err != nil {
		writeError(w, statusForSessionError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *SessionHandler) stop(w http.ResponseWriter) {
	if err := h.ctrl.Stop(); err != nil {
		// The session is stopped even if releasing the camera failed.
		h.logger.Warn("stop session", "err", err)
	}
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *SessionHandler) switchCamera(w http.ResponseWriter) {
	facing, err := h.ctrl.SwitchCamera()
	if h.store != nil {
		if serr := h.store.Settings().Set(store.SettingFacing, facing.String()); serr != nil {
			h.logger.Warn("persist facing mode", "err", serr)
		}
	}
	if err != nil {
		writeError(w, statusForSessionError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func statusForSessionError(err error) int {
	switch {
	case errors.Is(err, session.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrCameraAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
