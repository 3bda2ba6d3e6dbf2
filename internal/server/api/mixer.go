package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/store"
)

// MixerHandler serves the part-select and slider controls under /api/mixer.
type MixerHandler struct {
	mixer  *drum.Mixer
	bank   *drum.Bank
	store  *store.Store
	logger *slog.Logger
}

// NewMixerHandler creates a MixerHandler.
func NewMixerHandler(mixer *drum.Mixer, bank *drum.Bank, s *store.Store, logger *slog.Logger) *MixerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MixerHandler{mixer: mixer, bank: bank, store: s, logger: logger}
}

type mixerResponse struct {
	Selected drum.Info   `json:"selected"`
	Parts    []drum.Info `json:"parts"`
}

type selectPartRequest struct {
	Name string `json:"name"`
}

type setValueRequest struct {
	Value *float64 `json:"value"`
}

func (h *MixerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/mixer")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.get(w)
	case "selected":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.selectPart(w, r)
	case "value":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.setValue(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *MixerHandler) get(w http.ResponseWriter) {
	selected, err := h.mixer.Selected()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mixerResponse{Selected: selected, Parts: h.bank.Snapshot()})
}

// selectPart changes the selected part and returns its value for the slider.
func (h *MixerHandler) selectPart(w http.ResponseWriter, r *http.Request) {
	var req selectPartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.mixer.Select(req.Name)
	if err != nil {
		if errors.Is(err, drum.ErrUnknownInstrument) {
			writeError(w, http.StatusNotFound, "instrument not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Settings().Set(store.SettingMixerSelected, info.Name); err != nil {
			h.logger.Warn("persist mixer selection", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, info)
}

// setValue applies the slider value to the selected part.
func (h *MixerHandler) setValue(w http.ResponseWriter, r *http.Request) {
	var req setValueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	info, err := h.mixer.Set(*req.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	persistInstrument(h.store, info, h.logger)
	writeJSON(w, http.StatusOK, info)
}
