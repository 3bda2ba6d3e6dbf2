package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/drumcam/internal/drum"
	"github.com/ayusman/drumcam/internal/store"
)

// InstrumentHandler serves /api/instruments and /api/instruments/{name}.
type InstrumentHandler struct {
	bank   *drum.Bank
	store  *store.Store
	logger *slog.Logger
}

// NewInstrumentHandler creates an InstrumentHandler. When s is non-nil,
// updates are persisted.
func NewInstrumentHandler(bank *drum.Bank, s *store.Store, logger *slog.Logger) *InstrumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentHandler{bank: bank, store: s, logger: logger}
}

type listInstrumentsResponse struct {
	Instruments []drum.Info `json:"instruments"`
}

type updateInstrumentRequest struct {
	MissProbability *float64 `json:"miss_probability"`
}

func (h *InstrumentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/instruments")
	name = strings.Trim(name, "/")

	if name == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, listInstrumentsResponse{Instruments: h.bank.Snapshot()})
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, name)
	case http.MethodPut:
		h.update(w, r, name)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *InstrumentHandler) get(w http.ResponseWriter, name string) {
	i, err := h.bank.Index(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "instrument not found")
		return
	}
	writeJSON(w, http.StatusOK, h.bank.Snapshot()[i])
}

func (h *InstrumentHandler) update(w http.ResponseWriter, r *http.Request, name string) {
	var req updateInstrumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MissProbability == nil {
		writeError(w, http.StatusBadRequest, "miss_probability is required")
		return
	}

	info, err := h.bank.SetMissProbabilityByName(name, *req.MissProbability)
	if err != nil {
		if errors.Is(err, drum.ErrUnknownInstrument) {
			writeError(w, http.StatusNotFound, "instrument not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	persistInstrument(h.store, info, h.logger)
	writeJSON(w, http.StatusOK, info)
}

// persistInstrument saves info when a store is configured. Failures are
// logged; the in-memory value stays authoritative.
func persistInstrument(s *store.Store, info drum.Info, logger *slog.Logger) {
	if s == nil {
		return
	}
	err := s.Instruments().Upsert(&store.InstrumentSetting{
		Name:            info.Name,
		MissProbability: info.MissProbability,
	})
	if err != nil {
		logger.Warn("persist instrument setting", "instrument", info.Name, "err", err)
	}
}
