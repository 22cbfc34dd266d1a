package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// SignalSource exposes the engine's bounded in-memory signal history.
type SignalSource interface {
	Recent(limit int) []domain.Signal
}

// SignalHandler serves the recent signal stream.
type SignalHandler struct {
	signals SignalSource
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler over the given source.
func NewSignalHandler(signals SignalSource, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		logger:  logHandler(logger, "signals"),
	}
}

type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
}

// ListSignals returns the most recent scored signals, newest first.
// GET /api/v1/signals?limit=n
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	signals := h.signals.Recent(opts.Limit)
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}
