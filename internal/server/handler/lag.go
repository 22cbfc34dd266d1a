package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// LagEvaluator computes the current divergence reading for a symbol.
type LagEvaluator interface {
	Evaluate(symbol string) (domain.DivergenceReading, error)
}

// LagHandler serves on-demand divergence readings.
type LagHandler struct {
	detector LagEvaluator
	logger   *slog.Logger
}

// NewLagHandler creates a LagHandler over the given evaluator.
func NewLagHandler(detector LagEvaluator, logger *slog.Logger) *LagHandler {
	return &LagHandler{
		detector: detector,
		logger:   logHandler(logger, "lag"),
	}
}

// GetLag evaluates the symbol's feeds and returns the divergence reading.
// Feeds that cannot produce a reading yet map to 404.
// GET /api/v1/lag/{symbol}
func (h *LagHandler) GetLag(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")

	reading, err := h.detector.Evaluate(symbol)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "evaluate failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to evaluate lag")
		return
	}

	writeJSON(w, http.StatusOK, reading)
}
