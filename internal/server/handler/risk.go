package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// RiskView exposes the gate's current state.
type RiskView interface {
	Status() domain.RiskSnapshot
}

// RiskHandler serves the risk gate snapshot.
type RiskHandler struct {
	gate   RiskView
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler over the given gate view.
func NewRiskHandler(gate RiskView, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		gate:   gate,
		logger: logHandler(logger, "risk"),
	}
}

// GetStatus returns the gate's live accounting snapshot.
// GET /api/v1/risk
func (h *RiskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gate.Status())
}
