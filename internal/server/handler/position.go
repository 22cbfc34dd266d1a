package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// PositionView is the read side of the ledger the position handlers need.
type PositionView interface {
	OpenPositions() []domain.Position
	ClosedPositions(limit int) []domain.Position
	Get(id string) (domain.Position, error)
}

// PositionHandler serves the live and historical position book.
type PositionHandler struct {
	ledger PositionView
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler over the given ledger view.
func NewPositionHandler(ledger PositionView, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		logger: logHandler(logger, "positions"),
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListOpen returns every currently open position.
// GET /api/v1/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions := h.ledger.OpenPositions()
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListClosed returns the retained closed-position history, newest first.
// GET /api/v1/positions/closed?limit=n
func (h *PositionHandler) ListClosed(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	positions := h.ledger.ClosedPositions(opts.Limit)
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one open position by ID.
// GET /api/v1/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	pos, err := h.ledger.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
