package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// TradeSource lists persisted fills.
type TradeSource interface {
	ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error)
	ListByPosition(ctx context.Context, positionID string) ([]domain.TradeRecord, error)
}

// TradeHandler serves the persisted trade history.
type TradeHandler struct {
	trades TradeSource
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler over the given trade source.
func NewTradeHandler(trades TradeSource, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logHandler(logger, "trades"),
	}
}

type listTradesResponse struct {
	Trades []domain.TradeRecord `json:"trades"`
}

// ListTrades returns the most recent fills, newest first.
// GET /api/v1/trades?limit=n
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	trades, err := h.trades.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// ListByPosition returns every fill recorded against one position,
// oldest first.
// GET /api/v1/positions/{id}/trades
func (h *TradeHandler) ListByPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id is required")
		return
	}

	trades, err := h.trades.ListByPosition(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list position trades",
			slog.String("error", err.Error()),
			slog.String("position_id", id),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}
