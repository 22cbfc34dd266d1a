package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// statsWindow bounds how far back the daily breakdown reaches.
const statsWindow = 30 * 24 * time.Hour

// StatsSource summarizes the ledger.
type StatsSource interface {
	Stats() domain.LedgerStats
}

// DailyStatsSource lists persisted per-day aggregates.
type DailyStatsSource interface {
	ListDays(ctx context.Context, since time.Time) ([]domain.DailyStats, error)
}

// StatsHandler serves trading performance summaries.
type StatsHandler struct {
	ledger StatsSource
	daily  DailyStatsSource // nil when Postgres is disabled
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler. daily may be nil, in which case
// responses carry only the live ledger summary.
func NewStatsHandler(ledger StatsSource, daily DailyStatsSource, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		ledger: ledger,
		daily:  daily,
		logger: logHandler(logger, "stats"),
	}
}

type statsResponse struct {
	Ledger domain.LedgerStats  `json:"ledger"`
	Daily  []domain.DailyStats `json:"daily,omitempty"`
}

// GetStats returns the live ledger summary plus the recent daily breakdown
// when a stats store is wired.
// GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Ledger: h.ledger.Stats()}

	if h.daily != nil {
		days, err := h.daily.ListDays(r.Context(), time.Now().UTC().Add(-statsWindow))
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to list daily stats", slog.String("error", err.Error()))
		} else {
			resp.Daily = days
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
