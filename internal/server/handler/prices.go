package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// PriceFeed is the read side of the aggregator the price handlers need.
type PriceFeed interface {
	Latest(symbol string, source domain.Source) (domain.PriceObservation, bool)
	Status(maxAge time.Duration) []domain.FeedStatus
}

// PriceHandler serves the latest observations and per-feed health.
type PriceHandler struct {
	feeds  PriceFeed
	maxAge time.Duration
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler. maxAge is the staleness bound used
// in feed status reporting.
func NewPriceHandler(feeds PriceFeed, maxAge time.Duration, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		feeds:  feeds,
		maxAge: maxAge,
		logger: logHandler(logger, "prices"),
	}
}

type pricesResponse struct {
	Symbol  string                   `json:"symbol"`
	Oracle  *domain.PriceObservation `json:"oracle,omitempty"`
	Implied *domain.PriceObservation `json:"implied,omitempty"`
}

// GetPrices returns the latest oracle and implied observation for one symbol.
// GET /api/v1/prices/{symbol}
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")

	resp := pricesResponse{Symbol: symbol}
	if obs, ok := h.feeds.Latest(symbol, domain.SourceOracle); ok {
		resp.Oracle = &obs
	}
	if obs, ok := h.feeds.Latest(symbol, domain.SourceImplied); ok {
		resp.Implied = &obs
	}
	if resp.Oracle == nil && resp.Implied == nil {
		writeError(w, http.StatusNotFound, "no observations for symbol "+symbol)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type feedsResponse struct {
	Feeds []domain.FeedStatus `json:"feeds"`
}

// ListFeeds returns the per-(symbol, source) feed health snapshot.
// GET /api/v1/feeds
func (h *PriceHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds := h.feeds.Status(h.maxAge)
	if feeds == nil {
		feeds = []domain.FeedStatus{}
	}
	writeJSON(w, http.StatusOK, feedsResponse{Feeds: feeds})
}
