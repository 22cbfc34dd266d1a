// Package metrics exports the process Prometheus instrumentation. Counters
// are package-level so hot paths update them without indirection; the API
// server mounts Handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_observations_total", Help: "Price observations ingested"},
		[]string{"symbol", "source"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_signals_total", Help: "Signals scored by the engine"},
		[]string{"symbol", "actionable"},
	)
	ProposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_proposals_total", Help: "Risk gate outcomes for trade proposals"},
		[]string{"symbol", "outcome"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lagbot_fills_total", Help: "Executed fills, entries and exits"},
		[]string{"symbol", "action"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "lagbot_open_positions", Help: "Positions currently open"},
	)
	RealizedPnLUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "lagbot_realized_pnl_usd", Help: "Realized PnL since process start"},
	)
	BusDroppedEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "lagbot_bus_dropped_events", Help: "Events dropped on slow bus subscribers"},
	)
)

func init() {
	prometheus.MustRegister(
		ObservationsTotal, SignalsTotal, ProposalsTotal, FillsTotal,
		OpenPositions, RealizedPnLUSD, BusDroppedEvents,
	)
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
