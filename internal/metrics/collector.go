package metrics

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/events"
)

// Collector folds bus events into the exported metrics.
type Collector struct {
	log *slog.Logger
	bus *events.Bus
}

func NewCollector(logger *slog.Logger, bus *events.Bus) *Collector {
	return &Collector{
		log: logger.With(slog.String("component", "metrics")),
		bus: bus,
	}
}

// Run consumes the bus until ctx is cancelled or the bus closes.
func (c *Collector) Run(ctx context.Context) error {
	ch, cancel := c.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			apply(evt)
			BusDroppedEvents.Set(float64(c.bus.Dropped()))
		}
	}
}

// apply maps one event onto the metric set.
func apply(evt domain.Event) {
	switch e := evt.(type) {
	case domain.SignalGenerated:
		SignalsTotal.WithLabelValues(e.Signal.Symbol, strconv.FormatBool(e.Signal.Actionable)).Inc()
	case domain.TradeApproved:
		ProposalsTotal.WithLabelValues(e.Proposal.Symbol, "approved").Inc()
	case domain.TradeRejected:
		ProposalsTotal.WithLabelValues(e.Proposal.Symbol, "rejected").Inc()
	case domain.TradeExecuted:
		FillsTotal.WithLabelValues(e.Record.Symbol, e.Record.Action).Inc()
	case domain.PositionOpened:
		OpenPositions.Inc()
	case domain.PositionClosed:
		OpenPositions.Dec()
		RealizedPnLUSD.Add(e.PnL)
	}
}
