package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Relay drains the in-process bus onto an external relay (Redis pub/sub plus
// a capped stream) so out-of-process consumers can follow the pipeline.
// Payloads are flat JSON objects keyed by "event".
type Relay struct {
	log  *slog.Logger
	bus  *Bus
	sink domain.EventRelay
}

// NewRelay wires the bus to an external sink. Run must be called to start
// forwarding.
func NewRelay(logger *slog.Logger, bus *Bus, sink domain.EventRelay) *Relay {
	return &Relay{
		log:  logger.With(slog.String("component", "event_relay")),
		bus:  bus,
		sink: sink,
	}
}

// Run forwards bus events until the context is cancelled or the bus closes.
// A sink failure drops that one event; the loop keeps going.
func (r *Relay) Run(ctx context.Context) error {
	ch, cancel := r.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, evt)
		}
	}
}

func (r *Relay) forward(ctx context.Context, evt domain.Event) {
	channel, fields := Describe(evt)
	if channel == "" {
		return
	}
	payload, _ := json.Marshal(fields)
	if err := r.sink.Publish(ctx, channel, payload); err != nil {
		r.log.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("kind", string(evt.Kind())),
			slog.String("error", err.Error()),
		)
	}
}

// Describe maps a bus event onto its external channel and wire fields. The
// relay and the WebSocket hub share this mapping so both surfaces speak the
// same format. Events without a mapping return an empty channel.
func Describe(evt domain.Event) (string, map[string]any) {
	switch e := evt.(type) {
	case domain.SignalGenerated:
		sig := e.Signal
		return "signals", map[string]any{
			"event":       "signal_generated",
			"signal_id":   sig.ID,
			"symbol":      sig.Symbol,
			"direction":   string(sig.Direction),
			"strength":    sig.Strength.String(),
			"confidence":  sig.Confidence,
			"prob_gap":    sig.ProbGap,
			"pct_diff":    sig.PctDiff,
			"lag_seconds": sig.LagSeconds,
			"size_usd":    sig.RecommendedUSD,
			"edge_pct":    sig.ExpectedEdgePct,
			"actionable":  sig.Actionable,
			"at":          sig.CreatedAt,
		}
	case domain.TradeApproved:
		p := e.Proposal
		return "trades", map[string]any{
			"event":       "trade_approved",
			"proposal_id": p.ID,
			"symbol":      p.Symbol,
			"token_id":    p.TokenID,
			"side":        string(p.Side),
			"size_usd":    p.SizeUSD,
			"limit_price": p.LimitPrice,
			"at":          e.Time,
		}
	case domain.TradeRejected:
		p := e.Proposal
		return "trades", map[string]any{
			"event":       "trade_rejected",
			"proposal_id": p.ID,
			"symbol":      p.Symbol,
			"side":        string(p.Side),
			"size_usd":    p.SizeUSD,
			"reason":      e.Reason,
			"at":          e.Time,
		}
	case domain.TradeExecuted:
		rec := e.Record
		return "trades", map[string]any{
			"event":       "trade_executed",
			"proposal_id": rec.ProposalID,
			"position_id": rec.PositionID,
			"symbol":      rec.Symbol,
			"side":        string(rec.Side),
			"action":      rec.Action,
			"price":       rec.Price,
			"size_usd":    rec.SizeUSD,
			"fee_usd":     rec.FeeUSD,
			"venue":       rec.Venue,
			"at":          rec.ExecutedAt,
		}
	case domain.PositionOpened:
		pos := e.Position
		return "positions", map[string]any{
			"event":       "position_opened",
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"side":        string(pos.Side),
			"entry_price": pos.EntryPrice,
			"size_usd":    pos.SizeUSD,
			"at":          pos.OpenedAt,
		}
	case domain.PositionClosed:
		pos := e.Position
		exit := 0.0
		if pos.ExitPrice != nil {
			exit = *pos.ExitPrice
		}
		return "positions", map[string]any{
			"event":       "position_closed",
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"side":        string(pos.Side),
			"entry_price": pos.EntryPrice,
			"exit_price":  exit,
			"pnl_usd":     e.PnL,
			"reason":      string(pos.CloseReason),
			"at":          e.Time,
		}
	default:
		return "", nil
	}
}
