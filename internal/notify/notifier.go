// Package notify turns bus events into operator alerts. Alert-worthy events
// are rendered as short human-readable messages and handed to every configured
// sender (Telegram, Discord); one sender failing does not stop the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/events"
)

// sendTimeout bounds one delivery round across all senders.
const sendTimeout = 10 * time.Second

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns the channel identifier (e.g. "telegram").
	Name() string
}

// Alerter consumes the event bus and pushes formatted alerts to its senders.
// An event filter restricts which kinds alert; an empty filter allows all.
type Alerter struct {
	log     *slog.Logger
	bus     *events.Bus
	senders []Sender
	allowed map[domain.EventKind]bool
}

// NewAlerter builds an alerter over the given senders. kinds is the allowed
// event list from config; empty means every alert-worthy kind passes.
func NewAlerter(logger *slog.Logger, bus *events.Bus, senders []Sender, kinds []string) *Alerter {
	allowed := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[domain.EventKind(k)] = true
		}
	}
	return &Alerter{
		log:     logger.With(slog.String("component", "alerter")),
		bus:     bus,
		senders: senders,
		allowed: allowed,
	}
}

// Run consumes the bus until ctx is cancelled or the bus closes.
func (a *Alerter) Run(ctx context.Context) error {
	ch, cancel := a.bus.Subscribe(
		domain.EventSignalGenerated,
		domain.EventTradeApproved,
		domain.EventTradeRejected,
		domain.EventTradeExecuted,
		domain.EventPositionOpened,
		domain.EventPositionClosed,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			a.alert(ctx, evt)
		}
	}
}

func (a *Alerter) alert(ctx context.Context, evt domain.Event) {
	if len(a.allowed) > 0 && !a.allowed[evt.Kind()] {
		return
	}
	title, message := formatEvent(evt)
	if title == "" {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := a.dispatch(sctx, title, message); err != nil {
		a.log.WarnContext(ctx, "alert delivery incomplete",
			slog.String("event", string(evt.Kind())),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch delivers to every sender. Errors are collected so a single sender
// failure does not prevent delivery to the remaining senders.
func (a *Alerter) dispatch(ctx context.Context, title, message string) error {
	if len(a.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range a.senders {
		if err := s.Send(ctx, title, message); err != nil {
			a.log.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		a.log.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// formatEvent renders an event as an alert title and body. An empty title
// means the event produces no alert; sub-threshold signals stay quiet so a
// once-per-tick scoring loop cannot flood the operator channels.
func formatEvent(evt domain.Event) (title, message string) {
	switch e := evt.(type) {
	case domain.SignalGenerated:
		if !e.Signal.Actionable {
			return "", ""
		}
		s := e.Signal
		return "New Signal", fmt.Sprintf(
			"Symbol: %s\nDirection: %s\nStrength: %s\nDivergence: %.2f%%\nLag: %.1fs\nConfidence: %.0f%%\nSize: $%.2f\nEdge: %.2f%%",
			s.Symbol, s.Direction, s.Strength, s.PctDiff, s.LagSeconds,
			s.Confidence*100, s.RecommendedUSD, s.ExpectedEdgePct)
	case domain.TradeApproved:
		p := e.Proposal
		return "Trade Approved", fmt.Sprintf(
			"Symbol: %s\nSide: %s\nSize: $%.2f\nLimit: %.4f",
			p.Symbol, p.Side, p.SizeUSD, p.LimitPrice)
	case domain.TradeRejected:
		return "Trade Rejected", fmt.Sprintf(
			"Symbol: %s\nSize: $%.2f\nReason: %s",
			e.Proposal.Symbol, e.Proposal.SizeUSD, e.Reason)
	case domain.TradeExecuted:
		r := e.Record
		return "Trade Executed", fmt.Sprintf(
			"Symbol: %s\nSide: %s\nAction: %s\nSize: $%.2f\nPrice: %.4f\nVenue: %s",
			r.Symbol, r.Side, r.Action, r.SizeUSD, r.Price, r.Venue)
	case domain.PositionOpened:
		p := e.Position
		return "Position Opened", fmt.Sprintf(
			"Symbol: %s\nSide: %s\nEntry: %.4f\nSize: $%.2f",
			p.Symbol, p.Side, p.EntryPrice, p.SizeUSD)
	case domain.PositionClosed:
		p := e.Position
		exit := 0.0
		if p.ExitPrice != nil {
			exit = *p.ExitPrice
		}
		return "Position Closed", fmt.Sprintf(
			"Symbol: %s\nSide: %s\nExit: %.4f\nPnL: $%.2f\nReason: %s",
			p.Symbol, p.Side, exit, e.PnL, p.CloseReason)
	default:
		return "", ""
	}
}
