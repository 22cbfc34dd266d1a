// Package executor provides the trade execution backends. Paper fills
// proposals instantly at their limit price for dry runs; CLOB posts real
// orders to the exchange REST API.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Paper simulates execution without touching the venue. Every order fills
// in full at the proposal limit price with zero fees, so ledger PnL reflects
// the strategy's edge and nothing else.
type Paper struct {
	log *slog.Logger

	mu     sync.Mutex
	orders int

	now func() time.Time
}

// NewPaper creates a paper executor.
func NewPaper(logger *slog.Logger) *Paper {
	return &Paper{
		log: logger.With(slog.String("component", "paper_executor")),
		now: time.Now,
	}
}

// Name identifies the venue in logs and persisted trades.
func (p *Paper) Name() string { return "paper" }

// Execute fills the proposal at its limit price.
func (p *Paper) Execute(ctx context.Context, prop domain.TradeProposal) (domain.Fill, error) {
	if err := checkPrice(prop.LimitPrice); err != nil {
		return domain.Fill{}, &domain.ExecutionError{Venue: p.Name(), Err: err}
	}

	fill := domain.Fill{
		OrderID:     p.nextOrderID(),
		FilledPrice: prop.LimitPrice,
		FeeUSD:      0,
		FilledAt:    p.now().UTC(),
	}

	p.log.InfoContext(ctx, "paper fill",
		slog.String("order_id", fill.OrderID),
		slog.String("symbol", prop.Symbol),
		slog.String("side", string(prop.Side)),
		slog.Float64("price", fill.FilledPrice),
		slog.Float64("size_usd", prop.SizeUSD))

	return fill, nil
}

// Unwind closes the position at the given limit price.
func (p *Paper) Unwind(ctx context.Context, pos domain.Position, limitPrice float64) (domain.Fill, error) {
	if err := checkPrice(limitPrice); err != nil {
		return domain.Fill{}, &domain.ExecutionError{Venue: p.Name(), Err: err}
	}

	fill := domain.Fill{
		OrderID:     p.nextOrderID(),
		FilledPrice: limitPrice,
		FeeUSD:      0,
		FilledAt:    p.now().UTC(),
	}

	p.log.InfoContext(ctx, "paper unwind",
		slog.String("order_id", fill.OrderID),
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("price", fill.FilledPrice))

	return fill, nil
}

func (p *Paper) nextOrderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders++
	return fmt.Sprintf("paper-%d", p.orders)
}

// checkPrice rejects prices outside the open interval (0, 1). Probability
// tokens cannot trade at or beyond the bounds.
func checkPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 || price >= 1 {
		return fmt.Errorf("%w: price %v outside (0, 1)", domain.ErrInvalidInput, price)
	}
	return nil
}
