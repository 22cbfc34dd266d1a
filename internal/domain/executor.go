package domain

import "context"

// TradeExecutor places and unwinds trades on the venue. Implementations own
// their network deadlines; the core never retries a failed call.
type TradeExecutor interface {
	Name() string
	// Execute opens the position described by the proposal and returns the
	// fill. An error means no position was taken.
	Execute(ctx context.Context, p TradeProposal) (Fill, error)
	// Unwind closes an open position at or near limitPrice.
	Unwind(ctx context.Context, pos Position, limitPrice float64) (Fill, error)
}
