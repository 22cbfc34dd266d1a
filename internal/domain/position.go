package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonManual     CloseReason = "manual"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonShutdown   CloseReason = "shutdown"
)

// Position is a live or historical holding opened from an approved proposal.
// Prices are denominated in the market's primary (up) token; a short is
// executed by the collaborator as a purchase of the complementary token but
// tracked here against the primary price. Owned exclusively by the ledger.
type Position struct {
	ID           string
	Symbol       string
	TokenID      string
	Side         PositionSide
	EntryPrice   float64
	CurrentPrice float64
	SizeUSD      float64
	Status       PositionStatus
	OpenedAt     time.Time
	ClosedAt     *time.Time
	ExitPrice    *float64
	RealizedPnL  *float64 // set exactly once, at close
	CloseReason  CloseReason
}

// UnrealizedPnL returns the mark-to-market profit for an open position. Long
// gains when the price rises, short when it falls.
func (p Position) UnrealizedPnL() float64 {
	if p.Status != PositionStatusOpen {
		return 0
	}
	if p.Side == SideShort {
		return (p.EntryPrice - p.CurrentPrice) * p.SizeUSD
	}
	return (p.CurrentPrice - p.EntryPrice) * p.SizeUSD
}

// UnrealizedPnLPct returns the unrealized PnL as a percentage of entry cost.
// A zero entry cost reports 0 rather than dividing.
func (p Position) UnrealizedPnLPct() float64 {
	cost := p.EntryPrice * p.SizeUSD
	if cost == 0 {
		return 0
	}
	return p.UnrealizedPnL() / cost * 100
}

// LedgerStats aggregates realized and live performance for the query surface.
type LedgerStats struct {
	OpenCount        int
	ClosedCount      int
	WinningTrades    int
	LosingTrades     int
	WinRatePct       float64
	TotalRealizedPnL float64
	UnrealizedPnL    float64
	OpenExposureUSD  float64
}
