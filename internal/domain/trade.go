package domain

import "time"

// Trade actions distinguish entry fills from exit fills in the accounting
// records.
const (
	TradeActionOpen  = "open"
	TradeActionClose = "close"
)

// TradeRecord is an executed fill persisted for accounting. One row per
// successful Execute or Unwind call.
type TradeRecord struct {
	ID         int64
	ProposalID string
	PositionID string
	Symbol     string
	TokenID    string
	Side       PositionSide
	Action     string // "open" or "close"
	Price      float64
	SizeUSD    float64
	FeeUSD     float64
	Venue      string
	ExecutedAt time.Time
}

// DailyStats accumulates one UTC day of trading outcomes.
type DailyStats struct {
	Day         time.Time // UTC midnight
	Trades      int
	Wins        int
	Losses      int
	RealizedPnL float64
}
