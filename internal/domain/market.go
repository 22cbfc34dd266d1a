package domain

import "time"

// Market is a price-threshold prediction market resolved for one watched
// symbol, e.g. "Will BTC be above $100,000 on March 31?".
type Market struct {
	ID           string
	Question     string
	Slug         string
	Symbol       string
	Threshold    float64 // the strike price the question asks about
	UpTokenID    string  // token paying out if price ends above threshold
	DownTokenID  string
	LiquidityUSD float64
	EndDate      time.Time
	Active       bool
	UpdatedAt    time.Time
}

// ImpliedPrice converts the up-token probability into an implied asset price.
// The market trades within a band of +-bandFraction around the threshold; a
// probability of 0.5 maps to the threshold itself.
func (m Market) ImpliedPrice(prob, bandFraction float64) float64 {
	return m.Threshold + (prob-0.5)*2*(m.Threshold*bandFraction)
}

// Quote is a live probability quote for one market token.
type Quote struct {
	Symbol       string
	TokenID      string
	Prob         float64 // up-token price in [0,1]
	LiquidityUSD float64
	Timestamp    time.Time
}
