package domain

import "time"

// Direction is the side a divergence points to: the market should reprice up,
// down, or not at all.
type Direction string

const (
	DirectionBuyUp   Direction = "buy_up"
	DirectionBuyDown Direction = "buy_down"
	DirectionNone    Direction = "none"
)

// Strength classifies the magnitude of a divergence. Ordered weakest first so
// bands can be compared directly.
type Strength int

const (
	StrengthWeak       Strength = iota
	StrengthModerate
	StrengthStrong
	StrengthVeryStrong
)

// String returns the lowercase label used in logs and persisted records.
func (s Strength) String() string {
	switch s {
	case StrengthModerate:
		return "moderate"
	case StrengthStrong:
		return "strong"
	case StrengthVeryStrong:
		return "very_strong"
	default:
		return "weak"
	}
}

// ParseStrength maps a persisted label back to its Strength. Unknown labels
// read as weak.
func ParseStrength(label string) Strength {
	switch label {
	case "moderate":
		return StrengthModerate
	case "strong":
		return StrengthStrong
	case "very_strong":
		return StrengthVeryStrong
	default:
		return StrengthWeak
	}
}

// Signal is the scored output of one divergence evaluation. Immutable;
// appended to a bounded history whether actionable or not.
type Signal struct {
	ID              string // UUID
	Symbol          string
	Direction       Direction
	Strength        Strength
	Confidence      float64 // [0,1]
	ProbGap         float64 // signed probability gap, [-0.4, 0.4] under default clamps
	PctDiff         float64
	LagSeconds      float64
	RecommendedUSD  float64 // >= 0, capped at the configured maximum
	ExpectedEdgePct float64 // >= 0
	Actionable      bool    // Direction != none && Confidence >= threshold
	CreatedAt       time.Time
}

// PositionSide is the exposure a proposal or position takes against the
// market's primary (up) token price.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Side maps a direction onto position exposure. DirectionNone has no side.
func (d Direction) Side() (PositionSide, bool) {
	switch d {
	case DirectionBuyUp:
		return SideLong, true
	case DirectionBuyDown:
		return SideShort, true
	default:
		return "", false
	}
}

// TradeProposal is an actionable signal bound to a tradeable token with
// concrete execution parameters. Never mutated after approval or rejection.
type TradeProposal struct {
	ID              string // UUID
	Signal          Signal
	Symbol          string
	TokenID         string
	Side            PositionSide
	SizeUSD         float64
	LimitPrice      float64 // market token quote at proposal time
	StopLossPrice   float64
	TakeProfitPrice float64
	MaxSlippagePct  float64
	CreatedAt       time.Time
}

// Fill is the result of a successful execution call.
type Fill struct {
	OrderID     string
	FilledPrice float64
	FeeUSD      float64
	FilledAt    time.Time
}
