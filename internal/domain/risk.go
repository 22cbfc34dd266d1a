package domain

import "time"

// RiskPhase is the gate's current operating state.
type RiskPhase string

const (
	RiskPhaseNormal       RiskPhase = "normal"
	RiskPhaseLossCooldown RiskPhase = "loss_cooldown"
	RiskPhaseDailyHalted  RiskPhase = "daily_halted"
)

// RiskSnapshot is a read-only copy of the gate's state for the query surface.
type RiskSnapshot struct {
	Phase           RiskPhase
	Day             time.Time // UTC midnight of the current accounting day
	PnLToday        float64
	TradesToday     int
	LossesToday     int
	OpenCount       int
	ExposureUSD     float64
	CooldownUntil   *time.Time
	MaxDailyLossUSD float64
	MaxConcurrent   int
}
