// Package strategy scores oracle/implied divergences into trade signals and
// builds executable proposals from the actionable ones.
package strategy

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Engine converts DivergenceReadings into classified, confidence-scored
// signals. Scoring is a pure function of its inputs: identical reading and
// liquidity always produce an identical Signal. Every scored signal, traded
// or not, lands in a bounded in-memory history.
type Engine struct {
	log    *slog.Logger
	cfg    config.StrategyConfig
	sizing config.SizingConfig
	risk   config.RiskConfig
	ledger config.LedgerConfig
	now    func() time.Time

	mu     sync.RWMutex
	recent []domain.Signal
}

// NewEngine creates an Engine from the immutable startup configuration.
func NewEngine(logger *slog.Logger, cfg *config.Config) *Engine {
	return &Engine{
		log:    logger.With(slog.String("component", "signal_engine")),
		cfg:    cfg.Strategy,
		sizing: cfg.Sizing,
		risk:   cfg.Risk,
		ledger: cfg.Ledger,
		now:    time.Now,
	}
}

// Score evaluates one divergence reading against the available market
// liquidity and returns the resulting signal. Invalid numeric input (NaN,
// Inf, non-positive prices or liquidity) produces a directionless signal
// rather than an error; the pipeline keeps running on the next reading.
func (e *Engine) Score(r domain.DivergenceReading, liquidityUSD float64) domain.Signal {
	createdAt := r.OracleTime
	if r.ImpliedTime.After(createdAt) {
		createdAt = r.ImpliedTime
	}

	sig := domain.Signal{
		Symbol:     r.Symbol,
		Direction:  domain.DirectionNone,
		Strength:   domain.StrengthWeak,
		PctDiff:    r.PctDiff,
		LagSeconds: r.LagSeconds,
		CreatedAt:  createdAt,
	}

	if !validInputs(r, liquidityUSD) {
		e.log.Warn("non-finite or invalid scoring input",
			slog.String("symbol", r.Symbol),
			slog.Float64("oracle", r.OracleValue),
			slog.Float64("implied", r.ImpliedValue),
			slog.Float64("liquidity", liquidityUSD))
		e.record(sig)
		return sig
	}

	// Heuristic repricing model: expected probability shift per percentage
	// point of divergence, clamped away from the degenerate extremes.
	expected := clamp(0.5+r.PctDiff*e.cfg.ProbCoefficient, e.cfg.ProbFloor, e.cfg.ProbCeiling)
	gap := expected - 0.5
	absGap := math.Abs(gap)
	sig.ProbGap = gap

	sig.Strength = e.strengthFor(absGap)
	sig.Confidence = e.confidence(r, absGap, liquidityUSD)

	if r.LagSeconds < e.cfg.LagThreshold.Seconds() || absGap < e.cfg.MinProbGap {
		e.record(sig)
		return sig
	}

	if gap > 0 {
		sig.Direction = domain.DirectionBuyUp
	} else {
		sig.Direction = domain.DirectionBuyDown
	}

	sig.RecommendedUSD = e.size(sig.Confidence, sig.Strength, liquidityUSD)
	if sig.RecommendedUSD == 0 {
		// Below the minimum viable order: not tradeable, so the stored
		// direction must not claim otherwise.
		sig.Direction = domain.DirectionNone
	}

	sig.ExpectedEdgePct = roundTo(math.Max(0, absGap*100-e.cfg.ExecutionCostPct), 2)
	sig.Actionable = sig.Direction != domain.DirectionNone && sig.Confidence >= e.cfg.ConfidenceThreshold

	e.record(sig)
	return sig
}

// Propose turns an actionable signal into a trade proposal against the given
// market and quote. Returns false when the signal is not actionable or the
// quote is degenerate.
func (e *Engine) Propose(sig domain.Signal, market domain.Market, quote domain.Quote) (domain.TradeProposal, bool) {
	if !sig.Actionable {
		return domain.TradeProposal{}, false
	}
	side, ok := sig.Direction.Side()
	if !ok {
		return domain.TradeProposal{}, false
	}
	if quote.Prob <= 0 || quote.Prob >= 1 {
		e.log.Warn("degenerate quote, skipping proposal",
			slog.String("symbol", sig.Symbol),
			slog.Float64("prob", quote.Prob))
		return domain.TradeProposal{}, false
	}

	tokenID := market.UpTokenID
	stop := quote.Prob * (1 - e.ledger.StopLossPct/100)
	take := quote.Prob * (1 + e.ledger.TakeProfitPct/100)
	if side == domain.SideShort {
		tokenID = market.DownTokenID
		stop = quote.Prob * (1 + e.ledger.StopLossPct/100)
		take = quote.Prob * (1 - e.ledger.TakeProfitPct/100)
	}

	return domain.TradeProposal{
		ID:              uuid.NewString(),
		Signal:          sig,
		Symbol:          sig.Symbol,
		TokenID:         tokenID,
		Side:            side,
		SizeUSD:         sig.RecommendedUSD,
		LimitPrice:      quote.Prob,
		StopLossPrice:   stop,
		TakeProfitPrice: take,
		MaxSlippagePct:  e.risk.MaxSlippagePct,
		CreatedAt:       e.now(),
	}, true
}

// Recent returns up to limit most recent signals, newest first. The returned
// slice is safe to mutate.
func (e *Engine) Recent(limit int) []domain.Signal {
	if limit <= 0 {
		limit = 20
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.recent)
	if n == 0 {
		return nil
	}
	if limit > n {
		limit = n
	}
	out := make([]domain.Signal, limit)
	for i := 0; i < limit; i++ {
		out[i] = e.recent[n-1-i]
	}
	return out
}

// confidence blends four clamped factors with the configured weights: lag
// saturating at max_lag, gap saturating at max_gap, the oracle observation's
// own confidence, and liquidity saturating at the ceiling. Rounded to three
// decimals so persisted values compare cleanly.
func (e *Engine) confidence(r domain.DivergenceReading, absGap, liquidityUSD float64) float64 {
	lagFactor := clamp01(r.LagSeconds / e.cfg.MaxLag.Seconds())
	gapFactor := clamp01(absGap / e.cfg.MaxGap)
	oracleFactor := clamp01(r.OracleConfidence)
	liqFactor := clamp01(liquidityUSD / e.cfg.LiquidityCeilingUSD)

	c := e.cfg.WeightLag*lagFactor +
		e.cfg.WeightGap*gapFactor +
		e.cfg.WeightOracleConf*oracleFactor +
		e.cfg.WeightLiquidity*liqFactor
	return roundTo(clamp01(c), 3)
}

// size computes the recommended USD size: base scaled by confidence and
// strength, capped at the absolute per-position limit and at the configured
// fraction of market liquidity. Sizes under the minimum collapse to zero.
func (e *Engine) size(confidence float64, strength domain.Strength, liquidityUSD float64) float64 {
	s := e.sizing.BaseSizeUSD * confidence * e.multiplier(strength)
	if s > e.risk.MaxPositionSizeUSD {
		s = e.risk.MaxPositionSizeUSD
	}
	if maxFromLiq := liquidityUSD * e.sizing.LiquidityFraction; s > maxFromLiq {
		s = maxFromLiq
	}
	s = roundTo(s, 2)
	if s < e.sizing.MinSizeUSD {
		return 0
	}
	return s
}

func (e *Engine) multiplier(strength domain.Strength) float64 {
	switch strength {
	case domain.StrengthVeryStrong:
		return e.sizing.MultVeryStrong
	case domain.StrengthStrong:
		return e.sizing.MultStrong
	case domain.StrengthModerate:
		return e.sizing.MultModerate
	default:
		return e.sizing.MultWeak
	}
}

func (e *Engine) strengthFor(absGap float64) domain.Strength {
	switch {
	case absGap >= e.cfg.BandVeryStrong:
		return domain.StrengthVeryStrong
	case absGap >= e.cfg.BandStrong:
		return domain.StrengthStrong
	case absGap >= e.cfg.BandModerate:
		return domain.StrengthModerate
	default:
		return domain.StrengthWeak
	}
}

// record appends sig to the bounded history.
func (e *Engine) record(sig domain.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recent = append(e.recent, sig)
	if overflow := len(e.recent) - e.cfg.HistoryLimit; overflow > 0 {
		e.recent = append([]domain.Signal(nil), e.recent[overflow:]...)
	}
}

func validInputs(r domain.DivergenceReading, liquidityUSD float64) bool {
	for _, v := range []float64{r.OracleValue, r.ImpliedValue, r.PctDiff, r.LagSeconds, r.OracleConfidence, liquidityUSD} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.OracleValue > 0 && r.ImpliedValue > 0 && r.LagSeconds >= 0 && liquidityUSD > 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

// roundTo rounds v to n decimal places.
func roundTo(v float64, n int) float64 {
	p := math.Pow10(n)
	return math.Round(v*p) / p
}
