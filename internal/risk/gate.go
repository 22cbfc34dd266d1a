// Package risk enforces the trading limits: daily loss cap, concurrency cap,
// loss cooldown, per-trade size, slippage, and minimum confidence.
package risk

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
)

// Gate is the single shared risk state machine. Every symbol's decision loop
// consults the same Gate, so all public methods serialize on one mutex.
//
// Phases: normal -> loss_cooldown after a losing close (timed), and
// normal -> daily_halted once the day's realized loss reaches the cap. The
// halt lifts only at the UTC midnight rollover, checked lazily at the top of
// every call; there is no background timer.
type Gate struct {
	log    *slog.Logger
	cfg    config.RiskConfig
	sizing config.SizingConfig
	now    func() time.Time

	mu            sync.Mutex
	day           time.Time // UTC midnight of the current accounting day
	pnlToday      float64
	tradesToday   int
	lossesToday   int
	openCount     int
	exposureUSD   float64
	cooldownUntil time.Time
}

// NewGate creates a Gate with counters anchored to the current UTC day.
func NewGate(logger *slog.Logger, cfg *config.Config) *Gate {
	g := &Gate{
		log:    logger.With(slog.String("component", "risk_gate")),
		cfg:    cfg.Risk,
		sizing: cfg.Sizing,
		now:    time.Now,
	}
	g.day = g.now().UTC().Truncate(24 * time.Hour)
	return g
}

// Approve validates a proposal against every limit, short-circuiting on the
// first failure. It returns nil when the trade may proceed, or a
// *domain.LimitError naming the failed check with a human-readable reason.
//
// Check order: daily halt, concurrency, cooldown, position size, slippage,
// confidence.
func (g *Gate) Approve(p domain.TradeProposal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.resetIfNewDay(now)

	if g.pnlToday <= -g.cfg.MaxDailyLossUSD {
		err := domain.NewLimitError("daily_loss", "daily loss limit reached ($%.2f of $%.2f), halted until UTC midnight",
			-g.pnlToday, g.cfg.MaxDailyLossUSD)
		g.reject(p, err)
		return err
	}

	if g.openCount >= g.cfg.MaxConcurrent {
		err := domain.NewLimitError("concurrency", "max concurrent positions reached (%d/%d)",
			g.openCount, g.cfg.MaxConcurrent)
		g.reject(p, err)
		return err
	}

	if now.Before(g.cooldownUntil) {
		err := domain.NewLimitError("cooldown", "cooling down after a loss, %.0fs remaining",
			g.cooldownUntil.Sub(now).Seconds())
		g.reject(p, err)
		return err
	}

	if p.SizeUSD > g.cfg.MaxPositionSizeUSD {
		err := domain.NewLimitError("position_size", "position size $%.2f exceeds limit $%.2f",
			p.SizeUSD, g.cfg.MaxPositionSizeUSD)
		g.reject(p, err)
		return err
	}

	if p.MaxSlippagePct > g.cfg.MaxSlippagePct {
		err := domain.NewLimitError("slippage", "max slippage %.2f%% exceeds limit %.2f%%",
			p.MaxSlippagePct, g.cfg.MaxSlippagePct)
		g.reject(p, err)
		return err
	}

	if p.Signal.Confidence < g.cfg.MinConfidence {
		err := domain.NewLimitError("confidence", "signal confidence %.2f below minimum %.2f",
			p.Signal.Confidence, g.cfg.MinConfidence)
		g.reject(p, err)
		return err
	}

	return nil
}

// AdjustSize shrinks an approved size before execution: scaled by confidence,
// capped at the per-position limit and the liquidity fraction, and further
// reduced while the day has realized losses. Sizes under the minimum collapse
// to zero. AdjustSize never grows a size.
func (g *Gate) AdjustSize(sizeUSD, confidence, liquidityUSD float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDay(g.now())

	s := sizeUSD * confidence
	if s > g.cfg.MaxPositionSizeUSD {
		s = g.cfg.MaxPositionSizeUSD
	}
	if maxFromLiq := liquidityUSD * g.sizing.LiquidityFraction; s > maxFromLiq {
		s = maxFromLiq
	}
	if g.lossesToday > 0 {
		reduction := math.Max(0.5, 1-0.1*float64(g.lossesToday))
		s *= reduction
	}
	s = math.Round(s*100) / 100
	if s < g.sizing.MinSizeUSD {
		return 0
	}
	return s
}

// OnOpened records a filled open: one more concurrent position and its
// exposure.
func (g *Gate) OnOpened(sizeUSD float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDay(g.now())

	g.openCount++
	g.exposureUSD += sizeUSD
	g.tradesToday++
}

// OnClosed records a close: realized pnl lands in the daily total, and a loss
// starts the cooldown window. The daily halt threshold is re-evaluated here so
// the gate refuses the very next Approve after a breaching loss.
func (g *Gate) OnClosed(pnl, sizeUSD float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.resetIfNewDay(now)

	if g.openCount > 0 {
		g.openCount--
	}
	g.exposureUSD -= sizeUSD
	if g.exposureUSD < 0 {
		g.exposureUSD = 0
	}
	g.pnlToday += pnl

	if pnl < 0 {
		g.lossesToday++
		g.cooldownUntil = now.Add(g.cfg.Cooldown.Duration)
		g.log.Warn("loss recorded, cooldown started",
			slog.Float64("pnl", pnl),
			slog.Float64("pnl_today", g.pnlToday),
			slog.Time("cooldown_until", g.cooldownUntil))
	}

	if g.pnlToday <= -g.cfg.MaxDailyLossUSD {
		g.log.Error("daily loss limit reached, trading halted until UTC midnight",
			slog.Float64("pnl_today", g.pnlToday),
			slog.Float64("limit", g.cfg.MaxDailyLossUSD))
	}
}

// Status returns a copy of the gate state for the query surface.
func (g *Gate) Status() domain.RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.resetIfNewDay(now)

	snap := domain.RiskSnapshot{
		Phase:           domain.RiskPhaseNormal,
		Day:             g.day,
		PnLToday:        g.pnlToday,
		TradesToday:     g.tradesToday,
		LossesToday:     g.lossesToday,
		OpenCount:       g.openCount,
		ExposureUSD:     g.exposureUSD,
		MaxDailyLossUSD: g.cfg.MaxDailyLossUSD,
		MaxConcurrent:   g.cfg.MaxConcurrent,
	}
	switch {
	case g.pnlToday <= -g.cfg.MaxDailyLossUSD:
		snap.Phase = domain.RiskPhaseDailyHalted
	case now.Before(g.cooldownUntil):
		snap.Phase = domain.RiskPhaseLossCooldown
		until := g.cooldownUntil
		snap.CooldownUntil = &until
	}
	return snap
}

// resetIfNewDay clears the daily counters when the UTC date has rolled over.
// Open count and exposure survive the rollover: positions held overnight are
// still open. Caller must hold g.mu.
func (g *Gate) resetIfNewDay(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.After(g.day) {
		return
	}
	g.log.Info("daily risk counters reset",
		slog.Time("previous_day", g.day),
		slog.Float64("final_pnl", g.pnlToday),
		slog.Int("trades", g.tradesToday))
	g.day = day
	g.pnlToday = 0
	g.tradesToday = 0
	g.lossesToday = 0
	g.cooldownUntil = time.Time{}
}

// reject logs a refused proposal at warn level.
func (g *Gate) reject(p domain.TradeProposal, err *domain.LimitError) {
	g.log.Warn("proposal rejected",
		slog.String("symbol", p.Symbol),
		slog.String("check", err.Check),
		slog.String("reason", err.Reason),
		slog.Float64("size_usd", p.SizeUSD))
}
